package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/acpcall/acpcall/internal/store"
)

var sessionsDB string

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect chat id to session id mappings",
	RunE:  runSessionsList,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known mappings, most recently used first",
	RunE:  runSessionsList,
}

var sessionsForgetCmd = &cobra.Command{
	Use:   "forget <chat_id>",
	Short: "Drop the mapping for a chat id so the next run starts fresh",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsForget,
}

func init() {
	sessionsCmd.PersistentFlags().StringVar(&sessionsDB, "db", "", "SQLite path for chat id to session id mappings")
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsForgetCmd)
}

func openSessionStore() (*store.Store, error) {
	return store.Open(stringOr(sessionsDB, cfg.DBPath))
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	st, err := openSessionStore()
	if err != nil {
		return err
	}
	defer st.Close()

	mappings, err := st.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(mappings) == 0 {
		fmt.Println("No sessions recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CHAT ID\tSESSION ID\tUPDATED")
	for _, m := range mappings {
		fmt.Fprintf(w, "%s\t%s\t%s\n", m.ChatID, m.SessionID, m.UpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runSessionsForget(cmd *cobra.Command, args []string) error {
	st, err := openSessionStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Forgot session mapping for %s\n", args[0])
	return nil
}

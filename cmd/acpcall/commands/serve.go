package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/acpcall/acpcall/internal/config"
	"github.com/acpcall/acpcall/internal/event"
	"github.com/acpcall/acpcall/internal/logging"
	"github.com/acpcall/acpcall/internal/server"
)

var (
	serveSocket      string
	serveCard        string
	serveServerCmd   string
	serveServerCwd   string
	serveStreamLimit int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the socket service in front of one agent subprocess",
	Long: `Start the socket service. It spawns a single agent subprocess and
accepts prompt requests on a Unix socket, one cycle at a time, so that
repeated 'acpcall run --connect' calls reuse the same agent connection.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveSocket, "socket", "", "Unix socket path to listen on")
	serveCmd.Flags().StringVar(&serveCard, "card", "", "Path to the agent card")
	serveCmd.Flags().StringVar(&serveServerCmd, "server-cmd", "", "Command used to launch the agent (default \"uv run fast-agent\")")
	serveCmd.Flags().StringVar(&serveServerCwd, "server-cwd", "", "Working directory for the agent (defaults to the card's directory)")
	serveCmd.Flags().IntVar(&serveStreamLimit, "stream-limit", 0, "Max bytes per agent stdio line")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := config.GetPaths().EnsurePaths(); err != nil {
		return err
	}

	card := stringOr(serveCard, cfg.CardPath)
	if card == "" {
		return fmt.Errorf("--card is required to spawn the agent")
	}

	limit := serveStreamLimit
	if limit <= 0 {
		limit = cfg.StreamLimit
	}

	srv, err := server.New(server.Options{
		SocketPath:    stringOr(serveSocket, cfg.SocketPath),
		ServerCommand: stringOr(serveServerCmd, cfg.ServerCommand),
		CardPath:      card,
		ServerCwd:     stringOr(serveServerCwd, cfg.ServerCwd),
		StreamLimit:   limit,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	unsubscribe := event.SubscribeAll(func(ev event.Event) {
		logging.Debug().Str("event", string(ev.Type)).Interface("data", ev.Data).Msg("lifecycle event")
	})
	defer unsubscribe()

	logging.Info().Str("version", Version).Msg("acpcall service starting")
	return srv.Run(ctx)
}

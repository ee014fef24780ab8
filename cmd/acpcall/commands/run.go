package commands

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/acpcall/acpcall/internal/client"
)

var (
	runCard                 string
	runServerCmd            string
	runServerCwd            string
	runConnect              bool
	runSocket               string
	runDB                   string
	runMode                 string
	runStreamLimit          int
	runAutoApprove          bool
	runAllowAlways          bool
	runStripLeadingNewlines bool
	runChunkDelimiter       bool
	runShowTools            bool
	runWait                 time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run <chat_id> [prompt...]",
	Short: "Send one prompt to the agent session mapped to a chat id",
	Long: `Send one prompt to the agent session mapped to a chat id.

Prompt text comes from the arguments, or from stdin when stdin is not
a terminal. With --connect the prompt goes to a running 'acpcall serve'
over its socket; otherwise a fresh agent subprocess is spawned for this
invocation.

Examples:
  acpcall run chat-42 "What changed since yesterday?"
  echo "Summarize the log" | acpcall run chat-42 --connect
  acpcall run chat-42 --card ./agent-card.json "Hello"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPrompt,
}

func init() {
	runCmd.Flags().StringVar(&runCard, "card", "", "Path to the agent card (required when spawning)")
	runCmd.Flags().StringVar(&runServerCmd, "server-cmd", "", "Command used to launch the agent (default \"uv run fast-agent\")")
	runCmd.Flags().StringVar(&runServerCwd, "server-cwd", "", "Working directory for the agent (defaults to the card's directory)")
	runCmd.Flags().BoolVar(&runConnect, "connect", false, "Send the prompt to a running service over its socket")
	runCmd.Flags().StringVar(&runSocket, "socket", "", "Service socket path (used with --connect)")
	runCmd.Flags().StringVar(&runDB, "db", "", "SQLite path for chat id to session id mappings")
	runCmd.Flags().StringVar(&runMode, "mode", "", "Session mode id to apply before prompting")
	runCmd.Flags().IntVar(&runStreamLimit, "stream-limit", 0, "Max bytes per agent stdio line")
	runCmd.Flags().BoolVar(&runAutoApprove, "auto-approve", false, "Approve tool permissions without asking (allow once)")
	runCmd.Flags().BoolVar(&runAllowAlways, "allow-always", false, "Approve tool permissions with a persistent grant")
	runCmd.Flags().BoolVar(&runStripLeadingNewlines, "strip-leading-newlines", false, "Strip leading newlines from the first streamed chunk")
	runCmd.Flags().BoolVar(&runChunkDelimiter, "stream-chunk-delimeter", false, "Print '.' to stderr per streamed chunk")
	runCmd.Flags().BoolVar(&runShowTools, "show-tools", false, "Print tool activity to stderr")
	runCmd.Flags().DurationVar(&runWait, "wait", 0, "Keep retrying the service dial for this long (used with --connect)")
}

func runPrompt(cmd *cobra.Command, args []string) error {
	chatID := args[0]
	prompt, err := resolvePrompt(args[1:])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	interactive := isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())

	if runConnect {
		return client.RunSocket(ctx, client.SocketOptions{
			SocketPath:           stringOr(runSocket, cfg.SocketPath),
			DBPath:               stringOr(runDB, cfg.DBPath),
			ChatID:               chatID,
			Prompt:               prompt,
			ModeID:               stringOr(runMode, cfg.Mode),
			AutoApprove:          runAutoApprove,
			AllowAlways:          runAllowAlways,
			StripLeadingNewlines: runStripLeadingNewlines,
			ChunkDelimiter:       runChunkDelimiter,
			ShowTools:            runShowTools,
			Wait:                 runWait,
			Interactive:          interactive,
			Stdin:                os.Stdin,
			Stdout:               os.Stdout,
			Stderr:               os.Stderr,
		})
	}

	card := stringOr(runCard, cfg.CardPath)
	if card == "" {
		return fmt.Errorf("--card is required when spawning the agent")
	}

	limit := runStreamLimit
	if limit <= 0 {
		limit = cfg.StreamLimit
	}

	return client.RunDirect(ctx, client.DirectOptions{
		ServerCommand:        stringOr(runServerCmd, cfg.ServerCommand),
		CardPath:             card,
		ServerCwd:            stringOr(runServerCwd, cfg.ServerCwd),
		StreamLimit:          limit,
		DBPath:               stringOr(runDB, cfg.DBPath),
		ChatID:               chatID,
		Prompt:               prompt,
		ModeID:               stringOr(runMode, cfg.Mode),
		AutoApprove:          runAutoApprove,
		AllowAlways:          runAllowAlways,
		StripLeadingNewlines: runStripLeadingNewlines,
		ChunkDelimiter:       runChunkDelimiter,
		ShowTools:            runShowTools,
		Interactive:          interactive,
		Stdin:                os.Stdin,
		Stdout:               os.Stdout,
		Stderr:               os.Stderr,
	})
}

// resolvePrompt joins the argument words, falling back to stdin when
// no argument text was given and stdin is piped.
func resolvePrompt(args []string) (string, error) {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text != "" {
		return text, nil
	}
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read prompt from stdin: %w", err)
		}
		if text := strings.TrimSpace(string(data)); text != "" {
			return text, nil
		}
	}
	return "", fmt.Errorf("prompt text is required (argument or stdin)")
}

func stringOr(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

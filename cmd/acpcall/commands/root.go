// Package commands provides the CLI commands for acpcall.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/acpcall/acpcall/internal/config"
	"github.com/acpcall/acpcall/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	logLevel   string
	prettyLogs bool
)

// cfg is the effective configuration, loaded before any subcommand runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "acpcall",
	Short: "acpcall - share one agent session across short-lived invocations",
	Long: `acpcall maps external chat ids to agent sessions so that many
short-lived invocations continue one long-lived conversation.

Run 'acpcall serve' to start the socket service, then 'acpcall run
--connect <chat_id> <prompt>' from each caller. Without --connect,
'acpcall run' spawns its own agent subprocess for a single exchange.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workDir, err := os.Getwd()
		if err != nil {
			workDir = "."
		}
		cfg, err = config.Load(workDir)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if cmd.Flags().Changed("pretty-logs") {
			cfg.LogPretty = prettyLogs
		}
		logging.Setup(cfg.LogLevel, cfg.LogPretty)
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&prettyLogs, "pretty-logs", false, "Render console logs instead of JSON")

	rootCmd.SetVersionTemplate(fmt.Sprintf("acpcall %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

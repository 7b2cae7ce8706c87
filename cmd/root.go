// Package cmd implements the assistant command line interface.
package cmd

import (
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/welldone-ai/assistant/internal/app"
	"github.com/welldone-ai/assistant/internal/config"
	"github.com/welldone-ai/assistant/internal/log"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "assistant",
	Short: "WellDone - a recipe question answering assistant",
	Long: `WellDone answers cooking questions from your own recipe collection.

Ingest recipe files into the vector index, then ask questions from the
command line or run the Telegram bot for multi-turn conversations.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Secrets may live in a local .env; absence is fine.
		_ = godotenv.Load()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// newLogger builds the process logger from the persistent flags.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level})
}

// loadConfig loads and validates configuration.
func loadConfig() (*config.Config, error) {
	return config.Load()
}

// setupApp initializes the full application for commands that need it.
func setupApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.Setup(cmd.Context(), cfg, newLogger())
}

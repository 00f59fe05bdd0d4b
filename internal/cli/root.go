// Package cli wires the leibridge commands: a one-shot pipeline run and the
// long-running validation gateway.
package cli

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

var debug bool

var rootCmd = &cobra.Command{
	Use:   "leibridge",
	Short: "LEI to SDMX validation pipeline",
	Long: `leibridge loads GLEIF legal entity (LEI) records, reshapes them into an
SDMX dataset and validates the result against an FMR instance.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(func() { _ = godotenv.Load() })
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

func logLevel() slog.Level {
	if debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// setupConsoleLogging installs a tinted handler for interactive commands.
func setupConsoleLogging() {
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevel(),
		TimeFormat: time.Kitchen,
	})))
}

// setupServerLogging installs a JSON handler for the gateway.
func setupServerLogging() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	})))
}

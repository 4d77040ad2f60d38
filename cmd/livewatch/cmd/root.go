package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/livesync/core/logger"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "livewatch",
	Short: "Watch live queries over a realtime backend",
	Long: `livewatch signs in with the configured identity provider, mounts a query
against the data API and prints every change of its cached result as the
realtime channel reports row changes.

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log component activity to stderr")
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(navCmd)
	rootCmd.AddCommand(checkCmd)
}

func newLogger() *slog.Logger {
	if verbose {
		return logger.New(logger.WithDevelopment("livewatch"), logger.WithOutput(os.Stderr))
	}
	return logger.New(logger.WithLevel(slog.LevelWarn), logger.WithOutput(os.Stderr))
}

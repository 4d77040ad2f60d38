package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/livesync/core/health"
)

var checkFlags struct {
	transport string
	fetcher   string
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Connect to the configured backends and report their readiness",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := setup(ctx, checkFlags.transport, checkFlags.fetcher, newLogger())
		if err != nil {
			return err
		}
		defer a.Close()

		checks := append([]health.Check{{Name: "session", Probe: a.client.Start}}, a.checks...)
		failed := 0
		for _, r := range health.Run(ctx, checks...) {
			status := "ok"
			if r.Err != nil {
				failed++
				status = "FAIL " + r.Err.Error()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s (%s)\n", r.Name, status, r.Elapsed.Round(time.Microsecond))
		}
		if failed > 0 {
			return fmt.Errorf("%w: %d of %d checks failed", health.ErrNotReady, failed, len(checks))
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkFlags.transport, "transport", "pgnotify", "Change transport: websocket, pgnotify, redis or memory")
	checkCmd.Flags().StringVar(&checkFlags.fetcher, "fetcher", "postgres", "Data fetcher: postgrest or postgres")
}

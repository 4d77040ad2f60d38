package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var navCmd = &cobra.Command{
	Use:   "nav",
	Short: "List the navigation entries visible to the signed-in role",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := setup(ctx, "memory", "none", newLogger())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.client.Start(ctx); err != nil {
			return err
		}

		role := "signed out"
		if sess, ok := a.client.Session(); ok {
			role = sess.Role()
		}
		fmt.Fprintf(cmd.OutOrStdout(), "role: %s\n", role)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, item := range a.client.Navigation() {
			fmt.Fprintf(w, "%s\t%s\t%s\n", item.ID, item.Title, item.Href)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		caps := make([]string, 0, len(a.client.Capabilities()))
		for _, c := range a.client.Capabilities() {
			caps = append(caps, string(c))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "capabilities: %s\n", strings.Join(caps, ", "))
		return nil
	},
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/marketplace/internal/ui"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of the marketplace server",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := marketClient.Health(cmd.Context())
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			if err := printJSON(out, resp); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(out, "Health: %s\n", ui.RenderHealth(resp.Healthy()))
			if len(resp.Projections) > 0 {
				fmt.Fprintln(out)
				printStatusTable(out, resp.Projections)
			}
		}

		if !resp.Healthy() {
			return fmt.Errorf("unhealthy: %s", resp.Status)
		}
		return nil
	},
}

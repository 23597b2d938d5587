package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:     "status [projection]",
	Short:   "Show the state of every projection, or of one",
	GroupID: "projections",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if len(args) == 1 {
			e, err := marketClient.GetProjection(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("getting projection: %w", err)
			}
			if jsonOutput {
				return printJSON(out, e)
			}
			printStatusDetail(out, e)
			return nil
		}

		entries, err := marketClient.ListProjections(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing projections: %w", err)
		}
		if jsonOutput {
			return printJSON(out, entries)
		}
		if len(entries) == 0 {
			fmt.Fprintln(out, "No projections running.")
			return nil
		}
		printStatusTable(out, entries)
		return nil
	},
}

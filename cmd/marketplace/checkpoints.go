package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/marketplace/internal/ui"
)

var checkpointsCmd = &cobra.Command{
	Use:     "checkpoints",
	Short:   "Inspect and reset projection checkpoints",
	GroupID: "projections",
}

var checkpointsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored checkpoints",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		checkpoints, err := marketClient.ListCheckpoints(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing checkpoints: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), checkpoints)
		}
		printCheckpointTable(cmd.OutOrStdout(), checkpoints)
		return nil
	},
}

var checkpointsResetCmd = &cobra.Command{
	Use:   "reset <projection>",
	Short: "Delete a projection's checkpoint",
	Long: `Delete a projection's checkpoint.

The running projection is not affected. After the next restart it replays
the log from the start, so its read model must tolerate redelivery.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := marketClient.ResetCheckpoint(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("resetting checkpoint: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]string{"reset": args[0]})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Reset checkpoint for %s\n", ui.RenderAccent(args[0]))
		return nil
	},
}

func init() {
	checkpointsCmd.AddCommand(checkpointsListCmd, checkpointsResetCmd)
}

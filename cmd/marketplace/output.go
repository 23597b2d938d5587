package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/marketplace/internal/client"
	"github.com/alfredjeanlab/marketplace/internal/model"
	"github.com/alfredjeanlab/marketplace/internal/status"
	"github.com/alfredjeanlab/marketplace/internal/ui"
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func printStatusTable(w io.Writer, entries []status.Entry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROJECTION\tPHASE\tPOSITION\tPROCESSED\tRESTARTS\tLAST REASON")
	for _, e := range entries {
		reason := e.LastReason
		if reason == "" {
			reason = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
			e.Projection,
			ui.RenderPhase(string(e.Phase)),
			uint64(e.Position),
			e.Processed,
			e.Restarts,
			reason,
		)
	}
	tw.Flush()
}

func printStatusDetail(w io.Writer, e *status.Entry) {
	fmt.Fprintf(w, "Projection:  %s\n", e.Projection)
	fmt.Fprintf(w, "Phase:       %s\n", ui.RenderPhase(string(e.Phase)))
	fmt.Fprintf(w, "Position:    %d\n", uint64(e.Position))
	fmt.Fprintf(w, "Processed:   %d\n", e.Processed)
	fmt.Fprintf(w, "Restarts:    %d\n", e.Restarts)
	if e.LastReason != "" {
		fmt.Fprintf(w, "Last Reason: %s\n", e.LastReason)
	}
	if e.LastError != "" {
		fmt.Fprintf(w, "Last Error:  %s\n", e.LastError)
	}
	fmt.Fprintf(w, "Started At:  %s\n", formatTime(e.StartedAt))
	fmt.Fprintf(w, "Updated At:  %s\n", formatTime(e.UpdatedAt))
}

func printCheckpointTable(w io.Writer, checkpoints []*model.Checkpoint) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROJECTION\tPOSITION\tUPDATED")
	for _, c := range checkpoints {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", c.Projection, uint64(c.Position), formatTime(c.UpdatedAt))
	}
	tw.Flush()
}

func printAvailableAdTable(w io.Writer, ads []*model.AvailableAd) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tOWNER\tPRICE\tAVAILABLE\tTITLE")
	for _, ad := range ads {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n",
			ad.AdID, ad.OwnerID, formatPrice(ad.Price, ad.Currency), ad.Available, truncate(ad.Title, 50))
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d ads\n", len(ads))
}

func printOwnerAdTable(w io.Writer, ads []*model.OwnerAd) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPRICE\tTITLE")
	for _, ad := range ads {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			ad.AdID, ad.Status, formatPrice(ad.Price, ad.Currency), truncate(ad.Title, 50))
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d ads\n", len(ads))
}

func formatPrice(price float64, currency string) string {
	if currency == "" {
		return "-"
	}
	return fmt.Sprintf("%.2f %s", price, currency)
}

func printCommandResult(w io.Writer, action string, res *client.CommandResult) error {
	if jsonOutput {
		return printJSON(w, res)
	}
	fmt.Fprintf(w, "%s %s (position %d)\n", action, ui.RenderAccent(res.ID), uint64(res.Position))
	return nil
}

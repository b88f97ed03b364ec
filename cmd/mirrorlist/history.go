package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BadgerOps/mirrorlist/internal/sites"
	"github.com/spf13/cobra"
)

var (
	historyNetwork string
	historyLimit   int
	historyRunID   int64
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past refresh runs",
		Long: `Show recorded refresh runs, newest first. Requires db_path to be set in
the configuration.`,
		Example: `  mirrorlist history
  mirrorlist history --network debian --limit 5
  mirrorlist history --run 42`,
		RunE: historyRun,
	}

	cmd.Flags().StringVar(&historyNetwork, "network", "", "only show runs for this network")
	cmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of runs to show (0 for all)")
	cmd.Flags().Int64Var(&historyRunID, "run", 0, "show details of a single run")

	return cmd
}

func historyRun(cmd *cobra.Command, args []string) error {
	if globalStore == nil {
		return fmt.Errorf("refresh history is disabled: set db_path in the config")
	}

	if historyRunID > 0 {
		return showRun(cmd, historyRunID)
	}

	network := ""
	if historyNetwork != "" {
		n, err := sites.Lookup(historyNetwork)
		if err != nil {
			return err
		}
		network = n.Name
	}

	runs, err := globalStore.ListRuns(network, historyLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No refresh runs recorded")
		return nil
	}

	fmt.Fprintf(out, "%-6s %-12s %-17s %10s %8s %8s  %s\n", "Run", "Network", "Started", "Duration", "Mirrors", "Dropped", "Status")
	fmt.Fprintln(out, strings.Repeat("-", 80))
	for _, r := range runs {
		status := r.Status
		if r.ErrorMessage != "" {
			status += ": " + r.ErrorMessage
		}
		fmt.Fprintf(out, "%-6d %-12s %-17s %10s %8d %8d  %s\n",
			r.ID,
			r.Network,
			r.StartTime.Format("2006-01-02 15:04"),
			formatDuration(r.Duration()),
			r.Accepted,
			r.Dropped,
			status,
		)
	}

	return nil
}

func showRun(cmd *cobra.Command, id int64) error {
	r, err := globalStore.GetRun(id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:        %d\n", r.ID)
	fmt.Fprintf(out, "Network:    %s\n", r.Network)
	fmt.Fprintf(out, "Status:     %s\n", r.Status)
	fmt.Fprintf(out, "Started:    %s\n", r.StartTime.Format(time.RFC3339))
	fmt.Fprintf(out, "Duration:   %s\n", formatDuration(r.Duration()))
	fmt.Fprintf(out, "Candidates: %d\n", r.Candidates)
	fmt.Fprintf(out, "Mirrors:    %d\n", r.Accepted)
	fmt.Fprintf(out, "Dropped:    %d\n", r.Dropped)
	if r.OutputPath != "" {
		fmt.Fprintf(out, "Output:     %s\n", r.OutputPath)
	}
	if r.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:      %s\n", r.ErrorMessage)
	}
	return nil
}

// formatDuration renders a duration rounded for table output
func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

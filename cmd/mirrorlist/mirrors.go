package main

import (
	"fmt"
	"strings"

	"github.com/BadgerOps/mirrorlist/internal/sites"
	"github.com/spf13/cobra"
)

func newMirrorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mirrors <network>",
		Short: "Show the mirrors recorded by the last successful refresh",
		Long: `Show the mirrors recorded for a network by its last successful refresh,
grouped by region key. Requires db_path to be set in the configuration.`,
		Example: `  mirrorlist mirrors gnu`,
		Args:    cobra.ExactArgs(1),
		RunE:    mirrorsRun,
	}
}

func mirrorsRun(cmd *cobra.Command, args []string) error {
	if globalStore == nil {
		return fmt.Errorf("refresh history is disabled: set db_path in the config")
	}

	n, err := sites.Lookup(args[0])
	if err != nil {
		return err
	}

	records, err := globalStore.ListMirrors(n.Name)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintf(out, "No mirrors recorded for %s\n", n.Name)
		return nil
	}

	fmt.Fprintf(out, "%-12s %-6s  %s\n", "Region", "Run", "URL")
	fmt.Fprintln(out, strings.Repeat("-", 60))
	for _, rec := range records {
		fmt.Fprintf(out, "%-12s %-6d  %s\n", rec.RegionKey, rec.RunID, rec.URL)
	}
	return nil
}

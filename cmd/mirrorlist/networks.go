package main

import (
	"fmt"
	"strings"

	"github.com/BadgerOps/mirrorlist/internal/engine"
	"github.com/spf13/cobra"
)

func newNetworksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "networks",
		Short: "List distribution networks",
		Long: `List every known distribution network with its selection flag, whether it
is enabled, its mirror-list URL and, when history is enabled, the result
of its last refresh.`,
		Example: `  mirrorlist networks`,
		RunE:    networksRun,
	}

	return cmd
}

func networksRun(cmd *cobra.Command, args []string) error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}

	statuses := engine.Status(globalStore, engine.Networks(globalCfg), logger)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-12s %-14s %-8s %8s %-17s %s\n", "Network", "Flag", "Enabled", "Mirrors", "Last Refresh", "List URL")
	fmt.Fprintln(out, strings.Repeat("-", 100))

	for _, s := range statuses {
		flag, enabled := "--"+string(s.Network.Kind), "yes"
		switch {
		case s.Network.Retired:
			flag, enabled = "-", "retired"
		case s.Network.Disabled:
			enabled = "no"
		}
		last := "never"
		if !s.LastRun.IsZero() {
			last = s.LastRun.Format("2006-01-02 15:04")
			if s.LastStatus != "" && s.LastStatus != "success" {
				last += " (" + s.LastStatus + ")"
			}
		}
		fmt.Fprintf(out, "%-12s %-14s %-8s %8d %-17s %s\n",
			s.Network.Name,
			flag,
			enabled,
			s.Mirrors,
			last,
			s.Network.ListURL,
		)
	}

	return nil
}

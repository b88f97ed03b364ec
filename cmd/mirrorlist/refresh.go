package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/BadgerOps/mirrorlist/internal/engine"
	"github.com/BadgerOps/mirrorlist/internal/sites"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newRefreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Regenerate mirror lists",
		Long: `Fetch each network's mirror list, validate every listed mirror and
publish a region-keyed mirror list file under the output directory.

Select networks with their flags. Without any network flag every enabled
network is refreshed. A network disabled in the config is refreshed only
when selected explicitly. Retired networks have no flag.`,
		Example: `  mirrorlist refresh
  mirrorlist refresh --gnu
  mirrorlist refresh --freebsd --kde --output-dir /srv/mirrors`,
		RunE: refreshRun,
	}

	for _, n := range sites.Builtin() {
		if n.Retired {
			continue
		}
		cmd.Flags().Bool(string(n.Kind), false, "refresh the "+n.Name+" mirror list")
	}

	return cmd
}

// selectedNetworkNames returns the names of networks whose flag was set
func selectedNetworkNames(flags *pflag.FlagSet) []string {
	var names []string
	for _, n := range sites.Builtin() {
		if n.Retired {
			continue
		}
		on, err := flags.GetBool(string(n.Kind))
		if err == nil && on {
			names = append(names, n.Name)
		}
	}
	return names
}

func refreshRun(cmd *cobra.Command, args []string) error {
	log := slog.Default()

	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}
	if globalEngine == nil {
		return fmt.Errorf("refresh engine not initialized")
	}

	networks, err := engine.Select(engine.Networks(globalCfg), selectedNetworkNames(cmd.Flags()))
	if err != nil {
		return err
	}
	if len(networks) == 0 {
		log.Warn("no networks to refresh")
		return nil
	}

	log.Info("refresh operation", "networks", len(networks), "output_dir", globalCfg.OutputDir)

	reports, runErr := globalEngine.RefreshAll(cmd.Context(), networks)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-12s %8s %8s %10s  %s\n", "Network", "Mirrors", "Dropped", "Duration", "Result")
	fmt.Fprintln(out, strings.Repeat("-", 70))
	for _, r := range reports {
		result := r.Path
		if r.Err != nil {
			result = "ERROR: " + r.Err.Error()
		}
		fmt.Fprintf(out, "%-12s %8d %8d %10s  %s\n",
			r.Network, r.Mirrors, r.Dropped, formatDuration(r.EndTime.Sub(r.StartTime)), result)
	}

	return runErr
}

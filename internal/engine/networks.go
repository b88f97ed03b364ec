package engine

import (
	"strings"

	"github.com/BadgerOps/mirrorlist/internal/config"
	"github.com/BadgerOps/mirrorlist/internal/sites"
	"github.com/morikuni/failure/v2"
	"github.com/samber/lo"
)

// Networks returns the built-in network table with the config's per-network
// overrides applied.
func Networks(cfg *config.Config) []sites.Network {
	networks := sites.Builtin()
	if cfg == nil {
		return networks
	}
	for i, n := range networks {
		override, ok := cfg.Network(n.Name)
		if !ok {
			continue
		}
		if override.ListURL != "" {
			n.ListURL = override.ListURL
		}
		if override.PrimaryURL != "" {
			n.PrimaryURL = override.PrimaryURL
		}
		if override.Enabled != nil && !n.Retired {
			n.Disabled = !*override.Enabled
		}
		networks[i] = n
	}
	return networks
}

// Select picks the networks to refresh. With no names every enabled network
// is selected; named networks are selected even when disabled in the config.
// Naming a retired network is an error.
func Select(networks []sites.Network, names []string) ([]sites.Network, error) {
	if len(names) == 0 {
		return lo.Filter(networks, func(n sites.Network, _ int) bool {
			return !n.Disabled
		}), nil
	}

	var selected []sites.Network
	seen := make(map[string]bool)
	for _, name := range names {
		n, ok := lo.Find(networks, func(n sites.Network) bool {
			return strings.EqualFold(n.Name, name)
		})
		if !ok {
			return nil, failure.New(sites.ErrUnknownNetwork,
				failure.Message("unknown network"),
				failure.Context{"name": name})
		}
		if n.Retired {
			return nil, failure.New(sites.ErrRetiredNetwork,
				failure.Message("network is retired and cannot be refreshed"),
				failure.Context{"name": n.Name})
		}
		if !seen[n.Name] {
			seen[n.Name] = true
			selected = append(selected, n)
		}
	}
	return selected, nil
}

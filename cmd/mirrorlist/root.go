package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/BadgerOps/mirrorlist/internal/config"
	"github.com/BadgerOps/mirrorlist/internal/engine"
	"github.com/BadgerOps/mirrorlist/internal/fetch"
	"github.com/BadgerOps/mirrorlist/internal/geo"
	"github.com/BadgerOps/mirrorlist/internal/mirrorlist"
	"github.com/BadgerOps/mirrorlist/internal/region"
	"github.com/BadgerOps/mirrorlist/internal/sites"
	"github.com/BadgerOps/mirrorlist/internal/store"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgPath   string
	outputDir string
	logLevel  string
	logFormat string
	globalCfg *config.Config
	logger    *slog.Logger

	// Global components
	globalStore  *store.Store
	globalGeoIP  *geo.GeoIP
	globalEngine *engine.RefreshManager
)

// initializeStore opens the history store when a db_path is configured
func initializeStore() error {
	if globalCfg.DBPath == "" {
		logger.Debug("no db_path configured, refresh history disabled")
		return nil
	}
	st, err := store.New(globalCfg.DBPath, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	globalStore = st
	return nil
}

// initializeComponents wires the fetcher, classifier, region resolver,
// parsers and writer into the refresh engine
func initializeComponents() error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}

	table, err := region.Load(globalCfg.RegionTable)
	if err != nil {
		return err
	}
	resolver := region.NewResolver(table)
	logger.Debug("region table loaded", "path", globalCfg.RegionTable, "codes", resolver.Len())

	var lookup geo.CountryLookup
	if globalCfg.GeoIPDB != "" {
		g, err := geo.OpenGeoIP(globalCfg.GeoIPDB, logger)
		if err != nil {
			return err
		}
		globalGeoIP = g
		lookup = g
	} else {
		logger.Warn("no geoip_db configured, classifying by hostname only")
	}

	client := fetch.New(fetch.Options{
		Timeout:      globalCfg.Fetch.Timeout,
		UserAgent:    globalCfg.Fetch.UserAgent,
		MaxBodyBytes: globalCfg.Fetch.MaxBodyBytes,
		RateLimit:    globalCfg.Fetch.RateLimit,
		Burst:        globalCfg.Fetch.Burst,
		TempDir:      globalCfg.Fetch.TempDir,
		Debug:        globalCfg.Fetch.Debug,
	}, logger)

	parser := sites.NewParser(client, globalCfg.Probe.Workers, logger)
	assembler := mirrorlist.NewAssembler(client, parser, geo.NewClassifier(lookup), resolver, globalCfg.Probe.Workers, logger)
	writer := mirrorlist.NewWriter(globalCfg.OutputDir)

	globalEngine = engine.NewRefreshManager(assembler, writer, globalStore, globalCfg.Refresh.ParallelNetworks, logger)

	logger.Debug("components initialized")
	return nil
}

// needsEngine reports whether a command runs refreshes
func needsEngine(cmdName string) bool {
	return cmdName == "refresh"
}

// shouldSkipComponentInit checks if a command should skip component initialization
func shouldSkipComponentInit(cmdName string) bool {
	skipInitCmds := map[string]bool{
		"help":    true,
		"version": true,
		"config":  true,
		"show":    true,
	}
	return skipInitCmds[cmdName]
}

// closeComponents releases the store and geo-IP database
func closeComponents() {
	if globalStore != nil {
		if err := globalStore.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
		globalStore = nil
	}
	if globalGeoIP != nil {
		if err := globalGeoIP.Close(); err != nil {
			logger.Error("failed to close geoip database", "error", err)
		}
		globalGeoIP = nil
	}
}

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirrorlist",
		Short: "Generate per-region mirror lists for software distribution networks",
		Long: `mirrorlist scrapes the published mirror lists of software distribution
networks (Apache, CPAN, CTAN, Debian, FreeBSD, Gimp, GNOME, GNU, KDE,
SourceForge), probes every candidate mirror, classifies it by country and
writes one region-keyed mirror list file per network.`,
		Example: `  mirrorlist refresh
  mirrorlist refresh --gnu --debian
  mirrorlist networks
  mirrorlist history --network GNU --limit 5`,
		Version:      "0.1.0",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Initialize logging
			setupLogging()

			// Skip config loading for commands that don't need it
			if shouldSkipConfig(cmd.Name()) {
				return nil
			}

			if cfgPath == "" {
				var err error
				cfgPath, err = config.FindConfigFile()
				if err != nil {
					logger.Warn("config file not found, using defaults", "error", err)
				}
			}

			if cfgPath != "" {
				var err error
				globalCfg, err = config.Load(cfgPath)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
			} else {
				globalCfg = config.DefaultConfig()
			}

			// Override with command-line flags if provided
			if outputDir != "" {
				globalCfg.OutputDir = outputDir
			}

			logger.Debug("config loaded", "path", cfgPath, "output_dir", globalCfg.OutputDir)

			if shouldSkipComponentInit(cmd.Name()) {
				return nil
			}
			if err := initializeStore(); err != nil {
				return err
			}
			if needsEngine(cmd.Name()) {
				if err := initializeComponents(); err != nil {
					return fmt.Errorf("failed to initialize components: %w", err)
				}
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			closeComponents()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (auto-discovered if not specified)")
	cmd.PersistentFlags().StringVar(&outputDir, "output-dir", "", "override output directory")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text or json)")

	cmd.AddCommand(
		newRefreshCmd(),
		newNetworksCmd(),
		newHistoryCmd(),
		newMirrorsCmd(),
		newConfigCmd(),
	)

	return cmd
}

// setupLogging initializes the slog logger based on flags
func setupLogging() {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if strings.ToLower(logFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// shouldSkipConfig checks if a command should skip config loading
func shouldSkipConfig(cmdName string) bool {
	skipConfigCmds := map[string]bool{
		"help":    true,
		"version": true,
	}
	return skipConfigCmds[cmdName]
}

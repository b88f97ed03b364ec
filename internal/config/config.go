package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration
type Config struct {
	OutputDir   string                   `yaml:"output_dir" validate:"required"`
	RegionTable string                   `yaml:"region_table" validate:"required"`
	GeoIPDB     string                   `yaml:"geoip_db"`
	DBPath      string                   `yaml:"db_path"`
	Fetch       FetchConfig              `yaml:"fetch"`
	Probe       ProbeConfig              `yaml:"probe"`
	Refresh     RefreshConfig            `yaml:"refresh"`
	Networks    map[string]NetworkConfig `yaml:"networks" validate:"dive"`
}

// FetchConfig holds content fetcher settings
type FetchConfig struct {
	Timeout      time.Duration `yaml:"timeout" validate:"gt=0"`
	UserAgent    string        `yaml:"user_agent" validate:"required"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" validate:"gt=0"`
	RateLimit    float64       `yaml:"rate_limit" validate:"gte=0"`
	Burst        int           `yaml:"burst" validate:"gte=0"`
	TempDir      string        `yaml:"temp_dir"`
	Debug        bool          `yaml:"debug"`
}

// ProbeConfig holds candidate validation settings
type ProbeConfig struct {
	Workers int `yaml:"workers" validate:"min=1,max=256"`
}

// RefreshConfig holds settings for a refresh run across networks
type RefreshConfig struct {
	ParallelNetworks int `yaml:"parallel_networks" validate:"min=1,max=32"`
}

// NetworkConfig overrides a built-in network descriptor. Empty URLs keep the
// built-in value; a nil Enabled keeps the built-in default.
type NetworkConfig struct {
	Enabled    *bool  `yaml:"enabled,omitempty"`
	ListURL    string `yaml:"list_url,omitempty" validate:"omitempty,url"`
	PrimaryURL string `yaml:"primary_url,omitempty" validate:"omitempty,url"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		OutputDir:   "/var/lib/mirrorlist",
		RegionTable: "/etc/mirrorlist/regions.conf",
		GeoIPDB:     "",
		DBPath:      "",
		Fetch: FetchConfig{
			Timeout:      30 * time.Second,
			UserAgent:    "mirrorlist/1.0",
			MaxBodyBytes: 16 * 1024 * 1024,
			RateLimit:    0,
			Burst:        0,
		},
		Probe: ProbeConfig{
			Workers: 8,
		},
		Refresh: RefreshConfig{
			ParallelNetworks: 1,
		},
		Networks: make(map[string]NetworkConfig),
	}
}

// Load reads a config file from the given path and validates it
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if cfg.Networks == nil {
		cfg.Networks = make(map[string]NetworkConfig)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks field constraints declared on the config structs.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() (string, error) {
	searchPaths := []string{
		"mirrorlist.yaml",
		"/etc/mirrorlist/mirrorlist.yaml",
	}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(home, ".config", "mirrorlist", "mirrorlist.yaml"),
		)
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", searchPaths)
}

// Network returns the override block for a network name, matched case-insensitively.
func (c *Config) Network(name string) (NetworkConfig, bool) {
	for k, nc := range c.Networks {
		if strings.EqualFold(k, name) {
			return nc, true
		}
	}
	return NetworkConfig{}, false
}

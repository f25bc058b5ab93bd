// Package config handles runtime configuration loading from YAML files and
// environment variables.
// Configuration precedence: CLI flags > environment variables > config file >
// embedded config > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a wrapper around time.Duration that supports YAML unmarshaling
// from human-readable strings like "15m", "6h", "30s".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		parsed, err := time.ParseDuration(value.Value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value.Value, err)
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("unsupported duration format: %v", value.Kind)
	}
}

// MarshalYAML implements the yaml.Marshaler interface for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds all agent runtime configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Usage     UsageConfig     `yaml:"usage"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Commands  CommandsConfig  `yaml:"commands"`
	Logging   LoggingConfig   `yaml:"logging"`

	// DataDir overrides the application-data directory holding config.json
	// and usage.json. Empty means the platform default.
	DataDir string `yaml:"data_dir"`
}

// ServerConfig holds orchestration service connection settings.
// URL, when set, takes precedence over ApiUrl in the settings store.
type ServerConfig struct {
	URL            string   `yaml:"url"`
	RequestTimeout Duration `yaml:"request_timeout"`
}

// ScheduleConfig holds the intervals of the three periodic loops.
type ScheduleConfig struct {
	DiscoveryInterval Duration `yaml:"discovery_interval"`
	MetricsInterval   Duration `yaml:"metrics_interval"`
	SyncInterval      Duration `yaml:"sync_interval"`
}

// UsageConfig controls application usage and file access tracking.
type UsageConfig struct {
	// Exclude holds glob patterns matched against process names.
	Exclude []string `yaml:"exclude"`

	// FileRoots are directories scanned for recently accessed files.
	FileRoots    []string `yaml:"file_roots"`
	FileMaxDepth int      `yaml:"file_max_depth"`
	FileMaxItems int      `yaml:"file_max_items"`
	StatePath    string   `yaml:"state_path"`
}

// DiscoveryConfig controls optional discovery sub-collections.
type DiscoveryConfig struct {
	// RegistryKeys lists HKLM/HKCU key paths whose values are inventoried.
	RegistryKeys []string `yaml:"registry_keys"`

	// CertificateDirs overrides the PEM directories scanned on Unix, keyed
	// by "<location>/<store>" (e.g. "LocalMachine/Root").
	CertificateDirs map[string]string `yaml:"certificate_dirs"`
}

// CommandsConfig paces command execution within a sync tick.
type CommandsConfig struct {
	RatePerSecond float64  `yaml:"rate_per_second"`
	Burst         int      `yaml:"burst"`
	ExecTimeout   Duration `yaml:"exec_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			RequestTimeout: Duration{30 * time.Second},
		},
		Schedule: ScheduleConfig{
			DiscoveryInterval: Duration{6 * time.Hour},
			MetricsInterval:   Duration{15 * time.Minute},
			SyncInterval:      Duration{5 * time.Minute},
		},
		Usage: UsageConfig{
			FileMaxDepth: 3,
			FileMaxItems: 200,
		},
		Commands: CommandsConfig{
			RatePerSecond: 1,
			Burst:         3,
			ExecTimeout:   Duration{5 * time.Minute},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// CLIOverrides holds values from command-line flags.
// Empty values are treated as "not set" and skipped.
type CLIOverrides struct {
	URL      string
	DataDir  string
	LogLevel string
}

// Locate searches standard config file paths and returns the first one found.
// Returns empty string if no config file exists.
func Locate() string {
	for _, p := range configSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// LoadLayered loads configuration with the full precedence chain:
// CLI flags > env vars > external YAML file > embedded bytes > defaults.
//
// An optional configPath argument controls external-file discovery:
//   - omitted        → auto-discover via Locate()
//   - explicit value  → use that path ("" means no external file)
func LoadLayered(cli CLIOverrides, embedded []byte, configPath ...string) (*Config, error) {
	cfg := DefaultConfig()

	if len(embedded) > 0 {
		if err := yaml.Unmarshal(embedded, cfg); err != nil {
			return nil, fmt.Errorf("parsing embedded config: %w", err)
		}
	}

	var filePath string
	if len(configPath) > 0 {
		filePath = configPath[0]
	} else {
		filePath = Locate()
	}
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", filePath, err)
			}
		}
	}

	applyEnvOverrides(cfg)

	if cli.URL != "" {
		cfg.Server.URL = cli.URL
	}
	if cli.DataDir != "" {
		cfg.DataDir = cli.DataDir
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}

	return cfg, nil
}

// Marshal renders the config as YAML in the file format LoadLayered reads.
func Marshal(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return data, nil
}

// WriteConfig serializes the config to a YAML file at the given path.
// Creates parent directories if needed.
func WriteConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0640)
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if url := os.Getenv("PCS_SERVER_URL"); url != "" {
		cfg.Server.URL = url
	}
	if dir := os.Getenv("PCS_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}
	if level := os.Getenv("PCS_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.URL != "" &&
		!strings.HasPrefix(c.Server.URL, "https://") &&
		!strings.HasPrefix(c.Server.URL, "http://") {
		return fmt.Errorf("server URL must be http(s) (got: %s)", c.Server.URL)
	}
	if c.Server.RequestTimeout.Duration <= 0 {
		return fmt.Errorf("server.request_timeout must be positive")
	}
	intervals := map[string]time.Duration{
		"schedule.discovery_interval": c.Schedule.DiscoveryInterval.Duration,
		"schedule.metrics_interval":   c.Schedule.MetricsInterval.Duration,
		"schedule.sync_interval":      c.Schedule.SyncInterval.Duration,
	}
	for name, d := range intervals {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	if c.Commands.RatePerSecond <= 0 || c.Commands.Burst <= 0 {
		return fmt.Errorf("commands.rate_per_second and commands.burst must be positive")
	}
	return nil
}

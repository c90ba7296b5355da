package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Omnidata OmnidataConfig `yaml:"omnidata"`
	Refresh  RefreshConfig  `yaml:"refresh"`
	Source   SourceConfig   `yaml:"source"`
	Fallback FallbackConfig `yaml:"fallback"`
	Storage  StorageConfig  `yaml:"storage"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type OmnidataConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type RefreshConfig struct {
	Workers    int      `yaml:"workers"`
	QueueSize  int      `yaml:"queue_size"`
	Interval   Duration `yaml:"interval"`
	WindowSize int      `yaml:"window_size"`
}

type SourceConfig struct {
	BaseURL   string            `yaml:"base_url"`
	Timeout   Duration          `yaml:"timeout"`
	SymbolIDs map[string]string `yaml:"symbol_ids"`
}

// Duration wraps time.Duration so yaml values like "5s" parse directly.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type FallbackConfig struct {
	Enabled  bool    `yaml:"enabled"`
	DriftPct float64 `yaml:"drift_pct"`
	SeedMin  float64 `yaml:"seed_min"`
	SeedMax  float64 `yaml:"seed_max"`
}

type StorageConfig struct {
	DataDir   string `yaml:"data_dir"`
	DataFile  string `yaml:"data_file"`
	HistoryDB string `yaml:"history_db"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// DefaultSymbolIDs maps portfolio symbols to the price API's provider ids.
// Symbols outside this table are never fetched over the network.
var DefaultSymbolIDs = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"DOGE": "dogecoin",
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Refresh: RefreshConfig{
			Workers:    3,
			QueueSize:  64,
			WindowSize: 5,
		},
		Source: SourceConfig{
			Timeout: Duration(5 * time.Second),
		},
		Fallback: FallbackConfig{
			Enabled:  true,
			DriftPct: 0.05,
			SeedMin:  90,
			SeedMax:  210,
		},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if len(config.Source.SymbolIDs) == 0 {
		config.Source.SymbolIDs = DefaultSymbolIDs
	}

	// Override settings from environment variables if available
	if v := os.Getenv("PRICE_API_URL"); v != "" {
		config.Source.BaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("OMNIDATA_DATA_DIR"); v != "" {
		config.Storage.DataDir = strings.TrimSpace(v)
	}

	config.Storage.DataDir = strings.TrimSpace(config.Storage.DataDir)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Omnidata.Name == "" {
		return fmt.Errorf("omnidata.name is required")
	}

	if cfg.Omnidata.Version == "" {
		return fmt.Errorf("omnidata.version is required")
	}

	if cfg.Refresh.Workers <= 0 {
		return fmt.Errorf("refresh.workers must be greater than 0")
	}
	if cfg.Refresh.QueueSize <= 0 {
		return fmt.Errorf("refresh.queue_size must be greater than 0")
	}
	if cfg.Refresh.WindowSize <= 0 {
		return fmt.Errorf("refresh.window_size must be greater than 0")
	}

	if cfg.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url is required")
	}
	if cfg.Source.Timeout <= 0 {
		return fmt.Errorf("source.timeout must be greater than 0")
	}

	if cfg.Fallback.Enabled {
		if cfg.Fallback.DriftPct <= 0 || cfg.Fallback.DriftPct >= 1 {
			return fmt.Errorf("fallback.drift_pct must be between 0 and 1")
		}
		if cfg.Fallback.SeedMin <= 0 || cfg.Fallback.SeedMax <= cfg.Fallback.SeedMin {
			return fmt.Errorf("fallback.seed_min and fallback.seed_max must define a positive range")
		}
	}

	if cfg.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	if cfg.Storage.DataFile == "" {
		return fmt.Errorf("storage.data_file is required")
	}

	return nil
}

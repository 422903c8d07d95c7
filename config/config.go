// Package config loads the YAML run configuration: which accounts to scan,
// which resource kinds to cover, and the knobs for concurrency, logging and
// telemetry.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yairfalse/aerographer/types"
)

// Config is the root configuration structure.
type Config struct {
	Accounts      []types.Account `yaml:"accounts"`
	ResourceTypes []string        `yaml:"resource_types"`
	SkipTypes     []string        `yaml:"skip_types"`
	// Per-kind overrides merged over the schema's declared scan
	// parameters, keyed by "service.kind".
	ScanParameters map[string]map[string]any `yaml:"scan_parameters"`
	Scan           ScanConfig                `yaml:"scan"`
	Log            LogConfig                 `yaml:"log"`
	OTEL           OTELConfig                `yaml:"otel"`
	Metrics        MetricsConfig             `yaml:"metrics"`
	PolicyDir      string                    `yaml:"policy_dir"`
}

// ScanConfig holds orchestrator settings.
type ScanConfig struct {
	MaxInFlight int    `yaml:"max_in_flight"`
	DeadlineStr string `yaml:"deadline"`
	Deadline    time.Duration `yaml:"-"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// OTELConfig holds OpenTelemetry export settings.
type OTELConfig struct {
	Endpoint    string       `yaml:"endpoint"`
	Insecure    bool         `yaml:"insecure"`
	ServiceName string       `yaml:"service_name"`
	Traces      TracesConfig `yaml:"traces"`
}

// TracesConfig holds tracing settings.
type TracesConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sample_rate"`
}

// MetricsConfig holds the local Prometheus scrape endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes config bytes, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := parseDeadline(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "aerographer"
	}
	if cfg.OTEL.Endpoint == "" {
		cfg.OTEL.Endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Scan.MaxInFlight == 0 {
		cfg.Scan.MaxInFlight = 16
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
}

func parseDeadline(cfg *Config) error {
	if cfg.Scan.DeadlineStr == "" {
		return nil
	}
	d, err := time.ParseDuration(cfg.Scan.DeadlineStr)
	if err != nil {
		return fmt.Errorf("parse deadline %q: %w", cfg.Scan.DeadlineStr, err)
	}
	cfg.Scan.Deadline = d
	return nil
}

// Validate checks the configuration is valid.
func (c *Config) Validate() error {
	if len(c.Accounts) == 0 {
		return fmt.Errorf("accounts: at least one account required")
	}
	for i, acct := range c.Accounts {
		if acct.Profile == "" {
			return fmt.Errorf("accounts[%d]: missing profile", i)
		}
		if len(acct.Regions) == 0 {
			return fmt.Errorf("accounts[%d] (%s): at least one region required", i, acct.Profile)
		}
	}
	if c.Scan.MaxInFlight < 0 {
		return fmt.Errorf("scan: max_in_flight must not be negative (got %d)", c.Scan.MaxInFlight)
	}
	if c.OTEL.Traces.SampleRate < 0.0 || c.OTEL.Traces.SampleRate > 1.0 {
		return fmt.Errorf("otel: traces.sample_rate must be between 0.0 and 1.0 (got %v)", c.OTEL.Traces.SampleRate)
	}
	return nil
}

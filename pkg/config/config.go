// Package config loads the client configuration from YAML with
// environment fallbacks for credentials.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses YAML duration strings like "30s" or "2m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config represents the application configuration
type Config struct {
	// Server connection
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`

	// Request behavior
	Timeout           Duration `yaml:"timeout"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	Burst             int      `yaml:"burst"`

	// History persistence
	History HistoryConfig `yaml:"history"`

	// Observability
	Observability ObservabilityConfig `yaml:"observability"`
}

// HistoryConfig selects and configures the history backend.
type HistoryConfig struct {
	// Backend is one of: memory, file, redis.
	Backend string `yaml:"backend"`
	// Dir is the storage directory for the file backend.
	Dir string `yaml:"dir"`
	// Redis configures the redis backend.
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds redis connection settings for the history backend.
type RedisConfig struct {
	Addr     string   `yaml:"addr"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
	TTL      Duration `yaml:"ttl"`
}

// ObservabilityConfig controls the local metrics endpoint.
type ObservabilityConfig struct {
	EnableMetrics bool `yaml:"enable_metrics"`
	MetricsPort   int  `yaml:"metrics_port"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		BaseURL:           "http://localhost:8000",
		Timeout:           Duration(120 * time.Second),
		RequestsPerSecond: 5,
		Burst:             5,
		History: HistoryConfig{
			Backend: "memory",
		},
		Observability: ObservabilityConfig{
			MetricsPort: 9091,
		},
	}
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

// FromEnv builds a configuration from defaults and environment only.
func FromEnv() *Config {
	cfg := Default()
	cfg.applyEnv()
	return cfg
}

// applyEnv overlays environment settings. NALAI_BASE_URL wins over the
// file so one deployment artifact can target several servers.
func (c *Config) applyEnv() {
	if c.APIKey == "" {
		c.APIKey = os.Getenv("NALAI_API_KEY")
	}
	if v := os.Getenv("NALAI_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if c.History.Redis.Addr == "" {
		c.History.Redis.Addr = os.Getenv("NALAI_REDIS_ADDR")
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	switch c.History.Backend {
	case "", "memory":
	case "file":
		if c.History.Dir == "" {
			return fmt.Errorf("history.dir is required for the file backend")
		}
	case "redis":
		if c.History.Redis.Addr == "" {
			return fmt.Errorf("history.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown history backend %q", c.History.Backend)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must not be negative")
	}
	return nil
}

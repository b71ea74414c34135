package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mesmerverse/vettid-dev/loginkit/stash"
)

// Config holds the login server configuration
type Config struct {
	// ListenAddr is the HTTP listen address
	ListenAddr string `yaml:"listen_addr"`

	// APIKey, when set, is required on every /v2 request
	APIKey string `yaml:"api_key"`

	LogLevel string `yaml:"log_level"`

	// ShutdownTimeout bounds graceful shutdown, in seconds
	ShutdownTimeout int `yaml:"shutdown_timeout_seconds"`

	Store StoreConfig `yaml:"store"`
}

// StoreConfig selects where login records live
type StoreConfig struct {
	// Backend is "sqlite" or "dynamodb"
	Backend string `yaml:"backend"`

	// SQLite settings
	Path string `yaml:"path"`
	// DataKey seals SQLite records at rest
	DataKey stash.KeyConfig `yaml:"data_key"`

	// DynamoDB settings
	Table  string `yaml:"table"`
	Region string `yaml:"region"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings needed by the selected backend
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite backend")
		}
	case "dynamodb":
		if c.Store.Table == "" {
			return fmt.Errorf("store.table is required for the dynamodb backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	return nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:      ":8080",
		LogLevel:        "info",
		ShutdownTimeout: 10,
		Store: StoreConfig{
			Backend: "sqlite",
			Path:    "/var/lib/loginkit/logins.db",
			Region:  "us-east-1",
		},
	}
}

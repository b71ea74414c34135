package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/mesmerverse/vettid-dev/loginkit/authclient"
	"github.com/mesmerverse/vettid-dev/loginkit/notify"
	"github.com/mesmerverse/vettid-dev/loginkit/stash"
)

// Config holds the login tool configuration
type Config struct {
	Server authclient.Config `yaml:"server"`
	Stash  StashConfig       `yaml:"stash"`

	// NATS is optional; events are only published when URL is set
	NATS notify.Config `yaml:"nats"`

	LogLevel string `yaml:"log_level"`

	// Harden enables core dump and swap protection for the process
	Harden bool `yaml:"harden"`
}

// StashConfig selects where the device stash is kept
type StashConfig struct {
	// Backend is "file", "bolt" or "s3"
	Backend string `yaml:"backend"`
	// Path is the directory for "file" or the database file for "bolt"
	Path string `yaml:"path"`
	// Key names the stash document
	Key string `yaml:"key"`

	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`

	// Encryption seals the stash at rest when a source is set
	Encryption stash.KeyConfig `yaml:"encryption"`
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

	switch cfg.Stash.Backend {
	case "file", "bolt":
		if cfg.Stash.Path == "" {
			return nil, fmt.Errorf("stash.path is required for the %s backend", cfg.Stash.Backend)
		}
	case "s3":
		if cfg.Stash.Bucket == "" {
			return nil, fmt.Errorf("stash.bucket is required for the s3 backend")
		}
	default:
		return nil, fmt.Errorf("unknown stash backend %q", cfg.Stash.Backend)
	}
	return cfg, nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	dir := ".loginkit"
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, ".loginkit")
	}
	return &Config{
		Server: authclient.DefaultConfig(),
		Stash: StashConfig{
			Backend: "file",
			Path:    dir,
			Key:     stash.DefaultKey,
			Region:  "us-east-1",
		},
		NATS: notify.Config{
			Prefix:        notify.DefaultPrefix,
			ReconnectWait: 2000,
			MaxReconnects: -1,
		},
		LogLevel: "warn",
	}
}

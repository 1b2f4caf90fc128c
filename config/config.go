// Package config loads the bridge's runtime settings from a YAML file:
// read the whole file, unmarshal with yaml.v3, then backfill zero-valued
// fields with defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the settings for a bridgedemo-style process: which
// transport adapter to run, its address, and how verbose the session
// logger should be.
type Config struct {
	AppName string `yaml:"app_name"`
	Debug   bool   `yaml:"debug"`

	Transport TransportConfig `yaml:"transport"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// TransportConfig selects and configures the transport.Endpoint adapter.
type TransportConfig struct {
	// Kind is "tcp", "tcp-msgpack", or "inmem". "inmem" ignores Address
	// and is mainly useful for local demos and tests.
	Kind    string `yaml:"kind"`
	Address string `yaml:"address"`
}

// LoggingConfig controls the session telemetry logger.
type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	Quiet bool   `yaml:"quiet"`
}

// Load reads and parses filename, applying defaults for any field left
// unset in the file.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.AppName == "" {
		cfg.AppName = "bridgedemo"
	}
	if cfg.Transport.Kind == "" {
		cfg.Transport.Kind = "inmem"
	}
	if (cfg.Transport.Kind == "tcp" || cfg.Transport.Kind == "tcp-msgpack") && cfg.Transport.Address == "" {
		cfg.Transport.Address = ":7420"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "./logs"
	}
}

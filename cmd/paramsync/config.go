package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the application configuration, loaded from YAML.
type Config struct {
	Persistence PersistenceConfig `yaml:"persistence"`
	Inputs      InputsConfig      `yaml:"inputs"`
	Metrics     MetricsConfig     `yaml:"metrics"`

	// UpdateInterval is the reconciliation cadence.
	UpdateInterval time.Duration `yaml:"update_interval"`
}

// PersistenceConfig selects and configures the document backend.
type PersistenceConfig struct {
	// Backend is "file" or "nats".
	Backend string `yaml:"backend"`
	// Path is the parameter file location for the file backend.
	Path string `yaml:"path"`
	NATS NATSConfig `yaml:"nats"`
}

// NATSConfig configures the NATS key-value backend.
type NATSConfig struct {
	URL    string `yaml:"url"`
	Bucket string `yaml:"bucket"`
	Key    string `yaml:"key"`
}

// InputsConfig configures the control-surface sources.
type InputsConfig struct {
	UDP       UDPInputConfig       `yaml:"udp"`
	WebSocket WebSocketInputConfig `yaml:"websocket"`
}

// UDPInputConfig configures the UDP source.
type UDPInputConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Port    int    `yaml:"port"`
}

// WebSocketInputConfig configures the WebSocket source.
type WebSocketInputConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// defaultConfig returns the configuration used when no file is given.
func defaultConfig() *Config {
	return &Config{
		Persistence: PersistenceConfig{
			Backend: "file",
			Path:    "params.json",
			NATS: NATSConfig{
				URL:    "nats://localhost:4222",
				Bucket: "paramsync",
				Key:    "params",
			},
		},
		Inputs: InputsConfig{
			UDP:       UDPInputConfig{Enabled: true, Bind: "0.0.0.0", Port: 9800},
			WebSocket: WebSocketInputConfig{Enabled: false, Bind: "0.0.0.0", Port: 9801, Path: "/events"},
		},
		Metrics:        MetricsConfig{Enabled: true, Port: 9090, Path: "/metrics"},
		UpdateInterval: 33 * time.Millisecond,
	}
}

// loadConfig reads and validates the configuration. An empty path yields
// the defaults.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	switch c.Persistence.Backend {
	case "file":
		if c.Persistence.Path == "" {
			return fmt.Errorf("persistence.path is required for the file backend")
		}
	case "nats":
		if c.Persistence.NATS.URL == "" {
			return fmt.Errorf("persistence.nats.url is required for the nats backend")
		}
		if c.Persistence.NATS.Bucket == "" || c.Persistence.NATS.Key == "" {
			return fmt.Errorf("persistence.nats.bucket and key are required for the nats backend")
		}
	default:
		return fmt.Errorf("unknown persistence backend %q", c.Persistence.Backend)
	}

	if c.UpdateInterval <= 0 {
		return fmt.Errorf("update_interval must be positive, got %v", c.UpdateInterval)
	}
	if c.Metrics.Enabled && (c.Metrics.Port < 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port %d", c.Metrics.Port)
	}
	if !c.Inputs.UDP.Enabled && !c.Inputs.WebSocket.Enabled {
		return fmt.Errorf("at least one input source must be enabled")
	}
	return nil
}

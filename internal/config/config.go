// Package config holds the daemon configuration: defaults, YAML file
// loading, and live reload of the values that are safe to change at runtime.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "20m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
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

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the daemon configuration.
type Config struct {
	Host          string   `yaml:"host"`
	Port          int      `yaml:"port"`
	Model         string   `yaml:"model"`
	MaxTokens     int      `yaml:"max_tokens"`
	IdleTimeout   Duration `yaml:"idle_timeout"`
	SweepInterval Duration `yaml:"sweep_interval"`
	LogLevel      string   `yaml:"log_level"`
}

// Default returns the built-in configuration: local loopback daemon, 20
// minute idle timeout, 5 minute reaper sweep.
func Default() Config {
	return Config{
		Host:          "127.0.0.1",
		Port:          8000,
		Model:         "claude-sonnet-4-5",
		MaxTokens:     8192,
		IdleTimeout:   Duration(20 * time.Minute),
		SweepInterval: Duration(5 * time.Minute),
		LogLevel:      "info",
	}
}

// Load reads path over the defaults. An empty path returns the defaults
// unchanged; a missing or malformed file is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field ranges.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive")
	}
	return nil
}

// Addr returns the daemon listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Endpoint returns the daemon's MCP endpoint URL.
func (c Config) Endpoint() string {
	return fmt.Sprintf("http://%s:%d/mcp", c.Host, c.Port)
}

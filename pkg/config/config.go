// Package config loads and saves the bulwark configuration profile.
// The marker tokens live here rather than in flags because they must be
// identical between generation and repair of the same ecc file and
// cannot be recovered from a corrupted one.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/bulwarkecc/bulwark/pkg/eccfile"
	"github.com/bulwarkecc/bulwark/pkg/hasher"
	"github.com/bulwarkecc/bulwark/pkg/rs"
)

// Config represents the bulwark configuration
type Config struct {
	Codec   eccfile.Params `yaml:"codec"`
	Markers Markers        `yaml:"markers"`
	Logging Logging        `yaml:"logging"`

	// MetricsListen is an optional host:port for the Prometheus
	// endpoint; empty disables it.
	MetricsListen string `yaml:"metrics_listen"`
}

// Markers holds the token grammar as hex strings, since the raw tokens
// are not valid UTF-8.
type Markers struct {
	EntryMarker string `yaml:"entry_marker"`
	FieldDelim  string `yaml:"field_delim"`
}

// Logging contains logging configuration
type Logging struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Codec: eccfile.Params{
			Profile:     rs.ProfileBase3,
			BlockSize:   255,
			HashAlgo:    hasher.MD5,
			RateS1:      0.2,
			Replication: 1,
		},
		Markers: Markers{
			EntryMarker: hex.EncodeToString(eccfile.DefaultEntryMarker),
			FieldDelim:  hex.EncodeToString(eccfile.DefaultFieldDelim),
		},
		Logging: Logging{
			Level: "info",
		},
	}
}

// Format decodes the marker tokens into the container token grammar.
func (c *Config) Format() (eccfile.Format, error) {
	marker, err := hex.DecodeString(c.Markers.EntryMarker)
	if err != nil {
		return eccfile.Format{}, fmt.Errorf("invalid entry_marker: %w", err)
	}
	delim, err := hex.DecodeString(c.Markers.FieldDelim)
	if err != nil {
		return eccfile.Format{}, fmt.Errorf("invalid field_delim: %w", err)
	}
	f := eccfile.Format{EntryMarker: marker, FieldDelim: delim}
	if err := f.Validate(); err != nil {
		return eccfile.Format{}, err
	}
	return f, nil
}

// Validate checks the whole profile.
func (c *Config) Validate() error {
	if err := c.Codec.Validate(); err != nil {
		return err
	}
	_, err := c.Format()
	return err
}

// LoadConfig loads configuration from the specified path
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig saves the configuration to the specified path
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./bulwark.yaml"
	}
	return filepath.Join(homeDir, ".config", "bulwark", "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}

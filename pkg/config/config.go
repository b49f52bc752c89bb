// Package config loads and saves the promptdeck configuration file.
// The file lives at ~/.promptdeck/config.yaml unless an explicit path is
// given.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full promptdeck configuration.
type Config struct {
	// SourcesDir holds the raw preset export files. Group documents and
	// activation snapshots are persisted here as well, beside the
	// exports, so re-extraction cannot erase them.
	SourcesDir string `yaml:"sources_dir"`

	// OutputDir holds the derived fragment tree. Empty means
	// <sources_dir>/extracted.
	OutputDir string `yaml:"output_dir,omitempty"`

	// SourcePattern selects export files inside SourcesDir.
	SourcePattern string `yaml:"source_pattern,omitempty"`

	// SnapshotEnabled turns the durable activation snapshot on.
	SnapshotEnabled bool `yaml:"snapshot_enabled"`

	// PendingTimeoutSeconds bounds how long a two-phase operation may wait
	// for its completing input.
	PendingTimeoutSeconds int `yaml:"pending_timeout_seconds,omitempty"`

	LLM LLMConfig `yaml:"llm,omitempty"`
}

// LLMConfig configures the optional outbound provider.
type LLMConfig struct {
	Provider string `yaml:"provider,omitempty"`
	Model    string `yaml:"model,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
}

// DefaultConfig returns the configuration used when no file exists yet.
func DefaultConfig() *Config {
	return &Config{
		SourcesDir:            "data/presets",
		SourcePattern:         "*.json",
		SnapshotEnabled:       true,
		PendingTimeoutSeconds: 60,
	}
}

// OutputPath resolves the derived-tree directory.
func (c *Config) OutputPath() string {
	if c.OutputDir != "" {
		return c.OutputDir
	}
	return filepath.Join(c.SourcesDir, "extracted")
}

// PendingTimeout resolves the two-phase input deadline.
func (c *Config) PendingTimeout() time.Duration {
	if c.PendingTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.PendingTimeoutSeconds) * time.Second
}

// ConfigDir returns the promptdeck configuration directory.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".promptdeck"), nil
}

// ConfigPath returns the default configuration file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the configuration at path; an empty path means the default
// location. A missing file yields DefaultConfig.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.SourcesDir == "" {
		cfg.SourcesDir = DefaultConfig().SourcesDir
	}
	if cfg.SourcePattern == "" {
		cfg.SourcePattern = DefaultConfig().SourcePattern
	}
	return cfg, nil
}

// Save writes the configuration to path, creating parent directories.
// An empty path means the default location.
func (c *Config) Save(path string) error {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

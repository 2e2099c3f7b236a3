package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file in the user's config directory.
func DefaultPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// Save writes the config to DefaultPath.
func (c *Config) Save() error {
	return c.SaveTo(DefaultPath())
}

// Marshal returns the config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// SaveTo writes the config to a specific path.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := c.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

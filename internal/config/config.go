// Package config provides configuration loading and structs for the rxmatch server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rxbridge/rxmatch/internal/match"
	"github.com/rxbridge/rxmatch/internal/resolve"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool            `yaml:"debug"`
	Server  ServerConfig    `yaml:"server"`
	Catalog CatalogConfig   `yaml:"catalog"`
	Storage StorageConfig   `yaml:"storage"`
	Match   *match.Config   `yaml:"match"`
	Resolve *resolve.Config `yaml:"resolve"`
	Watch   WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// CatalogConfig holds the vocabulary feed settings.
type CatalogConfig struct {
	// FeedPath is the pipe-delimited concept feed file.
	FeedPath string `yaml:"feed_path"`
	// Authority is the accepted source authority; foreign records are rejected.
	Authority string `yaml:"authority"`
}

// StorageConfig holds the audit database path.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// WatchConfig holds feed file watch settings.
type WatchConfig struct {
	// Enabled turns on automatic catalog reload when the feed file changes.
	Enabled bool `yaml:"enabled"`
	// Debounce is the settle delay before a reload fires.
	Debounce time.Duration `yaml:"debounce"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Catalog.FeedPath = expandPath(cfg.Catalog.FeedPath, configDir)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}

// Package config provides configuration loading and structs for the Alexandria server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override the file.
const (
	EnvAdminKey     = "ALEXANDRIA_ADMIN_KEY"
	EnvDatabasePath = "ALEXANDRIA_DATABASE_PATH"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Ranking RankingConfig `yaml:"ranking"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	APIKey         string        `yaml:"api_key"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig holds the database location.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// RankingConfig tunes the ranking engine.
type RankingConfig struct {
	// ProjectionWorkers bounds the goroutines used to build listings. 0 means GOMAXPROCS.
	ProjectionWorkers int `yaml:"projection_workers"`
	// BusyRetries is how often a write transaction is attempted while the database is locked.
	BusyRetries int `yaml:"busy_retries"`
}

// Load reads and parses the config file at path, applies defaults, expands paths
// and overlays environment overrides.
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
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, filepath.Dir(path))
	ApplyEnv(&cfg)

	return &cfg, nil
}

// ApplyEnv overlays values from the environment. Empty variables are ignored.
func ApplyEnv(cfg *Config) {
	if key := os.Getenv(EnvAdminKey); key != "" {
		cfg.Server.APIKey = key
	}
	if p := os.Getenv(EnvDatabasePath); p != "" {
		cfg.Storage.DatabasePath = p
	}
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

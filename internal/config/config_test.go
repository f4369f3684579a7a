package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
  api_key: "secret"
  request_timeout: 5s
storage:
  database_path: "/tmp/test.db"
ranking:
  projection_workers: 2
  busy_retries: 3
`)
	t.Setenv(EnvAdminKey, "")
	t.Setenv(EnvDatabasePath, "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Server.APIKey != "secret" {
		t.Errorf("api_key = %q, want secret", cfg.Server.APIKey)
	}
	if cfg.Server.RequestTimeout != 5*time.Second {
		t.Errorf("request_timeout = %v, want 5s", cfg.Server.RequestTimeout)
	}
	if cfg.Storage.DatabasePath != "/tmp/test.db" {
		t.Errorf("database_path = %q", cfg.Storage.DatabasePath)
	}
	if cfg.Ranking.ProjectionWorkers != 2 || cfg.Ranking.BusyRetries != 3 {
		t.Errorf("unexpected ranking config: %+v", cfg.Ranking)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if got := cfg.Server.Addr(); got != "127.0.0.1:9000" {
		t.Errorf("Addr() = %q", got)
	}
}

func TestLoad_debugTrue(t *testing.T) {
	path := writeConfig(t, "debug: true\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
storage:
  database_path: "./data/fragments.db"
`)
	t.Setenv(EnvDatabasePath, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(filepath.Dir(path), "data", "fragments.db")
	if cfg.Storage.DatabasePath != want {
		t.Errorf("database_path = %q, want %q", cfg.Storage.DatabasePath, want)
	}
}

func TestLoad_envOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  api_key: "from-file"
storage:
  database_path: "/tmp/file.db"
`)
	t.Setenv(EnvAdminKey, "from-env")
	t.Setenv(EnvDatabasePath, "/tmp/env.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.APIKey != "from-env" {
		t.Errorf("api_key = %q, want from-env", cfg.Server.APIKey)
	}
	if cfg.Storage.DatabasePath != "/tmp/env.db" {
		t.Errorf("database_path = %q, want /tmp/env.db", cfg.Storage.DatabasePath)
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_invalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [unclosed")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	ApplyDefaults(&cfg)
	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8080 {
		t.Errorf("unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.Server.RequestTimeout != 30*time.Second {
		t.Errorf("request_timeout default = %v", cfg.Server.RequestTimeout)
	}
	if cfg.Storage.DatabasePath != DefaultDatabasePath {
		t.Errorf("database_path default = %q", cfg.Storage.DatabasePath)
	}
	if cfg.Ranking.BusyRetries != 5 {
		t.Errorf("busy_retries default = %d", cfg.Ranking.BusyRetries)
	}
	if cfg.Ranking.ProjectionWorkers != 0 {
		t.Errorf("projection_workers should stay 0, got %d", cfg.Ranking.ProjectionWorkers)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := &Config{Server: ServerConfig{Host: "0.0.0.0", Port: 1234, APIKey: "k"}}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvAdminKey, "")
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Host != "0.0.0.0" || loaded.Server.Port != 1234 || loaded.Server.APIKey != "k" {
		t.Errorf("unexpected round trip: %+v", loaded.Server)
	}
}

package config

import "time"

// DefaultDatabasePath is used when storage.database_path is unset.
const DefaultDatabasePath = "/usr/local/var/alexandria/data/fragments.db"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 30 * time.Second
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = DefaultDatabasePath
	}
	if cfg.Ranking.BusyRetries == 0 {
		cfg.Ranking.BusyRetries = 5
	}
	// ProjectionWorkers stays 0: the engine picks GOMAXPROCS.
}

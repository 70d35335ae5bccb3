package config

import (
	"time"

	"github.com/rxbridge/rxmatch/internal/catalog"
	"github.com/rxbridge/rxmatch/internal/match"
	"github.com/rxbridge/rxmatch/internal/resolve"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Catalog.FeedPath == "" {
		cfg.Catalog.FeedPath = "/usr/local/var/rxmatch/data/concepts.psv"
	}
	if cfg.Catalog.Authority == "" {
		cfg.Catalog.Authority = catalog.DefaultAuthority
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/rxmatch/data/db/resolutions.db"
	}
	if cfg.Match == nil {
		cfg.Match = match.DefaultConfig()
	} else {
		cfg.Match.ApplyDefaults()
	}
	if cfg.Resolve == nil {
		cfg.Resolve = resolve.DefaultConfig()
	} else {
		cfg.Resolve.ApplyDefaults()
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 400 * time.Millisecond
	}
}

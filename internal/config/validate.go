package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks the settings a command mode depends on. Modes: check,
// ingest, serve, migrate.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "check", "ingest", "serve", "migrate":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "store.sqlite_path is required for the sqlite driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be postgres or sqlite, got %q", c.Store.Driver))
	}

	if mode == "check" || mode == "serve" {
		if c.Check.ChunkSize < 1 {
			errs = append(errs, "check.chunk_size must be > 0")
		}
		if c.Check.ChunkConcurrency < 1 || c.Check.ChunkConcurrency > 64 {
			errs = append(errs, "check.chunk_concurrency must be between 1 and 64")
		}
	}

	if mode == "ingest" || mode == "serve" {
		if c.Ingest.BatchSize < 1 {
			errs = append(errs, "ingest.batch_size must be > 0")
		}
		if c.Ingest.MaxAttempts < 1 {
			errs = append(errs, "ingest.max_attempts must be >= 1")
		}
		if c.Ingest.InitialBackoffMs < 0 {
			errs = append(errs, "ingest.initial_backoff_ms must be >= 0")
		}
		if c.Ingest.TrackingTTLDays < 1 {
			errs = append(errs, "ingest.tracking_ttl_days must be >= 1")
		}
		if c.Ingest.Source == "" {
			errs = append(errs, "ingest.source is required")
		}
	}

	if mode == "serve" {
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Monitoring.FailureRateThreshold < 0 || c.Monitoring.FailureRateThreshold > 1 {
			errs = append(errs, "monitoring.failure_rate_threshold must be between 0 and 1")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

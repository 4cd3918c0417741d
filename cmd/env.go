package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dnc-scrub/internal/changelist"
	"github.com/sells-group/dnc-scrub/internal/check"
	"github.com/sells-group/dnc-scrub/internal/fetcher"
	"github.com/sells-group/dnc-scrub/internal/ingest"
	"github.com/sells-group/dnc-scrub/internal/monitoring"
	"github.com/sells-group/dnc-scrub/internal/registry"
	"github.com/sells-group/dnc-scrub/internal/resilience"
	"github.com/sells-group/dnc-scrub/internal/scorer"
	"github.com/sells-group/dnc-scrub/internal/store"
)

// appEnv holds the stores shared by every command.
type appEnv struct {
	Jobs     store.JobStore
	Registry registry.Repository
	Metrics  *monitoring.Metrics
	Gatherer *prometheus.Registry

	migrate func(ctx context.Context) error
	close   func()
}

// Close releases the database handles.
func (e *appEnv) Close() {
	if e.close != nil {
		e.close()
	}
}

// Migrate applies the schema for the configured driver.
func (e *appEnv) Migrate(ctx context.Context) error {
	return e.migrate(ctx)
}

// initEnv opens the configured store. Postgres and SQLite each share one
// connection between the registry and the job store.
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	env := &appEnv{Metrics: monitoring.NewMetrics(reg), Gatherer: reg}

	switch cfg.Store.Driver {
	case "postgres":
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
		if err != nil {
			return nil, err
		}
		env.Jobs = st
		env.Registry = registry.NewPostgresRepository(st.Pool(), nil)
		env.migrate = st.Migrate
		env.close = func() { _ = st.Close() }
	case "sqlite":
		sqlDB, err := registry.OpenSQLite(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		repo := registry.NewSQLiteRepository(sqlDB)
		jobs := store.NewSQLite(sqlDB)
		env.Jobs = jobs
		env.Registry = repo
		env.migrate = func(ctx context.Context) error {
			if err := repo.Migrate(ctx); err != nil {
				return err
			}
			return jobs.Migrate(ctx)
		}
		env.close = func() { _ = sqlDB.Close() }
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}

	zap.L().Debug("store opened", zap.String("driver", cfg.Store.Driver))
	return env, nil
}

// newChecker builds the lead checker with the configured scoring policy.
func newChecker(env *appEnv) (*check.Checker, error) {
	policy, err := scorer.LoadPolicy(cfg.Check.PolicyFile)
	if err != nil {
		return nil, err
	}
	return check.NewChecker(registry.NewGateway(env.Registry), policy, env.Metrics), nil
}

func openFetcher() (fetcher.Fetcher, error) {
	return fetcher.Open(cfg.Fetcher)
}

// newController wires the ingest controller to the blob store and notifier.
func newController(env *appEnv) (*ingest.Controller, error) {
	blobs, err := openFetcher()
	if err != nil {
		return nil, err
	}

	retry := resilience.BatchPolicy(cfg.Ingest.MaxAttempts, time.Duration(cfg.Ingest.InitialBackoffMs)*time.Millisecond, nil)
	applier := changelist.NewApplier(env.Registry, changelist.ApplierConfig{
		Source:      cfg.Ingest.Source,
		TrackingTTL: time.Duration(cfg.Ingest.TrackingTTLDays) * 24 * time.Hour,
		Retry:       retry,
		MaxErrors:   cfg.Ingest.MaxErrorDetails,
	}, env.Metrics)

	var notify ingest.Notifier
	if cfg.Notify.WebhookURL != "" {
		notify = monitoring.NewWebhookNotifier(cfg.Notify)
	}

	return ingest.NewController(env.Jobs, blobs, applier, notify, env.Metrics, ingest.Config{
		BatchSize:       cfg.Ingest.BatchSize,
		MaxErrorDetails: cfg.Ingest.MaxErrorDetails,
	}), nil
}

package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/dnc-scrub/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Round is the outcome of one health evaluation.
type Round struct {
	Snapshot *JobSnapshot
	Alerts   []Alert
	Sent     int
}

// Checker polls ingest health and forwards threshold breaches to the Alerter.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	lookback  int
	// Zero disables stuck-job detection.
	staleAfter time.Duration
	log        *zap.Logger
}

// NewChecker creates a health checker from the monitoring section.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &Checker{
		collector:  collector,
		alerter:    alerter,
		interval:   interval,
		lookback:   cfg.LookbackWindowHours,
		staleAfter: time.Duration(cfg.StaleAfterHours) * time.Hour,
		log:        zap.L().With(zap.String("component", "monitoring.checker")),
	}
}

// Run evaluates once at start and then every interval until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	c.log.Info("ingest health checker started",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
		zap.Duration("stale_after", c.staleAfter),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if ctx.Err() == nil {
			if _, err := c.Evaluate(ctx); err != nil {
				c.log.Error("health evaluation failed", zap.Error(err))
			}
		}
		select {
		case <-ctx.Done():
			c.log.Info("ingest health checker stopped")
			return
		case <-ticker.C:
		}
	}
}

// Evaluate collects one snapshot, applies the alert thresholds and sends any
// resulting alerts.
func (c *Checker) Evaluate(ctx context.Context) (Round, error) {
	snap, err := c.collector.Collect(ctx, c.lookback, c.staleAfter)
	if err != nil {
		return Round{}, err
	}

	r := Round{Snapshot: snap, Alerts: c.alerter.Evaluate(snap)}
	if len(r.Alerts) > 0 {
		r.Sent = c.alerter.SendAlerts(ctx, r.Alerts)
	}

	level := zap.DebugLevel
	if len(r.Alerts) > 0 {
		level = zap.WarnLevel
	}
	c.log.Check(level, "ingest health evaluated").Write(
		zap.Int("jobs", snap.JobsTotal),
		zap.Int("failed_jobs", snap.JobsFailed),
		zap.Float64("failure_rate", snap.FailRate),
		zap.Int("records_failed", snap.RecordsFailed),
		zap.Int("stuck_jobs", len(snap.StuckJobs)),
		zap.Int("alerts", len(r.Alerts)),
		zap.Int("alerts_sent", r.Sent),
	)
	return r, nil
}

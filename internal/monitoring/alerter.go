package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/dnc-scrub/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertIngestFailureRate AlertType = "ingest_failure_rate"
	AlertRecordFailures    AlertType = "ingest_record_failures"
	AlertStuckJobs         AlertType = "ingest_stuck_jobs"
)

// minFinishedJobs is the sample size below which the failure rate is ignored.
const minFinishedJobs = 3

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a JobSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg        config.MonitoringConfig
	webhookURL string
	apiKey     string
	client     *http.Client
}

// NewAlerter creates a new Alerter. Alerts go to the notify webhook.
func NewAlerter(cfg config.MonitoringConfig, notify config.NotifyConfig) *Alerter {
	return &Alerter{
		cfg:        cfg,
		webhookURL: notify.WebhookURL,
		apiKey:     notify.APIKey,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *JobSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.JobsCompleted + snap.JobsFailed
	if finished >= minFinishedJobs && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertIngestFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Change-list job failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100,
				snap.JobsFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.JobsFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if snap.RecordsFailed > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertRecordFailures,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d change-list record(s) failed to apply in last %dh",
				snap.RecordsFailed, snap.LookbackHours,
			),
			Details: map[string]any{
				"records_failed":    snap.RecordsFailed,
				"records_processed": snap.RecordsProcessed,
			},
			Timestamp: now,
		})
	}

	if len(snap.StuckJobs) > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertStuckJobs,
			Severity: "high",
			Message:  fmt.Sprintf("%d change-list job(s) stuck in processing", len(snap.StuckJobs)),
			Details: map[string]any{
				"job_ids": snap.StuckJobs,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.webhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := postJSON(ctx, a.client, a.webhookURL, a.apiKey, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

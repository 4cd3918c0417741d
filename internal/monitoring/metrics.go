// Package monitoring holds Prometheus metrics, job-completion notifications
// and the background ingest health checker.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records scoring and ingestion activity. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	// Leads scored by resulting status
	LeadsChecked *prometheus.CounterVec

	// Risk flags raised by flag name
	RiskFlags *prometheus.CounterVec

	// Duration of one batched registry lookup (three reads)
	LookupLatency prometheus.Histogram

	// Change-list records by change type and outcome (processed, failed, skipped)
	ChangeRecords *prometheus.CounterVec

	// Duration of one applied change-list batch
	BatchLatency *prometheus.HistogramVec

	// Batch write retries by change type
	BatchRetries *prometheus.CounterVec

	// Jobs reaching a terminal status
	JobsFinished *prometheus.CounterVec
}

// NewMetrics registers all metrics with reg. Pass prometheus.DefaultRegisterer
// in production and prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		LeadsChecked: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dnc_leads_checked_total",
			Help: "Total leads scored by DNC status",
		}, []string{"status"}),

		RiskFlags: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dnc_risk_flags_total",
			Help: "Total risk flags raised by flag",
		}, []string{"flag"}),

		LookupLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "dnc_registry_lookup_duration_seconds",
			Help:    "Duration of batched registry lookups",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),

		ChangeRecords: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dnc_change_records_total",
			Help: "Change-list records by change type and outcome",
		}, []string{"change_type", "outcome"}),

		BatchLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dnc_change_batch_duration_seconds",
			Help:    "Duration of applying one change-list batch",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"change_type"}),

		BatchRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dnc_change_batch_retries_total",
			Help: "Retries of failed change-list batch writes",
		}, []string{"change_type"}),

		JobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dnc_change_jobs_finished_total",
			Help: "Change-list jobs reaching a terminal status",
		}, []string{"change_type", "status"}),
	}
}

// IncLeadChecked records one scored lead and its flags.
func (m *Metrics) IncLeadChecked(status string, flags []string) {
	if m == nil {
		return
	}
	m.LeadsChecked.WithLabelValues(status).Inc()
	for _, f := range flags {
		m.RiskFlags.WithLabelValues(f).Inc()
	}
}

// ObserveLookup records a batched lookup duration.
func (m *Metrics) ObserveLookup(d time.Duration) {
	if m != nil {
		m.LookupLatency.Observe(d.Seconds())
	}
}

// AddChangeRecords records batch outcome counts.
func (m *Metrics) AddChangeRecords(changeType string, processed, failed, skipped int) {
	if m == nil {
		return
	}
	m.ChangeRecords.WithLabelValues(changeType, "processed").Add(float64(processed))
	m.ChangeRecords.WithLabelValues(changeType, "failed").Add(float64(failed))
	m.ChangeRecords.WithLabelValues(changeType, "skipped").Add(float64(skipped))
}

// ObserveBatch records the duration of one applied batch.
func (m *Metrics) ObserveBatch(changeType string, d time.Duration) {
	if m != nil {
		m.BatchLatency.WithLabelValues(changeType).Observe(d.Seconds())
	}
}

// IncBatchRetry records one batch retry.
func (m *Metrics) IncBatchRetry(changeType string) {
	if m != nil {
		m.BatchRetries.WithLabelValues(changeType).Inc()
	}
}

// IncJobFinished records a job reaching a terminal status.
func (m *Metrics) IncJobFinished(changeType, status string) {
	if m != nil {
		m.JobsFinished.WithLabelValues(changeType, status).Inc()
	}
}

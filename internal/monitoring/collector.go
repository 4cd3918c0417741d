package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dnc-scrub/internal/model"
)

// JobSnapshot holds a point-in-time view of change-list ingestion health.
type JobSnapshot struct {
	// Jobs created within the lookback window.
	JobsTotal      int     `json:"jobs_total"`
	JobsCompleted  int     `json:"jobs_completed"`
	JobsFailed     int     `json:"jobs_failed"`
	JobsPending    int     `json:"jobs_pending"`
	JobsProcessing int     `json:"jobs_processing"`
	FailRate       float64 `json:"fail_rate"`

	RecordsProcessed int `json:"records_processed"`
	RecordsFailed    int `json:"records_failed"`

	// Jobs stuck in processing longer than the stale threshold, regardless of age.
	StuckJobs []string `json:"stuck_jobs,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// JobLister abstracts the job store listing used by the collector.
type JobLister interface {
	ListJobs(ctx context.Context, filter model.JobFilter) ([]model.ChangeListJob, error)
}

// Collector gathers ingestion metrics from the job store.
type Collector struct {
	jobs JobLister
	now  func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(jobs JobLister) *Collector {
	return &Collector{jobs: jobs, now: func() time.Time { return time.Now().UTC() }}
}

// Collect gathers a snapshot over the lookback window. Processing jobs
// started before staleAfter ago are reported as stuck.
func (c *Collector) Collect(ctx context.Context, lookbackHours int, staleAfter time.Duration) (*JobSnapshot, error) {
	now := c.now()
	snap := &JobSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)
	jobs, err := c.jobs.ListJobs(ctx, model.JobFilter{CreatedAfter: cutoff, Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list jobs")
	}

	snap.JobsTotal = len(jobs)
	for _, j := range jobs {
		switch j.Status {
		case model.JobCompleted:
			snap.JobsCompleted++
		case model.JobFailed:
			snap.JobsFailed++
		case model.JobPending:
			snap.JobsPending++
		case model.JobProcessing:
			snap.JobsProcessing++
		}
		snap.RecordsProcessed += j.ProcessedRecords
		snap.RecordsFailed += j.FailedRecords
	}
	if finished := snap.JobsCompleted + snap.JobsFailed; finished > 0 {
		snap.FailRate = float64(snap.JobsFailed) / float64(finished)
	}

	if staleAfter > 0 {
		processing, err := c.jobs.ListJobs(ctx, model.JobFilter{Status: model.JobProcessing})
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list processing jobs")
		}
		for _, j := range processing {
			if j.ProcessingStartedAt != nil && now.Sub(*j.ProcessingStartedAt) > staleAfter {
				snap.StuckJobs = append(snap.StuckJobs, j.ID)
			}
		}
	}

	return snap, nil
}

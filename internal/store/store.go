// Package store persists change-list jobs, area-code subscriptions and
// update logs.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dnc-scrub/internal/model"
)

// ErrJobNotFound is returned when no job has the requested id.
var ErrJobNotFound = eris.New("store: job not found")

// JobStore defines the persistence interface for change-list ingestion.
// Status-changing methods are conditional updates: they report false when
// the job is not in a state that allows the change.
type JobStore interface {
	// Jobs
	CreateJob(ctx context.Context, job model.ChangeListJob) (*model.ChangeListJob, error)
	GetJob(ctx context.Context, id string) (*model.ChangeListJob, error)
	ListJobs(ctx context.Context, filter model.JobFilter) ([]model.ChangeListJob, error)
	// ClaimJob moves a pending job to processing.
	ClaimJob(ctx context.Context, id string, at time.Time) (bool, error)
	UpdateProgress(ctx context.Context, id string, p model.JobProgress) error
	CompleteJob(ctx context.Context, id string, p model.JobProgress, at time.Time, durationMs int64) error
	FailJob(ctx context.Context, id string, msg string, p model.JobProgress, at time.Time, durationMs int64) error
	// ResetJob moves a completed or failed job back to pending with cleared
	// counters and an incremented retry count.
	ResetJob(ctx context.Context, id string, at time.Time) (bool, error)
	// DeleteJob removes a job that is not processing.
	DeleteJob(ctx context.Context, id string) (bool, error)

	// Subscriptions and audit
	TouchSubscriptions(ctx context.Context, areaCodes []string, jobID string, at time.Time) error
	ListSubscriptions(ctx context.Context) ([]model.Subscription, error)
	RecordUpdateLog(ctx context.Context, log model.UpdateLog) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const jobColumns = `id, change_type, area_codes, file_path, release_date, status,
	total_records, processed_records, failed_records, skipped_records,
	progress_percent, progress, current_batch, total_batches, retry_count,
	error_message, error_details, created_at, updated_at,
	processing_started_at, processing_completed_at, processing_duration_ms, last_retry_at`

const defaultListLimit = 100

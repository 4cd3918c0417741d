package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// ChangeType says whether a change list adds numbers to or removes them from the registry.
type ChangeType string

const (
	ChangeAdditions ChangeType = "additions"
	ChangeDeletions ChangeType = "deletions"
)

// ParseChangeType validates a change type string.
func ParseChangeType(s string) (ChangeType, error) {
	switch ChangeType(s) {
	case ChangeAdditions, ChangeDeletions:
		return ChangeType(s), nil
	default:
		return "", eris.Errorf("model: unknown change type %q (valid: additions, deletions)", s)
	}
}

// JobStatus is the lifecycle state of a change-list ingestion job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether no further processing will happen without a retry.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// CanTransition reports whether a job may move from s to next.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobPending:
		return next == JobProcessing
	case JobProcessing:
		return next == JobCompleted || next == JobFailed
	case JobCompleted, JobFailed:
		return next == JobPending
	default:
		return false
	}
}

// ChangeListJob tracks ingestion of one uploaded change-list file.
type ChangeListJob struct {
	ID                    string         `json:"id"`
	ChangeType            ChangeType     `json:"change_type"`
	AreaCodes             []string       `json:"area_codes"`
	FilePath              string         `json:"file_path"`
	ReleaseDate           *time.Time     `json:"release_date,omitempty"`
	Status                JobStatus      `json:"status"`
	TotalRecords          int            `json:"total_records"`
	ProcessedRecords      int            `json:"processed_records"`
	FailedRecords         int            `json:"failed_records"`
	SkippedRecords        int            `json:"skipped_records"`
	ProgressPercent       int            `json:"progress_percent"`
	Progress              map[string]int `json:"progress,omitempty"`
	CurrentBatch          int            `json:"current_batch"`
	TotalBatches          int            `json:"total_batches"`
	RetryCount            int            `json:"retry_count"`
	ErrorMessage          string         `json:"error_message,omitempty"`
	ErrorDetails          []string       `json:"error_details,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
	ProcessingStartedAt   *time.Time     `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time     `json:"processing_completed_at,omitempty"`
	ProcessingDurationMs  int64          `json:"processing_duration_ms"`
	LastRetryAt           *time.Time     `json:"last_retry_at,omitempty"`
}

// JobProgress is the counter snapshot persisted after every batch.
type JobProgress struct {
	TotalRecords     int            `json:"total_records"`
	ProcessedRecords int            `json:"processed_records"`
	FailedRecords    int            `json:"failed_records"`
	SkippedRecords   int            `json:"skipped_records"`
	ProgressPercent  int            `json:"progress_percent"`
	Progress         map[string]int `json:"progress"`
	CurrentBatch     int            `json:"current_batch"`
	TotalBatches     int            `json:"total_batches"`
	ErrorDetails     []string       `json:"error_details,omitempty"`
}

// UpdateLog is the audit record written when a change-list job completes.
type UpdateLog struct {
	ID             string     `json:"id"`
	JobID          string     `json:"job_id"`
	AreaCodes      []string   `json:"area_codes"`
	UpdateType     ChangeType `json:"update_type"`
	RecordsAdded   int        `json:"records_added"`
	RecordsRemoved int        `json:"records_removed"`
	TotalRecords   int        `json:"total_records"`
	DurationMs     int64      `json:"duration_ms"`
	SourceFile     string     `json:"source_file"`
	ReleaseDate    *time.Time `json:"release_date,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// JobFilter narrows a job listing. Zero fields do not filter.
type JobFilter struct {
	Status       JobStatus
	ChangeType   ChangeType
	CreatedAfter time.Time
	Limit        int
}

// Subscription records when an area code's registry data was last refreshed.
type Subscription struct {
	AreaCode         string     `json:"area_code"`
	LastUpdateAt     *time.Time `json:"last_update_at,omitempty"`
	LastChangeListID string     `json:"last_change_list_id,omitempty"`
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/dnc-scrub/internal/model"
)

// SQLiteStore implements JobStore using modernc.org/sqlite. It shares the
// database handle with the registry repository.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite wraps an open database (see registry.OpenSQLite).
func NewSQLite(sqlDB *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: sqlDB}
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS change_list_jobs (
	id                      TEXT PRIMARY KEY,
	change_type             TEXT NOT NULL,
	area_codes              TEXT NOT NULL DEFAULT '[]',
	file_path               TEXT NOT NULL,
	release_date            DATETIME,
	status                  TEXT NOT NULL DEFAULT 'pending',
	total_records           INTEGER NOT NULL DEFAULT 0,
	processed_records       INTEGER NOT NULL DEFAULT 0,
	failed_records          INTEGER NOT NULL DEFAULT 0,
	skipped_records         INTEGER NOT NULL DEFAULT 0,
	progress_percent        INTEGER NOT NULL DEFAULT 0,
	progress                TEXT NOT NULL DEFAULT '{}',
	current_batch           INTEGER NOT NULL DEFAULT 0,
	total_batches           INTEGER NOT NULL DEFAULT 0,
	retry_count             INTEGER NOT NULL DEFAULT 0,
	error_message           TEXT,
	error_details           TEXT NOT NULL DEFAULT '[]',
	created_at              DATETIME NOT NULL,
	updated_at              DATETIME NOT NULL,
	processing_started_at   DATETIME,
	processing_completed_at DATETIME,
	processing_duration_ms  INTEGER NOT NULL DEFAULT 0,
	last_retry_at           DATETIME
);

CREATE INDEX IF NOT EXISTS idx_change_list_jobs_status ON change_list_jobs(status);

CREATE TABLE IF NOT EXISTS subscriptions (
	area_code           TEXT PRIMARY KEY,
	last_update_at      DATETIME,
	last_change_list_id TEXT
);

CREATE TABLE IF NOT EXISTS update_logs (
	id              TEXT PRIMARY KEY,
	job_id          TEXT NOT NULL,
	area_codes      TEXT NOT NULL,
	update_type     TEXT NOT NULL,
	records_added   INTEGER NOT NULL DEFAULT 0,
	records_removed INTEGER NOT NULL DEFAULT 0,
	total_records   INTEGER NOT NULL DEFAULT 0,
	duration_ms     INTEGER NOT NULL DEFAULT 0,
	source_file     TEXT NOT NULL,
	release_date    DATETIME,
	created_at      DATETIME NOT NULL
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job model.ChangeListJob) (*model.ChangeListJob, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	job.Status = model.JobPending
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.AreaCodes == nil {
		job.AreaCodes = []string{}
	}

	areas, err := json.Marshal(job.AreaCodes)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal area codes")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO change_list_jobs (id, change_type, area_codes, file_path, release_date, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.ChangeType), string(areas), job.FilePath, nullTime(job.ReleaseDate), string(job.Status), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
	}
	return &job, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.ChangeListJob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM change_list_jobs WHERE id = ?`, id)
	job, err := scanSQLiteJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrJobNotFound, "sqlite: get job %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", id)
	}
	return job, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter model.JobFilter) ([]model.ChangeListJob, error) {
	query := `SELECT ` + jobColumns + ` FROM change_list_jobs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.ChangeType != "" {
		query += ` AND change_type = ?`
		args = append(args, string(filter.ChangeType))
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close() //nolint:errcheck

	var jobs []model.ChangeListJob
	for rows.Next() {
		job, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		jobs = append(jobs, *job)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) ClaimJob(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE change_list_jobs
		 SET status = 'processing', processing_started_at = ?, processing_completed_at = NULL,
		     processing_duration_ms = 0, error_message = NULL, updated_at = ?
		 WHERE id = ? AND status = 'pending'`,
		at, at, id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: claim job %s", id)
	}
	return affectedOne(res)
}

func (s *SQLiteStore) UpdateProgress(ctx context.Context, id string, p model.JobProgress) error {
	progress, details, err := sqliteProgressArgs(p)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE change_list_jobs
		 SET total_records = ?, processed_records = ?, failed_records = ?, skipped_records = ?,
		     progress_percent = ?, progress = ?, current_batch = ?, total_batches = ?,
		     error_details = ?, updated_at = ?
		 WHERE id = ?`,
		p.TotalRecords, p.ProcessedRecords, p.FailedRecords, p.SkippedRecords,
		p.ProgressPercent, progress, p.CurrentBatch, p.TotalBatches, details, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update progress %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) CompleteJob(ctx context.Context, id string, p model.JobProgress, at time.Time, durationMs int64) error {
	return s.finishJob(ctx, id, model.JobCompleted, "", p, at, durationMs)
}

func (s *SQLiteStore) FailJob(ctx context.Context, id string, msg string, p model.JobProgress, at time.Time, durationMs int64) error {
	return s.finishJob(ctx, id, model.JobFailed, msg, p, at, durationMs)
}

func (s *SQLiteStore) finishJob(ctx context.Context, id string, status model.JobStatus, msg string, p model.JobProgress, at time.Time, durationMs int64) error {
	progress, details, err := sqliteProgressArgs(p)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE change_list_jobs
		 SET status = ?, error_message = ?,
		     total_records = ?, processed_records = ?, failed_records = ?, skipped_records = ?,
		     progress_percent = ?, progress = ?, current_batch = ?, total_batches = ?,
		     error_details = ?, processing_completed_at = ?, processing_duration_ms = ?, updated_at = ?
		 WHERE id = ? AND status = 'processing'`,
		string(status), nullString(msg),
		p.TotalRecords, p.ProcessedRecords, p.FailedRecords, p.SkippedRecords,
		p.ProgressPercent, progress, p.CurrentBatch, p.TotalBatches,
		details, at, durationMs, at, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark job %s %s", id, status)
	}
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return eris.Errorf("sqlite: job %s is not processing", id)
	}
	return nil
}

func (s *SQLiteStore) ResetJob(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE change_list_jobs
		 SET status = 'pending', total_records = 0, processed_records = 0, failed_records = 0,
		     skipped_records = 0, progress_percent = 0, progress = '{}', current_batch = 0,
		     total_batches = 0, error_message = NULL, error_details = '[]',
		     processing_started_at = NULL, processing_completed_at = NULL, processing_duration_ms = 0,
		     retry_count = retry_count + 1, last_retry_at = ?, updated_at = ?
		 WHERE id = ? AND status IN ('completed', 'failed')`,
		at, at, id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: reset job %s", id)
	}
	return affectedOne(res)
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM change_list_jobs WHERE id = ? AND status <> 'processing'`, id)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: delete job %s", id)
	}
	return affectedOne(res)
}

func (s *SQLiteStore) TouchSubscriptions(ctx context.Context, areaCodes []string, jobID string, at time.Time) error {
	if len(areaCodes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin touch subscriptions")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, ac := range areaCodes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO subscriptions (area_code, last_update_at, last_change_list_id) VALUES (?, ?, ?)
			 ON CONFLICT(area_code) DO UPDATE SET
				last_update_at = excluded.last_update_at,
				last_change_list_id = excluded.last_change_list_id`,
			ac, at, jobID,
		); err != nil {
			return eris.Wrapf(err, "sqlite: touch subscription %s", ac)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit touch subscriptions")
}

func (s *SQLiteStore) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT area_code, last_update_at, last_change_list_id FROM subscriptions ORDER BY area_code`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list subscriptions")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Subscription
	for rows.Next() {
		var sub model.Subscription
		var at sql.NullTime
		var jobID sql.NullString
		if err := rows.Scan(&sub.AreaCode, &at, &jobID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan subscription")
		}
		sub.LastUpdateAt = timePtr(at)
		sub.LastChangeListID = jobID.String
		out = append(out, sub)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list subscriptions iterate")
}

func (s *SQLiteStore) RecordUpdateLog(ctx context.Context, log model.UpdateLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	if log.AreaCodes == nil {
		log.AreaCodes = []string{}
	}
	areas, err := json.Marshal(log.AreaCodes)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal area codes")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO update_logs
			(id, job_id, area_codes, update_type, records_added, records_removed, total_records,
			 duration_ms, source_file, release_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.JobID, string(areas), string(log.UpdateType), log.RecordsAdded, log.RecordsRemoved,
		log.TotalRecords, log.DurationMs, log.SourceFile, nullTime(log.ReleaseDate), log.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: record update log for job %s", log.JobID)
}

// helpers

func checkRowsAffected(res sql.Result, id string) error {
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return eris.Wrapf(ErrJobNotFound, "sqlite: job %s", id)
	}
	return nil
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "rows affected")
	}
	return n == 1, nil
}

func sqliteProgressArgs(p model.JobProgress) (string, string, error) {
	progress, details, err := progressArgs(p)
	if err != nil {
		return "", "", err
	}
	d, err := json.Marshal(details)
	if err != nil {
		return "", "", eris.Wrap(err, "store: marshal error details")
	}
	return string(progress), string(d), nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteJob(row scannable) (*model.ChangeListJob, error) {
	var j model.ChangeListJob
	var changeType, status, areas, progress, details string
	var errMsg sql.NullString
	var release, started, completed, retried sql.NullTime

	err := row.Scan(
		&j.ID, &changeType, &areas, &j.FilePath, &release, &status,
		&j.TotalRecords, &j.ProcessedRecords, &j.FailedRecords, &j.SkippedRecords,
		&j.ProgressPercent, &progress, &j.CurrentBatch, &j.TotalBatches, &j.RetryCount,
		&errMsg, &details, &j.CreatedAt, &j.UpdatedAt,
		&started, &completed, &j.ProcessingDurationMs, &retried,
	)
	if err != nil {
		return nil, err
	}
	j.ChangeType = model.ChangeType(changeType)
	j.Status = model.JobStatus(status)
	j.ErrorMessage = errMsg.String
	j.ReleaseDate = timePtr(release)
	j.ProcessingStartedAt = timePtr(started)
	j.ProcessingCompletedAt = timePtr(completed)
	j.LastRetryAt = timePtr(retried)

	if err := json.Unmarshal([]byte(areas), &j.AreaCodes); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal area codes")
	}
	if err := json.Unmarshal([]byte(progress), &j.Progress); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal progress")
	}
	if err := json.Unmarshal([]byte(details), &j.ErrorDetails); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal error details")
	}
	return &j, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

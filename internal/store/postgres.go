package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/dnc-scrub/internal/db"
	"github.com/sells-group/dnc-scrub/internal/model"
	"github.com/sells-group/dnc-scrub/internal/registry"
)

// PostgresStore implements JobStore using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. The store does not own it.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying pool so the registry repository can share it.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

// Migrate applies the embedded dnc schema migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return eris.Wrap(registry.Migrate(ctx, s.pool), "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job model.ChangeListJob) (*model.ChangeListJob, error) {
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

	_, err := s.pool.Exec(ctx,
		`INSERT INTO dnc.change_list_jobs (id, change_type, area_codes, file_path, release_date, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, string(job.ChangeType), job.AreaCodes, job.FilePath, job.ReleaseDate, string(job.Status), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}
	return &job, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.ChangeListJob, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM dnc.change_list_jobs WHERE id = $1`, id)
	job, err := scanPgJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrJobNotFound, "postgres: get job %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", id)
	}
	return job, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter model.JobFilter) ([]model.ChangeListJob, error) {
	query := `SELECT ` + jobColumns + ` FROM dnc.change_list_jobs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.ChangeType != "" {
		query += fmt.Sprintf(` AND change_type = $%d`, argIdx)
		args = append(args, string(filter.ChangeType))
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.CreatedAfter)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.ChangeListJob
	for rows.Next() {
		job, err := scanPgJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, *job)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) ClaimJob(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE dnc.change_list_jobs
		 SET status = 'processing', processing_started_at = $2, processing_completed_at = NULL,
		     processing_duration_ms = 0, error_message = NULL, updated_at = $2
		 WHERE id = $1 AND status = 'pending'`,
		id, at,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: claim job %s", id)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) UpdateProgress(ctx context.Context, id string, p model.JobProgress) error {
	progress, details, err := progressArgs(p)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE dnc.change_list_jobs
		 SET total_records = $2, processed_records = $3, failed_records = $4, skipped_records = $5,
		     progress_percent = $6, progress = $7, current_batch = $8, total_batches = $9,
		     error_details = $10, updated_at = now()
		 WHERE id = $1`,
		id, p.TotalRecords, p.ProcessedRecords, p.FailedRecords, p.SkippedRecords,
		p.ProgressPercent, progress, p.CurrentBatch, p.TotalBatches, details,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update progress %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrJobNotFound, "postgres: update progress %s", id)
	}
	return nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, id string, p model.JobProgress, at time.Time, durationMs int64) error {
	return s.finishJob(ctx, id, model.JobCompleted, "", p, at, durationMs)
}

func (s *PostgresStore) FailJob(ctx context.Context, id string, msg string, p model.JobProgress, at time.Time, durationMs int64) error {
	return s.finishJob(ctx, id, model.JobFailed, msg, p, at, durationMs)
}

func (s *PostgresStore) finishJob(ctx context.Context, id string, status model.JobStatus, msg string, p model.JobProgress, at time.Time, durationMs int64) error {
	progress, details, err := progressArgs(p)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE dnc.change_list_jobs
		 SET status = $2, error_message = $3,
		     total_records = $4, processed_records = $5, failed_records = $6, skipped_records = $7,
		     progress_percent = $8, progress = $9, current_batch = $10, total_batches = $11,
		     error_details = $12, processing_completed_at = $13, processing_duration_ms = $14, updated_at = $13
		 WHERE id = $1 AND status = 'processing'`,
		id, string(status), nullString(msg),
		p.TotalRecords, p.ProcessedRecords, p.FailedRecords, p.SkippedRecords,
		p.ProgressPercent, progress, p.CurrentBatch, p.TotalBatches,
		details, at, durationMs,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark job %s %s", id, status)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: job %s is not processing", id)
	}
	return nil
}

func (s *PostgresStore) ResetJob(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE dnc.change_list_jobs
		 SET status = 'pending', total_records = 0, processed_records = 0, failed_records = 0,
		     skipped_records = 0, progress_percent = 0, progress = '{}', current_batch = 0,
		     total_batches = 0, error_message = NULL, error_details = '{}',
		     processing_started_at = NULL, processing_completed_at = NULL, processing_duration_ms = 0,
		     retry_count = retry_count + 1, last_retry_at = $2, updated_at = $2
		 WHERE id = $1 AND status IN ('completed', 'failed')`,
		id, at,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: reset job %s", id)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) DeleteJob(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM dnc.change_list_jobs WHERE id = $1 AND status <> 'processing'`,
		id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: delete job %s", id)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) TouchSubscriptions(ctx context.Context, areaCodes []string, jobID string, at time.Time) error {
	if len(areaCodes) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO dnc.subscriptions (area_code, last_update_at, last_change_list_id)
		 SELECT unnest($1::text[]), $2, $3
		 ON CONFLICT (area_code) DO UPDATE SET
			last_update_at = EXCLUDED.last_update_at,
			last_change_list_id = EXCLUDED.last_change_list_id`,
		areaCodes, at, jobID,
	)
	return eris.Wrap(err, "postgres: touch subscriptions")
}

func (s *PostgresStore) ListSubscriptions(ctx context.Context) ([]model.Subscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT area_code, last_update_at, last_change_list_id FROM dnc.subscriptions ORDER BY area_code`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list subscriptions")
	}
	defer rows.Close()

	var out []model.Subscription
	for rows.Next() {
		var sub model.Subscription
		var jobID *string
		if err := rows.Scan(&sub.AreaCode, &sub.LastUpdateAt, &jobID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan subscription")
		}
		if jobID != nil {
			sub.LastChangeListID = *jobID
		}
		out = append(out, sub)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list subscriptions iterate")
}

func (s *PostgresStore) RecordUpdateLog(ctx context.Context, log model.UpdateLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	if log.AreaCodes == nil {
		log.AreaCodes = []string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO dnc.update_logs
			(id, job_id, area_codes, update_type, records_added, records_removed, total_records,
			 duration_ms, source_file, release_date, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		log.ID, log.JobID, log.AreaCodes, string(log.UpdateType), log.RecordsAdded, log.RecordsRemoved,
		log.TotalRecords, log.DurationMs, log.SourceFile, log.ReleaseDate, log.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: record update log for job %s", log.JobID)
}

// helpers

func progressArgs(p model.JobProgress) ([]byte, []string, error) {
	progress := p.Progress
	if progress == nil {
		progress = map[string]int{}
	}
	b, err := json.Marshal(progress)
	if err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal progress")
	}
	details := p.ErrorDetails
	if details == nil {
		details = []string{}
	}
	return b, details, nil
}

func scanPgJob(row pgx.Row) (*model.ChangeListJob, error) {
	var j model.ChangeListJob
	var changeType, status string
	var progressJSON []byte
	var errMsg *string

	err := row.Scan(
		&j.ID, &changeType, &j.AreaCodes, &j.FilePath, &j.ReleaseDate, &status,
		&j.TotalRecords, &j.ProcessedRecords, &j.FailedRecords, &j.SkippedRecords,
		&j.ProgressPercent, &progressJSON, &j.CurrentBatch, &j.TotalBatches, &j.RetryCount,
		&errMsg, &j.ErrorDetails, &j.CreatedAt, &j.UpdatedAt,
		&j.ProcessingStartedAt, &j.ProcessingCompletedAt, &j.ProcessingDurationMs, &j.LastRetryAt,
	)
	if err != nil {
		return nil, err
	}
	j.ChangeType = model.ChangeType(changeType)
	j.Status = model.JobStatus(status)
	if errMsg != nil {
		j.ErrorMessage = *errMsg
	}
	if len(progressJSON) > 0 {
		if err := json.Unmarshal(progressJSON, &j.Progress); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal progress")
		}
	}
	return &j, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

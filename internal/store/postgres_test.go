package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dnc-scrub/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresFromPool(mock), mock
}

var jobColumnNames = []string{
	"id", "change_type", "area_codes", "file_path", "release_date", "status",
	"total_records", "processed_records", "failed_records", "skipped_records",
	"progress_percent", "progress", "current_batch", "total_batches", "retry_count",
	"error_message", "error_details", "created_at", "updated_at",
	"processing_started_at", "processing_completed_at", "processing_duration_ms", "last_retry_at",
}

func jobRow(id string, status model.JobStatus, created time.Time) []any {
	var none *time.Time
	var msg *string
	return []any{
		id, "additions", []string{"801"}, "/data/801.txt", none, string(status),
		10, 8, 1, 1,
		100, []byte(`{"801":10}`), 1, 1, 0,
		msg, []string{"bad row"}, created, created,
		none, none, int64(0), none,
	}
}

func TestPostgres_CreateJob(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO dnc.change_list_jobs").
		WithArgs(pgxmock.AnyArg(), "deletions", []string{"801"}, "/data/del.txt",
			pgxmock.AnyArg(), "pending", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	job, err := s.CreateJob(context.Background(), model.ChangeListJob{
		ChangeType: model.ChangeDeletions,
		AreaCodes:  []string{"801"},
		FilePath:   "/data/del.txt",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, model.JobPending, job.Status)
	assert.False(t, job.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetJob(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM dnc.change_list_jobs WHERE id = $1")).
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows(jobColumnNames).AddRow(jobRow("job-1", model.JobCompleted, created)...))

	job, err := s.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, model.ChangeAdditions, job.ChangeType)
	assert.Equal(t, model.JobCompleted, job.Status)
	assert.Equal(t, map[string]int{"801": 10}, job.Progress)
	assert.Equal(t, []string{"bad row"}, job.ErrorDetails)
	assert.Equal(t, created, job.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetJob_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("FROM dnc.change_list_jobs").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetJob(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrJobNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListJobs_Filters(t *testing.T) {
	s, mock := newMockStore(t)
	since := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("AND status = $1 AND change_type = $2 AND created_at >= $3 ORDER BY created_at DESC LIMIT $4")).
		WithArgs("failed", "additions", since, 5).
		WillReturnRows(pgxmock.NewRows(jobColumnNames).
			AddRow(jobRow("a", model.JobFailed, since)...).
			AddRow(jobRow("b", model.JobFailed, since)...))

	jobs, err := s.ListJobs(context.Background(), model.JobFilter{
		Status:       model.JobFailed,
		ChangeType:   model.ChangeAdditions,
		CreatedAfter: since,
		Limit:        5,
	})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListJobs_DefaultLimit(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE true ORDER BY created_at DESC LIMIT $1")).
		WithArgs(defaultListLimit).
		WillReturnRows(pgxmock.NewRows(jobColumnNames))

	jobs, err := s.ListJobs(context.Background(), model.JobFilter{})
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ClaimJob(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("pending", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = 'pending'")).
			WithArgs("job-1", at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		ok, err := s.ClaimJob(context.Background(), "job-1", at)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already processing", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectExec("UPDATE dnc.change_list_jobs").
			WithArgs("job-1", at).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		ok, err := s.ClaimJob(context.Background(), "job-1", at)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgres_UpdateProgress_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE dnc.change_list_jobs").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateProgress(context.Background(), "gone", model.JobProgress{TotalRecords: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrJobNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CompleteJob_NotProcessing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status = 'processing'")).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompleteJob(context.Background(), "job-1", model.JobProgress{}, time.Now(), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not processing")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ResetJob(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("retry_count = retry_count + 1")).
		WithArgs("job-1", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := s.ResetJob(context.Background(), "job-1", at)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DeleteJob(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM dnc.change_list_jobs WHERE id = $1 AND status <> 'processing'")).
		WithArgs("job-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	ok, err := s.DeleteJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DeleteJob_Error(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM dnc.change_list_jobs").
		WillReturnError(eris.New("connection reset"))

	_, err := s.DeleteJob(context.Background(), "job-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: delete job job-1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_TouchSubscriptions(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO dnc.subscriptions").
		WithArgs([]string{"801", "385"}, at, "job-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	require.NoError(t, s.TouchSubscriptions(context.Background(), []string{"801", "385"}, "job-1", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_TouchSubscriptions_Empty(t *testing.T) {
	s, mock := newMockStore(t)
	require.NoError(t, s.TouchSubscriptions(context.Background(), nil, "job-1", time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RecordUpdateLog(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO dnc.update_logs").
		WithArgs(pgxmock.AnyArg(), "job-1", []string{"801"}, "additions", 9, 0, 10,
			int64(1500), "/data/801.txt", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.RecordUpdateLog(context.Background(), model.UpdateLog{
		JobID:        "job-1",
		AreaCodes:    []string{"801"},
		UpdateType:   model.ChangeAdditions,
		RecordsAdded: 9,
		TotalRecords: 10,
		DurationMs:   1500,
		SourceFile:   "/data/801.txt",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package registry

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dnc-scrub/internal/model"
)

func newMockRepo(t *testing.T) (*PostgresRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresRepository(mock, nil), mock
}

func TestPostgres_FindActiveByPhones(t *testing.T) {
	repo, mock := newMockRepo(t)
	keys := []string{"5550000001", "5550000002"}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT phone FROM dnc.registry WHERE phone = ANY($1) AND is_active")).
		WithArgs(keys).
		WillReturnRows(pgxmock.NewRows([]string{"phone"}).AddRow("5550000001"))

	got, err := repo.FindActiveByPhones(context.Background(), keys)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"5550000001": true}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindDeletedCycles(t *testing.T) {
	repo, mock := newMockRepo(t)
	keys := []string{"5550000002"}

	mock.ExpectQuery("SELECT phone, times_added_removed FROM dnc.deleted_tracking").
		WithArgs(keys).
		WillReturnRows(pgxmock.NewRows([]string{"phone", "times_added_removed"}).AddRow("5550000002", 2))

	got, err := repo.FindDeletedCycles(context.Background(), keys)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"5550000002": 2}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindLitigators(t *testing.T) {
	repo, mock := newMockRepo(t)
	keys := []string{"5550000003"}

	mock.ExpectQuery("SELECT phone, case_count, risk_level FROM dnc.litigators").
		WithArgs(keys).
		WillReturnRows(pgxmock.NewRows([]string{"phone", "case_count", "risk_level"}).AddRow("5550000003", 9, "critical"))

	got, err := repo.FindLitigators(context.Background(), keys)
	require.NoError(t, err)
	assert.Equal(t, model.LitigatorEntry{Phone: "5550000003", CaseCount: 9, RiskLevel: model.RiskLevelCritical}, got["5550000003"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindActiveByPhones_QueryError(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT phone FROM dnc.registry").WillReturnError(errors.New("conn closed"))

	_, err := repo.FindActiveByPhones(context.Background(), []string{"5550000001"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry: find active by phones")
}

func TestPostgres_FindActiveByPhone_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("FROM dnc.registry WHERE phone = \\$1").
		WithArgs("5550000009").
		WillReturnRows(pgxmock.NewRows([]string{"phone", "area_code", "state", "source", "is_active", "date_added", "last_verified", "release_date"}))

	e, err := repo.FindActiveByPhone(context.Background(), "5550000009")
	require.NoError(t, err)
	assert.Nil(t, e)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindDeletedTrackingByPhone(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	state := "UT"

	mock.ExpectQuery("FROM dnc.deleted_tracking WHERE phone = \\$1").
		WithArgs("8015550001").
		WillReturnRows(pgxmock.NewRows([]string{"phone", "area_code", "state", "deleted_from_dnc_date", "original_add_date", "times_added_removed", "delete_after", "source"}).
			AddRow("8015550001", "801", &state, now, now.AddDate(-1, 0, 0), 3, now.AddDate(0, 0, 90), "ftc"))

	e, err := repo.FindDeletedTrackingByPhone(context.Background(), "8015550001")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, 3, e.TimesAddedRemoved)
	assert.Equal(t, "UT", e.State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertDeletedTracking(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	e := model.DeletedTrackingEntry{
		Phone: "8015550001", AreaCode: "801", DeletedFromDNC: now, OriginalAddDate: now,
		TimesAddedRemoved: 1, DeleteAfter: now.AddDate(0, 0, 90), Source: "ftc",
	}

	mock.ExpectExec("INSERT INTO dnc.deleted_tracking").
		WithArgs("8015550001", "801", pgxmock.AnyArg(), now, now, 1, now.AddDate(0, 0, 90), "ftc").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.UpsertDeletedTracking(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DeleteByPhone(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("DELETE FROM dnc.registry").
		WithArgs("8015550001").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, repo.DeleteByPhone(context.Background(), "8015550001"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertRegistryEntries_Empty(t *testing.T) {
	repo, mock := newMockRepo(t)
	n, err := repo.UpsertRegistryEntries(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertRegistryEntries_BeginError(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	_, err := repo.UpsertRegistryEntries(context.Background(), []model.RegistryEntry{{Phone: "8015550001", AreaCode: "801", Source: "ftc", IsActive: true}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry: upsert entries")
	assert.NoError(t, mock.ExpectationsWereMet())
}

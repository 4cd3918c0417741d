package registry

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/dnc-scrub/internal/db"
	"github.com/sells-group/dnc-scrub/internal/model"
)

// PostgresRepository implements Repository on the dnc schema.
type PostgresRepository struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

// NewPostgresRepository wraps an existing pool. closeFn may be nil.
func NewPostgresRepository(pool db.Pool, closeFn func()) *PostgresRepository {
	return &PostgresRepository{pool: pool, closeFn: closeFn, now: func() time.Time { return time.Now().UTC() }}
}

// Close releases the pool if this repository owns it.
func (r *PostgresRepository) Close() error {
	if r.closeFn != nil {
		r.closeFn()
	}
	return nil
}

// FindActiveByPhones implements LookupRepository.
func (r *PostgresRepository) FindActiveByPhones(ctx context.Context, phones []string) (map[string]bool, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT phone FROM dnc.registry WHERE phone = ANY($1) AND is_active`,
		phones,
	)
	if err != nil {
		return nil, eris.Wrap(err, "registry: find active by phones")
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, eris.Wrap(err, "registry: scan active phone")
		}
		out[p] = true
	}
	return out, eris.Wrap(rows.Err(), "registry: iterate active phones")
}

// FindDeletedCycles implements LookupRepository. Expiry is not checked here;
// purging expired entries is a separate maintenance concern.
func (r *PostgresRepository) FindDeletedCycles(ctx context.Context, phones []string) (map[string]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT phone, times_added_removed FROM dnc.deleted_tracking WHERE phone = ANY($1)`,
		phones,
	)
	if err != nil {
		return nil, eris.Wrap(err, "registry: find deleted cycles")
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var p string
		var n int
		if err := rows.Scan(&p, &n); err != nil {
			return nil, eris.Wrap(err, "registry: scan deleted cycle")
		}
		out[p] = n
	}
	return out, eris.Wrap(rows.Err(), "registry: iterate deleted cycles")
}

// FindLitigators implements LookupRepository.
func (r *PostgresRepository) FindLitigators(ctx context.Context, phones []string) (map[string]model.LitigatorEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT phone, case_count, risk_level FROM dnc.litigators WHERE phone = ANY($1)`,
		phones,
	)
	if err != nil {
		return nil, eris.Wrap(err, "registry: find litigators")
	}
	defer rows.Close()

	out := make(map[string]model.LitigatorEntry)
	for rows.Next() {
		var e model.LitigatorEntry
		var level string
		if err := rows.Scan(&e.Phone, &e.CaseCount, &level); err != nil {
			return nil, eris.Wrap(err, "registry: scan litigator")
		}
		e.RiskLevel = model.RiskLevel(level)
		out[e.Phone] = e
	}
	return out, eris.Wrap(rows.Err(), "registry: iterate litigators")
}

var registryUpsert = db.UpsertConfig{
	Table:        "dnc.registry",
	Columns:      []string{"phone", "area_code", "state", "source", "is_active", "last_verified", "release_date", "updated_at"},
	ConflictKeys: []string{"phone"},
}

// UpsertRegistryEntries inserts or refreshes entries keyed by phone. The
// original date_added of an existing row is kept.
func (r *PostgresRepository) UpsertRegistryEntries(ctx context.Context, entries []model.RegistryEntry) (int64, error) {
	now := r.now()
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		verified := e.LastVerified
		if verified.IsZero() {
			verified = now
		}
		rows = append(rows, []any{e.Phone, e.AreaCode, nullString(e.State), e.Source, e.IsActive, verified, e.ReleaseDate, now})
	}
	n, err := db.BulkUpsert(ctx, r.pool, registryUpsert, rows)
	return n, eris.Wrap(err, "registry: upsert entries")
}

// FindActiveByPhone implements ChangeRepository.
func (r *PostgresRepository) FindActiveByPhone(ctx context.Context, phone string) (*model.RegistryEntry, error) {
	var e model.RegistryEntry
	var state *string
	err := r.pool.QueryRow(ctx,
		`SELECT phone, area_code, state, source, is_active, date_added, last_verified, release_date
		 FROM dnc.registry WHERE phone = $1`,
		phone,
	).Scan(&e.Phone, &e.AreaCode, &state, &e.Source, &e.IsActive, &e.DateAdded, &e.LastVerified, &e.ReleaseDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "registry: find active %s", phone)
	}
	if state != nil {
		e.State = *state
	}
	return &e, nil
}

// FindDeletedTrackingByPhone implements ChangeRepository.
func (r *PostgresRepository) FindDeletedTrackingByPhone(ctx context.Context, phone string) (*model.DeletedTrackingEntry, error) {
	var e model.DeletedTrackingEntry
	var state *string
	err := r.pool.QueryRow(ctx,
		`SELECT phone, area_code, state, deleted_from_dnc_date, original_add_date, times_added_removed, delete_after, source
		 FROM dnc.deleted_tracking WHERE phone = $1`,
		phone,
	).Scan(&e.Phone, &e.AreaCode, &state, &e.DeletedFromDNC, &e.OriginalAddDate, &e.TimesAddedRemoved, &e.DeleteAfter, &e.Source)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "registry: find deleted tracking %s", phone)
	}
	if state != nil {
		e.State = *state
	}
	return &e, nil
}

// UpsertDeletedTracking implements ChangeRepository. The stored cycle count
// never decreases, even if a stale entry is written.
func (r *PostgresRepository) UpsertDeletedTracking(ctx context.Context, e model.DeletedTrackingEntry) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO dnc.deleted_tracking
			(phone, area_code, state, deleted_from_dnc_date, original_add_date, times_added_removed, delete_after, source, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		 ON CONFLICT (phone) DO UPDATE SET
			area_code = EXCLUDED.area_code,
			state = EXCLUDED.state,
			deleted_from_dnc_date = EXCLUDED.deleted_from_dnc_date,
			times_added_removed = GREATEST(dnc.deleted_tracking.times_added_removed, EXCLUDED.times_added_removed),
			delete_after = EXCLUDED.delete_after,
			source = EXCLUDED.source,
			updated_at = now()`,
		e.Phone, e.AreaCode, nullString(e.State), e.DeletedFromDNC, e.OriginalAddDate, e.TimesAddedRemoved, e.DeleteAfter, e.Source,
	)
	return eris.Wrapf(err, "registry: upsert deleted tracking %s", e.Phone)
}

// DeleteByPhone implements ChangeRepository.
func (r *PostgresRepository) DeleteByPhone(ctx context.Context, phone string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM dnc.registry WHERE phone = $1`, phone)
	return eris.Wrapf(err, "registry: delete %s", phone)
}

var litigatorUpsert = db.UpsertConfig{
	Table:        "dnc.litigators",
	Columns:      []string{"phone", "case_count", "risk_level", "updated_at"},
	ConflictKeys: []string{"phone"},
}

// UpsertLitigators loads litigator reference data.
func (r *PostgresRepository) UpsertLitigators(ctx context.Context, entries []model.LitigatorEntry) (int64, error) {
	now := r.now()
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []any{e.Phone, e.CaseCount, string(e.RiskLevel), now})
	}
	n, err := db.BulkUpsert(ctx, r.pool, litigatorUpsert, rows)
	return n, eris.Wrap(err, "registry: upsert litigators")
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

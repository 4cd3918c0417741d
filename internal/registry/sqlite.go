package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/dnc-scrub/internal/model"
)

// SQLiteRepository implements Repository on a local SQLite file. Batched
// lookups pass the key set as one JSON array parameter so each read stays a
// single statement.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) a SQLite database and configures WAL mode.
func OpenSQLite(dsn string) (*sql.DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if strings.Contains(dsn, ":memory:") {
		sqlDB.SetMaxOpenConns(1)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return sqlDB, nil
}

// NewSQLiteRepository wraps an open database.
func NewSQLiteRepository(sqlDB *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: sqlDB, now: func() time.Time { return time.Now().UTC() }}
}

const sqliteRegistrySchema = `
CREATE TABLE IF NOT EXISTS registry (
	phone         TEXT PRIMARY KEY,
	area_code     TEXT NOT NULL,
	state         TEXT,
	source        TEXT NOT NULL DEFAULT 'ftc',
	is_active     INTEGER NOT NULL DEFAULT 1,
	date_added    DATETIME NOT NULL,
	last_verified DATETIME NOT NULL,
	release_date  DATETIME,
	updated_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_registry_area_code ON registry(area_code);

CREATE TABLE IF NOT EXISTS deleted_tracking (
	phone                 TEXT PRIMARY KEY,
	area_code             TEXT NOT NULL,
	state                 TEXT,
	deleted_from_dnc_date DATETIME NOT NULL,
	original_add_date     DATETIME NOT NULL,
	times_added_removed   INTEGER NOT NULL DEFAULT 1 CHECK (times_added_removed >= 1),
	delete_after          DATETIME NOT NULL,
	source                TEXT NOT NULL DEFAULT 'ftc'
);

CREATE TABLE IF NOT EXISTS litigators (
	phone      TEXT PRIMARY KEY,
	case_count INTEGER NOT NULL DEFAULT 0,
	risk_level TEXT NOT NULL DEFAULT 'medium'
);
`

// Migrate creates the registry tables.
func (r *SQLiteRepository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, sqliteRegistrySchema)
	return eris.Wrap(err, "sqlite: migrate registry")
}

// Close closes the underlying database.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func jsonKeys(phones []string) (string, error) {
	b, err := json.Marshal(phones)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: encode keys")
	}
	return string(b), nil
}

// FindActiveByPhones implements LookupRepository.
func (r *SQLiteRepository) FindActiveByPhones(ctx context.Context, phones []string) (map[string]bool, error) {
	keys, err := jsonKeys(phones)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT phone FROM registry WHERE is_active = 1 AND phone IN (SELECT value FROM json_each(?))`,
		keys,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find active by phones")
	}
	defer rows.Close() //nolint:errcheck

	out := make(map[string]bool)
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan active phone")
		}
		out[p] = true
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate active phones")
}

// FindDeletedCycles implements LookupRepository.
func (r *SQLiteRepository) FindDeletedCycles(ctx context.Context, phones []string) (map[string]int, error) {
	keys, err := jsonKeys(phones)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT phone, times_added_removed FROM deleted_tracking WHERE phone IN (SELECT value FROM json_each(?))`,
		keys,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find deleted cycles")
	}
	defer rows.Close() //nolint:errcheck

	out := make(map[string]int)
	for rows.Next() {
		var p string
		var n int
		if err := rows.Scan(&p, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan deleted cycle")
		}
		out[p] = n
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate deleted cycles")
}

// FindLitigators implements LookupRepository.
func (r *SQLiteRepository) FindLitigators(ctx context.Context, phones []string) (map[string]model.LitigatorEntry, error) {
	keys, err := jsonKeys(phones)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT phone, case_count, risk_level FROM litigators WHERE phone IN (SELECT value FROM json_each(?))`,
		keys,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find litigators")
	}
	defer rows.Close() //nolint:errcheck

	out := make(map[string]model.LitigatorEntry)
	for rows.Next() {
		var e model.LitigatorEntry
		var level string
		if err := rows.Scan(&e.Phone, &e.CaseCount, &level); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan litigator")
		}
		e.RiskLevel = model.RiskLevel(level)
		out[e.Phone] = e
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate litigators")
}

// UpsertRegistryEntries implements ChangeRepository in one transaction.
func (r *SQLiteRepository) UpsertRegistryEntries(ctx context.Context, entries []model.RegistryEntry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	now := r.now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO registry (phone, area_code, state, source, is_active, date_added, last_verified, release_date, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(phone) DO UPDATE SET
			area_code = excluded.area_code,
			state = excluded.state,
			source = excluded.source,
			is_active = excluded.is_active,
			last_verified = excluded.last_verified,
			release_date = excluded.release_date,
			updated_at = excluded.updated_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, e := range entries {
		added := e.DateAdded
		if added.IsZero() {
			added = now
		}
		verified := e.LastVerified
		if verified.IsZero() {
			verified = now
		}
		res, err := stmt.ExecContext(ctx, e.Phone, e.AreaCode, nullString(e.State), e.Source, e.IsActive, added, verified, nullTime(e.ReleaseDate), now)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert %s", e.Phone)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert")
	}
	return n, nil
}

// FindActiveByPhone implements ChangeRepository.
func (r *SQLiteRepository) FindActiveByPhone(ctx context.Context, phone string) (*model.RegistryEntry, error) {
	var e model.RegistryEntry
	var state sql.NullString
	var release sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT phone, area_code, state, source, is_active, date_added, last_verified, release_date
		 FROM registry WHERE phone = ?`,
		phone,
	).Scan(&e.Phone, &e.AreaCode, &state, &e.Source, &e.IsActive, &e.DateAdded, &e.LastVerified, &release)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find active %s", phone)
	}
	e.State = state.String
	if release.Valid {
		t := release.Time
		e.ReleaseDate = &t
	}
	return &e, nil
}

// FindDeletedTrackingByPhone implements ChangeRepository.
func (r *SQLiteRepository) FindDeletedTrackingByPhone(ctx context.Context, phone string) (*model.DeletedTrackingEntry, error) {
	var e model.DeletedTrackingEntry
	var state sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT phone, area_code, state, deleted_from_dnc_date, original_add_date, times_added_removed, delete_after, source
		 FROM deleted_tracking WHERE phone = ?`,
		phone,
	).Scan(&e.Phone, &e.AreaCode, &state, &e.DeletedFromDNC, &e.OriginalAddDate, &e.TimesAddedRemoved, &e.DeleteAfter, &e.Source)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: find deleted tracking %s", phone)
	}
	e.State = state.String
	return &e, nil
}

// UpsertDeletedTracking implements ChangeRepository.
func (r *SQLiteRepository) UpsertDeletedTracking(ctx context.Context, e model.DeletedTrackingEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO deleted_tracking
			(phone, area_code, state, deleted_from_dnc_date, original_add_date, times_added_removed, delete_after, source)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(phone) DO UPDATE SET
			area_code = excluded.area_code,
			state = excluded.state,
			deleted_from_dnc_date = excluded.deleted_from_dnc_date,
			times_added_removed = MAX(deleted_tracking.times_added_removed, excluded.times_added_removed),
			delete_after = excluded.delete_after,
			source = excluded.source`,
		e.Phone, e.AreaCode, nullString(e.State), e.DeletedFromDNC, e.OriginalAddDate, e.TimesAddedRemoved, e.DeleteAfter, e.Source,
	)
	return eris.Wrapf(err, "sqlite: upsert deleted tracking %s", e.Phone)
}

// DeleteByPhone implements ChangeRepository.
func (r *SQLiteRepository) DeleteByPhone(ctx context.Context, phone string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM registry WHERE phone = ?`, phone)
	return eris.Wrapf(err, "sqlite: delete %s", phone)
}

// UpsertLitigators loads litigator reference data.
func (r *SQLiteRepository) UpsertLitigators(ctx context.Context, entries []model.LitigatorEntry) (int64, error) {
	var n int64
	for _, e := range entries {
		res, err := r.db.ExecContext(ctx,
			`INSERT INTO litigators (phone, case_count, risk_level) VALUES (?, ?, ?)
			 ON CONFLICT(phone) DO UPDATE SET case_count = excluded.case_count, risk_level = excluded.risk_level`,
			e.Phone, e.CaseCount, string(e.RiskLevel),
		)
		if err != nil {
			return n, eris.Wrapf(err, "sqlite: upsert litigator %s", e.Phone)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	return n, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

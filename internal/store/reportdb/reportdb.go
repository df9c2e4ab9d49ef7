// Package reportdb is the persistence boundary: a SQLite-backed document
// store holding one report per day plus a TTL profile cache.
package reportdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"gramtrack/internal/model"
)

// DB wraps the SQLite handle. Open it once at process start and pass it to
// the repository constructors; Close it at shutdown.
type DB struct{ sql *sql.DB }

func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		return nil, err
	}
	db := &DB{sql: d}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS reports (
	  id TEXT PRIMARY KEY,
	  generated_at INTEGER NOT NULL UNIQUE,
	  doc TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reports_generated_at ON reports(generated_at);
	CREATE TABLE IF NOT EXISTS profile_cache (
	  username TEXT PRIMARY KEY,
	  expire_at INTEGER NOT NULL,
	  doc TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_profile_cache_expire ON profile_cache(expire_at);
	`)
	return err
}

// ReportRepository stores report documents keyed by day.
type ReportRepository struct{ db *DB }

func NewReportRepository(db *DB) *ReportRepository { return &ReportRepository{db: db} }

// Save upserts the report by id. Saving the same report twice yields the same
// stored state.
func (r *ReportRepository) Save(ctx context.Context, rep model.Report) error {
	doc, err := json.Marshal(rep)
	if err != nil {
		return err
	}
	_, err = r.db.sql.ExecContext(ctx,
		`INSERT INTO reports(id, generated_at, doc) VALUES(?,?,?)
		 ON CONFLICT(id) DO UPDATE SET generated_at=excluded.generated_at, doc=excluded.doc`,
		rep.ID, rep.GeneratedAt.Unix(), string(doc))
	return err
}

// FindLatest returns the most recent report, optionally strictly before the
// given instant. A missing report is (nil, nil), not an error.
func (r *ReportRepository) FindLatest(ctx context.Context, before *time.Time) (*model.Report, error) {
	var row *sql.Row
	if before != nil {
		row = r.db.sql.QueryRowContext(ctx,
			`SELECT doc FROM reports WHERE generated_at < ? ORDER BY generated_at DESC LIMIT 1`,
			before.Unix())
	} else {
		row = r.db.sql.QueryRowContext(ctx,
			`SELECT doc FROM reports ORDER BY generated_at DESC LIMIT 1`)
	}
	return scanReport(row)
}

// FindByGeneratedAt is the exact-match lookup used for the "already generated
// today" check.
func (r *ReportRepository) FindByGeneratedAt(ctx context.Context, t time.Time) (*model.Report, error) {
	row := r.db.sql.QueryRowContext(ctx,
		`SELECT doc FROM reports WHERE generated_at = ?`, t.Unix())
	return scanReport(row)
}

// FindRecent returns up to limit reports, newest first.
func (r *ReportRepository) FindRecent(ctx context.Context, limit int) ([]model.Report, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.sql.QueryContext(ctx,
		`SELECT doc FROM reports ORDER BY generated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Report
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var rep model.Report
		if err := json.Unmarshal([]byte(doc), &rep); err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

func scanReport(row *sql.Row) (*model.Report, error) {
	var doc string
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var rep model.Report
	if err := json.Unmarshal([]byte(doc), &rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// ProfileCacheRepository is a cache-aside store of extended profiles keyed by
// username with an explicit expiry checked on read.
type ProfileCacheRepository struct {
	db  *DB
	now func() time.Time
}

func NewProfileCacheRepository(db *DB) *ProfileCacheRepository {
	return &ProfileCacheRepository{db: db, now: time.Now}
}

// FindByUsername returns the cached entry, or nil when absent or stale.
// Stale rows are deleted on read.
func (p *ProfileCacheRepository) FindByUsername(ctx context.Context, username string) (*model.ProfileCacheEntry, error) {
	row := p.db.sql.QueryRowContext(ctx,
		`SELECT doc FROM profile_cache WHERE username = ?`, username)
	var doc string
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var entry model.ProfileCacheEntry
	if err := json.Unmarshal([]byte(doc), &entry); err != nil {
		return nil, err
	}
	if entry.Expired(p.now().UTC()) {
		_, _ = p.db.sql.ExecContext(ctx, `DELETE FROM profile_cache WHERE username = ?`, username)
		return nil, nil
	}
	return &entry, nil
}

// Upsert stores the profile under username with a fresh TTL.
func (p *ProfileCacheRepository) Upsert(ctx context.Context, username string, profile model.Profile, ttlDays int) (*model.ProfileCacheEntry, error) {
	if ttlDays <= 0 {
		ttlDays = 10
	}
	entry := model.ProfileCacheEntry{
		Profile:  profile,
		ExpireAt: p.now().UTC().Add(time.Duration(ttlDays) * 24 * time.Hour),
	}
	entry.Username = username
	doc, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	_, err = p.db.sql.ExecContext(ctx,
		`INSERT INTO profile_cache(username, expire_at, doc) VALUES(?,?,?)
		 ON CONFLICT(username) DO UPDATE SET expire_at=excluded.expire_at, doc=excluded.doc`,
		username, entry.ExpireAt.Unix(), string(doc))
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

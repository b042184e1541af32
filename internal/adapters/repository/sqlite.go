package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/herdwatch/internal/domain/model"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// sqliteDDL bootstraps the schema. Timestamps are unix nanoseconds; zero
// means unset.
const sqliteDDL = `
CREATE TABLE IF NOT EXISTS entities (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	lat         REAL,
	lon         REAL,
	battery     INTEGER,
	status      TEXT NOT NULL DEFAULT 'UNKNOWN',
	last_fix_at INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS entities_created_at ON entities (created_at, id);

CREATE TABLE IF NOT EXISTS geofences (
	name       TEXT PRIMARY KEY,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS geofence_vertices (
	fence TEXT    NOT NULL,
	seq   INTEGER NOT NULL,
	lat   REAL    NOT NULL,
	lon   REAL    NOT NULL,
	PRIMARY KEY (fence, seq)
);
`

// OpenSQLite opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(500)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single writer avoids SQLITE_BUSY; :memory: databases are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema: %w", err)
	}
	return db, nil
}

// SQLiteEntityStore stores entities in SQLite.
type SQLiteEntityStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteEntityStore wraps an open database.
func NewSQLiteEntityStore(db *sql.DB) *SQLiteEntityStore {
	return &SQLiteEntityStore{db: db, now: time.Now}
}

const entityColumns = `id, name, lat, lon, battery, status, last_fix_at, created_at, updated_at`

func (s *SQLiteEntityStore) Create(ctx context.Context, e model.TrackedEntity) error {
	now := s.now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	var lat, lon sql.NullFloat64
	if e.Position != nil {
		lat = sql.NullFloat64{Float64: e.Position.Lat, Valid: true}
		lon = sql.NullFloat64{Float64: e.Position.Lon, Valid: true}
	}
	var battery sql.NullInt64
	if e.Battery != nil {
		battery = sql.NullInt64{Int64: int64(*e.Battery), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entities (`+entityColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Name, lat, lon, battery, e.Status.String(),
		unixNano(e.LastFixAt), e.CreatedAt.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrConflict
		}
		return fmt.Errorf("insert entity %s: %w", e.ID, err)
	}
	return nil
}

func (s *SQLiteEntityStore) Get(ctx context.Context, id string) (model.TrackedEntity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TrackedEntity{}, entityNotFound(id)
	}
	if err != nil {
		return model.TrackedEntity{}, fmt.Errorf("select entity %s: %w", id, err)
	}
	return e, nil
}

func (s *SQLiteEntityStore) List(ctx context.Context) ([]model.TrackedEntity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entityColumns+` FROM entities ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var out []model.TrackedEntity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	return out, nil
}

func (s *SQLiteEntityStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete entity %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return entityNotFound(id)
	}
	return nil
}

func (s *SQLiteEntityStore) UpdateState(ctx context.Context, id string, u model.StateUpdate) error {
	var (
		lat, lon sql.NullFloat64
		battery  sql.NullInt64
		lastFix  sql.NullInt64
	)
	if u.Position != nil {
		lat = sql.NullFloat64{Float64: u.Position.Lat, Valid: true}
		lon = sql.NullFloat64{Float64: u.Position.Lon, Valid: true}
	}
	if u.Battery != nil {
		battery = sql.NullInt64{Int64: int64(*u.Battery), Valid: true}
	}
	if !u.LastFixAt.IsZero() {
		lastFix = sql.NullInt64{Int64: u.LastFixAt.UnixNano(), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
UPDATE entities SET
	status      = ?,
	lat         = COALESCE(?, lat),
	lon         = COALESCE(?, lon),
	battery     = COALESCE(?, battery),
	last_fix_at = COALESCE(?, last_fix_at),
	updated_at  = ?
WHERE id = ?`,
		u.Status.String(), lat, lon, battery, lastFix, s.now().UnixNano(), id,
	)
	if err != nil {
		return fmt.Errorf("update entity %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return entityNotFound(id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(r rowScanner) (model.TrackedEntity, error) {
	var (
		e                         model.TrackedEntity
		lat, lon                  sql.NullFloat64
		battery                   sql.NullInt64
		status                    string
		lastFix, created, updated int64
	)
	if err := r.Scan(&e.ID, &e.Name, &lat, &lon, &battery, &status, &lastFix, &created, &updated); err != nil {
		return model.TrackedEntity{}, err
	}
	st, err := model.ParseStatus(status)
	if err != nil {
		return model.TrackedEntity{}, err
	}
	e.Status = st
	if lat.Valid && lon.Valid {
		e.Position = &model.Point{Lat: lat.Float64, Lon: lon.Float64}
	}
	if battery.Valid {
		b := int(battery.Int64)
		e.Battery = &b
	}
	e.LastFixAt = fromUnixNano(lastFix)
	e.CreatedAt = fromUnixNano(created)
	e.UpdatedAt = fromUnixNano(updated)
	return e, nil
}

// SQLiteFenceStore stores geofences in SQLite.
type SQLiteFenceStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteFenceStore wraps an open database.
func NewSQLiteFenceStore(db *sql.DB) *SQLiteFenceStore {
	return &SQLiteFenceStore{db: db, now: time.Now}
}

func (s *SQLiteFenceStore) Get(ctx context.Context, name string) (model.Geofence, error) {
	var updated int64
	err := s.db.QueryRowContext(ctx, `SELECT updated_at FROM geofences WHERE name = ?`, name).Scan(&updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Geofence{}, fenceNotFound(name)
	}
	if err != nil {
		return model.Geofence{}, fmt.Errorf("select geofence %s: %w", name, err)
	}

	vertices, err := s.vertices(ctx, name)
	if err != nil {
		return model.Geofence{}, err
	}
	return model.Geofence{Name: name, Vertices: vertices, UpdatedAt: fromUnixNano(updated)}, nil
}

func (s *SQLiteFenceStore) vertices(ctx context.Context, name string) ([]model.Point, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT lat, lon FROM geofence_vertices WHERE fence = ? ORDER BY seq`, name)
	if err != nil {
		return nil, fmt.Errorf("select vertices %s: %w", name, err)
	}
	defer rows.Close()

	var out []model.Point
	for rows.Next() {
		var p model.Point
		if err := rows.Scan(&p.Lat, &p.Lon); err != nil {
			return nil, fmt.Errorf("scan vertex: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Replace deletes and re-inserts the vertex list in one transaction, so
// readers see either the old ring or the new one.
func (s *SQLiteFenceStore) Replace(ctx context.Context, name string, vertices []model.Point) (model.Geofence, error) {
	now := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Geofence{}, fmt.Errorf("begin replace %s: %w", name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO geofences (name, updated_at) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET updated_at = excluded.updated_at`,
		name, now.UnixNano()); err != nil {
		return model.Geofence{}, fmt.Errorf("upsert geofence %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM geofence_vertices WHERE fence = ?`, name); err != nil {
		return model.Geofence{}, fmt.Errorf("clear vertices %s: %w", name, err)
	}
	for i, v := range vertices {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO geofence_vertices (fence, seq, lat, lon) VALUES (?, ?, ?, ?)`,
			name, i, v.Lat, v.Lon); err != nil {
			return model.Geofence{}, fmt.Errorf("insert vertex %d of %s: %w", i, name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return model.Geofence{}, fmt.Errorf("commit replace %s: %w", name, err)
	}

	return model.Geofence{
		Name:      name,
		Vertices:  append([]model.Point(nil), vertices...),
		UpdatedAt: fromUnixNano(now.UnixNano()),
	}, nil
}

func (s *SQLiteFenceStore) Delete(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete %s: %w", name, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM geofences WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete geofence %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fenceNotFound(name)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM geofence_vertices WHERE fence = ?`, name); err != nil {
		return fmt.Errorf("delete vertices %s: %w", name, err)
	}
	return tx.Commit()
}

func (s *SQLiteFenceStore) List(ctx context.Context) ([]model.Geofence, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM geofences ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list geofences: %w", err)
	}
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan geofence: %w", err)
		}
		names = append(names, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list geofences: %w", err)
	}

	out := make([]model.Geofence, 0, len(names))
	for _, n := range names {
		g, err := s.Get(ctx, n)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

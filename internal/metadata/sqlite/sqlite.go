// Package sqlite provides a single-file metadata store on modernc.org/sqlite
// for deployments without PostgreSQL.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AndyChoi4495/fragments/internal/fragment"
	"github.com/AndyChoi4495/fragments/internal/metrics"
)

const (
	busyTimeoutMS   = 5000
	maxOpenConns    = 1
	maxIdleConns    = 1
	connMaxLifetime = 5 * time.Minute
)

// migration is one schema step.
type migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations is the ordered list of schema steps. Timestamps are stored as
// Unix nanoseconds so ordering is numeric.
var migrations = []migration{
	{
		Version:     1,
		Description: "fragments table",
		SQL: `
CREATE TABLE IF NOT EXISTS fragments (
  owner_id TEXT NOT NULL,
  id TEXT NOT NULL,
  type TEXT NOT NULL,
  size INTEGER NOT NULL CHECK (size >= 0),
  created_ns INTEGER NOT NULL,
  updated_ns INTEGER NOT NULL,
  PRIMARY KEY (owner_id, id)
);

CREATE INDEX IF NOT EXISTS idx_fragments_owner_created ON fragments(owner_id, created_ns);
`,
	},
	{
		Version:     2,
		Description: "payload object key",
		SQL:         `ALTER TABLE fragments ADD COLUMN object_key TEXT NOT NULL DEFAULT '';`,
	},
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens the SQLite database and bootstraps the schema.
func Open(path string) (*Store, error) {
	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := configureDB(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func configureDB(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeoutMS),
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	return nil
}

func sqliteDSN(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("db path is required")
	}
	u := url.URL{Scheme: "file", Path: path}
	return u.String(), nil
}

func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at TEXT NOT NULL
);`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var current int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, datetime('now'))", m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func fromNanos(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(row scanner) (*fragment.Fragment, error) {
	f := &fragment.Fragment{}
	var created, updated int64
	if err := row.Scan(&f.ID, &f.OwnerID, &f.Type, &f.Size, &f.ObjectKey, &created, &updated); err != nil {
		return nil, err
	}
	f.Created = fromNanos(created)
	f.Updated = fromNanos(updated)
	return f, nil
}

// Get returns one metadata row.
func (s *Store) Get(ctx context.Context, ownerID, id string) (*fragment.Fragment, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("get_fragment", time.Since(start)) }()

	f, err := scanRow(s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, type, size, object_key, created_ns, updated_ns
		 FROM fragments WHERE owner_id = ? AND id = ?`, ownerID, id))
	if err == sql.ErrNoRows {
		return nil, fragment.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query fragment %s: %w", id, err)
	}
	return f, nil
}

// Put upserts a metadata row. Created is kept from the first insert.
func (s *Store) Put(ctx context.Context, f *fragment.Fragment) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("put_fragment", time.Since(start)) }()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fragments (owner_id, id, type, size, object_key, created_ns, updated_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (owner_id, id) DO UPDATE
		 SET type = excluded.type, size = excluded.size,
		     object_key = excluded.object_key, updated_ns = excluded.updated_ns`,
		f.OwnerID, f.ID, f.Type, f.Size, f.ObjectKey, f.Created.UnixNano(), f.Updated.UnixNano())
	if err != nil {
		return fmt.Errorf("upsert fragment %s: %w", f.ID, err)
	}
	return nil
}

// List returns the owner's rows, oldest first.
func (s *Store) List(ctx context.Context, ownerID string) ([]*fragment.Fragment, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("list_fragments", time.Since(start)) }()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, type, size, object_key, created_ns, updated_ns
		 FROM fragments WHERE owner_id = ? ORDER BY created_ns, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query fragments: %w", err)
	}
	defer rows.Close()

	var out []*fragment.Fragment
	for rows.Next() {
		f, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Delete removes one row.
func (s *Store) Delete(ctx context.Context, ownerID, id string) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("delete_fragment", time.Since(start)) }()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM fragments WHERE owner_id = ? AND id = ?`, ownerID, id)
	if err != nil {
		return fmt.Errorf("delete fragment %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete fragment %s: %w", id, err)
	}
	if n == 0 {
		return fragment.ErrNotFound
	}
	return nil
}

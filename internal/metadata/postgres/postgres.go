// Package postgres provides a PostgreSQL-backed metadata store with metrics.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/AndyChoi4495/fragments/internal/fragment"
	"github.com/AndyChoi4495/fragments/internal/logging"
	"github.com/AndyChoi4495/fragments/internal/metrics"
)

//go:embed migrations/*.up.sql
var migrations embed.FS

// Store is a PostgreSQL metadata store.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL metadata store.
func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate runs the embedded SQL migrations in name order. Every migration
// is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	files, err := fs.Glob(migrations, "migrations/*.up.sql")
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}
	sort.Strings(files)

	for _, f := range files {
		logging.Info("running migration", zap.String("file", f))
		content, err := migrations.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
	}
	return nil
}

// Get returns one metadata row.
func (s *Store) Get(ctx context.Context, ownerID, id string) (*fragment.Fragment, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("get_fragment", time.Since(start)) }()

	f := &fragment.Fragment{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, type, size, object_key, created_at, updated_at
		 FROM fragments WHERE owner_id = $1 AND id = $2`,
		ownerID, id,
	).Scan(&f.ID, &f.OwnerID, &f.Type, &f.Size, &f.ObjectKey, &f.Created, &f.Updated)
	if err == sql.ErrNoRows {
		return nil, fragment.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query fragment %s: %w", id, err)
	}
	f.Created = f.Created.UTC()
	f.Updated = f.Updated.UTC()
	return f, nil
}

// Put upserts a metadata row. Created is kept from the first insert.
func (s *Store) Put(ctx context.Context, f *fragment.Fragment) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("put_fragment", time.Since(start)) }()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fragments (owner_id, id, type, size, object_key, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (owner_id, id) DO UPDATE
		 SET type = EXCLUDED.type, size = EXCLUDED.size,
		     object_key = EXCLUDED.object_key, updated_at = EXCLUDED.updated_at`,
		f.OwnerID, f.ID, f.Type, f.Size, f.ObjectKey, f.Created, f.Updated)
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
		`SELECT id, owner_id, type, size, object_key, created_at, updated_at
		 FROM fragments WHERE owner_id = $1 ORDER BY created_at, id`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("query fragments: %w", err)
	}
	defer rows.Close()

	var out []*fragment.Fragment
	for rows.Next() {
		f := &fragment.Fragment{}
		if err := rows.Scan(&f.ID, &f.OwnerID, &f.Type, &f.Size, &f.ObjectKey, &f.Created, &f.Updated); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		f.Created = f.Created.UTC()
		f.Updated = f.Updated.UTC()
		out = append(out, f)
	}
	return out, rows.Err()
}

// Delete removes one row.
func (s *Store) Delete(ctx context.Context, ownerID, id string) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("delete_fragment", time.Since(start)) }()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM fragments WHERE owner_id = $1 AND id = $2`, ownerID, id)
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

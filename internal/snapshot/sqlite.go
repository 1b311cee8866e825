package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS rolechain_snapshots (
  id INTEGER PRIMARY KEY CHECK (id = 1), -- single current snapshot
  version INTEGER NOT NULL,
  generated_at INTEGER NOT NULL,          -- unix millis
  body TEXT NOT NULL                      -- JSON encoded Snapshot
);
`

// SQLiteRepository keeps the current snapshot in a single-row SQLite table.
type SQLiteRepository struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: ensure dir: %w", err)
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := conn.Exec(sqliteSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("snapshot: init schema: %w", err)
	}
	return &SQLiteRepository{db: conn, path: path}, nil
}

// Path returns the database file.
func (r *SQLiteRepository) Path() string {
	return r.path
}

// Close releases the database handle.
func (r *SQLiteRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Load reads the current snapshot.
func (r *SQLiteRepository) Load(ctx context.Context) (Snapshot, error) {
	var body string
	err := r.db.QueryRowContext(ctx, `SELECT body FROM rolechain_snapshots WHERE id = 1`).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, fmt.Errorf("snapshot: query: %w", err)
	}
	return Decode([]byte(body))
}

// Save replaces the current snapshot.
func (r *SQLiteRepository) Save(ctx context.Context, s Snapshot) error {
	data, err := Encode(s)
	if err != nil {
		return err
	}
	generated := s.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO rolechain_snapshots (id, version, generated_at, body)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version = excluded.version,
			generated_at = excluded.generated_at,
			body = excluded.body
	`, Version, generated.UnixMilli(), string(data))
	if err != nil {
		return fmt.Errorf("snapshot: save: %w", err)
	}
	return nil
}

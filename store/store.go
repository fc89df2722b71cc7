// Package store is the durable primary store: an ordered map of items keyed
// by a monotonically increasing id, with a unique content-hash index for
// deduplication, a timestamp index for recency scans and pruning, and a kind
// index for filter-by-kind queries. One serialized write connection and a
// read pool give single-writer multi-reader semantics; every row mutation
// commits atomically with its trigram-index entry.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/jul-sh/clipkitty/index"
)

// ErrNotFound is returned when a requested id does not exist.
var ErrNotFound = errors.New("item not found")

const schema = `
CREATE TABLE IF NOT EXISTS items (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	content_hash BLOB NOT NULL UNIQUE,
	timestamp INTEGER NOT NULL,
	kind INTEGER NOT NULL,
	source_app_name TEXT NOT NULL DEFAULT '',
	source_app_id TEXT NOT NULL DEFAULT '',
	searchable_text TEXT NOT NULL,
	text_value TEXT,
	image_bytes BLOB,
	thumbnail_bytes BLOB,
	image_description TEXT,
	link_url TEXT,
	link_state INTEGER,
	link_title TEXT,
	link_description TEXT,
	link_image BLOB,
	color_rgba INTEGER,
	color_raw TEXT,
	file_paths TEXT
);
CREATE INDEX IF NOT EXISTS idx_items_timestamp ON items (timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_items_kind ON items (kind);
`

// Store owns the SQLite database holding both the primary rows and the
// trigram index table.
type Store struct {
	write *sql.DB
	read  *sql.DB
	path  string
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	write, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// AUTOINCREMENT ids must never be reused; the single connection is the
	// serialized write session.
	write.SetMaxOpenConns(1)

	read, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		write.Close()
		return nil, fmt.Errorf("open store (read): %w", err)
	}

	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA synchronous = NORMAL`,
		`PRAGMA busy_timeout = 5000`,
	} {
		if _, err := write.Exec(pragma); err != nil {
			write.Close()
			read.Close()
			return nil, fmt.Errorf("store pragma: %w", err)
		}
	}
	if _, err := read.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		write.Close()
		read.Close()
		return nil, fmt.Errorf("store pragma: %w", err)
	}

	if _, err := write.Exec(schema); err != nil {
		write.Close()
		read.Close()
		return nil, fmt.Errorf("store schema: %w", err)
	}
	if _, err := write.Exec(index.DDL); err != nil {
		write.Close()
		read.Close()
		return nil, fmt.Errorf("index schema: %w", err)
	}

	return &Store{write: write, read: read, path: path}, nil
}

// ReadDB exposes the read pool for the index and search paths.
func (s *Store) ReadDB() *sql.DB {
	return s.read
}

// Size reports the database size in bytes from the page counters, O(1).
func (s *Store) Size(ctx context.Context) (int64, error) {
	var pageCount, pageSize int64
	if err := s.read.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&pageCount); err != nil {
		return 0, fmt.Errorf("store size: %w", err)
	}
	if err := s.read.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&pageSize); err != nil {
		return 0, fmt.Errorf("store size: %w", err)
	}
	return pageCount * pageSize, nil
}

// Count reports the number of live items.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.read.QueryRowContext(ctx, `SELECT count(*) FROM items`).Scan(&n)
	return n, err
}

func (s *Store) Close() error {
	werr := s.write.Close()
	rerr := s.read.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// withWriteTx runs f inside a transaction on the serialized write session.
func (s *Store) withWriteTx(ctx context.Context, f func(tx *sql.Tx) error) error {
	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := f(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

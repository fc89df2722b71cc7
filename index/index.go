// Package index maintains the trigram full-text index as an SQLite FTS5
// virtual table. Writes go through the store's transactions so a row and its
// index entry are always committed together; this package only owns the FTS
// statements and the trigram query construction.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jul-sh/clipkitty/tokenizer"
)

// DDL creates the FTS5 table. The trigram tokenizer gives substring recall
// over 3-char shingles; rowids mirror item ids.
const DDL = `CREATE VIRTUAL TABLE IF NOT EXISTS items_fts USING fts5(text, tokenize='trigram')`

// Candidate is one index hit. BM25 is advisory only; higher is better.
type Candidate struct {
	ID   int64
	BM25 float64
}

// UpsertTx replaces the index entry for an item. Idempotent.
func UpsertTx(tx *sql.Tx, id int64, searchableText string) error {
	if _, err := tx.Exec(`DELETE FROM items_fts WHERE rowid = ?`, id); err != nil {
		return fmt.Errorf("index delete: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO items_fts (rowid, text) VALUES (?, ?)`, id, searchableText); err != nil {
		return fmt.Errorf("index insert: %w", err)
	}
	return nil
}

// DeleteTx removes the index entry for an item.
func DeleteTx(tx *sql.Tx, id int64) error {
	_, err := tx.Exec(`DELETE FROM items_fts WHERE rowid = ?`, id)
	if err != nil {
		return fmt.Errorf("index delete: %w", err)
	}
	return nil
}

// ClearTx drops all index entries.
func ClearTx(tx *sql.Tx) error {
	_, err := tx.Exec(`DELETE FROM items_fts`)
	if err != nil {
		return fmt.Errorf("index clear: %w", err)
	}
	return nil
}

// RebuildTx reindexes every live item from the primary rows, then compacts
// the FTS b-tree. Used after bulk deletes and when the startup sanity scan
// finds an inconsistency.
func RebuildTx(tx *sql.Tx) error {
	if err := ClearTx(tx); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO items_fts (rowid, text) SELECT id, searchable_text FROM items`); err != nil {
		return fmt.Errorf("index rebuild: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO items_fts (items_fts) VALUES ('optimize')`); err != nil {
		return fmt.Errorf("index optimize: %w", err)
	}
	return nil
}

// Index answers candidate-recall queries over a read connection.
type Index struct {
	db *sql.DB
}

func New(db *sql.DB) *Index {
	return &Index{db: db}
}

// Query returns the ids whose indexed text contains every trigram of q,
// with an advisory BM25 score per candidate, in arbitrary order. q must be
// at least 3 runes; shorter queries bypass the index entirely.
func (ix *Index) Query(ctx context.Context, q string, limit int) ([]Candidate, error) {
	trigrams := Trigrams(tokenizer.Fold(q))
	if len(trigrams) == 0 {
		return nil, nil
	}
	match := matchExpr(trigrams)

	rows, err := ix.db.QueryContext(ctx,
		`SELECT rowid, bm25(items_fts) FROM items_fts WHERE items_fts MATCH ? ORDER BY rank LIMIT ?`,
		match, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("index query: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		var rank float64
		if err := rows.Scan(&c.ID, &rank); err != nil {
			return nil, fmt.Errorf("index scan: %w", err)
		}
		// bm25() reports smaller-is-better (negative); flip so higher wins.
		c.BM25 = -rank
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// Count reports the number of indexed rows, for the startup sanity scan.
func (ix *Index) Count(ctx context.Context) (int64, error) {
	var n int64
	err := ix.db.QueryRowContext(ctx, `SELECT count(*) FROM items_fts`).Scan(&n)
	return n, err
}

// Trigrams returns the distinct 3-rune sliding windows of s.
func Trigrams(s string) []string {
	runes := []rune(s)
	if len(runes) < 3 {
		return nil
	}
	seen := make(map[string]struct{}, len(runes))
	out := make([]string, 0, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		t := string(runes[i : i+3])
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// matchExpr builds an FTS5 MATCH expression requiring every trigram:
// each trigram becomes a quoted phrase joined with AND.
func matchExpr(trigrams []string) string {
	var b strings.Builder
	for i, t := range trigrams {
		if i > 0 {
			b.WriteString(" AND ")
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(t, `"`, `""`))
		b.WriteByte('"')
	}
	return b.String()
}

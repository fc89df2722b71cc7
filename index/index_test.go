package index

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/jul-sh/clipkitty/tokenizer"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+t.TempDir()+"/index_test.sqlite3")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE items (id INTEGER PRIMARY KEY, searchable_text TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(DDL)
	require.NoError(t, err)
	return db
}

func upsert(t *testing.T, db *sql.DB, id int64, text string) {
	t.Helper()
	tx, err := db.Begin()
	require.NoError(t, err)
	_, err = tx.Exec(`INSERT INTO items (id, searchable_text) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET searchable_text = excluded.searchable_text`, id, text)
	require.NoError(t, err)
	require.NoError(t, UpsertTx(tx, id, text))
	require.NoError(t, tx.Commit())
}

func remove(t *testing.T, db *sql.DB, id int64) {
	t.Helper()
	tx, err := db.Begin()
	require.NoError(t, err)
	_, err = tx.Exec(`DELETE FROM items WHERE id = ?`, id)
	require.NoError(t, err)
	require.NoError(t, DeleteTx(tx, id))
	require.NoError(t, tx.Commit())
}

func ids(candidates []Candidate) []int64 {
	out := make([]int64, len(candidates))
	for i, c := range candidates {
		out[i] = c.ID
	}
	return out
}

func TestTrigrams(t *testing.T) {
	assert.Nil(t, Trigrams("ab"))
	assert.Equal(t, []string{"abc"}, Trigrams("abc"))
	assert.Equal(t, []string{"abc", "bcd"}, Trigrams("abcd"))
	// Duplicates collapse.
	assert.Equal(t, []string{"aaa"}, Trigrams("aaaaa"))
}

func TestQueryReturnsContainingItems(t *testing.T) {
	db := openTestDB(t)
	ix := New(db)

	upsert(t, db, 1, "hello world foo")
	upsert(t, db, 2, "say hello world")
	upsert(t, db, 3, "unrelated content")

	got, err := ix.Query(context.Background(), "hello", 100)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2}, ids(got))

	got, err = ix.Query(context.Background(), "world foo", 100)
	require.NoError(t, err)
	// Conjunction of trigrams, not a contiguous phrase: both items carry
	// every trigram except "d f"/"ld " style spans unique to item 1.
	assert.Contains(t, ids(got), int64(1))
}

func TestQueryCaseFolds(t *testing.T) {
	db := openTestDB(t)
	ix := New(db)
	upsert(t, db, 1, "Hello World")

	got, err := ix.Query(context.Background(), "HELLO", 100)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids(got))
}

func TestUpsertReplacesOldText(t *testing.T) {
	db := openTestDB(t)
	ix := New(db)

	upsert(t, db, 1, "first version")
	upsert(t, db, 1, "second revision")

	got, err := ix.Query(context.Background(), "first", 100)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = ix.Query(context.Background(), "second", 100)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids(got))
}

func TestDeletePurgesEntry(t *testing.T) {
	db := openTestDB(t)
	ix := New(db)

	upsert(t, db, 1, "disposable text")
	remove(t, db, 1)

	got, err := ix.Query(context.Background(), "disposable", 100)
	require.NoError(t, err)
	assert.Empty(t, got)

	n, err := ix.Count(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestRebuildFromPrimary(t *testing.T) {
	db := openTestDB(t)
	ix := New(db)

	upsert(t, db, 1, "alpha beta")
	upsert(t, db, 2, "gamma delta")

	// Desync the index, then rebuild from the primary rows.
	_, err := db.Exec(`DELETE FROM items_fts`)
	require.NoError(t, err)

	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, RebuildTx(tx))
	require.NoError(t, tx.Commit())

	got, err := ix.Query(context.Background(), "gamma", 100)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids(got))
}

// After any interleaving of writes and deletes, the candidate set equals the
// set of items whose folded text contains every trigram of the folded query.
func TestIndexConsistencyProperty(t *testing.T) {
	db := openTestDB(t)
	ix := New(db)

	texts := map[int64]string{
		1: "the quick brown fox",
		2: "quickest route home",
		3: "a slow brown snail",
		4: "THE QUICK start guide",
	}
	for id, text := range texts {
		upsert(t, db, id, text)
	}
	remove(t, db, 2)
	delete(texts, 2)
	upsert(t, db, 3, "a fast brown snail")
	texts[3] = "a fast brown snail"

	for _, q := range []string{"quick", "brown", "fox", "snail", "route", "the q"} {
		want := []int64{}
		for id, text := range texts {
			folded := tokenizer.Fold(text)
			all := true
			for _, tri := range Trigrams(tokenizer.Fold(q)) {
				if !strings.Contains(folded, tri) {
					all = false
					break
				}
			}
			if all {
				want = append(want, id)
			}
		}
		got, err := ix.Query(context.Background(), q, 100)
		require.NoError(t, err)
		assert.ElementsMatch(t, want, ids(got), "query %q", q)
	}
}

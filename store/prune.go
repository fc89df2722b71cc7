package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jul-sh/clipkitty/index"
)

// minPruneBatch keeps each prune worth its rebuild cost.
const minPruneBatch = 100

// PruneToSize deletes the least-recently-used suffix of the history in one
// batch, sized from the average row size to bring the database down to about
// maxBytes*keepRatio (at least minPruneBatch rows), then rebuilds the trigram
// index and reclaims file space. The size is not re-checked afterwards. Returns the number of bytes removed. A store already
// within maxBytes is untouched. This is the only bulk-delete path.
func (s *Store) PruneToSize(ctx context.Context, maxBytes int64, keepRatio float64) (int64, error) {
	if keepRatio <= 0 || keepRatio > 1 {
		keepRatio = 0.8
	}

	before, err := s.Size(ctx)
	if err != nil {
		return 0, err
	}
	if before <= maxBytes {
		return 0, nil
	}
	n, err := s.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	avg := before / n
	if avg == 0 {
		avg = 1
	}
	target := int64(float64(maxBytes) * keepRatio)
	deleteCount := (before - target + avg - 1) / avg
	if deleteCount < minPruneBatch {
		deleteCount = minPruneBatch
	}
	if deleteCount > n {
		deleteCount = n
	}

	err = s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`DELETE FROM items WHERE id IN (SELECT id FROM items ORDER BY timestamp ASC, id ASC LIMIT ?)`,
			deleteCount,
		)
		if err != nil {
			return fmt.Errorf("prune delete: %w", err)
		}
		// Rebuilding is cheaper than per-row index deletes at this batch
		// size, and it compacts the FTS b-tree in the same commit.
		return index.RebuildTx(tx)
	})
	if err != nil {
		return 0, err
	}

	// VACUUM cannot run inside a transaction.
	if _, err := s.write.ExecContext(ctx, `VACUUM`); err != nil {
		return 0, fmt.Errorf("prune vacuum: %w", err)
	}

	after, err := s.Size(ctx)
	if err != nil {
		return 0, err
	}
	removed := before - after
	if removed < 0 {
		removed = 0
	}
	slog.Info("pruned history", "component", "store", "deleted_rows", deleteCount, "bytes_removed", removed)
	return removed, nil
}

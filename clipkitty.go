// Package clipkitty is the clipboard history engine: durable capture of
// every non-sensitive clipboard change, and ranked sub-second search over
// the accumulated history. The presentation layer talks to the engine
// through this package and the search coordinator only.
package clipkitty

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/jul-sh/clipkitty/index"
	"github.com/jul-sh/clipkitty/ingest"
	"github.com/jul-sh/clipkitty/linkmeta"
	"github.com/jul-sh/clipkitty/store"
)

// storeFileName is the single database file inside the engine directory; it
// holds both the primary rows and the trigram index.
const storeFileName = "store.sqlite3"

// Config is supplied by the caller at open; the engine keeps no ambient
// state beyond it.
type Config struct {
	// Privacy filters applied by the capture loop.
	IgnoreConcealed bool
	IgnoreTransient bool
	IgnoredAppIDs   []string

	// Pruning policy. MaxBytes zero disables automatic pruning.
	MaxBytes  int64
	KeepRatio float64

	// RecentLimit caps the empty-query listing. Zero means 200.
	RecentLimit int

	// LegacyDirNames are sibling directories from prior releases; the first
	// one found is adopted once if the canonical directory does not exist.
	LegacyDirNames []string

	// Classifier labels images for search; nil skips classification and
	// leaves image descriptions empty.
	Classifier ingest.ImageClassifier

	// HTTPClient serves link-metadata fetches; nil uses a default client.
	HTTPClient *http.Client
}

// Engine owns the store, the index, and the background enrichment tasks.
type Engine struct {
	cfg     Config
	dir     string
	store   *store.Store
	index   *index.Index
	fetcher *linkmeta.Fetcher

	tasks     sync.WaitGroup
	pruneOnce sync.Once
}

// Open prepares the engine directory, migrating a legacy directory when the
// canonical one does not exist yet, opens the database, and verifies index
// consistency before accepting queries.
func Open(dir string, cfg Config) (*Engine, error) {
	if err := migrateLegacyDir(dir, cfg.LegacyDirNames); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create engine dir: %w", err)
	}

	st, err := store.Open(filepath.Join(dir, storeFileName))
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		dir:     dir,
		store:   st,
		index:   index.New(st.ReadDB()),
		fetcher: linkmeta.New(cfg.HTTPClient),
	}

	ctx := context.Background()
	if err := e.verifyIndex(ctx); err != nil {
		st.Close()
		return nil, err
	}

	if cfg.MaxBytes > 0 {
		if _, err := e.PruneToSize(ctx, cfg.MaxBytes, cfg.KeepRatio); err != nil {
			slog.Warn("startup prune failed", "component", "engine", "error", err)
		}
	}
	return e, nil
}

// Close cancels background enrichment and closes the database.
func (e *Engine) Close() error {
	e.fetcher.Close()
	e.tasks.Wait()
	return e.store.Close()
}

// NewPipeline builds the capture loop bound to this engine's privacy config.
func (e *Engine) NewPipeline(pb ingest.Pasteboard, power ingest.PowerMonitor) *ingest.Pipeline {
	return ingest.NewPipeline(pb, power, e, ingest.Config{
		IgnoreConcealed: e.cfg.IgnoreConcealed,
		IgnoreTransient: e.cfg.IgnoreTransient,
		IgnoredAppIDs:   e.cfg.IgnoredAppIDs,
	})
}

// Store exposes the primary store to the daemon harness.
func (e *Engine) Store() *store.Store {
	return e.store
}

// DatabaseSize reports the database size in bytes.
func (e *Engine) DatabaseSize(ctx context.Context) (int64, error) {
	return e.store.Size(ctx)
}

// PruneToSize trims the least-recently-used suffix; see store.PruneToSize.
func (e *Engine) PruneToSize(ctx context.Context, maxBytes int64, keepRatio float64) (int64, error) {
	return e.store.PruneToSize(ctx, maxBytes, keepRatio)
}

// DeleteItem removes one item; missing ids are a no-op.
func (e *Engine) DeleteItem(ctx context.Context, id int64) error {
	return e.store.Delete(ctx, id)
}

// Clear wipes the entire history.
func (e *Engine) Clear(ctx context.Context) error {
	return e.store.Clear(ctx)
}

// FetchByIDs hydrates items in the given order, skipping missing ids.
func (e *Engine) FetchByIDs(ctx context.Context, ids []int64) ([]store.Item, error) {
	return e.store.FetchByIDs(ctx, ids)
}

// FetchItem hydrates one item including blobs.
func (e *Engine) FetchItem(ctx context.Context, id int64) (*store.Item, error) {
	return e.store.FetchItem(ctx, id)
}

// UpdateTimestamp bumps an item's recency, called when the user pastes it.
func (e *Engine) UpdateTimestamp(ctx context.Context, id int64) error {
	return e.store.UpdateTimestamp(ctx, id, nowMillis())
}

// UpdateImageDescription records classifier labels for an image row.
func (e *Engine) UpdateImageDescription(ctx context.Context, id int64, description string) error {
	return e.store.UpdateImageDescription(ctx, id, description)
}

// UpdateLinkMetadata records fetched link metadata on a row.
func (e *Engine) UpdateLinkMetadata(ctx context.Context, id int64, title, description string, imageBytes []byte) error {
	return e.store.UpdateLinkMetadata(ctx, id, store.MetadataLoaded, title, description, imageBytes)
}

// verifyIndex is the startup sanity scan: a row-count mismatch between the
// primary table and the FTS table means a torn state from a crash, and the
// index is rebuilt from primary rows before queries are accepted.
func (e *Engine) verifyIndex(ctx context.Context) error {
	items, err := e.store.Count(ctx)
	if err != nil {
		return err
	}
	indexed, err := e.index.Count(ctx)
	if err != nil {
		return err
	}
	if items == indexed {
		return nil
	}
	slog.Warn("index inconsistency detected, rebuilding", "component", "engine", "items", items, "indexed", indexed)
	return e.store.Rebuild(ctx)
}

// migrateLegacyDir adopts a prior release's directory by rename, one-shot:
// only when the canonical directory does not exist yet, and only the first
// legacy directory found.
func migrateLegacyDir(dir string, legacyNames []string) error {
	if _, err := os.Stat(dir); err == nil {
		return nil
	}
	parent := filepath.Dir(dir)
	for _, name := range legacyNames {
		legacy := filepath.Join(parent, name)
		info, err := os.Stat(legacy)
		if err != nil || !info.IsDir() {
			continue
		}
		if err := os.Rename(legacy, dir); err != nil {
			return fmt.Errorf("migrate %s: %w", legacy, err)
		}
		slog.Info("migrated legacy directory", "component", "engine", "from", legacy, "to", dir)
		return nil
	}
	return nil
}

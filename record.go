package clipkitty

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jul-sh/clipkitty/imaging"
	"github.com/jul-sh/clipkitty/ingest"
	"github.com/jul-sh/clipkitty/store"
)

// Image transcode targets: a 2-megapixel area cap recompressed hard, plus a
// tiny thumbnail for the row view.
const (
	imageMaxPixels   = 2_000_000
	imageQuality     = 30
	thumbnailMaxSide = 64
	thumbnailQuality = 60
)

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// SaveText stores plain text. Identical text dedups to a recency bump.
func (e *Engine) SaveText(ctx context.Context, text, appName, appID string) (int64, error) {
	id, _, err := e.RecordText(ctx, text, appName, appID)
	return id, err
}

// SaveImage stores an already-transcoded image blob and its thumbnail. The
// dedup hash is computed over the decoded pixels, so the same picture in a
// different encoding still collides.
func (e *Engine) SaveImage(ctx context.Context, imageBytes, thumbBytes []byte, appName, appID string) (int64, error) {
	img, err := imaging.Decode(imageBytes)
	if err != nil {
		return 0, fmt.Errorf("transcode: %w", err)
	}
	item := &store.Item{
		ContentHash:   ingest.HashPixels(imaging.Pixels(img)),
		Timestamp:     nowMillis(),
		SourceAppName: appName,
		SourceAppID:   appID,
		Content:       store.ImageContent{Bytes: imageBytes, ThumbnailBytes: thumbBytes},
	}
	id, existed, err := e.store.Insert(ctx, item)
	if err != nil {
		return 0, err
	}
	if !existed {
		e.classifyAsync(id, imageBytes)
		e.pruneAfterInsert()
	}
	return id, nil
}

// SaveFileList stores a copied file set; sizes are stat'd best-effort.
func (e *Engine) SaveFileList(ctx context.Context, paths []string, appName, appID string) (int64, error) {
	filePaths := make([]store.FilePath, len(paths))
	for i, p := range paths {
		filePaths[i] = store.FilePath{Path: p, DisplayName: filepath.Base(p)}
		if info, err := os.Stat(p); err == nil {
			filePaths[i].ByteSize = info.Size()
		}
	}
	id, _, err := e.RecordFiles(ctx, filePaths, appName, appID)
	return id, err
}

// RecordText implements ingest.Recorder.
func (e *Engine) RecordText(ctx context.Context, text, appName, appID string) (int64, bool, error) {
	return e.insert(ctx, &store.Item{
		ContentHash:   ingest.HashText(text),
		SourceAppName: appName,
		SourceAppID:   appID,
		Content:       store.TextContent{Value: text},
	})
}

// RecordLink inserts the link immediately with pending metadata, then
// enriches it off the write path.
func (e *Engine) RecordLink(ctx context.Context, url, appName, appID string) (int64, bool, error) {
	id, existed, err := e.insert(ctx, &store.Item{
		ContentHash:   ingest.HashText(url),
		SourceAppName: appName,
		SourceAppID:   appID,
		Content:       store.LinkContent{URL: url, State: store.MetadataPending},
	})
	if err == nil && !existed {
		e.fetchMetadataAsync(id, url)
	}
	return id, existed, err
}

// RecordColor implements ingest.Recorder.
func (e *Engine) RecordColor(ctx context.Context, rgba uint32, raw, appName, appID string) (int64, bool, error) {
	return e.insert(ctx, &store.Item{
		ContentHash:   ingest.HashText(raw),
		SourceAppName: appName,
		SourceAppID:   appID,
		Content:       store.ColorContent{RGBA: rgba, RawText: raw},
	})
}

// RecordImage transcodes raw pasteboard image data: decode, hash the pixel
// buffer for dedup, downscale into the pixel budget, recompress, and attach
// a thumbnail. A duplicate skips the transcode entirely.
func (e *Engine) RecordImage(ctx context.Context, data []byte, appName, appID string) (int64, bool, error) {
	img, err := imaging.Decode(data)
	if err != nil {
		return 0, false, fmt.Errorf("transcode: %w", err)
	}
	hash := ingest.HashPixels(imaging.Pixels(img))

	if id, ok, err := e.store.IDByHash(ctx, hash); err != nil {
		return 0, false, err
	} else if ok {
		if err := e.store.UpdateTimestamp(ctx, id, nowMillis()); err != nil {
			return 0, false, err
		}
		return id, true, nil
	}

	scaled := imaging.ScaleToPixelBudget(img, imageMaxPixels)
	compressed, err := imaging.EncodeJPEG(scaled, imageQuality)
	if err != nil {
		return 0, false, fmt.Errorf("transcode: %w", err)
	}
	thumb, err := imaging.EncodeJPEG(imaging.ScaleToMaxSide(scaled, thumbnailMaxSide), thumbnailQuality)
	if err != nil {
		return 0, false, fmt.Errorf("transcode: %w", err)
	}

	id, existed, err := e.insert(ctx, &store.Item{
		ContentHash:   hash,
		SourceAppName: appName,
		SourceAppID:   appID,
		Content:       store.ImageContent{Bytes: compressed, ThumbnailBytes: thumb},
	})
	if err == nil && !existed {
		e.classifyAsync(id, compressed)
	}
	return id, existed, err
}

// RecordFiles implements ingest.Recorder.
func (e *Engine) RecordFiles(ctx context.Context, paths []store.FilePath, appName, appID string) (int64, bool, error) {
	raw := make([]string, len(paths))
	for i, p := range paths {
		raw[i] = p.Path
	}
	return e.insert(ctx, &store.Item{
		ContentHash:   ingest.HashFileList(raw),
		SourceAppName: appName,
		SourceAppID:   appID,
		Content:       store.FileContent{Paths: paths},
	})
}

func (e *Engine) insert(ctx context.Context, item *store.Item) (int64, bool, error) {
	item.Timestamp = nowMillis()
	id, existed, err := e.store.Insert(ctx, item)
	if err != nil {
		return 0, false, err
	}
	if !existed {
		e.pruneAfterInsert()
	}
	return id, existed, nil
}

// pruneAfterInsert runs the size check once per session, off the write path.
func (e *Engine) pruneAfterInsert() {
	if e.cfg.MaxBytes <= 0 {
		return
	}
	e.pruneOnce.Do(func() {
		e.tasks.Add(1)
		go func() {
			defer e.tasks.Done()
			if _, err := e.store.PruneToSize(context.Background(), e.cfg.MaxBytes, e.cfg.KeepRatio); err != nil {
				slog.Warn("prune failed", "component", "engine", "error", err)
			}
		}()
	})
}

// classifyAsync fills in the image description off the write path.
func (e *Engine) classifyAsync(id int64, imageBytes []byte) {
	if e.cfg.Classifier == nil {
		return
	}
	e.tasks.Add(1)
	go func() {
		defer e.tasks.Done()
		ctx := context.Background()
		labels, err := e.cfg.Classifier.Classify(ctx, imageBytes)
		if err != nil {
			labels = nil
		}
		if err := e.store.UpdateImageDescription(ctx, id, ingest.DescribeLabels(labels)); err != nil && !errors.Is(err, store.ErrNotFound) {
			slog.Warn("failed to store image description", "component", "engine", "id", id, "error", err)
		}
	}()
}

// fetchMetadataAsync resolves link metadata and persists the outcome. A
// failed fetch quietly marks the row Failed.
func (e *Engine) fetchMetadataAsync(id int64, url string) {
	e.tasks.Add(1)
	go func() {
		defer e.tasks.Done()
		ctx := context.Background()
		if _, err := e.FetchLinkMetadata(ctx, id, url); err != nil && !errors.Is(err, store.ErrNotFound) {
			slog.Debug("link metadata fetch failed", "component", "engine", "id", id, "error", err)
		}
	}()
}

// FetchLinkMetadata joins (or starts) the coalesced fetch for a link item,
// persists the result, and returns the refreshed row.
func (e *Engine) FetchLinkMetadata(ctx context.Context, id int64, url string) (*store.Item, error) {
	meta, err := e.fetcher.Fetch(ctx, id, url)
	switch {
	case err != nil && ctx.Err() != nil:
		// The caller gave up waiting; the shared fetch may still finish
		// for other waiters, so the row is left alone.
		return nil, err
	case err != nil:
		if uerr := e.store.UpdateLinkMetadata(ctx, id, store.MetadataFailed, "", "", nil); uerr != nil {
			return nil, uerr
		}
	default:
		if uerr := e.store.UpdateLinkMetadata(ctx, id, store.MetadataLoaded, meta.Title, meta.Description, meta.ImageBytes); uerr != nil {
			return nil, uerr
		}
	}
	return e.store.FetchItem(ctx, id)
}

// Package linkmeta fetches link previews: Open Graph tags, the document
// title, and a representative image. Fetches are coalesced per item id: a
// request for a row whose fetch is still running joins it instead of hitting
// the URL again. The pool is bounded so a
// burst of copied links cannot stampede the network.
package linkmeta

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jul-sh/clipkitty/imaging"
)

// ErrNoMetadata means the page yielded neither a title, a description, nor
// an image; the caller marks the row's metadata Failed.
var ErrNoMetadata = errors.New("no usable metadata")

const (
	fetchTimeout = 10 * time.Second
	poolSize     = 8

	// Preview images are center-cropped to at most 3:2 portrait and
	// bounded to 400px on the longest side.
	previewMaxAspect  = 1.5
	previewMaxSide    = 400
	previewJPEGQual   = 70
	maxBodyBytes      = 4 << 20
	maxImageBodyBytes = 16 << 20
)

// Metadata is a successful fetch result.
type Metadata struct {
	Title       string
	Description string
	ImageBytes  []byte
}

type task struct {
	done chan struct{}
	meta Metadata
	err  error
}

// Fetcher coalesces metadata fetches per item id over a bounded worker pool.
type Fetcher struct {
	client *http.Client

	mu       sync.Mutex
	inflight map[int64]*task

	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a fetcher around the given HTTP client (nil for a default one).
func New(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(poolSize)
	return &Fetcher{
		client:   client,
		inflight: map[int64]*task{},
		group:    group,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Close cancels every running fetch and waits for the pool to drain.
func (f *Fetcher) Close() {
	f.cancel()
	f.group.Wait()
}

// Fetch returns the metadata for the item's URL, starting a fetch if none is
// running and otherwise joining the existing one. The caller's context only
// governs its own wait; the shared fetch keeps running for other waiters.
func (f *Fetcher) Fetch(ctx context.Context, id int64, rawURL string) (Metadata, error) {
	f.mu.Lock()
	tk, running := f.inflight[id]
	if !running {
		tk = &task{done: make(chan struct{})}
		f.inflight[id] = tk
	}
	f.mu.Unlock()

	// Spawn outside the lock: Go blocks when the pool is full, and running
	// tasks need the lock to retire themselves.
	if !running {
		f.group.Go(func() error {
			tk.meta, tk.err = f.fetch(f.ctx, rawURL)
			close(tk.done)
			f.mu.Lock()
			delete(f.inflight, id)
			f.mu.Unlock()
			return nil
		})
	}

	select {
	case <-tk.done:
		return tk.meta, tk.err
	case <-ctx.Done():
		return Metadata{}, ctx.Err()
	}
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) (Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	body, err := f.get(ctx, rawURL, maxBodyBytes)
	if err != nil {
		return Metadata{}, err
	}

	page := parsePage(body)
	meta := Metadata{Title: page.title, Description: page.description}

	if page.imageURL != "" {
		if resolved := resolveURL(rawURL, page.imageURL); resolved != "" {
			if img, err := f.fetchImage(ctx, resolved); err == nil {
				meta.ImageBytes = img
			}
		}
	}

	if meta.Title == "" && meta.Description == "" && len(meta.ImageBytes) == 0 {
		return Metadata{}, ErrNoMetadata
	}
	return meta, nil
}

// fetchImage downloads and normalizes the preview image: center-crop excess
// height past 3:2, bound the longest side, recompress as JPEG.
func (f *Fetcher) fetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	body, err := f.get(ctx, imageURL, maxImageBodyBytes)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Decode(body)
	if err != nil {
		return nil, err
	}
	img = imaging.CropMaxAspect(img, previewMaxAspect)
	img = imaging.ScaleToMaxSide(img, previewMaxSide)
	return imaging.EncodeJPEG(img, previewJPEGQual)
}

func (f *Fetcher) get(ctx context.Context, rawURL string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("get %s: status %d", rawURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	return body, nil
}

func resolveURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return b.ResolveReference(r).String()
}

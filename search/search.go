// Package search coordinates queries between the presentation layer and the
// engine: it owns the in-flight token, debouncing, fallback results, and
// stale-result filtering. It is the only entry point UI code calls.
package search

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jul-sh/clipkitty/rank"
	"github.com/jul-sh/clipkitty/store"
)

// ErrCancelled marks cooperative cancellation of a search. It is never
// logged and never reaches the update stream.
var ErrCancelled = errors.New("search cancelled")

// debounceDelay absorbs bursts of keystrokes before a search runs.
const debounceDelay = 50 * time.Millisecond

// Match is one ranked hit with its shaping data.
type Match struct {
	ID                    int64
	Score                 rank.BucketScore
	Highlights            []rank.Highlight
	LineNumber            uint32
	DensestHighlightStart uint64
	Snippet               string
}

// Result is a completed search: the full ordered id list (for
// scroll-as-pagination) plus the eagerly hydrated best hit. First is always
// the highest-ranked item of this result set, independent of any selection
// the presentation layer tracks.
type Result struct {
	Query      string
	Matches    []Match
	TotalCount int
	First      *store.Item
}

// Searcher is the engine surface the coordinator drives.
type Searcher interface {
	Search(ctx context.Context, query string, filter store.Kind) (*Result, error)
	FetchItem(ctx context.Context, id int64) (*store.Item, error)
	FetchLinkMetadata(ctx context.Context, id int64, url string) (*store.Item, error)
}

type Phase int

const (
	PhaseLoading Phase = iota
	PhaseResults
	PhaseError
)

// Update is one state transition pushed to the presentation layer. While
// loading, Fallback carries the previous results so the list never blanks
// out under the user's cursor.
type Update struct {
	Phase    Phase
	Query    string
	Result   *Result
	Fallback *Result
	Err      string
}

// Coordinator serializes queries: each SetQuery invalidates everything
// before it via a monotonically increasing token, and completions carrying a
// stale token are dropped silently.
type Coordinator struct {
	backend Searcher
	filter  store.Kind

	token   atomic.Int64
	updates chan Update

	mu     sync.Mutex
	cancel context.CancelFunc
	last   *Result
}

func NewCoordinator(backend Searcher) *Coordinator {
	return &Coordinator{
		backend: backend,
		filter:  store.KindAny,
		updates: make(chan Update, 16),
	}
}

// Updates is the bounded stream of state transitions. When the consumer
// falls behind, the oldest update is dropped; only the latest state matters.
func (c *Coordinator) Updates() <-chan Update {
	return c.updates
}

// SetFilter restricts subsequent searches to one content kind.
func (c *Coordinator) SetFilter(filter store.Kind) {
	c.mu.Lock()
	c.filter = filter
	c.mu.Unlock()
}

// SetQuery cancels any in-flight search and starts a new one. Returns
// immediately; the outcome arrives on Updates.
func (c *Coordinator) SetQuery(q string) {
	token := c.token.Add(1)

	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = cancel
	fallback := c.last
	filter := c.filter
	c.mu.Unlock()

	c.publish(Update{Phase: PhaseLoading, Query: q, Fallback: fallback})
	go c.run(ctx, token, q, filter, fallback)
}

// Cancel aborts the in-flight search without starting a new one.
func (c *Coordinator) Cancel() {
	c.token.Add(1)
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()
}

func (c *Coordinator) run(ctx context.Context, token int64, q string, filter store.Kind, fallback *Result) {
	if q != "" {
		select {
		case <-time.After(debounceDelay):
		case <-ctx.Done():
			return
		}
	}

	result, err := c.backend.Search(ctx, q, filter)
	if c.token.Load() != token {
		return
	}
	if err != nil {
		if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
			return
		}
		c.publish(Update{Phase: PhaseError, Query: q, Fallback: fallback, Err: err.Error()})
		return
	}

	c.mu.Lock()
	c.last = result
	c.mu.Unlock()
	c.publish(Update{Phase: PhaseResults, Query: q, Result: result})
}

// FetchItem fully hydrates a row, including blobs, on demand.
func (c *Coordinator) FetchItem(ctx context.Context, id int64) (*store.Item, error) {
	return c.backend.FetchItem(ctx, id)
}

// FetchLinkMetadata triggers (or joins) the coalesced metadata fetch for a
// link item and returns the enriched row once persisted.
func (c *Coordinator) FetchLinkMetadata(ctx context.Context, id int64, url string) (*store.Item, error) {
	return c.backend.FetchLinkMetadata(ctx, id, url)
}

// publish never blocks: when the buffer is full the oldest update is
// discarded to make room.
func (c *Coordinator) publish(u Update) {
	for {
		select {
		case c.updates <- u:
			return
		default:
			select {
			case <-c.updates:
			default:
			}
		}
	}
}

package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jul-sh/clipkitty/store"
)

// fakeBackend serves canned results with a configurable per-query delay.
type fakeBackend struct {
	mu      sync.Mutex
	delays  map[string]time.Duration
	results map[string]*Result
	err     error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		delays:  map[string]time.Duration{},
		results: map[string]*Result{},
	}
}

func (f *fakeBackend) Search(ctx context.Context, query string, filter store.Kind) (*Result, error) {
	f.mu.Lock()
	delay := f.delays[query]
	result := f.results[query]
	err := f.err
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ErrCancelled
		}
	}
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &Result{Query: query}
	}
	return result, nil
}

func (f *fakeBackend) FetchItem(ctx context.Context, id int64) (*store.Item, error) {
	return nil, store.ErrNotFound
}

func (f *fakeBackend) FetchLinkMetadata(ctx context.Context, id int64, url string) (*store.Item, error) {
	return nil, store.ErrNotFound
}

func waitFor(t *testing.T, c *Coordinator, phase Phase, query string) Update {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case u := <-c.Updates():
			if u.Phase == phase && u.Query == query {
				return u
			}
		case <-deadline:
			t.Fatalf("timed out waiting for phase %v query %q", phase, query)
		}
	}
}

func TestSetQueryDeliversResults(t *testing.T) {
	backend := newFakeBackend()
	backend.results["foo"] = &Result{Query: "foo", TotalCount: 3}

	c := NewCoordinator(backend)
	c.SetQuery("foo")

	u := waitFor(t, c, PhaseResults, "foo")
	assert.Equal(t, 3, u.Result.TotalCount)
}

func TestLoadingCarriesFallback(t *testing.T) {
	backend := newFakeBackend()
	backend.results["first"] = &Result{Query: "first", TotalCount: 1}

	c := NewCoordinator(backend)
	c.SetQuery("first")
	waitFor(t, c, PhaseResults, "first")

	c.SetQuery("second")
	u := waitFor(t, c, PhaseLoading, "second")
	require.NotNil(t, u.Fallback)
	assert.Equal(t, "first", u.Fallback.Query)
}

// A newer query invalidates a slower older one even when the old search
// finishes last.
func TestStaleResultDropped(t *testing.T) {
	backend := newFakeBackend()
	backend.delays["foo"] = 300 * time.Millisecond
	backend.results["foo"] = &Result{Query: "foo", TotalCount: 1}
	backend.results["foobar"] = &Result{Query: "foobar", TotalCount: 2}

	c := NewCoordinator(backend)
	c.SetQuery("foo")
	time.Sleep(20 * time.Millisecond)
	c.SetQuery("foobar")

	u := waitFor(t, c, PhaseResults, "foobar")
	assert.Equal(t, 2, u.Result.TotalCount)

	// The stale "foo" result never surfaces.
	select {
	case u := <-c.Updates():
		assert.NotEqual(t, "foo", u.Query, "stale result leaked: %+v", u)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestCancelSuppressesOutput(t *testing.T) {
	backend := newFakeBackend()
	backend.delays["slow"] = 200 * time.Millisecond

	c := NewCoordinator(backend)
	c.SetQuery("slow")
	waitFor(t, c, PhaseLoading, "slow")
	c.Cancel()

	select {
	case u := <-c.Updates():
		t.Fatalf("unexpected update after cancel: %+v", u)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestErrorSurfacesWhenCurrent(t *testing.T) {
	backend := newFakeBackend()
	backend.err = errors.New("disk exploded")

	c := NewCoordinator(backend)
	c.SetQuery("boom")

	u := waitFor(t, c, PhaseError, "boom")
	assert.Contains(t, u.Err, "disk exploded")
}

func TestCancelledErrorIsSilent(t *testing.T) {
	backend := newFakeBackend()
	backend.err = ErrCancelled

	c := NewCoordinator(backend)
	c.SetQuery("quiet")
	waitFor(t, c, PhaseLoading, "quiet")

	select {
	case u := <-c.Updates():
		t.Fatalf("cancellation must not surface: %+v", u)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestEmptyQuerySkipsDebounce(t *testing.T) {
	backend := newFakeBackend()
	backend.results[""] = &Result{Query: "", TotalCount: 9}

	c := NewCoordinator(backend)
	start := time.Now()
	c.SetQuery("")
	waitFor(t, c, PhaseResults, "")
	assert.Less(t, time.Since(start), debounceDelay)
}

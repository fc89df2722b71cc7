package clipkitty

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/jul-sh/clipkitty/rank"
	"github.com/jul-sh/clipkitty/search"
	"github.com/jul-sh/clipkitty/store"
	"github.com/jul-sh/clipkitty/util"
)

const (
	// candidateLimit caps how many index hits are scored per query.
	candidateLimit = 2000
	// shortQueryScanCap bounds the recency scan behind 1-2 char queries.
	shortQueryScanCap = 20_000
	// defaultRecentLimit sizes the empty-query listing.
	defaultRecentLimit = 200
)

// Search runs one ranked query. Empty queries list recent history; 1-2 char
// queries bypass the trigram index for a substring scan; everything else
// recalls candidates through the index and ranks them. The returned error is
// search.ErrCancelled when the context was cancelled mid-flight.
func (e *Engine) Search(ctx context.Context, query string, filter store.Kind) (*search.Result, error) {
	result, err := e.search(ctx, query, filter)
	if err != nil && (errors.Is(err, context.Canceled) || ctx.Err() != nil) {
		return nil, search.ErrCancelled
	}
	return result, err
}

func (e *Engine) search(ctx context.Context, query string, filter store.Kind) (*search.Result, error) {
	if query == "" {
		return e.recentListing(ctx, filter)
	}

	var (
		rows []store.Row
		bm25 map[int64]float64
		err  error
	)
	if utf8.RuneCountInString(query) < 3 {
		rows, err = e.store.SubstringScan(ctx, query, candidateLimit, shortQueryScanCap, filter)
		if err != nil {
			return nil, err
		}
	} else {
		candidates, err := e.index.Query(ctx, query, candidateLimit)
		if err != nil {
			return nil, err
		}
		ids := make([]int64, len(candidates))
		bm25 = make(map[int64]float64, len(candidates))
		for i, c := range candidates {
			ids[i] = c.ID
			bm25[c.ID] = c.BM25
		}
		rows, err = e.store.FetchRows(ctx, ids, filter)
		if err != nil {
			return nil, err
		}
	}

	scored := util.TransformSlice(rows, func(r store.Row) rank.Candidate {
		return rank.Candidate{ID: r.ID, Text: r.SearchableText, Timestamp: r.Timestamp, BM25: bm25[r.ID]}
	})
	hits, err := rank.Rank(ctx, rank.Prepare(query), scored, time.Now())
	if err != nil {
		return nil, err
	}

	result := &search.Result{Query: query, TotalCount: len(hits)}
	result.Matches = util.TransformSlice(hits, func(h rank.Hit) search.Match {
		return search.Match{
			ID:                    h.ID,
			Score:                 h.Score,
			Highlights:            h.Shaped.Highlights,
			LineNumber:            h.Shaped.LineNumber,
			DensestHighlightStart: h.Shaped.DensestHighlightStart,
			Snippet:               h.Shaped.Snippet,
		}
	})
	if len(hits) > 0 {
		first, err := e.store.FetchItem(ctx, hits[0].ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		result.First = first
	}
	return result, nil
}

// recentListing serves the empty query: newest first, no match data.
func (e *Engine) recentListing(ctx context.Context, filter store.Kind) (*search.Result, error) {
	limit := e.cfg.RecentLimit
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := e.store.Recent(ctx, limit, filter)
	if err != nil {
		return nil, err
	}

	result := &search.Result{TotalCount: len(rows)}
	result.Matches = util.TransformSlice(rows, func(r store.Row) search.Match {
		return search.Match{
			ID:         r.ID,
			LineNumber: 1,
			Snippet:    rank.HeadSnippet(r.SearchableText),
		}
	})
	if len(rows) > 0 {
		first, err := e.store.FetchItem(ctx, rows[0].ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		result.First = first
	}
	return result, nil
}

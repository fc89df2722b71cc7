package rank

import (
	"context"
	"math"
	"os"
	"testing"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jul-sh/clipkitty/fuzzy"
)

var now = time.UnixMilli(1_700_000_000_000)

func rankTexts(t *testing.T, query string, texts ...string) []Hit {
	t.Helper()
	q := Prepare(query)
	candidates := make([]Candidate, len(texts))
	for i, text := range texts {
		candidates[i] = Candidate{ID: int64(i + 1), Text: text, Timestamp: now.UnixMilli()}
	}
	hits, err := Rank(context.Background(), q, candidates, now)
	require.NoError(t, err)
	return hits
}

func TestPrepareQuery(t *testing.T) {
	q := Prepare("Hello. Wo")
	assert.Equal(t, "hello. wo", q.Folded)
	require.Len(t, q.Marks, 3)
	assert.Equal(t, "hello", q.Marks[0].Text)
	assert.False(t, q.Marks[0].AllowPrefix)
	assert.Equal(t, ".", q.Marks[1].Text)
	assert.Equal(t, "wo", q.Marks[2].Text)
	assert.True(t, q.Marks[2].AllowPrefix)
	assert.Equal(t, 2, q.Words)
}

func TestPrepareTruncatesAtThirtyTwoWords(t *testing.T) {
	long := ""
	for i := 0; i < 40; i++ {
		long += "word "
	}
	q := Prepare(long)
	assert.Equal(t, maxScoredWords, q.Words)
	// The folded full string keeps every word for substring tests.
	assert.Contains(t, q.Folded, "word word")
}

// Field 1 dominates everything below it, regardless of the other values.
func TestBucketScoreDominance(t *testing.T) {
	a := BucketScore{WordsMatchedWeight: 10}
	b := BucketScore{
		WordsMatchedWeight: 9,
		IntentTier:         4,
		DensityScore:       255,
		RecencyScore:       255,
		ProximityScore:     math.MaxUint16,
		BM25Quantized:      math.MaxUint16,
		RecencyRaw:         math.MaxInt64,
	}
	assert.Equal(t, 1, a.Compare(b))
	assert.Equal(t, -1, b.Compare(a))
	assert.Equal(t, 0, a.Compare(a))
}

func TestBucketScoreTiebreakOrder(t *testing.T) {
	base := BucketScore{WordsMatchedWeight: 5, IntentTier: 2}
	tier := base
	tier.IntentTier = 3
	assert.Equal(t, 1, tier.Compare(base))

	recent := base
	recent.RecencyRaw = 100
	assert.Equal(t, 1, recent.Compare(base))
}

func TestRecencyScoreDecay(t *testing.T) {
	nowMs := now.UnixMilli()
	fresh := recencyScore(nowMs, nowMs)
	hourOld := recencyScore(nowMs, nowMs-3600_000)
	weekOld := recencyScore(nowMs, nowMs-7*24*3600_000)
	ancient := recencyScore(nowMs, nowMs-500*3600_000)

	assert.EqualValues(t, 255, fresh)
	assert.Greater(t, fresh, hourOld)
	assert.Greater(t, hourOld, weekOld)
	assert.EqualValues(t, 0, ancient)
	// Future timestamps clamp to full freshness.
	assert.EqualValues(t, 255, recencyScore(nowMs, nowMs+10_000))
}

func TestIntentTiers(t *testing.T) {
	tierOf := func(query, text string) uint8 {
		hits := rankTexts(t, query, text)
		require.Len(t, hits, 1, "query %q text %q", query, text)
		return hits[0].Score.IntentTier
	}

	assert.EqualValues(t, 4, tierOf("hello wo", "hello world foo"))
	assert.EqualValues(t, 3, tierOf("hello wo", "say hello world"))
	assert.EqualValues(t, 3, tierOf("lgtm", "looks good to me"))
	// In-order matches with a typo land in tier 2.
	assert.EqualValues(t, 2, tierOf("quick fox", "the quck brown fox"))
	// Out-of-order matches fall to tier 1.
	assert.EqualValues(t, 1, tierOf("fox quick", "the quick brown fox"))
}

func TestProximityScore(t *testing.T) {
	adjacent := []WordMatch{
		{MarkPos: 0, MarkSpan: 1},
		{MarkPos: 1, MarkSpan: 1},
	}
	spread := []WordMatch{
		{MarkPos: 0, MarkSpan: 1},
		{MarkPos: 5, MarkSpan: 1},
	}
	reversed := []WordMatch{
		{MarkPos: 5, MarkSpan: 1},
		{MarkPos: 0, MarkSpan: 1},
	}
	single := []WordMatch{{MarkPos: 3, MarkSpan: 1}}

	assert.Greater(t, proximityScore(adjacent), proximityScore(spread))
	// Reversed pairs pay the +5 inversion penalty.
	assert.Greater(t, proximityScore(spread), proximityScore(reversed))
	assert.EqualValues(t, math.MaxUint16, proximityScore(single))
}

func TestUnmatchedQueryWordDropsCandidate(t *testing.T) {
	hits := rankTexts(t, "alpha zulu", "alpha beta gamma")
	assert.Empty(t, hits)
}

// Two query words may land on the same document word; both count toward
// matched weight and the candidate is kept.
func TestScoreSharedDocWord(t *testing.T) {
	hits := rankTexts(t, "1 1", "value 1 here")
	require.Len(t, hits, 1)
	require.Len(t, hits[0].Matches, 2)
	assert.Equal(t, hits[0].Matches[0].WordPos, hits[0].Matches[1].WordPos)
	assert.EqualValues(t, 2, hits[0].Score.WordsMatchedWeight)
}

func TestRankCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q := Prepare("foo")
	_, err := Rank(ctx, q, []Candidate{{ID: 1, Text: "foo"}}, now)
	assert.ErrorIs(t, err, context.Canceled)
}

type scenarioItem struct {
	Name     string  `yaml:"name"`
	Text     string  `yaml:"text"`
	AgeHours float64 `yaml:"age_hours"`
}

type scenario struct {
	Query    string         `yaml:"query"`
	Items    []scenarioItem `yaml:"items"`
	Expected []string       `yaml:"expected"`
}

func TestRankingScenarios(t *testing.T) {
	buf, err := os.ReadFile("testdata/scenarios.yml")
	require.NoError(t, err)

	var scenarios map[string]scenario
	require.NoError(t, yaml.Unmarshal(buf, &scenarios))

	for name, sc := range scenarios {
		t.Run(name, func(t *testing.T) {
			q := Prepare(sc.Query)
			names := map[int64]string{}
			var candidates []Candidate
			for i, item := range sc.Items {
				id := int64(i + 1)
				names[id] = item.Name
				candidates = append(candidates, Candidate{
					ID:        id,
					Text:      item.Text,
					Timestamp: now.UnixMilli() - int64(item.AgeHours*3600_000),
				})
			}

			hits, err := Rank(context.Background(), q, candidates, now)
			require.NoError(t, err)

			got := make([]string, len(hits))
			for i, hit := range hits {
				got[i] = names[hit.ID]
			}
			expected := sc.Expected
			if expected == nil {
				expected = []string{}
			}
			assert.Equal(t, expected, got)
		})
	}
}

// The dotted address wins on matched weight: three matching dots add
// 3 x 1^2 over the spaced variant.
func TestPunctuationWeightDetail(t *testing.T) {
	hits := rankTexts(t, "192.168.1.1", "192.168.1.1", "192 168 1 1")
	require.Len(t, hits, 2)
	assert.Equal(t, int64(1), hits[0].ID)
	assert.Equal(t, hits[1].Score.WordsMatchedWeight+3, hits[0].Score.WordsMatchedWeight)
}

func TestAcronymMatchWeight(t *testing.T) {
	hits := rankTexts(t, "lgtm", "looks good to me")
	require.Len(t, hits, 1)
	assert.EqualValues(t, 16, hits[0].Score.WordsMatchedWeight)
	require.Len(t, hits[0].Matches, 1)
	assert.Equal(t, fuzzy.KindAcronym, hits[0].Matches[0].Kind)
}

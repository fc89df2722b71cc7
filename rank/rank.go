package rank

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/jul-sh/clipkitty/fuzzy"
	"github.com/jul-sh/clipkitty/tokenizer"
)

// Candidate is one item to score: the original searchable text, its last-use
// timestamp, and the index's advisory BM25.
type Candidate struct {
	ID        int64
	Text      string
	Timestamp int64
	BM25      float64
}

// WordMatch records where one query token landed in the document.
type WordMatch struct {
	QueryMark    int // index into Query.Marks
	QueryIsWord  bool
	QueryRuneLen int
	Kind         fuzzy.Kind
	Dist         int
	Weight       int
	WordPos      int // position in the document word list (-1 for punct)
	MarkPos      int // position among non-space document tokens
	MarkSpan     int // non-space tokens covered (acronyms span several)
	TokenIdx     int // index into the document token list
}

// Hit is a scored, shaped candidate.
type Hit struct {
	ID      int64
	Score   BucketScore
	Matches []WordMatch
	Shaped  Shaped
}

// scoreBatchSize is how many candidates are scored between cancellation
// checks.
const scoreBatchSize = 64

// Rank scores, sorts, and shapes the candidate set. Cancellation is honored
// between batches; a cancelled rank returns the context's error and no hits.
func Rank(ctx context.Context, q Query, candidates []Candidate, now time.Time) ([]Hit, error) {
	nowMillis := now.UnixMilli()
	hits := make([]Hit, 0, len(candidates))
	for i, c := range candidates {
		if i%scoreBatchSize == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if hit, ok := scoreCandidate(q, c, nowMillis); ok {
			hits = append(hits, hit)
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if c := hits[i].Score.Compare(hits[j].Score); c != 0 {
			return c > 0
		}
		return hits[i].ID > hits[j].ID
	})
	return hits, nil
}

// docToken is one non-space document token with its positions.
type docToken struct {
	lowered  string
	markPos  int
	wordPos  int // -1 for punctuation
	tokenIdx int
	isWord   bool
}

// scoreCandidate matches every query token against the document and computes
// the bucket score. Candidates missing any query word are dropped;
// punctuation tokens only add weight when they match.
func scoreCandidate(q Query, c Candidate, nowMillis int64) (Hit, bool) {
	docTokens := tokenizer.Tokenize(c.Text)

	marks := make([]docToken, 0, len(docTokens))
	var words []docToken
	for i, tok := range docTokens {
		if tok.Kind == tokenizer.KindSpace {
			continue
		}
		dt := docToken{
			lowered:  tok.Lowered,
			markPos:  len(marks),
			tokenIdx: i,
			wordPos:  -1,
			isWord:   tok.Kind == tokenizer.KindWord,
		}
		if dt.isWord {
			dt.wordPos = len(words)
		}
		marks = append(marks, dt)
		if dt.isWord {
			words = append(words, dt)
		}
	}

	wordTexts := make([]string, len(words))
	for i, w := range words {
		wordTexts[i] = w.lowered
	}

	var matches []WordMatch
	anyAcronym := false

	for qi, qt := range q.Marks {
		if qt.Kind == tokenizer.KindWord {
			best, found := bestWordMatch(qt, words)

			// An acronym can satisfy a query word the cascade missed,
			// and outranks weak cascade matches; exact and prefix hits
			// keep priority over it.
			if acr, ok := bestAcronymMatch(qt, words, wordTexts); ok {
				if !found || (best.Kind != fuzzy.KindExact && best.Kind != fuzzy.KindPrefix) {
					best = acr
					found = true
				}
			}
			// Every query word must land somewhere; punctuation only
			// adds weight.
			if !found {
				return Hit{}, false
			}
			best.QueryMark = qi
			best.QueryIsWord = true
			best.QueryRuneLen = qt.RuneLen
			if best.Kind == fuzzy.KindAcronym {
				anyAcronym = true
			}
			matches = append(matches, best)
			continue
		}

		for _, m := range marks {
			if m.isWord || m.lowered != qt.Text {
				continue
			}
			matches = append(matches, WordMatch{
				QueryMark:    qi,
				QueryRuneLen: qt.RuneLen,
				Kind:         fuzzy.KindExact,
				Weight:       qt.RuneLen * qt.RuneLen,
				WordPos:      -1,
				MarkPos:      m.markPos,
				MarkSpan:     1,
				TokenIdx:     m.tokenIdx,
			})
			break
		}
	}
	if len(matches) == 0 {
		return Hit{}, false
	}

	folded := tokenizer.Fold(c.Text)

	score := BucketScore{
		WordsMatchedWeight: saturateU16(totalWeight(matches)),
		IntentTier:         intentTier(q, folded, matches, anyAcronym),
		DensityScore:       densityScore(matches, folded),
		RecencyScore:       recencyScore(nowMillis, c.Timestamp),
		ProximityScore:     proximityScore(matches),
		BM25Quantized:      bm25Quantized(c.BM25),
		RecencyRaw:         c.Timestamp,
	}

	return Hit{
		ID:      c.ID,
		Score:   score,
		Matches: matches,
		Shaped:  shape(c.Text, docTokens, matches),
	}, true
}

// bestWordMatch runs the cascade over document words in order, keeping the
// strongest result: exact beats prefix beats low-distance fuzzy beats
// subsequence; earlier positions win ties.
func bestWordMatch(qw QueryToken, words []docToken) (WordMatch, bool) {
	var best WordMatch
	found := false
	for _, dw := range words {
		m, ok := fuzzy.MatchWord(qw.Text, dw.lowered, qw.AllowPrefix)
		if !ok {
			continue
		}
		cand := WordMatch{
			Kind:     m.Kind,
			Dist:     m.Dist,
			Weight:   matchWeight(qw, m.Kind),
			WordPos:  dw.wordPos,
			MarkPos:  dw.markPos,
			MarkSpan: 1,
			TokenIdx: dw.tokenIdx,
		}
		if !found || strongerMatch(cand, best) {
			best = cand
			found = true
		}
		if best.Kind == fuzzy.KindExact {
			break
		}
	}
	return best, found
}

func bestAcronymMatch(qw QueryToken, words []docToken, wordTexts []string) (WordMatch, bool) {
	for p := range words {
		n, ok := fuzzy.MatchAcronym(qw.Text, wordTexts, p)
		if !ok {
			continue
		}
		last := words[p+n-1]
		return WordMatch{
			Kind:     fuzzy.KindAcronym,
			Weight:   qw.RuneLen * qw.RuneLen,
			WordPos:  words[p].wordPos,
			MarkPos:  words[p].markPos,
			MarkSpan: last.markPos - words[p].markPos + 1,
			TokenIdx: words[p].tokenIdx,
		}, true
	}
	return WordMatch{}, false
}

func matchWeight(qw QueryToken, kind fuzzy.Kind) int {
	sq := qw.RuneLen * qw.RuneLen
	switch kind {
	case fuzzy.KindExact, fuzzy.KindPrefix, fuzzy.KindAcronym:
		return sq
	default:
		return sq / 2
	}
}

// strongerMatch orders candidate matches for one query word.
func strongerMatch(a, b WordMatch) bool {
	pa, pb := kindPriority(a.Kind), kindPriority(b.Kind)
	if pa != pb {
		return pa > pb
	}
	if a.Dist != b.Dist {
		return a.Dist < b.Dist
	}
	return false // earlier position already held by b
}

func kindPriority(k fuzzy.Kind) int {
	switch k {
	case fuzzy.KindExact:
		return 4
	case fuzzy.KindPrefix:
		return 3
	case fuzzy.KindFuzzy:
		return 2
	default:
		return 1
	}
}

func totalWeight(matches []WordMatch) int {
	total := 0
	for _, m := range matches {
		total += m.Weight
	}
	return total
}

// intentTier classifies how literally the query appears in the document.
// Evaluated top-down, first match wins.
func intentTier(q Query, folded string, matches []WordMatch, anyAcronym bool) uint8 {
	wordMatches := make([]WordMatch, 0, len(matches))
	for _, m := range matches {
		if m.QueryIsWord {
			wordMatches = append(wordMatches, m)
		}
	}

	increasing := true
	for i := 1; i < len(wordMatches); i++ {
		if wordMatches[i].WordPos <= wordMatches[i-1].WordPos {
			increasing = false
			break
		}
	}

	if q.Folded != "" && strings.HasPrefix(folded, q.Folded) {
		return 4
	}
	if len(wordMatches) > 0 {
		first := wordMatches[0]
		if first.WordPos == 0 && first.Dist == 0 &&
			(first.Kind == fuzzy.KindExact || first.Kind == fuzzy.KindPrefix) && increasing {
			return 4
		}
	}

	if q.Folded != "" && strings.Contains(folded, q.Folded) {
		return 3
	}
	if anyAcronym {
		return 3
	}

	if len(wordMatches) > 0 && increasing {
		tier2 := true
		for _, m := range wordMatches {
			if m.Dist > 1 {
				tier2 = false
				break
			}
		}
		if tier2 {
			return 2
		}
	}
	return 1
}

// densityScore is the matched-character share of the document, scaled to
// 0..255.
func densityScore(matches []WordMatch, folded string) uint8 {
	docLen := len([]rune(folded))
	if docLen == 0 {
		return 0
	}
	matched := 0
	for _, m := range matches {
		if m.QueryIsWord {
			matched += m.QueryRuneLen
		}
	}
	v := float64(matched) / float64(docLen) * 255
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// proximityScore rewards matches that sit close together in query order.
// Each consecutive pair contributes its positional gap; reversed pairs pay a
// +5 inversion penalty. Single-match candidates score the maximum.
func proximityScore(matches []WordMatch) uint16 {
	if len(matches) < 2 {
		return math.MaxUint16
	}
	total := 0
	for i := 1; i < len(matches); i++ {
		a, b := matches[i-1], matches[i]
		aEnd := a.MarkPos + a.MarkSpan - 1
		if b.MarkPos >= aEnd {
			total += b.MarkPos - aEnd
		} else {
			total += aEnd - b.MarkPos + 5
		}
	}
	if total > math.MaxUint16 {
		total = math.MaxUint16
	}
	return uint16(math.MaxUint16 - total)
}

func saturateU16(v int) uint16 {
	if v < 0 {
		return 0
	}
	if v > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(v)
}

// Package rank implements the multi-signal ranker: per-candidate bucket
// scores compared lexicographically, plus highlight, line-number, and snippet
// shaping for the result list.
package rank

import (
	"math"

	"github.com/jul-sh/clipkitty/tokenizer"
)

// BucketScore is the seven-signal tuple for one candidate. Fields are
// oriented so higher is better and compared in declaration order: an
// advantage in an earlier field dominates everything after it.
type BucketScore struct {
	WordsMatchedWeight uint16
	IntentTier         uint8
	DensityScore       uint8
	RecencyScore       uint8
	ProximityScore     uint16
	BM25Quantized      uint16
	RecencyRaw         int64
}

// Compare returns -1, 0, or 1 ordering a against b lexicographically.
func (a BucketScore) Compare(b BucketScore) int {
	if c := cmpU64(uint64(a.WordsMatchedWeight), uint64(b.WordsMatchedWeight)); c != 0 {
		return c
	}
	if c := cmpU64(uint64(a.IntentTier), uint64(b.IntentTier)); c != 0 {
		return c
	}
	if c := cmpU64(uint64(a.DensityScore), uint64(b.DensityScore)); c != 0 {
		return c
	}
	if c := cmpU64(uint64(a.RecencyScore), uint64(b.RecencyScore)); c != 0 {
		return c
	}
	if c := cmpU64(uint64(a.ProximityScore), uint64(b.ProximityScore)); c != 0 {
		return c
	}
	if c := cmpU64(uint64(a.BM25Quantized), uint64(b.BM25Quantized)); c != 0 {
		return c
	}
	switch {
	case a.RecencyRaw < b.RecencyRaw:
		return -1
	case a.RecencyRaw > b.RecencyRaw:
		return 1
	}
	return 0
}

func cmpU64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// recencyScore maps item age onto 0..255 with logarithmic decay: full marks
// for just-copied items, zero around 400 hours of idle age.
func recencyScore(nowMillis, itemMillis int64) uint8 {
	ageHours := float64(nowMillis-itemMillis) / (1000 * 3600)
	if ageHours < 0 {
		ageHours = 0
	}
	v := 255 * (1 - math.Log(1+20*ageHours)/math.Log(1+20*400))
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// bm25Quantized folds the advisory BM25 into the second-to-last bucket.
func bm25Quantized(bm25 float64) uint16 {
	v := bm25 * 100
	if v < 0 {
		return 0
	}
	if v > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(v)
}

// maxScoredWords bounds scoring work for pathological queries; the full query
// string still participates in prefix/substring tests.
const maxScoredWords = 32

// QueryToken is one scorable unit of the query.
type QueryToken struct {
	Text        string // case-folded
	RuneLen     int
	Kind        tokenizer.Kind
	AllowPrefix bool
}

// Query is a prepared search query: the folded full string for
// prefix/substring tests, plus the word and punctuation tokens in original
// order for per-token matching and proximity.
type Query struct {
	Raw    string
	Folded string
	Marks  []QueryToken // word and punct tokens, query order
	Words  int          // number of word tokens in Marks
}

// Prepare tokenizes and folds q. The last non-space token is flagged as
// allowing prefix matches (it is the token currently being typed). Word
// tokens beyond the scoring cap are dropped from Marks; the full string
// still drives the prefix and substring tests.
func Prepare(q string) Query {
	prepared := Query{Raw: q, Folded: tokenizer.Fold(q)}

	tokens := tokenizer.Tokenize(q)
	lastMark := -1
	for i, tok := range tokens {
		if tok.Kind != tokenizer.KindSpace {
			lastMark = i
		}
	}
	for i, tok := range tokens {
		if tok.Kind == tokenizer.KindSpace {
			continue
		}
		qt := QueryToken{
			Text:        tok.Lowered,
			RuneLen:     len([]rune(tok.Lowered)),
			Kind:        tok.Kind,
			AllowPrefix: i == lastMark,
		}
		if tok.Kind == tokenizer.KindWord {
			if prepared.Words >= maxScoredWords {
				continue
			}
			prepared.Words++
		}
		prepared.Marks = append(prepared.Marks, qt)
	}
	return prepared
}

// Empty reports whether the query has nothing scorable.
func (q Query) Empty() bool {
	return len(q.Marks) == 0
}

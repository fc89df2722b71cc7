// Package fuzzy implements the per-word matching kernel: bounded
// Damerau-Levenshtein distance, subsequence matching, the word match cascade,
// and acronym detection. All inputs are expected to be case-folded already.
package fuzzy

import (
	"strings"
	"unicode"
)

type Kind int

const (
	KindExact Kind = iota
	KindPrefix
	KindFuzzy
	KindSubsequence
	KindAcronym
)

func (k Kind) String() string {
	switch k {
	case KindExact:
		return "exact"
	case KindPrefix:
		return "prefix"
	case KindFuzzy:
		return "fuzzy"
	case KindSubsequence:
		return "subsequence"
	case KindAcronym:
		return "acronym"
	}
	return "unknown"
}

// Match is the outcome of matching one query word against one document word.
// Dist is the (penalized) edit distance for fuzzy matches, 0 otherwise.
// Gaps is the number of discontinuous jumps for subsequence matches.
type Match struct {
	Kind Kind
	Dist int
	Gaps int
}

// Distance computes the Damerau-Levenshtein distance between a and b with
// unit costs for insertion, deletion, substitution, and adjacent
// transposition. Returns (d, true) iff d <= max. Any DP row whose minimum
// exceeds max aborts early.
func Distance(a, b string, max int) (int, bool) {
	if max < 0 {
		return 0, false
	}
	ra := []rune(a)
	rb := []rune(b)
	la, lb := len(ra), len(rb)

	diff := la - lb
	if diff < 0 {
		diff = -diff
	}
	if diff > max {
		return 0, false
	}
	if la == 0 {
		return lb, lb <= max
	}
	if lb == 0 {
		return la, la <= max
	}

	// Three rolling rows: i-2, i-1, i.
	prev2 := make([]int, lb+1)
	prev := make([]int, lb+1)
	cur := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		cur[0] = i
		rowMin := cur[0]
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			d := prev[j] + 1 // deletion
			if ins := cur[j-1] + 1; ins < d {
				d = ins
			}
			if sub := prev[j-1] + cost; sub < d {
				d = sub
			}
			if i > 1 && j > 1 && ra[i-1] == rb[j-2] && ra[i-2] == rb[j-1] {
				if tr := prev2[j-2] + 1; tr < d {
					d = tr
				}
			}
			cur[j] = d
			if d < rowMin {
				rowMin = d
			}
		}
		if rowMin > max {
			return 0, false
		}
		prev2, prev, cur = prev, cur, prev2
	}

	d := prev[lb]
	if d > max {
		return 0, false
	}
	return d, true
}

// Subsequence reports whether every rune of q appears in w in order, subject
// to: q is at least 4 runes, q covers at least half of w, and the first runes
// agree. The returned gap count is the number of discontinuous jumps between
// consecutive matched positions.
func Subsequence(q, w string) (int, bool) {
	rq := []rune(q)
	rw := []rune(w)
	if len(rq) < 4 || len(rq)*2 < len(rw) {
		return 0, false
	}
	if rq[0] != rw[0] {
		return 0, false
	}

	gaps := 0
	prevPos := 0
	wi := 1
	for qi := 1; qi < len(rq); qi++ {
		for wi < len(rw) && rw[wi] != rq[qi] {
			wi++
		}
		if wi >= len(rw) {
			return 0, false
		}
		if wi != prevPos+1 {
			gaps++
		}
		prevPos = wi
		wi++
	}
	return gaps, true
}

// MaxDistance is the fuzzy-match ceiling for a query word of the given rune
// length: 0 up to 2 runes, 1 up to 8, 2 beyond.
func MaxDistance(queryLen int) int {
	switch {
	case queryLen <= 2:
		return 0
	case queryLen <= 8:
		return 1
	default:
		return 2
	}
}

// MatchWord runs the match cascade for a lowered query word against a lowered
// document word: exact, then prefix (when allowed), then bounded fuzzy with a
// first-character penalty, then subsequence.
func MatchWord(qw, dw string, allowPrefix bool) (Match, bool) {
	if qw == dw {
		return Match{Kind: KindExact}, true
	}

	rq := []rune(qw)
	if allowPrefix && len(rq) >= 2 && strings.HasPrefix(dw, qw) {
		return Match{Kind: KindPrefix}, true
	}

	max := MaxDistance(len(rq))
	if d, ok := Distance(qw, dw, max); ok {
		d += firstRunePenalty(rq, []rune(dw))
		if d <= max {
			return Match{Kind: KindFuzzy, Dist: d}, true
		}
	}

	if gaps, ok := Subsequence(qw, dw); ok {
		return Match{Kind: KindSubsequence, Gaps: gaps}, true
	}

	return Match{}, false
}

// firstRunePenalty is +1 when the words start with different runes, unless
// the leading two runes are a pure transposition of each other.
func firstRunePenalty(rq, rd []rune) int {
	if len(rq) == 0 || len(rd) == 0 || rq[0] == rd[0] {
		return 0
	}
	if len(rq) >= 2 && len(rd) >= 2 && rq[0] == rd[1] && rq[1] == rd[0] {
		return 0
	}
	return 1
}

// MatchAcronym reports whether the query word spells out the initials of the
// document words starting at position i, one word per rune with no gaps.
// Returns the number of document words consumed. The query word must be at
// least 3 runes, all alphanumeric.
func MatchAcronym(qw string, docWords []string, i int) (int, bool) {
	rq := []rune(qw)
	if len(rq) < 3 {
		return 0, false
	}
	for _, r := range rq {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsNumber(r) {
			return 0, false
		}
	}
	if i+len(rq) > len(docWords) {
		return 0, false
	}
	for k, r := range rq {
		w := []rune(docWords[i+k])
		if len(w) == 0 || w[0] != r {
			return 0, false
		}
	}
	return len(rq), true
}

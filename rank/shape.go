package rank

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/jul-sh/clipkitty/fuzzy"
	"github.com/jul-sh/clipkitty/tokenizer"
)

// Highlight is a byte range over the searchable text. Ranges never overlap
// after merging.
type Highlight struct {
	Start int
	End   int
	Kind  fuzzy.Kind
}

// Shaped is everything the presentation layer needs per hit: highlight
// ranges, the line of the first highlight, the start of the densest
// highlight neighborhood for preview auto-scroll, and the row snippet.
type Shaped struct {
	Highlights            []Highlight
	LineNumber            uint32
	DensestHighlightStart uint64
	Snippet               string
}

// densestWindow is the neighborhood size used to pick the preview anchor.
const densestWindow = 120

// snippetContext is how much text the row snippet shows around a highlight.
const (
	snippetBack    = 10
	snippetForward = 200
)

func shape(text string, docTokens []tokenizer.Token, matches []WordMatch) Shaped {
	highlights := mergeHighlights(matchHighlights(text, docTokens, matches))
	if len(highlights) == 0 {
		return Shaped{LineNumber: 1, Snippet: flatten(runePrefix(text, snippetForward))}
	}

	first := highlights[0]
	line := uint32(1 + strings.Count(text[:first.Start], "\n"))

	return Shaped{
		Highlights:            highlights,
		LineNumber:            line,
		DensestHighlightStart: uint64(densestStart(highlights)),
		Snippet:               snippet(text, first, line),
	}
}

// matchHighlights converts matches to byte ranges. Prefix matches cover only
// the typed prefix; acronym matches mark the first rune of each covered
// word; everything else covers the whole token.
func matchHighlights(text string, docTokens []tokenizer.Token, matches []WordMatch) []Highlight {
	var out []Highlight
	for _, m := range matches {
		switch m.Kind {
		case fuzzy.KindPrefix:
			tok := docTokens[m.TokenIdx]
			end := tok.Start + runeByteLen(text[tok.Start:tok.End], m.QueryRuneLen)
			out = append(out, Highlight{Start: tok.Start, End: end, Kind: fuzzy.KindPrefix})

		case fuzzy.KindAcronym:
			remaining := m.MarkSpan
			for i := m.TokenIdx; i < len(docTokens) && remaining > 0; i++ {
				tok := docTokens[i]
				if tok.Kind == tokenizer.KindSpace {
					continue
				}
				remaining--
				if tok.Kind != tokenizer.KindWord {
					continue
				}
				end := tok.Start + runeByteLen(text[tok.Start:tok.End], 1)
				out = append(out, Highlight{Start: tok.Start, End: end, Kind: fuzzy.KindExact})
			}

		default:
			tok := docTokens[m.TokenIdx]
			kind := m.Kind
			if kind == fuzzy.KindAcronym {
				kind = fuzzy.KindExact
			}
			out = append(out, Highlight{Start: tok.Start, End: tok.End, Kind: kind})
		}
	}
	return out
}

// mergeHighlights sorts ranges and merges overlaps, keeping the strongest
// kind of any merged pair.
func mergeHighlights(hs []Highlight) []Highlight {
	if len(hs) == 0 {
		return nil
	}
	sort.Slice(hs, func(i, j int) bool {
		if hs[i].Start != hs[j].Start {
			return hs[i].Start < hs[j].Start
		}
		return hs[i].End > hs[j].End
	})

	merged := hs[:1]
	for _, h := range hs[1:] {
		last := &merged[len(merged)-1]
		if h.Start >= last.End {
			merged = append(merged, h)
			continue
		}
		if h.End > last.End {
			last.End = h.End
		}
		if kindPriority(h.Kind) > kindPriority(last.Kind) {
			last.Kind = h.Kind
		}
	}
	return merged
}

// densestStart picks the highlight whose 120-char neighborhood covers the
// most highlighted characters; earliest wins ties.
func densestStart(hs []Highlight) int {
	bestStart := hs[0].Start
	bestCovered := -1
	for _, h := range hs {
		lo, hi := h.Start, h.Start+densestWindow
		covered := 0
		for _, other := range hs {
			s, e := other.Start, other.End
			if s < lo {
				s = lo
			}
			if e > hi {
				e = hi
			}
			if e > s {
				covered += e - s
			}
		}
		if covered > bestCovered {
			bestCovered = covered
			bestStart = h.Start
		}
	}
	return bestStart
}

// snippet builds the row-view text. Highlights near the top of the item show
// the document head; anything deeper shows a flattened one-line context
// around the first highlight, tagged with its line when off line 1.
func snippet(text string, first Highlight, line uint32) string {
	if first.Start < 20 && line == 1 {
		return flatten(runePrefix(text, snippetForward))
	}
	start := runeBack(text, first.Start, snippetBack)
	end := runeForward(text, first.Start, snippetForward)
	context := flatten(text[start:end])
	if line > 1 {
		return fmt.Sprintf("L%d: …%s", line, context)
	}
	return "…" + context
}

// HeadSnippet is the row view for unmatched listings (empty queries show
// the recency list with no highlights).
func HeadSnippet(text string) string {
	return flatten(runePrefix(text, snippetForward))
}

// flatten collapses every whitespace run to a single space.
func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// runeByteLen returns the byte length of the first n runes of s.
func runeByteLen(s string, n int) int {
	i := 0
	for ; n > 0 && i < len(s); n-- {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return i
}

func runePrefix(s string, n int) string {
	return s[:runeByteLen(s, n)]
}

// runeForward advances n runes from byte offset start.
func runeForward(s string, start, n int) int {
	return start + runeByteLen(s[start:], n)
}

// runeBack retreats n runes from byte offset start.
func runeBack(s string, start, n int) int {
	i := start
	for ; n > 0 && i > 0; n-- {
		_, size := utf8.DecodeLastRuneInString(s[:i])
		i -= size
	}
	return i
}

package rank

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jul-sh/clipkitty/fuzzy"
)

func shapeOf(t *testing.T, query, text string) Shaped {
	t.Helper()
	hits := rankTexts(t, query, text)
	require.Len(t, hits, 1)
	return hits[0].Shaped
}

func TestShapeHighlightsCoverMatches(t *testing.T) {
	sh := shapeOf(t, "hello world", "hello there world")
	require.Len(t, sh.Highlights, 2)
	assert.Equal(t, 0, sh.Highlights[0].Start)
	assert.Equal(t, 5, sh.Highlights[0].End)
	assert.Equal(t, fuzzy.KindExact, sh.Highlights[0].Kind)
	assert.Equal(t, 12, sh.Highlights[1].Start)
	assert.Equal(t, 17, sh.Highlights[1].End)
}

func TestShapePrefixHighlightCoversTypedPartOnly(t *testing.T) {
	sh := shapeOf(t, "wor", "workspace")
	require.Len(t, sh.Highlights, 1)
	assert.Equal(t, 0, sh.Highlights[0].Start)
	assert.Equal(t, 3, sh.Highlights[0].End)
	assert.Equal(t, fuzzy.KindPrefix, sh.Highlights[0].Kind)
}

func TestShapeHighlightsMergeOverlaps(t *testing.T) {
	// Both query words match the same document word.
	sh := shapeOf(t, "test test", "test case")
	require.Len(t, sh.Highlights, 1)
	assert.Equal(t, 0, sh.Highlights[0].Start)
	assert.Equal(t, 4, sh.Highlights[0].End)
}

func TestShapeAcronymHighlightsInitials(t *testing.T) {
	sh := shapeOf(t, "lgtm", "looks good to me")
	require.Len(t, sh.Highlights, 4)
	for i, start := range []int{0, 6, 11, 14} {
		assert.Equal(t, start, sh.Highlights[i].Start)
		assert.Equal(t, start+1, sh.Highlights[i].End)
	}
}

func TestShapeLineNumber(t *testing.T) {
	sh := shapeOf(t, "needle", "first line\nsecond line\nwith a needle here")
	assert.EqualValues(t, 3, sh.LineNumber)
}

func TestShapeSnippetHeadOfDocument(t *testing.T) {
	sh := shapeOf(t, "hello", "hello world, nothing fancy")
	assert.Equal(t, "hello world, nothing fancy", sh.Snippet)
}

func TestShapeSnippetDeepMatchGetsContext(t *testing.T) {
	text := strings.Repeat("padding ", 10) + "needle in the middle"
	sh := shapeOf(t, "needle", text)
	assert.True(t, strings.HasPrefix(sh.Snippet, "…"), "snippet %q", sh.Snippet)
	assert.Contains(t, sh.Snippet, "needle")
}

func TestShapeSnippetOffLineOneGetsLineTag(t *testing.T) {
	sh := shapeOf(t, "needle", "top\nneedle below")
	assert.True(t, strings.HasPrefix(sh.Snippet, "L2: …"), "snippet %q", sh.Snippet)
	assert.Contains(t, sh.Snippet, "needle")
	assert.NotContains(t, sh.Snippet, "\n")
}

func TestShapeSnippetFlattensWhitespace(t *testing.T) {
	sh := shapeOf(t, "alpha", "alpha\tbeta\n\ngamma")
	assert.Equal(t, "alpha beta gamma", sh.Snippet)
}

func TestShapeDensestWindow(t *testing.T) {
	// A short lone match up top, a heavier one far beyond the 120-char
	// window; the preview anchor jumps to the denser neighborhood.
	text := "beta " + strings.Repeat("x ", 100) + "wonderful things"
	sh := shapeOf(t, "wonderful beta", text)
	require.Len(t, sh.Highlights, 2)

	deepStart := len("beta ") + 200
	assert.GreaterOrEqual(t, sh.DensestHighlightStart, uint64(deepStart))
}

func TestRuneHelpers(t *testing.T) {
	s := "héllo"
	assert.Equal(t, 3, runeByteLen(s, 2)) // h + two-byte é
	assert.Equal(t, "hé", runePrefix(s, 2))
	assert.Equal(t, len(s), runeForward(s, 0, 10))
	assert.Equal(t, 0, runeBack(s, 3, 5))
}

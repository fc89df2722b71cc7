// Package tokenizer splits UTF-8 text into word, punctuation, and whitespace
// tokens with byte offsets. Queries and documents go through the same pipeline
// so offsets and word boundaries always line up.
package tokenizer

import (
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

type Kind int

const (
	KindWord Kind = iota
	KindPunct
	KindSpace
)

func (k Kind) String() string {
	switch k {
	case KindWord:
		return "word"
	case KindPunct:
		return "punct"
	case KindSpace:
		return "space"
	}
	return "unknown"
}

// Token is a single lexical unit. Start and End are byte offsets into the
// original string; Lowered is the case-folded text of the token.
type Token struct {
	Kind    Kind
	Start   int
	End     int
	Lowered string
}

// Scanner walks a string token by token. The zero value is not usable; create
// one with NewScanner. Re-invoking NewScanner on the same input restarts the
// sequence from the beginning.
type Scanner struct {
	src string
	pos int
}

func NewScanner(src string) *Scanner {
	return &Scanner{src: src}
}

// Next returns the next token, or false once the input is exhausted. Tokens
// cover every byte of the input exactly once.
func (s *Scanner) Next() (Token, bool) {
	if s.pos >= len(s.src) {
		return Token{}, false
	}
	start := s.pos
	r, size := utf8.DecodeRuneInString(s.src[s.pos:])

	switch {
	case unicode.IsSpace(r):
		s.pos += size
		for s.pos < len(s.src) {
			r, size = utf8.DecodeRuneInString(s.src[s.pos:])
			if !unicode.IsSpace(r) {
				break
			}
			s.pos += size
		}
		return Token{Kind: KindSpace, Start: start, End: s.pos}, true

	case isWordRune(r):
		s.pos += size
		for s.pos < len(s.src) {
			r, size = utf8.DecodeRuneInString(s.src[s.pos:])
			if !isWordRune(r) {
				break
			}
			s.pos += size
		}
		return Token{
			Kind:    KindWord,
			Start:   start,
			End:     s.pos,
			Lowered: Fold(s.src[start:s.pos]),
		}, true

	default:
		// A punctuation token is always a single code point.
		s.pos += size
		return Token{
			Kind:    KindPunct,
			Start:   start,
			End:     s.pos,
			Lowered: Fold(s.src[start:s.pos]),
		}, true
	}
}

// Tokenize returns all tokens of src in order.
func Tokenize(src string) []Token {
	var tokens []Token
	sc := NewScanner(src)
	for {
		tok, ok := sc.Next()
		if !ok {
			return tokens
		}
		tokens = append(tokens, tok)
	}
}

// Fold lowercases s using full Unicode case folding, the same folding applied
// to word tokens. A fresh Caser per call: cases.Caser carries internal state
// and must not be shared between goroutines.
func Fold(s string) string {
	return cases.Fold().String(s)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsNumber(r)
}

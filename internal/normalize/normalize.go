// Package normalize converts raw user text into a canonical token sequence.
//
// Normalization is pure and idempotent: case folding, compatibility
// decomposition, punctuation stripping and whitespace collapsing applied to
// already-normalized text is a no-op. Both Latin and Cyrillic scripts are
// handled without transliteration; unrecognized characters are dropped.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// Tokens normalizes text into a token sequence for the given language.
// The language argument is accepted for signature stability; tokenization
// rules are identical for the supported scripts. Never fails: malformed or
// unrecognized input yields an empty or shortened token list.
func Tokens(text, language string) []string {
	_ = language
	folded := folder.String(norm.NFKC.String(text))

	var tokens []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		// Everything else (punctuation, whitespace, symbols) is a boundary.
		flush()
	}
	flush()
	return tokens
}

// Word normalizes a single word the same way Tokens does and returns the
// first resulting token. Used to canonicalize configured pattern literals and
// gazetteer keys so that matching compares like with like.
func Word(word string) string {
	toks := Tokens(word, "")
	if len(toks) == 0 {
		return ""
	}
	return toks[0]
}

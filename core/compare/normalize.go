package compare

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds s for equivalence checks: NFKD decomposition with combining marks
// removed, case folding, and every run of punctuation or whitespace collapsed to a
// single space.
func Normalize(s string) string {
	// transformers and casers keep state and are built per call
	stripped, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		stripped = s
	}
	folded := cases.Fold().String(stripped)

	var b strings.Builder
	b.Grow(len(folded))
	gap := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if gap && b.Len() > 0 {
				b.WriteByte(' ')
			}
			gap = false
			b.WriteRune(r)
			continue
		}
		gap = true
	}
	return b.String()
}

// compact is the normalized form without separators, used as the synonym key so
// "VF-35", "VF 35" and "vf35" are the same term.
func compact(s string) string {
	return strings.ReplaceAll(Normalize(s), " ", "")
}

package source

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// normalizeHeader folds a header cell for matching: lower case, accents
// removed, punctuation and spaces collapsed to single underscores.
func normalizeHeader(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.ToLower(strings.TrimSpace(s))

	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	prevUnderscore := false
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			prevUnderscore = false
		case r == '(' || r == ')':
		default:
			if !prevUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				prevUnderscore = true
			}
		}
	}
	return strings.TrimRight(b.String(), "_")
}

// columnIndex maps normalized header names to their position. The first
// occurrence of a repeated name wins.
func columnIndex(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, col := range header {
		key := normalizeHeader(col)
		if _, dup := m[key]; dup {
			continue
		}
		m[key] = i
	}
	return m
}

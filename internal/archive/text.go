package archive

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeText folds text for heuristic matching: diacritics removed, lower-cased, whitespace collapsed.
func NormalizeText(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(folder, value)
	if err != nil {
		stripped = value
	}
	return collapseWhitespace(strings.ToLower(stripped))
}

func collapseWhitespace(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

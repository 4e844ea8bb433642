package catalog

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	// Generic leading nouns carried over from supplier price lists.
	prefixRe = regexp.MustCompile(`^(товар|материал|продукт)\s*`)
	// Trailing packaging words and unit abbreviations that leak into names.
	suffixRe = regexp.MustCompile(`\s*(упаковка|штука|кг|м|м²|м³)$`)
)

// NormalizeName reduces a raw material name to its canonical lookup form:
// NFC, lowercased, whitespace collapsed, generic prefixes and unit-like
// suffixes stripped. Aliases are stored and looked up through this one
// function so they always round-trip.
func NormalizeName(name string) string {
	if name == "" {
		return ""
	}
	cleaned := norm.NFC.String(name)
	cleaned = strings.ToLower(strings.TrimSpace(cleaned))
	cleaned = whitespaceRe.ReplaceAllString(cleaned, " ")
	cleaned = prefixRe.ReplaceAllString(cleaned, "")
	cleaned = suffixRe.ReplaceAllString(cleaned, "")
	return cleaned
}

package text

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Cleaner rewrites text before it is mapped onto a symbol table.
type Cleaner func(string) string

var cleaners = map[string]Cleaner{
	"cjke_cleaners2":           CJKECleaner,
	"english_cleaners":         EnglishCleaner,
	"english_cleaners2":        EnglishCleaner,
	"basic_cleaners":           BasicCleaner,
	"transliteration_cleaners": TransliterationCleaner,
}

// LookupCleaner returns the cleaner registered under name.
func LookupCleaner(name string) (Cleaner, error) {
	c, ok := cleaners[name]
	if !ok {
		return nil, fmt.Errorf("text: unknown cleaner %q", name)
	}

	return c, nil
}

// Clean applies the named cleaners in order.
func Clean(s string, names []string) (string, error) {
	for _, name := range names {
		c, err := LookupCleaner(name)
		if err != nil {
			return "", err
		}

		s = c(s)
	}

	return s, nil
}

// CJKECleaner lowercases and keeps only latin letters and CJK ideographs,
// collapsing everything else to single spaces.
func CJKECleaner(s string) string {
	return keepOnly(strings.ToLower(s), func(r rune) bool {
		return (r >= 'a' && r <= 'z') || (r >= 0x4e00 && r <= 0x9fff)
	})
}

// EnglishCleaner folds accents, lowercases and keeps only a-z.
func EnglishCleaner(s string) string {
	return keepOnly(strings.ToLower(FoldASCII(s)), func(r rune) bool {
		return r >= 'a' && r <= 'z'
	})
}

// BasicCleaner lowercases and collapses whitespace.
func BasicCleaner(s string) string {
	return CollapseWhitespace(strings.ToLower(s))
}

// TransliterationCleaner folds accents, lowercases and collapses whitespace.
func TransliterationCleaner(s string) string {
	return CollapseWhitespace(strings.ToLower(FoldASCII(s)))
}

// FoldASCII strips combining marks after canonical decomposition, so
// "café" becomes "cafe". Characters without a decomposition pass through.
func FoldASCII(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}

	return out
}

// CollapseWhitespace replaces whitespace runs with one space and trims.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func keepOnly(s string, keep func(rune) bool) string {
	var b strings.Builder
	b.Grow(len(s))

	gap := false
	for _, r := range s {
		if keep(r) {
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

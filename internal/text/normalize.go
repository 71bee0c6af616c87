package text

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ErrEmptyText is returned when nothing speakable is left after Normalize.
var ErrEmptyText = errors.New("text is empty")

// Normalize composes s to NFC, folds line endings to \n, turns tabs and
// no-break spaces into plain spaces and drops other control or format
// runes. Internal spacing is kept so sentence offsets stay stable across
// repeated calls.
func Normalize(s string) (string, error) {
	s = strings.ReplaceAll(norm.NFC.String(s), "\r\n", "\n")

	var b strings.Builder
	b.Grow(len(s))

	for _, r := range s {
		switch {
		case r == '\r':
			b.WriteByte('\n')
		case r == '\n':
			b.WriteRune(r)
		case r == '\t', r == ' ', r == '\u00a0', r == '\u202f':
			b.WriteByte(' ')
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
		default:
			b.WriteRune(r)
		}
	}

	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", ErrEmptyText
	}

	return out, nil
}

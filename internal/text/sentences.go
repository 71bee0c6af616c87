package text

import (
	"strings"
	"unicode/utf8"
)

// shortTextChars is the length under which unsplit input is kept whole.
const shortTextChars = 100

// SplitSentences splits text at whitespace runs that follow '.', '!' or '?'
// and precede an ASCII capital letter. Terminators stay attached to their
// sentence. When no split happens and the text is short, the trimmed input
// is returned as the only sentence.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)

	var (
		out   []string
		start int
	)

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if r != '.' && r != '!' && r != '?' {
			i += size
			continue
		}

		end := i + size
		j := end
		for j < len(text) {
			ws, wsSize := utf8.DecodeRuneInString(text[j:])
			if !isSpace(ws) {
				break
			}
			j += wsSize
		}

		if j > end && j < len(text) && text[j] >= 'A' && text[j] <= 'Z' {
			if s := strings.TrimSpace(text[start:end]); s != "" {
				out = append(out, s)
			}
			start = j
		}

		i = end
	}

	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}

	if len(out) == 0 || (len(out) == 1 && utf8.RuneCountInString(text) < shortTextChars) {
		return []string{text}
	}

	return out
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}

	return false
}

package tokenizer

import (
	"strings"
	"unicode"

	"github.com/example/go-voiceclone/internal/symbols"
)

// DefaultIPAWords covers greetings and pleasantries.
var DefaultIPAWords = map[string]string{
	"nice":   "naɪs",
	"meet":   "miːt",
	"you":    "juː",
	"hello":  "həloʊ",
	"there":  "ðɛr",
	"hi":     "haɪ",
	"hey":    "heɪ",
	"yes":    "jɛs",
	"no":     "noʊ",
	"okay":   "oʊkeɪ",
	"bye":    "baɪ",
	"thanks": "θæŋks",
}

// DefaultIPAAlternatives lists substitutes tried when a symbol is missing.
var DefaultIPAAlternatives = map[string][]string{
	"r": {"r", "ɹ", "ɾ"},
	"ɛ": {"ɛ", "e"},
	"ð": {"ð", "th"},
	"ʊ": {"ʊ", "u"},
	"ə": {"ə", "a"},
	"ː": {"ː", ""},
	"ɡ": {"ɡ", "g"},
}

// IPAStrategy looks words up in a small IPA dictionary and spells unknown
// words character by character.
type IPAStrategy struct {
	Symbols      *symbols.Table
	Words        map[string]string
	Alternatives map[string][]string
}

// NewIPAStrategy returns a strategy using the default dictionary.
func NewIPAStrategy(table *symbols.Table) *IPAStrategy {
	return &IPAStrategy{Symbols: table, Words: DefaultIPAWords, Alternatives: DefaultIPAAlternatives}
}

func (s *IPAStrategy) Name() string { return "ipa" }

func (s *IPAStrategy) Attempt(input, _ string) (Sequence, error) {
	words := strings.Fields(stripPunctuation(strings.ToLower(input)))

	var ids []int

	space, hasSpace := s.Symbols.ID(" ")

	for i, w := range words {
		if ipa, ok := s.Words[w]; ok {
			for _, r := range ipa {
				if id, ok := s.lookup(string(r)); ok {
					ids = append(ids, id)
				}
			}
		} else {
			for _, r := range w {
				if id, ok := s.Symbols.ID(string(r)); ok {
					ids = append(ids, id)
				}
			}
		}

		if hasSpace && i < len(words)-1 {
			ids = append(ids, space)
		}
	}

	return Sequence{IDs: ids}, nil
}

func (s *IPAStrategy) lookup(ch string) (int, bool) {
	if id, ok := s.Symbols.ID(ch); ok {
		return id, true
	}

	for _, alt := range s.Alternatives[ch] {
		if alt == "" {
			continue
		}

		if id, ok := s.Symbols.ID(alt); ok {
			return id, true
		}
	}

	return s.Symbols.ID(strings.ToLower(ch))
}

// stripPunctuation removes everything except word characters and spaces.
func stripPunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == '_' || unicode.Is(unicode.Mn, r) {
			return r
		}

		return -1
	}, s)
}

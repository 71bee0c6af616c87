package text

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"unicode"
)

// arpabetVowels lists the ARPABET vowel phones that carry a stress digit.
var arpabetVowels = map[string]bool{
	"AA": true, "AE": true, "AH": true, "AO": true, "AW": true, "AY": true,
	"EH": true, "ER": true, "EY": true, "IH": true, "IY": true, "OW": true,
	"OY": true, "UH": true, "UW": true,
}

var abbreviations = [][2]string{
	{"Mr.", "Mister"},
	{"Mrs.", "Missus"},
	{"Dr.", "Doctor"},
	{"St.", "Saint"},
	{"Jr.", "Junior"},
	{"vs.", "versus"},
	{"etc.", "etcetera"},
	{"e.g.", "for example"},
	{"i.e.", "that is"},
}

// graphemeRules map spelling fragments to unstressed ARPABET phones. Longer
// fragments are tried first.
var graphemeRules = map[string][]string{
	"tion": {"SH", "AH", "N"},
	"sion": {"ZH", "AH", "N"},
	"ough": {"AH", "F"},
	"ight": {"AY", "T"},
	"ture": {"CH", "ER"},
	"ould": {"UH", "D"},
	"ound": {"AW", "N", "D"},
	"ment": {"M", "AH", "N", "T"},
	"ness": {"N", "AH", "S"},
	"able": {"AH", "B", "AH", "L"},
	"ing":  {"IH", "NG"},
	"tch":  {"CH"},
	"dge":  {"JH"},
	"ph":   {"F"},
	"th":   {"TH"},
	"sh":   {"SH"},
	"ch":   {"CH"},
	"wh":   {"W"},
	"wr":   {"R"},
	"kn":   {"N"},
	"ck":   {"K"},
	"ng":   {"NG"},
	"gh":   {},
	"qu":   {"K", "W"},
	"ee":   {"IY"},
	"ea":   {"IY"},
	"oo":   {"UW"},
	"ou":   {"AW"},
	"ow":   {"OW"},
	"ai":   {"EY"},
	"ay":   {"EY"},
	"oi":   {"OY"},
	"oy":   {"OY"},
	"au":   {"AO"},
	"aw":   {"AO"},
	"er":   {"ER"},
	"ir":   {"ER"},
	"ur":   {"ER"},
	"ar":   {"AA", "R"},
	"or":   {"AO", "R"},
	"a":    {"AE"},
	"b":    {"B"},
	"c":    {"K"},
	"d":    {"D"},
	"e":    {"EH"},
	"f":    {"F"},
	"g":    {"G"},
	"h":    {"HH"},
	"i":    {"IH"},
	"j":    {"JH"},
	"k":    {"K"},
	"l":    {"L"},
	"m":    {"M"},
	"n":    {"N"},
	"o":    {"AA"},
	"p":    {"P"},
	"q":    {"K"},
	"r":    {"R"},
	"s":    {"S"},
	"t":    {"T"},
	"u":    {"AH"},
	"v":    {"V"},
	"w":    {"W"},
	"x":    {"K", "S"},
	"y":    {"Y"},
	"z":    {"Z"},
}

// G2P converts English text to ARPABET phones with stress digits on vowels.
// Words are looked up in a pronunciation lexicon first and spelled out by
// grapheme rules otherwise. It is safe for concurrent use.
type G2P struct {
	mu      sync.RWMutex
	lexicon map[string][]string
}

// NewG2P returns a converter seeded with the built-in lexicon.
func NewG2P() *G2P {
	g := &G2P{lexicon: make(map[string][]string, len(builtinLexicon))}
	for word, pron := range builtinLexicon {
		g.lexicon[word] = strings.Fields(pron)
	}

	return g
}

// LoadLexiconFile merges a CMU-style pronunciation dictionary from path.
func (g *G2P) LoadLexiconFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open lexicon: %w", err)
	}
	defer f.Close()

	return g.LoadLexicon(f)
}

// LoadLexicon merges entries of the form "WORD  PH1 PH2 ..." from r.
// Lines starting with ";;;" and alternate pronunciations "WORD(2)" are
// skipped. It returns the number of entries added.
func (g *G2P) LoadLexicon(r io.Reader) (int, error) {
	entries := make(map[string][]string)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, ";;;") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 || strings.HasSuffix(fields[0], ")") {
			continue
		}

		entries[strings.ToLower(fields[0])] = fields[1:]
	}

	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("read lexicon: %w", err)
	}

	g.mu.Lock()
	for w, p := range entries {
		g.lexicon[w] = p
	}
	g.mu.Unlock()

	return len(entries), nil
}

// Convert returns ARPABET phones for text. Punctuation and whitespace are
// dropped; numbers and common abbreviations are spelled out first.
func (g *G2P) Convert(text string) []string {
	for _, pair := range abbreviations {
		text = strings.ReplaceAll(text, pair[0], pair[1])
	}

	text = ExpandNumbers(text)

	var phones []string

	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, word := range splitWords(text) {
		if pron, ok := g.lexicon[word]; ok {
			phones = append(phones, pron...)
			continue
		}

		phones = append(phones, spellWord(word)...)
	}

	return phones
}

// IsVowelPhone reports whether phone (with or without a stress digit) is
// an ARPABET vowel.
func IsVowelPhone(phone string) bool {
	return arpabetVowels[strings.TrimRight(phone, "012")]
}

func splitWords(s string) []string {
	var (
		words []string
		cur   strings.Builder
	)

	flush := func() {
		if cur.Len() > 0 {
			words = append(words, strings.Trim(cur.String(), "'"))
			cur.Reset()
		}
	}

	for _, r := range strings.ToLower(FoldASCII(s)) {
		if (r >= 'a' && r <= 'z') || r == '\'' {
			cur.WriteRune(r)
			continue
		}

		if unicode.IsLetter(r) {
			continue
		}

		flush()
	}
	flush()

	out := words[:0]
	for _, w := range words {
		if w != "" {
			out = append(out, w)
		}
	}

	return out
}

// spellWord applies grapheme rules and marks the first vowel with primary
// stress and the rest as unstressed.
func spellWord(word string) []string {
	word = strings.ReplaceAll(word, "'", "")
	if len(word) > 3 && strings.HasSuffix(word, "e") && !strings.HasSuffix(word, "ee") && !strings.HasSuffix(word, "le") {
		word = word[:len(word)-1]
	}

	var phones []string

	for i := 0; i < len(word); {
		matched := false

		for n := 4; n >= 1; n-- {
			if i+n > len(word) {
				continue
			}

			if ph, ok := graphemeRules[word[i:i+n]]; ok {
				phones = append(phones, ph...)
				i += n
				matched = true

				break
			}
		}

		if !matched {
			i++
		}
	}

	stressed := false
	for i, ph := range phones {
		if !arpabetVowels[ph] {
			continue
		}

		if !stressed {
			phones[i] = ph + "1"
			stressed = true

			continue
		}

		phones[i] = ph + "0"
	}

	return phones
}

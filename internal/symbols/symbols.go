// Package symbols holds the ordered token vocabularies that map phonetic and
// character symbols to the integer ids a checkpoint was trained with.
package symbols

import (
	"fmt"
	"strings"
)

var (
	special    = []string{"", "|", "||"}
	ipaVowels  = []string{"i", "y", "ɨ", "ʉ", "ɯ", "u", "ɪ", "ʏ", "ʊ", "e", "ø", "ɘ", "ɵ", "ɤ", "o", "ə", "ɛ", "œ", "ɜ", "ɞ", "ʌ", "ɔ", "æ", "ɐ", "a", "ɶ", "ɑ", "ɒ"}
	ipaConsons = []string{"b", "d", "ð", "ɖ", "f", "g", "h", "j", "k", "l", "ɭ", "m", "n", "ɳ", "ŋ", "p", "r", "s", "ʃ", "t", "v", "w", "x", "z", "ʒ", "θ", "ʔ", "ɹ"}
	ipaMods    = []string{"ː", "ˈ", "ˌ", "̃", "̊", "̥", "̰", "̩", "̍"}
	pinyin     = []string{"ā", "á", "ǎ", "à", "ē", "é", "ě", "è", "ī", "í", "ǐ", "ì", "ō", "ó", "ǒ", "ò", "ū", "ú", "ǔ", "ù", "ǖ", "ǘ", "ǚ", "ǜ"}
	latin      = strings.Split("abcdefghijklmnopqrstuvwxyz", "")
)

const (
	altPad         = "_"
	altPunctuation = ";:,.!?¡¿—…\"«»\"\" "
	altLetters     = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	altLettersIPA  = "ɑɐɒæɓʙβɔɕçɗɖðʤəɘɚɛɜɝɞɟʄɡɠɢʛɦɧħɥʜɨɪʝɭɬɫɮʟɱɯɰŋɳɲɴøɵɸθœɶʘɹɺɾɻʀʁɽʂʃʈʧʉʊʋⱱʌɣɤʍχʎʏʑʐʒʔʡʕʢǀǁǂǃˈˌːˑʼʴʰʱʲʷˠˤ˞↓↑→↗↘'̩'ᵻ"
)

// Names of the built-in symbol sets.
const (
	SetDefault   = "default"
	SetAlternate = "alternate"
)

// Table is an immutable ordered vocabulary. Indices are contiguous from 0.
type Table struct {
	symbols []string
	ids     map[string]int
	blankID int
}

// New builds a table from an ordered symbol list. When a symbol appears more
// than once the last index wins, matching how the checkpoints were exported.
func New(list []string) (*Table, error) {
	if len(list) == 0 {
		return nil, fmt.Errorf("symbols: empty symbol list")
	}

	t := &Table{
		symbols: append([]string(nil), list...),
		ids:     make(map[string]int, len(list)),
		blankID: -1,
	}
	for i, s := range t.symbols {
		t.ids[s] = i
	}

	if t.symbols[0] == "_" || t.symbols[0] == "" {
		t.blankID = 0
	}

	return t, nil
}

// Default returns the IPA-oriented table used by the bundled checkpoints.
func Default() *Table {
	list := make([]string, 0, 128)
	for _, group := range [][]string{special, ipaVowels, ipaConsons, ipaMods, pinyin, latin} {
		list = append(list, group...)
	}

	t, _ := New(list)

	return t
}

// Alternate returns the pad + punctuation + letters + IPA letters table.
func Alternate() *Table {
	list := []string{altPad}
	for _, group := range []string{altPunctuation, altLetters, altLettersIPA} {
		for _, r := range group {
			list = append(list, string(r))
		}
	}

	t, _ := New(list)

	return t
}

// ByName resolves a built-in table name. An empty name selects the default.
func ByName(name string) (*Table, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", SetDefault:
		return Default(), nil
	case SetAlternate:
		return Alternate(), nil
	default:
		return nil, fmt.Errorf("symbols: unknown symbol set %q (expected %s|%s)", name, SetDefault, SetAlternate)
	}
}

// Len returns the vocabulary size.
func (t *Table) Len() int { return len(t.symbols) }

// ID returns the id for symbol s.
func (t *Table) ID(s string) (int, bool) {
	id, ok := t.ids[s]
	return id, ok
}

// Has reports whether s is in the vocabulary.
func (t *Table) Has(s string) bool {
	_, ok := t.ids[s]
	return ok
}

// Symbol returns the symbol for id, or "" when id is out of range.
func (t *Table) Symbol(id int) string {
	if id < 0 || id >= len(t.symbols) {
		return ""
	}

	return t.symbols[id]
}

// BlankID returns the interspersion blank id when index 0 is a pad symbol.
func (t *Table) BlankID() (int, bool) {
	return t.blankID, t.blankID >= 0
}

// Symbols returns a copy of the ordered vocabulary.
func (t *Table) Symbols() []string {
	return append([]string(nil), t.symbols...)
}

// Decode joins the symbols for ids, skipping out-of-range ids.
func (t *Table) Decode(ids []int) string {
	var b strings.Builder
	for _, id := range ids {
		b.WriteString(t.Symbol(id))
	}

	return b.String()
}

// Tokens returns the per-id symbols, using "" for out-of-range ids.
func (t *Table) Tokens(ids []int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = t.Symbol(id)
	}

	return out
}

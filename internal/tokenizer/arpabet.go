package tokenizer

import (
	"errors"
	"strings"

	"github.com/example/go-voiceclone/internal/symbols"
	"github.com/example/go-voiceclone/internal/text"
)

var arpabetVowelIPA = map[string][]string{
	"AA": {"ɑ"}, "AE": {"æ"}, "AH": {"ʌ"},
	"AO": {"ɔ"}, "AW": {"a", "ʊ"}, "AY": {"a", "ɪ"},
	"EH": {"ɛ"}, "ER": {"ɜ"}, "EY": {"e", "ɪ"}, "IH": {"ɪ"}, "IY": {"i"}, "OW": {"o", "ʊ"},
	"OY": {"ɔ", "ɪ"}, "UH": {"ʊ"}, "UW": {"u"},
}

var arpabetConsonantIPA = map[string][]string{
	"TH": {"θ"}, "DH": {"ð"}, "NG": {"ŋ"}, "SH": {"ʃ"}, "ZH": {"ʒ"}, "HH": {"h"},
	"CH": {"t", "ʃ"}, "JH": {"d", "ʒ"},
}

// ARPABETStrategy maps G2P phones onto IPA approximations in the table and
// records primary-stress positions.
type ARPABETStrategy struct {
	G2P     *text.G2P
	Symbols *symbols.Table
}

func (s *ARPABETStrategy) Name() string { return "g2p" }

func (s *ARPABETStrategy) Attempt(input, _ string) (Sequence, error) {
	if s.G2P == nil {
		return Sequence{}, errors.New("tokenizer: g2p unavailable")
	}

	ids, stressed := MapARPABET(s.G2P.Convert(input), s.Symbols)

	return Sequence{IDs: ids, Stressed: stressed}, nil
}

// MapARPABET converts phones to ids. Phones with no table entry are dropped.
// Unstressed AH becomes a schwa when the table has one. Phones not in the
// vowel or consonant maps are spelled as lowercase letters.
func MapARPABET(phones []string, table *symbols.Table) ([]int, map[int]bool) {
	var (
		ids      []int
		stressed map[int]bool
	)

	for _, tok := range phones {
		if tok == "" {
			continue
		}

		core, stress := tok, byte(0)
		if last := tok[len(tok)-1]; last >= '0' && last <= '9' {
			core, stress = tok[:len(tok)-1], last
		}

		core = strings.ToUpper(core)

		var syms []string

		switch {
		case arpabetVowelIPA[core] != nil:
			syms = arpabetVowelIPA[core]
			if core == "AH" && stress == '0' && table.Has("ə") {
				syms = []string{"ə"}
			}
		case arpabetConsonantIPA[core] != nil:
			syms = arpabetConsonantIPA[core]
		default:
			syms = strings.Split(strings.ToLower(core), "")
		}

		pos := len(ids)
		for _, sym := range syms {
			if id, ok := table.ID(sym); ok {
				ids = append(ids, id)
			}
		}

		if len(ids) > pos && stress == '1' {
			if stressed == nil {
				stressed = make(map[int]bool)
			}
			stressed[pos] = true
		}
	}

	return ids, stressed
}

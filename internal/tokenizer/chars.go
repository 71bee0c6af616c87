package tokenizer

import (
	"strings"

	"github.com/example/go-voiceclone/internal/symbols"
)

// CharStrategy maps each lowercase character present in the table.
type CharStrategy struct {
	Symbols *symbols.Table
}

func (s *CharStrategy) Name() string { return "chars" }

func (s *CharStrategy) Attempt(input, _ string) (Sequence, error) {
	var ids []int

	for _, r := range strings.ToLower(input) {
		if id, ok := s.Symbols.ID(string(r)); ok {
			ids = append(ids, id)
		}
	}

	return Sequence{IDs: ids}, nil
}

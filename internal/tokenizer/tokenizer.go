// Package tokenizer turns sentences into symbol-id sequences through an
// ordered chain of strategies: an external phonemizer, ARPABET G2P, a small
// IPA word dictionary and a raw character fallback.
package tokenizer

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/example/go-voiceclone/internal/symbols"
	"github.com/example/go-voiceclone/internal/text"
)

// ErrDegenerateInput is returned when every strategy yields zero tokens.
var ErrDegenerateInput = errors.New("tokenizer: degenerate input, no usable tokens")

const (
	// minUsableTokens is the length at which a strategy result is accepted.
	minUsableTokens = 3
	// Sequences of this length or shorter are never interspersed.
	maxUnblankedTokens = 3
)

// Sequence is a tokenized sentence.
type Sequence struct {
	IDs []int
	// Stressed holds positions in IDs that start a primary-stressed phone.
	Stressed map[int]bool
	// Stage names the strategy that produced IDs.
	Stage string
}

// IsStressed reports whether position i carries primary stress.
func (s Sequence) IsStressed(i int) bool { return s.Stressed[i] }

func (s Sequence) clone() Sequence {
	out := Sequence{IDs: append([]int(nil), s.IDs...), Stage: s.Stage}
	if len(s.Stressed) > 0 {
		out.Stressed = make(map[int]bool, len(s.Stressed))
		for k, v := range s.Stressed {
			out.Stressed[k] = v
		}
	}

	return out
}

// Strategy is one stage of the tokenization cascade.
type Strategy interface {
	Name() string
	Attempt(text, language string) (Sequence, error)
}

// Options configures a Pipeline.
type Options struct {
	Symbols  *symbols.Table
	Cleaners []string
	// AddBlank intersperses the blank id when the table defines one.
	AddBlank bool
	// Phonemizer enables the first stage when non-nil.
	Phonemizer Phonemizer
	// G2P enables the ARPABET stage when non-nil.
	G2P    *text.G2P
	Logger *slog.Logger
}

type cacheKey struct {
	text       string
	language   string
	forceChars bool
}

// Pipeline runs the strategy chain and caches results per
// (text, language, force_chars). It is safe for concurrent use.
type Pipeline struct {
	table      *symbols.Table
	addBlank   bool
	strategies []Strategy
	chars      Strategy
	logger     *slog.Logger

	mu    sync.Mutex
	cache map[cacheKey]Sequence
}

// New builds the default cascade from opts.
func New(opts Options) (*Pipeline, error) {
	if opts.Symbols == nil {
		return nil, errors.New("tokenizer: symbol table is required")
	}

	var chain []Strategy
	if opts.Phonemizer != nil {
		chain = append(chain, &PhonemizerStrategy{
			Phonemizer: opts.Phonemizer,
			Symbols:    opts.Symbols,
			Cleaners:   opts.Cleaners,
		})
	}

	if opts.G2P != nil {
		chain = append(chain, &ARPABETStrategy{G2P: opts.G2P, Symbols: opts.Symbols})
	}

	chain = append(chain, NewIPAStrategy(opts.Symbols))

	return NewWithStrategies(opts.Symbols, opts.AddBlank, chain, opts.Logger), nil
}

// NewWithStrategies builds a pipeline from an explicit chain. The character
// fallback is always appended last.
func NewWithStrategies(table *symbols.Table, addBlank bool, chain []Strategy, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		table:      table,
		addBlank:   addBlank,
		strategies: chain,
		chars:      &CharStrategy{Symbols: table},
		logger:     logger,
		cache:      make(map[cacheKey]Sequence),
	}
}

// Symbols returns the table ids are drawn from.
func (p *Pipeline) Symbols() *symbols.Table { return p.table }

// Tokenize converts one sentence to ids. forceChars skips every stage but
// the character fallback.
func (p *Pipeline) Tokenize(input, language string, forceChars bool) (Sequence, error) {
	key := cacheKey{text: input, language: language, forceChars: forceChars}

	p.mu.Lock()
	cached, ok := p.cache[key]
	p.mu.Unlock()

	if ok {
		if len(cached.IDs) == 0 {
			return Sequence{}, ErrDegenerateInput
		}

		return cached.clone(), nil
	}

	seq := p.cascade(input, language, forceChars)
	seq = p.intersperse(seq)

	p.mu.Lock()
	p.cache[key] = seq
	p.mu.Unlock()

	if len(seq.IDs) == 0 {
		return Sequence{}, ErrDegenerateInput
	}

	return seq.clone(), nil
}

func (p *Pipeline) cascade(input, language string, forceChars bool) Sequence {
	chain := []Strategy{p.chars}
	if !forceChars {
		chain = append(append([]Strategy(nil), p.strategies...), p.chars)
	}

	var best Sequence

	for _, s := range chain {
		seq, err := s.Attempt(input, language)
		if err != nil {
			p.logger.Debug("tokenizer stage failed", slog.String("stage", s.Name()), slog.String("error", err.Error()))
			continue
		}

		seq.Stage = s.Name()
		p.logger.Debug("tokenizer stage result", slog.String("stage", s.Name()), slog.Int("tokens", len(seq.IDs)))

		if len(seq.IDs) >= minUsableTokens {
			return seq
		}

		if len(seq.IDs) > len(best.IDs) {
			best = seq
		}
	}

	return best
}

func (p *Pipeline) intersperse(seq Sequence) Sequence {
	blank, ok := p.table.BlankID()
	if !p.addBlank || !ok || len(seq.IDs) <= maxUnblankedTokens {
		return seq
	}

	out := Sequence{IDs: Intersperse(seq.IDs, blank), Stage: seq.Stage}
	if len(seq.Stressed) > 0 {
		out.Stressed = make(map[int]bool, len(seq.Stressed))
		for pos := range seq.Stressed {
			out.Stressed[2*pos+1] = true
		}
	}

	return out
}

// Intersperse places item before, between and after every element of ids,
// producing 2*len(ids)+1 elements.
func Intersperse(ids []int, item int) []int {
	out := make([]int, 2*len(ids)+1)
	for i := range out {
		out[i] = item
	}

	for i, id := range ids {
		out[2*i+1] = id
	}

	return out
}

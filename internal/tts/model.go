package tts

import (
	"github.com/example/go-voiceclone/internal/embedding"
	"github.com/example/go-voiceclone/internal/native"
	"github.com/example/go-voiceclone/internal/symbols"
	"github.com/example/go-voiceclone/internal/tokenizer"
)

// Model is the synthesizer graph. *native.Model satisfies it.
type Model interface {
	Infer(req native.InferRequest) (*native.InferResult, error)
	SampleRate() int
	VocabSize() int
	SpeakerCount() int
	EmbeddingDim() int
}

// Tokenizer turns one sentence into ids. *tokenizer.Pipeline satisfies it.
type Tokenizer interface {
	Tokenize(input, language string, forceChars bool) (tokenizer.Sequence, error)
	Symbols() *symbols.Table
}

// Embedder resolves a reference clip to a conditioning vector.
// *embedding.Extractor satisfies it.
type Embedder interface {
	Extract(path string) (*embedding.Embedding, error)
}

var (
	_ Model     = (*native.Model)(nil)
	_ Tokenizer = (*tokenizer.Pipeline)(nil)
	_ Embedder  = (*embedding.Extractor)(nil)
)

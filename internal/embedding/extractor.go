package embedding

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/go-voiceclone/internal/audio"
	"github.com/example/go-voiceclone/internal/config"
	"github.com/example/go-voiceclone/internal/runtime/tensor"
	"github.com/example/go-voiceclone/internal/safetensors"
)

// ErrNoReference is returned when no reference path is given or the file
// does not exist.
var ErrNoReference = errors.New("embedding: no reference audio")

// Provenance records which extractor produced an embedding.
type Provenance string

const (
	ProvenanceFile    Provenance = "file"
	ProvenanceTrained Provenance = "trained"
	ProvenanceONNX    Provenance = "onnx"
	ProvenancePseudo  Provenance = "pseudo"
	ProvenanceLegacy  Provenance = "legacy"
)

type Embedding struct {
	Vector     []float32
	Provenance Provenance
	Path       string
}

// Encoder is a trained reference encoder consuming a time-major magnitude
// spectrogram [T, SpecChannels()].
type Encoder interface {
	EmbedSpectrogram(spec *tensor.Tensor) ([]float32, error)
	SpecChannels() int
}

type Options struct {
	// Mode is one of the config.Embedding* values. Empty means auto.
	Mode       string
	SampleRate int
	STFT       STFTParams
	// NMels sizes the legacy mel statistics.
	NMels int
	// Dim is the conditioning width (gin_channels).
	Dim int

	Trained Encoder
	ONNX    Encoder

	// HasSpeakerTable disables the legacy extractor in auto mode; the
	// speaker table is the better fallback then.
	HasSpeakerTable bool

	// Cache is shared between extractors when set. Otherwise a cache of
	// CacheSize entries is created.
	Cache     *Cache
	CacheSize int
	Logger    *slog.Logger
}

// Extractor resolves reference clips to embeddings.
type Extractor struct {
	opts   Options
	cache  *Cache
	logger *slog.Logger
}

func NewExtractor(opts Options) (*Extractor, error) {
	mode, err := config.NormalizeEmbeddingMode(opts.Mode)
	if err != nil {
		return nil, err
	}
	opts.Mode = mode

	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("embedding: invalid sample rate %d", opts.SampleRate)
	}
	if opts.Dim <= 0 {
		return nil, fmt.Errorf("embedding: invalid embedding dim %d", opts.Dim)
	}
	if err := opts.STFT.validate(); err != nil {
		return nil, err
	}
	if mode == config.EmbeddingTrained && opts.Trained == nil {
		return nil, errors.New("embedding: trained mode requires a reference encoder in the checkpoint")
	}
	if mode == config.EmbeddingONNX && opts.ONNX == nil {
		return nil, errors.New("embedding: onnx mode requires an ONNX reference encoder")
	}

	cache := opts.Cache
	if cache == nil {
		cache = NewCache(opts.CacheSize)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Extractor{opts: opts, cache: cache, logger: logger}, nil
}

func (e *Extractor) Mode() string { return e.opts.Mode }

func (e *Extractor) Cache() *Cache { return e.cache }

// Extract resolves path to an embedding, consulting the cache first.
func (e *Extractor) Extract(path string) (*Embedding, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrNoReference
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("embedding: resolve %q: %w", path, err)
	}

	if cached, ok := e.cache.Get(abs); ok {
		return cached, nil
	}

	fi, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoReference, abs)
		}
		return nil, err
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("embedding: %s: %w", abs, audio.ErrNotRegularFile)
	}

	var emb *Embedding
	if strings.EqualFold(filepath.Ext(abs), ".safetensors") {
		emb, err = e.loadFile(abs)
	} else {
		emb, err = e.fromAudio(abs)
	}
	if err != nil {
		return nil, err
	}

	e.logger.Info("reference embedding resolved",
		slog.String("path", abs),
		slog.String("provenance", string(emb.Provenance)),
		slog.Int("dim", len(emb.Vector)),
	)

	return e.cache.Put(abs, emb), nil
}

func (e *Extractor) loadFile(abs string) (*Embedding, error) {
	se, err := safetensors.LoadSpeakerEmbedding(abs)
	if err != nil {
		return nil, fmt.Errorf("embedding: load %s: %w", abs, err)
	}
	if len(se.Vector) != e.opts.Dim {
		return nil, fmt.Errorf("embedding: %s has %d values, model expects %d", abs, len(se.Vector), e.opts.Dim)
	}

	return &Embedding{Vector: se.Vector, Provenance: ProvenanceFile, Path: abs}, nil
}

type method struct {
	provenance Provenance
	run        func(abs string, samples []float32) ([]float32, error)
}

func (e *Extractor) methods() []method {
	trained := method{ProvenanceTrained, func(_ string, s []float32) ([]float32, error) {
		return e.encode(e.opts.Trained, s)
	}}
	onnx := method{ProvenanceONNX, func(_ string, s []float32) ([]float32, error) {
		return e.encode(e.opts.ONNX, s)
	}}
	pseudo := method{ProvenancePseudo, func(_ string, s []float32) ([]float32, error) {
		return EnhancedEmbedding(s, e.opts.SampleRate, e.opts.Dim)
	}}
	legacy := method{ProvenanceLegacy, func(abs string, s []float32) ([]float32, error) {
		return LegacyEmbedding(abs, s, e.opts.SampleRate, e.opts.NMels, e.opts.Dim)
	}}

	switch e.opts.Mode {
	case config.EmbeddingTrained:
		return []method{trained}
	case config.EmbeddingONNX:
		return []method{onnx}
	case config.EmbeddingPseudo:
		return []method{pseudo}
	case config.EmbeddingLegacy:
		return []method{legacy}
	}

	var chain []method
	if e.opts.Trained != nil {
		chain = append(chain, trained)
	}
	if e.opts.ONNX != nil {
		chain = append(chain, onnx)
	}
	chain = append(chain, pseudo)
	if !e.opts.HasSpeakerTable {
		chain = append(chain, legacy)
	}
	return chain
}

func (e *Extractor) fromAudio(abs string) (*Embedding, error) {
	clip, err := audio.LoadFile(abs, e.opts.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("embedding: load reference audio: %w", err)
	}

	var errs []error
	for _, m := range e.methods() {
		vec, err := m.run(abs, clip.Samples)
		if err == nil && len(vec) != e.opts.Dim {
			err = fmt.Errorf("produced %d values, want %d", len(vec), e.opts.Dim)
		}
		if err != nil {
			e.logger.Warn("reference extractor failed",
				slog.String("path", abs),
				slog.String("extractor", string(m.provenance)),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", m.provenance, err))
			continue
		}

		return &Embedding{Vector: vec, Provenance: m.provenance, Path: abs}, nil
	}

	return nil, fmt.Errorf("embedding: no extractor succeeded for %s: %w", abs, errors.Join(errs...))
}

// encode feeds the linear spectrogram to enc, zero padding or truncating
// the frequency axis to the encoder's expected height.
func (e *Extractor) encode(enc Encoder, samples []float32) ([]float32, error) {
	spec, err := LinearSpectrogram(samples, e.opts.STFT)
	if err != nil {
		return nil, err
	}

	bins := enc.SpecChannels()
	if bins <= 0 {
		return nil, fmt.Errorf("invalid encoder height %d", bins)
	}

	data := make([]float32, len(spec)*bins)
	for f, row := range spec {
		for k := range min(bins, len(row)) {
			data[f*bins+k] = float32(row[k])
		}
	}

	t, err := tensor.New(data, []int64{int64(len(spec)), int64(bins)})
	if err != nil {
		return nil, err
	}

	return enc.EmbedSpectrogram(t)
}

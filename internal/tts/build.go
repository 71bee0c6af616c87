package tts

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/example/go-voiceclone/internal/config"
	"github.com/example/go-voiceclone/internal/embedding"
	"github.com/example/go-voiceclone/internal/native"
	"github.com/example/go-voiceclone/internal/onnx"
	"github.com/example/go-voiceclone/internal/runtime/ops"
	"github.com/example/go-voiceclone/internal/runtime/tensor"
	"github.com/example/go-voiceclone/internal/symbols"
	"github.com/example/go-voiceclone/internal/text"
	"github.com/example/go-voiceclone/internal/tokenizer"
)

// New loads the model config, checkpoint, tokenizer, reference extractor
// and voice manifest named by cfg. Configuration problems surface here,
// before any synthesis.
func New(cfg config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Runtime.Threads > 0 {
		tensor.SetWorkers(cfg.Runtime.Threads)
	}
	if cfg.Runtime.ConvWorkers > 0 {
		ops.SetConvWorkers(cfg.Runtime.ConvWorkers)
	}

	mc, err := config.LoadModelConfig(cfg.Paths.ModelConfig, cfg.Synthesis.StrictModelConfig, logger)
	if err != nil {
		return nil, err
	}

	table, err := mc.SymbolTable()
	if err != nil {
		return nil, err
	}

	model, err := native.Load(cfg.Paths.Checkpoint, native.HparamsFromConfig(mc, mc.VocabSize(table)), native.Options{Logger: logger})
	if err != nil {
		return nil, err
	}

	tok, err := NewTokenizer(cfg.Text, mc, table, logger)
	if err != nil {
		return nil, err
	}

	var closers []func() error

	extractor, closeEncoder, err := newExtractor(cfg, mc, model, logger)
	if err != nil {
		return nil, err
	}
	if closeEncoder != nil {
		closers = append(closers, closeEncoder)
	}

	var voices *VoiceManager
	if cfg.Paths.VoicesManifest != "" {
		voices, err = NewVoiceManager(cfg.Paths.VoicesManifest)
		switch {
		case errors.Is(err, os.ErrNotExist):
			logger.Debug("no voice manifest", slog.String("path", cfg.Paths.VoicesManifest))
			voices = nil
		case err != nil:
			return nil, err
		}
	}

	svc, err := NewFromParts(Parts{
		Model:     model,
		Tokenizer: tok,
		Embedder:  extractor,
		Voices:    voices,
		Speakers:  mc.Speakers,
		Options:   OptionsFromConfig(cfg.Synthesis),
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	svc.closers = closers

	report := model.Report()
	logger.Info("synthesizer ready",
		slog.Int("sample_rate", model.SampleRate()),
		slog.Int("vocab", model.VocabSize()),
		slog.Int("speakers", model.SpeakerCount()),
		slog.Int("spec_channels", report.SpecChannels),
		slog.Bool("trained_ref_encoder", report.TrainedRefEncoder),
		slog.String("embedding_mode", extractor.Mode()),
	)

	return svc, nil
}

// NewTokenizer builds the cascade: espeak-ng when enabled and installed,
// then the ARPABET G2P (with an optional lexicon), the IPA word fallback
// and characters.
func NewTokenizer(tc config.TextConfig, mc *config.ModelConfig, table *symbols.Table, logger *slog.Logger) (*tokenizer.Pipeline, error) {
	opts := tokenizer.Options{
		Symbols:  table,
		Cleaners: mc.Cleaners(),
		AddBlank: mc.UseBlank(),
		G2P:      text.NewG2P(),
		Logger:   logger,
	}

	if tc.LexiconPath != "" {
		n, err := opts.G2P.LoadLexiconFile(tc.LexiconPath)
		if err != nil {
			return nil, fmt.Errorf("load lexicon: %w", err)
		}
		logger.Info("loaded pronunciation lexicon", slog.String("path", tc.LexiconPath), slog.Int("entries", n))
	}

	if tc.Phonemizer {
		espeak := tokenizer.NewEspeakPhonemizer(tc.EspeakBinary)
		if err := espeak.Available(); err != nil {
			logger.Warn("phonemizer unavailable, using G2P", slog.String("error", err.Error()))
		} else {
			opts.Phonemizer = espeak
		}
	}

	return tokenizer.New(opts)
}

func newExtractor(cfg config.Config, mc *config.ModelConfig, model *native.Model, logger *slog.Logger) (*embedding.Extractor, func() error, error) {
	opts := embedding.Options{
		Mode:            cfg.Embedding.Mode,
		SampleRate:      mc.SampleRate(),
		STFT:            embedding.STFTParams{NFFT: mc.NFFT(), Hop: mc.Hop(), Win: mc.Win()},
		NMels:           mc.Data.NMelChannels,
		Dim:             model.EmbeddingDim(),
		HasSpeakerTable: model.SpeakerCount() > 0,
		CacheSize:       cfg.Embedding.CacheSize,
		Logger:          logger,
	}

	// A nil *native.Model must not become a non-nil Encoder.
	if model.HasReferenceEncoder() {
		opts.Trained = model
	}

	var closer func() error
	if cfg.Paths.RefEncoderONNX != "" {
		enc, err := onnx.NewRefEncoder(onnx.RefEncoderOptions{
			GraphPath:    cfg.Paths.RefEncoderONNX,
			Runtime:      cfg.Runtime,
			SpecChannels: model.SpecChannels(),
		})
		if err != nil {
			if cfg.Embedding.Mode == config.EmbeddingONNX {
				return nil, nil, err
			}
			logger.Warn("onnx reference encoder unavailable", slog.String("error", err.Error()))
		} else {
			opts.ONNX = enc
			closer = func() error { enc.Close(); return nil }
		}
	}

	ext, err := embedding.NewExtractor(opts)
	if err != nil {
		if closer != nil {
			_ = closer()
		}
		return nil, nil, err
	}

	return ext, closer, nil
}

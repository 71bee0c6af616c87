package native

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"sync"

	"github.com/example/go-voiceclone/internal/runtime/tensor"
	"github.com/example/go-voiceclone/internal/safetensors"
)

var (
	// ErrModelNotInitialized is returned by Infer on a nil or unbuilt model.
	ErrModelNotInitialized = errors.New("native: model not initialized")
	// ErrEmptySequence is returned when Infer receives no tokens.
	ErrEmptySequence = errors.New("native: empty token sequence")
	// ErrTooManyFrames is returned when the scaled durations exceed MaxFrames.
	ErrTooManyFrames = errors.New("native: predicted length exceeds frame limit")
)

// DefaultSeed drives weight initialization for parameters the checkpoint
// does not provide.
const DefaultSeed = 1234

// ignoredPrefixes are training-only modules: the posterior encoder, the
// stochastic duration posterior and discriminators.
var ignoredPrefixes = []string{"enc_q.", "sdp.post_", "dp.post_", "net_d."}

// Options tunes model construction.
type Options struct {
	Seed   int64
	Logger *slog.Logger
}

// LoadReport summarizes how the checkpoint matched the built graph.
type LoadReport struct {
	Missing      []string
	Unexpected   []string
	SpecChannels int
	// SpecDetected is set when the checkpoint's enc_q.pre.weight overrode
	// the configured spec_channels.
	SpecDetected bool
	// TrainedRefEncoder reports whether ref_enc.* weights were loaded.
	TrainedRefEncoder bool
}

// Model is the inference graph: text encoder, duration predictors, prior
// flow and vocoder, plus the optional speaker table and reference encoder.
type Model struct {
	hp     Hparams
	enc    *TextEncoder
	dp     *DurationPredictor
	sdp    *StochasticDurationPredictor
	flow   *CouplingBlock
	dec    *Generator
	embG   *Embedding
	refEnc *ReferenceEncoder
	report LoadReport
	logger *slog.Logger

	mu sync.Mutex
}

// Load opens a safetensors checkpoint (accepting a "model." wrapper prefix)
// and builds the model on top of it.
func Load(path string, hp Hparams, opts Options) (*Model, error) {
	store, err := safetensors.OpenStore(path, safetensors.StoreOptions{
		KeyMapper: safetensors.StripPrefix("model.", "module."),
	})
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	defer store.Close()

	return New(hp, store, opts)
}

// New builds every module from hp, taking parameters from store where
// present. store may be nil, which yields a seeded random model.
func New(hp Hparams, store *safetensors.Store, opts Options) (*Model, error) {
	if err := hp.validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	seed := opts.Seed
	if seed == 0 {
		seed = DefaultSeed
	}

	vb := NewVarBuilder(store, seed)
	m := &Model{logger: logger}

	maxBins := hp.FilterLength/2 + 1
	if shape, ok := storeShape(store, "enc_q.pre.weight"); ok && len(shape) >= 2 && int(shape[1]) != hp.SpecChannels {
		logger.Info("auto-detected spec_channels from checkpoint",
			slog.Int("checkpoint", int(shape[1])),
			slog.Int("config", hp.SpecChannels),
		)
		hp.SpecChannels = int(shape[1])
		m.report.SpecDetected = true
	}
	if maxBins > 1 && hp.SpecChannels > maxBins {
		logger.Warn("clamping spec_channels to one-sided spectrum size",
			slog.Int("spec_channels", hp.SpecChannels),
			slog.Int("max_bins", maxBins),
		)
		hp.SpecChannels = maxBins
	}
	m.hp = hp
	m.report.SpecChannels = hp.SpecChannels

	gin := int64(hp.GinChannels)
	hidden := int64(hp.HiddenChannels)

	var err error
	if m.enc, err = newTextEncoder(vb.Path("enc_p"), hp); err != nil {
		return nil, fmt.Errorf("build enc_p: %w", err)
	}
	if m.sdp, err = newStochasticDurationPredictor(vb.Path("sdp"), hidden, gin); err != nil {
		return nil, fmt.Errorf("build sdp: %w", err)
	}
	if m.dp, err = newDurationPredictor(vb.Path("dp"), hidden, gin); err != nil {
		return nil, fmt.Errorf("build dp: %w", err)
	}
	if m.flow, err = newCouplingBlock(vb.Path("flow"), int64(hp.InterChannels), hidden, gin); err != nil {
		return nil, fmt.Errorf("build flow: %w", err)
	}
	if m.dec, err = newGenerator(vb.Path("dec"), hp); err != nil {
		return nil, fmt.Errorf("build dec: %w", err)
	}
	if hp.NSpeakers >= 1 && gin > 0 {
		if m.embG, err = newEmbedding(vb.Path("emb_g"), int64(hp.NSpeakers), gin, Normal(0, 1)); err != nil {
			return nil, fmt.Errorf("build emb_g: %w", err)
		}
	}
	if vb.HasPrefix("ref_enc") && gin > 0 {
		if m.refEnc, err = newReferenceEncoder(vb.Path("ref_enc"), int64(hp.SpecChannels), gin); err != nil {
			return nil, fmt.Errorf("build ref_enc: %w", err)
		}
		m.report.TrainedRefEncoder = true
	}

	if store != nil {
		m.report.Missing = vb.Missing()
		m.report.Unexpected = filterIgnored(vb.Unused())
		logKeys(logger, "missing checkpoint keys", m.report.Missing)
		logKeys(logger, "unexpected checkpoint keys", m.report.Unexpected)
	}

	if m.refEnc == nil {
		logger.Info("no trained reference encoder in checkpoint; using pseudo embeddings")
	}

	return m, nil
}

func storeShape(store *safetensors.Store, name string) ([]int64, bool) {
	if store == nil {
		return nil, false
	}

	return store.Shape(name)
}

func filterIgnored(names []string) []string {
	var out []string
	for _, n := range names {
		skip := false
		for _, p := range ignoredPrefixes {
			if strings.HasPrefix(n, p) {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, n)
		}
	}

	return out
}

func logKeys(logger *slog.Logger, msg string, keys []string) {
	if len(keys) == 0 {
		return
	}

	shown := keys
	if len(shown) > 10 {
		shown = shown[:10]
	}

	logger.Warn(msg,
		slog.Int("count", len(keys)),
		slog.String("first", strings.Join(shown, ",")),
	)
}

func (m *Model) Hparams() Hparams { return m.hp }

func (m *Model) Report() LoadReport { return m.report }

func (m *Model) SampleRate() int { return m.hp.SampleRate }

func (m *Model) VocabSize() int { return m.hp.NVocab }

// SpeakerCount is the size of the speaker table, 0 when absent.
func (m *Model) SpeakerCount() int {
	if m == nil || m.embG == nil {
		return 0
	}

	return int(m.embG.Rows())
}

// EmbeddingDim is gin_channels.
func (m *Model) EmbeddingDim() int { return m.hp.GinChannels }

// HasReferenceEncoder reports whether trained ref_enc weights were loaded.
func (m *Model) HasReferenceEncoder() bool { return m != nil && m.refEnc != nil }

// SpecChannels is the spectrogram height the reference encoder consumes.
func (m *Model) SpecChannels() int { return m.hp.SpecChannels }

// EmbedSpectrogram runs the trained reference encoder on spec [T, bins].
func (m *Model) EmbedSpectrogram(spec *tensor.Tensor) ([]float32, error) {
	if m == nil || m.refEnc == nil {
		return nil, errors.New("native: no trained reference encoder")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out, err := m.refEnc.Forward(spec)
	if err != nil {
		return nil, err
	}

	return out.Data(), nil
}

// InferRequest carries one sentence worth of tokens and controls.
type InferRequest struct {
	IDs []int
	// SpeakerID indexes the speaker table when Embedding is nil. Ids past
	// the table fall back to 0.
	SpeakerID int
	// Embedding is a gin_channels conditioning vector that replaces the
	// speaker table lookup.
	Embedding []float32
	// DurationBias is added to the predicted log durations, one per token.
	DurationBias []float32

	NoiseScale  float32
	NoiseScaleW float32
	LengthScale float32
	SDPRatio    float32
	Seed        int64
}

// InferResult is the generated waveform with its alignment.
type InferResult struct {
	Audio      []float32
	Durations  []int
	FrameCount int
	SampleRate int
}

// Alignment expands Durations into the [frames][tokens] path.
func (r InferResult) Alignment() [][]float32 {
	return GeneratePath(r.Durations, r.FrameCount)
}

// Infer synthesizes one token sequence. Calls are serialized.
func (m *Model) Infer(req InferRequest) (*InferResult, error) {
	if m == nil || m.enc == nil || m.dec == nil {
		return nil, ErrModelNotInitialized
	}
	if len(req.IDs) == 0 {
		return nil, ErrEmptySequence
	}
	if req.DurationBias != nil && len(req.DurationBias) != len(req.IDs) {
		return nil, fmt.Errorf("native: duration bias length %d != %d tokens", len(req.DurationBias), len(req.IDs))
	}
	if req.LengthScale <= 0 {
		req.LengthScale = 1
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rng := rand.New(rand.NewSource(req.Seed))

	g, err := m.conditioning(req)
	if err != nil {
		return nil, err
	}

	x, mP, logsP, err := m.enc.Forward(req.IDs, g)
	if err != nil {
		return nil, fmt.Errorf("text encoder: %w", err)
	}

	logw, err := m.logDurations(x, g, req, rng)
	if err != nil {
		return nil, err
	}

	durations, frames, err := ceilDurations(logw, req.LengthScale)
	if err != nil {
		return nil, err
	}

	mExp, err := expandFrames(mP, durations, frames)
	if err != nil {
		return nil, err
	}
	logsExp, err := expandFrames(logsP, durations, frames)
	if err != nil {
		return nil, err
	}

	zp := mExp.RawData()
	ls := logsExp.RawData()
	for i := range zp {
		zp[i] += float32(rng.NormFloat64()) * float32(math.Exp(float64(ls[i]))) * req.NoiseScale
	}

	z, err := m.flow.Reverse(mExp, g)
	if err != nil {
		return nil, fmt.Errorf("flow: %w", err)
	}

	wav, err := m.dec.Forward(z, g)
	if err != nil {
		return nil, fmt.Errorf("decoder: %w", err)
	}

	return &InferResult{
		Audio:      wav.Data(),
		Durations:  durations,
		FrameCount: frames,
		SampleRate: m.hp.SampleRate,
	}, nil
}

// conditioning returns g [1, gin, 1] or nil.
func (m *Model) conditioning(req InferRequest) (*tensor.Tensor, error) {
	gin := int64(m.hp.GinChannels)

	if req.Embedding != nil {
		if int64(len(req.Embedding)) != gin {
			return nil, fmt.Errorf("native: embedding has %d values, want %d", len(req.Embedding), gin)
		}
		return tensor.New(append([]float32(nil), req.Embedding...), []int64{1, gin, 1})
	}

	if m.embG == nil {
		return nil, nil
	}

	sid := req.SpeakerID
	if sid < 0 || int64(sid) >= m.embG.Rows() {
		sid = 0
	}

	row, err := m.embG.Lookup([]int{sid})
	if err != nil {
		return nil, err
	}

	return row.Reshape([]int64{1, gin, 1})
}

// logDurations blends the stochastic and deterministic predictors and adds
// the caller's bias.
func (m *Model) logDurations(x, g *tensor.Tensor, req InferRequest, rng *rand.Rand) ([]float32, error) {
	ratio := min(max(req.SDPRatio, 0), 1)

	det, err := m.dp.Forward(x, g)
	if err != nil {
		return nil, fmt.Errorf("duration predictor: %w", err)
	}
	logw := det.Data()
	for i := range logw {
		logw[i] *= 1 - ratio
	}

	if ratio > 0 {
		sto, err := m.sdp.Forward(x, g, req.NoiseScaleW, rng)
		if err != nil {
			return nil, fmt.Errorf("stochastic duration predictor: %w", err)
		}
		for i, v := range sto.RawData() {
			logw[i] += v * ratio
		}
	}

	for i, b := range req.DurationBias {
		logw[i] += b
	}

	return logw, nil
}

// FilterIDs drops ids outside [0, vocab). kept[i] is the original index of
// ids[i] in the output.
func FilterIDs(ids []int, vocab int) (out, kept []int) {
	for i, id := range ids {
		if id >= 0 && id < vocab {
			out = append(out, id)
			kept = append(kept, i)
		}
	}

	return out, kept
}

package tts

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"path/filepath"
	"strings"

	"github.com/example/go-voiceclone/internal/audio"
	"github.com/example/go-voiceclone/internal/config"
	"github.com/example/go-voiceclone/internal/embedding"
	"github.com/example/go-voiceclone/internal/native"
	"github.com/example/go-voiceclone/internal/text"
	"github.com/example/go-voiceclone/internal/tokenizer"
)

var (
	// ErrNoAudio is returned when every sentence of a request was skipped.
	ErrNoAudio = errors.New("tts: no audio produced")
	// ErrInvalidRequest wraps out-of-range synthesis parameters.
	ErrInvalidRequest = errors.New("tts: invalid request")
)

// Accepted parameter ranges. Zero in a Request selects the default.
const (
	MaxLengthScale = 5.0
	MaxNoiseScale  = 2.0
)

// Options are the synthesis defaults a Service applies to every request.
type Options struct {
	Language    string
	Style       string
	LengthScale float64
	NoiseScale  float64
	NoiseScaleW float64
	// ClarityMode fixes the noise controls and post-processes each segment.
	ClarityMode bool
	// Prosody enables the vowel-ratio and short-sentence length nudges.
	Prosody bool
	// Seed drives the model noise. Sentence i uses Seed+i.
	Seed          int64
	SentencePause float64
	Clarity       audio.ClarityOptions
	FinalPeak     float64
	RetryFactor   float64
	RetryCeiling  float64
}

// DefaultOptions mirrors config.DefaultConfig().Synthesis.
func DefaultOptions() Options {
	return OptionsFromConfig(config.DefaultConfig().Synthesis)
}

func OptionsFromConfig(c config.SynthesisConfig) Options {
	clarity := audio.DefaultClarityOptions()
	if c.SegmentPeak > 0 {
		clarity.Peak = c.SegmentPeak
	}
	if c.TargetRMS > 0 {
		clarity.TargetRMS = c.TargetRMS
	}
	if c.PreEmphasis > 0 {
		clarity.PreEmphasis = c.PreEmphasis
	}

	seed := c.Seed
	if seed == 0 {
		seed = native.DefaultSeed
	}

	return Options{
		Language:      c.Language,
		Style:         c.Style,
		LengthScale:   c.LengthScale,
		NoiseScale:    c.NoiseScale,
		NoiseScaleW:   c.NoiseScaleW,
		ClarityMode:   c.ClarityMode,
		Prosody:       c.Prosody,
		Seed:          seed,
		SentencePause: c.SentencePause,
		Clarity:       clarity,
		FinalPeak:     c.FinalPeak,
		RetryFactor:   c.RetryFactor,
		RetryCeiling:  c.RetryCeiling,
	}
}

// Request is one synthesis call. Zero values fall back to the Service
// options.
type Request struct {
	Text string
	// Reference is a reference clip or exported embedding. Voice, when set,
	// is looked up in the voice manifest instead.
	Reference   string
	Voice       string
	Style       string
	Language    string
	LengthScale float64
	NoiseScale  float64
	NoiseScaleW float64
}

// Validate rejects scales outside [0, MaxLengthScale] and [0, MaxNoiseScale].
func (r Request) Validate() error {
	return checkScales(r.LengthScale, r.NoiseScale, r.NoiseScaleW, true)
}

// checkScales allows zero noise scales always and a zero length scale only
// when zeroLength is set.
func checkScales(length, noise, noiseW float64, zeroLength bool) error {
	check := func(name string, v, hi float64, zeroOK bool) error {
		if v == 0 && zeroOK {
			return nil
		}
		if math.IsNaN(v) || v <= 0 || v > hi {
			return fmt.Errorf("%w: %s %v outside (0, %v]", ErrInvalidRequest, name, v, hi)
		}
		return nil
	}

	return errors.Join(
		check("length_scale", length, MaxLengthScale, zeroLength),
		check("noise_scale", noise, MaxNoiseScale, true),
		check("noise_scale_w", noiseW, MaxNoiseScale, true),
	)
}

// SentenceReport describes how one sentence was synthesized.
type SentenceReport struct {
	Text        string  `json:"text"`
	Stage       string  `json:"stage,omitempty"`
	Tokens      int     `json:"tokens"`
	LengthScale float64 `json:"length_scale"`
	Retried     bool    `json:"retried,omitempty"`
	Skipped     bool    `json:"skipped,omitempty"`
	Reason      string  `json:"reason,omitempty"`
	Samples     int     `json:"samples"`
}

// Result is a finished waveform.
type Result struct {
	Samples    []float32
	SampleRate int
	SpeakerID  int
	// Embedding is nil when the base speaker table (or nothing) conditioned
	// the request.
	Embedding *embedding.Embedding
	Sentences []SentenceReport
}

// PCMChunk is one synthesized sentence from SynthesizeStream.
type PCMChunk struct {
	Index      int
	Sentence   string
	Samples    []float32
	SampleRate int
	Final      bool
}

// Service orchestrates segmentation, tokenization, conditioning, inference
// and stitching on top of a loaded model.
type Service struct {
	model     Model
	tokenizer Tokenizer
	embedder  Embedder
	voices    *VoiceManager
	speakers  map[string]int
	opts      Options
	logger    *slog.Logger
	closers   []func() error
}

// Parts assembles a Service from already built components.
type Parts struct {
	Model     Model
	Tokenizer Tokenizer
	// Embedder is optional; without it references only drive speaker
	// hashing.
	Embedder Embedder
	Voices   *VoiceManager
	// Speakers maps styles to speaker table rows.
	Speakers map[string]int
	Options  Options
	Logger   *slog.Logger
}

func NewFromParts(p Parts) (*Service, error) {
	if p.Model == nil {
		return nil, native.ErrModelNotInitialized
	}
	if p.Tokenizer == nil {
		return nil, errors.New("tts: tokenizer is required")
	}
	if p.Model.SampleRate() <= 0 {
		return nil, fmt.Errorf("tts: invalid sample rate %d", p.Model.SampleRate())
	}

	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := p.Options
	if opts.RetryFactor <= 0 {
		opts.RetryFactor = 1.15
	}
	if opts.FinalPeak <= 0 {
		opts.FinalPeak = 0.95
	}
	if opts.LengthScale <= 0 {
		opts.LengthScale = 1
	}

	return &Service{
		model:     p.Model,
		tokenizer: p.Tokenizer,
		embedder:  p.Embedder,
		voices:    p.Voices,
		speakers:  p.Speakers,
		opts:      opts,
		logger:    logger,
	}, nil
}

func (s *Service) SampleRate() int { return s.model.SampleRate() }

func (s *Service) Options() Options { return s.opts }

// Voices returns the voice manifest, nil when none is configured.
func (s *Service) Voices() *VoiceManager { return s.voices }

// Embedder returns the reference extractor, nil when none is configured.
func (s *Service) Embedder() Embedder { return s.embedder }

// Close releases optional backends such as the ONNX reference encoder.
func (s *Service) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	s.closers = nil

	return errors.Join(errs...)
}

// plan is the per-request state shared by every sentence.
type plan struct {
	sentences   []string
	language    string
	lengthScale float64
	noiseScale  float64
	noiseScaleW float64
	speakerID   int
	embedding   *embedding.Embedding
}

func (s *Service) prepare(req Request) (*plan, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	normalized, err := text.Normalize(req.Text)
	if err != nil {
		return nil, err
	}

	p := &plan{
		sentences:   text.SplitSentences(normalized),
		language:    firstNonEmpty(req.Language, s.opts.Language, "en"),
		lengthScale: firstPositive(req.LengthScale, s.opts.LengthScale),
		noiseScale:  firstPositive(req.NoiseScale, s.opts.NoiseScale),
		noiseScaleW: firstPositive(req.NoiseScaleW, s.opts.NoiseScaleW),
	}
	if err := checkScales(p.lengthScale, p.noiseScale, p.noiseScaleW, false); err != nil {
		return nil, err
	}

	reference, voiceStyle, err := s.resolveReference(req)
	if err != nil {
		return nil, err
	}

	if reference != "" && s.embedder != nil {
		emb, err := s.embedder.Extract(reference)
		switch {
		case err != nil:
			s.logger.Warn("reference embedding unavailable, using speaker table",
				slog.String("reference", reference),
				slog.String("error", err.Error()),
			)
		case len(emb.Vector) != s.model.EmbeddingDim():
			s.logger.Warn("reference embedding width mismatch, using speaker table",
				slog.String("reference", reference),
				slog.Int("got", len(emb.Vector)),
				slog.Int("want", s.model.EmbeddingDim()),
			)
		default:
			p.embedding = emb
		}
	}

	p.speakerID = s.speakerID(firstNonEmpty(req.Style, voiceStyle, s.opts.Style), reference, p.embedding)

	return p, nil
}

// resolveReference returns the absolute reference path and, for manifest
// voices, their style.
func (s *Service) resolveReference(req Request) (string, string, error) {
	if id := strings.TrimSpace(req.Voice); id != "" {
		if s.voices == nil {
			return "", "", fmt.Errorf("tts: voice %q requested but no voice manifest is loaded", id)
		}
		path, err := s.voices.ResolvePath(id)
		if err != nil {
			return "", "", err
		}
		v, _ := s.voices.Lookup(id)
		return path, v.Style, nil
	}

	ref := strings.TrimSpace(req.Reference)
	if ref == "" {
		return "", "", nil
	}

	if abs, err := filepath.Abs(ref); err == nil {
		ref = abs
	}

	return ref, "", nil
}

// speakerID picks the speaker table row: the style mapping (then "default",
// then 0), or a stable hash of the reference path when a reference was given
// but no embedding could be resolved from it.
func (s *Service) speakerID(style, reference string, emb *embedding.Embedding) int {
	sid := 0
	if id, ok := s.speakers[style]; ok {
		sid = id
	} else if id, ok := s.speakers["default"]; ok {
		sid = id
	}

	n := s.model.SpeakerCount()
	if emb == nil && reference != "" && n > 0 {
		sid = HashSpeaker(reference, n)
	}
	if sid < 0 || (n > 0 && sid >= n) {
		sid = 0
	}

	return sid
}

// HashSpeaker maps a reference path to a speaker row via its md5 digest.
func HashSpeaker(reference string, n int) int {
	if n <= 0 {
		return 0
	}

	sum := md5.Sum([]byte(reference))
	h := new(big.Int).SetBytes(sum[:])

	return int(h.Mod(h, big.NewInt(int64(n))).Int64())
}

// segment is one synthesized sentence before stitching.
type segment struct {
	samples []float32
	report  SentenceReport
}

// synthesizeSentence returns a nil segment with report.Skipped set when the
// sentence produced nothing usable. Errors are fatal to the request.
func (s *Service) synthesizeSentence(p *plan, index int, sentence string) (segment, error) {
	report := SentenceReport{Text: sentence}

	seq, err := s.tokenizer.Tokenize(sentence, p.language, false)
	if err != nil && !errors.Is(err, tokenizer.ErrDegenerateInput) {
		return segment{}, fmt.Errorf("tokenize sentence %d: %w", index, err)
	}

	vocab := s.model.VocabSize()
	ids, kept := native.FilterIDs(seq.IDs, vocab)
	stressed := remapStress(seq.Stressed, kept)

	if len(ids) == 0 {
		seq, err = s.tokenizer.Tokenize(sentence, p.language, true)
		if err != nil && !errors.Is(err, tokenizer.ErrDegenerateInput) {
			return segment{}, fmt.Errorf("tokenize sentence %d: %w", index, err)
		}
		ids, _ = native.FilterIDs(seq.IDs, vocab)
		stressed = nil
	}

	if len(ids) == 0 {
		report.Skipped = true
		report.Reason = "no usable tokens"
		s.logger.Warn("skipping sentence without usable tokens",
			slog.Int("index", index),
			slog.String("sentence", sentence),
		)
		return segment{report: report}, nil
	}

	table := s.tokenizer.Symbols()
	symbolsOf := table.Tokens(ids)
	report.Stage = seq.Stage
	report.Tokens = len(ids)

	lengthScale := p.lengthScale
	if s.opts.Prosody {
		lengthScale = prosodyLengthScale(lengthScale, strings.Join(symbolsOf, ""), len(ids))
	}

	var bias []float32
	if s.opts.Prosody {
		bias = durationBias(symbolsOf, stressed, strings.HasSuffix(sentence, "?"))
	}

	params := s.opts.params(lengthScale, p.noiseScale, p.noiseScaleW)
	report.LengthScale = params.lengthScale

	s.logger.Debug("sentence tokens",
		slog.Int("index", index),
		slog.Int("tokens", len(ids)),
		slog.String("stage", seq.Stage),
		slog.Float64("length_scale", params.lengthScale),
	)

	req := native.InferRequest{
		IDs:          ids,
		SpeakerID:    p.speakerID,
		DurationBias: bias,
		NoiseScale:   float32(params.noiseScale),
		NoiseScaleW:  float32(params.noiseScaleW),
		LengthScale:  float32(params.lengthScale),
		SDPRatio:     float32(params.sdpRatio),
		Seed:         s.opts.Seed + int64(index),
	}
	if p.embedding != nil {
		req.Embedding = p.embedding.Vector
	}

	res, err := s.model.Infer(req)
	if err != nil {
		if errors.Is(err, native.ErrEmptySequence) {
			report.Skipped = true
			report.Reason = err.Error()
			s.logger.Warn("skipping empty sentence", slog.Int("index", index))
			return segment{report: report}, nil
		}
		return segment{}, fmt.Errorf("infer sentence %d: %w", index, err)
	}

	// The retry relaxes the sentence scale itself; the plain-mode factor is
	// not compounded.
	if s.collapsed(res, lengthScale) {
		req.LengthScale = float32(lengthScale * s.opts.RetryFactor)
		s.logger.Debug("duration collapse, retrying",
			slog.Int("index", index),
			slog.Float64("median", native.MedianDuration(res.Durations)),
			slog.Float64("length_scale", float64(req.LengthScale)),
		)

		retry, err := s.model.Infer(req)
		if err != nil {
			s.logger.Debug("duration retry failed, keeping first result", slog.String("error", err.Error()))
		} else {
			res = retry
			report.Retried = true
			report.LengthScale = float64(req.LengthScale)
		}
	}

	samples := res.Audio
	if s.opts.ClarityMode && len(samples) > 0 {
		samples = audio.ApplyHooks(samples, audio.ClarityHooks(s.opts.Clarity)...)
	}

	if len(samples) == 0 {
		report.Skipped = true
		report.Reason = "model returned no samples"
		return segment{report: report}, nil
	}

	report.Samples = len(samples)

	return segment{samples: samples, report: report}, nil
}

func (s *Service) collapsed(res *native.InferResult, lengthScale float64) bool {
	ceiling := s.opts.RetryCeiling
	if ceiling <= 0 {
		ceiling = 1.5
	}

	return len(res.Durations) > 3 &&
		native.MedianDuration(res.Durations) < 1.0 &&
		lengthScale < ceiling
}

// SynthesizeAudio renders the whole text: one inference per sentence, a
// short pause between sentences, then DC removal and a peak ceiling.
func (s *Service) SynthesizeAudio(ctx context.Context, req Request) (*Result, error) {
	p, err := s.prepare(req)
	if err != nil {
		return nil, err
	}

	result := &Result{
		SampleRate: s.model.SampleRate(),
		SpeakerID:  p.speakerID,
		Embedding:  p.embedding,
	}

	var segments [][]float32
	for i, sentence := range p.sentences {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		seg, err := s.synthesizeSentence(p, i, sentence)
		if err != nil {
			return nil, err
		}

		result.Sentences = append(result.Sentences, seg.report)
		if seg.samples != nil {
			segments = append(segments, seg.samples)
		}
	}

	if len(segments) == 0 {
		return nil, ErrNoAudio
	}

	gap := audio.SilenceSamples(s.opts.SentencePause, result.SampleRate)
	result.Samples = audio.FinalNormalize(audio.Stitch(segments, gap), s.opts.FinalPeak)

	return result, nil
}

// SynthesizeToFile renders req and writes a 16-bit mono WAV to path.
func (s *Service) SynthesizeToFile(ctx context.Context, req Request, path string) (*Result, error) {
	res, err := s.SynthesizeAudio(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := audio.WriteWAVFile(path, res.Samples, res.SampleRate); err != nil {
		return nil, err
	}

	s.logger.Info("wrote synthesized audio",
		slog.String("path", path),
		slog.Int("samples", len(res.Samples)),
		slog.Int("sample_rate", res.SampleRate),
	)

	return res, nil
}

// SynthesizeStream sends one chunk per produced sentence to out, prefixing
// every chunk after the first with the sentence pause. Each chunk is
// normalized on its own. out is closed on return.
func (s *Service) SynthesizeStream(ctx context.Context, req Request, out chan<- PCMChunk) error {
	defer close(out)

	p, err := s.prepare(req)
	if err != nil {
		return err
	}

	rate := s.model.SampleRate()
	gap := audio.SilenceSamples(s.opts.SentencePause, rate)

	// Hold one chunk back so the last produced sentence can be marked final.
	var pending *PCMChunk
	emit := func(c *PCMChunk) error {
		select {
		case out <- *c:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	produced := 0
	for i, sentence := range p.sentences {
		if err := ctx.Err(); err != nil {
			return err
		}

		seg, err := s.synthesizeSentence(p, i, sentence)
		if err != nil {
			return err
		}
		if seg.samples == nil {
			continue
		}

		samples := audio.FinalNormalize(seg.samples, s.opts.FinalPeak)
		if produced > 0 {
			samples = append(make([]float32, gap, gap+len(samples)), samples...)
		}

		if pending != nil {
			if err := emit(pending); err != nil {
				return err
			}
		}
		pending = &PCMChunk{Index: produced, Sentence: sentence, Samples: samples, SampleRate: rate}
		produced++
	}

	if pending == nil {
		return ErrNoAudio
	}

	pending.Final = true

	return emit(pending)
}

// TokenReport is the tokenization of one sentence, for debugging.
type TokenReport struct {
	Sentence string   `json:"sentence"`
	Stage    string   `json:"stage"`
	IDs      []int    `json:"ids"`
	Symbols  []string `json:"symbols"`
}

// Tokens shows what the model would receive for input.
func (s *Service) Tokens(input, language string) ([]TokenReport, error) {
	normalized, err := text.Normalize(input)
	if err != nil {
		return nil, err
	}

	language = firstNonEmpty(language, s.opts.Language, "en")

	var reports []TokenReport
	for _, sentence := range text.SplitSentences(normalized) {
		seq, err := s.tokenizer.Tokenize(sentence, language, false)
		if err != nil && !errors.Is(err, tokenizer.ErrDegenerateInput) {
			return nil, err
		}

		ids, _ := native.FilterIDs(seq.IDs, s.model.VocabSize())
		reports = append(reports, TokenReport{
			Sentence: sentence,
			Stage:    seq.Stage,
			IDs:      ids,
			Symbols:  s.tokenizer.Symbols().Tokens(ids),
		})
	}

	return reports, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...float64) float64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

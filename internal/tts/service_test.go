package tts

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/go-voiceclone/internal/audio"
	"github.com/example/go-voiceclone/internal/embedding"
	"github.com/example/go-voiceclone/internal/native"
	"github.com/example/go-voiceclone/internal/symbols"
	"github.com/example/go-voiceclone/internal/testutil"
	"github.com/example/go-voiceclone/internal/text"
	"github.com/example/go-voiceclone/internal/tokenizer"
)

const testRate = 22050

type stubModel struct {
	rate     int
	vocab    int
	speakers int
	dim      int
	calls    []native.InferRequest
	infer    func(call int, req native.InferRequest) (*native.InferResult, error)
}

func (m *stubModel) Infer(req native.InferRequest) (*native.InferResult, error) {
	m.calls = append(m.calls, req)
	if m.infer != nil {
		return m.infer(len(m.calls)-1, req)
	}

	return &native.InferResult{
		Audio:      testutil.Sine(m.rate, m.rate, 220, 0.5),
		Durations:  []int{3, 4, 5, 4, 3},
		FrameCount: 19,
		SampleRate: m.rate,
	}, nil
}

func (m *stubModel) SampleRate() int   { return m.rate }
func (m *stubModel) VocabSize() int    { return m.vocab }
func (m *stubModel) SpeakerCount() int { return m.speakers }
func (m *stubModel) EmbeddingDim() int { return m.dim }

// stubTokenizer maps characters through the alternate table. Sentences in
// empty tokenize to nothing; sentences in oov yield out-of-vocabulary ids
// unless characters are forced.
type stubTokenizer struct {
	table *symbols.Table
	empty map[string]bool
	oov   map[string]bool
	calls []string
	force []bool
}

func newStubTokenizer() *stubTokenizer {
	return &stubTokenizer{table: symbols.Alternate(), empty: map[string]bool{}, oov: map[string]bool{}}
}

func (t *stubTokenizer) Tokenize(input, _ string, forceChars bool) (tokenizer.Sequence, error) {
	t.calls = append(t.calls, input)
	t.force = append(t.force, forceChars)

	if t.empty[input] {
		return tokenizer.Sequence{}, tokenizer.ErrDegenerateInput
	}
	if t.oov[input] && !forceChars {
		return tokenizer.Sequence{IDs: []int{-1, 10_000, 20_000}, Stage: "g2p"}, nil
	}

	var ids []int
	for _, r := range strings.ToLower(input) {
		if id, ok := t.table.ID(string(r)); ok {
			ids = append(ids, id)
		}
	}

	return tokenizer.Sequence{IDs: ids, Stage: "chars"}, nil
}

func (t *stubTokenizer) Symbols() *symbols.Table { return t.table }

type stubEmbedder struct {
	vec   []float32
	err   error
	paths []string
}

func (e *stubEmbedder) Extract(path string) (*embedding.Embedding, error) {
	e.paths = append(e.paths, path)
	if e.err != nil {
		return nil, e.err
	}

	return &embedding.Embedding{Vector: e.vec, Provenance: embedding.ProvenancePseudo, Path: path}, nil
}

func plainOptions() Options {
	opts := DefaultOptions()
	opts.ClarityMode = false
	opts.Prosody = false
	opts.LengthScale = 1
	return opts
}

func newTestService(t *testing.T, model *stubModel, tok *stubTokenizer, mutate func(*Parts)) *Service {
	t.Helper()

	if model.rate == 0 {
		model.rate = testRate
	}
	if model.vocab == 0 {
		model.vocab = tok.table.Len()
	}
	if model.dim == 0 {
		model.dim = 8
	}

	parts := Parts{Model: model, Tokenizer: tok, Options: plainOptions()}
	if mutate != nil {
		mutate(&parts)
	}

	svc, err := NewFromParts(parts)
	if err != nil {
		t.Fatalf("NewFromParts: %v", err)
	}

	return svc
}

func TestSynthesizeAudioWithoutReference(t *testing.T) {
	model := &stubModel{}
	svc := newTestService(t, model, newStubTokenizer(), func(p *Parts) { p.Options = DefaultOptions() })

	res, err := svc.SynthesizeAudio(context.Background(), Request{Text: "Nice to meet you."})
	if err != nil {
		t.Fatalf("SynthesizeAudio: %v", err)
	}

	if len(res.Samples) == 0 {
		t.Fatal("expected samples")
	}
	if res.SampleRate != 22050 {
		t.Fatalf("sample rate = %d, want 22050", res.SampleRate)
	}
	if res.Embedding != nil {
		t.Fatalf("expected no embedding, got %+v", res.Embedding)
	}
	if len(model.calls) != 1 || model.calls[0].Embedding != nil || model.calls[0].SpeakerID != 0 {
		t.Fatalf("expected one base-speaker call, got %+v", model.calls)
	}
	if peak := audio.Peak(res.Samples); peak > 0.95+1e-6 {
		t.Fatalf("peak %v above ceiling", peak)
	}
}

func TestSynthesizeAudioStitchesSentencesWithPauses(t *testing.T) {
	model := &stubModel{}
	svc := newTestService(t, model, newStubTokenizer(), nil)

	res, err := svc.SynthesizeAudio(context.Background(), Request{Text: "One is here. Two is here. Three is here."})
	if err != nil {
		t.Fatalf("SynthesizeAudio: %v", err)
	}

	if len(model.calls) != 3 {
		t.Fatalf("infer calls = %d, want 3", len(model.calls))
	}

	want := 3*testRate + 2*1102
	if diff := len(res.Samples) - want; diff < -1 || diff > 1 {
		t.Fatalf("len = %d, want %d±1", len(res.Samples), want)
	}

	gapStart := testRate + 10
	for i := gapStart; i < testRate+1100; i++ {
		if math.Abs(float64(res.Samples[i])) > 1e-3 {
			t.Fatalf("sample %d in pause = %v, want silence", i, res.Samples[i])
		}
	}

	for i, call := range model.calls {
		if call.Seed != svc.Options().Seed+int64(i) {
			t.Fatalf("call %d seed = %d", i, call.Seed)
		}
	}
}

func TestSynthesizeAudioLimitsPeak(t *testing.T) {
	model := &stubModel{infer: func(_ int, _ native.InferRequest) (*native.InferResult, error) {
		return &native.InferResult{Audio: testutil.Sine(testRate, testRate, 220, 1.3), Durations: []int{4, 4}}, nil
	}}
	svc := newTestService(t, model, newStubTokenizer(), nil)

	res, err := svc.SynthesizeAudio(context.Background(), Request{Text: "Loud."})
	if err != nil {
		t.Fatalf("SynthesizeAudio: %v", err)
	}

	if peak := audio.Peak(res.Samples); peak > 0.95+1e-6 {
		t.Fatalf("peak = %v, want <= 0.95", peak)
	}
}

func collapsedResult(_ int, req native.InferRequest) (*native.InferResult, error) {
	return &native.InferResult{
		Audio:     testutil.Sine(2205, testRate, 220, 0.3),
		Durations: []int{0, 0, 1, 0, 0, 2},
	}, nil
}

func TestDurationRetry(t *testing.T) {
	tests := []struct {
		name        string
		lengthScale float64
		durations   []int
		wantCalls   int
	}{
		{name: "collapsed retries once", lengthScale: 1.0, durations: []int{0, 0, 1, 0, 0, 2}, wantCalls: 2},
		{name: "ceiling reached", lengthScale: 1.6, durations: []int{0, 0, 1, 0, 0, 2}, wantCalls: 1},
		{name: "healthy durations", lengthScale: 1.0, durations: []int{2, 3, 4, 3, 2}, wantCalls: 1},
		{name: "too few tokens", lengthScale: 1.0, durations: []int{0, 0, 0}, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &stubModel{infer: func(_ int, _ native.InferRequest) (*native.InferResult, error) {
				return &native.InferResult{Audio: testutil.Sine(2205, testRate, 220, 0.3), Durations: tt.durations}, nil
			}}
			svc := newTestService(t, model, newStubTokenizer(), func(p *Parts) {
				p.Options.ClarityMode = true
			})

			res, err := svc.SynthesizeAudio(context.Background(), Request{Text: "Hello there.", LengthScale: tt.lengthScale})
			if err != nil {
				t.Fatalf("SynthesizeAudio: %v", err)
			}

			if len(model.calls) != tt.wantCalls {
				t.Fatalf("infer calls = %d, want %d", len(model.calls), tt.wantCalls)
			}

			if tt.wantCalls == 2 {
				first, second := model.calls[0].LengthScale, model.calls[1].LengthScale
				if math.Abs(float64(second)-float64(first)*1.15) > 1e-5 {
					t.Fatalf("retry length scale = %v, want %v", second, first*1.15)
				}
				if !res.Sentences[0].Retried {
					t.Fatal("report should mark the retry")
				}
			}
		})
	}
}

func TestDurationRetryPlainModeUsesSentenceScale(t *testing.T) {
	tests := []struct {
		name        string
		lengthScale float64
		wantCalls   int
		wantRetry   float32
	}{
		{name: "retry scales the unadjusted value", lengthScale: 1.0, wantCalls: 2, wantRetry: 1.15},
		// 1.45*1.05 is past the ceiling but 1.45 is not.
		{name: "ceiling checks the unadjusted value", lengthScale: 1.45, wantCalls: 2, wantRetry: float32(1.45 * 1.15)},
		{name: "ceiling reached", lengthScale: 1.5, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &stubModel{infer: collapsedResult}
			svc := newTestService(t, model, newStubTokenizer(), nil)

			if _, err := svc.SynthesizeAudio(context.Background(), Request{Text: "Hello there.", LengthScale: tt.lengthScale}); err != nil {
				t.Fatalf("SynthesizeAudio: %v", err)
			}

			if len(model.calls) != tt.wantCalls {
				t.Fatalf("infer calls = %d, want %d", len(model.calls), tt.wantCalls)
			}
			if first := model.calls[0].LengthScale; math.Abs(float64(first)-tt.lengthScale*1.05) > 1e-5 {
				t.Fatalf("first length scale = %v, want %v", first, tt.lengthScale*1.05)
			}
			if tt.wantCalls == 2 {
				if got := model.calls[1].LengthScale; math.Abs(float64(got-tt.wantRetry)) > 1e-5 {
					t.Fatalf("retry length scale = %v, want %v", got, tt.wantRetry)
				}
			}
		})
	}
}

func TestDurationRetryKeepsFirstResultOnError(t *testing.T) {
	model := &stubModel{infer: func(call int, req native.InferRequest) (*native.InferResult, error) {
		if call == 1 {
			return nil, errors.New("boom")
		}
		return collapsedResult(call, req)
	}}
	svc := newTestService(t, model, newStubTokenizer(), nil)

	res, err := svc.SynthesizeAudio(context.Background(), Request{Text: "Hello there."})
	if err != nil {
		t.Fatalf("SynthesizeAudio: %v", err)
	}
	if len(model.calls) != 2 || res.Sentences[0].Retried {
		t.Fatalf("calls = %d, retried = %v", len(model.calls), res.Sentences[0].Retried)
	}
}

func TestInferenceParameters(t *testing.T) {
	t.Run("clarity", func(t *testing.T) {
		model := &stubModel{}
		svc := newTestService(t, model, newStubTokenizer(), func(p *Parts) { p.Options.ClarityMode = true })

		if _, err := svc.SynthesizeAudio(context.Background(), Request{Text: "Hello there.", NoiseScale: 0.9}); err != nil {
			t.Fatalf("SynthesizeAudio: %v", err)
		}

		got := model.calls[0]
		if got.NoiseScale != 0.55 || got.NoiseScaleW != 0.5 || got.SDPRatio != 0.25 || got.LengthScale != 1 {
			t.Fatalf("unexpected clarity params %+v", got)
		}
	})

	t.Run("plain", func(t *testing.T) {
		model := &stubModel{}
		svc := newTestService(t, model, newStubTokenizer(), nil)

		if _, err := svc.SynthesizeAudio(context.Background(), Request{Text: "Hello there.", NoiseScale: 0.4, NoiseScaleW: 0.3}); err != nil {
			t.Fatalf("SynthesizeAudio: %v", err)
		}

		got := model.calls[0]
		if got.NoiseScale != 0.4 || got.NoiseScaleW != 0.3 || got.SDPRatio != 0.2 {
			t.Fatalf("unexpected plain params %+v", got)
		}
		if math.Abs(float64(got.LengthScale)-1.05) > 1e-6 {
			t.Fatalf("length scale = %v, want 1.05", got.LengthScale)
		}
	})

	t.Run("prosody adds bias", func(t *testing.T) {
		model := &stubModel{}
		svc := newTestService(t, model, newStubTokenizer(), func(p *Parts) { p.Options.Prosody = true })

		if _, err := svc.SynthesizeAudio(context.Background(), Request{Text: "Is it you?"}); err != nil {
			t.Fatalf("SynthesizeAudio: %v", err)
		}

		got := model.calls[0]
		if len(got.DurationBias) != len(got.IDs) {
			t.Fatalf("bias len %d, ids %d", len(got.DurationBias), len(got.IDs))
		}
	})
}

func TestSynthesizeAudioSkipsDegenerateSentences(t *testing.T) {
	tok := newStubTokenizer()
	tok.empty["Skip me."] = true

	model := &stubModel{}
	svc := newTestService(t, model, tok, nil)

	res, err := svc.SynthesizeAudio(context.Background(), Request{Text: "Hello there. Skip me. Goodbye now."})
	if err != nil {
		t.Fatalf("SynthesizeAudio: %v", err)
	}

	if len(model.calls) != 2 {
		t.Fatalf("infer calls = %d, want 2", len(model.calls))
	}
	if !res.Sentences[1].Skipped {
		t.Fatalf("sentence 1 should be skipped: %+v", res.Sentences[1])
	}

	forced := 0
	for i, in := range tok.calls {
		if in == "Skip me." && tok.force[i] {
			forced++
		}
	}
	if forced != 1 {
		t.Fatalf("character retry count = %d, want 1", forced)
	}

	want := 2*testRate + 1102
	if diff := len(res.Samples) - want; diff < -1 || diff > 1 {
		t.Fatalf("len = %d, want %d", len(res.Samples), want)
	}
}

func TestSynthesizeAudioFiltersOutOfVocabularyIDs(t *testing.T) {
	tok := newStubTokenizer()
	tok.oov["Hello there."] = true

	model := &stubModel{}
	svc := newTestService(t, model, tok, nil)

	if _, err := svc.SynthesizeAudio(context.Background(), Request{Text: "Hello there."}); err != nil {
		t.Fatalf("SynthesizeAudio: %v", err)
	}

	for _, id := range model.calls[0].IDs {
		if id < 0 || id >= model.vocab {
			t.Fatalf("id %d escaped filtering", id)
		}
	}
	if len(tok.force) != 2 || !tok.force[1] {
		t.Fatalf("expected a forced character retry, got %v", tok.force)
	}
}

func TestSynthesizeAudioErrors(t *testing.T) {
	t.Run("no audio", func(t *testing.T) {
		tok := newStubTokenizer()
		tok.empty["###"] = true
		svc := newTestService(t, &stubModel{}, tok, nil)

		_, err := svc.SynthesizeAudio(context.Background(), Request{Text: "###"})
		if !errors.Is(err, ErrNoAudio) {
			t.Fatalf("err = %v, want ErrNoAudio", err)
		}
	})

	t.Run("empty text", func(t *testing.T) {
		svc := newTestService(t, &stubModel{}, newStubTokenizer(), nil)

		_, err := svc.SynthesizeAudio(context.Background(), Request{Text: "  \n "})
		if !errors.Is(err, text.ErrEmptyText) {
			t.Fatalf("err = %v, want ErrEmptyText", err)
		}
	})

	t.Run("uninitialized model is fatal", func(t *testing.T) {
		model := &stubModel{infer: func(int, native.InferRequest) (*native.InferResult, error) {
			return nil, native.ErrModelNotInitialized
		}}
		svc := newTestService(t, model, newStubTokenizer(), nil)

		_, err := svc.SynthesizeAudio(context.Background(), Request{Text: "Hello there. Second one."})
		if !errors.Is(err, native.ErrModelNotInitialized) {
			t.Fatalf("err = %v, want ErrModelNotInitialized", err)
		}
		if len(model.calls) != 1 {
			t.Fatalf("synthesis should stop after the first failure, calls = %d", len(model.calls))
		}
	})

	t.Run("empty sequence skips", func(t *testing.T) {
		model := &stubModel{infer: func(call int, req native.InferRequest) (*native.InferResult, error) {
			if call == 0 {
				return nil, native.ErrEmptySequence
			}
			return collapsedResult(call, req)
		}}
		svc := newTestService(t, model, newStubTokenizer(), func(p *Parts) { p.Options.RetryCeiling = 0.5 })

		res, err := svc.SynthesizeAudio(context.Background(), Request{Text: "Hello there. Second one."})
		if err != nil {
			t.Fatalf("SynthesizeAudio: %v", err)
		}
		if !res.Sentences[0].Skipped || res.Sentences[1].Skipped {
			t.Fatalf("unexpected reports %+v", res.Sentences)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		svc := newTestService(t, &stubModel{}, newStubTokenizer(), nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := svc.SynthesizeAudio(ctx, Request{Text: "Hello there."})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	})

	t.Run("nil model", func(t *testing.T) {
		_, err := NewFromParts(Parts{Tokenizer: newStubTokenizer()})
		if !errors.Is(err, native.ErrModelNotInitialized) {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestSpeakerSelection(t *testing.T) {
	dir := t.TempDir()
	ref := filepath.Join(dir, "ref.wav")

	t.Run("hash of reference without embedding", func(t *testing.T) {
		model := &stubModel{speakers: 7}
		svc := newTestService(t, model, newStubTokenizer(), nil)

		res, err := svc.SynthesizeAudio(context.Background(), Request{Text: "Hello there.", Reference: ref})
		if err != nil {
			t.Fatalf("SynthesizeAudio: %v", err)
		}

		want := HashSpeaker(ref, 7)
		if res.SpeakerID != want || model.calls[0].SpeakerID != want {
			t.Fatalf("speaker = %d/%d, want %d", res.SpeakerID, model.calls[0].SpeakerID, want)
		}
	})

	t.Run("embedding replaces the table", func(t *testing.T) {
		model := &stubModel{speakers: 7}
		emb := &stubEmbedder{vec: []float32{1, 2, 3, 4, 5, 6, 7, 8}}
		svc := newTestService(t, model, newStubTokenizer(), func(p *Parts) {
			p.Embedder = emb
			p.Speakers = map[string]int{"cheerful": 3}
		})

		res, err := svc.SynthesizeAudio(context.Background(), Request{Text: "Hello there.", Reference: ref, Style: "cheerful"})
		if err != nil {
			t.Fatalf("SynthesizeAudio: %v", err)
		}

		if res.Embedding == nil || len(model.calls[0].Embedding) != 8 {
			t.Fatalf("embedding not passed: %+v", model.calls[0])
		}
		if res.SpeakerID != 3 {
			t.Fatalf("speaker = %d, want style row 3", res.SpeakerID)
		}
		if len(emb.paths) != 1 || emb.paths[0] != ref {
			t.Fatalf("extract paths = %v", emb.paths)
		}
	})

	t.Run("extraction failure falls back", func(t *testing.T) {
		model := &stubModel{speakers: 7}
		svc := newTestService(t, model, newStubTokenizer(), func(p *Parts) {
			p.Embedder = &stubEmbedder{err: embedding.ErrNoReference}
		})

		res, err := svc.SynthesizeAudio(context.Background(), Request{Text: "Hello there.", Reference: ref})
		if err != nil {
			t.Fatalf("SynthesizeAudio: %v", err)
		}
		if res.Embedding != nil || res.SpeakerID != HashSpeaker(ref, 7) {
			t.Fatalf("unexpected conditioning %+v", res)
		}
	})

	t.Run("width mismatch falls back", func(t *testing.T) {
		model := &stubModel{speakers: 2}
		svc := newTestService(t, model, newStubTokenizer(), func(p *Parts) {
			p.Embedder = &stubEmbedder{vec: []float32{1, 2}}
		})

		res, err := svc.SynthesizeAudio(context.Background(), Request{Text: "Hello there.", Reference: ref})
		if err != nil {
			t.Fatalf("SynthesizeAudio: %v", err)
		}
		if res.Embedding != nil || model.calls[0].Embedding != nil {
			t.Fatal("mismatched embedding must not reach the model")
		}
	})

	t.Run("style rows past the table reset", func(t *testing.T) {
		model := &stubModel{speakers: 2}
		svc := newTestService(t, model, newStubTokenizer(), func(p *Parts) {
			p.Speakers = map[string]int{"default": 5}
		})

		res, err := svc.SynthesizeAudio(context.Background(), Request{Text: "Hello there."})
		if err != nil {
			t.Fatalf("SynthesizeAudio: %v", err)
		}
		if res.SpeakerID != 0 {
			t.Fatalf("speaker = %d, want 0", res.SpeakerID)
		}
	})
}

func TestHashSpeaker(t *testing.T) {
	// md5("abc") ends in 0x2.
	if got := HashSpeaker("abc", 16); got != 2 {
		t.Fatalf("HashSpeaker(abc, 16) = %d, want 2", got)
	}
	if got := HashSpeaker("abc", 0); got != 0 {
		t.Fatalf("HashSpeaker(abc, 0) = %d, want 0", got)
	}
	if HashSpeaker("/voices/a.wav", 109) != HashSpeaker("/voices/a.wav", 109) {
		t.Fatal("hash not stable")
	}
}

func TestSynthesizeStream(t *testing.T) {
	svc := newTestService(t, &stubModel{}, newStubTokenizer(), nil)

	out := make(chan PCMChunk, 8)
	err := svc.SynthesizeStream(context.Background(), Request{Text: "One is here. Two is here. Three is here."}, out)
	if err != nil {
		t.Fatalf("SynthesizeStream: %v", err)
	}

	var chunks []PCMChunk
	for c := range out {
		chunks = append(chunks, c)
	}

	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i || c.Final != (i == 2) || c.SampleRate != testRate {
			t.Fatalf("chunk %d = %+v", i, c)
		}
	}
	if len(chunks[0].Samples) != testRate || len(chunks[1].Samples) != testRate+1102 {
		t.Fatalf("chunk lengths %d, %d", len(chunks[0].Samples), len(chunks[1].Samples))
	}
}

func TestSynthesizeStreamNoAudioClosesChannel(t *testing.T) {
	tok := newStubTokenizer()
	tok.empty["###"] = true
	svc := newTestService(t, &stubModel{}, tok, nil)

	out := make(chan PCMChunk, 1)
	err := svc.SynthesizeStream(context.Background(), Request{Text: "###"}, out)
	if !errors.Is(err, ErrNoAudio) {
		t.Fatalf("err = %v, want ErrNoAudio", err)
	}
	if _, ok := <-out; ok {
		t.Fatal("channel should be closed")
	}
}

func TestSynthesizeToFile(t *testing.T) {
	svc := newTestService(t, &stubModel{}, newStubTokenizer(), nil)
	path := filepath.Join(t.TempDir(), "out.wav")

	res, err := svc.SynthesizeToFile(context.Background(), Request{Text: "Nice to meet you."}, path)
	if err != nil {
		t.Fatalf("SynthesizeToFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}

	testutil.AssertValidWAV(t, data, testRate)
	if n := testutil.WAVSampleCount(t, data); n != len(res.Samples) {
		t.Fatalf("wav samples = %d, want %d", n, len(res.Samples))
	}
}

func TestTokens(t *testing.T) {
	svc := newTestService(t, &stubModel{}, newStubTokenizer(), nil)

	reports, err := svc.Tokens("Hello there. Bye.", "")
	if err != nil {
		t.Fatalf("Tokens: %v", err)
	}

	if len(reports) != 2 {
		t.Fatalf("reports = %d, want 2", len(reports))
	}
	if strings.Join(reports[1].Symbols, "") != "bye." {
		t.Fatalf("symbols = %q", reports[1].Symbols)
	}
}

func TestVoiceRequestUsesManifest(t *testing.T) {
	dir := t.TempDir()
	clip := testutil.WriteWAV(t, dir, "anna.wav", testutil.Voiced(testRate, testRate, 180), testRate)
	manifest := filepath.Join(dir, "manifest.json")
	if err := os.WriteFile(manifest, []byte(`{"voices":[{"id":"anna","path":"anna.wav","style":"calm"}]}`), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	voices, err := NewVoiceManager(manifest)
	if err != nil {
		t.Fatalf("NewVoiceManager: %v", err)
	}

	model := &stubModel{speakers: 4}
	emb := &stubEmbedder{vec: make([]float32, 8)}
	svc := newTestService(t, model, newStubTokenizer(), func(p *Parts) {
		p.Voices = voices
		p.Embedder = emb
		p.Speakers = map[string]int{"calm": 2}
	})

	res, err := svc.SynthesizeAudio(context.Background(), Request{Text: "Hello there.", Voice: "anna"})
	if err != nil {
		t.Fatalf("SynthesizeAudio: %v", err)
	}

	if len(emb.paths) != 1 || emb.paths[0] != clip {
		t.Fatalf("extract paths = %v, want %s", emb.paths, clip)
	}
	if res.SpeakerID != 2 {
		t.Fatalf("speaker = %d, want voice style row 2", res.SpeakerID)
	}

	if _, err := svc.SynthesizeAudio(context.Background(), Request{Text: "Hello.", Voice: "nobody"}); err == nil {
		t.Fatal("expected unknown voice error")
	}
}

func TestRequestScaleBounds(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		ok   bool
	}{
		{name: "defaults", req: Request{}, ok: true},
		{name: "in range", req: Request{LengthScale: 1.3, NoiseScale: 0.5, NoiseScaleW: 0.8}, ok: true},
		{name: "max length", req: Request{LengthScale: MaxLengthScale}, ok: true},
		{name: "huge length", req: Request{LengthScale: 1e30}},
		{name: "negative length", req: Request{LengthScale: -1}},
		{name: "nan length", req: Request{LengthScale: math.NaN()}},
		{name: "inf noise", req: Request{NoiseScale: math.Inf(1)}},
		{name: "noise w too large", req: Request{NoiseScaleW: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.ok && err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("err = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestSynthesizeRejectsOutOfRangeScale(t *testing.T) {
	model := &stubModel{}
	svc := newTestService(t, model, newStubTokenizer(), nil)

	_, err := svc.SynthesizeAudio(context.Background(), Request{Text: "Hello there.", LengthScale: 1e6})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
	if len(model.calls) != 0 {
		t.Fatalf("model called %d times", len(model.calls))
	}
}

func TestSynthesizeRejectsOutOfRangeDefault(t *testing.T) {
	svc := newTestService(t, &stubModel{}, newStubTokenizer(), func(p *Parts) { p.Options.LengthScale = 50 })

	if _, err := svc.SynthesizeAudio(context.Background(), Request{Text: "Hello there."}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
}

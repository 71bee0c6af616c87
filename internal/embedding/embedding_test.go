package embedding

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/example/go-voiceclone/internal/audio"
	"github.com/example/go-voiceclone/internal/config"
	"github.com/example/go-voiceclone/internal/runtime/tensor"
	"github.com/example/go-voiceclone/internal/safetensors"
	"github.com/example/go-voiceclone/internal/testutil"
)

const testRate = 16000

var testSTFT = STFTParams{NFFT: 1024, Hop: 256, Win: 1024}

func newTestExtractor(t *testing.T, opts Options) *Extractor {
	t.Helper()

	if opts.SampleRate == 0 {
		opts.SampleRate = testRate
	}
	if opts.STFT.NFFT == 0 {
		opts.STFT = testSTFT
	}
	if opts.Dim == 0 {
		opts.Dim = 16
	}
	if opts.NMels == 0 {
		opts.NMels = 40
	}

	e, err := NewExtractor(opts)
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	return e
}

func writeVoice(t *testing.T, dir, name string, f0 float64) string {
	t.Helper()
	return testutil.WriteWAV(t, dir, name, testutil.Voiced(testRate, testRate, f0), testRate)
}

type stubEncoder struct {
	bins   int
	out    []float32
	err    error
	shapes [][]int64
}

func (s *stubEncoder) EmbedSpectrogram(spec *tensor.Tensor) ([]float32, error) {
	s.shapes = append(s.shapes, spec.Shape())
	return s.out, s.err
}

func (s *stubEncoder) SpecChannels() int { return s.bins }

func TestExtractPseudoIsDeterministic(t *testing.T) {
	path := writeVoice(t, t.TempDir(), "ref.wav", 180)

	first, err := newTestExtractor(t, Options{Mode: config.EmbeddingPseudo}).Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	second, err := newTestExtractor(t, Options{Mode: config.EmbeddingPseudo}).Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if first.Provenance != ProvenancePseudo {
		t.Errorf("provenance = %q, want pseudo", first.Provenance)
	}
	if len(first.Vector) != 16 {
		t.Fatalf("dim = %d, want 16", len(first.Vector))
	}
	if !slices.Equal(first.Vector, second.Vector) {
		t.Errorf("pseudo embedding not reproducible:\n%v\n%v", first.Vector, second.Vector)
	}
	for i, v := range first.Vector {
		if math.Abs(float64(v)) >= 1 || math.IsNaN(float64(v)) {
			t.Errorf("v[%d] = %v, want within (-1, 1)", i, v)
		}
	}
}

func TestExtractLegacyDependsOnPath(t *testing.T) {
	dir := t.TempDir()
	a := writeVoice(t, dir, "a.wav", 180)
	b := writeVoice(t, dir, "b.wav", 180)

	e := newTestExtractor(t, Options{Mode: config.EmbeddingLegacy})
	ea, err := e.Extract(a)
	if err != nil {
		t.Fatalf("Extract a: %v", err)
	}
	eb, err := e.Extract(b)
	if err != nil {
		t.Fatalf("Extract b: %v", err)
	}
	again, err := newTestExtractor(t, Options{Mode: config.EmbeddingLegacy}).Extract(a)
	if err != nil {
		t.Fatalf("Extract a again: %v", err)
	}

	if ea.Provenance != ProvenanceLegacy {
		t.Errorf("provenance = %q, want legacy", ea.Provenance)
	}
	if !slices.Equal(ea.Vector, again.Vector) {
		t.Error("legacy embedding not reproducible for the same path")
	}
	if slices.Equal(ea.Vector, eb.Vector) {
		t.Error("identical audio at different paths should project differently")
	}

	var mean float64
	for _, v := range ea.Vector {
		mean += float64(v)
	}
	if mean /= float64(len(ea.Vector)); math.Abs(mean) > 1e-4 {
		t.Errorf("layer-normalized mean = %v, want ~0", mean)
	}
}

func TestExtractCachesByAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	path := writeVoice(t, dir, "ref.wav", 200)
	t.Chdir(dir)

	e := newTestExtractor(t, Options{Mode: config.EmbeddingPseudo})
	first, err := e.Extract("ref.wav")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	second, err := e.Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if first != second {
		t.Error("relative and absolute paths should share one cache entry")
	}
	if e.Cache().Len() != 1 {
		t.Errorf("cache len = %d, want 1", e.Cache().Len())
	}
}

func TestExtractNoReference(t *testing.T) {
	e := newTestExtractor(t, Options{})

	for _, path := range []string{"", "   ", filepath.Join(t.TempDir(), "missing.wav")} {
		if _, err := e.Extract(path); !errors.Is(err, ErrNoReference) {
			t.Errorf("Extract(%q) error = %v, want ErrNoReference", path, err)
		}
	}
}

func TestExtractTrainedEncoder(t *testing.T) {
	path := writeVoice(t, t.TempDir(), "ref.wav", 150)
	want := make([]float32, 16)
	want[3] = 1
	enc := &stubEncoder{bins: 100, out: want}

	e := newTestExtractor(t, Options{Trained: enc})
	got, err := e.Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if got.Provenance != ProvenanceTrained {
		t.Errorf("provenance = %q, want trained", got.Provenance)
	}
	if !slices.Equal(got.Vector, want) {
		t.Errorf("vector = %v, want %v", got.Vector, want)
	}
	if len(enc.shapes) != 1 || enc.shapes[0][1] != 100 {
		t.Errorf("encoder saw shapes %v, want [T, 100]", enc.shapes)
	}
}

func TestExtractFallsBackFromFailingEncoder(t *testing.T) {
	path := writeVoice(t, t.TempDir(), "ref.wav", 150)
	enc := &stubEncoder{bins: 513, err: errors.New("boom")}

	got, err := newTestExtractor(t, Options{Trained: enc}).Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Provenance != ProvenancePseudo {
		t.Errorf("provenance = %q, want pseudo fallback", got.Provenance)
	}
}

func TestExtractWrongEncoderWidthFallsBack(t *testing.T) {
	path := writeVoice(t, t.TempDir(), "ref.wav", 150)
	enc := &stubEncoder{bins: 513, out: []float32{1, 2}}

	got, err := newTestExtractor(t, Options{ONNX: enc}).Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Provenance != ProvenancePseudo {
		t.Errorf("provenance = %q, want pseudo", got.Provenance)
	}
}

func TestExtractEmbeddingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voice.safetensors")
	vec := make([]float32, 16)
	for i := range vec {
		vec[i] = float32(i) / 16
	}
	if err := safetensors.SaveSpeakerEmbedding(path, vec, map[string]string{"provenance": "pseudo"}); err != nil {
		t.Fatalf("SaveSpeakerEmbedding: %v", err)
	}

	got, err := newTestExtractor(t, Options{}).Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Provenance != ProvenanceFile || !slices.Equal(got.Vector, vec) {
		t.Errorf("got %q %v, want file %v", got.Provenance, got.Vector, vec)
	}

	if _, err := newTestExtractor(t, Options{Dim: 8}).Extract(path); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestNewExtractorValidation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{name: "bad mode", opts: Options{Mode: "magic", SampleRate: testRate, STFT: testSTFT, Dim: 4}},
		{name: "no rate", opts: Options{STFT: testSTFT, Dim: 4}},
		{name: "no dim", opts: Options{SampleRate: testRate, STFT: testSTFT}},
		{name: "bad stft", opts: Options{SampleRate: testRate, Dim: 4, STFT: STFTParams{NFFT: 0, Hop: 1, Win: 1}}},
		{name: "trained without encoder", opts: Options{Mode: config.EmbeddingTrained, SampleRate: testRate, STFT: testSTFT, Dim: 4}},
		{name: "onnx without encoder", opts: Options{Mode: config.EmbeddingONNX, SampleRate: testRate, STFT: testSTFT, Dim: 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewExtractor(tt.opts); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestAutoChainSkipsLegacyWithSpeakerTable(t *testing.T) {
	e := newTestExtractor(t, Options{HasSpeakerTable: true})

	for _, m := range e.methods() {
		if m.provenance == ProvenanceLegacy {
			t.Fatal("legacy extractor should be skipped when a speaker table exists")
		}
	}

	e = newTestExtractor(t, Options{})
	chain := e.methods()
	if chain[len(chain)-1].provenance != ProvenanceLegacy {
		t.Errorf("last extractor = %q, want legacy", chain[len(chain)-1].provenance)
	}
}

func TestPathSeed(t *testing.T) {
	a := PathSeed("/voices/a.wav")
	if a != PathSeed("/voices/a.wav") {
		t.Error("seed not deterministic")
	}
	if a == PathSeed("/voices/b.wav") {
		t.Error("different paths should seed differently")
	}
	if a < 0 || a >= math.MaxInt32 {
		t.Errorf("seed %d outside [0, 2^31-1)", a)
	}
}

func TestCachePutKeepsFirst(t *testing.T) {
	c := NewCache(0)
	first := &Embedding{Provenance: ProvenancePseudo}
	if got := c.Put("/a", first); got != first {
		t.Fatal("Put should return the stored entry")
	}
	if got := c.Put("/a", &Embedding{}); got != first {
		t.Error("second Put should keep the first entry")
	}
	if e, ok := c.Get("/a"); !ok || e != first {
		t.Error("Get did not return the stored entry")
	}
}

func TestCacheEvictsOldest(t *testing.T) {
	c := NewCache(2)
	c.Put("/a", &Embedding{})
	c.Put("/b", &Embedding{})
	c.Put("/c", &Embedding{})

	if c.Len() != 2 {
		t.Fatalf("len = %d, want 2", c.Len())
	}
	if _, ok := c.Get("/a"); ok {
		t.Error("oldest entry should be evicted")
	}
	for _, p := range []string{"/b", "/c"} {
		if _, ok := c.Get(p); !ok {
			t.Errorf("%s missing", p)
		}
	}
}

func TestExtractRejectsNonRegularFile(t *testing.T) {
	e := newTestExtractor(t, Options{Mode: config.EmbeddingPseudo})

	for _, path := range []string{t.TempDir(), os.DevNull} {
		_, err := e.Extract(path)
		if !errors.Is(err, audio.ErrNotRegularFile) {
			t.Errorf("Extract(%q) error = %v, want ErrNotRegularFile", path, err)
		}
	}
	if e.Cache().Len() != 0 {
		t.Errorf("cache len = %d, want 0", e.Cache().Len())
	}
}

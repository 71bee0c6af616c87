package tts

import (
	"path/filepath"
	"testing"

	"github.com/example/go-voiceclone/internal/testutil"
)

func TestFingerprint(t *testing.T) {
	res := &Result{
		Samples:    testutil.Sine(1000, testRate, 440, 0.5),
		SampleRate: testRate,
		Sentences: []SentenceReport{
			{Text: "a", Tokens: 5},
			{Text: "b", Skipped: true},
			{Text: "c", Tokens: 7},
		},
	}

	fp := FingerprintOf(res, 1234)
	if fp.SentenceCount != 2 || fp.TokenCount != 12 || fp.SampleCount != 1000 {
		t.Fatalf("fingerprint = %+v", fp)
	}
	if fp.PeakAbs <= 0.45 || fp.PeakAbs > 0.5 {
		t.Fatalf("peak = %v", fp.PeakAbs)
	}
	if len(fp.PCMHashSHA256) != 64 {
		t.Fatalf("hash = %q", fp.PCMHashSHA256)
	}

	path := filepath.Join(t.TempDir(), "fp.json")
	if err := SaveFingerprint(path, fp); err != nil {
		t.Fatalf("SaveFingerprint: %v", err)
	}
	loaded, err := LoadFingerprint(path)
	if err != nil {
		t.Fatalf("LoadFingerprint: %v", err)
	}
	if loaded != fp {
		t.Fatalf("loaded %+v, want %+v", loaded, fp)
	}

	changed := res.Samples[:999]
	other := FingerprintOf(&Result{Samples: changed, SampleRate: testRate}, 1234)
	if fp.Matches(other, 1e-3) {
		t.Fatal("different lengths should not match")
	}

	scaled := make([]float32, len(res.Samples))
	for i, s := range res.Samples {
		scaled[i] = s * 1.0001
	}
	if !fp.Matches(FingerprintOf(&Result{Samples: scaled, SampleRate: testRate}, 1234), 1e-3) {
		t.Fatal("tiny level change should match within tolerance")
	}
}

func TestLoadFingerprintMissing(t *testing.T) {
	if _, err := LoadFingerprint(filepath.Join(t.TempDir(), "none.json")); err == nil {
		t.Fatal("expected error")
	}
}

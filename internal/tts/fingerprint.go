package tts

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/example/go-voiceclone/internal/audio"
)

// Fingerprint summarizes a waveform so runs can be compared across builds
// and seeds without storing audio.
type Fingerprint struct {
	Seed          int64   `json:"seed"`
	SampleRate    int     `json:"sample_rate"`
	SampleCount   int     `json:"sample_count"`
	SentenceCount int     `json:"sentence_count"`
	TokenCount    int     `json:"token_count"`
	PeakAbs       float64 `json:"peak_abs"`
	RMS           float64 `json:"rms"`
	PCMHashSHA256 string  `json:"pcm_hash_sha256"`
}

// FingerprintOf summarizes res as produced with seed.
func FingerprintOf(res *Result, seed int64) Fingerprint {
	fp := Fingerprint{
		Seed:          seed,
		SampleRate:    res.SampleRate,
		SampleCount:   len(res.Samples),
		PeakAbs:       float64(audio.Peak(res.Samples)),
		RMS:           audio.RMS(res.Samples),
		PCMHashSHA256: hashPCM(res.Samples),
	}

	for _, s := range res.Sentences {
		if s.Skipped {
			continue
		}
		fp.SentenceCount++
		fp.TokenCount += s.Tokens
	}

	return fp
}

// Matches reports whether two fingerprints describe the same audio within
// tol on the level statistics.
func (f Fingerprint) Matches(other Fingerprint, tol float64) bool {
	if f.PCMHashSHA256 == other.PCMHashSHA256 {
		return true
	}

	return f.SampleRate == other.SampleRate &&
		f.SampleCount == other.SampleCount &&
		math.Abs(f.PeakAbs-other.PeakAbs) <= tol &&
		math.Abs(f.RMS-other.RMS) <= tol
}

func SaveFingerprint(path string, fp Fingerprint) error {
	data, err := json.MarshalIndent(fp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fingerprint: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write fingerprint: %w", err)
	}
	return nil
}

func LoadFingerprint(path string) (Fingerprint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("read fingerprint: %w", err)
	}
	var fp Fingerprint
	if err := json.Unmarshal(data, &fp); err != nil {
		return Fingerprint{}, fmt.Errorf("decode fingerprint: %w", err)
	}
	return fp, nil
}

func hashPCM(samples []float32) string {
	h := sha256.New()
	var b [4]byte
	for _, s := range samples {
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(s))
		_, _ = h.Write(b[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

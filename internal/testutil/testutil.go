// Package testutil holds fixtures shared by package tests: synthetic
// signals, WAV helpers and skips for optional external tools.
package testutil

import (
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/example/go-voiceclone/internal/audio"
	"github.com/example/go-voiceclone/internal/config"
	"github.com/example/go-voiceclone/internal/onnx"
)

// RequireEspeak skips unless espeak-ng (or VOICECLONE_ESPEAK_PATH) runs.
func RequireEspeak(tb testing.TB) {
	tb.Helper()
	RequireBinary(tb, "VOICECLONE_ESPEAK_PATH", "espeak-ng")
}

// RequirePocketTTS skips unless the offline pocket-tts CLI is on PATH or at
// VOICECLONE_POCKET_TTS_PATH.
func RequirePocketTTS(tb testing.TB) {
	tb.Helper()
	RequireBinary(tb, "VOICECLONE_POCKET_TTS_PATH", "pocket-tts")
}

// RequireBinary skips unless the executable named by env, or name when env
// is unset, resolves through exec.LookPath.
func RequireBinary(tb testing.TB, env, name string) {
	tb.Helper()

	exe := name
	if v := os.Getenv(env); v != "" {
		exe = v
	}
	if _, err := exec.LookPath(exe); err != nil {
		tb.Skipf("%s unavailable: %v (set %s)", name, err, env)
	}
}

// RequireONNXRuntime skips unless a shared library is found the same way
// the reference encoder looks for one.
func RequireONNXRuntime(tb testing.TB) {
	tb.Helper()

	if _, err := onnx.DetectRuntime(config.RuntimeConfig{}); err != nil {
		tb.Skipf("onnx runtime unavailable: %v", err)
	}
}

// Sine returns n samples of a sine at freq with peak amp.
func Sine(n, sampleRate int, freq, amp float64) []float32 {
	step := 2 * math.Pi * freq / float64(sampleRate)
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(step*float64(i)))
	}
	return out
}

// Voiced is a rough sustained vowel: five harmonics of f0 at 0.3/h.
func Voiced(n, sampleRate int, f0 float64) []float32 {
	out := make([]float32, n)
	for h := 1.0; h <= 5; h++ {
		for i, v := range Sine(n, sampleRate, f0*h, 0.3/h) {
			out[i] += v
		}
	}
	return out
}

// WriteWAV encodes samples into dir/name and returns the path.
func WriteWAV(tb testing.TB, dir, name string, samples []float32, sampleRate int) string {
	tb.Helper()

	path := filepath.Join(dir, name)
	if err := audio.WriteWAVFile(path, samples, sampleRate); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
	return path
}

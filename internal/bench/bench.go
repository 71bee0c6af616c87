// Package bench times repeated synthesis of one request and reports the
// real-time factor of each run.
package bench

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/example/go-voiceclone/internal/tts"
)

// Synthesizer is the part of the speech service a benchmark drives.
type Synthesizer interface {
	SynthesizeAudio(ctx context.Context, req tts.Request) (*tts.Result, error)
}

// RunResult holds the timing and audio metadata for a single synthesis run.
type RunResult struct {
	Index     int
	Cold      bool // first run, which includes reference extraction
	Duration  time.Duration
	AudioDur  time.Duration
	Sentences int
	RTF       float64
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min     time.Duration
	Max     time.Duration
	Mean    time.Duration
	MeanRTF float64
}

// Report is the outcome of Run.
type Report struct {
	Runs  []RunResult
	Stats Stats
}

// Options configures Run. Runs defaults to 1.
type Options struct {
	Runs    int
	Request tts.Request
	// Now is a clock override for tests.
	Now func() time.Time
}

// Run synthesizes opts.Request opts.Runs times, stopping at the first error.
func Run(ctx context.Context, synth Synthesizer, opts Options) (Report, error) {
	if synth == nil {
		return Report{}, errors.New("bench: synthesizer is required")
	}
	runs := opts.Runs
	if runs <= 0 {
		runs = 1
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	report := Report{Runs: make([]RunResult, 0, runs)}
	durations := make([]time.Duration, 0, runs)
	var rtfSum float64

	for i := range runs {
		start := now()
		res, err := synth.SynthesizeAudio(ctx, opts.Request)
		if err != nil {
			return report, fmt.Errorf("bench: run %d: %w", i+1, err)
		}
		elapsed := now().Sub(start)

		audioDur := AudioDuration(len(res.Samples), res.SampleRate)
		r := RunResult{
			Index:     i,
			Cold:      i == 0,
			Duration:  elapsed,
			AudioDur:  audioDur,
			Sentences: len(res.Sentences),
			RTF:       CalcRTF(elapsed, audioDur),
		}
		report.Runs = append(report.Runs, r)
		durations = append(durations, elapsed)
		rtfSum += r.RTF
	}

	report.Stats = ComputeStats(durations)
	report.Stats.MeanRTF = rtfSum / float64(len(report.Runs))

	return report, nil
}

// ComputeStats calculates min, max and mean over a slice of durations.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}
	mn, mx := durations[0], durations[0]
	var sum time.Duration
	for _, d := range durations {
		mn = min(mn, d)
		mx = max(mx, d)
		sum += d
	}
	return Stats{
		Min:  mn,
		Max:  mx,
		Mean: sum / time.Duration(len(durations)),
	}
}

// CalcRTF returns synthesis_duration / audio_duration, or 0 for silence.
func CalcRTF(synthDur, audioDur time.Duration) float64 {
	if audioDur <= 0 {
		return 0
	}
	return float64(synthDur) / float64(audioDur)
}

// AudioDuration is the playback length of n mono samples.
func AudioDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(sampleRate))
}

// CheckRTFThreshold returns an error if meanRTF > threshold.
// A threshold of 0 disables the gate.
func CheckRTFThreshold(meanRTF, threshold float64) error {
	if threshold <= 0 {
		return nil
	}
	if meanRTF > threshold {
		return fmt.Errorf("mean RTF %.3f exceeds threshold %.3f", meanRTF, threshold)
	}
	return nil
}

// FormatTable writes a human-readable table of the report to w.
func FormatTable(r Report, w io.Writer) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "%-5s  %-5s  %10s  %12s  %9s  %8s\n", "Run", "Cold", "MS", "Audio(ms)", "Sentences", "RTF")
	fmt.Fprintln(sb, strings.Repeat("-", 59))

	for _, run := range r.Runs {
		cold := ""
		if run.Cold {
			cold = "yes"
		}
		fmt.Fprintf(sb, "%-5d  %-5s  %10.1f  %12.1f  %9d  %8.3f\n",
			run.Index+1,
			cold,
			float64(run.Duration.Milliseconds()),
			float64(run.AudioDur.Milliseconds()),
			run.Sentences,
			run.RTF,
		)
	}

	fmt.Fprintln(sb, strings.Repeat("-", 59))
	fmt.Fprintf(sb, "min %.1fms  mean %.1fms  max %.1fms  mean RTF %.3f\n",
		float64(r.Stats.Min.Milliseconds()),
		float64(r.Stats.Mean.Milliseconds()),
		float64(r.Stats.Max.Milliseconds()),
		r.Stats.MeanRTF,
	)

	_, _ = fmt.Fprint(w, sb.String())
}

type jsonReport struct {
	Runs  []jsonRun `json:"runs"`
	Stats jsonStats `json:"stats"`
}

type jsonRun struct {
	Index      int     `json:"index"`
	Cold       bool    `json:"cold"`
	DurationMS float64 `json:"duration_ms"`
	AudioMS    float64 `json:"audio_ms"`
	Sentences  int     `json:"sentences"`
	RTF        float64 `json:"rtf"`
}

type jsonStats struct {
	MinMS   float64 `json:"min_ms"`
	MeanMS  float64 `json:"mean_ms"`
	MaxMS   float64 `json:"max_ms"`
	MeanRTF float64 `json:"mean_rtf"`
}

// FormatJSON writes a JSON report to w.
func FormatJSON(r Report, w io.Writer) error {
	jr := jsonReport{
		Runs: make([]jsonRun, len(r.Runs)),
		Stats: jsonStats{
			MinMS:   float64(r.Stats.Min.Milliseconds()),
			MeanMS:  float64(r.Stats.Mean.Milliseconds()),
			MaxMS:   float64(r.Stats.Max.Milliseconds()),
			MeanRTF: r.Stats.MeanRTF,
		},
	}
	for i, run := range r.Runs {
		jr.Runs[i] = jsonRun{
			Index:      run.Index,
			Cold:       run.Cold,
			DurationMS: float64(run.Duration.Milliseconds()),
			AudioMS:    float64(run.AudioDur.Milliseconds()),
			Sentences:  run.Sentences,
			RTF:        run.RTF,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jr)
}

package bench_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/example/go-voiceclone/internal/bench"
	"github.com/example/go-voiceclone/internal/tts"
)

type stubSynth struct {
	calls  int
	failAt int
	req    tts.Request
}

func (s *stubSynth) SynthesizeAudio(_ context.Context, req tts.Request) (*tts.Result, error) {
	s.calls++
	s.req = req
	if s.failAt > 0 && s.calls == s.failAt {
		return nil, errors.New("boom")
	}
	// 0.5s at 16 kHz in two sentences.
	return &tts.Result{
		Samples:    make([]float32, 8000),
		SampleRate: 16000,
		Sentences:  make([]tts.SentenceReport, 2),
	}, nil
}

// tickClock advances by step on every call.
func tickClock(step time.Duration) func() time.Time {
	t := time.Unix(0, 0)
	return func() time.Time {
		t = t.Add(step)
		return t
	}
}

func TestRun(t *testing.T) {
	synth := &stubSynth{}

	report, err := bench.Run(context.Background(), synth, bench.Options{
		Runs:    3,
		Request: tts.Request{Text: "Hello there."},
		Now:     tickClock(250 * time.Millisecond),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if synth.calls != 3 {
		t.Fatalf("calls = %d, want 3", synth.calls)
	}
	if synth.req.Text != "Hello there." {
		t.Fatalf("request text = %q", synth.req.Text)
	}
	if len(report.Runs) != 3 {
		t.Fatalf("runs = %d, want 3", len(report.Runs))
	}
	if !report.Runs[0].Cold || report.Runs[1].Cold {
		t.Errorf("only the first run should be cold: %+v", report.Runs)
	}

	for _, r := range report.Runs {
		if r.Duration != 250*time.Millisecond {
			t.Errorf("run %d duration = %v", r.Index, r.Duration)
		}
		if r.AudioDur != 500*time.Millisecond {
			t.Errorf("run %d audio = %v", r.Index, r.AudioDur)
		}
		if r.Sentences != 2 {
			t.Errorf("run %d sentences = %d", r.Index, r.Sentences)
		}
	}

	if report.Stats.MeanRTF < 0.499 || report.Stats.MeanRTF > 0.501 {
		t.Errorf("mean RTF = %.4f, want 0.5", report.Stats.MeanRTF)
	}
}

func TestRun_DefaultsToOneRun(t *testing.T) {
	synth := &stubSynth{}

	report, err := bench.Run(context.Background(), synth, bench.Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if synth.calls != 1 || len(report.Runs) != 1 {
		t.Fatalf("calls=%d runs=%d, want 1", synth.calls, len(report.Runs))
	}
}

func TestRun_StopsAtError(t *testing.T) {
	synth := &stubSynth{failAt: 2}

	report, err := bench.Run(context.Background(), synth, bench.Options{Runs: 5})
	if err == nil || !strings.Contains(err.Error(), "run 2") {
		t.Fatalf("expected run 2 error, got %v", err)
	}
	if len(report.Runs) != 1 {
		t.Fatalf("completed runs = %d, want 1", len(report.Runs))
	}
}

func TestRun_RequiresSynthesizer(t *testing.T) {
	if _, err := bench.Run(context.Background(), nil, bench.Options{}); err == nil {
		t.Fatal("expected error for nil synthesizer")
	}
}

func TestStats_MinMaxMean(t *testing.T) {
	durations := []time.Duration{
		100 * time.Millisecond,
		300 * time.Millisecond,
		200 * time.Millisecond,
	}
	s := bench.ComputeStats(durations)

	if s.Min != 100*time.Millisecond {
		t.Errorf("want min=100ms, got %v", s.Min)
	}
	if s.Max != 300*time.Millisecond {
		t.Errorf("want max=300ms, got %v", s.Max)
	}
	if s.Mean != 200*time.Millisecond {
		t.Errorf("want mean=200ms, got %v", s.Mean)
	}

	if got := bench.ComputeStats(nil); got != (bench.Stats{}) {
		t.Errorf("empty input: %+v", got)
	}
}

func TestRTF(t *testing.T) {
	tests := []struct {
		name  string
		synth time.Duration
		audio time.Duration
		want  float64
	}{
		{name: "faster than real time", synth: 500 * time.Millisecond, audio: time.Second, want: 0.5},
		{name: "slower than real time", synth: 3 * time.Second, audio: 2 * time.Second, want: 1.5},
		{name: "silence", synth: 500 * time.Millisecond, audio: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := bench.CalcRTF(tt.synth, tt.audio)
			if got < tt.want-0.001 || got > tt.want+0.001 {
				t.Errorf("CalcRTF = %.4f, want %.4f", got, tt.want)
			}
		})
	}
}

func TestAudioDuration(t *testing.T) {
	if got := bench.AudioDuration(22050, 22050); got != time.Second {
		t.Errorf("AudioDuration = %v, want 1s", got)
	}
	if got := bench.AudioDuration(100, 0); got != 0 {
		t.Errorf("zero rate: %v", got)
	}
}

func TestRTFThreshold(t *testing.T) {
	tests := []struct {
		name      string
		rtf       float64
		threshold float64
		wantErr   bool
	}{
		{name: "exceeds", rtf: 1.5, threshold: 1.0, wantErr: true},
		{name: "below", rtf: 0.8, threshold: 1.0},
		{name: "exactly at", rtf: 1.0, threshold: 1.0},
		{name: "disabled", rtf: 9999, threshold: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := bench.CheckRTFThreshold(tt.rtf, tt.threshold)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckRTFThreshold(%v, %v) = %v, wantErr %v", tt.rtf, tt.threshold, err, tt.wantErr)
			}
		})
	}
}

func sampleReport() bench.Report {
	runs := []bench.RunResult{
		{Index: 0, Cold: true, Duration: 800 * time.Millisecond, RTF: 0.8, AudioDur: time.Second, Sentences: 1},
		{Index: 1, Duration: 500 * time.Millisecond, RTF: 0.5, AudioDur: time.Second, Sentences: 1},
	}
	stats := bench.ComputeStats([]time.Duration{800 * time.Millisecond, 500 * time.Millisecond})
	stats.MeanRTF = 0.65

	return bench.Report{Runs: runs, Stats: stats}
}

func TestFormatTable_ContainsHeaders(t *testing.T) {
	var buf strings.Builder
	bench.FormatTable(sampleReport(), &buf)
	out := strings.ToLower(buf.String())

	for _, want := range []string{"run", "cold", "ms", "sentences", "rtf", "mean rtf 0.650"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := bench.FormatJSON(sampleReport(), &buf); err != nil {
		t.Fatalf("FormatJSON: %v", err)
	}

	var out struct {
		Runs  []map[string]any `json:"runs"`
		Stats struct {
			MeanMS  float64 `json:"mean_ms"`
			MeanRTF float64 `json:"mean_rtf"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("FormatJSON produced invalid JSON: %v\n%s", err, buf.String())
	}
	if len(out.Runs) != 2 || out.Stats.MeanMS != 650 || out.Stats.MeanRTF != 0.65 {
		t.Errorf("unexpected report: %+v", out)
	}
}

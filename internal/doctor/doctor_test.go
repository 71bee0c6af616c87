package doctor_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/go-voiceclone/internal/config"
	"github.com/example/go-voiceclone/internal/doctor"
	"github.com/example/go-voiceclone/internal/safetensors"
	"github.com/example/go-voiceclone/internal/testutil"
)

var errMissing = errors.New("missing")

func ok(desc string) doctor.ProbeFunc {
	return func() (string, error) { return desc, nil }
}

func failing() doctor.ProbeFunc {
	return func() (string, error) { return "", errMissing }
}

func TestRunMarks(t *testing.T) {
	tests := []struct {
		name         string
		check        doctor.Check
		wantMark     string
		wantFailed   bool
		wantWarnings int
	}{
		{name: "pass", check: doctor.Check{Name: "model", Probe: ok("fine")}, wantMark: doctor.PassMark},
		{name: "fail", check: doctor.Check{Name: "model", Probe: failing()}, wantMark: doctor.FailMark, wantFailed: true},
		{name: "optional", check: doctor.Check{Name: "espeak", Probe: failing(), Optional: true}, wantMark: doctor.WarnMark, wantWarnings: 1},
		{name: "skip", check: doctor.Check{Name: "onnx", Probe: failing(), Skip: "not configured"}, wantMark: doctor.PassMark},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out strings.Builder
			res := doctor.Run(doctor.Config{Checks: []doctor.Check{tt.check}}, &out)

			if !strings.HasPrefix(out.String(), tt.wantMark+" "+tt.check.Name) {
				t.Fatalf("output %q, want mark %q", out.String(), tt.wantMark)
			}
			if res.Failed() != tt.wantFailed {
				t.Fatalf("Failed() = %v, failures %v", res.Failed(), res.Failures())
			}
			if len(res.Warnings()) != tt.wantWarnings {
				t.Fatalf("warnings = %v", res.Warnings())
			}
		})
	}
}

func TestRunReferenceFiles(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "me.wav")
	if err := os.WriteFile(present, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	var out strings.Builder
	res := doctor.Run(doctor.Config{ReferenceFiles: []string{present, filepath.Join(dir, "gone.wav")}}, &out)

	if len(res.Failures()) != 1 || !strings.Contains(res.Failures()[0], "gone.wav") {
		t.Fatalf("failures = %v", res.Failures())
	}

	res.AddFailure("extra")
	if len(res.Failures()) != 2 {
		t.Fatal("AddFailure did not record")
	}
}

func TestFromConfig(t *testing.T) {
	dir := t.TempDir()

	cfgPath := filepath.Join(dir, "config.json")
	if err := os.WriteFile(cfgPath, []byte(`{"data": {"sampling_rate": 16000, "filter_length": 16, "hop_length": 4, "win_length": 16}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	ckpt := filepath.Join(dir, "model.safetensors")
	err := safetensors.WriteFile(ckpt, []safetensors.Tensor{
		{Name: "model.ref_enc.proj.weight", Shape: []int64{2}, Data: []float32{1, 2}},
	})
	if err != nil {
		t.Fatal(err)
	}

	clip := testutil.WriteWAV(t, dir, "ref.wav", testutil.Sine(1600, 16000, 220, 0.5), 16000)
	emb := filepath.Join(dir, "ref.safetensors")
	if err := safetensors.SaveSpeakerEmbedding(emb, []float32{0.1, 0.2}, nil); err != nil {
		t.Fatal(err)
	}
	broken := filepath.Join(dir, "broken.wav")
	if err := os.WriteFile(broken, []byte("not audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.Paths.ModelConfig = cfgPath
	cfg.Paths.Checkpoint = ckpt
	cfg.Paths.RefEncoderONNX = ""
	cfg.Embedding.Mode = config.EmbeddingAuto
	cfg.Text.Phonemizer = false
	cfg.Facade.OfflineFallback = false

	var out strings.Builder
	res := doctor.Run(doctor.FromConfig(cfg, []string{clip, emb, broken}), &out)

	text := out.String()
	for _, want := range []string{
		doctor.PassMark + " cpu:",
		doctor.PassMark + " model config: " + cfgPath + " (16000 Hz",
		"trained reference encoder",
		"espeak-ng: skipped",
		"onnx runtime: skipped",
		"offline voice: skipped",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}

	failures := res.Failures()
	if len(failures) != 1 || !strings.Contains(failures[0], "broken.wav") {
		t.Fatalf("failures = %v", failures)
	}
}

func TestFromConfigMissingPaths(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Paths.ModelConfig = ""
	cfg.Paths.Checkpoint = ""
	cfg.Text.Phonemizer = false
	cfg.Facade.OfflineFallback = false

	var out strings.Builder
	res := doctor.Run(doctor.FromConfig(cfg, nil), &out)

	if len(res.Failures()) != 2 {
		t.Fatalf("failures = %v", res.Failures())
	}
}

func TestCPUFeatures(t *testing.T) {
	if got := doctor.CPUFeatures(); !strings.Contains(got, "cpus") {
		t.Fatalf("CPUFeatures() = %q", got)
	}
}

package doctor

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"

	pockettts "github.com/MeKo-Christian/go-call-pocket-tts"
	"golang.org/x/sys/cpu"

	"github.com/example/go-voiceclone/internal/audio"
	"github.com/example/go-voiceclone/internal/config"
	"github.com/example/go-voiceclone/internal/onnx"
	"github.com/example/go-voiceclone/internal/safetensors"
	"github.com/example/go-voiceclone/internal/tokenizer"
)

// CPUFeatures lists the SIMD extensions the tensor kernels benefit from.
func CPUFeatures() string {
	var feats []string

	switch runtime.GOARCH {
	case "amd64":
		for _, f := range []struct {
			name string
			ok   bool
		}{
			{"sse4.1", cpu.X86.HasSSE41},
			{"avx", cpu.X86.HasAVX},
			{"avx2", cpu.X86.HasAVX2},
			{"fma", cpu.X86.HasFMA},
			{"avx512f", cpu.X86.HasAVX512F},
		} {
			if f.ok {
				feats = append(feats, f.name)
			}
		}
	case "arm64":
		if cpu.ARM64.HasASIMD {
			feats = append(feats, "asimd")
		}
		if cpu.ARM64.HasFPHP {
			feats = append(feats, "fphp")
		}
	}

	if len(feats) == 0 {
		feats = append(feats, "none detected")
	}

	return fmt.Sprintf("%s/%s, %d cpus, %s", runtime.GOOS, runtime.GOARCH, runtime.NumCPU(), strings.Join(feats, " "))
}

// FromConfig builds the checks for an application config: model config and
// checkpoint (required), espeak-ng, ONNX Runtime and the pocket-tts offline
// voice (optional), and readable reference clips.
func FromConfig(cfg config.Config, references []string) Config {
	checks := []Check{
		{Name: "cpu", Probe: func() (string, error) { return CPUFeatures(), nil }},
		{Name: "model config", Probe: func() (string, error) { return probeModelConfig(cfg) }},
		{Name: "checkpoint", Probe: func() (string, error) { return probeCheckpoint(cfg.Paths.Checkpoint) }},
		espeakCheck(cfg.Text),
		onnxCheck(cfg),
		pocketCheck(cfg.Facade),
	}

	return Config{
		Checks:         checks,
		ReferenceFiles: references,
		ReadReference:  readReference,
	}
}

func probeModelConfig(cfg config.Config) (string, error) {
	if cfg.Paths.ModelConfig == "" {
		return "", errors.New("paths.model_config is not set")
	}

	mc, err := config.LoadModelConfig(cfg.Paths.ModelConfig, cfg.Synthesis.StrictModelConfig, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s (%d Hz, %d speakers)", cfg.Paths.ModelConfig, mc.SampleRate(), mc.SpeakerCount()), nil
}

func probeCheckpoint(path string) (string, error) {
	if path == "" {
		return "", errors.New("paths.checkpoint is not set")
	}

	store, err := safetensors.OpenStore(path, safetensors.StoreOptions{})
	if err != nil {
		return "", err
	}
	defer store.Close()

	names := store.Names()
	refEnc := false
	for _, n := range names {
		if strings.Contains(n, "ref_enc.") {
			refEnc = true
			break
		}
	}

	provenance := "pseudo embeddings"
	if refEnc {
		provenance = "trained reference encoder"
	}

	return fmt.Sprintf("%s (%d tensors, %s)", path, len(names), provenance), nil
}

func espeakCheck(tc config.TextConfig) Check {
	c := Check{Name: "espeak-ng", Optional: true}
	if !tc.Phonemizer {
		c.Skip = "phonemizer disabled"
		return c
	}

	c.Probe = func() (string, error) {
		e := tokenizer.NewEspeakPhonemizer(tc.EspeakBinary)
		if err := e.Available(); err != nil {
			return "", fmt.Errorf("%w (G2P fallback will be used)", err)
		}
		return e.Binary, nil
	}

	return c
}

func onnxCheck(cfg config.Config) Check {
	c := Check{Name: "onnx runtime", Optional: cfg.Embedding.Mode != config.EmbeddingONNX}
	if cfg.Paths.RefEncoderONNX == "" && cfg.Embedding.Mode != config.EmbeddingONNX {
		c.Skip = "no onnx reference encoder configured"
		return c
	}

	c.Probe = func() (string, error) {
		info, err := onnx.DetectRuntime(cfg.Runtime)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s (version %s)", info.LibraryPath, info.Version), nil
	}

	return c
}

func pocketCheck(fc config.FacadeConfig) Check {
	c := Check{Name: "offline voice", Optional: true}
	if !fc.OfflineFallback {
		c.Skip = "offline fallback disabled"
		return c
	}

	c.Probe = func() (string, error) {
		if err := pockettts.Preflight(fc.OfflineCLIPath); err != nil {
			return "", fmt.Errorf("%w (canned replies will be used)", err)
		}
		exe := fc.OfflineCLIPath
		if exe == "" {
			exe = "pocket-tts"
		}
		return exe, nil
	}

	return c
}

// readReference accepts exported embeddings and decodable audio clips.
func readReference(path string) error {
	if strings.EqualFold(filepath.Ext(path), ".safetensors") {
		_, err := safetensors.LoadSpeakerEmbedding(path)
		return err
	}

	clip, err := audio.LoadFile(path, 0)
	if err != nil {
		return err
	}
	if len(clip.Samples) == 0 {
		return errors.New("no audio samples")
	}

	return nil
}

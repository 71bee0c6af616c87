package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/example/go-voiceclone/internal/audio"
	"github.com/example/go-voiceclone/internal/tts"
)

type synthFlags struct {
	text        string
	out         string
	voice       string
	reference   string
	engine      string
	style       string
	language    string
	lengthScale float64
	fingerprint string
	compare     string
	tolerance   float64
}

func newSynthCmd() *cobra.Command {
	var f synthFlags

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Synthesize text to WAV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			input, err := readText(f.text, cmd.InOrStdin())
			if err != nil {
				return err
			}

			req := tts.Request{
				Text:        input,
				Voice:       f.voice,
				Reference:   f.reference,
				Style:       f.style,
				Language:    f.language,
				LengthScale: f.lengthScale,
			}

			if f.engine != "" && f.reference == "" {
				store, err := openEngines(cfg)
				if err != nil {
					return err
				}
				if req.Reference, err = engineReference(store, f.engine); err != nil {
					return err
				}
			}

			svc, err := tts.New(cfg, slog.Default())
			if err != nil {
				return err
			}
			defer svc.Close()

			res, err := synthesize(cmd, svc, req, f.out)
			if err != nil {
				return err
			}

			return checkFingerprint(cmd.ErrOrStderr(), res, svc.Options().Seed, f)
		},
	}

	cmd.Flags().StringVar(&f.text, "text", "", "Text to synthesize (if empty, read from stdin)")
	cmd.Flags().StringVar(&f.out, "out", "out.wav", "Output WAV path ('-' for stdout)")
	cmd.Flags().StringVar(&f.voice, "voice", "", "Voice id from the voices manifest")
	cmd.Flags().StringVar(&f.reference, "reference", "", "Reference clip or exported .safetensors embedding")
	cmd.Flags().StringVar(&f.engine, "engine", "", "Saved engine whose reference to use")
	cmd.Flags().StringVar(&f.style, "style", "", "Speaker style key (overrides config)")
	cmd.Flags().StringVar(&f.language, "language", "", "Language hint for phonemization")
	cmd.Flags().Float64Var(&f.lengthScale, "length-scale", 0, "Length scale (0 uses config)")
	cmd.Flags().StringVar(&f.fingerprint, "fingerprint", "", "Write an output fingerprint JSON to this path")
	cmd.Flags().StringVar(&f.compare, "compare-fingerprint", "", "Fail unless the output matches this fingerprint JSON")
	cmd.Flags().Float64Var(&f.tolerance, "fingerprint-tolerance", 1e-4, "Peak/RMS tolerance for --compare-fingerprint")

	return cmd
}

func synthesize(cmd *cobra.Command, svc *tts.Service, req tts.Request, out string) (*tts.Result, error) {
	if out != "-" {
		res, err := svc.SynthesizeToFile(cmd.Context(), req, out)
		if err != nil {
			return nil, err
		}
		slog.Info("wrote audio",
			slog.String("path", out),
			slog.Int("samples", len(res.Samples)),
			slog.Int("sentences", len(res.Sentences)),
		)
		return res, nil
	}

	res, err := svc.SynthesizeAudio(cmd.Context(), req)
	if err != nil {
		return nil, err
	}

	wav, err := audio.EncodeWAV(res.Samples, res.SampleRate)
	if err != nil {
		return nil, err
	}
	if _, err := cmd.OutOrStdout().Write(wav); err != nil {
		return nil, err
	}

	return res, nil
}

func checkFingerprint(w io.Writer, res *tts.Result, seed int64, f synthFlags) error {
	if f.fingerprint == "" && f.compare == "" {
		return nil
	}

	fp := tts.FingerprintOf(res, seed)

	if f.fingerprint != "" {
		if err := tts.SaveFingerprint(f.fingerprint, fp); err != nil {
			return err
		}
	}

	if f.compare == "" {
		return nil
	}

	want, err := tts.LoadFingerprint(f.compare)
	if err != nil {
		return err
	}
	if !fp.Matches(want, f.tolerance) {
		return fmt.Errorf("fingerprint mismatch: got %d samples peak %.6f rms %.6f, want %d samples peak %.6f rms %.6f",
			fp.SampleCount, fp.PeakAbs, fp.RMS, want.SampleCount, want.PeakAbs, want.RMS)
	}

	_, _ = fmt.Fprintln(w, "fingerprint matches")
	return nil
}

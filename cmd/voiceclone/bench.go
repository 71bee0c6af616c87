package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/pprof"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-voiceclone/internal/bench"
	"github.com/example/go-voiceclone/internal/tts"
)

func newBenchCmd() *cobra.Command {
	var (
		text         string
		reference    string
		runs         int
		format       string
		rtfThreshold float64
		cpuprofile   string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark synthesis latency and realtime factor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if strings.TrimSpace(text) == "" {
				return errors.New("--text is required for bench")
			}
			if runs < 1 {
				return errors.New("--runs must be at least 1")
			}
			if format != "table" && format != "json" {
				return errors.New("--format must be 'table' or 'json'")
			}

			svc, err := tts.New(cfg, slog.Default())
			if err != nil {
				return err
			}
			defer svc.Close()

			if cpuprofile != "" {
				f, err := os.Create(cpuprofile)
				if err != nil {
					return fmt.Errorf("create cpu profile: %w", err)
				}
				defer f.Close()

				if err := pprof.StartCPUProfile(f); err != nil {
					return fmt.Errorf("start cpu profile: %w", err)
				}
				defer pprof.StopCPUProfile()
			}

			report, err := bench.Run(cmd.Context(), svc, bench.Options{
				Runs:    runs,
				Request: tts.Request{Text: text, Reference: reference},
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				if err := bench.FormatJSON(report, out); err != nil {
					return err
				}
			default:
				bench.FormatTable(report, out)
			}

			return bench.CheckRTFThreshold(report.Stats.MeanRTF, rtfThreshold)
		},
	}

	cmd.Flags().StringVar(&text, "text", "Hello there. This is a quick benchmark.", "Text to synthesize")
	cmd.Flags().StringVar(&reference, "reference", "", "Reference clip or embedding to condition on")
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of synthesis runs")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().Float64Var(&rtfThreshold, "rtf-threshold", 0, "Fail if mean RTF exceeds this value (0 disables)")
	cmd.Flags().StringVar(&cpuprofile, "cpuprofile", "", "Write a CPU profile to this path")

	return cmd
}

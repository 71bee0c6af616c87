package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-voiceclone/internal/safetensors"
	"github.com/example/go-voiceclone/internal/tts"
)

func newEmbedCmd() *cobra.Command {
	var (
		out        string
		engineName string
	)

	cmd := &cobra.Command{
		Use:   "embed <reference>",
		Short: "Export the speaker embedding of a reference clip as .safetensors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			ref, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if out == "" {
				out = strings.TrimSuffix(ref, filepath.Ext(ref)) + ".safetensors"
			}

			svc, err := tts.New(cfg, slog.Default())
			if err != nil {
				return err
			}
			defer svc.Close()

			emb, err := svc.Embedder().Extract(ref)
			if err != nil {
				return err
			}

			err = safetensors.SaveSpeakerEmbedding(out, emb.Vector, map[string]string{
				"provenance": string(emb.Provenance),
				"source":     ref,
			})
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s (%d dims, %s)\n", out, len(emb.Vector), emb.Provenance)

			if engineName == "" {
				return nil
			}

			store, err := openEngines(cfg)
			if err != nil {
				return err
			}
			if _, err := store.SelectVoice(cmd.Context(), ref, engineName); err != nil {
				return err
			}
			if err := store.AttachEmbedding(out); err != nil {
				return err
			}
			_, err = store.Save(engineName)
			return err
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "Output path (default: reference with .safetensors extension)")
	cmd.Flags().StringVar(&engineName, "engine", "", "Also save an engine with this name using the embedding")

	return cmd
}

package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/example/go-voiceclone/internal/config"
	"github.com/example/go-voiceclone/internal/engine"
	"github.com/example/go-voiceclone/internal/facade"
	"github.com/example/go-voiceclone/internal/tts"
)

func newSpeakCmd() *cobra.Command {
	var (
		text       string
		engineName string
		reference  string
	)

	cmd := &cobra.Command{
		Use:   "speak",
		Short: "Speak text through the audio player, printing typing updates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			input, err := readText(text, cmd.InOrStdin())
			if err != nil {
				return err
			}

			store, err := openEngines(cfg)
			if err != nil {
				return err
			}
			if engineName != "" {
				if _, err := store.Load(engineName); err != nil {
					return err
				}
			}

			// A synthesizer that cannot load leaves the facade offline.
			var synth facade.Synthesizer
			svc, err := tts.New(cfg, slog.Default())
			if err != nil {
				slog.Error("speech pipeline unavailable", slog.String("error", err.Error()))
			} else {
				defer svc.Close()
				synth = svc
			}

			f := newFacade(cfg, synth, store, cmd.ErrOrStderr())
			defer f.Close()

			updates := make(chan facade.Update)
			req := defaultRequest(store)()
			req.Text = input
			if reference != "" {
				req.Reference = reference
			}

			if _, err := f.SpeakRequest(req, updates); err != nil {
				return err
			}

			return printUpdates(cmd.OutOrStdout(), updates)
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to speak (if empty, read from stdin)")
	cmd.Flags().StringVar(&engineName, "engine", "", "Saved engine to speak with")
	cmd.Flags().StringVar(&reference, "reference", "", "Reference clip or embedding (overrides --engine)")

	return cmd
}

// printUpdates rewrites the current line with each typing update.
func printUpdates(w io.Writer, updates <-chan facade.Update) error {
	var final facade.Update
	for u := range updates {
		_, _ = fmt.Fprintf(w, "\r%s", u.Text)
		if u.Final {
			final = u
		}
	}
	_, _ = fmt.Fprintln(w)

	if final.Error != "" {
		return fmt.Errorf("speak: %s", final.Error)
	}
	return nil
}

// defaultRequest conditions on the currently selected engine, if any.
func defaultRequest(store *engine.Store) func() tts.Request {
	return func() tts.Request {
		if cur, ok := store.Current(); ok {
			return tts.Request{Reference: cur.Reference()}
		}
		return tts.Request{}
	}
}

// newFacade wires the player and offline voice from the facade config.
func newFacade(cfg config.Config, synth facade.Synthesizer, store *engine.Store, stderr io.Writer) *facade.Facade {
	logger := slog.Default()
	fc := cfg.Facade

	var player facade.Player = facade.DiscardPlayer{}
	if p, err := facade.NewCommandPlayer(fc.PlayerCommand); err != nil {
		logger.Warn("no audio player, audio will be discarded", slog.String("error", err.Error()))
	} else {
		logger.Debug("audio player", slog.String("command", p.Command()))
		player = p
	}

	var offline facade.OfflineVoice = facade.NewCannedVoice(fc.TruncateChars, logger)
	if fc.OfflineFallback {
		pocket, err := facade.NewPocketVoice(facade.PocketOptions{
			ExecutablePath: fc.OfflineCLIPath,
			Voice:          fc.OfflineVoice,
			Player:         player,
			Truncate:       fc.TruncateChars,
			LogWriter:      stderr,
		})
		if err != nil {
			logger.Info("pocket-tts offline voice unavailable, using canned replies", slog.String("error", err.Error()))
		} else {
			offline = pocket
		}
	}

	return facade.New(facade.Options{
		Synth:      synth,
		Player:     player,
		Offline:    offline,
		NoFallback: !fc.OfflineFallback,
		QueueSize:  fc.QueueSize,
		Volume:     fc.Volume,
		Rate:       fc.Rate,
		Defaults:   defaultRequest(store),
		Logger:     logger,
	})
}

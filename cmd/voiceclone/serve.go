package main

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/go-voiceclone/internal/server"
	"github.com/example/go-voiceclone/internal/tts"
)

func newServeCmd() *cobra.Command {
	var (
		engineName string
		anyOrigin  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			logger := slog.Default()

			svc, err := tts.New(cfg, logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			store, err := openEngines(cfg)
			if err != nil {
				return err
			}
			if engineName != "" {
				if _, err := store.Load(engineName); err != nil {
					return err
				}
			}

			speaker := newFacade(cfg, svc, store, cmd.ErrOrStderr())
			defer speaker.Close()

			opts := append(server.ConfigOptions(cfg.Server),
				server.WithLogger(logger),
				server.WithStreamer(svc),
				server.WithSpeaker(speaker),
				server.WithEngines(store),
				server.WithAnyOrigin(anyOrigin),
			)
			if cfg.Server.Metrics {
				opts = append(opts, server.WithMetrics(server.NewMetrics("voiceclone")))
			}

			var voices server.VoiceLister
			if vm := svc.Voices(); vm != nil {
				voices = vm
			}

			h := server.NewHandler(svc, voices, opts...)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return server.New(cfg.Server, h, logger).Start(ctx)
		},
	}

	cmd.Flags().StringVar(&engineName, "engine", "", "Saved engine to speak with by default")
	cmd.Flags().BoolVar(&anyOrigin, "any-origin", false, "Accept websocket connections from any origin")

	return cmd
}

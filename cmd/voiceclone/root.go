package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-voiceclone/internal/audio"
	"github.com/example/go-voiceclone/internal/config"
	"github.com/example/go-voiceclone/internal/engine"
	"github.com/example/go-voiceclone/internal/server"
)

var (
	cfgFile   string
	activeCfg *config.Config
)

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "voiceclone",
		Short:         "Voice-cloning text to speech",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}
			activeCfg = &loaded
			setupLogger(loaded.LogLevel)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newSynthCmd())
	cmd.AddCommand(newSpeakCmd())
	cmd.AddCommand(newTokensCmd())
	cmd.AddCommand(newEmbedCmd())
	cmd.AddCommand(newEngineCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newHealthCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newBenchCmd())

	return cmd
}

// setupLogger configures the process-wide slog default logger.
func setupLogger(levelStr string) {
	lvl, err := server.ParseLogLevel(levelStr)
	if err != nil {
		lvl = slog.LevelInfo
	}
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
}

func requireConfig() (config.Config, error) {
	if activeCfg == nil {
		return config.Config{}, errors.New("configuration not loaded")
	}
	return *activeCfg, nil
}

// openEngines opens the engine store. Selecting a voice checks that the
// reference decodes.
func openEngines(cfg config.Config) (*engine.Store, error) {
	return engine.NewStore(engine.Options{
		Dir:    cfg.Paths.EnginesDir,
		Logger: slog.Default(),
		Probe:  probeReference,
	})
}

func probeReference(_ context.Context, ref string) error {
	if strings.HasSuffix(strings.ToLower(ref), ".safetensors") {
		return nil
	}

	clip, err := audio.LoadFile(ref, 0)
	if err != nil {
		return err
	}
	if len(clip.Samples) == 0 {
		return fmt.Errorf("%s: no audio", ref)
	}
	return nil
}

func readText(text string, stdin io.Reader) (string, error) {
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	input := strings.TrimSpace(string(b))
	if input == "" {
		return "", errors.New("either provide --text or pipe text on stdin")
	}
	return input, nil
}

// engineReference returns the reference of a saved engine, "" for the base
// speaker or when name is empty.
func engineReference(store *engine.Store, name string) (string, error) {
	if name == "" {
		return "", nil
	}

	cfg, err := store.Load(name)
	if err != nil {
		return "", err
	}
	return cfg.Reference(), nil
}

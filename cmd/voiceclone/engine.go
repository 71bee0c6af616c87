package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/example/go-voiceclone/internal/engine"
)

func newEngineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "engine",
		Short: "Manage saved voice engines",
	}

	cmd.AddCommand(newEngineSaveCmd())
	cmd.AddCommand(newEngineBaseCmd())
	cmd.AddCommand(newEngineLoadCmd())
	cmd.AddCommand(newEngineListCmd())
	cmd.AddCommand(newEngineDeleteCmd())

	return cmd
}

func withStore(run func(cmd *cobra.Command, store *engine.Store, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := requireConfig()
		if err != nil {
			return err
		}

		store, err := openEngines(cfg)
		if err != nil {
			return err
		}

		return run(cmd, store, args)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newEngineSaveCmd() *cobra.Command {
	var (
		reference string
		voiceName string
		embedding string
	)

	cmd := &cobra.Command{
		Use:   "save <name>",
		Short: "Clone a voice from a reference clip and save it",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, store *engine.Store, args []string) error {
			if _, err := store.SelectVoice(cmd.Context(), reference, voiceName); err != nil {
				return err
			}
			if embedding != "" {
				if err := store.AttachEmbedding(embedding); err != nil {
					return err
				}
			}

			rec, err := store.Save(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		}),
	}

	cmd.Flags().StringVar(&reference, "reference", "", "Reference clip of the target speaker")
	cmd.Flags().StringVar(&voiceName, "voice-name", "", "Display name (default: reference file name)")
	cmd.Flags().StringVar(&embedding, "embedding", "", "Exported .safetensors embedding to use instead of extraction")
	_ = cmd.MarkFlagRequired("reference")

	return cmd
}

func newEngineBaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "base <name>",
		Short: "Save an engine that uses the base speaker",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, store *engine.Store, args []string) error {
			store.UseBaseSpeaker()

			rec, err := store.Save(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		}),
	}
}

func newEngineLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load <name>",
		Short: "Validate a saved engine and print its voice",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, store *engine.Store, args []string) error {
			cfg, err := store.Load(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), cfg)
		}),
	}
}

func newEngineListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved engines",
		Args:  cobra.NoArgs,
		RunE: withStore(func(cmd *cobra.Command, store *engine.Store, _ []string) error {
			names, err := store.List()
			if err != nil {
				return err
			}
			for _, name := range names {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		}),
	}
}

func newEngineDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a saved engine",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(_ *cobra.Command, store *engine.Store, args []string) error {
			return store.Delete(args[0])
		}),
	}
}

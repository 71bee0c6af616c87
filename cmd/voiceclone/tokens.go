package main

import (
	"encoding/json"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/example/go-voiceclone/internal/tts"
)

func newTokensCmd() *cobra.Command {
	var (
		text     string
		language string
	)

	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Print the symbols chosen for each sentence",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			input, err := readText(text, cmd.InOrStdin())
			if err != nil {
				return err
			}

			svc, err := tts.New(cfg, slog.Default())
			if err != nil {
				return err
			}
			defer svc.Close()

			reports, err := svc.Tokens(input, language)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(reports)
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to tokenize (if empty, read from stdin)")
	cmd.Flags().StringVar(&language, "language", "", "Language hint (empty uses config)")

	return cmd
}

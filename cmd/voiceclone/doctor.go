package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/example/go-voiceclone/internal/config"
	"github.com/example/go-voiceclone/internal/doctor"
	"github.com/example/go-voiceclone/internal/engine"
	"github.com/example/go-voiceclone/internal/tts"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run local runtime and model checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			result := doctor.Run(doctor.FromConfig(cfg, collectReferences(cfg)), out)

			if result.Failed() {
				for _, f := range result.Failures() {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(out, "doctor checks passed")

			return nil
		},
	}
}

// collectReferences gathers the manifest voices and the references of saved
// engines. Unresolvable manifest entries keep their raw path so the check
// reports them.
func collectReferences(cfg config.Config) []string {
	var paths []string

	if vm, err := tts.NewVoiceManager(cfg.Paths.VoicesManifest); err == nil {
		for _, v := range vm.ListVoices() {
			resolved, err := vm.ResolvePath(v.ID)
			if err != nil {
				resolved = filepath.Join(filepath.Dir(cfg.Paths.VoicesManifest), v.Path)
			}
			paths = append(paths, resolved)
		}
	}

	store, err := engine.NewStore(engine.Options{Dir: cfg.Paths.EnginesDir})
	if err != nil {
		return paths
	}
	names, err := store.List()
	if err != nil {
		return paths
	}
	for _, name := range names {
		rec, err := store.Read(name)
		if err != nil || rec.Config.IsBase() {
			continue
		}
		paths = append(paths, rec.Config.Reference())
	}

	return paths
}

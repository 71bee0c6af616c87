package native

import (
	"errors"
	"fmt"

	"github.com/example/go-voiceclone/internal/config"
)

// Hparams are the architecture dimensions the graph is built from.
type Hparams struct {
	NVocab                 int
	SpecChannels           int
	InterChannels          int
	HiddenChannels         int
	FilterChannels         int
	NHeads                 int
	NLayers                int
	KernelSize             int
	Resblock               string
	ResblockKernelSizes    []int
	ResblockDilationSizes  [][]int
	UpsampleRates          []int
	UpsampleInitialChannel int
	UpsampleKernelSizes    []int
	NSpeakers              int
	GinChannels            int

	SampleRate   int
	FilterLength int
	HopLength    int
	WinLength    int
}

// HparamsFromConfig resolves a model config against the vocabulary size the
// tokenizer will emit.
func HparamsFromConfig(mc *config.ModelConfig, vocab int) Hparams {
	m := mc.Model
	return Hparams{
		NVocab:                 vocab,
		SpecChannels:           mc.SpecChannelCount(),
		InterChannels:          m.InterChannels,
		HiddenChannels:         m.HiddenChannels,
		FilterChannels:         m.FilterChannels,
		NHeads:                 m.NHeads,
		NLayers:                m.NLayers,
		KernelSize:             m.KernelSize,
		Resblock:               m.Resblock,
		ResblockKernelSizes:    m.ResblockKernelSizes,
		ResblockDilationSizes:  m.ResblockDilationSizes,
		UpsampleRates:          m.UpsampleRates,
		UpsampleInitialChannel: m.UpsampleInitialChannel,
		UpsampleKernelSizes:    m.UpsampleKernelSizes,
		NSpeakers:              mc.SpeakerCount(),
		GinChannels:            mc.Gin(),
		SampleRate:             mc.SampleRate(),
		FilterLength:           mc.NFFT(),
		HopLength:              mc.Hop(),
		WinLength:              mc.Win(),
	}
}

func (hp Hparams) validate() error {
	switch {
	case hp.NVocab <= 0:
		return errors.New("native: n_vocab must be positive")
	case hp.HiddenChannels <= 0 || hp.InterChannels <= 0 || hp.FilterChannels <= 0:
		return errors.New("native: channel counts must be positive")
	case hp.InterChannels%2 != 0:
		return fmt.Errorf("native: inter_channels %d must be even", hp.InterChannels)
	case hp.NHeads <= 0 || hp.HiddenChannels%hp.NHeads != 0:
		return fmt.Errorf("native: hidden_channels %d not divisible by n_heads %d", hp.HiddenChannels, hp.NHeads)
	case len(hp.UpsampleRates) == 0 || len(hp.UpsampleRates) != len(hp.UpsampleKernelSizes):
		return errors.New("native: upsample_rates and upsample_kernel_sizes must be non-empty and equal length")
	case len(hp.ResblockKernelSizes) != len(hp.ResblockDilationSizes):
		return errors.New("native: resblock kernel and dilation lists differ in length")
	case hp.UpsampleInitialChannel>>len(hp.UpsampleRates) <= 0:
		return fmt.Errorf("native: upsample_initial_channel %d too small for %d stages", hp.UpsampleInitialChannel, len(hp.UpsampleRates))
	}

	return nil
}

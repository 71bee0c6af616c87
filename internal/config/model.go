package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/example/go-voiceclone/internal/symbols"
)

// ErrUnknownKey is returned by LoadModelConfig in strict mode when config.json
// carries a key no field recognizes.
var ErrUnknownKey = errors.New("config: unknown model config key")

// DataConfig is the "data" section of config.json.
type DataConfig struct {
	SamplingRate    int      `json:"sampling_rate"`
	FilterLength    int      `json:"filter_length"`
	HopLength       int      `json:"hop_length"`
	WinLength       int      `json:"win_length"`
	NMelChannels    int      `json:"n_mel_channels"`
	MelFmin         float64  `json:"mel_fmin"`
	MelFmax         *float64 `json:"mel_fmax"`
	MaxWavValue     float64  `json:"max_wav_value"`
	TextCleaners    []string `json:"text_cleaners"`
	AddBlank        bool     `json:"add_blank"`
	CleanedText     bool     `json:"cleaned_text"`
	NSpeakers       int      `json:"n_speakers"`
	TrainingFiles   string   `json:"training_files"`
	ValidationFiles string   `json:"validation_files"`
}

// ArchConfig is the "model" section of config.json.
type ArchConfig struct {
	InterChannels          int     `json:"inter_channels"`
	HiddenChannels         int     `json:"hidden_channels"`
	FilterChannels         int     `json:"filter_channels"`
	NHeads                 int     `json:"n_heads"`
	NLayers                int     `json:"n_layers"`
	KernelSize             int     `json:"kernel_size"`
	PDropout               float64 `json:"p_dropout"`
	Resblock               string  `json:"resblock"`
	ResblockKernelSizes    []int   `json:"resblock_kernel_sizes"`
	ResblockDilationSizes  [][]int `json:"resblock_dilation_sizes"`
	UpsampleRates          []int   `json:"upsample_rates"`
	UpsampleInitialChannel int     `json:"upsample_initial_channel"`
	UpsampleKernelSizes    []int   `json:"upsample_kernel_sizes"`
	GinChannels            int     `json:"gin_channels"`
	NLayersQ               int     `json:"n_layers_q"`
	UseSpectralNorm        bool    `json:"use_spectral_norm"`
	ZeroG                  bool    `json:"zero_g"`
}

// ModelConfig is the typed form of config.json. Top-level scalar fields are
// flattened overrides that take precedence over their data/model
// counterparts when present.
type ModelConfig struct {
	Data        DataConfig     `json:"data"`
	Model       ArchConfig     `json:"model"`
	Symbols     []string       `json:"symbols"`
	SymbolsList []string       `json:"symbols_list"`
	SymbolSet   string         `json:"symbol_set"`
	Speakers    map[string]int `json:"speakers"`
	Train       map[string]any `json:"train"`

	SamplingRate  *int     `json:"sampling_rate"`
	FilterLength  *int     `json:"filter_length"`
	HopLength     *int     `json:"hop_length"`
	WinLength     *int     `json:"win_length"`
	GinChannels   *int     `json:"gin_channels"`
	NSpeakers     *int     `json:"n_speakers"`
	SpecChannels  *int     `json:"spec_channels"`
	NVocab        *int     `json:"n_vocab"`
	SegmentSize   *int     `json:"segment_size"`
	AddBlank      *bool    `json:"add_blank"`
	ForceAddBlank bool     `json:"force_add_blank"`
	TextCleaners  []string `json:"text_cleaners"`

	// UnknownKeys lists dotted paths of keys that were ignored while decoding.
	UnknownKeys []string `json:"-"`
}

// DefaultModelConfig returns the OpenVoice base-speaker defaults.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Data: DataConfig{
			SamplingRate: 22050,
			FilterLength: 1024,
			HopLength:    256,
			WinLength:    1024,
			NMelChannels: 80,
			MaxWavValue:  32768,
			TextCleaners: []string{"cjke_cleaners2"},
			AddBlank:     true,
			CleanedText:  true,
			NSpeakers:    1,
		},
		Model: ArchConfig{
			InterChannels:          192,
			HiddenChannels:         192,
			FilterChannels:         768,
			NHeads:                 2,
			NLayers:                6,
			KernelSize:             3,
			PDropout:               0.1,
			Resblock:               "1",
			ResblockKernelSizes:    []int{3, 7, 11},
			ResblockDilationSizes:  [][]int{{1, 3, 5}, {1, 3, 5}, {1, 3, 5}},
			UpsampleRates:          []int{8, 8, 2, 2},
			UpsampleInitialChannel: 512,
			UpsampleKernelSizes:    []int{16, 16, 4, 4},
			GinChannels:            256,
			NLayersQ:               3,
		},
		Speakers: map[string]int{},
	}
}

// ParseModelConfig decodes config.json bytes on top of DefaultModelConfig.
// Unknown keys are recorded in UnknownKeys; in strict mode they fail the
// decode with ErrUnknownKey.
func ParseModelConfig(raw []byte, strict bool) (*ModelConfig, error) {
	cfg := DefaultModelConfig()
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("parse model config: %w", err)
	}

	unknown := unknownKeys("", top, reflect.TypeOf(ModelConfig{}))
	for _, section := range []struct {
		name string
		typ  reflect.Type
	}{
		{"data", reflect.TypeOf(DataConfig{})},
		{"model", reflect.TypeOf(ArchConfig{})},
	} {
		body, ok := top[section.name]
		if !ok {
			continue
		}
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(body, &inner); err != nil {
			return nil, fmt.Errorf("parse model config %s section: %w", section.name, err)
		}
		unknown = append(unknown, unknownKeys(section.name+".", inner, section.typ)...)
	}
	sort.Strings(unknown)

	if strict && len(unknown) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, strings.Join(unknown, ", "))
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode model config: %w", err)
	}
	cfg.UnknownKeys = unknown
	if cfg.Speakers == nil {
		cfg.Speakers = map[string]int{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadModelConfig reads and decodes config.json. Ignored keys are logged in
// lenient mode.
func LoadModelConfig(path string, strict bool, logger *slog.Logger) (*ModelConfig, error) {
	if logger == nil {
		logger = slog.Default()
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model config %q: %w", path, err)
	}

	cfg, err := ParseModelConfig(raw, strict)
	if err != nil {
		return nil, fmt.Errorf("model config %q: %w", path, err)
	}

	if len(cfg.UnknownKeys) > 0 {
		logger.Warn("ignoring unknown model config keys",
			slog.String("path", path),
			slog.Int("count", len(cfg.UnknownKeys)),
			slog.String("keys", strings.Join(cfg.UnknownKeys, ",")),
		)
	}

	return cfg, nil
}

func unknownKeys(prefix string, obj map[string]json.RawMessage, typ reflect.Type) []string {
	known := jsonFieldNames(typ)
	var out []string
	for k := range obj {
		if !known[k] {
			out = append(out, prefix+k)
		}
	}
	return out
}

func jsonFieldNames(typ reflect.Type) map[string]bool {
	names := make(map[string]bool, typ.NumField())
	for i := range typ.NumField() {
		tag := typ.Field(i).Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if name == "" || name == "-" {
			continue
		}
		names[name] = true
	}
	return names
}

// Validate checks the structural constraints the model builder relies on.
func (c *ModelConfig) Validate() error {
	m := c.Model
	switch {
	case c.SampleRate() <= 0:
		return errors.New("model config: sampling_rate must be positive")
	case c.NFFT() <= 0 || c.Hop() <= 0 || c.Win() <= 0:
		return errors.New("model config: filter_length, hop_length and win_length must be positive")
	case c.Win() > c.NFFT():
		return fmt.Errorf("model config: win_length %d exceeds filter_length %d", c.Win(), c.NFFT())
	case m.HiddenChannels <= 0 || m.InterChannels <= 0 || m.FilterChannels <= 0:
		return errors.New("model config: channel counts must be positive")
	case m.NHeads <= 0 || m.HiddenChannels%m.NHeads != 0:
		return fmt.Errorf("model config: hidden_channels %d not divisible by n_heads %d", m.HiddenChannels, m.NHeads)
	case len(m.UpsampleRates) != len(m.UpsampleKernelSizes):
		return fmt.Errorf("model config: %d upsample_rates but %d upsample_kernel_sizes", len(m.UpsampleRates), len(m.UpsampleKernelSizes))
	case len(m.ResblockKernelSizes) != len(m.ResblockDilationSizes):
		return fmt.Errorf("model config: %d resblock_kernel_sizes but %d resblock_dilation_sizes", len(m.ResblockKernelSizes), len(m.ResblockDilationSizes))
	case m.Resblock != "1" && m.Resblock != "2":
		return fmt.Errorf("model config: resblock %q (expected \"1\" or \"2\")", m.Resblock)
	}
	return nil
}

func (c *ModelConfig) SampleRate() int { return pick(c.SamplingRate, c.Data.SamplingRate) }
func (c *ModelConfig) NFFT() int       { return pick(c.FilterLength, c.Data.FilterLength) }
func (c *ModelConfig) Hop() int        { return pick(c.HopLength, c.Data.HopLength) }
func (c *ModelConfig) Win() int        { return pick(c.WinLength, c.Data.WinLength) }
func (c *ModelConfig) Gin() int        { return pick(c.GinChannels, c.Model.GinChannels) }
func (c *ModelConfig) SpeakerCount() int {
	if c.NSpeakers != nil {
		return max(*c.NSpeakers, 0)
	}
	return c.Data.NSpeakers
}

// SpecBins is the one-sided spectrum size n_fft/2+1.
func (c *ModelConfig) SpecBins() int { return c.NFFT()/2 + 1 }

// SpecChannelCount resolves spec_channels: the top-level override when set,
// otherwise the one-sided spectrum size. The result never exceeds SpecBins.
func (c *ModelConfig) SpecChannelCount() int {
	n := c.SpecBins()
	if c.SpecChannels != nil && *c.SpecChannels > 0 {
		n = *c.SpecChannels
	}
	return min(n, c.SpecBins())
}

func (c *ModelConfig) SegmentFrames() int {
	if c.SegmentSize != nil && *c.SegmentSize > 0 {
		return *c.SegmentSize
	}
	return 32
}

// UseBlank reports whether blank interspersion is requested anywhere in the
// config.
func (c *ModelConfig) UseBlank() bool {
	return c.Data.AddBlank || (c.AddBlank != nil && *c.AddBlank) || c.ForceAddBlank
}

// Cleaners returns the text cleaner names, preferring the top-level override.
func (c *ModelConfig) Cleaners() []string {
	if len(c.TextCleaners) > 0 {
		return c.TextCleaners
	}
	if len(c.Data.TextCleaners) > 0 {
		return c.Data.TextCleaners
	}
	return []string{"cjke_cleaners2"}
}

// SymbolTable builds the vocabulary: an explicit symbols list, then
// symbols_list, then the named symbol_set (or the default table).
func (c *ModelConfig) SymbolTable() (*symbols.Table, error) {
	switch {
	case len(c.Symbols) > 0:
		return symbols.New(c.Symbols)
	case len(c.SymbolsList) > 0:
		return symbols.New(c.SymbolsList)
	default:
		return symbols.ByName(c.SymbolSet)
	}
}

// VocabSize is n_vocab when overridden, otherwise the table length.
func (c *ModelConfig) VocabSize(table *symbols.Table) int {
	if c.NVocab != nil && *c.NVocab > 0 {
		return *c.NVocab
	}
	return table.Len()
}

// SpeakerID maps a style to a speaker index: the style key, then "default",
// then 0.
func (c *ModelConfig) SpeakerID(style string) int {
	if id, ok := c.Speakers[style]; ok {
		return id
	}
	if id, ok := c.Speakers["default"]; ok {
		return id
	}
	return 0
}

func pick(override *int, base int) int {
	if override != nil && *override > 0 {
		return *override
	}
	return base
}

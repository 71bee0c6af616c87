package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Paths     PathsConfig     `mapstructure:"paths"`
	Runtime   RuntimeConfig   `mapstructure:"runtime"`
	Synthesis SynthesisConfig `mapstructure:"synthesis"`
	Text      TextConfig      `mapstructure:"text"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Facade    FacadeConfig    `mapstructure:"facade"`
	Server    ServerConfig    `mapstructure:"server"`
	LogLevel  string          `mapstructure:"log_level"`
}

type PathsConfig struct {
	ModelConfig    string `mapstructure:"model_config"`
	Checkpoint     string `mapstructure:"checkpoint"`
	EnginesDir     string `mapstructure:"engines_dir"`
	VoicesManifest string `mapstructure:"voices_manifest"`
	RefEncoderONNX string `mapstructure:"ref_encoder_onnx"`
}

type RuntimeConfig struct {
	Threads        int    `mapstructure:"threads"`
	ConvWorkers    int    `mapstructure:"conv_workers"`
	ORTLibraryPath string `mapstructure:"ort_library_path"`
}

// SynthesisConfig carries request defaults and the tuning constants of the
// stitcher and prosody heuristics.
type SynthesisConfig struct {
	Language          string  `mapstructure:"language"`
	Style             string  `mapstructure:"style"`
	LengthScale       float64 `mapstructure:"length_scale"`
	NoiseScale        float64 `mapstructure:"noise_scale"`
	NoiseScaleW       float64 `mapstructure:"noise_scale_w"`
	ClarityMode       bool    `mapstructure:"clarity_mode"`
	Prosody           bool    `mapstructure:"prosody"`
	Seed              int64   `mapstructure:"seed"`
	SentencePause     float64 `mapstructure:"sentence_pause"`
	SegmentPeak       float64 `mapstructure:"segment_peak"`
	TargetRMS         float64 `mapstructure:"target_rms"`
	PreEmphasis       float64 `mapstructure:"pre_emphasis"`
	FinalPeak         float64 `mapstructure:"final_peak"`
	RetryFactor       float64 `mapstructure:"retry_factor"`
	RetryCeiling      float64 `mapstructure:"retry_ceiling"`
	StrictModelConfig bool    `mapstructure:"strict_model_config"`
}

type TextConfig struct {
	Phonemizer   bool   `mapstructure:"phonemizer"`
	EspeakBinary string `mapstructure:"espeak_binary"`
	LexiconPath  string `mapstructure:"lexicon_path"`
}

type EmbeddingConfig struct {
	Mode      string `mapstructure:"mode"`
	CacheSize int    `mapstructure:"cache_size"`
}

type FacadeConfig struct {
	QueueSize       int     `mapstructure:"queue_size"`
	OfflineFallback bool    `mapstructure:"offline_fallback"`
	PlayerCommand   string  `mapstructure:"player_command"`
	OfflineVoice    string  `mapstructure:"offline_voice"`
	OfflineCLIPath  string  `mapstructure:"offline_cli_path"`
	Volume          float64 `mapstructure:"volume"`
	Rate            int     `mapstructure:"rate"`
	TruncateChars   int     `mapstructure:"truncate_chars"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	Workers         int    `mapstructure:"workers"`
	MaxTextBytes    int    `mapstructure:"max_text_bytes"`
	RequestTimeout  int    `mapstructure:"request_timeout"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
	Metrics         bool   `mapstructure:"metrics"`
	// ReferenceDir is the only directory HTTP clients may name reference
	// files from. Empty disables raw references over HTTP.
	ReferenceDir string `mapstructure:"reference_dir"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			ModelConfig:    "models/config.json",
			Checkpoint:     "models/checkpoint.safetensors",
			EnginesDir:     "engines",
			VoicesManifest: "voices/manifest.json",
			RefEncoderONNX: "",
		},
		Runtime: RuntimeConfig{
			Threads:        4,
			ConvWorkers:    1,
			ORTLibraryPath: "",
		},
		Synthesis: SynthesisConfig{
			Language:      "en",
			Style:         "default",
			LengthScale:   1.05,
			NoiseScale:    0.667,
			NoiseScaleW:   0.9,
			ClarityMode:   true,
			Prosody:       true,
			Seed:          0,
			SentencePause: 0.05,
			SegmentPeak:   0.89,
			TargetRMS:     0.08,
			PreEmphasis:   0.97,
			FinalPeak:     0.95,
			RetryFactor:   1.15,
			RetryCeiling:  1.5,
		},
		Text: TextConfig{
			Phonemizer:   true,
			EspeakBinary: "espeak-ng",
		},
		Embedding: EmbeddingConfig{
			Mode:      EmbeddingAuto,
			CacheSize: 64,
		},
		Facade: FacadeConfig{
			QueueSize:       4,
			OfflineFallback: true,
			PlayerCommand:   "",
			OfflineVoice:    "",
			OfflineCLIPath:  "",
			Volume:          1.0,
			Rate:            180,
			TruncateChars:   120,
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			Workers:         1,
			MaxTextBytes:    4096,
			RequestTimeout:  60,
			ShutdownTimeout: 30,
			Metrics:         true,
		},
		LogLevel: "info",
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("paths-model-config", defaults.Paths.ModelConfig, "Path to model config.json")
	fs.String("paths-checkpoint", defaults.Paths.Checkpoint, "Path to .safetensors checkpoint")
	fs.String("paths-engines-dir", defaults.Paths.EnginesDir, "Directory holding saved voice engines")
	fs.String("paths-voices-manifest", defaults.Paths.VoicesManifest, "Path to voices manifest.json")
	fs.String("paths-ref-encoder-onnx", defaults.Paths.RefEncoderONNX, "Optional ONNX reference encoder graph")
	fs.Int("runtime-threads", defaults.Runtime.Threads, "Tensor kernel worker count")
	fs.Int("runtime-conv-workers", defaults.Runtime.ConvWorkers, "Convolution worker count")
	fs.String("runtime-ort-library-path", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library")
	fs.String("ort-lib", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library (alias for --runtime-ort-library-path)")
	fs.String("language", defaults.Synthesis.Language, "Synthesis language code")
	fs.String("style", defaults.Synthesis.Style, "Speaker style key")
	fs.Float64("length-scale", defaults.Synthesis.LengthScale, "Duration multiplier (>1 is slower)")
	fs.Float64("noise-scale", defaults.Synthesis.NoiseScale, "Latent noise scale")
	fs.Float64("noise-scale-w", defaults.Synthesis.NoiseScaleW, "Duration noise scale")
	fs.Bool("clarity-mode", defaults.Synthesis.ClarityMode, "Use clarity inference parameters and segment post-processing")
	fs.Bool("prosody", defaults.Synthesis.Prosody, "Apply vowel-ratio and duration-bias prosody heuristics")
	fs.Int64("seed", defaults.Synthesis.Seed, "Noise seed (0 picks a fixed default)")
	fs.Bool("strict-model-config", defaults.Synthesis.StrictModelConfig, "Reject unknown keys in config.json")
	fs.Bool("text-phonemizer", defaults.Text.Phonemizer, "Use espeak-ng as the first tokenizer stage when available")
	fs.String("text-espeak-binary", defaults.Text.EspeakBinary, "espeak-ng executable")
	fs.String("text-lexicon-path", defaults.Text.LexiconPath, "Optional CMU-style pronunciation lexicon")
	fs.String("embedding-mode", defaults.Embedding.Mode, "Reference embedding mode (auto|trained|onnx|pseudo|legacy)")
	fs.Int("embedding-cache-size", defaults.Embedding.CacheSize, "Reference embeddings kept in memory")
	fs.Int("facade-queue-size", defaults.Facade.QueueSize, "Pending speak requests before rejecting")
	fs.Bool("facade-offline-fallback", defaults.Facade.OfflineFallback, "Fall back to the offline voice when synthesis fails")
	fs.String("facade-player-command", defaults.Facade.PlayerCommand, "External WAV player command (empty autodetects)")
	fs.String("facade-offline-voice", defaults.Facade.OfflineVoice, "Offline pocket-tts voice")
	fs.String("facade-offline-cli-path", defaults.Facade.OfflineCLIPath, "Path to the offline pocket-tts executable")
	fs.Float64("facade-volume", defaults.Facade.Volume, "Offline voice volume in [0,1]")
	fs.Int("facade-rate", defaults.Facade.Rate, "Offline voice rate in words per minute")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("server-workers", defaults.Server.Workers, "Concurrent /v1/tts syntheses")
	fs.Int("server-max-text-bytes", defaults.Server.MaxTextBytes, "Maximum request text size")
	fs.Int("server-request-timeout", defaults.Server.RequestTimeout, "Per-request synthesis timeout in seconds")
	fs.Int("server-shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown timeout in seconds")
	fs.Bool("server-metrics", defaults.Server.Metrics, "Expose Prometheus metrics at /metrics")
	fs.String("server-reference-dir", defaults.Server.ReferenceDir, "Directory HTTP requests may take reference clips from (empty: voice ids only)")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("VOICECLONE")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("runtime.ort_library_path", "VOICECLONE_ORT_LIB", "ORT_LIBRARY_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind ort env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("voiceclone")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	mode, err := NormalizeEmbeddingMode(cfg.Embedding.Mode)
	if err != nil {
		return Config{}, err
	}
	cfg.Embedding.Mode = mode

	cfg.Facade.Volume = min(max(cfg.Facade.Volume, 0), 1)

	return cfg, nil
}

// keyBindings pairs each nested config key with its flag spelling.
var keyBindings = [][2]string{
	{"paths.model_config", "paths-model-config"},
	{"paths.checkpoint", "paths-checkpoint"},
	{"paths.engines_dir", "paths-engines-dir"},
	{"paths.voices_manifest", "paths-voices-manifest"},
	{"paths.ref_encoder_onnx", "paths-ref-encoder-onnx"},
	{"runtime.threads", "runtime-threads"},
	{"runtime.conv_workers", "runtime-conv-workers"},
	{"runtime.ort_library_path", "runtime-ort-library-path"},
	{"runtime.ort_library_path", "ort-lib"},
	{"synthesis.language", "language"},
	{"synthesis.style", "style"},
	{"synthesis.length_scale", "length-scale"},
	{"synthesis.noise_scale", "noise-scale"},
	{"synthesis.noise_scale_w", "noise-scale-w"},
	{"synthesis.clarity_mode", "clarity-mode"},
	{"synthesis.prosody", "prosody"},
	{"synthesis.seed", "seed"},
	{"synthesis.strict_model_config", "strict-model-config"},
	{"text.phonemizer", "text-phonemizer"},
	{"text.espeak_binary", "text-espeak-binary"},
	{"text.lexicon_path", "text-lexicon-path"},
	{"embedding.mode", "embedding-mode"},
	{"embedding.cache_size", "embedding-cache-size"},
	{"facade.queue_size", "facade-queue-size"},
	{"facade.offline_fallback", "facade-offline-fallback"},
	{"facade.player_command", "facade-player-command"},
	{"facade.offline_voice", "facade-offline-voice"},
	{"facade.offline_cli_path", "facade-offline-cli-path"},
	{"facade.volume", "facade-volume"},
	{"facade.rate", "facade-rate"},
	{"server.listen_addr", "server-listen-addr"},
	{"server.workers", "server-workers"},
	{"server.max_text_bytes", "server-max-text-bytes"},
	{"server.request_timeout", "server-request-timeout"},
	{"server.shutdown_timeout", "server-shutdown-timeout"},
	{"server.metrics", "server-metrics"},
	{"server.reference_dir", "server-reference-dir"},
	{"log_level", "log-level"},
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.model_config", c.Paths.ModelConfig)
	v.SetDefault("paths.checkpoint", c.Paths.Checkpoint)
	v.SetDefault("paths.engines_dir", c.Paths.EnginesDir)
	v.SetDefault("paths.voices_manifest", c.Paths.VoicesManifest)
	v.SetDefault("paths.ref_encoder_onnx", c.Paths.RefEncoderONNX)
	v.SetDefault("runtime.threads", c.Runtime.Threads)
	v.SetDefault("runtime.conv_workers", c.Runtime.ConvWorkers)
	v.SetDefault("runtime.ort_library_path", c.Runtime.ORTLibraryPath)
	v.SetDefault("synthesis.language", c.Synthesis.Language)
	v.SetDefault("synthesis.style", c.Synthesis.Style)
	v.SetDefault("synthesis.length_scale", c.Synthesis.LengthScale)
	v.SetDefault("synthesis.noise_scale", c.Synthesis.NoiseScale)
	v.SetDefault("synthesis.noise_scale_w", c.Synthesis.NoiseScaleW)
	v.SetDefault("synthesis.clarity_mode", c.Synthesis.ClarityMode)
	v.SetDefault("synthesis.prosody", c.Synthesis.Prosody)
	v.SetDefault("synthesis.seed", c.Synthesis.Seed)
	v.SetDefault("synthesis.sentence_pause", c.Synthesis.SentencePause)
	v.SetDefault("synthesis.segment_peak", c.Synthesis.SegmentPeak)
	v.SetDefault("synthesis.target_rms", c.Synthesis.TargetRMS)
	v.SetDefault("synthesis.pre_emphasis", c.Synthesis.PreEmphasis)
	v.SetDefault("synthesis.final_peak", c.Synthesis.FinalPeak)
	v.SetDefault("synthesis.retry_factor", c.Synthesis.RetryFactor)
	v.SetDefault("synthesis.retry_ceiling", c.Synthesis.RetryCeiling)
	v.SetDefault("synthesis.strict_model_config", c.Synthesis.StrictModelConfig)
	v.SetDefault("text.phonemizer", c.Text.Phonemizer)
	v.SetDefault("text.espeak_binary", c.Text.EspeakBinary)
	v.SetDefault("text.lexicon_path", c.Text.LexiconPath)
	v.SetDefault("embedding.mode", c.Embedding.Mode)
	v.SetDefault("embedding.cache_size", c.Embedding.CacheSize)
	v.SetDefault("facade.queue_size", c.Facade.QueueSize)
	v.SetDefault("facade.offline_fallback", c.Facade.OfflineFallback)
	v.SetDefault("facade.player_command", c.Facade.PlayerCommand)
	v.SetDefault("facade.offline_voice", c.Facade.OfflineVoice)
	v.SetDefault("facade.offline_cli_path", c.Facade.OfflineCLIPath)
	v.SetDefault("facade.volume", c.Facade.Volume)
	v.SetDefault("facade.rate", c.Facade.Rate)
	v.SetDefault("facade.truncate_chars", c.Facade.TruncateChars)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("server.metrics", c.Server.Metrics)
	v.SetDefault("server.reference_dir", c.Server.ReferenceDir)
	v.SetDefault("log_level", c.LogLevel)
}

// bindFlags binds each flag to its nested key so file and env values keep
// their precedence over unchanged flag defaults. When two flags share a key,
// the one set on the command line wins.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	bound := make(map[string]bool, len(keyBindings))
	for _, b := range keyBindings {
		key, name := b[0], b[1]
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if bound[key] && !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
		bound[key] = true
	}
	return nil
}

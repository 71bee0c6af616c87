package facade

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	pockettts "github.com/MeKo-Christian/go-call-pocket-tts"

	"github.com/example/go-voiceclone/internal/audio"
)

const (
	// DefaultRate is the offline speaking rate in words per minute.
	DefaultRate = 180
	// DefaultTruncateChars bounds the text shown for offline replies.
	DefaultTruncateChars = 120
)

// Prosody carries the offline voice controls.
type Prosody struct {
	Volume float64
	Rate   int
}

// OfflineVoice speaks text without the neural pipeline and returns the
// text it showed.
type OfflineVoice interface {
	Say(ctx context.Context, text string, p Prosody) (string, error)
}

// Truncate shortens s to at most limit runes, ending with an ellipsis.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}

	runes := []rune(s)
	cut := strings.TrimRightFunc(string(runes[:limit-1]), func(r rune) bool { return r == ' ' })

	return cut + "…"
}

// CannedVoice prints instead of speaking. Known phrases map to fixed
// replies, everything else is truncated.
type CannedVoice struct {
	limit   int
	phrases map[string]string
	logger  *slog.Logger
}

var defaultPhrases = map[string]string{
	"hello":     "Hello! My voice is offline right now, but I can still chat.",
	"hi":        "Hi! My voice is offline right now, but I can still chat.",
	"goodbye":   "Goodbye!",
	"thank you": "You're welcome!",
}

func NewCannedVoice(limit int, logger *slog.Logger) *CannedVoice {
	if limit <= 0 {
		limit = DefaultTruncateChars
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &CannedVoice{limit: limit, phrases: defaultPhrases, logger: logger}
}

func (c *CannedVoice) Say(ctx context.Context, text string, _ Prosody) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := strings.ToLower(strings.TrimRight(strings.TrimSpace(text), ".!?"))
	shown, ok := c.phrases[key]
	if !ok {
		shown = Truncate(strings.TrimSpace(text), c.limit)
	}

	c.logger.Info("offline reply", slog.String("text", shown))

	return shown, nil
}

// PocketVoice speaks through the pocket-tts CLI and plays the result.
type PocketVoice struct {
	client *pockettts.Client
	player Player
	limit  int
}

type PocketOptions struct {
	ExecutablePath string
	// Voice is a built-in pocket-tts voice or an exported .safetensors file.
	Voice     string
	Player    Player
	Truncate  int
	LogWriter io.Writer
}

// NewPocketVoice fails when the pocket-tts executable cannot be found.
func NewPocketVoice(opts PocketOptions) (*PocketVoice, error) {
	if err := pockettts.Preflight(opts.ExecutablePath); err != nil {
		return nil, err
	}

	player := opts.Player
	if player == nil {
		player = DiscardPlayer{}
	}

	limit := opts.Truncate
	if limit <= 0 {
		limit = DefaultTruncateChars
	}

	client := pockettts.NewClient(pockettts.Options{
		Voice:          opts.Voice,
		Quiet:          true,
		ExecutablePath: opts.ExecutablePath,
		LogWriter:      opts.LogWriter,
		Concurrency:    1,
	})

	return &PocketVoice{client: client, player: player, limit: limit}, nil
}

func (v *PocketVoice) Say(ctx context.Context, text string, p Prosody) (string, error) {
	shown := Truncate(strings.TrimSpace(text), v.limit)
	if shown == "" {
		return "", errors.New("offline voice: empty text")
	}

	res, err := v.client.Generate(ctx, text)
	if err != nil {
		return shown, fmt.Errorf("offline voice: %w", err)
	}

	clip, err := audio.DecodeWAV(res.Data)
	if err != nil {
		return shown, fmt.Errorf("offline voice: %w", err)
	}

	samples := applyProsody(clip.Samples, clip.SampleRate, p)

	if err := v.player.Play(ctx, samples, clip.SampleRate); err != nil {
		return shown, fmt.Errorf("offline voice: %w", err)
	}

	return shown, nil
}

// applyProsody scales by volume and changes speed by resampling against
// DefaultRate.
func applyProsody(samples []float32, sampleRate int, p Prosody) []float32 {
	rate := p.Rate
	if rate <= 0 {
		rate = DefaultRate
	}

	out := samples
	if rate != DefaultRate && sampleRate > 0 {
		// Fewer samples at the same rate play faster.
		target := sampleRate * DefaultRate / rate
		out = audio.Resample(samples, sampleRate, target)
	}

	return scale(out, min(max(p.Volume, 0), 1))
}

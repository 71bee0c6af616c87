package facade

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/example/go-voiceclone/internal/audio"
)

// DiscardPlayer drops audio. Useful headless and in tests.
type DiscardPlayer struct{}

func (DiscardPlayer) Play(ctx context.Context, _ []float32, _ int) error {
	return ctx.Err()
}

// knownPlayers are tried in order when no command is configured.
var knownPlayers = [][]string{
	{"paplay"},
	{"aplay", "-q"},
	{"afplay"},
	{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet"},
}

// CommandPlayer writes each clip to a temporary WAV file and runs an
// external player on it.
type CommandPlayer struct {
	argv []string
}

// NewCommandPlayer parses command ("aplay -q"). An empty command picks the
// first known player found on PATH.
func NewCommandPlayer(command string) (*CommandPlayer, error) {
	if fields := strings.Fields(command); len(fields) > 0 {
		if _, err := exec.LookPath(fields[0]); err != nil {
			return nil, fmt.Errorf("player %q: %w", fields[0], err)
		}
		return &CommandPlayer{argv: fields}, nil
	}

	for _, argv := range knownPlayers {
		if _, err := exec.LookPath(argv[0]); err == nil {
			return &CommandPlayer{argv: argv}, nil
		}
	}

	return nil, errors.New("no audio player found on PATH")
}

func (p *CommandPlayer) Command() string { return strings.Join(p.argv, " ") }

func (p *CommandPlayer) Play(ctx context.Context, samples []float32, sampleRate int) error {
	if len(samples) == 0 {
		return nil
	}

	wav, err := audio.EncodeWAV(samples, sampleRate)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp("", "voiceclone-*.wav")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(wav); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	args := append(append([]string(nil), p.argv[1:]...), tmp.Name())
	cmd := exec.CommandContext(ctx, p.argv[0], args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", p.argv[0], err, msg)
		}
		return fmt.Errorf("%s: %w", p.argv[0], err)
	}

	return nil
}

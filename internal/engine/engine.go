// Package engine persists named voice engines: which reference clip (or
// none, for the base speaker) a voice was cloned from, one JSON record per
// engine.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned for unknown engine names and missing
	// reference clips.
	ErrNotFound = errors.New("engine: not found")
	// ErrNoVoice is returned when saving before any voice was selected.
	ErrNoVoice = errors.New("engine: no voice selected")
	// ErrInvalidName rejects names that are empty or would escape the
	// engines directory.
	ErrInvalidName = errors.New("engine: invalid name")
)

// RecordVersion is written into every saved record.
const RecordVersion = "1.0"

// Engine types.
const (
	TypeNeural  = "neural"
	TypeBase    = "neural_base"
	TypeOffline = "offline"
)

const baseVoiceName = "Base Speaker"

// VoiceConfig is the active voice selection.
type VoiceConfig struct {
	// ReferenceAudio is null for the base speaker.
	ReferenceAudio *string `json:"reference_audio"`
	VoiceName      string  `json:"voice_name"`
	Timestamp      int64   `json:"timestamp"`
	EngineType     string  `json:"engine_type"`
	// EmbeddingPath optionally points at an exported embedding that replaces
	// extraction from ReferenceAudio.
	EmbeddingPath string `json:"embedding_path,omitempty"`
}

// Reference returns the path synthesis should condition on: the exported
// embedding when it still exists, otherwise the reference clip, otherwise
// "" for the base speaker.
func (c VoiceConfig) Reference() string {
	if c.EmbeddingPath != "" {
		if _, err := os.Stat(c.EmbeddingPath); err == nil {
			return c.EmbeddingPath
		}
	}
	if c.ReferenceAudio != nil {
		return *c.ReferenceAudio
	}
	return ""
}

// IsBase reports whether c selects the base speaker.
func (c VoiceConfig) IsBase() bool { return c.ReferenceAudio == nil }

// Record is the on-disk form of a saved engine.
type Record struct {
	Name    string      `json:"name"`
	Config  VoiceConfig `json:"config"`
	Version string      `json:"version"`
	SavedAt int64       `json:"saved_at"`
}

// ProbeFunc test-synthesizes with a freshly selected reference.
type ProbeFunc func(ctx context.Context, reference string) error

type Options struct {
	Dir    string
	Logger *slog.Logger
	// Probe, when set, must succeed before a reference becomes current.
	Probe ProbeFunc
	// EngineType labels clips selected through SelectVoice.
	EngineType string
	Now        func() time.Time
}

// Store keeps the current voice selection and the saved engines directory.
// It is safe for concurrent use.
type Store struct {
	dir        string
	logger     *slog.Logger
	probe      ProbeFunc
	engineType string
	now        func() time.Time

	mu      sync.RWMutex
	current *VoiceConfig
}

func NewStore(opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, errors.New("engine: directory is required")
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("engine: create directory: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	engineType := opts.EngineType
	if engineType == "" {
		engineType = TypeNeural
	}

	return &Store{dir: opts.Dir, logger: logger, probe: opts.Probe, engineType: engineType, now: now}, nil
}

func (s *Store) Dir() string { return s.dir }

// SelectVoice makes referencePath the current voice. voiceName defaults to
// the file name.
func (s *Store) SelectVoice(ctx context.Context, referencePath, voiceName string) (VoiceConfig, error) {
	abs, err := filepath.Abs(referencePath)
	if err != nil {
		return VoiceConfig{}, fmt.Errorf("engine: resolve reference: %w", err)
	}

	if _, err := os.Stat(abs); err != nil {
		return VoiceConfig{}, fmt.Errorf("%w: reference audio %s", ErrNotFound, abs)
	}

	if s.probe != nil {
		if err := s.probe(ctx, abs); err != nil {
			return VoiceConfig{}, fmt.Errorf("engine: voice test failed: %w", err)
		}
	}

	if strings.TrimSpace(voiceName) == "" {
		voiceName = filepath.Base(abs)
	}

	cfg := VoiceConfig{
		ReferenceAudio: &abs,
		VoiceName:      voiceName,
		Timestamp:      s.now().Unix(),
		EngineType:     s.engineType,
	}
	s.setCurrent(cfg)

	s.logger.Info("voice selected", slog.String("voice", voiceName), slog.String("reference", abs))

	return cfg, nil
}

// AttachEmbedding records an exported embedding on the current voice.
func (s *Store) AttachEmbedding(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return ErrNoVoice
	}
	s.current.EmbeddingPath = path

	return nil
}

// UseBaseSpeaker switches to synthesis without a reference clip.
func (s *Store) UseBaseSpeaker() VoiceConfig {
	cfg := VoiceConfig{
		VoiceName:  baseVoiceName,
		Timestamp:  s.now().Unix(),
		EngineType: TypeBase,
	}
	s.setCurrent(cfg)

	s.logger.Info("switched to base speaker")

	return cfg
}

// Current returns the active voice, if any.
func (s *Store) Current() (VoiceConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return VoiceConfig{}, false
	}

	return *s.current, true
}

func (s *Store) setCurrent(cfg VoiceConfig) {
	s.mu.Lock()
	s.current = &cfg
	s.mu.Unlock()
}

func (s *Store) path(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	return filepath.Join(s.dir, name+".json"), nil
}

// Save writes the current voice as name, replacing an existing record.
func (s *Store) Save(name string) (Record, error) {
	path, err := s.path(name)
	if err != nil {
		return Record{}, err
	}

	cfg, ok := s.Current()
	if !ok {
		return Record{}, ErrNoVoice
	}

	rec := Record{
		Name:    strings.TrimSpace(name),
		Config:  cfg,
		Version: RecordVersion,
		SavedAt: s.now().Unix(),
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return Record{}, fmt.Errorf("engine: marshal record: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".engine-*.json")
	if err != nil {
		return Record{}, fmt.Errorf("engine: save %q: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return Record{}, fmt.Errorf("engine: save %q: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return Record{}, fmt.Errorf("engine: save %q: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return Record{}, fmt.Errorf("engine: save %q: %w", name, err)
	}

	s.logger.Info("engine saved", slog.String("name", rec.Name), slog.String("path", path))

	return rec, nil
}

// Read returns a saved record without activating it.
func (s *Store) Read(name string) (Record, error) {
	path, err := s.path(name)
	if err != nil {
		return Record{}, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, fmt.Errorf("%w: engine %q", ErrNotFound, name)
	}
	if err != nil {
		return Record{}, fmt.Errorf("engine: read %q: %w", name, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("engine: decode %q: %w", name, err)
	}

	return rec, nil
}

// Load activates a saved engine. A record whose reference clip has since
// disappeared is rejected.
func (s *Store) Load(name string) (VoiceConfig, error) {
	rec, err := s.Read(name)
	if err != nil {
		return VoiceConfig{}, err
	}

	if ref := rec.Config.ReferenceAudio; ref != nil {
		if _, err := os.Stat(*ref); err != nil {
			return VoiceConfig{}, fmt.Errorf("%w: reference audio %s", ErrNotFound, *ref)
		}
	}

	s.setCurrent(rec.Config)
	s.logger.Info("engine loaded", slog.String("name", name), slog.String("voice", rec.Config.VoiceName))

	return rec.Config, nil
}

// List returns saved engine names in sorted order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("engine: list: %w", err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".json"))
	}
	slices.Sort(names)

	return names, nil
}

// Delete removes a saved engine.
func (s *Store) Delete(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: engine %q", ErrNotFound, name)
		}
		return fmt.Errorf("engine: delete %q: %w", name, err)
	}

	return nil
}

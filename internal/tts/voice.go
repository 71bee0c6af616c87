package tts

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Voice is a named reference: a short clip of the target speaker or an
// exported .safetensors embedding.
type Voice struct {
	ID      string `json:"id"`
	Path    string `json:"path"`
	License string `json:"license,omitempty"`
	// Style selects the speaker table row when the reference cannot be
	// embedded.
	Style string `json:"style,omitempty"`
}

func (v Voice) validate() error {
	switch {
	case strings.TrimSpace(v.ID) == "":
		return errors.New("voice with empty id")
	case strings.TrimSpace(v.Path) == "":
		return fmt.Errorf("voice %q has no path", v.ID)
	}
	return nil
}

// VoiceManager serves a voices manifest, a JSON document of the form
// {"voices": [{"id": ..., "path": ...}]}. Relative paths resolve against
// the manifest directory.
type VoiceManager struct {
	dir    string
	voices []Voice // sorted by ID
}

func NewVoiceManager(manifestPath string) (*VoiceManager, error) {
	if manifestPath == "" {
		return nil, errors.New("voices: manifest path is required")
	}

	f, err := os.Open(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("voices: %w", err)
	}
	defer f.Close()

	var doc struct {
		Voices []Voice `json:"voices"`
	}
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return nil, fmt.Errorf("voices: decode %s: %w", manifestPath, err)
	}

	var problems []error
	for _, v := range doc.Voices {
		problems = append(problems, v.validate())
	}

	voices := slices.SortedFunc(slices.Values(doc.Voices), func(a, b Voice) int { return cmp.Compare(a.ID, b.ID) })
	for i := 1; i < len(voices); i++ {
		if voices[i].ID == voices[i-1].ID {
			problems = append(problems, fmt.Errorf("duplicate voice id %q", voices[i].ID))
		}
	}
	if err := errors.Join(problems...); err != nil {
		return nil, fmt.Errorf("voices: %s: %w", manifestPath, err)
	}

	return &VoiceManager{dir: filepath.Dir(manifestPath), voices: voices}, nil
}

// ListVoices returns the manifest entries sorted by id.
func (m *VoiceManager) ListVoices() []Voice {
	return slices.Clone(m.voices)
}

func (m *VoiceManager) Lookup(id string) (Voice, bool) {
	i, ok := slices.BinarySearchFunc(m.voices, id, func(v Voice, id string) int { return cmp.Compare(v.ID, id) })
	if !ok {
		return Voice{}, false
	}
	return m.voices[i], true
}

// ResolvePath returns the absolute reference path for id and checks that
// the file is there.
func (m *VoiceManager) ResolvePath(id string) (string, error) {
	v, ok := m.Lookup(id)
	if !ok {
		return "", fmt.Errorf("voices: unknown voice %q", id)
	}

	p := v.Path
	if !filepath.IsAbs(p) {
		p = filepath.Join(m.dir, p)
	}
	p, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("voices: %q: %w", id, err)
	}

	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("voices: %q: %w", id, err)
	}
	return p, nil
}

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

var fixedNow = time.Unix(1_700_000_000, 0)

func newTestStore(t *testing.T, probe ProbeFunc) *Store {
	t.Helper()

	s, err := NewStore(Options{
		Dir:   filepath.Join(t.TempDir(), "engines"),
		Probe: probe,
		Now:   func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	return s
}

func writeClip(t *testing.T, name string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("write clip: %v", err)
	}

	return path
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t, nil)
	clip := writeClip(t, "anna.wav")

	cfg, err := s.SelectVoice(context.Background(), clip, "")
	if err != nil {
		t.Fatalf("SelectVoice: %v", err)
	}
	if cfg.VoiceName != "anna.wav" || cfg.EngineType != TypeNeural || cfg.Timestamp != fixedNow.Unix() {
		t.Fatalf("unexpected config %+v", cfg)
	}

	rec, err := s.Save("anna")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if rec.Version != RecordVersion || rec.SavedAt != fixedNow.Unix() {
		t.Fatalf("unexpected record %+v", rec)
	}

	raw, err := os.ReadFile(filepath.Join(s.Dir(), "anna.json"))
	if err != nil {
		t.Fatalf("read record: %v", err)
	}

	var onDisk map[string]any
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	for _, key := range []string{"name", "config", "version", "saved_at"} {
		if _, ok := onDisk[key]; !ok {
			t.Fatalf("record missing %q: %s", key, raw)
		}
	}
	inner := onDisk["config"].(map[string]any)
	for _, key := range []string{"reference_audio", "voice_name", "timestamp", "engine_type"} {
		if _, ok := inner[key]; !ok {
			t.Fatalf("config missing %q: %s", key, raw)
		}
	}

	other := newTestStore(t, nil)
	other.dir = s.Dir()

	loaded, err := other.Load("anna")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Reference() != clip {
		t.Fatalf("reference = %q, want %q", loaded.Reference(), clip)
	}
	if cur, ok := other.Current(); !ok || cur.VoiceName != "anna.wav" {
		t.Fatalf("current = %+v, %v", cur, ok)
	}
}

func TestSaveWithoutVoice(t *testing.T) {
	s := newTestStore(t, nil)

	if _, err := s.Save("nothing"); !errors.Is(err, ErrNoVoice) {
		t.Fatalf("err = %v, want ErrNoVoice", err)
	}
}

func TestLoadErrors(t *testing.T) {
	s := newTestStore(t, nil)

	if _, err := s.Load("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	clip := writeClip(t, "gone.wav")
	if _, err := s.SelectVoice(context.Background(), clip, "gone"); err != nil {
		t.Fatalf("SelectVoice: %v", err)
	}
	if _, err := s.Save("gone"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.Remove(clip); err != nil {
		t.Fatalf("remove clip: %v", err)
	}

	if _, err := s.Load("gone"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for vanished reference", err)
	}

	if err := os.WriteFile(filepath.Join(s.Dir(), "broken.json"), []byte("{"), 0o644); err != nil {
		t.Fatalf("write broken: %v", err)
	}
	if _, err := s.Load("broken"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want a decode error", err)
	}
}

func TestInvalidNames(t *testing.T) {
	s := newTestStore(t, nil)
	s.UseBaseSpeaker()

	for _, name := range []string{"", "  ", "..", "a/b", `a\b`} {
		if _, err := s.Save(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Save(%q) err = %v, want ErrInvalidName", name, err)
		}
	}
}

func TestBaseSpeaker(t *testing.T) {
	s := newTestStore(t, nil)

	cfg := s.UseBaseSpeaker()
	if !cfg.IsBase() || cfg.EngineType != TypeBase || cfg.Reference() != "" {
		t.Fatalf("unexpected base config %+v", cfg)
	}

	if _, err := s.Save("base"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(s.Dir(), "base.json"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var rec struct {
		Config map[string]any `json:"config"`
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v, ok := rec.Config["reference_audio"]; !ok || v != nil {
		t.Fatalf("reference_audio = %v (present %v), want null", v, ok)
	}

	loaded, err := s.Load("base")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.IsBase() {
		t.Fatal("loaded record should be the base speaker")
	}
}

func TestListAndDelete(t *testing.T) {
	s := newTestStore(t, nil)
	s.UseBaseSpeaker()

	for _, name := range []string{"zeta", "alpha", "mid"} {
		if _, err := s.Save(name); err != nil {
			t.Fatalf("Save(%s): %v", name, err)
		}
	}
	if err := os.WriteFile(filepath.Join(s.Dir(), "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	names, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !slices.Equal(names, []string{"alpha", "mid", "zeta"}) {
		t.Fatalf("names = %v", names)
	}

	if err := s.Delete("mid"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete("mid"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestSelectVoiceProbe(t *testing.T) {
	clip := writeClip(t, "probe.wav")

	var probed []string
	s := newTestStore(t, func(_ context.Context, ref string) error {
		probed = append(probed, ref)
		return nil
	})
	if _, err := s.SelectVoice(context.Background(), clip, "p"); err != nil {
		t.Fatalf("SelectVoice: %v", err)
	}
	if len(probed) != 1 || probed[0] != clip {
		t.Fatalf("probed = %v", probed)
	}

	failing := newTestStore(t, func(context.Context, string) error { return errors.New("no audio") })
	if _, err := failing.SelectVoice(context.Background(), clip, "p"); err == nil {
		t.Fatal("expected probe failure")
	}
	if _, ok := failing.Current(); ok {
		t.Fatal("failed probe must not change the current voice")
	}

	if _, err := s.SelectVoice(context.Background(), filepath.Join(t.TempDir(), "none.wav"), ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestEmbeddingPathPreferred(t *testing.T) {
	s := newTestStore(t, nil)
	clip := writeClip(t, "anna.wav")

	if err := s.AttachEmbedding("x"); !errors.Is(err, ErrNoVoice) {
		t.Fatalf("err = %v, want ErrNoVoice", err)
	}

	if _, err := s.SelectVoice(context.Background(), clip, "anna"); err != nil {
		t.Fatalf("SelectVoice: %v", err)
	}

	emb := writeClip(t, "anna.safetensors")
	if err := s.AttachEmbedding(emb); err != nil {
		t.Fatalf("AttachEmbedding: %v", err)
	}

	cur, _ := s.Current()
	if cur.Reference() != emb {
		t.Fatalf("reference = %q, want embedding %q", cur.Reference(), emb)
	}

	cur.EmbeddingPath = filepath.Join(t.TempDir(), "vanished.safetensors")
	if cur.Reference() != clip {
		t.Fatalf("reference = %q, want clip fallback", cur.Reference())
	}
}

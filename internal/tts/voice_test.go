package tts

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeManifest(t *testing.T, dir, body string) string {
	t.Helper()

	path := filepath.Join(dir, "voices.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestVoiceManager(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{"narrator.wav", "warm.safetensors"} {
		if err := os.WriteFile(filepath.Join(dir, f), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	abs := filepath.Join(dir, "warm.safetensors")

	mgr, err := NewVoiceManager(writeManifest(t, dir, `{"voices": [
  {"id": "narrator", "path": "narrator.wav", "license": "CC0", "style": "calm"},
  {"id": "warm", "path": "`+filepath.ToSlash(abs)+`"},
  {"id": "absent", "path": "sub/absent.wav"}
]}`))
	if err != nil {
		t.Fatalf("NewVoiceManager: %v", err)
	}

	var ids []string
	for _, v := range mgr.ListVoices() {
		ids = append(ids, v.ID)
	}
	if got := strings.Join(ids, ","); got != "absent,narrator,warm" {
		t.Errorf("ListVoices ids = %s", got)
	}

	tests := []struct {
		id      string
		want    string
		wantErr bool
	}{
		{id: "narrator", want: filepath.Join(dir, "narrator.wav")},
		{id: "warm", want: abs},
		{id: "absent", wantErr: true},
		{id: "nobody", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.id, func(t *testing.T) {
			got, err := mgr.ResolvePath(tc.id)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ResolvePath = %q, want error", got)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("ResolvePath = %q, %v; want %q", got, err, tc.want)
			}
		})
	}

	if v, ok := mgr.Lookup("narrator"); !ok || v.Style != "calm" || v.License != "CC0" {
		t.Errorf("Lookup(narrator) = %+v, %v", v, ok)
	}
	if _, ok := mgr.Lookup("nobody"); ok {
		t.Error("Lookup should miss unknown ids")
	}
}

func TestVoiceManagerListIsCopy(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewVoiceManager(writeManifest(t, dir, `{"voices":[{"id":"a","path":"a.wav"}]}`))
	if err != nil {
		t.Fatal(err)
	}

	mgr.ListVoices()[0].ID = "changed"
	if _, ok := mgr.Lookup("a"); !ok {
		t.Fatal("ListVoices must not expose internal state")
	}
}

func TestNewVoiceManagerRejects(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		want     string
	}{
		{name: "bad json", manifest: "{voices", want: "decode"},
		{name: "blank id", manifest: `{"voices":[{"id":" ","path":"v.wav"}]}`, want: "empty id"},
		{name: "blank path", manifest: `{"voices":[{"id":"v","path":""}]}`, want: "no path"},
		{name: "duplicate", manifest: `{"voices":[{"id":"v","path":"a.wav"},{"id":"v","path":"b.wav"}]}`, want: "duplicate"},
		{name: "every problem reported", manifest: `{"voices":[{"id":"","path":"a"},{"id":"b","path":""}]}`, want: `"b" has no path`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewVoiceManager(writeManifest(t, t.TempDir(), tc.manifest))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err = %v, want %q", err, tc.want)
			}
		})
	}

	if _, err := NewVoiceManager(""); err == nil {
		t.Error("empty path should fail")
	}
	_, err := NewVoiceManager(filepath.Join(t.TempDir(), "missing.json"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing manifest err = %v, want ErrNotExist", err)
	}
}

package safetensors

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestEncodeLayout(t *testing.T) {
	blob := encode(t, []Tensor{
		{Name: "b", Shape: []int64{1}, Data: []float32{2}},
		{Name: "a", Shape: []int64{2}, Data: []float32{0, 1}},
	}, map[string]string{"format": "pt"})

	n := binary.LittleEndian.Uint64(blob)
	if n%8 != 0 {
		t.Errorf("header length %d is not 8-byte aligned", n)
	}

	h, payload, err := splitFile(blob)
	if err != nil {
		t.Fatalf("splitFile: %v", err)
	}
	if len(payload) != 12 {
		t.Errorf("payload = %d bytes, want 12", len(payload))
	}
	// Payload follows name order.
	if got := h.entries["a"].Offsets; got != [2]int{0, 8} {
		t.Errorf("a offsets = %v", got)
	}
	if got := h.entries["b"].Offsets; got != [2]int{8, 12} {
		t.Errorf("b offsets = %v", got)
	}
	if h.metadata["format"] != "pt" {
		t.Errorf("metadata = %v", h.metadata)
	}
}

func TestEncodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		tensors []Tensor
	}{
		{name: "none"},
		{name: "empty name", tensors: []Tensor{{Name: " ", Shape: []int64{1}, Data: []float32{1}}}},
		{name: "duplicate", tensors: []Tensor{
			{Name: "x", Shape: []int64{1}, Data: []float32{1}},
			{Name: "x", Shape: []int64{1}, Data: []float32{2}},
		}},
		{name: "count mismatch", tensors: []Tensor{{Name: "x", Shape: []int64{1, 2}, Data: []float32{1}}}},
		{name: "negative dim", tensors: []Tensor{{Name: "x", Shape: []int64{-2}}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Encode(tc.tensors, nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestEncodeScalar(t *testing.T) {
	store, err := OpenStoreFromBytes(encode(t, []Tensor{{Name: "s", Data: []float32{7}}}, nil), StoreOptions{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s, err := store.Tensor("s")
	if err != nil {
		t.Fatalf("Tensor: %v", err)
	}
	if len(s.Shape) != 0 || !reflect.DeepEqual(s.Data, []float32{7}) {
		t.Errorf("scalar = %v %v", s.Shape, s.Data)
	}
}

func TestWriteFileReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "w.safetensors")

	if err := os.WriteFile(path, []byte("stale"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := WriteFile(path, []Tensor{{Name: "w", Shape: []int64{1}, Data: []float32{3}}}); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp file left behind: %v", entries)
	}

	store, err := OpenStore(path, StoreOptions{})
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	w, _ := store.Tensor("w")
	if w == nil || w.Data[0] != 3 {
		t.Fatalf("w = %v", w)
	}

	if err := WriteFile(filepath.Join(dir, "missing", "x.safetensors"), []Tensor{{Name: "w", Shape: []int64{1}, Data: []float32{3}}}); err == nil {
		t.Error("writing into a missing directory should fail")
	}
}

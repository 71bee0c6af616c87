package audio

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestMemFileSeekAndOverwrite(t *testing.T) {
	var m memFile
	m.Write([]byte("abcdef"))

	if _, err := m.Seek(2, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	m.Write([]byte("XY"))
	if _, err := m.Seek(-1, io.SeekEnd); err != nil {
		t.Fatal(err)
	}
	m.Write([]byte("123"))

	if got := string(m.data); got != "abXYe123" {
		t.Errorf("data = %q", got)
	}

	if _, err := m.Seek(-100, io.SeekCurrent); err == nil {
		t.Error("seek before start should fail")
	}
	if _, err := m.Seek(0, 7); err == nil {
		t.Error("bad whence should fail")
	}

	// Seeking past the end leaves a zero-filled gap once written.
	m.Seek(10, io.SeekStart)
	m.Write([]byte("z"))
	if !bytes.Equal(m.data[8:], []byte{0, 0, 'z'}) {
		t.Errorf("gap = %v", m.data[8:])
	}
}

func TestWriteWAVFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.wav")

	if err := WriteWAVFile(path, sine(800, 16000, 440, 0.5), 16000); err != nil {
		t.Fatalf("WriteWAVFile: %v", err)
	}

	onDisk, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	inMemory, err := EncodeWAV(sine(800, 16000, 440, 0.5), 16000)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(onDisk, inMemory) {
		t.Errorf("file (%d bytes) differs from EncodeWAV (%d bytes)", len(onDisk), len(inMemory))
	}

	bad := filepath.Join(dir, "bad.wav")
	if err := WriteWAVFile(bad, []float32{0}, 0); err == nil {
		t.Fatal("zero rate should fail")
	}
	if _, err := os.Stat(bad); !os.IsNotExist(err) {
		t.Errorf("failed write left %s behind", bad)
	}
}

package safetensors

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Encode serializes float32 tensors, in name order, plus an optional
// __metadata__ map. The header is space-padded to an 8-byte boundary.
func Encode(tensors []Tensor, metadata map[string]string) ([]byte, error) {
	if len(tensors) == 0 {
		return nil, errors.New("safetensors: no tensors to encode")
	}

	sorted := slices.SortedFunc(slices.Values(tensors), func(a, b Tensor) int {
		return strings.Compare(a.Name, b.Name)
	})

	head := make(map[string]any, len(sorted)+1)
	var payload bytes.Buffer
	var word [4]byte

	for _, t := range sorted {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return nil, errors.New("safetensors: tensor name must not be empty")
		}
		if _, dup := head[name]; dup {
			return nil, fmt.Errorf("safetensors: duplicate tensor name %q", name)
		}

		n, err := numel(t.Shape)
		if err != nil {
			return nil, fmt.Errorf("safetensors: tensor %q: %w", name, err)
		}
		if n != len(t.Data) {
			return nil, fmt.Errorf("safetensors: tensor %q shape %v expects %d elements, got %d", name, t.Shape, n, len(t.Data))
		}

		lo := payload.Len()
		for _, v := range t.Data {
			binary.LittleEndian.PutUint32(word[:], math.Float32bits(v))
			payload.Write(word[:])
		}

		shape := t.Shape
		if shape == nil {
			shape = []int64{}
		}
		head[name] = headerEntry{DType: dtypeF32, Shape: shape, Offsets: [2]int{lo, payload.Len()}}
	}

	if len(metadata) > 0 {
		head[metadataKey] = metadata
	}

	js, err := json.Marshal(head)
	if err != nil {
		return nil, fmt.Errorf("safetensors: encode header: %w", err)
	}
	if pad := len(js) % 8; pad != 0 {
		js = append(js, bytes.Repeat([]byte{' '}, 8-pad)...)
	}

	out := make([]byte, 8, 8+len(js)+payload.Len())
	binary.LittleEndian.PutUint64(out, uint64(len(js)))
	out = append(out, js...)
	return append(out, payload.Bytes()...), nil
}

// WriteFile writes float32 tensors into a .safetensors file.
func WriteFile(path string, tensors []Tensor) error {
	return writeFile(path, tensors, nil)
}

// writeFile replaces path atomically: readers see the old file or the
// complete new one.
func writeFile(path string, tensors []Tensor, metadata map[string]string) error {
	data, err := Encode(tensors, metadata)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("safetensors: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("safetensors: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("safetensors: write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("safetensors: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("safetensors: write %s: %w", path, err)
	}

	return nil
}

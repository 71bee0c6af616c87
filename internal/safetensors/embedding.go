package safetensors

import (
	"errors"
	"fmt"
)

// EmbeddingTensorName is the tensor name used for saved speaker embeddings.
const EmbeddingTensorName = "speaker_embedding"

// SpeakerEmbedding is a saved conditioning vector plus its provenance.
type SpeakerEmbedding struct {
	Vector   []float32
	Metadata map[string]string
}

// LoadSpeakerEmbedding reads an embedding written by SaveSpeakerEmbedding.
// A file holding a single tensor under another name is accepted too. The
// tensor must have exactly one non-unit dimension: [D], [1, D], [D, 1] or
// [1, D, 1].
func LoadSpeakerEmbedding(path string) (*SpeakerEmbedding, error) {
	store, err := OpenStore(path, StoreOptions{})
	if err != nil {
		return nil, err
	}
	defer store.Close()

	name := EmbeddingTensorName
	if !store.Has(name) {
		names := store.Names()
		if len(names) != 1 {
			return nil, fmt.Errorf("safetensors: %s has no %q tensor", path, EmbeddingTensorName)
		}
		name = names[0]
	}

	t, err := store.Tensor(name)
	if err != nil {
		return nil, err
	}
	if err := vectorShape(t.Shape); err != nil {
		return nil, fmt.Errorf("safetensors: speaker embedding %v: %w", t.Shape, err)
	}

	return &SpeakerEmbedding{Vector: t.Data, Metadata: store.Metadata()}, nil
}

// SaveSpeakerEmbedding writes vector as a [D] tensor, replacing path
// atomically.
func SaveSpeakerEmbedding(path string, vector []float32, metadata map[string]string) error {
	if len(vector) == 0 {
		return errors.New("safetensors: empty speaker embedding")
	}

	return writeFile(path, []Tensor{{
		Name:  EmbeddingTensorName,
		Shape: []int64{int64(len(vector))},
		Data:  vector,
	}}, metadata)
}

func vectorShape(shape []int64) error {
	if len(shape) == 0 || len(shape) > 3 {
		return fmt.Errorf("rank %d, want 1 to 3", len(shape))
	}

	wide := 0
	for _, d := range shape {
		switch {
		case d == 0:
			return errors.New("no elements")
		case d != 1:
			wide++
		}
	}
	if wide > 1 {
		return errors.New("more than one non-unit dimension")
	}
	return nil
}

package config

import (
	"fmt"
	"strings"
)

const (
	EmbeddingAuto    = "auto"
	EmbeddingTrained = "trained"
	EmbeddingONNX    = "onnx"
	EmbeddingPseudo  = "pseudo"
	EmbeddingLegacy  = "legacy"
)

// NormalizeEmbeddingMode canonicalizes the reference-embedding mode. An empty
// value selects auto.
func NormalizeEmbeddingMode(raw string) (string, error) {
	mode := strings.ToLower(strings.TrimSpace(raw))
	switch mode {
	case "":
		return EmbeddingAuto, nil
	case EmbeddingAuto, EmbeddingTrained, EmbeddingONNX, EmbeddingPseudo, EmbeddingLegacy:
		return mode, nil
	case "ref_enc", "ref-enc", "refenc":
		return EmbeddingTrained, nil
	case "enhanced":
		return EmbeddingPseudo, nil
	default:
		return "", fmt.Errorf("unsupported embedding mode %q (expected auto|trained|onnx|pseudo|legacy)", raw)
	}
}

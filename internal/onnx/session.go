package onnx

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

type NodeInfo struct {
	Name  string `json:"name"`
	DType string `json:"dtype"`
	Shape []any  `json:"shape"`
}

// Session describes one exported graph and its I/O signature.
type Session struct {
	Name string
	Path string

	Inputs  []NodeInfo
	Outputs []NodeInfo
}

type graphSidecar struct {
	Name    string     `json:"name"`
	Inputs  []NodeInfo `json:"inputs"`
	Outputs []NodeInfo `json:"outputs"`
}

// SidecarPath is the optional JSON signature stored next to a graph:
// ref_enc.onnx pairs with ref_enc.json.
func SidecarPath(graphPath string) string {
	return strings.TrimSuffix(graphPath, filepath.Ext(graphPath)) + ".json"
}

// LoadSession validates that graphPath exists and reads its sidecar
// signature when present.
func LoadSession(graphPath string) (Session, error) {
	if graphPath == "" {
		return Session{}, errors.New("onnx graph path is required")
	}

	path := filepath.Clean(graphPath)
	if _, err := os.Stat(path); err != nil {
		return Session{}, fmt.Errorf("onnx graph: %w", err)
	}

	s := Session{
		Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Path: path,
	}

	data, err := os.ReadFile(SidecarPath(path))
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return Session{}, fmt.Errorf("read onnx sidecar: %w", err)
	}

	var sc graphSidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return Session{}, fmt.Errorf("decode onnx sidecar: %w", err)
	}
	for _, n := range append(sc.Inputs, sc.Outputs...) {
		if n.Name == "" {
			return Session{}, errors.New("onnx sidecar node has empty name")
		}
		if _, err := canonicalDType(n.DType); err != nil {
			return Session{}, fmt.Errorf("onnx sidecar node %q: %w", n.Name, err)
		}
	}

	if sc.Name != "" {
		s.Name = sc.Name
	}
	s.Inputs = sc.Inputs
	s.Outputs = sc.Outputs

	slog.Info(
		"loaded ONNX session",
		"name", s.Name,
		"path", s.Path,
		"inputs", nodeNames(s.Inputs),
		"outputs", nodeNames(s.Outputs),
	)

	return s, nil
}

// StaticDim returns the fixed size of dimension i of n, or 0 when the
// dimension is symbolic or absent.
func (n NodeInfo) StaticDim(i int) int {
	if i < 0 {
		i += len(n.Shape)
	}
	if i < 0 || i >= len(n.Shape) {
		return 0
	}

	switch v := n.Shape[i].(type) {
	case float64:
		if v >= 1 && v == float64(int(v)) {
			return int(v)
		}
	case int:
		if v >= 1 {
			return v
		}
	case int64:
		if v >= 1 {
			return int(v)
		}
	}

	return 0
}

func nodeNames(nodes []NodeInfo) string {
	if len(nodes) == 0 {
		return ""
	}

	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Name)
	}

	return strings.Join(names, ",")
}

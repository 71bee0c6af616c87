//go:build windows

package onnx

import "fmt"

// The purego loader has no Windows support; the reference encoder falls
// back to the native or spectral path there.
func openGraph(s Session, _ string) (graphRunner, error) {
	return nil, fmt.Errorf("onnx: %s: onnx runtime is not supported on windows", s.Name)
}

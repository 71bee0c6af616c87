//go:build !windows

package onnx

import (
	"context"
	"fmt"

	ort "github.com/shota3506/onnxruntime-purego/onnxruntime"
)

// ortAPIVersion is the C API level requested from the shared library.
const ortAPIVersion = 23

// ortGraph owns one ONNX Runtime session together with the runtime and env
// it was created from.
type ortGraph struct {
	name string
	rt   *ort.Runtime
	env  *ort.Env
	sess *ort.Session
}

func openGraph(s Session, libraryPath string) (graphRunner, error) {
	rt, err := ort.NewRuntime(libraryPath, ortAPIVersion)
	if err != nil {
		return nil, fmt.Errorf("onnx: load runtime %s: %w", libraryPath, err)
	}
	g := &ortGraph{name: s.Name, rt: rt}

	g.env, err = rt.NewEnv("voiceclone-"+s.Name, ort.LoggingLevelWarning)
	if err != nil {
		g.Close()
		return nil, fmt.Errorf("onnx: env for %s: %w", s.Name, err)
	}

	g.sess, err = rt.NewSession(g.env, s.Path, nil)
	if err != nil {
		g.Close()
		return nil, fmt.Errorf("onnx: open %s: %w", s.Path, err)
	}

	return g, nil
}

func (g *ortGraph) Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error) {
	feeds := make(map[string]*ort.Value, len(inputs))
	defer releaseValues(feeds)

	for name, t := range inputs {
		v, err := g.toValue(t)
		if err != nil {
			return nil, fmt.Errorf("onnx: input %s: %w", name, err)
		}
		feeds[name] = v
	}

	fetched, err := g.sess.Run(ctx, feeds)
	if err != nil {
		return nil, fmt.Errorf("onnx: run %s: %w", g.name, err)
	}
	defer releaseValues(fetched)

	out := make(map[string]*Tensor, len(fetched))
	for name, v := range fetched {
		t, err := fromValue(v)
		if err != nil {
			return nil, fmt.Errorf("onnx: output %s: %w", name, err)
		}
		out[name] = t
	}
	return out, nil
}

// Close releases the session, env and runtime in reverse creation order.
// It is idempotent.
func (g *ortGraph) Close() {
	if g.sess != nil {
		g.sess.Close()
		g.sess = nil
	}
	if g.env != nil {
		g.env.Close()
		g.env = nil
	}
	if g.rt != nil {
		_ = g.rt.Close()
		g.rt = nil
	}
}

func (g *ortGraph) toValue(t *Tensor) (*ort.Value, error) {
	switch t.dtype {
	case DTypeFloat32:
		return ort.NewTensorValue(g.rt, t.f32, t.shape)
	case DTypeInt64:
		return ort.NewTensorValue(g.rt, t.i64, t.shape)
	}
	return nil, fmt.Errorf("dtype %q", t.dtype)
}

func fromValue(v *ort.Value) (*Tensor, error) {
	kind, err := v.GetTensorElementType()
	if err != nil {
		return nil, err
	}

	switch kind {
	case ort.ONNXTensorElementDataTypeFloat:
		data, shape, err := ort.GetTensorData[float32](v)
		if err != nil {
			return nil, err
		}
		return Float32Tensor(data, shape)
	case ort.ONNXTensorElementDataTypeInt64:
		data, shape, err := ort.GetTensorData[int64](v)
		if err != nil {
			return nil, err
		}
		return Int64Tensor(data, shape)
	}
	return nil, fmt.Errorf("element type %d", kind)
}

func releaseValues(vals map[string]*ort.Value) {
	for _, v := range vals {
		if v != nil {
			v.Close()
		}
	}
}

package native

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/example/go-voiceclone/internal/safetensors"
)

type tensorMeta struct {
	DType   string  `json:"dtype"`
	Shape   []int64 `json:"shape"`
	Offsets [2]int  `json:"data_offsets"`
}

type rawTensor struct {
	shape []int64
	data  []float32
}

func buildSafetensors(t *testing.T, tensors map[string]rawTensor) []byte {
	t.Helper()

	head := map[string]tensorMeta{}
	var blob []byte

	for name, spec := range tensors {
		start := len(blob)
		blob = append(blob, f32Bytes(spec.data)...)
		head[name] = tensorMeta{DType: "F32", Shape: spec.shape, Offsets: [2]int{start, len(blob)}}
	}

	headJSON, err := json.Marshal(head)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}

	out := make([]byte, 8+len(headJSON)+len(blob))
	binary.LittleEndian.PutUint64(out[:8], uint64(len(headJSON)))
	copy(out[8:], headJSON)
	copy(out[8+len(headJSON):], blob)

	return out
}

func writeCheckpoint(t *testing.T, tensors map[string]rawTensor) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "model.safetensors")
	if err := os.WriteFile(path, buildSafetensors(t, tensors), 0o644); err != nil {
		t.Fatalf("write checkpoint: %v", err)
	}

	return path
}

func openStore(t *testing.T, tensors map[string]rawTensor) *safetensors.Store {
	t.Helper()

	st, err := safetensors.OpenStoreFromBytes(buildSafetensors(t, tensors), safetensors.StoreOptions{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	return st
}

func f32Bytes(vals []float32) []byte {
	out := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}

	return out
}

func filled(n int, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestVarBuilder_PathTensor(t *testing.T) {
	st := openStore(t, map[string]rawTensor{
		"dec.conv_pre.weight": {shape: []int64{2, 1, 1}, data: []float32{1, 2}},
		"dec.conv_pre.bias":   {shape: []int64{2, 1}, data: []float32{3, 4}},
	})

	vb := NewVarBuilder(st, 1).Path("dec", "conv_pre")
	if !vb.Has("weight") {
		t.Fatal("expected dec.conv_pre.weight to exist")
	}

	b, err := vb.Tensor("bias", 2)
	if err != nil {
		t.Fatalf("tensor: %v", err)
	}
	if got := b.Shape(); len(got) != 1 || got[0] != 2 {
		t.Fatalf("bias shape = %v, want [2]", got)
	}
	if got := b.Data(); got[0] != 3 || got[1] != 4 {
		t.Fatalf("bias data = %v", got)
	}

	if _, err := vb.Tensor("weight", 3, 1, 1); err == nil {
		t.Fatal("expected shape mismatch error")
	}
}

func TestVarBuilder_HasPrefix(t *testing.T) {
	st := openStore(t, map[string]rawTensor{
		"ref_enc.proj.weight": {shape: []int64{1}, data: []float32{1}},
	})
	vb := NewVarBuilder(st, 1)

	if !vb.HasPrefix("ref_enc") {
		t.Fatal("expected ref_enc prefix")
	}
	if vb.HasPrefix("ref") {
		t.Fatal("prefix must match whole path segments")
	}
	if NewVarBuilder(nil, 1).HasPrefix("ref_enc") {
		t.Fatal("nil store has no prefixes")
	}
}

func TestVarBuilder_ParamRecordsMissing(t *testing.T) {
	vb := NewVarBuilder(nil, 7)

	p, err := vb.Path("flow").Param("bias", Constant(0.5), 3)
	if err != nil {
		t.Fatalf("param: %v", err)
	}
	for i, v := range p.Data() {
		if v != 0.5 {
			t.Fatalf("p[%d] = %v, want 0.5", i, v)
		}
	}

	missing := vb.Missing()
	if len(missing) != 1 || missing[0] != "flow.bias" {
		t.Fatalf("missing = %v, want [flow.bias]", missing)
	}
}

func TestVarBuilder_SeededInitIsDeterministic(t *testing.T) {
	a, err := NewVarBuilder(nil, 42).Param("w", UniformFanIn, 4, 3)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewVarBuilder(nil, 42).Param("w", UniformFanIn, 4, 3)
	if err != nil {
		t.Fatal(err)
	}

	bound := float32(1 / math.Sqrt(3))
	for i, v := range a.Data() {
		if v != b.Data()[i] {
			t.Fatalf("init differs at %d: %v vs %v", i, v, b.Data()[i])
		}
		if v < -bound || v > bound {
			t.Fatalf("init[%d] = %v outside ±%v", i, v, bound)
		}
	}
}

func TestVarBuilder_WeightNormed(t *testing.T) {
	// v rows have norms 5 and 1; g rescales them to 10 and 3.
	v := []float32{3, 4, 0, 1}
	g := []float32{10, 3}
	want := []float32{6, 8, 0, 3}

	tests := []struct {
		name    string
		tensors map[string]rawTensor
	}{
		{
			name: "plain",
			tensors: map[string]rawTensor{
				"c.weight": {shape: []int64{2, 2, 1}, data: want},
			},
		},
		{
			name: "weight_g/weight_v",
			tensors: map[string]rawTensor{
				"c.weight_g": {shape: []int64{2, 1, 1}, data: g},
				"c.weight_v": {shape: []int64{2, 2, 1}, data: v},
			},
		},
		{
			name: "parametrizations",
			tensors: map[string]rawTensor{
				"c.parametrizations.weight.original0": {shape: []int64{2, 1, 1}, data: g},
				"c.parametrizations.weight.original1": {shape: []int64{2, 2, 1}, data: v},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vb := NewVarBuilder(openStore(t, tt.tensors), 1).Path("c")

			w, err := vb.WeightNormed(UniformFanIn, 2, 2, 1)
			if err != nil {
				t.Fatalf("weight normed: %v", err)
			}

			for i, got := range w.Data() {
				if math.Abs(float64(got-want[i])) > 1e-5 {
					t.Fatalf("w[%d] = %v, want %v", i, got, want[i])
				}
			}
			if m := vb.Missing(); len(m) != 0 {
				t.Fatalf("missing = %v, want none", m)
			}
		})
	}
}

func TestVarBuilder_WeightNormedFallsBackToInit(t *testing.T) {
	vb := NewVarBuilder(nil, 1).Path("c")

	w, err := vb.WeightNormed(Constant(2), 2, 2, 1)
	if err != nil {
		t.Fatalf("weight normed: %v", err)
	}
	if w.ElemCount() != 4 || w.Data()[0] != 2 {
		t.Fatalf("w = %v", w.Data())
	}
	if m := vb.Missing(); len(m) != 1 || m[0] != "c.weight" {
		t.Fatalf("missing = %v", m)
	}
}

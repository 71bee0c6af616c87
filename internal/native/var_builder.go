package native

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"

	"github.com/example/go-voiceclone/internal/runtime/ops"
	"github.com/example/go-voiceclone/internal/runtime/tensor"
	"github.com/example/go-voiceclone/internal/safetensors"
)

// Init fills a freshly allocated parameter when the checkpoint does not
// provide it.
type Init func(rng *rand.Rand, data []float32, shape []int64)

// UniformFanIn draws from U(-1/sqrt(fan_in), 1/sqrt(fan_in)), the default for
// torch convolutions and linear layers.
func UniformFanIn(rng *rand.Rand, data []float32, shape []int64) {
	Uniform(1/math.Sqrt(float64(fanIn(shape))))(rng, data, shape)
}

func fanIn(shape []int64) int64 {
	n := int64(1)
	for _, d := range shape[1:] {
		n *= d
	}
	return max(n, 1)
}

// Uniform draws from U(-bound, bound).
func Uniform(bound float64) Init {
	return func(rng *rand.Rand, data []float32, _ []int64) {
		for i := range data {
			data[i] = float32((rng.Float64()*2 - 1) * bound)
		}
	}
}

// Normal returns an initializer drawing from N(mean, std).
func Normal(mean, std float64) Init {
	return func(rng *rand.Rand, data []float32, _ []int64) {
		for i := range data {
			data[i] = float32(mean + rng.NormFloat64()*std)
		}
	}
}

// Constant fills every element with v.
func Constant(v float32) Init {
	return func(_ *rand.Rand, data []float32, _ []int64) {
		for i := range data {
			data[i] = v
		}
	}
}

// loadState is shared by every VarBuilder derived from the same root.
type loadState struct {
	mu      sync.Mutex
	rng     *rand.Rand
	missing []string
}

// VarBuilder provides hierarchical tensor lookup over a checkpoint. Params
// absent from the checkpoint are initialized deterministically and recorded
// as missing.
type VarBuilder struct {
	store  *safetensors.Store
	prefix string
	state  *loadState
}

func OpenVarBuilder(path string, opts safetensors.StoreOptions, seed int64) (*VarBuilder, error) {
	store, err := safetensors.OpenStore(path, opts)
	if err != nil {
		return nil, err
	}

	return NewVarBuilder(store, seed), nil
}

// NewVarBuilder wraps store, which may be nil for a fully initialized model.
func NewVarBuilder(store *safetensors.Store, seed int64) *VarBuilder {
	return &VarBuilder{
		store: store,
		state: &loadState{rng: rand.New(rand.NewSource(seed))},
	}
}

func (vb *VarBuilder) Path(parts ...string) *VarBuilder {
	if vb == nil {
		return nil
	}

	prefix := vb.prefix

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if prefix == "" {
			prefix = part
		} else {
			prefix += "." + part
		}
	}

	return &VarBuilder{store: vb.store, prefix: prefix, state: vb.state}
}

// Pathf is Path with a formatted segment, for indexed module lists.
func (vb *VarBuilder) Pathf(format string, args ...any) *VarBuilder {
	return vb.Path(fmt.Sprintf(format, args...))
}

func (vb *VarBuilder) Has(name string) bool {
	if vb == nil || vb.store == nil {
		return false
	}

	return vb.store.Has(vb.resolve(name))
}

// HasPrefix reports whether any checkpoint tensor lives under name.
func (vb *VarBuilder) HasPrefix(name string) bool {
	if vb == nil || vb.store == nil {
		return false
	}

	full := vb.resolve(name) + "."
	for _, n := range vb.store.Names() {
		if strings.HasPrefix(n, full) {
			return true
		}
	}

	return false
}

// Tensor reads a checkpoint tensor, failing when it is absent.
func (vb *VarBuilder) Tensor(name string, wantShape ...int64) (*tensor.Tensor, error) {
	if vb == nil || vb.store == nil {
		return nil, errors.New("native varbuilder: uninitialized store")
	}

	fullName := vb.resolve(name)

	st, err := vb.store.Tensor(fullName)
	if err != nil {
		return nil, err
	}

	if len(wantShape) > 0 && !sameElems(st.Shape, wantShape) {
		return nil, fmt.Errorf("native varbuilder: tensor %q shape %v does not match expected %v", fullName, st.Shape, wantShape)
	}

	t, err := tensor.New(st.Data, st.Shape)
	if err != nil {
		return nil, fmt.Errorf("native varbuilder: tensor %q: %w", fullName, err)
	}

	if len(wantShape) > 0 {
		return t.Reshape(wantShape)
	}

	return t, nil
}

func (vb *VarBuilder) TensorMaybe(name string, wantShape ...int64) (*tensor.Tensor, bool, error) {
	if !vb.Has(name) {
		return nil, false, nil
	}

	t, err := vb.Tensor(name, wantShape...)
	if err != nil {
		return nil, true, err
	}

	return t, true, nil
}

// Param loads name with the given shape, or initializes it with init and
// records it as missing.
func (vb *VarBuilder) Param(name string, init Init, shape ...int64) (*tensor.Tensor, error) {
	t, ok, err := vb.TensorMaybe(name, shape...)
	if err != nil {
		return nil, err
	}

	if ok {
		return t, nil
	}

	out, err := tensor.Zeros(shape)
	if err != nil {
		return nil, fmt.Errorf("native varbuilder: %q: %w", vb.resolve(name), err)
	}

	vb.state.mu.Lock()
	init(vb.state.rng, out.RawData(), shape)
	vb.state.missing = append(vb.state.missing, vb.resolve(name))
	vb.state.mu.Unlock()

	return out, nil
}

// WeightNormed loads a possibly weight-normalized weight. It accepts a plain
// "weight", the legacy "weight_g"/"weight_v" pair, or the parametrization
// spelling "parametrizations.weight.original0/1".
func (vb *VarBuilder) WeightNormed(init Init, shape ...int64) (*tensor.Tensor, error) {
	if vb.Has("weight") {
		return vb.Tensor("weight", shape...)
	}

	for _, pair := range [][2]string{
		{"weight_g", "weight_v"},
		{"parametrizations.weight.original0", "parametrizations.weight.original1"},
	} {
		if !vb.Has(pair[0]) || !vb.Has(pair[1]) {
			continue
		}

		g, err := vb.Tensor(pair[0])
		if err != nil {
			return nil, err
		}

		v, err := vb.Tensor(pair[1], shape...)
		if err != nil {
			return nil, err
		}

		return ops.FoldWeightNorm(g, v)
	}

	return vb.Param("weight", init, shape...)
}

// Missing returns the names of every initialized (not loaded) parameter.
func (vb *VarBuilder) Missing() []string {
	vb.state.mu.Lock()
	defer vb.state.mu.Unlock()

	return append([]string(nil), vb.state.missing...)
}

// Unused returns checkpoint tensors nothing read.
func (vb *VarBuilder) Unused() []string {
	if vb == nil || vb.store == nil {
		return nil
	}

	return vb.store.Unused()
}

func (vb *VarBuilder) resolve(name string) string {
	name = strings.TrimSpace(name)
	if vb == nil || vb.prefix == "" {
		return name
	}

	if name == "" {
		return vb.prefix
	}

	return vb.prefix + "." + name
}

// sameElems accepts shapes that only differ by unit dimensions, so a bias
// stored as [C, 1] still matches [C].
func sameElems(got, want []int64) bool {
	if equalShape(got, want) {
		return true
	}

	return squeeze(got) == squeeze(want)
}

func squeeze(shape []int64) string {
	var b strings.Builder
	for _, d := range shape {
		if d != 1 {
			fmt.Fprintf(&b, "%d,", d)
		}
	}

	return b.String()
}

func equalShape(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

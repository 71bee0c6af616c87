package native

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/go-voiceclone/internal/runtime/ops"
	"github.com/example/go-voiceclone/internal/runtime/tensor"
)

const refGRUHidden = 128

var refFilters = []int64{32, 32, 64, 64, 128, 128}

// ReferenceEncoder maps a magnitude spectrogram to a speaker embedding
// through strided Conv2d layers, a GRU and a linear projection.
type ReferenceEncoder struct {
	norm     *Linear // layernorm weight/bias over frequency bins
	convs    []*tensor.Tensor
	biases   []*tensor.Tensor
	gru      ops.GRUWeights
	proj     *Linear
	bins     int64
	outBins  int64
	embedDim int64
}

func refOutBins(bins int64, layers int) int64 {
	for range layers {
		bins = (bins-3+2)/2 + 1
	}
	return bins
}

func newReferenceEncoder(vb *VarBuilder, bins, gin int64) (*ReferenceEncoder, error) {
	r := &ReferenceEncoder{bins: bins, embedDim: gin, outBins: refOutBins(bins, len(refFilters))}

	w, err := vb.Param("layernorm.weight", Constant(1), bins)
	if err != nil {
		return nil, err
	}
	b, err := vb.Param("layernorm.bias", Constant(0), bins)
	if err != nil {
		return nil, err
	}
	r.norm = &Linear{Weight: w, Bias: b}

	in := int64(1)
	for i, out := range refFilters {
		cv := vb.Pathf("convs.%d", i)
		k, err := cv.WeightNormed(UniformFanIn, out, in, 3, 3)
		if err != nil {
			return nil, err
		}
		bias, err := cv.Param("bias", Uniform(1/math.Sqrt(float64(9*in))), out)
		if err != nil {
			return nil, err
		}
		r.convs = append(r.convs, k)
		r.biases = append(r.biases, bias)
		in = out
	}

	gruIn := refFilters[len(refFilters)-1] * r.outBins
	gv := vb.Path("gru")
	h3 := int64(3 * refGRUHidden)
	bound := 1 / float64(refGRUHidden)
	if r.gru.WeightIH, err = gv.Param("weight_ih_l0", Uniform(bound), h3, gruIn); err != nil {
		return nil, err
	}
	if r.gru.WeightHH, err = gv.Param("weight_hh_l0", Uniform(bound), h3, refGRUHidden); err != nil {
		return nil, err
	}
	if r.gru.BiasIH, err = gv.Param("bias_ih_l0", Uniform(bound), h3); err != nil {
		return nil, err
	}
	if r.gru.BiasHH, err = gv.Param("bias_hh_l0", Uniform(bound), h3); err != nil {
		return nil, err
	}

	if r.proj, err = newLinear(vb.Path("proj"), refGRUHidden, gin); err != nil {
		return nil, err
	}

	return r, nil
}

// Bins is the spectrogram height the encoder expects.
func (r *ReferenceEncoder) Bins() int { return int(r.bins) }

// Forward maps spec [T, bins] (time-major) to an embedding [gin].
func (r *ReferenceEncoder) Forward(spec *tensor.Tensor) (*tensor.Tensor, error) {
	if spec == nil || spec.Rank() != 2 || spec.Dim(1) != r.bins {
		return nil, fmt.Errorf("native: reference encoder expects [T, %d] spectrogram", r.bins)
	}
	if spec.Dim(0) == 0 {
		return nil, errors.New("native: reference encoder given an empty spectrogram")
	}

	x, err := tensor.LayerNorm(spec, r.norm.Weight, r.norm.Bias, 1e-5)
	if err != nil {
		return nil, err
	}
	if x, err = x.Reshape([]int64{1, 1, spec.Dim(0), r.bins}); err != nil {
		return nil, err
	}

	for i, k := range r.convs {
		if x, err = ops.Conv2D(x, k, r.biases[i], 2, 1); err != nil {
			return nil, fmt.Errorf("ref conv %d: %w", i, err)
		}
		x = ops.ReLU(x)
	}

	// [1, C, T', F'] -> [T', C*F']
	if x, err = x.Transpose(1, 2); err != nil {
		return nil, err
	}
	frames := x.Dim(1)
	if x, err = x.Reshape([]int64{frames, x.Dim(2) * x.Dim(3)}); err != nil {
		return nil, err
	}

	h, err := ops.GRU(x, r.gru)
	if err != nil {
		return nil, err
	}

	return r.proj.Forward(h)
}

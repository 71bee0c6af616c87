package native

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/go-voiceclone/internal/runtime/ops"
	"github.com/example/go-voiceclone/internal/runtime/tensor"
)

type Linear struct {
	Weight *tensor.Tensor // [out, in]
	Bias   *tensor.Tensor // optional [out]
}

func newLinear(vb *VarBuilder, in, out int64) (*Linear, error) {
	w, err := vb.Param("weight", UniformFanIn, out, in)
	if err != nil {
		return nil, err
	}

	b, err := vb.Param("bias", Uniform(1/math.Sqrt(float64(in))), out)
	if err != nil {
		return nil, err
	}

	return &Linear{Weight: w, Bias: b}, nil
}

func (l *Linear) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if l == nil || l.Weight == nil {
		return nil, errors.New("native: linear is not initialized")
	}

	return tensor.Linear(x, l.Weight, l.Bias)
}

// convSpec describes a Conv1d or ConvTranspose1d layer.
type convSpec struct {
	in, out, kernel int64
	stride          int64
	padding         int64
	dilation        int64
	groups          int64
	noBias          bool
	weightNorm      bool
	zero            bool
	init            Init
}

func (s convSpec) withDefaults() convSpec {
	if s.kernel == 0 {
		s.kernel = 1
	}
	if s.stride == 0 {
		s.stride = 1
	}
	if s.dilation == 0 {
		s.dilation = 1
	}
	if s.groups == 0 {
		s.groups = 1
	}
	if s.init == nil {
		s.init = UniformFanIn
	}
	if s.zero {
		s.init = Constant(0)
	}
	return s
}

// Conv1d is a 1-D convolution over [1, C, T].
type Conv1d struct {
	Weight   *tensor.Tensor // [out, in/groups, k]
	Bias     *tensor.Tensor
	Stride   int64
	Padding  int64
	Dilation int64
	Groups   int64
}

func newConv1d(vb *VarBuilder, spec convSpec) (*Conv1d, error) {
	s := spec.withDefaults()
	shape := []int64{s.out, s.in / s.groups, s.kernel}

	var (
		w   *tensor.Tensor
		err error
	)
	if s.weightNorm {
		w, err = vb.WeightNormed(s.init, shape...)
	} else {
		w, err = vb.Param("weight", s.init, shape...)
	}
	if err != nil {
		return nil, err
	}

	var b *tensor.Tensor
	if s.noBias {
		// Exported checkpoints sometimes carry a bias even where the layer
		// was built without one.
		t, ok, err := vb.TensorMaybe("bias", s.out)
		if err != nil {
			return nil, err
		}
		if ok {
			b = t
		}
	} else {
		binit := Uniform(1 / math.Sqrt(float64(fanIn(shape))))
		if s.zero {
			binit = Constant(0)
		}
		b, err = vb.Param("bias", binit, s.out)
		if err != nil {
			return nil, err
		}
	}

	return &Conv1d{
		Weight:   w,
		Bias:     b,
		Stride:   s.stride,
		Padding:  s.padding,
		Dilation: s.dilation,
		Groups:   s.groups,
	}, nil
}

func (c *Conv1d) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if c == nil || c.Weight == nil {
		return nil, errors.New("native: conv1d is not initialized")
	}

	return ops.Conv1D(x, c.Weight, c.Bias, c.Stride, c.Padding, c.Dilation, c.Groups)
}

// ConvTranspose1d is a weight-normed transposed convolution.
type ConvTranspose1d struct {
	Weight  *tensor.Tensor // [in, out, k]
	Bias    *tensor.Tensor
	Stride  int64
	Padding int64
}

func newConvTranspose1d(vb *VarBuilder, spec convSpec) (*ConvTranspose1d, error) {
	s := spec.withDefaults()

	w, err := vb.WeightNormed(s.init, s.in, s.out, s.kernel)
	if err != nil {
		return nil, err
	}

	b, err := vb.Param("bias", Uniform(1/math.Sqrt(float64(s.out*s.kernel))), s.out)
	if err != nil {
		return nil, err
	}

	return &ConvTranspose1d{
		Weight:  w,
		Bias:    b,
		Stride:  s.stride,
		Padding: s.padding,
	}, nil
}

func (c *ConvTranspose1d) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if c == nil || c.Weight == nil {
		return nil, errors.New("native: convtranspose1d is not initialized")
	}

	return ops.ConvTranspose1D(x, c.Weight, c.Bias, c.Stride, c.Padding, 0, 1, 1)
}

// ChannelNorm is layer normalization across channels of [1, C, T], stored
// as gamma/beta.
type ChannelNorm struct {
	Gamma *tensor.Tensor
	Beta  *tensor.Tensor
	Eps   float32
}

func newChannelNorm(vb *VarBuilder, channels int64) (*ChannelNorm, error) {
	g, err := vb.Param("gamma", Constant(1), channels)
	if err != nil {
		return nil, err
	}

	b, err := vb.Param("beta", Constant(0), channels)
	if err != nil {
		return nil, err
	}

	return &ChannelNorm{Gamma: g, Beta: b, Eps: 1e-5}, nil
}

func (n *ChannelNorm) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if n == nil || n.Gamma == nil {
		return nil, errors.New("native: channel norm is not initialized")
	}

	return ops.LayerNormChannels(x, n.Gamma, n.Beta, n.Eps)
}

// Embedding is a lookup table [n, dim].
type Embedding struct {
	Weight *tensor.Tensor
}

func newEmbedding(vb *VarBuilder, n, dim int64, init Init) (*Embedding, error) {
	w, err := vb.Param("weight", init, n, dim)
	if err != nil {
		return nil, err
	}

	return &Embedding{Weight: w}, nil
}

func (e *Embedding) Rows() int64 { return e.Weight.Dim(0) }

// Lookup returns [len(ids), dim].
func (e *Embedding) Lookup(ids []int) (*tensor.Tensor, error) {
	idx := make([]int64, len(ids))
	for i, id := range ids {
		if id < 0 || int64(id) >= e.Rows() {
			return nil, fmt.Errorf("native: embedding index %d out of range [0,%d)", id, e.Rows())
		}
		idx[i] = int64(id)
	}

	return e.Weight.Gather(0, idx)
}

// addFrames adds a per-channel vector v [1, C, 1] to every frame of x [1, C, T].
func addFrames(x, v *tensor.Tensor) (*tensor.Tensor, error) {
	if v == nil {
		return x, nil
	}

	return tensor.BroadcastAdd(x, v)
}

// splitChannels returns x[:, :n] and x[:, n:].
func splitChannels(x *tensor.Tensor, n int64) (*tensor.Tensor, *tensor.Tensor, error) {
	a, err := x.Narrow(1, 0, n)
	if err != nil {
		return nil, nil, err
	}

	b, err := x.Narrow(1, n, x.Dim(1)-n)
	if err != nil {
		return nil, nil, err
	}

	return a, b, nil
}

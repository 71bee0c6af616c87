package native

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/example/go-voiceclone/internal/runtime/ops"
	"github.com/example/go-voiceclone/internal/runtime/tensor"
)

const (
	dpFilterChannels = 256
	dpKernel         = 3
	ddsLayers        = 3
	sdpFlows         = 4
)

// DurationPredictor is the deterministic log-duration regressor.
type DurationPredictor struct {
	conv1, conv2, proj *Conv1d
	norm1, norm2       *ChannelNorm
	cond               *Conv1d
}

func newDurationPredictor(vb *VarBuilder, in, gin int64) (*DurationPredictor, error) {
	dp := &DurationPredictor{}

	var err error
	if dp.conv1, err = newConv1d(vb.Path("conv_1"), convSpec{in: in, out: dpFilterChannels, kernel: dpKernel, padding: dpKernel / 2}); err != nil {
		return nil, err
	}
	if dp.norm1, err = newChannelNorm(vb.Path("norm_1"), dpFilterChannels); err != nil {
		return nil, err
	}
	if dp.conv2, err = newConv1d(vb.Path("conv_2"), convSpec{in: dpFilterChannels, out: dpFilterChannels, kernel: dpKernel, padding: dpKernel / 2}); err != nil {
		return nil, err
	}
	if dp.norm2, err = newChannelNorm(vb.Path("norm_2"), dpFilterChannels); err != nil {
		return nil, err
	}
	if dp.proj, err = newConv1d(vb.Path("proj"), convSpec{in: dpFilterChannels, out: 1}); err != nil {
		return nil, err
	}
	if gin > 0 {
		if dp.cond, err = newConv1d(vb.Path("cond"), convSpec{in: gin, out: in}); err != nil {
			return nil, err
		}
	}

	return dp, nil
}

// Forward returns log durations [1, 1, T].
func (dp *DurationPredictor) Forward(x, g *tensor.Tensor) (*tensor.Tensor, error) {
	var err error
	if g != nil && dp.cond != nil {
		c, err := dp.cond.Forward(g)
		if err != nil {
			return nil, err
		}
		if x, err = addFrames(x, c); err != nil {
			return nil, err
		}
	}

	steps := []struct {
		conv *Conv1d
		norm *ChannelNorm
	}{{dp.conv1, dp.norm1}, {dp.conv2, dp.norm2}}

	for _, s := range steps {
		if x, err = s.conv.Forward(x); err != nil {
			return nil, err
		}
		if x, err = s.norm.Forward(ops.ReLU(x)); err != nil {
			return nil, err
		}
	}

	return dp.proj.Forward(x)
}

// DDSConv is a stack of dilated depthwise-separable convolutions.
type DDSConv struct {
	sep, pointwise []*Conv1d
	norm1, norm2   []*ChannelNorm
}

func newDDSConv(vb *VarBuilder, channels, kernel int64, layers int) (*DDSConv, error) {
	d := &DDSConv{}

	dilation := int64(1)
	for i := range layers {
		sep, err := newConv1d(vb.Pathf("convs_sep.%d", i), convSpec{
			in: channels, out: channels, kernel: kernel, groups: channels,
			dilation: dilation, padding: (kernel*dilation - dilation) / 2,
		})
		if err != nil {
			return nil, err
		}
		pw, err := newConv1d(vb.Pathf("convs_1x1.%d", i), convSpec{in: channels, out: channels})
		if err != nil {
			return nil, err
		}
		n1, err := newChannelNorm(vb.Pathf("norms_1.%d", i), channels)
		if err != nil {
			return nil, err
		}
		n2, err := newChannelNorm(vb.Pathf("norms_2.%d", i), channels)
		if err != nil {
			return nil, err
		}

		d.sep = append(d.sep, sep)
		d.pointwise = append(d.pointwise, pw)
		d.norm1 = append(d.norm1, n1)
		d.norm2 = append(d.norm2, n2)
		dilation *= kernel
	}

	return d, nil
}

func (d *DDSConv) Forward(x, g *tensor.Tensor) (*tensor.Tensor, error) {
	var err error
	if g != nil {
		if x, err = tensor.BroadcastAdd(x, g); err != nil {
			return nil, err
		}
	}

	for i := range d.sep {
		y, err := d.sep[i].Forward(x)
		if err != nil {
			return nil, fmt.Errorf("dds layer %d: %w", i, err)
		}
		if y, err = d.norm1[i].Forward(y); err != nil {
			return nil, err
		}
		if y, err = d.pointwise[i].Forward(ops.GELU(y)); err != nil {
			return nil, err
		}
		if y, err = d.norm2[i].Forward(y); err != nil {
			return nil, err
		}
		if x, err = tensor.Add(x, ops.GELU(y)); err != nil {
			return nil, err
		}
	}

	return x, nil
}

// ElementwiseAffine is y = m + exp(logs) * x per channel.
type ElementwiseAffine struct {
	m, logs []float32
}

func newElementwiseAffine(vb *VarBuilder, channels int64) (*ElementwiseAffine, error) {
	m, err := vb.Param("m", Constant(0), channels, 1)
	if err != nil {
		return nil, err
	}
	logs, err := vb.Param("logs", Constant(0), channels, 1)
	if err != nil {
		return nil, err
	}

	return &ElementwiseAffine{m: m.Data(), logs: logs.Data()}, nil
}

func (e *ElementwiseAffine) Reverse(z *tensor.Tensor) *tensor.Tensor {
	out := z.Clone()
	data := out.RawData()
	frames := int(z.Dim(-1))

	for c := range e.m {
		scale := float32(math.Exp(-float64(e.logs[c])))
		row := data[c*frames : (c+1)*frames]
		for t := range row {
			row[t] = (row[t] - e.m[c]) * scale
		}
	}

	return out
}

// ConvFlow is a rational-quadratic spline coupling over a 2-channel input.
type ConvFlow struct {
	pre    *Conv1d
	convs  *DDSConv
	proj   *Conv1d
	filter int64
}

func newConvFlow(vb *VarBuilder, filter, kernel int64) (*ConvFlow, error) {
	pre, err := newConv1d(vb.Path("pre"), convSpec{in: 1, out: filter})
	if err != nil {
		return nil, err
	}
	convs, err := newDDSConv(vb.Path("convs"), filter, kernel, ddsLayers)
	if err != nil {
		return nil, err
	}
	proj, err := newConv1d(vb.Path("proj"), convSpec{in: filter, out: splineParamsPerCh, zero: true})
	if err != nil {
		return nil, err
	}

	return &ConvFlow{pre: pre, convs: convs, proj: proj, filter: filter}, nil
}

// Reverse inverts the flow on z [1, 2, T] given conditioning h [1, filter, T].
func (f *ConvFlow) Reverse(z, cond *tensor.Tensor) (*tensor.Tensor, error) {
	x0, x1, err := splitChannels(z, 1)
	if err != nil {
		return nil, err
	}

	h, err := f.pre.Forward(x0)
	if err != nil {
		return nil, err
	}
	if h, err = f.convs.Forward(h, cond); err != nil {
		return nil, err
	}
	if h, err = f.proj.Forward(h); err != nil {
		return nil, err
	}

	frames := int(z.Dim(-1))
	params := h.RawData()
	y := x1.RawData()
	norm := math.Sqrt(float64(f.filter))

	uw := make([]float64, splineBins)
	uh := make([]float64, splineBins)
	ud := make([]float64, splineBins-1)

	for t := range frames {
		for k := range splineBins {
			uw[k] = float64(params[k*frames+t]) / norm
			uh[k] = float64(params[(splineBins+k)*frames+t]) / norm
		}
		for k := range splineBins - 1 {
			ud[k] = float64(params[(2*splineBins+k)*frames+t])
		}
		y[t] = float32(rqsInverse(float64(y[t]), uw, uh, ud))
	}

	return tensor.Concat([]*tensor.Tensor{x0, x1}, 1)
}

// StochasticDurationPredictor samples log durations by inverting a spline
// flow from Gaussian noise.
type StochasticDurationPredictor struct {
	pre, proj, cond *Conv1d
	convs           *DDSConv
	affine          *ElementwiseAffine
	flows           []*ConvFlow // flows.1, flows.3, flows.5, flows.7
}

func newStochasticDurationPredictor(vb *VarBuilder, in, gin int64) (*StochasticDurationPredictor, error) {
	filter := in
	s := &StochasticDurationPredictor{}

	var err error
	if s.pre, err = newConv1d(vb.Path("pre"), convSpec{in: in, out: filter}); err != nil {
		return nil, err
	}
	if s.proj, err = newConv1d(vb.Path("proj"), convSpec{in: filter, out: filter}); err != nil {
		return nil, err
	}
	if s.convs, err = newDDSConv(vb.Path("convs"), filter, dpKernel, ddsLayers); err != nil {
		return nil, err
	}
	if gin > 0 {
		if s.cond, err = newConv1d(vb.Path("cond"), convSpec{in: gin, out: filter}); err != nil {
			return nil, err
		}
	}

	if s.affine, err = newElementwiseAffine(vb.Path("flows.0"), 2); err != nil {
		return nil, err
	}
	for i := range sdpFlows {
		cf, err := newConvFlow(vb.Pathf("flows.%d", 2*i+1), filter, dpKernel)
		if err != nil {
			return nil, err
		}
		s.flows = append(s.flows, cf)
	}

	return s, nil
}

// Forward returns log durations [1, 1, T]. Noise comes from rng scaled by
// noiseScale.
func (s *StochasticDurationPredictor) Forward(x, g *tensor.Tensor, noiseScale float32, rng *rand.Rand) (*tensor.Tensor, error) {
	h, err := s.pre.Forward(x)
	if err != nil {
		return nil, err
	}
	if g != nil && s.cond != nil {
		c, err := s.cond.Forward(g)
		if err != nil {
			return nil, err
		}
		if h, err = addFrames(h, c); err != nil {
			return nil, err
		}
	}
	if h, err = s.convs.Forward(h, nil); err != nil {
		return nil, err
	}
	if h, err = s.proj.Forward(h); err != nil {
		return nil, err
	}

	frames := x.Dim(-1)
	z, err := randn(rng, noiseScale, 1, 2, frames)
	if err != nil {
		return nil, err
	}

	// Reverse order skips the first ConvFlow, which only shapes the
	// training posterior.
	for i := len(s.flows) - 1; i >= 1; i-- {
		z = flipChannels(z)
		if z, err = s.flows[i].Reverse(z, h); err != nil {
			return nil, fmt.Errorf("sdp flow %d: %w", 2*i+1, err)
		}
	}
	z = flipChannels(z)
	z = s.affine.Reverse(z)

	logw, _, err := splitChannels(z, 1)
	return logw, err
}

// flipChannels reverses the channel axis of [1, C, T].
func flipChannels(x *tensor.Tensor) *tensor.Tensor {
	channels, frames := int(x.Dim(1)), int(x.Dim(2))
	out := x.Clone()
	src, dst := x.RawData(), out.RawData()

	for c := range channels {
		copy(dst[c*frames:(c+1)*frames], src[(channels-1-c)*frames:(channels-c)*frames])
	}

	return out
}

func randn(rng *rand.Rand, scale float32, shape ...int64) (*tensor.Tensor, error) {
	t, err := tensor.Zeros(shape)
	if err != nil {
		return nil, err
	}

	data := t.RawData()
	for i := range data {
		data[i] = float32(rng.NormFloat64()) * scale
	}

	return t, nil
}

package native

import (
	"fmt"

	"github.com/example/go-voiceclone/internal/runtime/ops"
	"github.com/example/go-voiceclone/internal/runtime/tensor"
)

const (
	flowKernel   = 5
	flowWNLayers = 4
	flowCount    = 4
)

// WN is the gated dilated residual stack used inside coupling layers.
type WN struct {
	in       []*Conv1d
	resSkip  []*Conv1d
	cond     *Conv1d
	channels int64
}

func newWN(vb *VarBuilder, hidden, kernel int64, layers int, gin int64) (*WN, error) {
	w := &WN{channels: hidden}

	if gin > 0 {
		c, err := newConv1d(vb.Path("cond_layer"), convSpec{in: gin, out: 2 * hidden * int64(layers), weightNorm: true})
		if err != nil {
			return nil, err
		}
		w.cond = c
	}

	for i := range layers {
		in, err := newConv1d(vb.Pathf("in_layers.%d", i), convSpec{
			in: hidden, out: 2 * hidden, kernel: kernel, padding: (kernel - 1) / 2, weightNorm: true,
		})
		if err != nil {
			return nil, err
		}

		outCh := 2 * hidden
		if i == layers-1 {
			outCh = hidden
		}
		rs, err := newConv1d(vb.Pathf("res_skip_layers.%d", i), convSpec{in: hidden, out: outCh, weightNorm: true})
		if err != nil {
			return nil, err
		}

		w.in = append(w.in, in)
		w.resSkip = append(w.resSkip, rs)
	}

	return w, nil
}

func (w *WN) Forward(x, g *tensor.Tensor) (*tensor.Tensor, error) {
	output, err := tensor.Zeros(x.Shape())
	if err != nil {
		return nil, err
	}

	var gAll *tensor.Tensor
	if g != nil && w.cond != nil {
		if gAll, err = w.cond.Forward(g); err != nil {
			return nil, err
		}
	}

	last := len(w.in) - 1
	for i := range w.in {
		xIn, err := w.in[i].Forward(x)
		if err != nil {
			return nil, fmt.Errorf("wn layer %d: %w", i, err)
		}

		if gAll != nil {
			gl, err := gAll.Narrow(1, int64(i)*2*w.channels, 2*w.channels)
			if err != nil {
				return nil, err
			}
			if xIn, err = addFrames(xIn, gl); err != nil {
				return nil, err
			}
		}

		acts, err := ops.GatedTanhSigmoid(xIn)
		if err != nil {
			return nil, err
		}

		rs, err := w.resSkip[i].Forward(acts)
		if err != nil {
			return nil, err
		}

		if i == last {
			if err := tensor.AddInPlace(output, rs); err != nil {
				return nil, err
			}
			continue
		}

		res, skip, err := splitChannels(rs, w.channels)
		if err != nil {
			return nil, err
		}
		if x, err = tensor.Add(x, res); err != nil {
			return nil, err
		}
		if err := tensor.AddInPlace(output, skip); err != nil {
			return nil, err
		}
	}

	return output, nil
}

// CouplingLayer is a mean-only residual affine coupling.
type CouplingLayer struct {
	pre  *Conv1d
	enc  *WN
	post *Conv1d
	half int64
}

func newCouplingLayer(vb *VarBuilder, channels, hidden, gin int64) (*CouplingLayer, error) {
	half := channels / 2

	pre, err := newConv1d(vb.Path("pre"), convSpec{in: half, out: hidden})
	if err != nil {
		return nil, err
	}
	enc, err := newWN(vb.Path("enc"), hidden, flowKernel, flowWNLayers, gin)
	if err != nil {
		return nil, err
	}
	post, err := newConv1d(vb.Path("post"), convSpec{in: hidden, out: half, zero: true})
	if err != nil {
		return nil, err
	}

	return &CouplingLayer{pre: pre, enc: enc, post: post, half: half}, nil
}

func (c *CouplingLayer) Reverse(x, g *tensor.Tensor) (*tensor.Tensor, error) {
	x0, x1, err := splitChannels(x, c.half)
	if err != nil {
		return nil, err
	}

	h, err := c.pre.Forward(x0)
	if err != nil {
		return nil, err
	}
	if h, err = c.enc.Forward(h, g); err != nil {
		return nil, err
	}
	m, err := c.post.Forward(h)
	if err != nil {
		return nil, err
	}

	m.Scale(-1)
	if err := tensor.AddInPlace(x1, m); err != nil {
		return nil, err
	}

	return tensor.Concat([]*tensor.Tensor{x0, x1}, 1)
}

// CouplingBlock alternates coupling layers (flows.0, 2, 4, 6) with channel
// flips.
type CouplingBlock struct {
	layers []*CouplingLayer
}

func newCouplingBlock(vb *VarBuilder, channels, hidden, gin int64) (*CouplingBlock, error) {
	b := &CouplingBlock{}

	for i := range flowCount {
		l, err := newCouplingLayer(vb.Pathf("flows.%d", 2*i), channels, hidden, gin)
		if err != nil {
			return nil, err
		}
		b.layers = append(b.layers, l)
	}

	return b, nil
}

// Reverse maps prior samples z_p [1, inter, T] to latents z.
func (b *CouplingBlock) Reverse(x, g *tensor.Tensor) (*tensor.Tensor, error) {
	var err error
	for i := len(b.layers) - 1; i >= 0; i-- {
		x = flipChannels(x)
		if x, err = b.layers[i].Reverse(x, g); err != nil {
			return nil, fmt.Errorf("flow %d: %w", 2*i, err)
		}
	}

	return x, nil
}

package native

import (
	"fmt"

	"github.com/example/go-voiceclone/internal/runtime/ops"
	"github.com/example/go-voiceclone/internal/runtime/tensor"
)

const (
	lreluSlope      = 0.1
	finalLReLUSlope = 0.01
	vocoderInitStd  = 0.01
)

// resBlock is either variant of the HiFi-GAN residual block.
type resBlock struct {
	convs1 []*Conv1d
	convs2 []*Conv1d // nil for the single-conv variant
}

func newResBlock(vb *VarBuilder, variant string, channels, kernel int64, dilations []int) (*resBlock, error) {
	rb := &resBlock{}
	first := "convs1"
	if variant == "2" {
		first = "convs"
	}

	for i, d := range dilations {
		dil := int64(d)
		c, err := newConv1d(vb.Pathf("%s.%d", first, i), convSpec{
			in: channels, out: channels, kernel: kernel, dilation: dil,
			padding: (kernel*dil - dil) / 2, weightNorm: true, init: Normal(0, vocoderInitStd),
		})
		if err != nil {
			return nil, err
		}
		rb.convs1 = append(rb.convs1, c)

		if variant == "2" {
			continue
		}
		c2, err := newConv1d(vb.Pathf("convs2.%d", i), convSpec{
			in: channels, out: channels, kernel: kernel, padding: (kernel - 1) / 2,
			weightNorm: true, init: Normal(0, vocoderInitStd),
		})
		if err != nil {
			return nil, err
		}
		rb.convs2 = append(rb.convs2, c2)
	}

	return rb, nil
}

func (rb *resBlock) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	for i, c1 := range rb.convs1 {
		xt, err := c1.Forward(ops.LeakyReLU(x, lreluSlope))
		if err != nil {
			return nil, err
		}
		if rb.convs2 != nil {
			if xt, err = rb.convs2[i].Forward(ops.LeakyReLU(xt, lreluSlope)); err != nil {
				return nil, err
			}
		}
		if x, err = tensor.Add(xt, x); err != nil {
			return nil, err
		}
	}

	return x, nil
}

// Generator is the HiFi-GAN vocoder mapping latents [1, inter, T] to audio
// [1, 1, T*prod(upsample_rates)].
type Generator struct {
	pre      *Conv1d
	cond     *Conv1d
	ups      []*ConvTranspose1d
	blocks   [][]*resBlock
	post     *Conv1d
	hopTotal int
}

func newGenerator(vb *VarBuilder, hp Hparams) (*Generator, error) {
	initCh := int64(hp.UpsampleInitialChannel)
	g := &Generator{hopTotal: 1}

	var err error
	if g.pre, err = newConv1d(vb.Path("conv_pre"), convSpec{in: int64(hp.InterChannels), out: initCh, kernel: 7, padding: 3}); err != nil {
		return nil, err
	}

	ch := initCh
	for i, u := range hp.UpsampleRates {
		k := int64(hp.UpsampleKernelSizes[i])
		up, err := newConvTranspose1d(vb.Pathf("ups.%d", i), convSpec{
			in: ch, out: ch / 2, kernel: k, stride: int64(u), padding: (k - int64(u)) / 2,
			init: Normal(0, vocoderInitStd),
		})
		if err != nil {
			return nil, err
		}
		g.ups = append(g.ups, up)
		g.hopTotal *= u
		ch /= 2

		var stage []*resBlock
		for j, rk := range hp.ResblockKernelSizes {
			idx := i*len(hp.ResblockKernelSizes) + j
			rb, err := newResBlock(vb.Pathf("resblocks.%d", idx), hp.Resblock, ch, int64(rk), hp.ResblockDilationSizes[j])
			if err != nil {
				return nil, err
			}
			stage = append(stage, rb)
		}
		g.blocks = append(g.blocks, stage)
	}

	if g.post, err = newConv1d(vb.Path("conv_post"), convSpec{in: ch, out: 1, kernel: 7, padding: 3, noBias: true}); err != nil {
		return nil, err
	}

	if hp.GinChannels > 0 {
		if g.cond, err = newConv1d(vb.Path("cond"), convSpec{in: int64(hp.GinChannels), out: initCh}); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// HopSize is the number of output samples per latent frame.
func (g *Generator) HopSize() int { return g.hopTotal }

func (g *Generator) Forward(x, spk *tensor.Tensor) (*tensor.Tensor, error) {
	x, err := g.pre.Forward(x)
	if err != nil {
		return nil, err
	}

	if spk != nil && g.cond != nil {
		c, err := g.cond.Forward(spk)
		if err != nil {
			return nil, err
		}
		if x, err = addFrames(x, c); err != nil {
			return nil, err
		}
	}

	for i, up := range g.ups {
		if x, err = up.Forward(ops.LeakyReLU(x, lreluSlope)); err != nil {
			return nil, fmt.Errorf("upsample %d: %w", i, err)
		}

		var sum *tensor.Tensor
		for j, rb := range g.blocks[i] {
			y, err := rb.Forward(x)
			if err != nil {
				return nil, fmt.Errorf("resblock %d.%d: %w", i, j, err)
			}
			if sum == nil {
				sum = y
				continue
			}
			if err := tensor.AddInPlace(sum, y); err != nil {
				return nil, err
			}
		}
		if sum != nil {
			sum.Scale(1 / float32(len(g.blocks[i])))
			x = sum
		}
	}

	if x, err = g.post.Forward(ops.LeakyReLU(x, finalLReLUSlope)); err != nil {
		return nil, err
	}

	return ops.Tanh(x), nil
}

package native

import (
	"fmt"
	"math"

	"github.com/example/go-voiceclone/internal/runtime/ops"
	"github.com/example/go-voiceclone/internal/runtime/tensor"
)

const (
	attnWindow       = 4
	condLayerDefault = 2
)

// MultiHeadAttention is self attention with 1x1 projections and
// head-shared relative position embeddings.
type MultiHeadAttention struct {
	q, k, v, o *Conv1d
	relK, relV *tensor.Tensor // [1, 2*window+1, C/heads]
	heads      int
	window     int
}

func newMultiHeadAttention(vb *VarBuilder, channels int64, heads int) (*MultiHeadAttention, error) {
	a := &MultiHeadAttention{heads: heads, window: attnWindow}

	var err error
	for _, p := range []struct {
		name string
		dst  **Conv1d
	}{{"conv_q", &a.q}, {"conv_k", &a.k}, {"conv_v", &a.v}, {"conv_o", &a.o}} {
		*p.dst, err = newConv1d(vb.Path(p.name), convSpec{in: channels, out: channels})
		if err != nil {
			return nil, err
		}
	}

	kc := channels / int64(heads)
	span := int64(2*attnWindow + 1)
	std := math.Pow(float64(kc), -0.5)

	if a.relK, err = vb.Param("emb_rel_k", Normal(0, std), 1, span, kc); err != nil {
		return nil, err
	}
	if a.relV, err = vb.Param("emb_rel_v", Normal(0, std), 1, span, kc); err != nil {
		return nil, err
	}

	return a, nil
}

func (a *MultiHeadAttention) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	q, err := a.q.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("attention q: %w", err)
	}
	k, err := a.k.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("attention k: %w", err)
	}
	v, err := a.v.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("attention v: %w", err)
	}

	y, err := ops.RelativeAttention(q, k, v, a.relK, a.relV, a.heads, a.window)
	if err != nil {
		return nil, err
	}

	return a.o.Forward(y)
}

// FFN is conv -> relu -> conv with "same" padding.
type FFN struct {
	conv1, conv2 *Conv1d
}

func newFFN(vb *VarBuilder, channels, filter, kernel int64) (*FFN, error) {
	c1, err := newConv1d(vb.Path("conv_1"), convSpec{in: channels, out: filter, kernel: kernel, padding: kernel / 2})
	if err != nil {
		return nil, err
	}

	c2, err := newConv1d(vb.Path("conv_2"), convSpec{in: filter, out: channels, kernel: kernel, padding: kernel / 2})
	if err != nil {
		return nil, err
	}

	return &FFN{conv1: c1, conv2: c2}, nil
}

func (f *FFN) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	h, err := f.conv1.Forward(x)
	if err != nil {
		return nil, err
	}

	return f.conv2.Forward(ops.ReLU(h))
}

type encoderLayer struct {
	attn  *MultiHeadAttention
	norm1 *ChannelNorm
	ffn   *FFN
	norm2 *ChannelNorm
}

// AttentionEncoder is the post-norm transformer stack of the text encoder.
type AttentionEncoder struct {
	layers    []encoderLayer
	spkLinear *Linear
	condLayer int
}

func newAttentionEncoder(vb *VarBuilder, hp Hparams) (*AttentionEncoder, error) {
	h := int64(hp.HiddenChannels)
	enc := &AttentionEncoder{condLayer: hp.NLayers}

	for i := range hp.NLayers {
		attn, err := newMultiHeadAttention(vb.Pathf("attn_layers.%d", i), h, hp.NHeads)
		if err != nil {
			return nil, err
		}
		n1, err := newChannelNorm(vb.Pathf("norm_layers_1.%d", i), h)
		if err != nil {
			return nil, err
		}
		ffn, err := newFFN(vb.Pathf("ffn_layers.%d", i), h, int64(hp.FilterChannels), int64(hp.KernelSize))
		if err != nil {
			return nil, err
		}
		n2, err := newChannelNorm(vb.Pathf("norm_layers_2.%d", i), h)
		if err != nil {
			return nil, err
		}
		enc.layers = append(enc.layers, encoderLayer{attn: attn, norm1: n1, ffn: ffn, norm2: n2})
	}

	// Speaker conditioning inside the encoder only exists in checkpoints
	// trained with it.
	if vb.Has("spk_emb_linear.weight") && hp.GinChannels > 0 {
		lin, err := newLinear(vb.Path("spk_emb_linear"), int64(hp.GinChannels), h)
		if err != nil {
			return nil, err
		}
		enc.spkLinear = lin
		enc.condLayer = min(condLayerDefault, max(hp.NLayers-1, 0))
	}

	return enc, nil
}

// Forward runs x [1, H, T] through every layer. g is [1, gin, 1] or nil.
func (e *AttentionEncoder) Forward(x, g *tensor.Tensor) (*tensor.Tensor, error) {
	for i, l := range e.layers {
		if i == e.condLayer && e.spkLinear != nil && g != nil {
			flat, err := g.Reshape([]int64{1, g.Dim(1)})
			if err != nil {
				return nil, err
			}
			proj, err := e.spkLinear.Forward(flat)
			if err != nil {
				return nil, err
			}
			proj, err = proj.Reshape([]int64{1, proj.Dim(1), 1})
			if err != nil {
				return nil, err
			}
			if x, err = addFrames(x, proj); err != nil {
				return nil, err
			}
		}

		y, err := l.attn.Forward(x)
		if err != nil {
			return nil, fmt.Errorf("encoder layer %d: %w", i, err)
		}
		if x, err = tensor.Add(x, y); err != nil {
			return nil, err
		}
		if x, err = l.norm1.Forward(x); err != nil {
			return nil, err
		}

		y, err = l.ffn.Forward(x)
		if err != nil {
			return nil, fmt.Errorf("encoder layer %d ffn: %w", i, err)
		}
		if x, err = tensor.Add(x, y); err != nil {
			return nil, err
		}
		if x, err = l.norm2.Forward(x); err != nil {
			return nil, err
		}
	}

	return x, nil
}

// TextEncoder maps token ids to hidden states and the prior's mean and
// log-scale.
type TextEncoder struct {
	emb     *Embedding
	encoder *AttentionEncoder
	proj    *Conv1d
	hidden  int64
	inter   int64
}

func newTextEncoder(vb *VarBuilder, hp Hparams) (*TextEncoder, error) {
	h := int64(hp.HiddenChannels)

	emb, err := newEmbedding(vb.Path("emb"), int64(hp.NVocab), h, Normal(0, math.Pow(float64(h), -0.5)))
	if err != nil {
		return nil, err
	}

	enc, err := newAttentionEncoder(vb.Path("encoder"), hp)
	if err != nil {
		return nil, err
	}

	proj, err := newConv1d(vb.Path("proj"), convSpec{in: h, out: 2 * int64(hp.InterChannels)})
	if err != nil {
		return nil, err
	}

	return &TextEncoder{emb: emb, encoder: enc, proj: proj, hidden: h, inter: int64(hp.InterChannels)}, nil
}

// Forward returns x [1, H, T], m [1, inter, T] and logs [1, inter, T].
func (te *TextEncoder) Forward(ids []int, g *tensor.Tensor) (x, m, logs *tensor.Tensor, err error) {
	e, err := te.emb.Lookup(ids)
	if err != nil {
		return nil, nil, nil, err
	}
	e.Scale(float32(math.Sqrt(float64(te.hidden))))

	x, err = e.Transpose(0, 1)
	if err != nil {
		return nil, nil, nil, err
	}
	if x, err = x.Reshape([]int64{1, te.hidden, int64(len(ids))}); err != nil {
		return nil, nil, nil, err
	}

	if x, err = te.encoder.Forward(x, g); err != nil {
		return nil, nil, nil, err
	}

	stats, err := te.proj.Forward(x)
	if err != nil {
		return nil, nil, nil, err
	}

	m, logs, err = splitChannels(stats, te.inter)
	if err != nil {
		return nil, nil, nil, err
	}

	return x, m, logs, nil
}

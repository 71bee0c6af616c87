package ops

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/go-voiceclone/internal/runtime/tensor"
)

// LayerNormChannels normalizes x [batch, C, T] across C independently for
// every frame, then applies gamma and beta of shape [C].
func LayerNormChannels(x, gamma, beta *tensor.Tensor, eps float32) (*tensor.Tensor, error) {
	if x == nil {
		return nil, errors.New("ops: layer norm input is nil")
	}

	if x.Rank() != 3 {
		return nil, fmt.Errorf("ops: layer norm expects [batch, C, T], got %v", x.Shape())
	}

	batch, channels, frames := x.Dim(0), x.Dim(1), x.Dim(2)

	for _, p := range []*tensor.Tensor{gamma, beta} {
		if p != nil && (p.Rank() != 1 || p.Dim(0) != channels) {
			return nil, fmt.Errorf("ops: layer norm param shape %v does not match channels %d", p.Shape(), channels)
		}
	}

	out := x.Clone()
	data := out.RawData()

	var g, bt []float32
	if gamma != nil {
		g = gamma.RawData()
	}

	if beta != nil {
		bt = beta.RawData()
	}

	for b := range batch {
		base := b * channels * frames
		for t := range frames {
			var mean float64
			for c := range channels {
				mean += float64(data[base+c*frames+t])
			}

			mean /= float64(channels)

			var variance float64
			for c := range channels {
				d := float64(data[base+c*frames+t]) - mean
				variance += d * d
			}

			variance /= float64(channels)
			inv := 1 / math.Sqrt(variance+float64(eps))

			for c := range channels {
				i := base + c*frames + t
				v := float32((float64(data[i]) - mean) * inv)

				if g != nil {
					v *= g[c]
				}

				if bt != nil {
					v += bt[c]
				}

				data[i] = v
			}
		}
	}

	return out, nil
}

package tensor

import (
	"errors"
	"fmt"
	"math"
)

// Linear computes x·Wᵀ + b over the last dimension of x. weight is
// [out, in]; bias, when set, is [out]. Rows are split across SetWorkers
// goroutines.
func Linear(x, weight, bias *Tensor) (*Tensor, error) {
	if x == nil || weight == nil {
		return nil, errors.New("tensor: linear needs input and weight")
	}
	if x.Rank() < 1 || weight.Rank() != 2 {
		return nil, fmt.Errorf("tensor: linear shapes %v x %v", x.shape, weight.shape)
	}

	in := int(x.shape[len(x.shape)-1])
	outDim := int(weight.shape[0])
	if int(weight.shape[1]) != in {
		return nil, fmt.Errorf("tensor: linear input width %d, weight expects %d", in, weight.shape[1])
	}
	if bias != nil && (bias.Rank() != 1 || int(bias.shape[0]) != outDim) {
		return nil, fmt.Errorf("tensor: linear bias %v for %d outputs", bias.shape, outDim)
	}

	rows := 0
	if in > 0 {
		rows = len(x.data) / in
	}
	out := make([]float32, rows*outDim)

	eachRange(rows, func(lo, hi int) {
		for r := lo; r < hi; r++ {
			xr := x.data[r*in : (r+1)*in]
			yr := out[r*outDim : (r+1)*outDim]
			for o := range yr {
				v := DotProduct(xr, weight.data[o*in:(o+1)*in])
				if bias != nil {
					v += bias.data[o]
				}
				yr[o] = v
			}
		}
	})

	shape := append([]int64(nil), x.shape...)
	shape[len(shape)-1] = int64(outDim)
	return wrap(out, shape), nil
}

// LayerNorm normalizes each vector along the last dimension to zero mean
// and unit variance, then applies the optional affine weight and bias.
func LayerNorm(x, weight, bias *Tensor, eps float32) (*Tensor, error) {
	if x == nil || x.Rank() < 1 {
		return nil, errors.New("tensor: layernorm needs a tensor of rank >= 1")
	}
	if eps <= 0 {
		return nil, errors.New("tensor: layernorm eps must be positive")
	}

	width := int(x.shape[len(x.shape)-1])
	if width == 0 {
		return nil, errors.New("tensor: layernorm over empty dimension")
	}
	for _, p := range []*Tensor{weight, bias} {
		if p != nil && (p.Rank() != 1 || int(p.shape[0]) != width) {
			return nil, fmt.Errorf("tensor: layernorm parameter %v for width %d", p.shape, width)
		}
	}

	out := make([]float32, len(x.data))
	for lo := 0; lo < len(x.data); lo += width {
		src := x.data[lo : lo+width]

		var sum, sq float64
		for _, v := range src {
			sum += float64(v)
		}
		mean := sum / float64(width)
		for _, v := range src {
			d := float64(v) - mean
			sq += d * d
		}
		inv := 1 / math.Sqrt(sq/float64(width)+float64(eps))

		dst := out[lo : lo+width]
		for i, v := range src {
			n := float32((float64(v) - mean) * inv)
			if weight != nil {
				n *= weight.data[i]
			}
			if bias != nil {
				n += bias.data[i]
			}
			dst[i] = n
		}
	}

	return wrap(out, x.shape), nil
}

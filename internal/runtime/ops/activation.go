package ops

import (
	"fmt"
	"math"

	"github.com/example/go-voiceclone/internal/runtime/tensor"
)

// ReLU returns max(x, 0).
func ReLU(x *tensor.Tensor) *tensor.Tensor {
	return tensor.Map(x, func(v float32) float32 { return max(v, 0) })
}

// LeakyReLU returns x for x >= 0 and slope*x otherwise.
func LeakyReLU(x *tensor.Tensor, slope float32) *tensor.Tensor {
	return tensor.Map(x, func(v float32) float32 {
		if v < 0 {
			return v * slope
		}

		return v
	})
}

// GELU is the exact erf formulation.
func GELU(x *tensor.Tensor) *tensor.Tensor {
	return tensor.Map(x, gelu)
}

func Tanh(x *tensor.Tensor) *tensor.Tensor {
	return tensor.Map(x, func(v float32) float32 { return float32(math.Tanh(float64(v))) })
}

func Sigmoid(x *tensor.Tensor) *tensor.Tensor {
	return tensor.Map(x, sigmoid)
}

func gelu(v float32) float32 {
	return float32(0.5 * float64(v) * (1 + math.Erf(float64(v)/math.Sqrt2)))
}

func sigmoid(v float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(v))))
}

// GatedTanhSigmoid splits the channel axis of x [1, 2h, T] into halves a
// and b and returns tanh(a) * sigmoid(b) with shape [1, h, T].
func GatedTanhSigmoid(x *tensor.Tensor) (*tensor.Tensor, error) {
	if x == nil || x.Rank() != 3 || x.Dim(1)%2 != 0 {
		return nil, fmt.Errorf("ops: gated activation expects [batch, 2h, T], got %v", x.Shape())
	}

	batch, h, frames := x.Dim(0), x.Dim(1)/2, x.Dim(2)
	in := x.RawData()
	out := make([]float32, batch*h*frames)

	for b := range batch {
		for c := range h {
			aRow := in[(b*2*h+c)*frames : (b*2*h+c+1)*frames]
			bRow := in[(b*2*h+h+c)*frames : (b*2*h+h+c+1)*frames]
			dst := out[(b*h+c)*frames : (b*h+c+1)*frames]

			for i := range dst {
				dst[i] = float32(math.Tanh(float64(aRow[i]))) * sigmoid(bRow[i])
			}
		}
	}

	return tensor.New(out, []int64{batch, h, frames})
}

package ops

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/go-voiceclone/internal/runtime/tensor"
)

// GRUWeights holds a single-layer unidirectional GRU with gates stacked in
// reset, update, new order.
type GRUWeights struct {
	WeightIH *tensor.Tensor // [3H, in]
	WeightHH *tensor.Tensor // [3H, H]
	BiasIH   *tensor.Tensor // [3H]
	BiasHH   *tensor.Tensor // [3H]
}

// Hidden returns H.
func (w GRUWeights) Hidden() int64 {
	if w.WeightHH == nil {
		return 0
	}

	return w.WeightHH.Dim(1)
}

// GRU runs x [T, in] through the cell from a zero state and returns the
// final hidden state [H].
func GRU(x *tensor.Tensor, w GRUWeights) (*tensor.Tensor, error) {
	if x == nil || w.WeightIH == nil || w.WeightHH == nil {
		return nil, errors.New("ops: gru requires input and weights")
	}

	if x.Rank() != 2 {
		return nil, fmt.Errorf("ops: gru expects [T, in], got %v", x.Shape())
	}

	h := w.Hidden()
	if w.WeightIH.Dim(0) != 3*h || w.WeightHH.Dim(0) != 3*h {
		return nil, fmt.Errorf("ops: gru gate shapes %v / %v do not match hidden %d", w.WeightIH.Shape(), w.WeightHH.Shape(), h)
	}

	gi, err := tensor.Linear(x, w.WeightIH, w.BiasIH)
	if err != nil {
		return nil, fmt.Errorf("ops: gru input projection: %w", err)
	}

	steps := int(x.Dim(0))
	hi := int(h)
	state := make([]float32, hi)
	gh := make([]float32, 3*hi)
	whh := w.WeightHH.RawData()

	var bhh []float32
	if w.BiasHH != nil {
		bhh = w.BiasHH.RawData()
	}

	giData := gi.RawData()

	for t := range steps {
		for j := range 3 * hi {
			gh[j] = tensor.DotProduct(whh[j*hi:(j+1)*hi], state)
			if bhh != nil {
				gh[j] += bhh[j]
			}
		}

		in := giData[t*3*hi : (t+1)*3*hi]
		for j := range hi {
			r := sigmoid(in[j] + gh[j])
			z := sigmoid(in[hi+j] + gh[hi+j])
			n := float32(math.Tanh(float64(in[2*hi+j] + r*gh[2*hi+j])))
			state[j] = (1-z)*n + z*state[j]
		}
	}

	return tensor.New(state, []int64{h})
}

package ops

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/go-voiceclone/internal/runtime/tensor"
)

// FoldWeightNorm materializes w = g * v / ||v||, with the norm taken over
// every dimension except the first. g holds one magnitude per output slice
// and may be shaped [out] or [out, 1, ...].
func FoldWeightNorm(g, v *tensor.Tensor) (*tensor.Tensor, error) {
	if g == nil || v == nil {
		return nil, errors.New("ops: weight norm requires g and v")
	}

	if v.Rank() < 1 {
		return nil, errors.New("ops: weight norm direction must have rank >= 1")
	}

	out := v.Dim(0)
	if int64(g.ElemCount()) != out {
		return nil, fmt.Errorf("ops: weight norm magnitude %v does not match direction %v", g.Shape(), v.Shape())
	}

	w := v.Clone()
	data := w.RawData()
	mags := g.RawData()
	per := len(data) / int(out)

	for o := range int(out) {
		row := data[o*per : (o+1)*per]

		var sq float64
		for _, x := range row {
			sq += float64(x) * float64(x)
		}

		norm := math.Sqrt(sq)
		if norm == 0 {
			continue
		}

		scale := float32(float64(mags[o]) / norm)
		for i := range row {
			row[i] *= scale
		}
	}

	return w, nil
}

package ops

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/go-voiceclone/internal/runtime/tensor"
)

// RelativeAttention computes multi-head self attention over projected
// q, k, v [1, C, T] with learned relative position embeddings.
//
// relK and relV are [heads or 1, 2*window+1, C/heads]. Offsets beyond the
// window contribute nothing.
func RelativeAttention(q, k, v, relK, relV *tensor.Tensor, heads, window int) (*tensor.Tensor, error) {
	if q == nil || k == nil || v == nil {
		return nil, errors.New("ops: attention requires q, k and v")
	}

	if q.Rank() != 3 || q.Dim(0) != 1 {
		return nil, fmt.Errorf("ops: attention expects [1, C, T], got %v", q.Shape())
	}

	channels, frames := int(q.Dim(1)), int(q.Dim(2))
	if heads <= 0 || channels%heads != 0 {
		return nil, fmt.Errorf("ops: attention channels %d not divisible by heads %d", channels, heads)
	}

	kc := channels / heads
	span := 2*window + 1

	for _, rel := range []*tensor.Tensor{relK, relV} {
		if rel == nil {
			continue
		}

		if rel.Rank() != 3 || rel.Dim(1) != int64(span) || rel.Dim(2) != int64(kc) {
			return nil, fmt.Errorf("ops: relative embedding shape %v, want [*, %d, %d]", rel.Shape(), span, kc)
		}
	}

	qd, kd, vd := q.RawData(), k.RawData(), v.RawData()
	out := make([]float32, channels*frames)
	scale := float32(1 / math.Sqrt(float64(kc)))

	splitWork(heads, func(lo, hi int) {
		qi := make([]float32, kc)
		scores := make([]float64, frames)

		for hd := lo; hd < hi; hd++ {
			rk := relSlice(relK, hd, span, kc)
			rv := relSlice(relV, hd, span, kc)
			base := hd * kc

			for i := range frames {
				for c := range kc {
					qi[c] = qd[(base+c)*frames+i] * scale
				}

				maxS := math.Inf(-1)
				for j := range frames {
					var s float32
					for c := range kc {
						s += qi[c] * kd[(base+c)*frames+j]
					}

					if off := j - i; rk != nil && off >= -window && off <= window {
						s += tensor.DotProduct(qi, rk[(off+window)*kc:(off+window+1)*kc])
					}

					scores[j] = float64(s)
					maxS = math.Max(maxS, scores[j])
				}

				var sum float64
				for j := range frames {
					scores[j] = math.Exp(scores[j] - maxS)
					sum += scores[j]
				}

				for j := range frames {
					p := float32(scores[j] / sum)
					if p == 0 {
						continue
					}

					for c := range kc {
						out[(base+c)*frames+i] += p * vd[(base+c)*frames+j]
					}

					if off := j - i; rv != nil && off >= -window && off <= window {
						row := rv[(off+window)*kc : (off+window+1)*kc]
						for c := range kc {
							out[(base+c)*frames+i] += p * row[c]
						}
					}
				}
			}
		}
	})

	return tensor.New(out, []int64{1, int64(channels), int64(frames)})
}

func relSlice(rel *tensor.Tensor, head, span, kc int) []float32 {
	if rel == nil {
		return nil
	}

	h := 0
	if rel.Dim(0) > 1 {
		h = head
	}

	return rel.RawData()[h*span*kc : (h+1)*span*kc]
}

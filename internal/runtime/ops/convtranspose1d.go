package ops

import (
	"errors"
	"fmt"

	"github.com/example/go-voiceclone/internal/runtime/tensor"
)

// ConvTranspose1D is the adjoint of Conv1D, used for upsampling.
// input: [batch, in, length]; kernel: [in, out/groups, k]; bias: [out].
func ConvTranspose1D(input, kernel, bias *tensor.Tensor, stride, padding, outputPadding, dilation, groups int64) (*tensor.Tensor, error) {
	if input == nil || kernel == nil {
		return nil, errors.New("ops: convtranspose1d needs input and kernel")
	}
	if stride <= 0 || dilation <= 0 || groups <= 0 || padding < 0 {
		return nil, fmt.Errorf("ops: convtranspose1d stride=%d padding=%d dilation=%d groups=%d", stride, padding, dilation, groups)
	}
	if outputPadding < 0 || outputPadding >= stride {
		return nil, fmt.Errorf("ops: convtranspose1d output padding %d outside [0, %d)", outputPadding, stride)
	}

	in, k := input.Shape(), kernel.Shape()
	if len(in) != 3 || len(k) != 3 {
		return nil, fmt.Errorf("ops: convtranspose1d wants rank-3 input and kernel, got %v and %v", in, k)
	}
	if k[0] != in[1] {
		return nil, fmt.Errorf("ops: convtranspose1d kernel %v for %d input channels", k, in[1])
	}

	g := int(groups)
	s := conv1dShape{
		batch: int(in[0]), inCh: int(in[1]), inLen: int(in[2]),
		outPerGroup: int(k[1]), kernel: int(k[2]),
		stride: int(stride), pad: int(padding), dilation: int(dilation),
	}
	if s.inCh%g != 0 {
		return nil, fmt.Errorf("ops: convtranspose1d %d input channels not divisible by groups %d", s.inCh, g)
	}
	s.inPerGroup = s.inCh / g
	s.outCh = s.outPerGroup * g
	s.outLen = (s.inLen-1)*s.stride - 2*s.pad + s.dilation*(s.kernel-1) + int(outputPadding) + 1
	if s.outLen <= 0 {
		return nil, fmt.Errorf("ops: convtranspose1d output length %d", s.outLen)
	}

	bd, err := biasData(bias, s.outCh, "convtranspose1d")
	if err != nil {
		return nil, err
	}

	out, err := tensor.Zeros([]int64{int64(s.batch), int64(s.outCh), int64(s.outLen)})
	if err != nil {
		return nil, err
	}

	convTranspose1d(s, input.RawData(), kernel.RawData(), bd, out.RawData())
	return out, nil
}

// convTranspose1d scatters every input sample of the group through each
// tap. Each worker owns a range of output channels, so rows never race.
func convTranspose1d(s conv1dShape, x, w, bias, y []float32) {
	for b := range s.batch {
		xb := x[b*s.inCh*s.inLen:]
		yb := y[b*s.outCh*s.outLen:]

		splitWork(s.outCh, func(lo, hi int) {
			for oc := lo; oc < hi; oc++ {
				row := yb[oc*s.outLen : (oc+1)*s.outLen]
				grp, ocg := oc/s.outPerGroup, oc%s.outPerGroup

				for ic := grp * s.inPerGroup; ic < (grp+1)*s.inPerGroup; ic++ {
					src := xb[ic*s.inLen : (ic+1)*s.inLen]
					taps := w[(ic*s.outPerGroup+ocg)*s.kernel:]

					for kx := range s.kernel {
						wv := taps[kx]
						if wv == 0 {
							continue
						}
						off := kx*s.dilation - s.pad
						for ix, v := range src {
							if p := ix*s.stride + off; p >= 0 && p < s.outLen {
								row[p] += wv * v
							}
						}
					}
				}

				if bias != nil {
					for i := range row {
						row[i] += bias[oc]
					}
				}
			}
		})
	}
}

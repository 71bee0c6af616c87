package ops

import (
	"errors"
	"fmt"

	"github.com/example/go-voiceclone/internal/runtime/tensor"
)

// conv1dShape describes one 1-D convolution, plain or transposed.
type conv1dShape struct {
	batch, inCh, inLen    int
	outCh, outLen, kernel int
	inPerGroup            int
	outPerGroup           int
	stride, pad, dilation int
}

// taps returns the first input index read for tap kx, and the first and end
// output positions whose read stays inside [0, inLen).
func (s conv1dShape) taps(kx int) (inStart, oxLo, oxHi int) {
	off := kx*s.dilation - s.pad
	// ox*stride + off >= 0
	oxLo = 0
	if off < 0 {
		oxLo = (-off + s.stride - 1) / s.stride
	}
	// ox*stride + off <= inLen-1
	last := s.inLen - 1 - off
	if last < 0 {
		return 0, 0, 0
	}
	oxHi = min(s.outLen, last/s.stride+1)
	return oxLo*s.stride + off, oxLo, oxHi
}

func biasData(bias *tensor.Tensor, outCh int, op string) ([]float32, error) {
	if bias == nil {
		return nil, nil
	}
	if sh := bias.Shape(); len(sh) != 1 || int(sh[0]) != outCh {
		return nil, fmt.Errorf("ops: %s bias shape %v for %d output channels", op, sh, outCh)
	}
	return bias.RawData(), nil
}

// Conv1D is a direct 1-D convolution.
// input: [batch, in, length]; kernel: [out, in/groups, k]; bias: [out].
func Conv1D(input, kernel, bias *tensor.Tensor, stride, padding, dilation, groups int64) (*tensor.Tensor, error) {
	if input == nil || kernel == nil {
		return nil, errors.New("ops: conv1d needs input and kernel")
	}
	if stride <= 0 || dilation <= 0 || groups <= 0 || padding < 0 {
		return nil, fmt.Errorf("ops: conv1d stride=%d padding=%d dilation=%d groups=%d", stride, padding, dilation, groups)
	}

	in, k := input.Shape(), kernel.Shape()
	if len(in) != 3 || len(k) != 3 {
		return nil, fmt.Errorf("ops: conv1d wants rank-3 input and kernel, got %v and %v", in, k)
	}

	g := int(groups)
	s := conv1dShape{
		batch: int(in[0]), inCh: int(in[1]), inLen: int(in[2]),
		outCh: int(k[0]), kernel: int(k[2]),
		stride: int(stride), pad: int(padding), dilation: int(dilation),
	}
	if s.inCh%g != 0 || s.outCh%g != 0 {
		return nil, fmt.Errorf("ops: conv1d channels %d->%d not divisible by groups %d", s.inCh, s.outCh, g)
	}
	s.inPerGroup, s.outPerGroup = s.inCh/g, s.outCh/g
	if int(k[1]) != s.inPerGroup {
		return nil, fmt.Errorf("ops: conv1d kernel %v expects %d input channels per group, input has %d", k, k[1], s.inPerGroup)
	}
	s.outLen = (s.inLen+2*s.pad-s.dilation*(s.kernel-1)-1)/s.stride + 1
	if s.outLen <= 0 {
		return nil, fmt.Errorf("ops: conv1d input length %d too short for kernel %d", s.inLen, s.kernel)
	}

	bd, err := biasData(bias, s.outCh, "conv1d")
	if err != nil {
		return nil, err
	}

	out, err := tensor.Zeros([]int64{int64(s.batch), int64(s.outCh), int64(s.outLen)})
	if err != nil {
		return nil, err
	}

	conv1d(s, input.RawData(), kernel.RawData(), bd, out.RawData())
	return out, nil
}

// conv1d accumulates each kernel tap as a strided shift of an input row.
// Output channels are independent, so they split across workers.
func conv1d(s conv1dShape, x, w, bias, y []float32) {
	for b := range s.batch {
		xb := x[b*s.inCh*s.inLen:]
		yb := y[b*s.outCh*s.outLen:]

		splitWork(s.outCh, func(lo, hi int) {
			for oc := lo; oc < hi; oc++ {
				row := yb[oc*s.outLen : (oc+1)*s.outLen]
				if bias != nil {
					for i := range row {
						row[i] = bias[oc]
					}
				}

				icBase := oc / s.outPerGroup * s.inPerGroup
				for ic := range s.inPerGroup {
					src := xb[(icBase+ic)*s.inLen : (icBase+ic+1)*s.inLen]
					taps := w[(oc*s.inPerGroup+ic)*s.kernel:]

					for kx := range s.kernel {
						wv := taps[kx]
						if wv == 0 {
							continue
						}
						pos, lo, hi := s.taps(kx)
						for ox := lo; ox < hi; ox++ {
							row[ox] += wv * src[pos]
							pos += s.stride
						}
					}
				}
			}
		})
	}
}

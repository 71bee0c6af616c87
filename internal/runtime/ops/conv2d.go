package ops

import (
	"errors"
	"fmt"

	"github.com/example/go-voiceclone/internal/runtime/tensor"
)

// Conv2D performs a CPU Conv2d with equal stride and padding on both axes.
// input: [batch, in_channels, height, width]
// kernel: [out_channels, in_channels, kh, kw]
func Conv2D(input, kernel, bias *tensor.Tensor, stride, padding int64) (*tensor.Tensor, error) {
	if input == nil || kernel == nil {
		return nil, errors.New("ops: conv2d requires non-nil input/kernel")
	}

	if stride <= 0 || padding < 0 {
		return nil, errors.New("ops: conv2d stride must be > 0 and padding >= 0")
	}

	if input.Rank() != 4 || kernel.Rank() != 4 {
		return nil, fmt.Errorf("ops: conv2d expects input/kernel rank 4, got %v and %v", input.Shape(), kernel.Shape())
	}

	batch, inCh, height, width := input.Dim(0), input.Dim(1), input.Dim(2), input.Dim(3)
	outCh, kh, kw := kernel.Dim(0), kernel.Dim(2), kernel.Dim(3)

	if kernel.Dim(1) != inCh {
		return nil, fmt.Errorf("ops: conv2d kernel in_channels %d does not match input %d", kernel.Dim(1), inCh)
	}

	if bias != nil && (bias.Rank() != 1 || bias.Dim(0) != outCh) {
		return nil, fmt.Errorf("ops: conv2d bias shape %v does not match out_channels %d", bias.Shape(), outCh)
	}

	outH := (height+2*padding-kh)/stride + 1
	outW := (width+2*padding-kw)/stride + 1

	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("ops: conv2d produced non-positive output %dx%d", outH, outW)
	}

	out, err := tensor.Zeros([]int64{batch, outCh, outH, outW})
	if err != nil {
		return nil, err
	}

	in := input.RawData()
	k := kernel.RawData()
	dst := out.RawData()

	var bd []float32
	if bias != nil {
		bd = bias.RawData()
	}

	for b := range batch {
		splitWork(int(outCh), func(lo, hi int) {
			for oc := int64(lo); oc < int64(hi); oc++ {
				plane := dst[((b*outCh)+oc)*outH*outW : ((b*outCh)+oc+1)*outH*outW]

				for oy := range outH {
					for ox := range outW {
						var sum float32
						if bd != nil {
							sum = bd[oc]
						}

						for ic := range inCh {
							inBase := ((b * inCh) + ic) * height * width
							kBase := ((oc * inCh) + ic) * kh * kw

							for ky := range kh {
								iy := oy*stride - padding + ky
								if iy < 0 || iy >= height {
									continue
								}

								for kx := range kw {
									ix := ox*stride - padding + kx
									if ix < 0 || ix >= width {
										continue
									}

									sum += in[inBase+iy*width+ix] * k[kBase+ky*kw+kx]
								}
							}
						}

						plane[oy*outW+ox] = sum
					}
				}
			}
		})
	}

	return out, nil
}

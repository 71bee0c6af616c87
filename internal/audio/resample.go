package audio

import "math"

// resampleZeroCrossings is the half-width of the interpolation kernel in
// zero crossings of the low-pass sinc.
const resampleZeroCrossings = 16

// TODO: move to the algo-dsp resampler once a vendored copy pins its API;
// the tests in resample_test.go are the contract it must keep.

// Resample converts samples from one rate to another with a Hann-windowed
// sinc kernel. Downsampling lowers the cutoff to the target Nyquist. The
// output has ceil(len*to/from) samples.
func Resample(samples []float32, from, to int) []float32 {
	if from <= 0 || to <= 0 || from == to || len(samples) == 0 {
		return append([]float32(nil), samples...)
	}

	ratio := float64(to) / float64(from)
	outLen := int(math.Ceil(float64(len(samples)) * ratio))
	cutoff := math.Min(1, ratio)
	halfWidth := resampleZeroCrossings / cutoff

	out := make([]float32, outLen)
	for i := range out {
		center := float64(i) / ratio
		lo := max(int(math.Ceil(center-halfWidth)), 0)
		hi := min(int(math.Floor(center+halfWidth)), len(samples)-1)

		var acc, norm float64
		for j := lo; j <= hi; j++ {
			d := center - float64(j)
			w := cutoff * sinc(cutoff*d) * hann(d, halfWidth)
			acc += w * float64(samples[j])
			norm += w
		}
		if norm != 0 {
			acc /= norm
		}
		out[i] = float32(acc)
	}

	return out
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

func hann(x, halfWidth float64) float64 {
	if math.Abs(x) >= halfWidth {
		return 0
	}
	return 0.5 + 0.5*math.Cos(math.Pi*x/halfWidth)
}

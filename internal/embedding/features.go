package embedding

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// Framing used for the spectral statistics.
var featureSTFT = STFTParams{NFFT: 2048, Hop: 512, Win: 2048}

const rolloffPercent = 0.85

// SpectralCentroid is the magnitude-weighted mean frequency of each frame.
func SpectralCentroid(power [][]float64, sampleRate, nfft int) []float64 {
	freqs := binFrequencies(sampleRate, nfft)
	out := make([]float64, len(power))
	for f, frame := range power {
		var num, den float64
		for k, p := range frame {
			mag := math.Sqrt(p)
			num += freqs[k] * mag
			den += mag
		}
		if den > 0 {
			out[f] = num / den
		}
	}
	return out
}

// SpectralRolloff is the frequency below which 85% of each frame's
// magnitude lies.
func SpectralRolloff(power [][]float64, sampleRate, nfft int) []float64 {
	freqs := binFrequencies(sampleRate, nfft)
	out := make([]float64, len(power))
	for f, frame := range power {
		var total float64
		for _, p := range frame {
			total += math.Sqrt(p)
		}
		threshold := rolloffPercent * total

		var acc float64
		for k, p := range frame {
			acc += math.Sqrt(p)
			if acc >= threshold {
				out[f] = freqs[k]
				break
			}
		}
	}
	return out
}

// frames slices x into centered windows of length frameLength every hop
// samples. pad selects edge replication (true) or zeros.
func frames(x []float32, frameLength, hop int, edge bool) [][]float64 {
	half := frameLength / 2
	padded := make([]float64, len(x)+2*half)
	for i, v := range x {
		padded[half+i] = float64(v)
	}
	if edge && len(x) > 0 {
		for i := range half {
			padded[i] = float64(x[0])
			padded[len(padded)-1-i] = float64(x[len(x)-1])
		}
	}

	if len(padded) < frameLength {
		return nil
	}

	n := 1 + (len(padded)-frameLength)/hop
	out := make([][]float64, n)
	for i := range out {
		out[i] = padded[i*hop : i*hop+frameLength]
	}
	return out
}

// ZeroCrossingRate is the fraction of sign changes in each frame.
func ZeroCrossingRate(samples []float32, frameLength, hop int) []float64 {
	fr := frames(samples, frameLength, hop, true)
	out := make([]float64, len(fr))
	for i, frame := range fr {
		crossings := 0
		for j := 1; j < len(frame); j++ {
			if (frame[j] >= 0) != (frame[j-1] >= 0) {
				crossings++
			}
		}
		out[i] = float64(crossings) / float64(frameLength)
	}
	return out
}

// FrameRMS is the root mean square of each centered frame.
func FrameRMS(samples []float32, frameLength, hop int) []float64 {
	fr := frames(samples, frameLength, hop, false)
	out := make([]float64, len(fr))
	for i, frame := range fr {
		var sum float64
		for _, v := range frame {
			sum += v * v
		}
		out[i] = math.Sqrt(sum / float64(frameLength))
	}
	return out
}

// summary holds the order statistics the extractors draw from.
type summary struct {
	mean, std, median, p25, p75 float64
}

// summarize computes population statistics. x is not modified.
func summarize(x []float64) summary {
	if len(x) == 0 {
		return summary{}
	}

	sorted := slices.Clone(x)
	slices.Sort(sorted)

	mean, std := stat.PopMeanStdDev(sorted, nil)
	return summary{
		mean:   mean,
		std:    std,
		median: percentile(sorted, 0.5),
		p25:    percentile(sorted, 0.25),
		p75:    percentile(sorted, 0.75),
	}
}

// percentile interpolates linearly between closest ranks of sorted, the
// convention numpy uses.
func percentile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := min(lo+1, len(sorted)-1)
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

package audio

import "math"

// Hook transforms a buffer, possibly in place, and returns the result.
type Hook func(samples []float32) []float32

func ApplyHooks(samples []float32, hooks ...Hook) []float32 {
	out := samples
	for _, hook := range hooks {
		out = hook(out)
	}

	return out
}

// Peak returns the largest absolute sample value.
func Peak(samples []float32) float32 {
	var peak float32
	for _, s := range samples {
		if a := float32(math.Abs(float64(s))); a > peak {
			peak = a
		}
	}
	return peak
}

// RMS is the root mean square level, 0 for an empty buffer.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Mean is the arithmetic mean, 0 for an empty buffer.
func Mean(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s)
	}
	return sum / float64(len(samples))
}

// RemoveDC subtracts the mean in place.
func RemoveDC(samples []float32) []float32 {
	m := float32(Mean(samples))
	for i := range samples {
		samples[i] -= m
	}
	return samples
}

// PeakNormalize scales samples in place so the peak reaches target.
// Silence is left untouched.
func PeakNormalize(samples []float32, target float64) []float32 {
	peak := float64(Peak(samples))
	if peak == 0 {
		return samples
	}

	g := float32(target / (peak + 1e-9))
	for i := range samples {
		samples[i] *= g
	}
	return samples
}

// LiftRMS applies makeup gain in place when the level falls below
// hysteresis*target, bringing it to target.
func LiftRMS(samples []float32, target, hysteresis float64) []float32 {
	if len(samples) == 0 {
		return samples
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum/float64(len(samples)) + 1e-9)
	if rms >= target*hysteresis {
		return samples
	}

	g := float32(target / math.Max(rms, 1e-6))
	for i := range samples {
		samples[i] *= g
	}
	return samples
}

// PreEmphasis applies y[n] = x[n] - coef*x[n-1] in place; y[0] = x[0].
func PreEmphasis(samples []float32, coef float64) []float32 {
	c := float32(coef)
	for i := len(samples) - 1; i > 0; i-- {
		samples[i] -= c * samples[i-1]
	}
	return samples
}

// LimitPeak scales samples down in place when the peak exceeds ceiling.
func LimitPeak(samples []float32, ceiling float64) []float32 {
	peak := float64(Peak(samples))
	if peak <= ceiling {
		return samples
	}

	g := float32(ceiling / peak)
	for i := range samples {
		samples[i] *= g
	}
	return samples
}

// ClarityOptions are the per-segment post-processing constants.
type ClarityOptions struct {
	Peak        float64
	TargetRMS   float64
	Hysteresis  float64
	PreEmphasis float64
}

// DefaultClarityOptions: peak 0.89, RMS 0.08 lifted below 90% of target,
// pre-emphasis 0.97.
func DefaultClarityOptions() ClarityOptions {
	return ClarityOptions{Peak: 0.89, TargetRMS: 0.08, Hysteresis: 0.9, PreEmphasis: 0.97}
}

// ClarityHooks returns the segment chain: DC removal, peak normalization,
// RMS makeup gain and pre-emphasis.
func ClarityHooks(o ClarityOptions) []Hook {
	return []Hook{
		RemoveDC,
		func(s []float32) []float32 { return PeakNormalize(s, o.Peak) },
		func(s []float32) []float32 { return LiftRMS(s, o.TargetRMS, o.Hysteresis) },
		func(s []float32) []float32 { return PreEmphasis(s, o.PreEmphasis) },
	}
}

// FinalNormalize removes residual DC and limits the peak to ceiling.
func FinalNormalize(samples []float32, ceiling float64) []float32 {
	return ApplyHooks(samples,
		RemoveDC,
		func(s []float32) []float32 { return LimitPeak(s, ceiling) },
	)
}

// SilenceSamples is the sample count of a pause of seconds at sampleRate.
func SilenceSamples(seconds float64, sampleRate int) int {
	return max(int(seconds*float64(sampleRate)), 0)
}

// Stitch concatenates segments with gap zero samples between consecutive
// segments and none after the last.
func Stitch(segments [][]float32, gap int) []float32 {
	total := 0
	for _, s := range segments {
		total += len(s)
	}
	if len(segments) > 1 {
		total += gap * (len(segments) - 1)
	}

	out := make([]float32, 0, total)
	for i, s := range segments {
		if i > 0 {
			out = append(out, make([]float32, gap)...)
		}
		out = append(out, s...)
	}

	return out
}

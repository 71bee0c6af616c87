package embedding

import (
	"errors"
	"math"
)

// PitchParams bounds the YIN tracker.
type PitchParams struct {
	FMin        float64
	FMax        float64
	FrameLength int
	Hop         int
	// Threshold on the cumulative mean normalized difference.
	Threshold float64
}

// Vocal range used by the pseudo extractor: C2 to C7.
var enhancedPitch = PitchParams{FMin: 65.406, FMax: 2093.005, FrameLength: 2048, Hop: 512, Threshold: 0.1}

// Speech range used by the legacy extractor.
var legacyPitch = PitchParams{FMin: 50, FMax: 600, FrameLength: 1024, Hop: 256, Threshold: 0.1}

// silenceFloor is the frame energy below which a frame is unvoiced.
const silenceFloor = 1e-8

// PitchTrack is a per-frame f0 estimate. Unvoiced frames hold NaN.
type PitchTrack struct {
	F0     []float64
	Voiced []bool
}

// VoicedF0 returns the f0 of voiced frames only.
func (p PitchTrack) VoicedF0() []float64 {
	var out []float64
	for i, v := range p.Voiced {
		if v {
			out = append(out, p.F0[i])
		}
	}
	return out
}

// TrackPitch estimates f0 with the YIN algorithm.
func TrackPitch(samples []float32, sampleRate int, p PitchParams) (PitchTrack, error) {
	if sampleRate <= 0 || p.FMin <= 0 || p.FMax <= p.FMin || p.Hop <= 0 {
		return PitchTrack{}, errors.New("embedding: invalid pitch parameters")
	}

	tauMin := max(int(math.Floor(float64(sampleRate)/p.FMax)), 2)
	tauMax := min(int(math.Ceil(float64(sampleRate)/p.FMin)), p.FrameLength-1)
	if tauMax <= tauMin {
		return PitchTrack{}, errors.New("embedding: frame too short for pitch range")
	}
	window := p.FrameLength - tauMax

	fr := frames(samples, p.FrameLength, p.Hop, false)
	track := PitchTrack{F0: make([]float64, len(fr)), Voiced: make([]bool, len(fr))}

	diff := make([]float64, tauMax+1)
	for i, frame := range fr {
		track.F0[i] = math.NaN()

		var energy float64
		for _, v := range frame[:window] {
			energy += v * v
		}
		if energy/float64(window) < silenceFloor {
			continue
		}

		yinDifference(frame, window, diff)
		tau := yinPick(diff, tauMin, tauMax, p.Threshold)
		if tau < 0 {
			continue
		}

		track.F0[i] = float64(sampleRate) / parabolic(diff, tau)
		track.Voiced[i] = true
	}

	return track, nil
}

// yinDifference fills diff with the cumulative mean normalized difference
// function of frame.
func yinDifference(frame []float64, window int, diff []float64) {
	diff[0] = 1

	var running float64
	for tau := 1; tau < len(diff); tau++ {
		var d float64
		for j := range window {
			delta := frame[j] - frame[j+tau]
			d += delta * delta
		}
		running += d
		if running == 0 {
			diff[tau] = 1
			continue
		}
		diff[tau] = d * float64(tau) / running
	}
}

// yinPick returns the first dip under threshold, walked down to its local
// minimum, or -1 if none.
func yinPick(diff []float64, tauMin, tauMax int, threshold float64) int {
	for tau := tauMin; tau <= tauMax; tau++ {
		if diff[tau] >= threshold {
			continue
		}
		for tau+1 <= tauMax && diff[tau+1] < diff[tau] {
			tau++
		}
		return tau
	}
	return -1
}

// parabolic refines tau with the vertex of the parabola through its
// neighbours.
func parabolic(diff []float64, tau int) float64 {
	if tau <= 0 || tau >= len(diff)-1 {
		return float64(tau)
	}

	a, b, c := diff[tau-1], diff[tau], diff[tau+1]
	den := a - 2*b + c
	if den == 0 {
		return float64(tau)
	}

	return float64(tau) + 0.5*(a-c)/den
}

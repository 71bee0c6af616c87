package native

import (
	"fmt"
	"math"
	"slices"

	"github.com/example/go-voiceclone/internal/runtime/tensor"
)

const (
	// MaxTokenFrames caps the frames one token can occupy.
	MaxTokenFrames = 1000
	// MaxFrames caps the frames of one inference call, about four minutes
	// of audio at a 256-sample hop and 22050 Hz.
	MaxFrames = 20000
)

// ceilDurations converts log durations to whole frame counts:
// ceil(exp(logw) * lengthScale), each clamped to [0, MaxTokenFrames]. The
// frame total is at least 1 and must not exceed MaxFrames.
func ceilDurations(logw []float32, lengthScale float32) ([]int, int, error) {
	durs := make([]int, len(logw))
	total := 0

	for i, lw := range logw {
		w := math.Exp(float64(lw)) * float64(lengthScale)
		switch {
		case math.IsNaN(w) || w < 0:
			w = 0
		case w > MaxTokenFrames:
			w = MaxTokenFrames
		}
		d := int(math.Ceil(w))
		durs[i] = d
		total += d
	}

	if total > MaxFrames {
		return nil, 0, fmt.Errorf("%w: %d frames for %d tokens (max %d)", ErrTooManyFrames, total, len(logw), MaxFrames)
	}

	return durs, max(total, 1), nil
}

// GeneratePath expands per-token durations into a hard monotonic alignment
// path[frame][token]: frame f belongs to token i when
// cum[i-1] <= f < cum[i]. Frames past the last cumulative duration stay
// unassigned.
func GeneratePath(durations []int, frames int) [][]float32 {
	path := make([][]float32, frames)
	for f := range path {
		path[f] = make([]float32, len(durations))
	}

	start := 0
	for i, d := range durations {
		end := start + max(d, 0)
		for f := start; f < end && f < frames; f++ {
			path[f][i] = 1
		}
		start = end
	}

	return path
}

// expandFrames applies the alignment to x [1, C, Tx], producing [1, C, frames]
// where each frame copies its token's column. Unassigned frames are zero.
func expandFrames(x *tensor.Tensor, durations []int, frames int) (*tensor.Tensor, error) {
	if x.Rank() != 3 || int(x.Dim(2)) != len(durations) {
		return nil, fmt.Errorf("native: expand expects [1, C, %d], got %v", len(durations), x.Shape())
	}

	channels := int(x.Dim(1))
	tokens := len(durations)
	out, err := tensor.Zeros([]int64{1, int64(channels), int64(frames)})
	if err != nil {
		return nil, err
	}

	src, dst := x.RawData(), out.RawData()
	f := 0
	for i, d := range durations {
		for range max(d, 0) {
			if f >= frames {
				break
			}
			for c := range channels {
				dst[c*frames+f] = src[c*tokens+i]
			}
			f++
		}
	}

	return out, nil
}

// MedianDuration returns the median of durations, averaging the middle pair
// for even counts.
func MedianDuration(durations []int) float64 {
	if len(durations) == 0 {
		return 0
	}

	sorted := slices.Clone(durations)
	slices.Sort(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return float64(sorted[mid])
	}

	return float64(sorted[mid-1]+sorted[mid]) / 2
}

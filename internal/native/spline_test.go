package native

import (
	"math"
	"testing"
)

func identitySplineParams() (uw, uh, ud []float64) {
	uw = make([]float64, splineBins)
	uh = make([]float64, splineBins)
	ud = make([]float64, splineBins-1)
	for i := range ud {
		ud[i] = splineDerivPad
	}
	return uw, uh, ud
}

func TestRQSInverse_UniformBinsIsIdentity(t *testing.T) {
	uw, uh, ud := identitySplineParams()

	for _, y := range []float64{-5, -4.2, -1, 0, 0.37, 2.5, 4.999, 5} {
		if got := rqsInverse(y, uw, uh, ud); math.Abs(got-y) > 1e-9 {
			t.Errorf("rqsInverse(%v) = %v, want %v", y, got, y)
		}
	}
}

func TestRQSInverse_TailsAreIdentity(t *testing.T) {
	uw := []float64{3, -1, 0, 2, 1, 0, -2, 1, 0, 4}
	uh := []float64{-1, 0, 2, 1, 0, 3, 0, -1, 1, 0}
	ud := []float64{0.5, -0.3, 1, 0, 2, -1, 0.1, 0, 0.7}

	for _, y := range []float64{-9, -5.01, 5.01, 12} {
		if got := rqsInverse(y, uw, uh, ud); got != y {
			t.Errorf("rqsInverse(%v) = %v, want identity", y, got)
		}
	}
}

func TestRQSInverse_MonotonicInsideInterval(t *testing.T) {
	uw := []float64{3, -1, 0, 2, 1, 0, -2, 1, 0, 4}
	uh := []float64{-1, 0, 2, 1, 0, 3, 0, -1, 1, 0}
	ud := []float64{0.5, -0.3, 1, 0, 2, -1, 0.1, 0, 0.7}

	prev := math.Inf(-1)
	for y := -4.99; y < 5; y += 0.01 {
		got := rqsInverse(y, uw, uh, ud)
		if math.IsNaN(got) || got < -5-1e-9 || got > 5+1e-9 {
			t.Fatalf("rqsInverse(%v) = %v escapes the interval", y, got)
		}
		if got < prev-1e-9 {
			t.Fatalf("not monotonic at y=%v: %v < %v", y, got, prev)
		}
		prev = got
	}
}

func TestSplineKnots_SpanInterval(t *testing.T) {
	cum, sizes := splineKnots([]float64{0, 10, -10, 0, 0, 0, 0, 0, 0, 0}, -5, 5)

	if cum[0] != -5 || cum[splineBins] != 5 {
		t.Fatalf("knots span [%v, %v], want [-5, 5]", cum[0], cum[splineBins])
	}

	var total float64
	for i, s := range sizes {
		if s < splineMinBin*10-1e-12 {
			t.Fatalf("bin %d size %v below minimum", i, s)
		}
		total += s
	}
	if math.Abs(total-10) > 1e-9 {
		t.Fatalf("bin sizes sum to %v, want 10", total)
	}
}

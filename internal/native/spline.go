package native

import "math"

const (
	splineBins        = 10
	splineTailBound   = 5.0
	splineMinBin      = 1e-3
	splineMinDeriv    = 1e-3
	splineSearchEps   = 1e-6
	splineParamsPerCh = 3*splineBins - 1
)

// splineDerivPad is the boundary derivative logit that makes the padded
// derivative exactly 1 after softplus, joining the linear tails smoothly.
var splineDerivPad = math.Log(math.Expm1(1 - splineMinDeriv))

// rqsInverse inverts a monotonic rational-quadratic spline on
// [-tailBound, tailBound] with identity tails. uw and uh hold splineBins
// unnormalized widths and heights; ud holds splineBins-1 interior derivative
// logits.
func rqsInverse(y float64, uw, uh, ud []float64) float64 {
	if y < -splineTailBound || y > splineTailBound {
		return y
	}

	left, right := -splineTailBound, splineTailBound

	cumW, widths := splineKnots(uw, left, right)
	cumH, heights := splineKnots(uh, left, right)

	derivs := make([]float64, splineBins+1)
	derivs[0] = splineMinDeriv + softplus(splineDerivPad)
	derivs[splineBins] = derivs[0]
	for i, d := range ud {
		derivs[i+1] = splineMinDeriv + softplus(d)
	}

	// searchsorted over cumulative heights with the last knot nudged up so
	// y == top lands in the last bin.
	bin := -1
	for i, edge := range cumH {
		if i == splineBins {
			edge += splineSearchEps
		}
		if y >= edge {
			bin++
		}
	}
	bin = min(max(bin, 0), splineBins-1)

	inCumW, inW := cumW[bin], widths[bin]
	inCumH, inH := cumH[bin], heights[bin]
	delta := inH / inW
	d0, d1 := derivs[bin], derivs[bin+1]

	shifted := y - inCumH
	a := shifted*(d0+d1-2*delta) + inH*(delta-d0)
	b := inH*d0 - shifted*(d0+d1-2*delta)
	c := -delta * shifted

	disc := b*b - 4*a*c
	if disc < 0 {
		disc = 0
	}

	root := 2 * c / (-b - math.Sqrt(disc))

	return root*inW + inCumW
}

// splineKnots turns unnormalized bin sizes into cumulative knot positions
// (splineBins+1 values spanning [lo, hi]) and the resulting bin sizes.
func splineKnots(u []float64, lo, hi float64) (cum, sizes []float64) {
	maxU := math.Inf(-1)
	for _, v := range u {
		maxU = math.Max(maxU, v)
	}

	soft := make([]float64, len(u))
	var sum float64
	for i, v := range u {
		soft[i] = math.Exp(v - maxU)
		sum += soft[i]
	}

	cum = make([]float64, len(u)+1)
	var acc float64
	for i := range soft {
		w := splineMinBin + (1-splineMinBin*float64(len(u)))*soft[i]/sum
		acc += w
		cum[i+1] = (hi-lo)*acc + lo
	}
	cum[0] = lo
	cum[len(u)] = hi

	sizes = make([]float64, len(u))
	for i := range sizes {
		sizes[i] = cum[i+1] - cum[i]
	}

	return cum, sizes
}

func softplus(x float64) float64 {
	if x > 20 {
		return x
	}
	return math.Log1p(math.Exp(x))
}

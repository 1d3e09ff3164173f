package strategic

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// ExpectedImprovement computes EI at a (normalized) point for a minimization
// problem: improvement is a reduction below the best observed cost.
//
//	EI = (fBest - mu - xi)·Φ(Z) + sigma·φ(Z),  Z = (fBest - mu - xi)/sigma
//
// With zero posterior uncertainty there is nothing to learn, so EI is
// exactly zero regardless of the mean.
func ExpectedImprovement(gp *GP, point []float64, fBest, xi float64) float64 {
	mu, sigma := gp.Predict(point)
	if sigma == 0 {
		return 0
	}
	improvement := fBest - mu - xi
	z := improvement / sigma
	ei := improvement*stdNormal.CDF(z) + sigma*stdNormal.Prob(z)
	if ei < 0 {
		return 0
	}
	return ei
}

// MaximizeEI searches the unit cube for the point with the highest expected
// improvement using multi-start coordinate pattern search. Restarts guard
// against the acquisition surface's local optima.
func MaximizeEI(gp *GP, fBest, xi float64, restarts int, rng *rand.Rand) ([]float64, float64) {
	if restarts < 1 {
		restarts = 1
	}

	bestPoint := make([]float64, ParamDim)
	bestEI := math.Inf(-1)

	for r := 0; r < restarts; r++ {
		start := make([]float64, ParamDim)
		for d := range start {
			start[d] = rng.Float64()
		}
		point, ei := patternSearch(gp, start, fBest, xi)
		if ei > bestEI {
			bestEI = ei
			copy(bestPoint, point)
		}
	}
	if bestEI < 0 {
		bestEI = 0
	}
	return bestPoint, bestEI
}

// patternSearch runs shrinking-step coordinate descent on -EI within [0,1]^d.
func patternSearch(gp *GP, start []float64, fBest, xi float64) ([]float64, float64) {
	point := append([]float64(nil), start...)
	value := ExpectedImprovement(gp, point, fBest, xi)

	step := 0.25
	const minStep = 1e-3

	for step > minStep {
		improved := false
		for d := 0; d < ParamDim; d++ {
			for _, dir := range []float64{1, -1} {
				candidate := append([]float64(nil), point...)
				candidate[d] = clampf(candidate[d]+dir*step, 0, 1)
				if v := ExpectedImprovement(gp, candidate, fBest, xi); v > value {
					point, value = candidate, v
					improved = true
				}
			}
		}
		if !improved {
			step /= 2
		}
	}
	return point, value
}

package strategic

import (
	"math"
	"math/rand"
)

// Bounds describes the box the policy parameters live in:
// (reorder_point, safety_stock, order_quantity).
type Bounds struct {
	Min [ParamDim]float64
	Max [ParamDim]float64
}

// ParamDim is the dimensionality of the policy-parameter vector.
const ParamDim = 3

// Parameter indices into a theta vector.
const (
	PReorderPoint = iota
	PSafetyStock
	POrderQuantity
)

// Clamp projects theta back into the bounds.
func (b Bounds) Clamp(theta []float64) []float64 {
	out := make([]float64, len(theta))
	for i := range theta {
		out[i] = clampf(theta[i], b.Min[i], b.Max[i])
	}
	return out
}

// Normalize maps theta into [0,1]^d relative to the bounds.
func (b Bounds) Normalize(theta []float64) []float64 {
	out := make([]float64, len(theta))
	for i := range theta {
		span := b.Max[i] - b.Min[i]
		if span <= 0 {
			out[i] = 0
			continue
		}
		out[i] = clampf((theta[i]-b.Min[i])/span, 0, 1)
	}
	return out
}

// Denormalize is the inverse of Normalize.
func (b Bounds) Denormalize(unit []float64) []float64 {
	out := make([]float64, len(unit))
	for i := range unit {
		out[i] = b.Min[i] + unit[i]*(b.Max[i]-b.Min[i])
	}
	return out
}

// LatinHypercube draws n points covering the unit cube with one sample per
// axis stratum, then maps them into the bounds. Deterministic for a given rng.
func LatinHypercube(n int, b Bounds, rng *rand.Rand) [][]float64 {
	if n < 1 {
		n = 1
	}
	unit := make([][]float64, n)
	for i := range unit {
		unit[i] = make([]float64, ParamDim)
	}

	for d := 0; d < ParamDim; d++ {
		perm := rng.Perm(n)
		for i := 0; i < n; i++ {
			unit[i][d] = (float64(perm[i]) + rng.Float64()) / float64(n)
		}
	}

	points := make([][]float64, n)
	for i := range unit {
		points[i] = b.Denormalize(unit[i])
	}
	return points
}

// SeedFromHeuristic nudges one LHS point toward the classic textbook policy
// (reorder point = demand over lead time + z·σ·√L) so the design always
// contains a sane candidate.
func SeedFromHeuristic(points [][]float64, b Bounds, meanDemand, stdDemand float64, leadTimeDays int, z float64) {
	if len(points) == 0 {
		return
	}
	l := float64(leadTimeDays)
	safety := z * stdDemand * math.Sqrt(l)
	reorder := meanDemand*l + safety
	orderQty := meanDemand * 14 // two weeks of cover as a starting order size

	seed := b.Clamp([]float64{reorder, safety, orderQty})
	copy(points[0], seed)
}

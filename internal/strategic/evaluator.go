package strategic

import (
	"math"

	"github.com/replenlab/replenish-backend/internal/config"
	"github.com/replenlab/replenish-backend/internal/domain"
	"github.com/replenlab/replenish-backend/internal/simulation"
)

// NewCostEvaluator adapts the simulation harness into the optimizer's
// objective. The replay starts with the candidate's reorder point plus
// safety stock on hand, runs the (s, Q) rule over the trace, and charges a
// quadratic penalty when the achieved service level misses the target. The
// penalty keeps the surface smooth enough for the GP while still making the
// service floor binding.
func NewCostEvaluator(product domain.Product, trace simulation.Trace, cfg config.OptimizerConfig) Objective {
	harness := simulation.NewHarness(product, cfg)
	penaltyScale := product.UnitCost * cfg.StockoutPenaltyMultiplier * trace.Mean() * float64(len(trace.Demand))

	return func(theta []float64) (float64, error) {
		reorder := theta[PReorderPoint]
		safety := theta[PSafetyStock]
		qty := theta[POrderQuantity]

		initialStock := int(math.Ceil(reorder + safety))
		summary := harness.Run(trace, initialStock, simulation.ReorderPointStrategy(reorder, qty))

		cost := summary.TotalCost
		if gap := cfg.ServiceLevelTarget - summary.ServiceLevel; gap > 0 {
			cost += gap * gap * penaltyScale
		}
		return cost, nil
	}
}

// DefaultBounds derives the search box from the product and its demand
// statistics, honoring business-rule overrides as additional constraints.
func DefaultBounds(product domain.Product, meanDemand, stdDemand float64, overrides *domain.RuleOverrides) Bounds {
	lead := float64(product.LeadTimeDays)
	if overrides != nil && overrides.LeadTimeDays != nil {
		lead = float64(*overrides.LeadTimeDays)
	}
	if lead < 1 {
		lead = 1
	}
	if meanDemand <= 0 {
		meanDemand = 1
	}

	safetyCap := 4 * stdDemand * math.Sqrt(lead)
	if overrides != nil && overrides.SafetyStockMultiplier != nil {
		safetyCap *= *overrides.SafetyStockMultiplier
	}
	if safetyCap < 1 {
		safetyCap = 1
	}

	maxStockDays := 60.0
	if overrides != nil && overrides.MaxStockDays != nil {
		maxStockDays = float64(*overrides.MaxStockDays)
	}

	minQ := float64(product.MinOrderQuantity)
	maxQ := float64(product.MaxOrderQuantity)
	if maxQ <= minQ {
		maxQ = math.Max(minQ+1, meanDemand*maxStockDays)
	}

	var b Bounds
	b.Min[PReorderPoint] = 0
	b.Max[PReorderPoint] = meanDemand*lead + safetyCap + meanDemand*7
	b.Min[PSafetyStock] = 0
	b.Max[PSafetyStock] = safetyCap
	b.Min[POrderQuantity] = minQ
	b.Max[POrderQuantity] = math.Min(maxQ, meanDemand*maxStockDays)
	if b.Max[POrderQuantity] <= b.Min[POrderQuantity] {
		b.Max[POrderQuantity] = b.Min[POrderQuantity] + math.Max(1, meanDemand*7)
	}
	return b
}

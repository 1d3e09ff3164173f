package strategic

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"

	"github.com/replenlab/replenish-backend/internal/config"
	"github.com/replenlab/replenish-backend/internal/domain"
	"github.com/replenlab/replenish-backend/internal/simulation"
)

func optTestConfig() config.OptimizerConfig {
	return config.OptimizerConfig{
		MaxIterations:             30,
		InitialSamples:            8,
		AcquisitionStarts:         5,
		ExplorationXi:             0.01,
		ConvergenceTol:            1e-4,
		ConvergencePatience:       5,
		ServiceLevelTarget:        0.95,
		HoldingCostRate:           0.02,
		StockoutPenaltyMultiplier: 3,
		OrderCostFixed:            25,
		WarehouseCapacity:         10000,
	}
}

func optTestProduct() domain.Product {
	return domain.Product{
		ID:               7,
		SKU:              "OPT-1",
		UnitCost:         10,
		LeadTimeDays:     5,
		MinOrderQuantity: 10,
		MaxOrderQuantity: 1000,
	}
}

func quadBounds() Bounds {
	var b Bounds
	for i := 0; i < ParamDim; i++ {
		b.Min[i] = 0
		b.Max[i] = 100
	}
	return b
}

func TestOptimizeFindsQuadraticMinimum(t *testing.T) {
	target := []float64{70, 20, 50}
	objective := func(theta []float64) (float64, error) {
		var cost float64
		for i := range theta {
			d := theta[i] - target[i]
			cost += d * d
		}
		return cost, nil
	}

	opt := NewOptimizer(optTestConfig(), 42, zerolog.Nop())
	res, err := opt.Optimize(context.Background(), quadBounds(), objective)
	if err != nil {
		t.Fatalf("Optimize() error = %v", err)
	}

	// The surrogate search should get well inside the random-design ballpark.
	if res.Cost > 500 {
		t.Errorf("best cost = %v, want < 500", res.Cost)
	}
	if res.Evaluations <= optTestConfig().InitialSamples {
		t.Errorf("Evaluations = %d, want more than the initial design", res.Evaluations)
	}
	for i, v := range res.Theta {
		if v < 0 || v > 100 {
			t.Errorf("Theta[%d] = %v, outside bounds", i, v)
		}
	}
}

func TestOptimizeDeterministicForSeed(t *testing.T) {
	objective := func(theta []float64) (float64, error) {
		return theta[0]*theta[0] + theta[1] + theta[2], nil
	}

	run := func() *Result {
		opt := NewOptimizer(optTestConfig(), 11, zerolog.Nop())
		res, err := opt.Optimize(context.Background(), quadBounds(), objective)
		if err != nil {
			t.Fatalf("Optimize() error = %v", err)
		}
		return res
	}

	a, b := run(), run()
	if a.Cost != b.Cost {
		t.Errorf("same seed gave different costs: %v vs %v", a.Cost, b.Cost)
	}
	for i := range a.Theta {
		if a.Theta[i] != b.Theta[i] {
			t.Errorf("same seed gave different theta[%d]: %v vs %v", i, a.Theta[i], b.Theta[i])
		}
	}
}

func TestOptimizeCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opt := NewOptimizer(optTestConfig(), 1, zerolog.Nop())
	_, err := opt.Optimize(ctx, quadBounds(), func(theta []float64) (float64, error) {
		return theta[0], nil
	})
	if !errors.Is(err, domain.ErrOptimizationFailed) {
		t.Errorf("Optimize() with cancelled ctx error = %v, want ErrOptimizationFailed", err)
	}
}

func TestOptimizeAllEvaluationsFail(t *testing.T) {
	opt := NewOptimizer(optTestConfig(), 1, zerolog.Nop())
	_, err := opt.Optimize(context.Background(), quadBounds(), func([]float64) (float64, error) {
		return 0, errors.New("boom")
	})
	if !errors.Is(err, domain.ErrOptimizationFailed) {
		t.Errorf("Optimize() error = %v, want ErrOptimizationFailed", err)
	}
}

func TestOptimizeAgainstSimulatedInventory(t *testing.T) {
	cfg := optTestConfig()
	product := optTestProduct()
	trace := simulation.SyntheticTrace(120, 20, 5, 3)

	bounds := DefaultBounds(product, 20, 5, nil)
	objective := NewCostEvaluator(product, trace, cfg)

	opt := NewOptimizer(cfg, product.ID, zerolog.Nop())
	res, err := opt.Optimize(context.Background(), bounds, objective)
	if err != nil {
		t.Fatalf("Optimize() error = %v", err)
	}

	// A starved policy (zero reorder point, minimum orders) misses most
	// demand; the optimum must beat it.
	starved, err := objective([]float64{0, 0, bounds.Min[POrderQuantity]})
	if err != nil {
		t.Fatalf("objective() error = %v", err)
	}
	if res.Cost >= starved {
		t.Errorf("optimized cost %v not better than starved policy %v", res.Cost, starved)
	}

	// The tuned policy should serve most demand on replay.
	harness := simulation.NewHarness(product, cfg)
	summary := harness.Run(trace,
		int(res.Theta[PReorderPoint]+res.Theta[PSafetyStock]),
		simulation.ReorderPointStrategy(res.Theta[PReorderPoint], res.Theta[POrderQuantity]))
	if summary.ServiceLevel < 0.7 {
		t.Errorf("replayed service level = %v, want >= 0.7", summary.ServiceLevel)
	}
}

func TestOptimizeDesignHintSeedsHeuristic(t *testing.T) {
	bounds := quadBounds()
	var first []float64
	objective := func(theta []float64) (float64, error) {
		if first == nil {
			first = append([]float64(nil), theta...)
		}
		return theta[0] + theta[1] + theta[2], nil
	}

	opt := NewOptimizer(optTestConfig(), 42, zerolog.Nop())
	opt.SetDesignHint(10, 2, 4)
	if _, err := opt.Optimize(context.Background(), bounds, objective); err != nil {
		t.Fatalf("Optimize() error = %v", err)
	}

	// reorder = 10*4 + 1.65*2*sqrt(4), safety = 1.65*2*sqrt(4), qty = 10*14
	// clamped into the bounds.
	want := bounds.Clamp([]float64{46.6, 6.6, 140})
	if first == nil {
		t.Fatal("objective never evaluated")
	}
	for i := range want {
		if math.Abs(first[i]-want[i]) > 1e-9 {
			t.Errorf("first design point[%d] = %v, want heuristic seed %v", i, first[i], want[i])
		}
	}
}

func TestOptimizeConstantDemandFindsClassicReorderPoint(t *testing.T) {
	// Constant demand of 10/day with a 7-day lead time: the textbook reorder
	// point is 70, and a tuned policy should hold the service target.
	cfg := optTestConfig()
	product := optTestProduct()
	product.LeadTimeDays = 7

	demand := make([]float64, 120)
	for i := range demand {
		demand[i] = 10
	}
	trace := simulation.Trace{Demand: demand}

	bounds := DefaultBounds(product, 10, 0, nil)
	objective := NewCostEvaluator(product, trace, cfg)

	opt := NewOptimizer(cfg, product.ID, zerolog.Nop())
	opt.SetDesignHint(10, 0, product.LeadTimeDays)
	res, err := opt.Optimize(context.Background(), bounds, objective)
	if err != nil {
		t.Fatalf("Optimize() error = %v", err)
	}

	reorder := res.Theta[PReorderPoint]
	if reorder < 65 {
		t.Errorf("reorder point = %v, want near the lead-time demand of 70", reorder)
	}
	if reorder > bounds.Max[PReorderPoint] {
		t.Errorf("reorder point = %v, outside bounds", reorder)
	}

	harness := simulation.NewHarness(product, cfg)
	summary := harness.Run(trace,
		int(res.Theta[PReorderPoint]+res.Theta[PSafetyStock]),
		simulation.ReorderPointStrategy(res.Theta[PReorderPoint], res.Theta[POrderQuantity]))
	if summary.ServiceLevel < cfg.ServiceLevelTarget {
		t.Errorf("replayed service level = %v, want >= %v", summary.ServiceLevel, cfg.ServiceLevelTarget)
	}
}

func TestBuildPolicyClampsOrderQuantity(t *testing.T) {
	product := optTestProduct()
	res := &Result{
		Theta:         []float64{-5, 30, 5000},
		Cost:          100,
		PosteriorMean: 101,
		PosteriorStd:  3,
	}

	policy := BuildPolicy(product, res, 7, zerolog.Nop())
	if policy.ReorderPoint != 0 {
		t.Errorf("ReorderPoint = %v, want 0 (negative input floored)", policy.ReorderPoint)
	}
	if policy.OrderQuantity != float64(product.MaxOrderQuantity) {
		t.Errorf("OrderQuantity = %v, want clamped to %d", policy.OrderQuantity, product.MaxOrderQuantity)
	}
	if policy.PosteriorVar != 9 {
		t.Errorf("PosteriorVar = %v, want 9", policy.PosteriorVar)
	}
	if !policy.Active() {
		t.Error("freshly built policy should be active")
	}
}

func TestDefaultBoundsHonorsOverrides(t *testing.T) {
	product := optTestProduct()
	maxStockDays := 10
	overrides := &domain.RuleOverrides{MaxStockDays: &maxStockDays}

	plain := DefaultBounds(product, 20, 5, nil)
	constrained := DefaultBounds(product, 20, 5, overrides)

	if constrained.Max[POrderQuantity] >= plain.Max[POrderQuantity] {
		t.Errorf("MaxStockDays override did not tighten order bound: %v vs %v",
			constrained.Max[POrderQuantity], plain.Max[POrderQuantity])
	}
	if constrained.Min[POrderQuantity] != float64(product.MinOrderQuantity) {
		t.Errorf("Min order = %v, want %d", constrained.Min[POrderQuantity], product.MinOrderQuantity)
	}
}

func TestLatinHypercubeStratified(t *testing.T) {
	b := quadBounds()
	rng := rand.New(rand.NewSource(5))
	points := LatinHypercube(10, b, rng)
	if len(points) != 10 {
		t.Fatalf("len = %d, want 10", len(points))
	}

	// One sample per decile along each axis.
	for d := 0; d < ParamDim; d++ {
		seen := make(map[int]bool)
		for _, p := range points {
			if p[d] < 0 || p[d] > 100 {
				t.Fatalf("point outside bounds: %v", p)
			}
			stratum := int(p[d] / 10)
			if stratum == 10 {
				stratum = 9
			}
			if seen[stratum] {
				t.Errorf("dimension %d has two samples in stratum %d", d, stratum)
			}
			seen[stratum] = true
		}
	}
}

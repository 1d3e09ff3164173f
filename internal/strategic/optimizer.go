package strategic

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/replenlab/replenish-backend/internal/config"
	"github.com/replenlab/replenish-backend/internal/domain"
)

// Objective evaluates the expected total cost of a policy-parameter vector
// theta = (reorder_point, safety_stock, order_quantity). Each call is
// expensive (a full simulation replay), which is why the search is driven by
// a GP surrogate instead of brute force.
type Objective func(theta []float64) (float64, error)

// Result is the outcome of one strategic optimization run.
type Result struct {
	Theta            []float64
	Cost             float64
	PosteriorMean    float64
	PosteriorStd     float64
	AcquisitionValue float64
	Iterations       int
	Evaluations      int
	Converged        bool
}

// Optimizer runs the GP-EIMS search: Latin hypercube seeding, GP surrogate
// fitting, expected-improvement acquisition, repeat.
type Optimizer struct {
	cfg  config.OptimizerConfig
	rng  *rand.Rand
	hint *designHint
	log  zerolog.Logger
}

func NewOptimizer(cfg config.OptimizerConfig, seed int64, log zerolog.Logger) *Optimizer {
	return &Optimizer{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
		log: log,
	}
}

type designHint struct {
	meanDemand   float64
	stdDemand    float64
	leadTimeDays int
}

// heuristicZ is the service factor for the classic reorder-point seed.
const heuristicZ = 1.65

// SetDesignHint plants the textbook reorder-point policy for this demand
// profile into the initial design, so the search starts from at least one
// sane candidate instead of a purely random spread.
func (o *Optimizer) SetDesignHint(meanDemand, stdDemand float64, leadTimeDays int) {
	o.hint = &designHint{
		meanDemand:   meanDemand,
		stdDemand:    stdDemand,
		leadTimeDays: leadTimeDays,
	}
}

// Optimize searches the bounded parameter space for the theta minimizing the
// objective. It honors ctx cancellation by returning the best result so far;
// it only errors when no valid evaluation was produced at all.
func (o *Optimizer) Optimize(ctx context.Context, bounds Bounds, objective Objective) (*Result, error) {
	design := LatinHypercube(o.cfg.InitialSamples, bounds, o.rng)
	if o.hint != nil {
		SeedFromHeuristic(design, bounds, o.hint.meanDemand, o.hint.stdDemand, o.hint.leadTimeDays, heuristicZ)
	}

	var (
		xs [][]float64 // normalized evaluated points
		ys []float64
	)
	best := &Result{Cost: math.Inf(1)}

	evaluate := func(theta []float64) bool {
		theta = bounds.Clamp(theta)
		cost, err := objective(theta)
		if err != nil || math.IsNaN(cost) || math.IsInf(cost, 0) {
			o.log.Warn().Err(err).Floats64("theta", theta).Msg("objective evaluation failed")
			return false
		}
		xs = append(xs, bounds.Normalize(theta))
		ys = append(ys, cost)
		best.Evaluations++
		if cost < best.Cost {
			best.Cost = cost
			best.Theta = append([]float64(nil), theta...)
		}
		return true
	}

	for _, theta := range design {
		if ctx.Err() != nil {
			break
		}
		evaluate(theta)
	}
	if len(ys) == 0 {
		return nil, fmt.Errorf("no valid evaluation in initial design: %w", domain.ErrOptimizationFailed)
	}

	gp := NewGP(1e-4)
	stall := 0
	prevBest := best.Cost

	for iter := 0; iter < o.cfg.MaxIterations; iter++ {
		if ctx.Err() != nil {
			o.log.Info().Int("iterations", iter).Msg("optimization cancelled, returning best so far")
			break
		}
		best.Iterations = iter + 1

		if err := o.fitWithRetry(gp, xs, ys); err != nil {
			return nil, err
		}

		// Best observed cost in the GP's normalized target space drives EI.
		point, ei := MaximizeEI(gp, best.Cost, o.cfg.ExplorationXi, o.cfg.AcquisitionStarts, o.rng)
		best.AcquisitionValue = ei

		theta := bounds.Denormalize(point)
		if !evaluate(theta) {
			// A failed probe is not fatal; resample randomly next round.
			continue
		}

		improvement := prevBest - best.Cost
		if improvement < o.cfg.ConvergenceTol {
			stall++
		} else {
			stall = 0
		}
		prevBest = best.Cost

		if stall >= o.cfg.ConvergencePatience {
			best.Converged = true
			break
		}
	}

	if best.Theta == nil {
		return nil, fmt.Errorf("no usable optimum found: %w", domain.ErrOptimizationFailed)
	}

	mu, sigma := gp.Predict(bounds.Normalize(best.Theta))
	best.PosteriorMean = mu
	best.PosteriorStd = sigma
	return best, nil
}

// fitWithRetry fits the GP, retrying once with 10x noise when the covariance
// turns out singular. A second failure escalates to OptimizationFailed.
func (o *Optimizer) fitWithRetry(gp *GP, xs [][]float64, ys []float64) error {
	err := gp.Fit(xs, ys)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNumericalInstability) {
		return err
	}

	o.log.Warn().Err(err).Float64("alpha", gp.Alpha).Msg("gp fit unstable, retrying with increased regularization")
	gp.Alpha *= 10
	if err := gp.Fit(xs, ys); err != nil {
		return fmt.Errorf("gp fit failed after regularization retry: %w", domain.ErrOptimizationFailed)
	}
	return nil
}

// BuildPolicy converts an optimization result into a StrategicPolicy record,
// clamping parameters into the product's valid range. Clamps are recorded in
// the log, never hidden.
func BuildPolicy(product domain.Product, res *Result, reviewPeriodDays int, log zerolog.Logger) domain.StrategicPolicy {
	reorder := math.Max(0, res.Theta[PReorderPoint])
	safety := math.Max(0, res.Theta[PSafetyStock])
	qty := res.Theta[POrderQuantity]

	minQ := float64(product.MinOrderQuantity)
	maxQ := float64(product.MaxOrderQuantity)
	clamped := qty
	if clamped < minQ {
		clamped = minQ
	}
	if maxQ > 0 && clamped > maxQ {
		clamped = maxQ
	}
	if clamped != qty {
		log.Info().
			Int64("product_id", product.ID).
			Float64("raw_order_quantity", qty).
			Float64("clamped_order_quantity", clamped).
			Msg("order quantity clamped to product bounds")
	}

	return domain.StrategicPolicy{
		ProductID:        product.ID,
		ReorderPoint:     reorder,
		SafetyStock:      safety,
		OrderQuantity:    clamped,
		ReviewPeriodDays: reviewPeriodDays,
		PosteriorMean:    res.PosteriorMean,
		PosteriorVar:     res.PosteriorStd * res.PosteriorStd,
		AcquisitionValue: res.AcquisitionValue,
		ExpectedCost:     res.Cost,
		CreatedAt:        time.Now().UTC(),
	}
}

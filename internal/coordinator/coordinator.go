package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/replenlab/replenish-backend/internal/config"
	"github.com/replenlab/replenish-backend/internal/domain"
	"github.com/replenlab/replenish-backend/internal/features"
	"github.com/replenlab/replenish-backend/internal/repository"
	"github.com/replenlab/replenish-backend/internal/simulation"
	"github.com/replenlab/replenish-backend/internal/strategic"
	"github.com/replenlab/replenish-backend/internal/tactical"
)

// conflictThreshold is how many consecutive guardrail clamps on a product
// trigger a reconciliation event.
const conflictThreshold = 3

// Coordinator schedules the two optimization layers: strategic runs on a
// slow cadence, tactical every cycle, with the strategic output feeding the
// tactical controller as guardrails. Products are independent; runs across
// products are parallel with no shared mutable state beyond the policy
// records themselves.
type Coordinator struct {
	cfg        config.OptimizerConfig
	store      repository.Store
	controller *tactical.Controller
	overrides  map[string]*domain.RuleOverrides // by product category
	log        zerolog.Logger

	productLocks sync.Map // product id -> *sync.Mutex

	mu        sync.Mutex
	conflicts map[int64]int // consecutive clamped cycles per product
	lastRun   map[int64]time.Time
}

func New(cfg config.OptimizerConfig, store repository.Store, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		cfg:        cfg,
		store:      store,
		controller: tactical.NewController(cfg, log),
		overrides:  make(map[string]*domain.RuleOverrides),
		log:        log,
		conflicts:  make(map[int64]int),
		lastRun:    make(map[int64]time.Time),
	}
}

// Controller exposes the tactical controller (reward observation, Q-table).
func (c *Coordinator) Controller() *tactical.Controller { return c.controller }

// SetOverrides installs per-category business-rule overrides.
func (c *Coordinator) SetOverrides(byCategory map[string]*domain.RuleOverrides) {
	c.overrides = byCategory
}

// lockProduct serializes strategic runs per product so two concurrent
// writers cannot both believe they are the sole policy author.
func (c *Coordinator) lockProduct(productID int64) func() {
	v, _ := c.productLocks.LoadOrStore(productID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// RunStrategic executes one GP-EIMS run for a product and activates the
// resulting policy. Re-runs inside the cadence window no-op unless forced;
// a forced run explicitly supersedes. On failure the previous active policy
// stays in effect.
func (c *Coordinator) RunStrategic(ctx context.Context, productID int64, force bool) (*domain.StrategicPolicy, error) {
	unlock := c.lockProduct(productID)
	defer unlock()

	c.mu.Lock()
	last, ran := c.lastRun[productID]
	c.mu.Unlock()
	if ran && !force && time.Since(last) < c.cfg.StrategicCadence {
		c.log.Debug().Int64("product_id", productID).Msg("strategic run inside cadence window, skipping")
		return c.store.Policies.GetActivePolicy(ctx, productID)
	}

	product, err := c.store.Products.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	snapshots, err := c.store.TimeSeries.GetRecentSnapshots(ctx, productID, c.cfg.LookbackDays)
	if err != nil {
		return nil, err
	}
	demand, err := c.store.TimeSeries.GetDemandHistory(ctx, productID, c.cfg.LookbackDays)
	if err != nil {
		return nil, err
	}

	state, err := features.Featurize(*product, snapshots, demand, c.cfg.LookbackDays, 0)
	if err != nil {
		return nil, err
	}

	trace := simulation.HistoricalTrace(demand)
	if len(trace.Demand) < c.cfg.LookbackDays {
		// Too little history for a meaningful replay; extend with a
		// synthetic tail drawn from the observed statistics.
		synthetic := simulation.SyntheticTrace(90, state.MeanDailyDemand, state.DemandStdDev, productID)
		trace.Demand = append(trace.Demand, synthetic.Demand...)
	}

	overrides := c.overrides[product.Category]
	bounds := strategic.DefaultBounds(*product, state.MeanDailyDemand, state.DemandStdDev, overrides)
	objective := strategic.NewCostEvaluator(*product, trace, c.cfg)

	runCtx := ctx
	if c.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.cfg.RunTimeout)
		defer cancel()
	}

	optimizer := strategic.NewOptimizer(c.cfg, productID, c.log)
	hintLead := product.LeadTimeDays
	if overrides != nil && overrides.LeadTimeDays != nil {
		hintLead = *overrides.LeadTimeDays
	}
	optimizer.SetDesignHint(state.MeanDailyDemand, state.DemandStdDev, hintLead)
	result, err := optimizer.Optimize(runCtx, bounds, objective)
	if err != nil {
		c.log.Error().Err(err).Int64("product_id", productID).
			Msg("strategic optimization failed, previous policy remains in effect")
		return nil, err
	}

	policy := strategic.BuildPolicy(*product, result, int(c.cfg.StrategicCadence.Hours()/24), c.log)

	current, err := c.store.Policies.GetActivePolicy(ctx, productID)
	if err != nil {
		return nil, err
	}
	expectedVersion := 0
	if current != nil {
		expectedVersion = current.Version
	}
	if err := c.store.Policies.SupersedeAndCreate(ctx, &policy, expectedVersion); err != nil {
		if errors.Is(err, domain.ErrPolicyVersionConflict) {
			c.log.Warn().Int64("product_id", productID).Msg("concurrent strategic run won, keeping its policy")
			return c.store.Policies.GetActivePolicy(ctx, productID)
		}
		return nil, err
	}

	c.mu.Lock()
	c.lastRun[productID] = time.Now()
	c.mu.Unlock()

	c.log.Info().
		Int64("product_id", productID).
		Int("version", policy.Version).
		Float64("reorder_point", policy.ReorderPoint).
		Float64("safety_stock", policy.SafetyStock).
		Float64("order_quantity", policy.OrderQuantity).
		Float64("expected_cost", policy.ExpectedCost).
		Bool("converged", result.Converged).
		Msg("strategic policy activated")
	return &policy, nil
}

// RunTactical executes one tactical cycle for a product: featurize, consult
// the active policy, decide, record. The active policy is read before the
// decision so the ordering guarantee (strategic output first) holds.
func (c *Coordinator) RunTactical(ctx context.Context, productID int64) (*domain.TacticalAction, error) {
	product, err := c.store.Products.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	snapshots, err := c.store.TimeSeries.GetRecentSnapshots(ctx, productID, c.cfg.LookbackDays)
	if err != nil {
		return nil, err
	}
	demand, err := c.store.TimeSeries.GetDemandHistory(ctx, productID, c.cfg.LookbackDays)
	if err != nil {
		return nil, err
	}

	state, err := features.Featurize(*product, snapshots, demand, c.cfg.LookbackDays, 0)
	if err != nil {
		return nil, err
	}

	policy, err := c.store.Policies.GetActivePolicy(ctx, productID)
	if err != nil {
		return nil, err
	}

	history := make([]float64, 0, len(demand))
	for _, d := range demand {
		if !d.IsForecast {
			history = append(history, d.QuantityDemanded)
		}
	}

	action, err := c.controller.RunCycle(tactical.CycleInput{
		Product:       *product,
		State:         state,
		DemandHistory: history,
		Policy:        policy,
		Overrides:     c.overrides[product.Category],
	})
	if err != nil {
		return nil, err
	}

	if _, err := c.store.Actions.RecordAction(ctx, &action); err != nil {
		return nil, err
	}

	c.trackConflict(productID, action.Clamped)
	return &action, nil
}

// trackConflict counts consecutive clamped cycles; past the threshold it
// surfaces a reconciliation event and schedules an out-of-cycle strategic
// re-optimization.
func (c *Coordinator) trackConflict(productID int64, clamped bool) {
	c.mu.Lock()
	if clamped {
		c.conflicts[productID]++
	} else {
		c.conflicts[productID] = 0
	}
	count := c.conflicts[productID]
	c.mu.Unlock()

	if count < conflictThreshold {
		return
	}

	c.log.Warn().
		Int64("product_id", productID).
		Int("consecutive_clamps", count).
		Err(domain.ErrConflictingPolicy).
		Msg("tactical decisions persistently violating strategic bounds, re-optimizing")

	// The rerun outlives the cycle that triggered it, so it gets its own
	// context rather than the cycle's.
	go func() {
		reCtx, cancel := context.WithTimeout(context.Background(), c.cfg.RunTimeout)
		defer cancel()
		if _, err := c.RunStrategic(reCtx, productID, true); err != nil {
			c.log.Error().Err(err).Int64("product_id", productID).Msg("out-of-cycle strategic run failed")
		}
	}()

	c.mu.Lock()
	c.conflicts[productID] = 0
	c.mu.Unlock()
}

// RunTacticalBatch runs one tactical cycle across all products in parallel,
// bounded by MaxParallelRuns, then aggregates portfolio metrics.
func (c *Coordinator) RunTacticalBatch(ctx context.Context) error {
	products, err := c.store.Products.ListProducts(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxParallelRuns)

	var (
		mu      sync.Mutex
		actions []domain.TacticalAction
	)
	for _, p := range products {
		g.Go(func() error {
			action, err := c.RunTactical(gctx, p.ID)
			if err != nil {
				if errors.Is(err, domain.ErrInsufficientHistory) {
					c.log.Warn().Err(err).Int64("product_id", p.ID).Msg("skipping tactical cycle")
					return nil
				}
				return fmt.Errorf("tactical cycle for product %d: %w", p.ID, err)
			}
			mu.Lock()
			actions = append(actions, *action)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return c.aggregateMetrics(ctx, actions)
}

// RunStrategicBatch runs strategic optimization for every product, bounded
// by MaxParallelRuns. Individual failures keep the prior policy and do not
// abort the batch.
func (c *Coordinator) RunStrategicBatch(ctx context.Context, force bool) error {
	products, err := c.store.Products.ListProducts(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.MaxParallelRuns)

	for _, p := range products {
		g.Go(func() error {
			if _, err := c.RunStrategic(gctx, p.ID, force); err != nil {
				c.log.Error().Err(err).Int64("product_id", p.ID).Msg("strategic run failed for product")
			}
			return nil
		})
	}
	return g.Wait()
}

// serviceWindowDays is the demand window the portfolio service level is
// measured over.
const serviceWindowDays = 7

// aggregateMetrics rolls one cycle's actions into portfolio-level telemetry:
// total decision cost, order rate, infeasible-cycle count, and the realized
// service level and stockout days over the recent demand window.
func (c *Coordinator) aggregateMetrics(ctx context.Context, actions []domain.TacticalAction) error {
	if len(actions) == 0 {
		return nil
	}
	now := time.Now().UTC()

	var totalCost float64
	var ordered, infeasible int
	for _, a := range actions {
		totalCost += a.Cost
		if a.ActionType != domain.ActionHold {
			ordered++
		}
		if a.SolverInfeasible {
			infeasible++
		}
	}

	var demanded, fulfilled float64
	var stockoutDays int
	for _, a := range actions {
		obs, err := c.store.TimeSeries.GetDemandHistory(ctx, a.ProductID, serviceWindowDays)
		if err != nil {
			return err
		}
		for _, d := range obs {
			if d.IsForecast {
				continue
			}
			demanded += d.QuantityDemanded
			fulfilled += d.QuantityFulfilled
			if d.QuantityFulfilled < d.QuantityDemanded {
				stockoutDays++
			}
		}
	}

	metrics := []domain.PerformanceMetric{
		{Type: domain.MetricTotalCost, Value: totalCost, Timestamp: now},
		{Type: domain.MetricOrderRate, Value: float64(ordered) / float64(len(actions)), Timestamp: now},
		{Type: domain.MetricInfeasibleRuns, Value: float64(infeasible), Timestamp: now},
		{Type: domain.MetricStockoutCount, Value: float64(stockoutDays), Timestamp: now},
	}
	if demanded > 0 {
		metrics = append(metrics, domain.PerformanceMetric{
			Type: domain.MetricServiceLevel, Value: fulfilled / demanded, Timestamp: now,
		})
	}
	for i := range metrics {
		if err := c.store.Metrics.RecordMetric(ctx, &metrics[i]); err != nil {
			return err
		}
	}
	return nil
}

// ObserveOutcome forwards a realized outcome to the controller and
// back-fills the recorded action's reward.
func (c *Coordinator) ObserveOutcome(ctx context.Context, action domain.TacticalAction, out tactical.Outcome) error {
	product, err := c.store.Products.GetProduct(ctx, action.ProductID)
	if err != nil {
		return err
	}
	reward := c.controller.ObserveOutcome(action, *product, out)
	return c.store.Actions.BackfillReward(ctx, action.ID, reward)
}

// Run drives both cadences until the context is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	strategicTicker := time.NewTicker(c.cfg.StrategicCadence)
	tacticalTicker := time.NewTicker(c.cfg.TacticalCadence)
	defer strategicTicker.Stop()
	defer tacticalTicker.Stop()

	c.log.Info().
		Dur("strategic_cadence", c.cfg.StrategicCadence).
		Dur("tactical_cadence", c.cfg.TacticalCadence).
		Msg("coordinator started")

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("coordinator stopped")
			return ctx.Err()
		case <-strategicTicker.C:
			if err := c.RunStrategicBatch(ctx, false); err != nil {
				c.log.Error().Err(err).Msg("strategic batch failed")
			}
		case <-tacticalTicker.C:
			if err := c.RunTacticalBatch(ctx); err != nil {
				c.log.Error().Err(err).Msg("tactical batch failed")
			}
		}
	}
}

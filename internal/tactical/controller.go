package tactical

import (
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/replenlab/replenish-backend/internal/config"
	"github.com/replenlab/replenish-backend/internal/domain"
	"github.com/replenlab/replenish-backend/internal/features"
)

// Phase names for the per-cycle state machine. Cycles always run the full
// sequence; the phase is carried in logs for observability.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseFeaturize       Phase = "featurize"
	PhasePredict         Phase = "predict"
	PhaseSolveMPC        Phase = "solve_mpc"
	PhaseScoreCandidates Phase = "score_candidates"
	PhaseSelectAction    Phase = "select_action"
	PhaseCommit          Phase = "commit"
	PhaseObserveReward   Phase = "observe_reward"
)

// Controller runs the tactical cycle for products: predict, solve the
// receding-horizon program, score candidates across objectives, commit one
// action. The Q-table persists across cycles and learns from observed
// outcomes.
type Controller struct {
	cfg     config.OptimizerConfig
	qtable  *QTable
	weights ObjectiveWeights
	log     zerolog.Logger
}

func NewController(cfg config.OptimizerConfig, log zerolog.Logger) *Controller {
	return &Controller{
		cfg:     cfg,
		qtable:  NewQTable(cfg.LearningRate, cfg.DiscountFactor),
		weights: DefaultObjectiveWeights(),
		log:     log,
	}
}

// QTable exposes the learned value table (for persistence and tests).
func (c *Controller) QTable() *QTable { return c.qtable }

// SetObjectiveWeights overrides the scoring weights.
func (c *Controller) SetObjectiveWeights(w ObjectiveWeights) { c.weights = w }

// CycleInput is everything one tactical cycle needs, pre-loaded in memory.
type CycleInput struct {
	Product       domain.Product
	State         features.StateVector
	DemandHistory []float64
	Policy        *domain.StrategicPolicy // active policy, nil when none exists
	Overrides     *domain.RuleOverrides
}

// RunCycle decides this cycle's action for one product. It never returns a
// nil action for a solvable cycle: infeasible programs fall back to the
// heuristic reorder rule with the action flagged, and guardrail clamps are
// recorded on the action rather than hidden.
func (c *Controller) RunCycle(in CycleInput) (domain.TacticalAction, error) {
	log := c.log.With().Int64("product_id", in.Product.ID).Logger()

	leadTime := in.Product.LeadTimeDays
	if in.Overrides != nil && in.Overrides.LeadTimeDays != nil {
		leadTime = *in.Overrides.LeadTimeDays
	}
	if leadTime < 1 {
		leadTime = 1
	}

	log.Debug().Str("phase", string(PhasePredict)).Msg("forecasting demand")
	forecast := ForecastDemand(in.DemandHistory, c.cfg.PredictionHorizon, 0.3)
	if len(in.DemandHistory) == 0 {
		for i := range forecast {
			forecast[i] = in.State.MeanDailyDemand
		}
	}

	log.Debug().Str("phase", string(PhaseSolveMPC)).Msg("solving receding-horizon program")
	mpcIn := MPCInput{
		Forecast:        forecast,
		ControlHorizon:  c.cfg.ControlHorizon,
		Inventory:       float64(in.State.Available),
		Arrivals:        inTransitArrivals(in.State.InTransit, leadTime, c.cfg.PredictionHorizon),
		LeadTime:        leadTime,
		UnitCost:        in.Product.UnitCost,
		HoldingRate:     c.cfg.HoldingCostRate,
		StockoutPenalty: in.Product.UnitCost * c.cfg.StockoutPenaltyMultiplier,
		OrderCostFixed:  c.cfg.OrderCostFixed,
		MinOrder:        in.Product.MinOrderQuantity,
		MaxOrder:        in.Product.MaxOrderQuantity,
		Capacity:        float64(c.cfg.WarehouseCapacity),
		Budget:          c.cfg.BudgetCeiling,
	}

	var (
		baseQuantity int
		infeasible   bool
	)
	mpcRes, err := SolveMPC(mpcIn)
	switch {
	case err == nil:
		baseQuantity = mpcRes.FirstOrder
		if mpcRes.RelaxedBudget || mpcRes.RelaxedCap {
			log.Info().
				Bool("relaxed_budget", mpcRes.RelaxedBudget).
				Bool("relaxed_capacity", mpcRes.RelaxedCap).
				Msg("mpc constraints relaxed")
		}
	case errors.Is(err, domain.ErrSolverInfeasible):
		infeasible = true
		reorder, safety := policyGuardrails(in.Policy, in.State, leadTime)
		baseQuantity = HeuristicOrder(
			float64(in.State.Available+in.State.InTransit),
			reorder, safety,
			in.Product.MinOrderQuantity, in.Product.MaxOrderQuantity,
		)
		log.Warn().Int("fallback_quantity", baseQuantity).Msg("mpc infeasible, using heuristic reorder rule")
	default:
		return domain.TacticalAction{}, err
	}

	log.Debug().Str("phase", string(PhaseScoreCandidates)).Msg("scoring candidates")
	cands := scoreCandidates(scoringInput{
		baseQuantity:    baseQuantity,
		available:       float64(in.State.Available + in.State.InTransit),
		meanDemand:      in.State.MeanDailyDemand,
		stdDemand:       in.State.DemandStdDev,
		leadTime:        leadTime,
		unitCost:        in.Product.UnitCost,
		holdingRate:     c.cfg.HoldingCostRate,
		stockoutPenalty: c.cfg.StockoutPenaltyMultiplier,
		orderCostFixed:  c.cfg.OrderCostFixed,
		minOrder:        in.Product.MinOrderQuantity,
		maxOrder:        in.Product.MaxOrderQuantity,
	}, c.qtable)

	chosen := selectCandidate(cands, c.weights, c.cfg.QBlendWeight)

	// Strategic guardrail: when stock already sits above the reorder point,
	// an order is churn; prefer the no-op. The clamp is recorded.
	clamped := false
	if chosen.Quantity > 0 && in.Policy != nil {
		position := float64(in.State.Available + in.State.InTransit)
		if position > in.Policy.ReorderPoint+in.Policy.SafetyStock {
			log.Info().
				Float64("position", position).
				Float64("reorder_point", in.Policy.ReorderPoint).
				Int("suppressed_quantity", chosen.Quantity).
				Msg("order suppressed by strategic guardrail")
			chosen = Candidate{Quantity: 0, key: chosen.key}
			chosen.key.ActionTier = 0
			clamped = true
		}
	}

	actionType := domain.ActionHold
	if chosen.Quantity > 0 {
		actionType = domain.ActionOrder
		// Expediting only makes sense when there is a shipment to pull
		// forward.
		if in.State.InTransit > 0 && in.State.DaysOfSupply < 1 && in.State.StockoutRisk > 0.5 {
			actionType = domain.ActionExpedite
		}
	}

	now := time.Now().UTC()
	action := domain.TacticalAction{
		ProductID:            in.Product.ID,
		ActionType:           actionType,
		Quantity:             chosen.Quantity,
		ExpectedDelivery:     now.AddDate(0, 0, leadTime),
		Cost:                 float64(chosen.Quantity)*in.Product.UnitCost + orderFixed(chosen.Quantity, c.cfg.OrderCostFixed),
		StateVector:          in.State.Slice(),
		LearnedValueEstimate: chosen.QValue,
		SolverInfeasible:     infeasible,
		Clamped:              clamped,
		Timestamp:            now,
	}

	log.Debug().Str("phase", string(PhaseCommit)).
		Str("action", string(actionType)).
		Int("quantity", chosen.Quantity).
		Msg("committing tactical action")
	return action, nil
}

// Outcome is what actually happened after an action was committed.
type Outcome struct {
	ActualDemand    float64
	Fulfilled       float64
	EndingInventory float64
	OrderPlaced     bool
}

// ObserveOutcome computes the realized reward for a committed action,
// updates the Q-table, and returns the reward for back-filling the record.
func (c *Controller) ObserveOutcome(action domain.TacticalAction, product domain.Product, out Outcome) float64 {
	serviceReward := 0.0
	if out.ActualDemand > 0 {
		serviceReward = out.Fulfilled / out.ActualDemand
	} else {
		serviceReward = 1
	}

	holding := out.EndingInventory * product.UnitCost * c.cfg.HoldingCostRate
	stockout := (out.ActualDemand - out.Fulfilled) * product.UnitCost * c.cfg.StockoutPenaltyMultiplier
	orderCost := 0.0
	if out.OrderPlaced {
		orderCost = c.cfg.OrderCostFixed
	}
	// Ordering while overstocked is pure inefficiency.
	inefficiency := 0.0
	if out.OrderPlaced && action.Quantity > 0 && out.EndingInventory > out.ActualDemand*float64(c.cfg.PredictionHorizon) {
		inefficiency = float64(action.Quantity) * product.UnitCost * c.cfg.HoldingCostRate
	}

	scale := math.Max(product.UnitCost*math.Max(out.ActualDemand, 1), 1)
	reward := serviceReward - (holding+stockout+orderCost+inefficiency)/scale

	meanDemand := out.ActualDemand
	if len(action.StateVector) == features.Dim {
		meanDemand = action.StateVector[features.FAvgDemand]
	}
	key := StateActionKey{
		SupplyTier: supplyTierFromState(action.StateVector),
		ActionTier: ActionTier(action.Quantity, meanDemand),
	}
	nextTier := SupplyTier(safeDiv(out.EndingInventory, math.Max(meanDemand, 1e-9)))
	c.qtable.Update(key, reward, nextTier)

	c.log.Debug().Str("phase", string(PhaseObserveReward)).
		Int64("product_id", action.ProductID).
		Float64("reward", reward).
		Msg("outcome observed")
	return reward
}

func supplyTierFromState(state []float64) int {
	if len(state) == features.Dim {
		return SupplyTier(state[features.FDaysSupply])
	}
	return 0
}

// policyGuardrails derives fallback reorder parameters from the active
// policy, or from the textbook formula when no policy exists yet.
func policyGuardrails(policy *domain.StrategicPolicy, state features.StateVector, leadTime int) (reorder, safety float64) {
	if policy != nil {
		return policy.ReorderPoint, policy.SafetyStock
	}
	l := float64(leadTime)
	safety = 1.65 * state.DemandStdDev * math.Sqrt(l)
	reorder = state.MeanDailyDemand*l + safety
	return reorder, safety
}

// inTransitArrivals spreads known in-transit stock onto the horizon. Without
// per-order delivery dates the best assumption is mid-lead-time arrival.
func inTransitArrivals(inTransit, leadTime, horizon int) []float64 {
	arr := make([]float64, horizon)
	if inTransit <= 0 || horizon == 0 {
		return arr
	}
	idx := leadTime / 2
	if idx >= horizon {
		idx = horizon - 1
	}
	arr[idx] = float64(inTransit)
	return arr
}

func orderFixed(qty int, fixed float64) float64 {
	if qty > 0 {
		return fixed
	}
	return 0
}

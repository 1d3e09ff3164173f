package tactical

import (
	"math"
	"testing"

	"github.com/rs/zerolog"

	"github.com/replenlab/replenish-backend/internal/config"
	"github.com/replenlab/replenish-backend/internal/domain"
	"github.com/replenlab/replenish-backend/internal/features"
)

func controllerConfig() config.OptimizerConfig {
	return config.OptimizerConfig{
		PredictionHorizon:         7,
		ControlHorizon:            3,
		LearningRate:              0.1,
		DiscountFactor:            0.9,
		QBlendWeight:              0.1,
		ServiceLevelTarget:        0.95,
		HoldingCostRate:           0.02,
		StockoutPenaltyMultiplier: 3,
		OrderCostFixed:            25,
		WarehouseCapacity:         10000,
		BudgetCeiling:             100000,
	}
}

func controllerProduct(leadTime int) domain.Product {
	return domain.Product{
		ID:               3,
		SKU:              "CTRL-1",
		UnitCost:         10,
		LeadTimeDays:     leadTime,
		MinOrderQuantity: 1,
		MaxOrderQuantity: 500,
	}
}

func stateVector(available, inTransit int, mean, std float64, leadTime int) features.StateVector {
	days := features.DaysSupplySentinel
	if mean > 0 {
		days = float64(available) / mean
	}
	risk := leadTimeRisk(float64(available), mean, std, leadTime)

	sv := features.StateVector{
		MeanDailyDemand: mean,
		DemandStdDev:    std,
		DaysOfSupply:    days,
		StockoutRisk:    risk,
		Available:       available,
		InTransit:       inTransit,
	}
	sv.Values[features.FStockLevel] = float64(available)
	sv.Values[features.FInTransit] = float64(inTransit)
	sv.Values[features.FAvgDemand] = mean
	sv.Values[features.FVolatility] = std
	sv.Values[features.FDaysSupply] = days
	sv.Values[features.FStockoutRisk] = risk
	sv.Values[features.FLeadTime] = float64(leadTime)
	return sv
}

// leadTimeRisk mirrors the featurizer's normal approximation closely enough
// for controller behavior tests.
func leadTimeRisk(available, mean, std float64, leadTime int) float64 {
	l := float64(leadTime)
	mu := mean * l
	sigma := math.Max(std*math.Sqrt(l), 1e-6)
	z := (available - mu) / sigma
	return 1 - 0.5*math.Erfc(-z/math.Sqrt2)
}

func flatHistory(days int, qty float64) []float64 {
	out := make([]float64, days)
	for i := range out {
		out[i] = qty
	}
	return out
}

func TestRunCycleOrdersWhenUnderstocked(t *testing.T) {
	c := NewController(controllerConfig(), zerolog.Nop())
	product := controllerProduct(2)

	action, err := c.RunCycle(CycleInput{
		Product:       product,
		State:         stateVector(5, 0, 10, 2, 2),
		DemandHistory: flatHistory(30, 10),
	})
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if action.ActionType != domain.ActionOrder {
		t.Errorf("ActionType = %s, want order with half a day of supply", action.ActionType)
	}
	if action.Quantity <= 0 {
		t.Errorf("Quantity = %d, want > 0", action.Quantity)
	}
	if action.SolverInfeasible || action.Clamped {
		t.Errorf("unexpected flags: infeasible=%v clamped=%v", action.SolverInfeasible, action.Clamped)
	}
	if len(action.StateVector) != features.Dim {
		t.Errorf("persisted state vector has %d entries, want %d", len(action.StateVector), features.Dim)
	}
}

func TestRunCycleExpeditesWithShipmentInFlight(t *testing.T) {
	c := NewController(controllerConfig(), zerolog.Nop())
	product := controllerProduct(3)

	action, err := c.RunCycle(CycleInput{
		Product:       product,
		State:         stateVector(5, 10, 30, 5, 3),
		DemandHistory: flatHistory(30, 30),
	})
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if action.ActionType != domain.ActionExpedite {
		t.Errorf("ActionType = %s, want expedite with stock critical and a shipment in flight", action.ActionType)
	}
}

func TestRunCycleGuardrailSuppressesOrder(t *testing.T) {
	c := NewController(controllerConfig(), zerolog.Nop())
	product := controllerProduct(5)
	policy := &domain.StrategicPolicy{
		ProductID:    product.ID,
		ReorderPoint: 20,
		SafetyStock:  10,
	}

	// 50 on hand against ~75 of lead-time demand would normally order, but
	// the position already sits above reorder point + safety stock.
	action, err := c.RunCycle(CycleInput{
		Product:       product,
		State:         stateVector(50, 0, 15, 3, 5),
		DemandHistory: flatHistory(30, 15),
		Policy:        policy,
	})
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if !action.Clamped {
		t.Fatal("expected the strategic guardrail to clamp the order")
	}
	if action.Quantity != 0 || action.ActionType != domain.ActionHold {
		t.Errorf("clamped action = %s qty %d, want hold with 0", action.ActionType, action.Quantity)
	}
}

func TestRunCycleInfeasibleFallsBackToHeuristic(t *testing.T) {
	c := NewController(controllerConfig(), zerolog.Nop())
	// Lead time beyond the prediction horizon: the receding-horizon program
	// cannot place any useful order.
	product := controllerProduct(10)

	action, err := c.RunCycle(CycleInput{
		Product:       product,
		State:         stateVector(5, 0, 10, 2, 10),
		DemandHistory: flatHistory(30, 10),
	})
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if !action.SolverInfeasible {
		t.Fatal("expected the solver-infeasible flag on the fallback action")
	}
	if action.Quantity <= 0 {
		t.Errorf("fallback Quantity = %d, want > 0 while understocked", action.Quantity)
	}
}

func TestRunCycleLeadTimeOverride(t *testing.T) {
	c := NewController(controllerConfig(), zerolog.Nop())
	product := controllerProduct(2)
	override := 10 // pushes the effective lead time past the horizon

	action, err := c.RunCycle(CycleInput{
		Product:       product,
		State:         stateVector(5, 0, 10, 2, 2),
		DemandHistory: flatHistory(30, 10),
		Overrides:     &domain.RuleOverrides{LeadTimeDays: &override},
	})
	if err != nil {
		t.Fatalf("RunCycle() error = %v", err)
	}
	if !action.SolverInfeasible {
		t.Error("lead-time override not applied to the receding-horizon program")
	}
}

func TestObserveOutcomeRewardAndLearning(t *testing.T) {
	c := NewController(controllerConfig(), zerolog.Nop())
	product := controllerProduct(2)

	sv := stateVector(20, 0, 10, 2, 2)
	action := domain.TacticalAction{
		ID:          1,
		ProductID:   product.ID,
		ActionType:  domain.ActionHold,
		StateVector: sv.Slice(),
	}

	reward := c.ObserveOutcome(action, product, Outcome{
		ActualDemand:    10,
		Fulfilled:       10,
		EndingInventory: 5,
	})
	// Full service, light holding: serviceReward 1 minus 1/100 of scale.
	if math.Abs(reward-0.99) > 1e-9 {
		t.Errorf("reward = %v, want 0.99", reward)
	}
	if c.QTable().Len() != 1 {
		t.Errorf("QTable().Len() = %d, want 1 after first outcome", c.QTable().Len())
	}

	// A stockout outcome must score strictly worse.
	worse := c.ObserveOutcome(action, product, Outcome{
		ActualDemand:    10,
		Fulfilled:       2,
		EndingInventory: 0,
	})
	if worse >= reward {
		t.Errorf("stockout reward %v not below full-service reward %v", worse, reward)
	}
}

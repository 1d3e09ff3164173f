package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/replenlab/replenish-backend/internal/config"
	"github.com/replenlab/replenish-backend/internal/domain"
	"github.com/replenlab/replenish-backend/internal/repository"
	"github.com/replenlab/replenish-backend/internal/tactical"
)

func coordTestConfig() config.OptimizerConfig {
	return config.OptimizerConfig{
		MaxIterations:       6,
		InitialSamples:      4,
		AcquisitionStarts:   2,
		ExplorationXi:       0.01,
		ConvergenceTol:      1e-4,
		ConvergencePatience: 5,

		PredictionHorizon: 7,
		ControlHorizon:    3,
		LearningRate:      0.1,
		DiscountFactor:    0.9,
		QBlendWeight:      0.1,

		ServiceLevelTarget:        0.95,
		HoldingCostRate:           0.02,
		StockoutPenaltyMultiplier: 3,
		OrderCostFixed:            25,
		WarehouseCapacity:         10000,
		BudgetCeiling:             100000,

		LookbackDays:     30,
		StrategicCadence: 24 * time.Hour,
		TacticalCadence:  time.Minute,
		MaxParallelRuns:  2,
		RunTimeout:       30 * time.Second,
	}
}

// seedProduct loads a product with 30 days of flat demand and a current
// snapshot into the store, returning its id.
func seedProduct(t *testing.T, mem *repository.MemoryStore, sku string, stock int, meanDemand float64) int64 {
	t.Helper()
	ctx := context.Background()

	p := domain.Product{
		SKU:              sku,
		Name:             "coordinator test " + sku,
		UnitCost:         10,
		SellingPrice:     25,
		LeadTimeDays:     2,
		MinOrderQuantity: 1,
		MaxOrderQuantity: 500,
		Category:         "test",
	}
	if err := mem.CreateProduct(ctx, &p); err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	now := time.Now().UTC()
	for i := 29; i >= 0; i-- {
		obs := domain.DemandObservation{
			ProductID:         p.ID,
			Date:              now.AddDate(0, 0, -i),
			QuantityDemanded:  meanDemand + float64(i%3),
			QuantityFulfilled: meanDemand + float64(i%3),
		}
		if err := mem.AppendDemand(ctx, &obs); err != nil {
			t.Fatalf("AppendDemand: %v", err)
		}
	}

	snap := domain.InventorySnapshot{
		ProductID:  p.ID,
		StockLevel: stock,
		Timestamp:  now,
	}
	if err := mem.AppendSnapshot(ctx, &snap); err != nil {
		t.Fatalf("AppendSnapshot: %v", err)
	}
	return p.ID
}

func TestRunStrategicCreatesActivePolicy(t *testing.T) {
	mem := repository.NewMemoryStore()
	id := seedProduct(t, mem, "COORD-1", 40, 10)
	c := New(coordTestConfig(), mem.AsStore(), zerolog.Nop())
	ctx := context.Background()

	policy, err := c.RunStrategic(ctx, id, false)
	if err != nil {
		t.Fatalf("RunStrategic() error = %v", err)
	}
	if policy == nil {
		t.Fatal("RunStrategic() returned nil policy")
	}
	if policy.Version != 1 {
		t.Errorf("Version = %d, want 1 for first run", policy.Version)
	}
	if !policy.Active() {
		t.Error("new policy not active")
	}
	if policy.ReorderPoint <= 0 || policy.OrderQuantity <= 0 {
		t.Errorf("degenerate policy: reorder %v, quantity %v", policy.ReorderPoint, policy.OrderQuantity)
	}

	stored, err := mem.GetActivePolicy(ctx, id)
	if err != nil || stored == nil {
		t.Fatalf("GetActivePolicy() = %v, %v", stored, err)
	}
	if stored.Version != 1 {
		t.Errorf("stored version = %d, want 1", stored.Version)
	}
}

func TestRunStrategicCadenceWindowSkips(t *testing.T) {
	mem := repository.NewMemoryStore()
	id := seedProduct(t, mem, "COORD-2", 40, 10)
	c := New(coordTestConfig(), mem.AsStore(), zerolog.Nop())
	ctx := context.Background()

	first, err := c.RunStrategic(ctx, id, false)
	if err != nil {
		t.Fatalf("first RunStrategic() error = %v", err)
	}

	// Inside the cadence window the run is a no-op returning the same policy.
	second, err := c.RunStrategic(ctx, id, false)
	if err != nil {
		t.Fatalf("second RunStrategic() error = %v", err)
	}
	if second.Version != first.Version {
		t.Errorf("unforced re-run produced version %d, want %d", second.Version, first.Version)
	}

	history, err := mem.ListPolicyHistory(ctx, id, 0)
	if err != nil {
		t.Fatalf("ListPolicyHistory: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("policy history has %d entries, want 1", len(history))
	}
}

func TestRunStrategicForceSupersedes(t *testing.T) {
	mem := repository.NewMemoryStore()
	id := seedProduct(t, mem, "COORD-3", 40, 10)
	c := New(coordTestConfig(), mem.AsStore(), zerolog.Nop())
	ctx := context.Background()

	if _, err := c.RunStrategic(ctx, id, false); err != nil {
		t.Fatalf("first RunStrategic() error = %v", err)
	}
	forced, err := c.RunStrategic(ctx, id, true)
	if err != nil {
		t.Fatalf("forced RunStrategic() error = %v", err)
	}
	if forced.Version != 2 {
		t.Errorf("forced version = %d, want 2", forced.Version)
	}

	history, err := mem.ListPolicyHistory(ctx, id, 0)
	if err != nil {
		t.Fatalf("ListPolicyHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("policy history has %d entries, want 2", len(history))
	}
	// Newest first.
	if history[0].SupersededAt != nil {
		t.Error("newest policy should be active")
	}
	if history[1].SupersededAt == nil {
		t.Error("old policy not stamped superseded")
	}
}

func TestRunStrategicUnknownProduct(t *testing.T) {
	mem := repository.NewMemoryStore()
	c := New(coordTestConfig(), mem.AsStore(), zerolog.Nop())

	_, err := c.RunStrategic(context.Background(), 404, false)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestRunTacticalRecordsAction(t *testing.T) {
	mem := repository.NewMemoryStore()
	id := seedProduct(t, mem, "COORD-4", 5, 10)
	c := New(coordTestConfig(), mem.AsStore(), zerolog.Nop())
	ctx := context.Background()

	action, err := c.RunTactical(ctx, id)
	if err != nil {
		t.Fatalf("RunTactical() error = %v", err)
	}
	if action.ID == 0 {
		t.Error("recorded action has no id")
	}
	if action.ActionType != domain.ActionOrder {
		t.Errorf("ActionType = %s, want order with half a day of stock", action.ActionType)
	}

	recent, err := mem.ListRecentActions(ctx, id, 10)
	if err != nil {
		t.Fatalf("ListRecentActions: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != action.ID {
		t.Errorf("stored actions = %+v, want exactly the returned one", recent)
	}
}

func TestRunTacticalInsufficientHistory(t *testing.T) {
	mem := repository.NewMemoryStore()
	ctx := context.Background()

	p := domain.Product{SKU: "COORD-5", UnitCost: 10, LeadTimeDays: 2, MinOrderQuantity: 1, MaxOrderQuantity: 100}
	if err := mem.CreateProduct(ctx, &p); err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	// Only three days of history.
	now := time.Now().UTC()
	for i := 2; i >= 0; i-- {
		obs := domain.DemandObservation{ProductID: p.ID, Date: now.AddDate(0, 0, -i), QuantityDemanded: 5, QuantityFulfilled: 5}
		if err := mem.AppendDemand(ctx, &obs); err != nil {
			t.Fatalf("AppendDemand: %v", err)
		}
	}

	c := New(coordTestConfig(), mem.AsStore(), zerolog.Nop())
	if _, err := c.RunTactical(ctx, p.ID); !errors.Is(err, domain.ErrInsufficientHistory) {
		t.Errorf("error = %v, want ErrInsufficientHistory", err)
	}
}

func TestRunTacticalClampRecordedAgainstPolicy(t *testing.T) {
	mem := repository.NewMemoryStore()
	// Plenty of stock relative to the policy thresholds, little relative to
	// lead-time demand: the controller wants to order and the guardrail says no.
	id := seedProduct(t, mem, "COORD-6", 50, 15)
	ctx := context.Background()

	policy := domain.StrategicPolicy{
		ProductID:     id,
		ReorderPoint:  20,
		SafetyStock:   10,
		OrderQuantity: 50,
	}
	if err := mem.SupersedeAndCreate(ctx, &policy, 0); err != nil {
		t.Fatalf("SupersedeAndCreate: %v", err)
	}

	cfg := coordTestConfig()
	c := New(cfg, mem.AsStore(), zerolog.Nop())

	// Lead time above the seeded product's 2 days, via category override.
	lead := 5
	c.SetOverrides(map[string]*domain.RuleOverrides{"test": {LeadTimeDays: &lead}})

	action, err := c.RunTactical(ctx, id)
	if err != nil {
		t.Fatalf("RunTactical() error = %v", err)
	}
	if !action.Clamped {
		t.Error("expected guardrail clamp with position above reorder point + safety stock")
	}
	if action.Quantity != 0 {
		t.Errorf("clamped quantity = %d, want 0", action.Quantity)
	}
}

func TestObserveOutcomeBackfillsReward(t *testing.T) {
	mem := repository.NewMemoryStore()
	id := seedProduct(t, mem, "COORD-7", 5, 10)
	c := New(coordTestConfig(), mem.AsStore(), zerolog.Nop())
	ctx := context.Background()

	action, err := c.RunTactical(ctx, id)
	if err != nil {
		t.Fatalf("RunTactical() error = %v", err)
	}

	err = c.ObserveOutcome(ctx, *action, tactical.Outcome{
		ActualDemand:    10,
		Fulfilled:       10,
		EndingInventory: 3,
		OrderPlaced:     action.Quantity > 0,
	})
	if err != nil {
		t.Fatalf("ObserveOutcome() error = %v", err)
	}

	recent, err := mem.ListRecentActions(ctx, id, 1)
	if err != nil || len(recent) != 1 {
		t.Fatalf("ListRecentActions: %v (%d rows)", err, len(recent))
	}
	if recent[0].Reward == nil {
		t.Fatal("reward not back-filled")
	}
	if c.Controller().QTable().Len() == 0 {
		t.Error("outcome did not reach the learner")
	}
}

func TestRunTacticalBatchAggregatesMetrics(t *testing.T) {
	mem := repository.NewMemoryStore()
	seedProduct(t, mem, "COORD-8A", 5, 10)
	seedProduct(t, mem, "COORD-8B", 300, 10)
	c := New(coordTestConfig(), mem.AsStore(), zerolog.Nop())
	ctx := context.Background()

	if err := c.RunTacticalBatch(ctx); err != nil {
		t.Fatalf("RunTacticalBatch() error = %v", err)
	}

	actions, err := mem.ListRecentActions(ctx, 0, 10)
	if err != nil {
		t.Fatalf("ListRecentActions: %v", err)
	}
	if len(actions) != 2 {
		t.Errorf("recorded %d actions, want 2", len(actions))
	}

	costs, err := mem.ListMetrics(ctx, 0, domain.MetricTotalCost, 10)
	if err != nil {
		t.Fatalf("ListMetrics: %v", err)
	}
	if len(costs) != 1 {
		t.Errorf("recorded %d total-cost metrics, want 1", len(costs))
	}

	// Seeded demand is fully fulfilled, so the portfolio service level is 1.
	service, err := mem.ListMetrics(ctx, 0, domain.MetricServiceLevel, 10)
	if err != nil {
		t.Fatalf("ListMetrics: %v", err)
	}
	if len(service) != 1 {
		t.Fatalf("recorded %d service-level metrics, want 1", len(service))
	}
	if service[0].Value != 1 {
		t.Errorf("service level = %v, want 1", service[0].Value)
	}

	infeasible, err := mem.ListMetrics(ctx, 0, domain.MetricInfeasibleRuns, 10)
	if err != nil {
		t.Fatalf("ListMetrics: %v", err)
	}
	if len(infeasible) != 1 || infeasible[0].Value != 0 {
		t.Errorf("infeasible-run metrics = %+v, want one record with value 0", infeasible)
	}
}

func TestRunTacticalBatchSkipsThinHistory(t *testing.T) {
	mem := repository.NewMemoryStore()
	seedProduct(t, mem, "COORD-9A", 5, 10)
	ctx := context.Background()

	// A second product with no history must be skipped, not fail the batch.
	bare := domain.Product{SKU: "COORD-9B", UnitCost: 10, LeadTimeDays: 2, MinOrderQuantity: 1, MaxOrderQuantity: 100}
	if err := mem.CreateProduct(ctx, &bare); err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	c := New(coordTestConfig(), mem.AsStore(), zerolog.Nop())
	if err := c.RunTacticalBatch(ctx); err != nil {
		t.Fatalf("RunTacticalBatch() error = %v", err)
	}

	actions, err := mem.ListRecentActions(ctx, 0, 10)
	if err != nil {
		t.Fatalf("ListRecentActions: %v", err)
	}
	if len(actions) != 1 {
		t.Errorf("recorded %d actions, want 1 (bare product skipped)", len(actions))
	}
}

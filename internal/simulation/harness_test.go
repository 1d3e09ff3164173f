package simulation

import (
	"testing"
	"time"

	"github.com/replenlab/replenish-backend/internal/config"
	"github.com/replenlab/replenish-backend/internal/domain"
)

func testConfig() config.OptimizerConfig {
	return config.OptimizerConfig{
		HoldingCostRate:           0.02,
		StockoutPenaltyMultiplier: 3,
		OrderCostFixed:            25,
	}
}

func testProduct() domain.Product {
	return domain.Product{
		ID:               1,
		UnitCost:         10,
		LeadTimeDays:     3,
		MinOrderQuantity: 5,
		MaxOrderQuantity: 500,
	}
}

func TestRunDeterministic(t *testing.T) {
	trace := SyntheticTrace(90, 15, 4, 7)
	h := NewHarness(testProduct(), testConfig())
	strategy := ReorderPointStrategy(60, 100)

	a := h.Run(trace, 100, strategy)
	b := h.Run(trace, 100, strategy)
	if a != b {
		t.Errorf("same trace and strategy produced different summaries:\n%+v\n%+v", a, b)
	}
}

func TestRunAmpleStockFullService(t *testing.T) {
	trace := SyntheticTrace(30, 10, 2, 1)
	h := NewHarness(testProduct(), testConfig())

	summary := h.Run(trace, 10000, func(State) int { return 0 })
	if summary.ServiceLevel != 1 {
		t.Errorf("ServiceLevel = %v, want 1", summary.ServiceLevel)
	}
	if summary.StockoutCost != 0 {
		t.Errorf("StockoutCost = %v, want 0", summary.StockoutCost)
	}
	if summary.OrdersPlaced != 0 {
		t.Errorf("OrdersPlaced = %d, want 0", summary.OrdersPlaced)
	}
}

func TestRunNoStockAllStockouts(t *testing.T) {
	trace := Trace{Demand: []float64{10, 10, 10}}
	h := NewHarness(testProduct(), testConfig())

	summary := h.Run(trace, 0, func(State) int { return 0 })
	if summary.ServiceLevel != 0 {
		t.Errorf("ServiceLevel = %v, want 0", summary.ServiceLevel)
	}
	if summary.StockoutDays != 3 {
		t.Errorf("StockoutDays = %d, want 3", summary.StockoutDays)
	}
}

func TestRunOrdersArriveAfterLeadTime(t *testing.T) {
	// Constant demand of 10 against lead time 3. The reorder rule keeps the
	// pipeline full, so late days should still be served.
	trace := Trace{Demand: make([]float64, 30)}
	for i := range trace.Demand {
		trace.Demand[i] = 10
	}
	h := NewHarness(testProduct(), testConfig())

	summary := h.Run(trace, 100, ReorderPointStrategy(60, 80))
	if summary.OrdersPlaced == 0 {
		t.Fatal("reorder rule never ordered")
	}
	if summary.ServiceLevel < 0.95 {
		t.Errorf("ServiceLevel = %v, want >= 0.95 with a full pipeline", summary.ServiceLevel)
	}
}

func TestRunRespectsOrderBounds(t *testing.T) {
	product := testProduct()
	product.MinOrderQuantity = 50
	product.MaxOrderQuantity = 60
	h := NewHarness(product, testConfig())

	trace := Trace{Demand: []float64{10, 10, 10, 10, 10, 10}}
	ordered := 0
	summary := h.Run(trace, 20, func(s State) int {
		if s.Day == 0 {
			ordered = 1
			return 1 // below minimum, must be raised to 50
		}
		return 0
	})
	if ordered != 1 || summary.OrdersPlaced != 1 {
		t.Fatalf("OrdersPlaced = %d, want 1", summary.OrdersPlaced)
	}
	// 20 initial - 30 demand before arrival leaves 0; the raised order of 50
	// arrives on day 3 and covers the remaining 30.
	if summary.ServiceLevel < 0.8 {
		t.Errorf("ServiceLevel = %v, want >= 0.8 after minimum-order raise", summary.ServiceLevel)
	}
}

func TestSyntheticTraceReproducible(t *testing.T) {
	a := SyntheticTrace(60, 20, 5, 99)
	b := SyntheticTrace(60, 20, 5, 99)
	if len(a.Demand) != 60 {
		t.Fatalf("len = %d, want 60", len(a.Demand))
	}
	for i := range a.Demand {
		if a.Demand[i] != b.Demand[i] {
			t.Fatalf("same seed diverged at day %d", i)
		}
		if a.Demand[i] < 0 {
			t.Fatalf("negative demand %v at day %d", a.Demand[i], i)
		}
	}
}

func TestHistoricalTraceSkipsForecast(t *testing.T) {
	now := time.Now().UTC()
	obs := []domain.DemandObservation{
		{Date: now.AddDate(0, 0, -3), QuantityDemanded: 5},
		{Date: now.AddDate(0, 0, -2), QuantityDemanded: 7},
		{Date: now.AddDate(0, 0, 1), QuantityDemanded: 100, IsForecast: true},
	}
	trace := HistoricalTrace(obs)
	if len(trace.Demand) != 2 {
		t.Fatalf("len = %d, want 2 (forecast rows excluded)", len(trace.Demand))
	}
	if trace.Mean() != 6 {
		t.Errorf("Mean() = %v, want 6", trace.Mean())
	}
}

package simulation

import (
	"math"

	"github.com/replenlab/replenish-backend/internal/config"
	"github.com/replenlab/replenish-backend/internal/domain"
)

// State is what a strategy sees each simulated day.
type State struct {
	Day               int
	OnHand            int
	InTransit         int
	InventoryPosition int
	MeanDemand        float64
}

// Strategy maps the simulated state to an order quantity for the day.
// Returning 0 means no order.
type Strategy func(s State) int

// Summary is the outcome of one replay.
type Summary struct {
	TotalCost        float64 `json:"total_cost"`
	HoldingCost      float64 `json:"holding_cost"`
	StockoutCost     float64 `json:"stockout_cost"`
	OrderingCost     float64 `json:"ordering_cost"`
	ServiceLevel     float64 `json:"service_level"`
	StockoutDays     int     `json:"stockout_days"`
	AverageInventory float64 `json:"average_inventory"`
	OrdersPlaced     int     `json:"orders_placed"`
	Days             int     `json:"days"`
}

// Harness replays a strategy against a demand trace day by day. It keeps
// everything in memory; a strategic run drives it dozens of times per
// product, so there is no per-step I/O.
type Harness struct {
	product domain.Product
	cfg     config.OptimizerConfig
}

func NewHarness(product domain.Product, cfg config.OptimizerConfig) *Harness {
	return &Harness{product: product, cfg: cfg}
}

// Run replays the trace. Deterministic: same trace and strategy, same summary.
func (h *Harness) Run(trace Trace, initialStock int, strategy Strategy) Summary {
	days := len(trace.Demand)
	summary := Summary{Days: days}

	onHand := initialStock
	lead := h.product.LeadTimeDays
	if lead < 0 {
		lead = 0
	}
	// arrivals[d] is the quantity delivered at the start of day d
	arrivals := make([]int, days+lead+1)

	var demandTotal, fulfilledTotal, inventorySum float64
	meanDemand := trace.Mean()

	for day := 0; day < days; day++ {
		onHand += arrivals[day]

		inTransit := 0
		for d := day + 1; d < len(arrivals); d++ {
			inTransit += arrivals[d]
		}

		order := strategy(State{
			Day:               day,
			OnHand:            onHand,
			InTransit:         inTransit,
			InventoryPosition: onHand + inTransit,
			MeanDemand:        meanDemand,
		})
		if order > 0 {
			if order < h.product.MinOrderQuantity {
				order = h.product.MinOrderQuantity
			}
			if h.product.MaxOrderQuantity > 0 && order > h.product.MaxOrderQuantity {
				order = h.product.MaxOrderQuantity
			}
			arrivals[day+lead] += order
			summary.OrdersPlaced++
			summary.OrderingCost += h.cfg.OrderCostFixed
		}

		demand := trace.Demand[day]
		demandTotal += demand

		fulfilled := math.Min(demand, float64(onHand))
		fulfilledTotal += fulfilled
		if fulfilled < demand {
			summary.StockoutDays++
			shortage := demand - fulfilled
			summary.StockoutCost += shortage * h.product.UnitCost * h.cfg.StockoutPenaltyMultiplier
		}
		onHand -= int(math.Round(fulfilled))
		if onHand < 0 {
			onHand = 0
		}

		summary.HoldingCost += float64(onHand) * h.product.UnitCost * h.cfg.HoldingCostRate
		inventorySum += float64(onHand)
	}

	summary.TotalCost = summary.HoldingCost + summary.StockoutCost + summary.OrderingCost
	if days > 0 {
		summary.AverageInventory = inventorySum / float64(days)
	}
	if demandTotal > 0 {
		summary.ServiceLevel = fulfilledTotal / demandTotal
	} else {
		summary.ServiceLevel = 1
	}
	return summary
}

// ReorderPointStrategy orders a fixed quantity whenever the inventory
// position falls to the reorder point. The classic (s, Q) rule.
func ReorderPointStrategy(reorderPoint, orderQuantity float64) Strategy {
	return func(s State) int {
		if float64(s.InventoryPosition) <= reorderPoint {
			return int(math.Ceil(orderQuantity))
		}
		return 0
	}
}

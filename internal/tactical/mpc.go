package tactical

import (
	"fmt"
	"math"

	"github.com/replenlab/replenish-backend/internal/domain"
)

// MPCInput is one receding-horizon program. Orders decided for the control
// horizon arrive leadTime periods later; the remaining prediction horizon
// informs the trade-off but only the first period's decision is committed.
type MPCInput struct {
	Forecast       []float64 // demand per period, len = prediction horizon
	ControlHorizon int
	Inventory      float64   // available now
	Arrivals       []float64 // already in transit, indexed by periods from now
	LeadTime       int

	UnitCost        float64
	HoldingRate     float64
	StockoutPenalty float64 // per unit short, already scaled by unit cost
	OrderCostFixed  float64

	MinOrder int
	MaxOrder int
	Capacity float64
	Budget   float64
}

// MPCResult carries the solved order plan. FirstOrder is the only committed
// decision. Relaxed notes which soft constraints had to give; Infeasible is
// set when even full relaxation left no valid plan and a heuristic fallback
// produced the orders instead.
type MPCResult struct {
	Orders        []int
	FirstOrder    int
	PlanCost      float64
	RelaxedBudget bool
	RelaxedCap    bool
	Infeasible    bool
}

// SolveMPC minimizes holding + stockout + fixed ordering cost over the
// horizon. The integer order quantities are found by discrete coordinate
// descent over a per-period candidate grid; the small horizon keeps this
// cheap and exact enough. A plan is acceptable when it leaves no avoidable
// shortage: demand unmet in a period an order could still have reached
// (t >= lead time). Plans that only fail the budget are retried with the
// budget relaxed, then capacity; a shortage that survives full relaxation
// (lead time past the horizon, or demand beyond the order caps) makes the
// program infeasible and the caller falls back to the heuristic rule.
func SolveMPC(in MPCInput) (MPCResult, error) {
	if len(in.Forecast) == 0 || in.ControlHorizon < 1 {
		return MPCResult{}, fmt.Errorf("mpc: empty horizon")
	}
	if in.LeadTime >= len(in.Forecast) {
		// No order placed now can arrive inside the horizon.
		return MPCResult{Infeasible: true}, domain.ErrSolverInfeasible
	}
	h := in.ControlHorizon
	if h > len(in.Forecast) {
		h = len(in.Forecast)
	}

	attempts := []struct {
		budget   float64
		capacity float64
		relaxB   bool
		relaxC   bool
	}{
		{in.Budget, in.Capacity, false, false},
		{math.Inf(1), in.Capacity, true, false},
		{math.Inf(1), math.Inf(1), true, true},
	}

	for _, att := range attempts {
		orders, cost, ok := solveGrid(in, h, att.budget, att.capacity)
		if !ok {
			continue
		}
		if avoidableShortage(in, orders) > 1e-9 {
			continue
		}
		return MPCResult{
			Orders:        orders,
			FirstOrder:    orders[0],
			PlanCost:      cost,
			RelaxedBudget: att.relaxB,
			RelaxedCap:    att.relaxC,
		}, nil
	}

	return MPCResult{Infeasible: true}, domain.ErrSolverInfeasible
}

// solveGrid runs coordinate descent over candidate order quantities for each
// control period. Returns ok=false when the constraint set admits no plan.
func solveGrid(in MPCInput, h int, budget, capacity float64) ([]int, float64, bool) {
	grid := candidateGrid(in)
	if len(grid) == 0 {
		return nil, 0, false
	}

	orders := make([]int, h)
	if !feasible(in, orders, budget, capacity) {
		// Even the all-zero plan violates constraints (capacity already
		// exceeded by in-transit stock, or negative budget).
		return nil, 0, false
	}
	bestCost := planCost(in, orders)

	// Coordinate descent until a full sweep yields no improvement.
	for sweep := 0; sweep < 10; sweep++ {
		improved := false
		for t := 0; t < h; t++ {
			current := orders[t]
			for _, q := range grid {
				if q == current {
					continue
				}
				orders[t] = q
				if !feasible(in, orders, budget, capacity) {
					continue
				}
				if c := planCost(in, orders); c < bestCost-1e-9 {
					bestCost = c
					current = q
					improved = true
				}
			}
			orders[t] = current
		}
		if !improved {
			break
		}
	}
	return orders, bestCost, true
}

// candidateGrid enumerates admissible per-period order quantities: zero plus
// a dozen steps between the minimum and maximum order size.
func candidateGrid(in MPCInput) []int {
	maxQ := in.MaxOrder
	if maxQ <= 0 {
		maxQ = in.MinOrder * 20
		if maxQ <= 0 {
			maxQ = 1000
		}
	}
	minQ := in.MinOrder
	if minQ < 1 {
		minQ = 1
	}
	if maxQ < minQ {
		return []int{0}
	}

	grid := []int{0}
	steps := 12
	span := maxQ - minQ
	if span < steps {
		for q := minQ; q <= maxQ; q++ {
			grid = append(grid, q)
		}
		return grid
	}
	for i := 0; i <= steps; i++ {
		grid = append(grid, minQ+i*span/steps)
	}
	return grid
}

// feasible checks budget and capacity for a candidate plan.
func feasible(in MPCInput, orders []int, budget, capacity float64) bool {
	var spend float64
	for _, q := range orders {
		spend += float64(q) * in.UnitCost
	}
	if spend > budget {
		return false
	}

	// Projected on-hand inventory must stay under capacity at every period.
	inv := in.Inventory
	for t := 0; t < len(in.Forecast); t++ {
		inv += arrivalAt(in, orders, t)
		if inv > capacity {
			return false
		}
		inv -= in.Forecast[t]
		if inv < 0 {
			inv = 0
		}
	}
	return true
}

// planCost simulates the plan across the prediction horizon.
func planCost(in MPCInput, orders []int) float64 {
	var cost float64
	inv := in.Inventory

	for t := 0; t < len(in.Forecast); t++ {
		inv += arrivalAt(in, orders, t)
		inv -= in.Forecast[t]
		if inv < 0 {
			cost += -inv * in.StockoutPenalty
			inv = 0
		} else {
			cost += inv * in.UnitCost * in.HoldingRate
		}
	}
	for _, q := range orders {
		if q > 0 {
			cost += in.OrderCostFixed
		}
	}
	return cost
}

// avoidableShortage sums unmet demand in periods a fresh order could still
// reach. Shortage before the first possible arrival is sunk and does not
// count against the plan.
func avoidableShortage(in MPCInput, orders []int) float64 {
	var short float64
	inv := in.Inventory
	for t := 0; t < len(in.Forecast); t++ {
		inv += arrivalAt(in, orders, t)
		inv -= in.Forecast[t]
		if inv < 0 {
			if t >= in.LeadTime {
				short += -inv
			}
			inv = 0
		}
	}
	return short
}

// arrivalAt sums deliveries landing at period t: in-transit stock plus
// planned orders shifted by the lead time.
func arrivalAt(in MPCInput, orders []int, t int) float64 {
	var v float64
	if t < len(in.Arrivals) {
		v += in.Arrivals[t]
	}
	if idx := t - in.LeadTime; idx >= 0 && idx < len(orders) {
		v += float64(orders[idx])
	}
	return v
}

// HeuristicOrder is the classic reorder-point fallback used when the solver
// stays infeasible: order up to reorder point + safety stock when the
// inventory position has fallen to the reorder point.
func HeuristicOrder(inventoryPosition, reorderPoint, safetyStock float64, minOrder, maxOrder int) int {
	if inventoryPosition > reorderPoint {
		return 0
	}
	qty := int(math.Ceil(reorderPoint + safetyStock - inventoryPosition))
	if qty < minOrder {
		qty = minOrder
	}
	if maxOrder > 0 && qty > maxOrder {
		qty = maxOrder
	}
	return qty
}

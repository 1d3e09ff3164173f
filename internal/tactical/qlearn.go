package tactical

import (
	"sync"
)

// StateActionKey discretizes a (state, action) pair: days-of-supply tier and
// order-size tier. Small key space keeps the table sparse and bounded.
type StateActionKey struct {
	SupplyTier int `json:"supply_tier"`
	ActionTier int `json:"action_tier"`
}

// SupplyTier buckets days of supply into coarse bands.
func SupplyTier(daysOfSupply float64) int {
	switch {
	case daysOfSupply < 1:
		return 0
	case daysOfSupply < 3:
		return 1
	case daysOfSupply < 7:
		return 2
	case daysOfSupply < 14:
		return 3
	case daysOfSupply < 30:
		return 4
	default:
		return 5
	}
}

const numActionTiers = 5

// ActionTier buckets an order quantity relative to mean daily demand.
func ActionTier(quantity int, meanDailyDemand float64) int {
	if quantity <= 0 {
		return 0
	}
	if meanDailyDemand <= 0 {
		return 1
	}
	days := float64(quantity) / meanDailyDemand
	switch {
	case days < 3:
		return 1
	case days < 7:
		return 2
	case days < 14:
		return 3
	default:
		return 4
	}
}

// QTable is a sparse tabular value estimate over discretized state-action
// pairs, updated with the standard Q-learning rule. It nudges candidate
// scoring; it never overrides the MPC base cost.
type QTable struct {
	mu     sync.RWMutex
	values map[StateActionKey]float64
	alpha  float64
	gamma  float64
}

func NewQTable(learningRate, discountFactor float64) *QTable {
	return &QTable{
		values: make(map[StateActionKey]float64),
		alpha:  learningRate,
		gamma:  discountFactor,
	}
}

// Value returns the current estimate for a state-action pair (0 when unseen).
func (q *QTable) Value(key StateActionKey) float64 {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.values[key]
}

// Update applies Q <- Q + alpha(r + gamma·max_a' Q(s',a') - Q) for a realized
// transition into nextSupplyTier.
func (q *QTable) Update(key StateActionKey, reward float64, nextSupplyTier int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	maxNext := 0.0
	for a := 0; a < numActionTiers; a++ {
		if v := q.values[StateActionKey{SupplyTier: nextSupplyTier, ActionTier: a}]; v > maxNext {
			maxNext = v
		}
	}

	current := q.values[key]
	q.values[key] = current + q.alpha*(reward+q.gamma*maxNext-current)
}

// Len reports how many state-action pairs have been visited.
func (q *QTable) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.values)
}

// Snapshot copies the table, for persistence or inspection.
func (q *QTable) Snapshot() map[StateActionKey]float64 {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make(map[StateActionKey]float64, len(q.values))
	for k, v := range q.values {
		out[k] = v
	}
	return out
}

// Restore replaces the table contents, for warm starts.
func (q *QTable) Restore(values map[StateActionKey]float64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.values = make(map[StateActionKey]float64, len(values))
	for k, v := range values {
		q.values[k] = v
	}
}

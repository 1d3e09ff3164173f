package domain

import "time"

// Product is immutable catalog reference data for a single SKU.
type Product struct {
	ID               int64     `json:"id" db:"id"`
	SKU              string    `json:"sku" db:"sku"`
	Name             string    `json:"name" db:"name"`
	UnitCost         float64   `json:"unit_cost" db:"unit_cost"`
	SellingPrice     float64   `json:"selling_price" db:"selling_price"`
	LeadTimeDays     int       `json:"lead_time_days" db:"lead_time_days"`
	ShelfLifeDays    int       `json:"shelf_life_days" db:"shelf_life_days"`
	MinOrderQuantity int       `json:"min_order_quantity" db:"min_order_quantity"`
	MaxOrderQuantity int       `json:"max_order_quantity" db:"max_order_quantity"`
	Category         string    `json:"category" db:"category"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// InventorySnapshot is a point-in-time stock position for a product.
// Snapshots are append-only; the newest one is the current state.
type InventorySnapshot struct {
	ID         int64     `json:"id" db:"id"`
	ProductID  int64     `json:"product_id" db:"product_id"`
	StockLevel int       `json:"stock_level" db:"stock_level"`
	Reserved   int       `json:"reserved" db:"reserved"`
	InTransit  int       `json:"in_transit" db:"in_transit"`
	Timestamp  time.Time `json:"timestamp" db:"snapshot_at"`
}

// Available is stock on hand not already promised to someone.
func (s InventorySnapshot) Available() int {
	avail := s.StockLevel - s.Reserved
	if avail < 0 {
		return 0
	}
	return avail
}

// DemandObservation is one day of demand for a product. Historical rows are
// immutable once written; forecast rows may be replaced.
type DemandObservation struct {
	ID                int64     `json:"id" db:"id"`
	ProductID         int64     `json:"product_id" db:"product_id"`
	Date              time.Time `json:"date" db:"observed_on"`
	QuantityDemanded  float64   `json:"quantity_demanded" db:"quantity_demanded"`
	QuantityFulfilled float64   `json:"quantity_fulfilled" db:"quantity_fulfilled"`
	IsForecast        bool      `json:"is_forecast" db:"is_forecast"`
	ConfidenceLow     float64   `json:"confidence_low" db:"confidence_low"`
	ConfidenceHigh    float64   `json:"confidence_high" db:"confidence_high"`
}

// StrategicPolicy is the output of one strategic optimization run. Policies
// are versioned: a new run inserts a new record and stamps SupersededAt on
// the previous one; a record with SupersededAt == nil is the active policy.
type StrategicPolicy struct {
	ID               int64      `json:"id" db:"id"`
	ProductID        int64      `json:"product_id" db:"product_id"`
	Version          int        `json:"version" db:"version"`
	ReorderPoint     float64    `json:"reorder_point" db:"reorder_point"`
	SafetyStock      float64    `json:"safety_stock" db:"safety_stock"`
	OrderQuantity    float64    `json:"order_quantity" db:"order_quantity"`
	ReviewPeriodDays int        `json:"review_period_days" db:"review_period_days"`
	PosteriorMean    float64    `json:"posterior_mean" db:"posterior_mean"`
	PosteriorVar     float64    `json:"posterior_variance" db:"posterior_variance"`
	AcquisitionValue float64    `json:"acquisition_value" db:"acquisition_value"`
	ExpectedCost     float64    `json:"expected_cost" db:"expected_cost"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	SupersededAt     *time.Time `json:"superseded_at,omitempty" db:"superseded_at"`
}

// Active reports whether this policy version is the one in effect.
func (p StrategicPolicy) Active() bool { return p.SupersededAt == nil }

// ActionType classifies a tactical decision.
type ActionType string

const (
	ActionOrder    ActionType = "order"
	ActionHold     ActionType = "hold"
	ActionExpedite ActionType = "expedite"
)

// TacticalAction is the output of one tactical cycle for a product. Reward is
// the only field updated after creation, once the outcome is observed.
type TacticalAction struct {
	ID                   int64      `json:"id" db:"id"`
	ProductID            int64      `json:"product_id" db:"product_id"`
	ActionType           ActionType `json:"action_type" db:"action_type"`
	Quantity             int        `json:"quantity" db:"quantity"`
	ExpectedDelivery     time.Time  `json:"expected_delivery" db:"expected_delivery"`
	Cost                 float64    `json:"cost" db:"cost"`
	StateVector          []float64  `json:"state_vector" db:"-"`
	LearnedValueEstimate float64    `json:"learned_value_estimate" db:"learned_value_estimate"`
	Reward               *float64   `json:"reward,omitempty" db:"reward"`
	SolverInfeasible     bool       `json:"solver_infeasible" db:"solver_infeasible"`
	Clamped              bool       `json:"clamped" db:"clamped"`
	Timestamp            time.Time  `json:"timestamp" db:"decided_at"`
}

// MetricType labels a performance metric record.
type MetricType string

const (
	MetricServiceLevel     MetricType = "service_level"
	MetricTotalCost        MetricType = "total_cost"
	MetricOrderRate        MetricType = "order_rate"
	MetricInfeasibleRuns   MetricType = "infeasible_runs"
	MetricInventoryTurns   MetricType = "inventory_turns"
	MetricStockoutCount    MetricType = "stockout_count"
	MetricAverageInventory MetricType = "average_inventory"
)

// PerformanceMetric is a write-once telemetry record, per product or
// portfolio-wide (ProductID == 0).
type PerformanceMetric struct {
	ID        int64      `json:"id" db:"id"`
	ProductID int64      `json:"product_id" db:"product_id"`
	Type      MetricType `json:"metric_type" db:"metric_type"`
	Value     float64    `json:"value" db:"value"`
	Timestamp time.Time  `json:"timestamp" db:"recorded_at"`
}

// RuleOverrides are per-category or per-product business-rule adjustments.
// The optimization core treats them as extra constraints on the parameter
// bounds, never as algorithm logic.
type RuleOverrides struct {
	LeadTimeDays          *int     `json:"lead_time_days,omitempty"`
	SafetyStockMultiplier *float64 `json:"safety_stock_multiplier,omitempty"`
	MaxStockDays          *int     `json:"max_stock_days,omitempty"`
}

// SummaryFilter scopes a portfolio summary. Empty fields mean "all".
type SummaryFilter struct {
	ProductIDs  []int64 `json:"product_ids,omitempty"`
	Category    string  `json:"category,omitempty"`
	RecentLimit int     `json:"recent_limit,omitempty"`
}

// PortfolioSummary is the dashboard rollup across the product portfolio.
type PortfolioSummary struct {
	Products        int       `json:"products"`
	ActivePolicies  int       `json:"active_policies"`
	OrdersPlanned   int       `json:"orders_planned"`
	ClampedActions  int       `json:"clamped_actions"`
	InfeasibleRuns  int       `json:"infeasible_runs"`
	TotalActionCost float64   `json:"total_action_cost"`
	AverageReward   float64   `json:"average_reward"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// FeedRow is one pre-validated row from the optional external data feed.
type FeedRow struct {
	ProductID           int64     `json:"product_id"`
	Date                time.Time `json:"date"`
	DemandVelocity      float64   `json:"demand_velocity"`
	Revenue             float64   `json:"revenue"`
	MarketingEfficiency float64   `json:"marketing_efficiency"`
}

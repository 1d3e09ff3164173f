package repository

import (
	"context"

	"github.com/replenlab/replenish-backend/internal/domain"
)

// ProductRepository serves immutable catalog data.
type ProductRepository interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, p *domain.Product) error
}

// TimeSeriesRepository serves the per-product history windows the
// featurizer consumes.
type TimeSeriesRepository interface {
	GetRecentSnapshots(ctx context.Context, productID int64, days int) ([]domain.InventorySnapshot, error)
	GetDemandHistory(ctx context.Context, productID int64, days int) ([]domain.DemandObservation, error)
	AppendSnapshot(ctx context.Context, s *domain.InventorySnapshot) error
	AppendDemand(ctx context.Context, d *domain.DemandObservation) error
}

// PolicyRepository manages versioned strategic policies. SupersedeAndCreate
// must be atomic: it stamps superseded_at on the current active record and
// inserts the new version in one transaction, failing with
// ErrPolicyVersionConflict when a concurrent writer got there first.
type PolicyRepository interface {
	GetActivePolicy(ctx context.Context, productID int64) (*domain.StrategicPolicy, error)
	SupersedeAndCreate(ctx context.Context, p *domain.StrategicPolicy, expectedVersion int) error
	ListPolicyHistory(ctx context.Context, productID int64, limit int) ([]domain.StrategicPolicy, error)
}

// ActionRepository records tactical actions; reward back-fill is the only
// permitted mutation.
type ActionRepository interface {
	RecordAction(ctx context.Context, a *domain.TacticalAction) (int64, error)
	BackfillReward(ctx context.Context, actionID int64, reward float64) error
	ListRecentActions(ctx context.Context, productID int64, limit int) ([]domain.TacticalAction, error)
}

// MetricRepository stores write-once performance telemetry.
type MetricRepository interface {
	RecordMetric(ctx context.Context, m *domain.PerformanceMetric) error
	ListMetrics(ctx context.Context, productID int64, metricType domain.MetricType, limit int) ([]domain.PerformanceMetric, error)
}

// Store bundles the repositories the coordinator and services wire together.
type Store struct {
	Products   ProductRepository
	TimeSeries TimeSeriesRepository
	Policies   PolicyRepository
	Actions    ActionRepository
	Metrics    MetricRepository
}

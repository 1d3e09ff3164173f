package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replenlab/replenish-backend/internal/domain"
)

func TestMemoryStoreProducts(t *testing.T) {
	mem := NewMemoryStore()
	ctx := context.Background()

	p := domain.Product{SKU: "MEM-1", Name: "widget", UnitCost: 4}
	require.NoError(t, mem.CreateProduct(ctx, &p))
	assert.NotZero(t, p.ID)

	got, err := mem.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "MEM-1", got.SKU)

	_, err = mem.GetProduct(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, mem.CreateProduct(ctx, &domain.Product{SKU: "MEM-0"}))
	list, err := mem.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "MEM-0", list[0].SKU, "listing is ordered by SKU")
}

func TestMemoryStoreSnapshotValidation(t *testing.T) {
	mem := NewMemoryStore()
	ctx := context.Background()

	err := mem.AppendSnapshot(ctx, &domain.InventorySnapshot{ProductID: 1, StockLevel: 5, Reserved: 10})
	assert.Error(t, err, "reserved above stock level must be rejected")

	require.NoError(t, mem.AppendSnapshot(ctx, &domain.InventorySnapshot{
		ProductID: 1, StockLevel: 10, Reserved: 3, Timestamp: time.Now().UTC(),
	}))
	snaps, err := mem.GetRecentSnapshots(ctx, 1, 7)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, 7, snaps[0].Available())
}

func TestMemoryStoreDemandValidation(t *testing.T) {
	mem := NewMemoryStore()
	ctx := context.Background()

	err := mem.AppendDemand(ctx, &domain.DemandObservation{
		ProductID: 1, Date: time.Now().UTC(), QuantityDemanded: 5, QuantityFulfilled: 8,
	})
	assert.Error(t, err, "fulfilled above demanded must be rejected for historical rows")

	// Forecast rows are not bound by fulfillment.
	require.NoError(t, mem.AppendDemand(ctx, &domain.DemandObservation{
		ProductID: 1, Date: time.Now().UTC(), QuantityDemanded: 5, IsForecast: true,
	}))

	old := domain.DemandObservation{ProductID: 1, Date: time.Now().UTC().AddDate(0, 0, -60), QuantityDemanded: 2, QuantityFulfilled: 2}
	require.NoError(t, mem.AppendDemand(ctx, &old))
	recent, err := mem.GetDemandHistory(ctx, 1, 30)
	require.NoError(t, err)
	assert.Len(t, recent, 1, "rows older than the window are excluded")
}

func TestMemoryStorePolicyVersioning(t *testing.T) {
	mem := NewMemoryStore()
	ctx := context.Background()

	none, err := mem.GetActivePolicy(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, none, "no active policy before the first run")

	v1 := domain.StrategicPolicy{ProductID: 7, ReorderPoint: 40}
	require.NoError(t, mem.SupersedeAndCreate(ctx, &v1, 0))
	assert.Equal(t, 1, v1.Version)

	// Writing against a stale expected version is a conflict.
	stale := domain.StrategicPolicy{ProductID: 7, ReorderPoint: 50}
	err = mem.SupersedeAndCreate(ctx, &stale, 0)
	assert.ErrorIs(t, err, domain.ErrPolicyVersionConflict)

	v2 := domain.StrategicPolicy{ProductID: 7, ReorderPoint: 50}
	require.NoError(t, mem.SupersedeAndCreate(ctx, &v2, 1))
	assert.Equal(t, 2, v2.Version)

	active, err := mem.GetActivePolicy(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, 2, active.Version)
	assert.InDelta(t, 50, active.ReorderPoint, 1e-12)

	history, err := mem.ListPolicyHistory(ctx, 7, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Nil(t, history[0].SupersededAt)
	assert.NotNil(t, history[1].SupersededAt, "superseded policy keeps its stamp")
}

func TestMemoryStoreRewardBackfill(t *testing.T) {
	mem := NewMemoryStore()
	ctx := context.Background()

	a := domain.TacticalAction{ProductID: 3, ActionType: domain.ActionOrder, Quantity: 10}
	id, err := mem.RecordAction(ctx, &a)
	require.NoError(t, err)
	require.NotZero(t, id)

	require.NoError(t, mem.BackfillReward(ctx, id, 0.8))

	// Rewards are write-once.
	assert.Error(t, mem.BackfillReward(ctx, id, 0.9))
	assert.ErrorIs(t, mem.BackfillReward(ctx, 999, 0.1), domain.ErrNotFound)

	recent, err := mem.ListRecentActions(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.NotNil(t, recent[0].Reward)
	assert.InDelta(t, 0.8, *recent[0].Reward, 1e-12)
}

func TestMemoryStoreRecentActionsOrderAndLimit(t *testing.T) {
	mem := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		a := domain.TacticalAction{ProductID: 1, ActionType: domain.ActionHold}
		_, err := mem.RecordAction(ctx, &a)
		require.NoError(t, err)
	}
	other := domain.TacticalAction{ProductID: 2, ActionType: domain.ActionOrder, Quantity: 4}
	_, err := mem.RecordAction(ctx, &other)
	require.NoError(t, err)

	recent, err := mem.ListRecentActions(ctx, 1, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Greater(t, recent[0].ID, recent[1].ID, "newest first")

	all, err := mem.ListRecentActions(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 6, "product id 0 spans the portfolio")
}

func TestMemoryStoreMetricsFilter(t *testing.T) {
	mem := NewMemoryStore()
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, mem.RecordMetric(ctx, &domain.PerformanceMetric{Type: domain.MetricTotalCost, Value: 120, Timestamp: now}))
	require.NoError(t, mem.RecordMetric(ctx, &domain.PerformanceMetric{ProductID: 1, Type: domain.MetricServiceLevel, Value: 0.97, Timestamp: now}))

	costs, err := mem.ListMetrics(ctx, 0, domain.MetricTotalCost, 10)
	require.NoError(t, err)
	require.Len(t, costs, 1)
	assert.InDelta(t, 120, costs[0].Value, 1e-12)

	forProduct, err := mem.ListMetrics(ctx, 1, "", 10)
	require.NoError(t, err)
	require.Len(t, forProduct, 1)
	assert.Equal(t, domain.MetricServiceLevel, forProduct[0].Type)
}

package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/replenlab/replenish-backend/internal/config"
	"github.com/replenlab/replenish-backend/internal/domain"
)

func TestSummaryFilterHash(t *testing.T) {
	assert.Equal(t, "default", summaryFilterHash(domain.SummaryFilter{}))

	a := summaryFilterHash(domain.SummaryFilter{ProductIDs: []int64{3, 1, 2}, Category: "Frozen"})
	b := summaryFilterHash(domain.SummaryFilter{ProductIDs: []int64{1, 2, 3}, Category: "frozen"})
	assert.Equal(t, a, b, "id order and category case must not change the key")

	c := summaryFilterHash(domain.SummaryFilter{ProductIDs: []int64{1, 2}, Category: "frozen"})
	assert.NotEqual(t, a, c, "different scopes must not share an entry")

	d := summaryFilterHash(domain.SummaryFilter{RecentLimit: 50})
	e := summaryFilterHash(domain.SummaryFilter{RecentLimit: 10})
	assert.NotEqual(t, d, e)
}

func TestNoopCachesAreSafe(t *testing.T) {
	ctx := context.Background()

	sc, err := NewSummaryCache(config.CacheConfig{Enabled: false})
	assert.NoError(t, err)
	_, ok, err := sc.GetSummary(ctx, domain.SummaryFilter{})
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, sc.SetSummary(ctx, domain.SummaryFilter{}, &domain.PortfolioSummary{}))
	assert.NoError(t, sc.InvalidateAll(ctx))

	pc, err := NewPolicyCache(config.CacheConfig{Enabled: false})
	assert.NoError(t, err)
	policy, ok, err := pc.GetActive(ctx, 1)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, policy)
	assert.NoError(t, pc.Invalidate(ctx, 1))
}

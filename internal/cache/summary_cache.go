package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/replenlab/replenish-backend/internal/config"
	"github.com/replenlab/replenish-backend/internal/domain"
)

const (
	summaryKeyPrefix     = "replenish:summary"
	summaryScanBatchSize = 100
)

// SummaryCache fronts the portfolio summary rollup, keyed by a hash of the
// filter so different scopes never share an entry.
type SummaryCache interface {
	GetSummary(ctx context.Context, filter domain.SummaryFilter) (*domain.PortfolioSummary, bool, error)
	SetSummary(ctx context.Context, filter domain.SummaryFilter, summary *domain.PortfolioSummary) error
	InvalidateAll(ctx context.Context) error
}

type redisSummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopSummaryCache struct{}

func NewSummaryCache(cfg config.CacheConfig) (SummaryCache, error) {
	if !cfg.Enabled {
		return &noopSummaryCache{}, nil
	}

	client, ttl, err := newRedisClient(cfg, cfg.SummaryTTLSeconds)
	if err != nil {
		return nil, err
	}
	return &redisSummaryCache{client: client, ttl: ttl}, nil
}

func NewNoopSummaryCache() SummaryCache {
	return &noopSummaryCache{}
}

func (c *redisSummaryCache) GetSummary(ctx context.Context, filter domain.SummaryFilter) (*domain.PortfolioSummary, bool, error) {
	payload, err := c.client.Get(ctx, buildSummaryKey(filter)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var summary domain.PortfolioSummary
	if err := json.Unmarshal(payload, &summary); err != nil {
		return nil, false, fmt.Errorf("decode summary cache: %w", err)
	}
	return &summary, true, nil
}

func (c *redisSummaryCache) SetSummary(ctx context.Context, filter domain.SummaryFilter, summary *domain.PortfolioSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary cache: %w", err)
	}
	if err := c.client.Set(ctx, buildSummaryKey(filter), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisSummaryCache) InvalidateAll(ctx context.Context) error {
	return deleteKeysWithPrefix(ctx, c.client, summaryKeyPrefix, summaryScanBatchSize)
}

func (n *noopSummaryCache) GetSummary(ctx context.Context, filter domain.SummaryFilter) (*domain.PortfolioSummary, bool, error) {
	return nil, false, nil
}

func (n *noopSummaryCache) SetSummary(ctx context.Context, filter domain.SummaryFilter, summary *domain.PortfolioSummary) error {
	return nil
}

func (n *noopSummaryCache) InvalidateAll(ctx context.Context) error { return nil }

func buildSummaryKey(filter domain.SummaryFilter) string {
	return fmt.Sprintf("%s:%s", summaryKeyPrefix, summaryFilterHash(filter))
}

func summaryFilterHash(filter domain.SummaryFilter) string {
	parts := []string{}

	if len(filter.ProductIDs) > 0 {
		ids := append([]int64(nil), filter.ProductIDs...)
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		strs := make([]string, len(ids))
		for i, id := range ids {
			strs[i] = fmt.Sprintf("%d", id)
		}
		parts = append(parts, "product_ids="+strings.Join(strs, ","))
	}
	if filter.Category != "" {
		parts = append(parts, "category="+strings.ToLower(strings.TrimSpace(filter.Category)))
	}
	if filter.RecentLimit > 0 {
		parts = append(parts, fmt.Sprintf("recent_limit=%d", filter.RecentLimit))
	}

	if len(parts) == 0 {
		return "default"
	}

	sort.Strings(parts)
	sum := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

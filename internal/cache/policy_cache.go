package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/replenlab/replenish-backend/internal/config"
	"github.com/replenlab/replenish-backend/internal/domain"
)

const (
	policyKeyPrefix     = "replenish:policy"
	policyScanBatchSize = 100
)

// PolicyCache fronts the active-policy lookup the tactical cycle does every
// run. Invalidation happens whenever a strategic run supersedes a policy.
type PolicyCache interface {
	GetActive(ctx context.Context, productID int64) (*domain.StrategicPolicy, bool, error)
	SetActive(ctx context.Context, policy *domain.StrategicPolicy) error
	Invalidate(ctx context.Context, productID int64) error
	InvalidateAll(ctx context.Context) error
}

type redisPolicyCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopPolicyCache struct{}

func NewPolicyCache(cfg config.CacheConfig) (PolicyCache, error) {
	if !cfg.Enabled {
		return &noopPolicyCache{}, nil
	}

	client, ttl, err := newRedisClient(cfg, cfg.PolicyTTLSeconds)
	if err != nil {
		return nil, err
	}
	return &redisPolicyCache{client: client, ttl: ttl}, nil
}

func NewNoopPolicyCache() PolicyCache {
	return &noopPolicyCache{}
}

func (c *redisPolicyCache) GetActive(ctx context.Context, productID int64) (*domain.StrategicPolicy, bool, error) {
	payload, err := c.client.Get(ctx, policyKey(productID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var policy domain.StrategicPolicy
	if err := json.Unmarshal(payload, &policy); err != nil {
		return nil, false, fmt.Errorf("decode policy cache: %w", err)
	}
	return &policy, true, nil
}

func (c *redisPolicyCache) SetActive(ctx context.Context, policy *domain.StrategicPolicy) error {
	payload, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("encode policy cache: %w", err)
	}
	if err := c.client.Set(ctx, policyKey(policy.ProductID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisPolicyCache) Invalidate(ctx context.Context, productID int64) error {
	return c.client.Del(ctx, policyKey(productID)).Err()
}

func (c *redisPolicyCache) InvalidateAll(ctx context.Context) error {
	return deleteKeysWithPrefix(ctx, c.client, policyKeyPrefix, policyScanBatchSize)
}

func (n *noopPolicyCache) GetActive(ctx context.Context, productID int64) (*domain.StrategicPolicy, bool, error) {
	return nil, false, nil
}

func (n *noopPolicyCache) SetActive(ctx context.Context, policy *domain.StrategicPolicy) error {
	return nil
}

func (n *noopPolicyCache) Invalidate(ctx context.Context, productID int64) error { return nil }

func (n *noopPolicyCache) InvalidateAll(ctx context.Context) error { return nil }

func policyKey(productID int64) string {
	return fmt.Sprintf("%s:%d", policyKeyPrefix, productID)
}

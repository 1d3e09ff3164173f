package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/replenlab/replenish-backend/internal/cache"
	"github.com/replenlab/replenish-backend/internal/coordinator"
	"github.com/replenlab/replenish-backend/internal/domain"
	"github.com/replenlab/replenish-backend/internal/features"
	"github.com/replenlab/replenish-backend/internal/repository"
)

// OptimizationService is the read/trigger surface the API exposes over the
// optimization core. Reads go cache-first; triggers delegate to the
// coordinator and invalidate.
type OptimizationService struct {
	store        repository.Store
	policyCache  cache.PolicyCache
	summaryCache cache.SummaryCache
	coord        *coordinator.Coordinator
	lookback     int
}

func NewOptimizationService(store repository.Store, policyCache cache.PolicyCache, summaryCache cache.SummaryCache, coord *coordinator.Coordinator, lookbackDays int) *OptimizationService {
	if policyCache == nil {
		policyCache = cache.NewNoopPolicyCache()
	}
	if summaryCache == nil {
		summaryCache = cache.NewNoopSummaryCache()
	}
	return &OptimizationService{
		store:        store,
		policyCache:  policyCache,
		summaryCache: summaryCache,
		coord:        coord,
		lookback:     lookbackDays,
	}
}

func (s *OptimizationService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.store.Products.ListProducts(ctx)
}

func (s *OptimizationService) GetActivePolicy(ctx context.Context, productID int64) (*domain.StrategicPolicy, error) {
	if policy, ok, err := s.policyCache.GetActive(ctx, productID); err == nil && ok {
		return policy, nil
	} else if err != nil {
		log.Warn().Err(err).Msg("policy cache get failed")
	}

	policy, err := s.store.Policies.GetActivePolicy(ctx, productID)
	if err != nil {
		return nil, err
	}
	if policy != nil {
		if err := s.policyCache.SetActive(ctx, policy); err != nil {
			log.Warn().Err(err).Msg("policy cache set failed")
		}
	}
	return policy, nil
}

func (s *OptimizationService) GetPolicyHistory(ctx context.Context, productID int64, limit int) ([]domain.StrategicPolicy, error) {
	return s.store.Policies.ListPolicyHistory(ctx, productID, limit)
}

func (s *OptimizationService) GetRecentActions(ctx context.Context, productID int64, limit int) ([]domain.TacticalAction, error) {
	return s.store.Actions.ListRecentActions(ctx, productID, limit)
}

func (s *OptimizationService) GetMetrics(ctx context.Context, productID int64, metricType domain.MetricType, limit int) ([]domain.PerformanceMetric, error) {
	return s.store.Metrics.ListMetrics(ctx, productID, metricType, limit)
}

// GetProductState featurizes the product's current window, for dashboards.
func (s *OptimizationService) GetProductState(ctx context.Context, productID int64) (*features.StateVector, error) {
	product, err := s.store.Products.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	snapshots, err := s.store.TimeSeries.GetRecentSnapshots(ctx, productID, s.lookback)
	if err != nil {
		return nil, err
	}
	demand, err := s.store.TimeSeries.GetDemandHistory(ctx, productID, s.lookback)
	if err != nil {
		return nil, err
	}

	state, err := features.Featurize(*product, snapshots, demand, s.lookback, 0)
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// GetPortfolioSummary rolls active policies and recent actions up into the
// dashboard summary, cache-first.
func (s *OptimizationService) GetPortfolioSummary(ctx context.Context, filter domain.SummaryFilter) (*domain.PortfolioSummary, error) {
	if summary, ok, err := s.summaryCache.GetSummary(ctx, filter); err == nil && ok {
		return summary, nil
	} else if err != nil {
		log.Warn().Err(err).Msg("summary cache get failed")
	}

	products, err := s.store.Products.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	wanted := make(map[int64]bool, len(filter.ProductIDs))
	for _, id := range filter.ProductIDs {
		wanted[id] = true
	}
	limit := filter.RecentLimit
	if limit <= 0 {
		limit = 20
	}

	summary := &domain.PortfolioSummary{GeneratedAt: time.Now().UTC()}
	var rewardSum float64
	var rewardCount int
	for _, p := range products {
		if len(wanted) > 0 && !wanted[p.ID] {
			continue
		}
		if filter.Category != "" && !strings.EqualFold(p.Category, filter.Category) {
			continue
		}
		summary.Products++

		policy, err := s.store.Policies.GetActivePolicy(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if policy != nil {
			summary.ActivePolicies++
		}

		actions, err := s.store.Actions.ListRecentActions(ctx, p.ID, limit)
		if err != nil {
			return nil, err
		}
		for _, a := range actions {
			if a.ActionType != domain.ActionHold {
				summary.OrdersPlanned++
			}
			if a.Clamped {
				summary.ClampedActions++
			}
			if a.SolverInfeasible {
				summary.InfeasibleRuns++
			}
			summary.TotalActionCost += a.Cost
			if a.Reward != nil {
				rewardSum += *a.Reward
				rewardCount++
			}
		}
	}
	if rewardCount > 0 {
		summary.AverageReward = rewardSum / float64(rewardCount)
	}

	if err := s.summaryCache.SetSummary(ctx, filter, summary); err != nil {
		log.Warn().Err(err).Msg("summary cache set failed")
	}
	return summary, nil
}

// TriggerStrategic forces a strategic re-optimization for a product.
func (s *OptimizationService) TriggerStrategic(ctx context.Context, productID int64) (*domain.StrategicPolicy, error) {
	policy, err := s.coord.RunStrategic(ctx, productID, true)
	if err != nil {
		return nil, err
	}
	if err := s.policyCache.Invalidate(ctx, productID); err != nil {
		log.Warn().Err(err).Msg("policy cache invalidate failed")
	}
	if err := s.summaryCache.InvalidateAll(ctx); err != nil {
		log.Warn().Err(err).Msg("summary cache invalidate failed")
	}
	return policy, nil
}

// TriggerTactical runs one tactical cycle for a product now.
func (s *OptimizationService) TriggerTactical(ctx context.Context, productID int64) (*domain.TacticalAction, error) {
	action, err := s.coord.RunTactical(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := s.summaryCache.InvalidateAll(ctx); err != nil {
		log.Warn().Err(err).Msg("summary cache invalidate failed")
	}
	return action, nil
}

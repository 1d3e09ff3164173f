package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/replenlab/replenish-backend/internal/domain"
)

// MemoryStore is an in-memory implementation of every repository interface.
// It backs offline backtests and tests; the coordinator does not care which
// implementation it talks to.
type MemoryStore struct {
	mu sync.RWMutex

	nextID    int64
	products  map[int64]domain.Product
	snapshots map[int64][]domain.InventorySnapshot
	demand    map[int64][]domain.DemandObservation
	policies  map[int64][]domain.StrategicPolicy
	actions   []domain.TacticalAction
	metrics   []domain.PerformanceMetric
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products:  make(map[int64]domain.Product),
		snapshots: make(map[int64][]domain.InventorySnapshot),
		demand:    make(map[int64][]domain.DemandObservation),
		policies:  make(map[int64][]domain.StrategicPolicy),
	}
}

// AsStore bundles the memory store into a Store value.
func (m *MemoryStore) AsStore() Store {
	return Store{Products: m, TimeSeries: m, Policies: m, Actions: m, Metrics: m}
}

func (m *MemoryStore) nextIDLocked() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemoryStore) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
	}
	return &p, nil
}

func (m *MemoryStore) ListProducts(_ context.Context) ([]domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (m *MemoryStore) CreateProduct(_ context.Context, p *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		p.ID = m.nextIDLocked()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	m.products[p.ID] = *p
	return nil
}

func (m *MemoryStore) GetRecentSnapshots(_ context.Context, productID int64, days int) ([]domain.InventorySnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	var out []domain.InventorySnapshot
	for _, s := range m.snapshots[productID] {
		if s.Timestamp.After(cutoff) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemoryStore) GetDemandHistory(_ context.Context, productID int64, days int) ([]domain.DemandObservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	var out []domain.DemandObservation
	for _, d := range m.demand[productID] {
		if d.Date.After(cutoff) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *MemoryStore) AppendSnapshot(_ context.Context, s *domain.InventorySnapshot) error {
	if s.StockLevel < s.Reserved {
		return fmt.Errorf("snapshot for product %d: stock level below reserved", s.ProductID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == 0 {
		s.ID = m.nextIDLocked()
	}
	m.snapshots[s.ProductID] = append(m.snapshots[s.ProductID], *s)
	return nil
}

func (m *MemoryStore) AppendDemand(_ context.Context, d *domain.DemandObservation) error {
	if !d.IsForecast && d.QuantityFulfilled > d.QuantityDemanded {
		return fmt.Errorf("demand for product %d: fulfilled exceeds demanded", d.ProductID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == 0 {
		d.ID = m.nextIDLocked()
	}
	m.demand[d.ProductID] = append(m.demand[d.ProductID], *d)
	return nil
}

func (m *MemoryStore) GetActivePolicy(_ context.Context, productID int64) (*domain.StrategicPolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.policies[productID] {
		if p.Active() {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) SupersedeAndCreate(_ context.Context, p *domain.StrategicPolicy, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.policies[p.ProductID]
	currentVersion := 0
	for _, existing := range history {
		if existing.Version > currentVersion {
			currentVersion = existing.Version
		}
	}
	if currentVersion != expectedVersion {
		return fmt.Errorf("product %d: expected version %d, found %d: %w",
			p.ProductID, expectedVersion, currentVersion, domain.ErrPolicyVersionConflict)
	}

	now := time.Now().UTC()
	for i := range history {
		if history[i].Active() {
			t := now
			history[i].SupersededAt = &t
		}
	}

	p.ID = m.nextIDLocked()
	p.Version = currentVersion + 1
	m.policies[p.ProductID] = append(history, *p)
	return nil
}

func (m *MemoryStore) ListPolicyHistory(_ context.Context, productID int64, limit int) ([]domain.StrategicPolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	history := append([]domain.StrategicPolicy(nil), m.policies[productID]...)
	sort.Slice(history, func(i, j int) bool { return history[i].Version > history[j].Version })
	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}
	return history, nil
}

func (m *MemoryStore) RecordAction(_ context.Context, a *domain.TacticalAction) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.nextIDLocked()
	m.actions = append(m.actions, *a)
	return a.ID, nil
}

func (m *MemoryStore) BackfillReward(_ context.Context, actionID int64, reward float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.actions {
		if m.actions[i].ID == actionID {
			if m.actions[i].Reward != nil {
				return fmt.Errorf("action %d: reward already set", actionID)
			}
			r := reward
			m.actions[i].Reward = &r
			return nil
		}
	}
	return fmt.Errorf("action %d: %w", actionID, domain.ErrNotFound)
}

func (m *MemoryStore) ListRecentActions(_ context.Context, productID int64, limit int) ([]domain.TacticalAction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.TacticalAction
	for i := len(m.actions) - 1; i >= 0; i-- {
		if productID == 0 || m.actions[i].ProductID == productID {
			out = append(out, m.actions[i])
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MemoryStore) RecordMetric(_ context.Context, metric *domain.PerformanceMetric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	metric.ID = m.nextIDLocked()
	m.metrics = append(m.metrics, *metric)
	return nil
}

func (m *MemoryStore) ListMetrics(_ context.Context, productID int64, metricType domain.MetricType, limit int) ([]domain.PerformanceMetric, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.PerformanceMetric
	for i := len(m.metrics) - 1; i >= 0; i-- {
		mt := m.metrics[i]
		if productID != 0 && mt.ProductID != productID {
			continue
		}
		if metricType != "" && mt.Type != metricType {
			continue
		}
		out = append(out, mt)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

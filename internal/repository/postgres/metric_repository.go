package postgres

import (
	"context"
	"fmt"

	"github.com/replenlab/replenish-backend/internal/domain"
	"github.com/replenlab/replenish-backend/internal/repository"
)

type metricRepository struct {
	db *DB
}

func NewMetricRepository(db *DB) repository.MetricRepository {
	return &metricRepository{db: db}
}

func (r *metricRepository) RecordMetric(ctx context.Context, m *domain.PerformanceMetric) error {
	row := r.db.QueryRowxContext(ctx, `
		INSERT INTO performance_metrics (product_id, metric_type, value, recorded_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, m.ProductID, m.Type, m.Value, m.Timestamp)
	if err := row.Scan(&m.ID); err != nil {
		return fmt.Errorf("error recording metric: %w", err)
	}
	return nil
}

func (r *metricRepository) ListMetrics(ctx context.Context, productID int64, metricType domain.MetricType, limit int) ([]domain.PerformanceMetric, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, product_id, metric_type, value, recorded_at
		FROM performance_metrics
		WHERE ($1 = 0 OR product_id = $1)
		  AND ($2 = '' OR metric_type = $2)
		ORDER BY recorded_at DESC
		LIMIT $3
	`

	var metrics []domain.PerformanceMetric
	if err := r.db.SelectContext(ctx, &metrics, query, productID, string(metricType), limit); err != nil {
		return nil, fmt.Errorf("error listing metrics: %w", err)
	}
	return metrics, nil
}

package postgres

import (
	"context"
	"fmt"

	"github.com/replenlab/replenish-backend/internal/domain"
	"github.com/replenlab/replenish-backend/internal/repository"
)

type timeSeriesRepository struct {
	db *DB
}

func NewTimeSeriesRepository(db *DB) repository.TimeSeriesRepository {
	return &timeSeriesRepository{db: db}
}

func (r *timeSeriesRepository) GetRecentSnapshots(ctx context.Context, productID int64, days int) ([]domain.InventorySnapshot, error) {
	if days <= 0 {
		days = 30
	}

	query := `
		SELECT id, product_id, stock_level, reserved, in_transit, snapshot_at
		FROM inventory_snapshots
		WHERE product_id = $1
		  AND snapshot_at >= NOW() - ($2 || ' days')::interval
		ORDER BY snapshot_at ASC
	`

	var snapshots []domain.InventorySnapshot
	if err := r.db.SelectContext(ctx, &snapshots, query, productID, days); err != nil {
		return nil, fmt.Errorf("error getting recent snapshots: %w", err)
	}
	return snapshots, nil
}

func (r *timeSeriesRepository) GetDemandHistory(ctx context.Context, productID int64, days int) ([]domain.DemandObservation, error) {
	if days <= 0 {
		days = 30
	}

	query := `
		SELECT id, product_id, observed_on, quantity_demanded, quantity_fulfilled,
		       is_forecast, confidence_low, confidence_high
		FROM demand_observations
		WHERE product_id = $1
		  AND observed_on >= NOW() - ($2 || ' days')::interval
		ORDER BY observed_on ASC
	`

	var observations []domain.DemandObservation
	if err := r.db.SelectContext(ctx, &observations, query, productID, days); err != nil {
		return nil, fmt.Errorf("error getting demand history: %w", err)
	}
	return observations, nil
}

func (r *timeSeriesRepository) AppendSnapshot(ctx context.Context, s *domain.InventorySnapshot) error {
	if s.StockLevel < s.Reserved {
		return fmt.Errorf("snapshot for product %d: stock level %d below reserved %d", s.ProductID, s.StockLevel, s.Reserved)
	}

	row := r.db.QueryRowxContext(ctx, `
		INSERT INTO inventory_snapshots (product_id, stock_level, reserved, in_transit, snapshot_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, s.ProductID, s.StockLevel, s.Reserved, s.InTransit, s.Timestamp)
	if err := row.Scan(&s.ID); err != nil {
		return fmt.Errorf("error appending snapshot: %w", err)
	}
	return nil
}

func (r *timeSeriesRepository) AppendDemand(ctx context.Context, d *domain.DemandObservation) error {
	if !d.IsForecast && d.QuantityFulfilled > d.QuantityDemanded {
		return fmt.Errorf("demand for product %d: fulfilled %.2f exceeds demanded %.2f", d.ProductID, d.QuantityFulfilled, d.QuantityDemanded)
	}

	// Forecast rows are replaceable; historical rows are append-only.
	row := r.db.QueryRowxContext(ctx, `
		INSERT INTO demand_observations (
			product_id, observed_on, quantity_demanded, quantity_fulfilled,
			is_forecast, confidence_low, confidence_high
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (product_id, observed_on) WHERE is_forecast
		DO UPDATE SET quantity_demanded = EXCLUDED.quantity_demanded,
		              confidence_low = EXCLUDED.confidence_low,
		              confidence_high = EXCLUDED.confidence_high
		RETURNING id
	`, d.ProductID, d.Date, d.QuantityDemanded, d.QuantityFulfilled,
		d.IsForecast, d.ConfidenceLow, d.ConfidenceHigh)
	if err := row.Scan(&d.ID); err != nil {
		return fmt.Errorf("error appending demand observation: %w", err)
	}
	return nil
}

package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/replenlab/replenish-backend/internal/config"
	"github.com/replenlab/replenish-backend/internal/coordinator"
	"github.com/replenlab/replenish-backend/internal/repository"
	"github.com/replenlab/replenish-backend/internal/repository/postgres"
	"github.com/replenlab/replenish-backend/pkg/logger"
)

// runOptimize executes strategic optimization against the live database:
// one product when --product-id is set, otherwise the whole portfolio.
// With --tactical it runs one tactical cycle per product instead.
func runOptimize(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	db, err := postgres.NewDBFromURL("pgx", c.String("db-url"))
	if err != nil {
		return err
	}
	defer db.Close()

	store := repository.Store{
		Products:   postgres.NewProductRepository(db),
		TimeSeries: postgres.NewTimeSeriesRepository(db),
		Policies:   postgres.NewPolicyRepository(db),
		Actions:    postgres.NewActionRepository(db),
		Metrics:    postgres.NewMetricRepository(db),
	}
	coord := coordinator.New(cfg.Optimizer, store, logger.Log)
	ctx := context.Background()

	if c.Bool("tactical") {
		if err := coord.RunTacticalBatch(ctx); err != nil {
			return fmt.Errorf("tactical batch failed: %w", err)
		}
		logger.Log.Info().Msg("tactical batch complete")
		return nil
	}

	if id := c.Int64("product-id"); id > 0 {
		policy, err := coord.RunStrategic(ctx, id, c.Bool("force"))
		if err != nil {
			return fmt.Errorf("strategic run for product %d failed: %w", id, err)
		}
		logger.Log.Info().
			Int64("product_id", id).
			Int("version", policy.Version).
			Float64("reorder_point", policy.ReorderPoint).
			Float64("safety_stock", policy.SafetyStock).
			Float64("order_quantity", policy.OrderQuantity).
			Msg("strategic policy written")
		return nil
	}

	if err := coord.RunStrategicBatch(ctx, c.Bool("force")); err != nil {
		return fmt.Errorf("strategic batch failed: %w", err)
	}
	logger.Log.Info().Msg("strategic batch complete")
	return nil
}

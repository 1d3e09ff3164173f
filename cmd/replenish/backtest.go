package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/replenlab/replenish-backend/internal/config"
	"github.com/replenlab/replenish-backend/internal/domain"
	"github.com/replenlab/replenish-backend/internal/simulation"
	"github.com/replenlab/replenish-backend/internal/storage"
	"github.com/replenlab/replenish-backend/internal/strategic"
	"github.com/replenlab/replenish-backend/pkg/logger"
)

type backtestReport struct {
	GeneratedAt   time.Time          `json:"generated_at"`
	TraceDays     int                `json:"trace_days"`
	DemandMean    float64            `json:"demand_mean"`
	DemandStd     float64            `json:"demand_std"`
	Policy        domain.StrategicPolicy `json:"policy"`
	Iterations    int                `json:"iterations"`
	Evaluations   int                `json:"evaluations"`
	Converged     bool               `json:"converged"`
	Optimized     simulation.Summary `json:"optimized"`
	Baseline      simulation.Summary `json:"baseline"`
	CostReduction float64            `json:"cost_reduction_pct"`
}

func runBacktest(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	product := domain.Product{
		ID:               1,
		SKU:              "BACKTEST",
		Name:             "Backtest product",
		UnitCost:         c.Float64("unit-cost"),
		SellingPrice:     c.Float64("unit-cost") * 1.5,
		LeadTimeDays:     c.Int("lead-time"),
		MinOrderQuantity: 1,
		MaxOrderQuantity: cfg.Optimizer.WarehouseCapacity,
	}

	mean := c.Float64("demand-mean")
	std := c.Float64("demand-std")
	days := c.Int("days")
	seed := c.Int64("seed")

	trace := simulation.SyntheticTrace(days, mean, std, seed)

	log.Printf("Optimizing policy over a %d-day trace (mean=%.1f std=%.1f)...", days, mean, std)

	optimizer := strategic.NewOptimizer(cfg.Optimizer, seed, logger.Log)
	bounds := strategic.DefaultBounds(product, mean, std, nil)
	objective := strategic.NewCostEvaluator(product, trace, cfg.Optimizer)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Optimizer.RunTimeout)
	defer cancel()

	result, err := optimizer.Optimize(ctx, bounds, objective)
	if err != nil {
		return fmt.Errorf("optimization failed: %w", err)
	}
	policy := strategic.BuildPolicy(product, result, cfg.Optimizer.LookbackDays, logger.Log)

	// Replay both policies on the same trace so the comparison is apples to
	// apples. Baseline is a naive mean-demand reorder-point rule.
	harness := simulation.NewHarness(product, cfg.Optimizer)
	initialStock := int(policy.ReorderPoint + policy.OrderQuantity)

	optimized := harness.Run(trace, initialStock, simulation.ReorderPointStrategy(policy.ReorderPoint, policy.OrderQuantity))
	baselineReorder := mean * float64(product.LeadTimeDays)
	baseline := harness.Run(trace, initialStock, simulation.ReorderPointStrategy(baselineReorder, mean*7))

	report := backtestReport{
		GeneratedAt: time.Now().UTC(),
		TraceDays:   days,
		DemandMean:  mean,
		DemandStd:   std,
		Policy:      policy,
		Iterations:  result.Iterations,
		Evaluations: result.Evaluations,
		Converged:   result.Converged,
		Optimized:   optimized,
		Baseline:    baseline,
	}
	if baseline.TotalCost > 0 {
		report.CostReduction = (baseline.TotalCost - optimized.TotalCost) / baseline.TotalCost * 100
	}

	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	log.Printf("Optimized: cost=%.2f service=%.3f (reorder=%.1f qty=%.1f)",
		optimized.TotalCost, optimized.ServiceLevel, policy.ReorderPoint, policy.OrderQuantity)
	log.Printf("Baseline:  cost=%.2f service=%.3f", baseline.TotalCost, baseline.ServiceLevel)
	log.Printf("Cost reduction: %.1f%%", report.CostReduction)

	if out := c.String("out"); out != "" {
		if err := os.WriteFile(out, payload, 0o644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		log.Printf("Report written to %s", out)
	}

	if c.Bool("upload") {
		key := fmt.Sprintf("backtests/%s.json", time.Now().UTC().Format("20060102T150405Z"))
		if err := uploadReport(cfg.Storage, key, payload); err != nil {
			return err
		}
		log.Printf("Report uploaded to %s", key)
	}

	return nil
}

func uploadReport(cfg config.StorageConfig, key string, payload []byte) error {
	client, err := storage.NewMinioClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize object storage: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return client.UploadObject(ctx, key, payload)
}

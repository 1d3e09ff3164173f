package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/replenlab/replenish-backend/internal/config"
	"github.com/replenlab/replenish-backend/internal/domain"
)

type exportReport struct {
	GeneratedAt time.Time                          `json:"generated_at"`
	Products    []domain.Product                   `json:"products"`
	Policies    map[int64][]domain.StrategicPolicy `json:"policies"`
	Actions     map[int64][]domain.TacticalAction  `json:"actions"`
}

func runExport(c *cli.Context) error {
	db, err := openDB(c)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	limit := c.Int("limit")

	report := exportReport{
		GeneratedAt: time.Now().UTC(),
		Policies:    make(map[int64][]domain.StrategicPolicy),
		Actions:     make(map[int64][]domain.TacticalAction),
	}

	products, err := exportProducts(ctx, db)
	if err != nil {
		return err
	}
	report.Products = products

	for _, p := range products {
		policies, err := exportPolicies(ctx, db, p.ID, limit)
		if err != nil {
			return err
		}
		if len(policies) > 0 {
			report.Policies[p.ID] = policies
		}

		actions, err := exportActions(ctx, db, p.ID, limit)
		if err != nil {
			return err
		}
		if len(actions) > 0 {
			report.Actions[p.ID] = actions
		}
	}

	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	log.Printf("Exported %d products, %d policy sets, %d action sets",
		len(report.Products), len(report.Policies), len(report.Actions))

	if out := c.String("out"); out != "" {
		if err := os.WriteFile(out, payload, 0o644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		log.Printf("Report written to %s", out)
	}

	if c.Bool("upload") {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		key := fmt.Sprintf("exports/%s.json", time.Now().UTC().Format("20060102T150405Z"))
		if err := uploadReport(cfg.Storage, key, payload); err != nil {
			return err
		}
		log.Printf("Report uploaded to %s", key)
	}

	return nil
}

func exportProducts(ctx context.Context, db *sql.DB) ([]domain.Product, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, sku, name, unit_cost, selling_price, lead_time_days,
		       shelf_life_days, min_order_quantity, max_order_quantity, category, created_at
		FROM products
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.UnitCost, &p.SellingPrice,
			&p.LeadTimeDays, &p.ShelfLifeDays, &p.MinOrderQuantity, &p.MaxOrderQuantity,
			&p.Category, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func exportPolicies(ctx context.Context, db *sql.DB, productID int64, limit int) ([]domain.StrategicPolicy, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, product_id, version, reorder_point, safety_stock, order_quantity,
		       review_period_days, posterior_mean, posterior_variance, acquisition_value,
		       expected_cost, created_at, superseded_at
		FROM strategic_policies
		WHERE product_id = $1
		ORDER BY version DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query policies: %w", err)
	}
	defer rows.Close()

	var policies []domain.StrategicPolicy
	for rows.Next() {
		var p domain.StrategicPolicy
		if err := rows.Scan(&p.ID, &p.ProductID, &p.Version, &p.ReorderPoint, &p.SafetyStock,
			&p.OrderQuantity, &p.ReviewPeriodDays, &p.PosteriorMean, &p.PosteriorVar,
			&p.AcquisitionValue, &p.ExpectedCost, &p.CreatedAt, &p.SupersededAt); err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

func exportActions(ctx context.Context, db *sql.DB, productID int64, limit int) ([]domain.TacticalAction, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, product_id, action_type, quantity, expected_delivery, cost,
		       state_vector, learned_value_estimate, reward, solver_infeasible, clamped, decided_at
		FROM tactical_actions
		WHERE product_id = $1
		ORDER BY decided_at DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer rows.Close()

	var actions []domain.TacticalAction
	for rows.Next() {
		var (
			a        domain.TacticalAction
			stateRaw []byte
		)
		if err := rows.Scan(&a.ID, &a.ProductID, &a.ActionType, &a.Quantity, &a.ExpectedDelivery,
			&a.Cost, &stateRaw, &a.LearnedValueEstimate, &a.Reward, &a.SolverInfeasible,
			&a.Clamped, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		if len(stateRaw) > 0 {
			if err := json.Unmarshal(stateRaw, &a.StateVector); err != nil {
				return nil, fmt.Errorf("failed to decode state vector for action %d: %w", a.ID, err)
			}
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

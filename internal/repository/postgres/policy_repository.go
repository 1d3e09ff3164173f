package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/replenlab/replenish-backend/internal/domain"
	"github.com/replenlab/replenish-backend/internal/repository"
)

type policyRepository struct {
	db *DB
}

func NewPolicyRepository(db *DB) repository.PolicyRepository {
	return &policyRepository{db: db}
}

func (r *policyRepository) GetActivePolicy(ctx context.Context, productID int64) (*domain.StrategicPolicy, error) {
	query := `
		SELECT id, product_id, version, reorder_point, safety_stock, order_quantity,
		       review_period_days, posterior_mean, posterior_variance, acquisition_value,
		       expected_cost, created_at, superseded_at
		FROM strategic_policies
		WHERE product_id = $1 AND superseded_at IS NULL
	`

	var policy domain.StrategicPolicy
	if err := r.db.GetContext(ctx, &policy, query, productID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error getting active policy: %w", err)
	}
	return &policy, nil
}

// SupersedeAndCreate stamps superseded_at on the current active policy and
// inserts the new version in one transaction. expectedVersion is the version
// the caller based its run on (0 when no policy existed); a mismatch means a
// concurrent run won and the write is rejected.
func (r *policyRepository) SupersedeAndCreate(ctx context.Context, p *domain.StrategicPolicy, expectedVersion int) error {
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var currentVersion int
		err := tx.GetContext(ctx, &currentVersion, `
			SELECT COALESCE(MAX(version), 0)
			FROM strategic_policies
			WHERE product_id = $1
		`, p.ProductID)
		if err != nil {
			return fmt.Errorf("error reading current policy version: %w", err)
		}

		if currentVersion != expectedVersion {
			return fmt.Errorf("product %d: expected version %d, found %d: %w",
				p.ProductID, expectedVersion, currentVersion, domain.ErrPolicyVersionConflict)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE strategic_policies
			SET superseded_at = NOW()
			WHERE product_id = $1 AND superseded_at IS NULL
		`, p.ProductID)
		if err != nil {
			return fmt.Errorf("error superseding active policy: %w", err)
		}

		p.Version = currentVersion + 1
		row := tx.QueryRowxContext(ctx, `
			INSERT INTO strategic_policies (
				product_id, version, reorder_point, safety_stock, order_quantity,
				review_period_days, posterior_mean, posterior_variance,
				acquisition_value, expected_cost, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id
		`, p.ProductID, p.Version, p.ReorderPoint, p.SafetyStock, p.OrderQuantity,
			p.ReviewPeriodDays, p.PosteriorMean, p.PosteriorVar,
			p.AcquisitionValue, p.ExpectedCost, p.CreatedAt)
		if err := row.Scan(&p.ID); err != nil {
			return fmt.Errorf("error inserting policy: %w", err)
		}
		return nil
	})
}

func (r *policyRepository) ListPolicyHistory(ctx context.Context, productID int64, limit int) ([]domain.StrategicPolicy, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, product_id, version, reorder_point, safety_stock, order_quantity,
		       review_period_days, posterior_mean, posterior_variance, acquisition_value,
		       expected_cost, created_at, superseded_at
		FROM strategic_policies
		WHERE product_id = $1
		ORDER BY version DESC
		LIMIT $2
	`

	var policies []domain.StrategicPolicy
	if err := r.db.SelectContext(ctx, &policies, query, productID, limit); err != nil {
		return nil, fmt.Errorf("error listing policy history: %w", err)
	}
	return policies, nil
}

package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/replenlab/replenish-backend/internal/domain"
	"github.com/replenlab/replenish-backend/internal/repository"
)

type actionRepository struct {
	db *DB
}

func NewActionRepository(db *DB) repository.ActionRepository {
	return &actionRepository{db: db}
}

func (r *actionRepository) RecordAction(ctx context.Context, a *domain.TacticalAction) (int64, error) {
	state, err := json.Marshal(a.StateVector)
	if err != nil {
		return 0, fmt.Errorf("error encoding state vector: %w", err)
	}

	row := r.db.QueryRowxContext(ctx, `
		INSERT INTO tactical_actions (
			product_id, action_type, quantity, expected_delivery, cost,
			state_vector, learned_value_estimate, solver_infeasible, clamped, decided_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, a.ProductID, a.ActionType, a.Quantity, a.ExpectedDelivery, a.Cost,
		state, a.LearnedValueEstimate, a.SolverInfeasible, a.Clamped, a.Timestamp)
	if err := row.Scan(&a.ID); err != nil {
		return 0, fmt.Errorf("error recording tactical action: %w", err)
	}
	return a.ID, nil
}

// BackfillReward is the only mutation tactical actions allow.
func (r *actionRepository) BackfillReward(ctx context.Context, actionID int64, reward float64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tactical_actions
		SET reward = $2
		WHERE id = $1 AND reward IS NULL
	`, actionID, reward)
	if err != nil {
		return fmt.Errorf("error backfilling reward: %w", err)
	}
	rows, err := res.RowsAffected()
	if err == nil && rows == 0 {
		return fmt.Errorf("action %d: %w", actionID, domain.ErrNotFound)
	}
	return nil
}

func (r *actionRepository) ListRecentActions(ctx context.Context, productID int64, limit int) ([]domain.TacticalAction, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, product_id, action_type, quantity, expected_delivery, cost,
		       learned_value_estimate, reward, solver_infeasible, clamped, decided_at
		FROM tactical_actions
		WHERE ($1 = 0 OR product_id = $1)
		ORDER BY decided_at DESC
		LIMIT $2
	`

	var actions []domain.TacticalAction
	if err := r.db.SelectContext(ctx, &actions, query, productID, limit); err != nil {
		return nil, fmt.Errorf("error listing tactical actions: %w", err)
	}
	return actions, nil
}

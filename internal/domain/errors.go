package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the optimization core. Callers test with errors.Is.
var (
	// ErrInsufficientHistory means there is not enough snapshot/demand data
	// to featurize reliably. No optimization is attempted; the prior
	// policy/action stays in effect.
	ErrInsufficientHistory = errors.New("insufficient history")

	// ErrOptimizationFailed means the strategic run produced no valid
	// evaluation. The previous active policy is retained.
	ErrOptimizationFailed = errors.New("optimization failed")

	// ErrSolverInfeasible means the tactical program stayed infeasible even
	// after constraint relaxation; the heuristic fallback applies.
	ErrSolverInfeasible = errors.New("solver infeasible")

	// ErrNumericalInstability marks a singular covariance / Cholesky failure
	// in the GP fit. Retried once with extra regularization before
	// escalating to ErrOptimizationFailed.
	ErrNumericalInstability = errors.New("numerical instability")

	// ErrConflictingPolicy marks tactical decisions persistently violating
	// strategic bounds; surfaced by the coordinator as a reconciliation
	// event without blocking the clamped action.
	ErrConflictingPolicy = errors.New("conflicting policy")

	// ErrPolicyVersionConflict means a concurrent strategic run already
	// superseded the version this writer was based on.
	ErrPolicyVersionConflict = errors.New("policy version conflict")

	ErrNotFound = errors.New("not found")
)

// InsufficientHistoryError carries the observed vs required history sizes.
type InsufficientHistoryError struct {
	ProductID int64
	Have      int
	Need      int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history for product %d: have %d days, need %d", e.ProductID, e.Have, e.Need)
}

func (e *InsufficientHistoryError) Unwrap() error { return ErrInsufficientHistory }

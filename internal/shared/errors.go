package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrValidation indicates caller input that cannot be processed.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition indicates a state change not reachable from the current state.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrUnbalancedPosting signals a voucher whose debits and credits differ.
	ErrUnbalancedPosting = errors.New("unbalanced posting")
	// ErrContention indicates a lock timeout or serialization conflict. Retryable.
	ErrContention = errors.New("contention")
	// ErrReconciliationDrift signals fund balance strategies that disagree.
	ErrReconciliationDrift = errors.New("reconciliation drift")
	// ErrConflict indicates a unique constraint violation.
	ErrConflict = errors.New("conflict")
)

// Validation wraps ErrValidation with a message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// DriftError carries the three computed balances of a fund that failed reconciliation.
type DriftError struct {
	FundID           int64
	Stored           decimal.Decimal
	FromTransactions decimal.Decimal
	FromOperations   decimal.Decimal
	FromStatements   decimal.Decimal
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("reconciliation drift: fund %d stored=%s transactions=%s operations=%s statements=%s",
		e.FundID, e.Stored, e.FromTransactions, e.FromOperations, e.FromStatements)
}

// Unwrap lets errors.Is match ErrReconciliationDrift.
func (e *DriftError) Unwrap() error {
	return ErrReconciliationDrift
}

// IsRetryable reports whether the caller may retry the unit of work.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrContention)
}

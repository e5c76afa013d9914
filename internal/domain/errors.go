package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the store, the application service and the API layer.
// Callers match with errors.Is / errors.As; nothing leaves the service untyped.
var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrWrongAccountType    = errors.New("operation not supported for this account type")
	ErrReferentialConflict = errors.New("entity still has dependents")
	ErrPersistenceFailure  = errors.New("persistence failure")
	ErrBalanceReconciling  = errors.New("account balance has a pending reconciliation")

	ErrClientNotFound         = fmt.Errorf("client %w", ErrNotFound)
	ErrAccountNotFound        = fmt.Errorf("account %w", ErrNotFound)
	ErrTransactionNotFound    = fmt.Errorf("transaction %w", ErrNotFound)
	ErrReconciliationNotFound = fmt.Errorf("balance reconciliation %w", ErrNotFound)

	ErrClientHasAccounts        = fmt.Errorf("client has accounts: %w", ErrReferentialConflict)
	ErrAccountHasTransactions   = fmt.Errorf("account has transactions: %w", ErrReferentialConflict)
	ErrDuplicateAccountNumber   = fmt.Errorf("duplicate account number: %w", ErrPersistenceFailure)
	ErrAccountNumberUnavailable = errors.New("could not allocate a unique account number")
)

// ValidationError reports a malformed entity or request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError builds a *ValidationError for field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// PersistenceError wraps a store failure for op. Errors that already belong to the
// taxonomy (not found, conflicts) pass through untouched.
func PersistenceError(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsEngineError(err) {
		return err
	}
	return fmt.Errorf("%s: %w: %v", op, ErrPersistenceFailure, err)
}

// IsEngineError reports whether err is already one of the typed engine failures.
func IsEngineError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrWrongAccountType) ||
		errors.Is(err, ErrReferentialConflict) ||
		errors.Is(err, ErrBalanceReconciling) ||
		errors.Is(err, ErrPersistenceFailure)
}

// ReconciliationError is returned when a transaction row was saved but the matching
// balance update failed. The ledger is inconsistent until the queued reconciliation is
// applied; the caller must not resubmit the transaction.
type ReconciliationError struct {
	TransactionID    int64
	AccountID        int64
	ReconciliationID int64
	Cause            error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("transaction %d saved but balance update for account %d failed: %v", e.TransactionID, e.AccountID, e.Cause)
}

func (e *ReconciliationError) Unwrap() error { return e.Cause }

func (e *ReconciliationError) Is(target error) bool { return target == ErrPersistenceFailure }

// Retryable is always true: the balance delta can be re-applied by the reconciler.
func (e *ReconciliationError) Retryable() bool { return true }

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReconciliationStatus tracks a queued balance repair.
type ReconciliationStatus string

const (
	ReconciliationPending  ReconciliationStatus = "pending"
	ReconciliationResolved ReconciliationStatus = "resolved"
)

// BalanceReconciliation records a saved transaction whose balance delta has not been
// applied to its account yet.
type BalanceReconciliation struct {
	ID            int64                `json:"id"`
	TransactionID int64                `json:"transaction_id"`
	AccountID     int64                `json:"account_id"`
	Kind          TransactionKind      `json:"kind"`
	Amount        decimal.Decimal      `json:"amount"`
	Status        ReconciliationStatus `json:"status"`
	Attempts      int                  `json:"attempts"`
	LastError     string               `json:"last_error,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	ResolvedAt    *time.Time           `json:"resolved_at,omitempty"`
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Routing keys published on the ledger events exchange.
const (
	EventTransactionRecorded    = "ledger.transaction.recorded"
	EventAnomalyDetected        = "ledger.anomaly.detected"
	EventReconciliationRequired = "ledger.balance.reconciliation_required"
	EventReconciliationResolved = "ledger.balance.reconciliation_resolved"
	EventAccountInactive        = "ledger.account.inactive"
	EventAccountLowBalance      = "ledger.account.low_balance"
)

// TransactionRecordedEvent is emitted after both ledger writes succeeded.
type TransactionRecordedEvent struct {
	EventID       string          `json:"event_id"`
	TransactionID int64           `json:"transaction_id"`
	AccountID     int64           `json:"account_id"`
	Kind          TransactionKind `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	Location      string          `json:"location"`
	NewBalance    decimal.Decimal `json:"new_balance"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// AnomalyDetectedEvent is emitted by the anomaly scan for each newly flagged transaction.
type AnomalyDetectedEvent struct {
	EventID       string          `json:"event_id"`
	TransactionID int64           `json:"transaction_id"`
	AccountID     int64           `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Location      string          `json:"location"`
	Reasons       []string        `json:"reasons"`
	DetectedAt    time.Time       `json:"detected_at"`
}

// ReconciliationEvent is emitted when a balance repair is queued or resolved.
type ReconciliationEvent struct {
	EventID          string          `json:"event_id"`
	ReconciliationID int64           `json:"reconciliation_id"`
	TransactionID    int64           `json:"transaction_id"`
	AccountID        int64           `json:"account_id"`
	Kind             TransactionKind `json:"kind"`
	Amount           decimal.Decimal `json:"amount"`
	Reason           string          `json:"reason,omitempty"`
	OccurredAt       time.Time       `json:"occurred_at"`
}

// AccountAlertEvent carries inactivity and low-balance alerts.
type AccountAlertEvent struct {
	EventID       string          `json:"event_id"`
	AccountID     int64           `json:"account_id"`
	AccountNumber string          `json:"account_number"`
	ClientName    string          `json:"client_name,omitempty"`
	Balance       decimal.Decimal `json:"balance"`
	Threshold     string          `json:"threshold"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

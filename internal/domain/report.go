package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClientBalance is one row of the top-clients ranking.
type ClientBalance struct {
	ClientID     int64           `json:"client_id"`
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	TotalBalance decimal.Decimal `json:"total_balance"`
	AccountCount int             `json:"account_count"`
}

// KindTotals aggregates transactions of one kind.
type KindTotals struct {
	Kind   TransactionKind `json:"kind"`
	Count  int64           `json:"count"`
	Volume decimal.Decimal `json:"volume"`
}

// MonthlyReport aggregates one calendar month.
type MonthlyReport struct {
	Month       string          `json:"month"`
	From        time.Time       `json:"from"`
	To          time.Time       `json:"to"`
	ByKind      []KindTotals    `json:"by_kind"`
	TotalCount  int64           `json:"total_count"`
	TotalVolume decimal.Decimal `json:"total_volume"`
}

// InactiveAccount is one row of the inactivity report.
type InactiveAccount struct {
	AccountID         int64           `json:"account_id"`
	AccountNumber     string          `json:"account_number"`
	AccountType       AccountType     `json:"account_type"`
	ClientName        string          `json:"client_name,omitempty"`
	Balance           decimal.Decimal `json:"balance"`
	LastTransactionAt *time.Time      `json:"last_transaction_at,omitempty"`
}

// LowBalanceAlert is one row of the low-balance report.
type LowBalanceAlert struct {
	AccountID     int64           `json:"account_id"`
	AccountNumber string          `json:"account_number"`
	AccountType   AccountType     `json:"account_type"`
	ClientName    string          `json:"client_name,omitempty"`
	ClientEmail   string          `json:"client_email,omitempty"`
	Balance       decimal.Decimal `json:"balance"`
}

// AccountSummary identifies an account by number and balance in statistics.
type AccountSummary struct {
	AccountID     int64           `json:"account_id"`
	AccountNumber string          `json:"account_number"`
	Balance       decimal.Decimal `json:"balance"`
}

// Statistics is the global snapshot report.
type Statistics struct {
	TotalClients       int                       `json:"total_clients"`
	TotalAccounts      int                       `json:"total_accounts"`
	TotalTransactions  int                       `json:"total_transactions"`
	MeanBalance        decimal.Decimal           `json:"mean_balance"`
	MaxBalanceAccount  *AccountSummary           `json:"max_balance_account,omitempty"`
	MinBalanceAccount  *AccountSummary           `json:"min_balance_account,omitempty"`
	TransactionsByKind map[TransactionKind]int64 `json:"transactions_by_kind"`
}

// SuspiciousReport holds each heuristic's own view plus their union.
type SuspiciousReport struct {
	LargeAmount     []Transaction `json:"large_amount"`
	UnusualLocation []Transaction `json:"unusual_location"`
	All             []Transaction `json:"all"`
}

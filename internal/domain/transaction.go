package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind is the movement type of a transaction.
type TransactionKind string

const (
	Deposit    TransactionKind = "DEPOSIT"
	Withdrawal TransactionKind = "WITHDRAWAL"
	Transfer   TransactionKind = "TRANSFER"
)

// TransactionKinds lists every kind in reporting order.
var TransactionKinds = []TransactionKind{Deposit, Withdrawal, Transfer}

// Valid reports whether k is a known kind.
func (k TransactionKind) Valid() bool {
	switch k {
	case Deposit, Withdrawal, Transfer:
		return true
	}
	return false
}

// IsDebit reports whether the kind takes money out of the account. A transfer is
// recorded on its source account only, so it debits.
func (k TransactionKind) IsDebit() bool {
	return k == Withdrawal || k == Transfer
}

// ParseTransactionKind accepts any casing of a known kind.
func ParseTransactionKind(raw string) (TransactionKind, error) {
	k := TransactionKind(strings.ToUpper(strings.TrimSpace(raw)))
	if !k.Valid() {
		return "", NewValidationError("kind", "must be one of DEPOSIT, WITHDRAWAL, TRANSFER")
	}
	return k, nil
}

// Transaction is an immutable ledger entry.
type Transaction struct {
	ID        int64           `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Amount    decimal.Decimal `json:"amount"`
	Kind      TransactionKind `json:"kind"`
	Location  string          `json:"location"`
	AccountID int64           `json:"account_id"`
}

// NewTransaction validates and builds a Transaction.
func NewTransaction(id int64, ts time.Time, amount decimal.Decimal, kind TransactionKind, location string, accountID int64) (Transaction, error) {
	if !amount.IsPositive() {
		return Transaction{}, NewValidationError("amount", "must be > 0")
	}
	if !kind.Valid() {
		return Transaction{}, NewValidationError("kind", "must be one of DEPOSIT, WITHDRAWAL, TRANSFER")
	}
	if accountID <= 0 {
		return Transaction{}, NewValidationError("account_id", "must be a positive id")
	}
	return Transaction{
		ID:        id,
		Timestamp: ts,
		Amount:    amount,
		Kind:      kind,
		Location:  strings.TrimSpace(location),
		AccountID: accountID,
	}, nil
}

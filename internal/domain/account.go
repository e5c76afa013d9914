package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// AccountType names the closed set of account variants.
type AccountType string

const (
	CurrentAccount AccountType = "CURRENT"
	SavingsAccount AccountType = "SAVINGS"
)

// AccountTerms is the variant-specific payload of an Account. The set of
// implementations is closed: CurrentTerms and SavingsTerms.
type AccountTerms interface {
	accountType() AccountType
}

// CurrentTerms allows the balance to go down to -OverdraftLimit.
type CurrentTerms struct {
	OverdraftLimit decimal.Decimal
}

func (CurrentTerms) accountType() AccountType { return CurrentAccount }

// SavingsTerms carries an interest rate in percent; the balance may never go negative.
type SavingsTerms struct {
	InterestRate decimal.Decimal
}

func (SavingsTerms) accountType() AccountType { return SavingsAccount }

// Account is a client's ledger position.
type Account struct {
	ID       int64
	Number   string
	Balance  decimal.Decimal
	ClientID int64
	Terms    AccountTerms
}

// NewCurrentAccount builds a Current account. The overdraft limit must be >= 0 and the
// opening balance must already respect it.
func NewCurrentAccount(clientID int64, number string, balance, overdraftLimit decimal.Decimal) (*Account, error) {
	if overdraftLimit.IsNegative() {
		return nil, NewValidationError("overdraft_limit", "must be >= 0")
	}
	a := &Account{Number: number, Balance: balance, ClientID: clientID, Terms: CurrentTerms{OverdraftLimit: overdraftLimit}}
	if err := a.validateOpening(); err != nil {
		return nil, err
	}
	return a, nil
}

// NewSavingsAccount builds a Savings account. The interest rate has no upper bound.
func NewSavingsAccount(clientID int64, number string, balance, interestRate decimal.Decimal) (*Account, error) {
	a := &Account{Number: number, Balance: balance, ClientID: clientID, Terms: SavingsTerms{InterestRate: interestRate}}
	if err := a.validateOpening(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Account) validateOpening() error {
	if a.ClientID <= 0 {
		return NewValidationError("client_id", "must be a positive id")
	}
	if !a.withinFloor(a.Balance) {
		return NewValidationError("balance", fmt.Sprintf("opening balance must be >= %s", a.Floor()))
	}
	return nil
}

// Type returns the account variant.
func (a *Account) Type() AccountType {
	if a.Terms == nil {
		return ""
	}
	return a.Terms.accountType()
}

// Floor is the lowest balance the account may hold.
func (a *Account) Floor() decimal.Decimal {
	switch t := a.Terms.(type) {
	case CurrentTerms:
		return t.OverdraftLimit.Neg()
	default:
		return decimal.Zero
	}
}

func (a *Account) withinFloor(balance decimal.Decimal) bool {
	return balance.GreaterThanOrEqual(a.Floor())
}

// CanWithdraw reports whether debiting amount keeps the account within its floor.
func (a *Account) CanWithdraw(amount decimal.Decimal) bool {
	return a.withinFloor(a.Balance.Sub(amount))
}

// ApplyDelta returns the balance after a transaction of kind and amount. Debit
// eligibility must have been checked with CanWithdraw beforehand.
func (a *Account) ApplyDelta(kind TransactionKind, amount decimal.Decimal) decimal.Decimal {
	if kind.IsDebit() {
		return a.Balance.Sub(amount)
	}
	return a.Balance.Add(amount)
}

// SetOverdraftLimit changes the overdraft of a Current account.
func (a *Account) SetOverdraftLimit(limit decimal.Decimal) error {
	t, ok := a.Terms.(CurrentTerms)
	if !ok {
		return ErrWrongAccountType
	}
	if limit.IsNegative() {
		return NewValidationError("overdraft_limit", "must be >= 0")
	}
	t.OverdraftLimit = limit
	a.Terms = t
	return nil
}

// SetInterestRate changes the rate of a Savings account.
func (a *Account) SetInterestRate(rate decimal.Decimal) error {
	t, ok := a.Terms.(SavingsTerms)
	if !ok {
		return ErrWrongAccountType
	}
	t.InterestRate = rate
	a.Terms = t
	return nil
}

// OverdraftLimit returns the limit for Current accounts and false otherwise.
func (a *Account) OverdraftLimit() (decimal.Decimal, bool) {
	t, ok := a.Terms.(CurrentTerms)
	return t.OverdraftLimit, ok
}

// InterestRate returns the rate for Savings accounts and false otherwise.
func (a *Account) InterestRate() (decimal.Decimal, bool) {
	t, ok := a.Terms.(SavingsTerms)
	return t.InterestRate, ok
}

type accountJSON struct {
	ID             int64            `json:"id"`
	Number         string           `json:"number"`
	Type           AccountType      `json:"type"`
	Balance        decimal.Decimal  `json:"balance"`
	ClientID       int64            `json:"client_id"`
	OverdraftLimit *decimal.Decimal `json:"overdraft_limit,omitempty"`
	InterestRate   *decimal.Decimal `json:"interest_rate,omitempty"`
}

// MarshalJSON flattens the variant payload next to the common fields.
func (a Account) MarshalJSON() ([]byte, error) {
	out := accountJSON{ID: a.ID, Number: a.Number, Type: a.Type(), Balance: a.Balance, ClientID: a.ClientID}
	switch t := a.Terms.(type) {
	case CurrentTerms:
		out.OverdraftLimit = &t.OverdraftLimit
	case SavingsTerms:
		out.InterestRate = &t.InterestRate
	}
	return json.Marshal(out)
}

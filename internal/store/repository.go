/**
 * @description
 * This file defines the `Repository` interface, the contract for every read and write
 * the ledger-service performs. The application layer only depends on this interface,
 * so the PostgreSQL implementation and the in-memory implementation are
 * interchangeable.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/shopspring/decimal: Money values.
 * - internal/domain: The service's domain models.
 *
 * @notes
 * - Create methods assign the generated ID onto the passed value.
 * - Transaction lists are ordered newest first (timestamp, then id).
 * - Not-found lookups return the matching domain.Err*NotFound sentinel.
 */

package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/solubank/ledger-service/internal/domain"
)

// Repository defines the set of methods for interacting with the ledger store.
type Repository interface {
	// Client methods
	CreateClient(ctx context.Context, client *domain.Client) error
	UpdateClient(ctx context.Context, client *domain.Client) error
	DeleteClient(ctx context.Context, clientID int64) error
	FindClientByID(ctx context.Context, clientID int64) (*domain.Client, error)
	FindClientsByName(ctx context.Context, name string) ([]domain.Client, error)
	FindAllClients(ctx context.Context) ([]domain.Client, error)

	// Account methods
	CreateAccount(ctx context.Context, account *domain.Account) error
	FindAccountByID(ctx context.Context, accountID int64) (*domain.Account, error)
	FindAccountByNumber(ctx context.Context, number string) (*domain.Account, error)
	FindAccountsByClientID(ctx context.Context, clientID int64) ([]domain.Account, error)
	FindAllAccounts(ctx context.Context) ([]domain.Account, error)
	UpdateAccountBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error
	UpdateAccountTerms(ctx context.Context, account *domain.Account) error
	DeleteAccount(ctx context.Context, accountID int64) error

	// Transaction methods
	CreateTransaction(ctx context.Context, tx *domain.Transaction) error
	FindTransactionByID(ctx context.Context, transactionID int64) (*domain.Transaction, error)
	FindTransactionsByAccountID(ctx context.Context, accountID int64) ([]domain.Transaction, error)
	FindTransactionsByClientID(ctx context.Context, clientID int64) ([]domain.Transaction, error)
	FindTransactionsByKind(ctx context.Context, kind domain.TransactionKind) ([]domain.Transaction, error)
	FindTransactionsByDateRange(ctx context.Context, from, to time.Time) ([]domain.Transaction, error)
	FindTransactionsByAmountRange(ctx context.Context, min, max decimal.Decimal) ([]domain.Transaction, error)
	FindTransactionsByLocation(ctx context.Context, location string) ([]domain.Transaction, error)
	FindAllTransactions(ctx context.Context) ([]domain.Transaction, error)
	CountTransactionsByAccountID(ctx context.Context, accountID int64) (int64, error)
	DeleteTransaction(ctx context.Context, transactionID int64) error

	// Balance reconciliation methods
	CreateBalanceReconciliation(ctx context.Context, rec *domain.BalanceReconciliation) error
	FindPendingBalanceReconciliations(ctx context.Context, limit int) ([]domain.BalanceReconciliation, error)
	FindPendingBalanceReconciliationsByAccountID(ctx context.Context, accountID int64) ([]domain.BalanceReconciliation, error)
	MarkBalanceReconciliationResolved(ctx context.Context, reconciliationID int64, resolvedAt time.Time) error
	RecordBalanceReconciliationFailure(ctx context.Context, reconciliationID int64, reason string) error
}

// AtomicRecorder is implemented by stores that can persist a balance together with the
// row that explains it in a single unit of work.
type AtomicRecorder interface {
	CreateTransactionWithBalance(ctx context.Context, tx *domain.Transaction, newBalance decimal.Decimal) error
	// ResolveBalanceReconciliation writes newBalance and closes the pending repair
	// together. It returns domain.ErrReconciliationNotFound, with nothing written, when
	// the repair is no longer pending.
	ResolveBalanceReconciliation(ctx context.Context, reconciliationID, accountID int64, newBalance decimal.Decimal, resolvedAt time.Time) error
}

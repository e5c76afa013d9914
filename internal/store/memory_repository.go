/**
 * @description
 * This file provides an in-memory implementation of the `Repository` interface. It is
 * used for local runs (STORE_DRIVER=memory) and by the service tests. Semantics match
 * the PostgreSQL implementation: generated ids, newest-first transaction lists,
 * referential checks on delete and unique account numbers.
 *
 * @notes
 * - Values are copied on the way in and out so callers never alias stored state.
 */

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/solubank/ledger-service/internal/domain"
)

// MemoryRepository keeps the ledger in process memory.
type MemoryRepository struct {
	mu sync.RWMutex

	clients         map[int64]domain.Client
	accounts        map[int64]domain.Account
	transactions    map[int64]domain.Transaction
	reconciliations map[int64]domain.BalanceReconciliation

	nextClientID         int64
	nextAccountID        int64
	nextTransactionID    int64
	nextReconciliationID int64

	now func() time.Time
}

// NewMemoryRepository creates an empty in-memory store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		clients:         make(map[int64]domain.Client),
		accounts:        make(map[int64]domain.Account),
		transactions:    make(map[int64]domain.Transaction),
		reconciliations: make(map[int64]domain.BalanceReconciliation),
		now:             time.Now,
	}
}

var (
	_ Repository     = (*MemoryRepository)(nil)
	_ AtomicRecorder = (*MemoryRepository)(nil)
)

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// CreateClient stores a client and assigns its ID.
func (r *MemoryRepository) CreateClient(ctx context.Context, client *domain.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextClientID++
	client.ID = r.nextClientID
	r.clients[client.ID] = *client
	return nil
}

// UpdateClient replaces a stored client.
func (r *MemoryRepository) UpdateClient(ctx context.Context, client *domain.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[client.ID]; !ok {
		return domain.ErrClientNotFound
	}
	r.clients[client.ID] = *client
	return nil
}

// DeleteClient removes a client that owns no account.
func (r *MemoryRepository) DeleteClient(ctx context.Context, clientID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[clientID]; !ok {
		return domain.ErrClientNotFound
	}
	for _, acc := range r.accounts {
		if acc.ClientID == clientID {
			return domain.ErrClientHasAccounts
		}
	}
	delete(r.clients, clientID)
	return nil
}

// FindClientByID retrieves one client.
func (r *MemoryRepository) FindClientByID(ctx context.Context, clientID int64) (*domain.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[clientID]
	if !ok {
		return nil, domain.ErrClientNotFound
	}
	return &c, nil
}

// FindClientsByName returns clients whose name contains name, ignoring case.
func (r *MemoryRepository) FindClientsByName(ctx context.Context, name string) ([]domain.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Client, 0)
	for _, c := range r.clients {
		if containsFold(c.Name, name) {
			out = append(out, c)
		}
	}
	sortClients(out)
	return out, nil
}

// FindAllClients returns every client ordered by id.
func (r *MemoryRepository) FindAllClients(ctx context.Context) ([]domain.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	sortClients(out)
	return out, nil
}

func sortClients(clients []domain.Client) {
	sort.Slice(clients, func(i, j int) bool { return clients[i].ID < clients[j].ID })
}

// CreateAccount stores an account and assigns its ID.
func (r *MemoryRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[account.ClientID]; !ok {
		return domain.ErrClientNotFound
	}
	for _, existing := range r.accounts {
		if existing.Number == account.Number {
			return domain.ErrDuplicateAccountNumber
		}
	}
	r.nextAccountID++
	account.ID = r.nextAccountID
	r.accounts[account.ID] = *account
	return nil
}

// FindAccountByID retrieves one account.
func (r *MemoryRepository) FindAccountByID(ctx context.Context, accountID int64) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acc, ok := r.accounts[accountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return &acc, nil
}

// FindAccountByNumber retrieves one account by number.
func (r *MemoryRepository) FindAccountByNumber(ctx context.Context, number string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, acc := range r.accounts {
		if acc.Number == number {
			found := acc
			return &found, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

// FindAccountsByClientID lists a client's accounts ordered by id.
func (r *MemoryRepository) FindAccountsByClientID(ctx context.Context, clientID int64) ([]domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.accountsWhere(func(a domain.Account) bool { return a.ClientID == clientID }), nil
}

// FindAllAccounts lists every account ordered by id.
func (r *MemoryRepository) FindAllAccounts(ctx context.Context) ([]domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.accountsWhere(func(domain.Account) bool { return true }), nil
}

func (r *MemoryRepository) accountsWhere(keep func(domain.Account) bool) []domain.Account {
	out := make([]domain.Account, 0)
	for _, acc := range r.accounts {
		if keep(acc) {
			out = append(out, acc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UpdateAccountBalance overwrites an account balance.
func (r *MemoryRepository) UpdateAccountBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[accountID]
	if !ok {
		return domain.ErrAccountNotFound
	}
	acc.Balance = balance
	r.accounts[accountID] = acc
	return nil
}

// UpdateAccountTerms persists the variant payload of an account.
func (r *MemoryRepository) UpdateAccountTerms(ctx context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[account.ID]
	if !ok {
		return domain.ErrAccountNotFound
	}
	acc.Terms = account.Terms
	r.accounts[account.ID] = acc
	return nil
}

// DeleteAccount removes an account without transactions.
func (r *MemoryRepository) DeleteAccount(ctx context.Context, accountID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[accountID]; !ok {
		return domain.ErrAccountNotFound
	}
	for _, tx := range r.transactions {
		if tx.AccountID == accountID {
			return domain.ErrAccountHasTransactions
		}
	}
	delete(r.accounts, accountID)
	return nil
}

// CreateTransaction stores a transaction and assigns its ID.
func (r *MemoryRepository) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertTransaction(tx)
}

func (r *MemoryRepository) insertTransaction(tx *domain.Transaction) error {
	if _, ok := r.accounts[tx.AccountID]; !ok {
		return domain.ErrAccountNotFound
	}
	r.nextTransactionID++
	tx.ID = r.nextTransactionID
	r.transactions[tx.ID] = *tx
	return nil
}

// CreateTransactionWithBalance stores the transaction and the new balance under one lock.
func (r *MemoryRepository) CreateTransactionWithBalance(ctx context.Context, tx *domain.Transaction, newBalance decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.insertTransaction(tx); err != nil {
		return err
	}
	acc := r.accounts[tx.AccountID]
	acc.Balance = newBalance
	r.accounts[tx.AccountID] = acc
	return nil
}

// FindTransactionByID retrieves one transaction.
func (r *MemoryRepository) FindTransactionByID(ctx context.Context, transactionID int64) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tx, ok := r.transactions[transactionID]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return &tx, nil
}

// FindTransactionsByAccountID lists an account's transactions, newest first.
func (r *MemoryRepository) FindTransactionsByAccountID(ctx context.Context, accountID int64) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.transactionsWhere(func(tx domain.Transaction) bool { return tx.AccountID == accountID }), nil
}

// FindTransactionsByClientID lists the transactions of a client's accounts, newest first.
func (r *MemoryRepository) FindTransactionsByClientID(ctx context.Context, clientID int64) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.transactionsWhere(func(tx domain.Transaction) bool {
		acc, ok := r.accounts[tx.AccountID]
		return ok && acc.ClientID == clientID
	}), nil
}

// FindTransactionsByKind lists transactions of one kind.
func (r *MemoryRepository) FindTransactionsByKind(ctx context.Context, kind domain.TransactionKind) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.transactionsWhere(func(tx domain.Transaction) bool { return tx.Kind == kind }), nil
}

// FindTransactionsByDateRange lists transactions with from <= timestamp <= to.
func (r *MemoryRepository) FindTransactionsByDateRange(ctx context.Context, from, to time.Time) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.transactionsWhere(func(tx domain.Transaction) bool {
		return !tx.Timestamp.Before(from) && !tx.Timestamp.After(to)
	}), nil
}

// FindTransactionsByAmountRange lists transactions with min <= amount <= max.
func (r *MemoryRepository) FindTransactionsByAmountRange(ctx context.Context, min, max decimal.Decimal) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.transactionsWhere(func(tx domain.Transaction) bool {
		return tx.Amount.GreaterThanOrEqual(min) && tx.Amount.LessThanOrEqual(max)
	}), nil
}

// FindTransactionsByLocation lists transactions whose location contains location, ignoring case.
func (r *MemoryRepository) FindTransactionsByLocation(ctx context.Context, location string) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.transactionsWhere(func(tx domain.Transaction) bool { return containsFold(tx.Location, location) }), nil
}

// FindAllTransactions lists every transaction, newest first.
func (r *MemoryRepository) FindAllTransactions(ctx context.Context) ([]domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.transactionsWhere(func(domain.Transaction) bool { return true }), nil
}

func (r *MemoryRepository) transactionsWhere(keep func(domain.Transaction) bool) []domain.Transaction {
	out := make([]domain.Transaction, 0)
	for _, tx := range r.transactions {
		if keep(tx) {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// CountTransactionsByAccountID counts an account's transactions.
func (r *MemoryRepository) CountTransactionsByAccountID(ctx context.Context, accountID int64) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var count int64
	for _, tx := range r.transactions {
		if tx.AccountID == accountID {
			count++
		}
	}
	return count, nil
}

// DeleteTransaction removes a transaction and any reconciliation that references it.
func (r *MemoryRepository) DeleteTransaction(ctx context.Context, transactionID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.transactions[transactionID]; !ok {
		return domain.ErrTransactionNotFound
	}
	delete(r.transactions, transactionID)
	for id, rec := range r.reconciliations {
		if rec.TransactionID == transactionID {
			delete(r.reconciliations, id)
		}
	}
	return nil
}

// CreateBalanceReconciliation queues a pending balance repair.
func (r *MemoryRepository) CreateBalanceReconciliation(ctx context.Context, rec *domain.BalanceReconciliation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextReconciliationID++
	rec.ID = r.nextReconciliationID
	rec.Status = domain.ReconciliationPending
	rec.CreatedAt = r.now()
	r.reconciliations[rec.ID] = *rec
	return nil
}

// FindPendingBalanceReconciliations returns the oldest pending repairs first.
func (r *MemoryRepository) FindPendingBalanceReconciliations(ctx context.Context, limit int) ([]domain.BalanceReconciliation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.BalanceReconciliation, 0)
	for _, rec := range r.reconciliations {
		if rec.Status == domain.ReconciliationPending {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FindPendingBalanceReconciliationsByAccountID returns the pending repairs of one
// account, oldest first.
func (r *MemoryRepository) FindPendingBalanceReconciliationsByAccountID(ctx context.Context, accountID int64) ([]domain.BalanceReconciliation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.BalanceReconciliation, 0)
	for _, rec := range r.reconciliations {
		if rec.Status == domain.ReconciliationPending && rec.AccountID == accountID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ResolveBalanceReconciliation writes the repaired balance and closes the repair under
// one lock.
func (r *MemoryRepository) ResolveBalanceReconciliation(ctx context.Context, reconciliationID, accountID int64, newBalance decimal.Decimal, resolvedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.reconciliations[reconciliationID]
	if !ok || rec.Status != domain.ReconciliationPending {
		return domain.ErrReconciliationNotFound
	}
	acc, ok := r.accounts[accountID]
	if !ok {
		return domain.ErrAccountNotFound
	}
	acc.Balance = newBalance
	r.accounts[accountID] = acc
	r.resolve(&rec, resolvedAt)
	return nil
}

func (r *MemoryRepository) resolve(rec *domain.BalanceReconciliation, resolvedAt time.Time) {
	rec.Status = domain.ReconciliationResolved
	rec.Attempts++
	rec.LastError = ""
	rec.ResolvedAt = &resolvedAt
	r.reconciliations[rec.ID] = *rec
}

// MarkBalanceReconciliationResolved closes a pending repair.
func (r *MemoryRepository) MarkBalanceReconciliationResolved(ctx context.Context, reconciliationID int64, resolvedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.reconciliations[reconciliationID]
	if !ok || rec.Status != domain.ReconciliationPending {
		return domain.ErrReconciliationNotFound
	}
	r.resolve(&rec, resolvedAt)
	return nil
}

// RecordBalanceReconciliationFailure bumps the attempt counter and keeps the last error.
func (r *MemoryRepository) RecordBalanceReconciliationFailure(ctx context.Context, reconciliationID int64, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.reconciliations[reconciliationID]
	if !ok {
		return domain.ErrReconciliationNotFound
	}
	rec.Attempts++
	rec.LastError = reason
	r.reconciliations[reconciliationID] = rec
	return nil
}

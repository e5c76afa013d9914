/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains the SQL for clients, accounts, transactions and the balance
 * reconciliation queue.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - github.com/shopspring/decimal: NUMERIC columns scan into decimal values.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/solubank/ledger-service/internal/domain"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var (
	_ Repository     = (*PostgresRepository)(nil)
	_ AtomicRecorder = (*PostgresRepository)(nil)
)

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// CreateClient inserts a client and assigns its ID.
func (r *PostgresRepository) CreateClient(ctx context.Context, client *domain.Client) error {
	query := `INSERT INTO clients (name, email) VALUES ($1, $2) RETURNING id`
	if err := r.db.QueryRow(ctx, query, client.Name, client.Email).Scan(&client.ID); err != nil {
		return domain.PersistenceError("create client", err)
	}
	return nil
}

// UpdateClient replaces the name and email of an existing client.
func (r *PostgresRepository) UpdateClient(ctx context.Context, client *domain.Client) error {
	query := `UPDATE clients SET name = $1, email = $2, updated_at = NOW() WHERE id = $3`
	result, err := r.db.Exec(ctx, query, client.Name, client.Email, client.ID)
	if err != nil {
		return domain.PersistenceError("update client", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrClientNotFound
	}
	return nil
}

// DeleteClient removes a client without accounts.
func (r *PostgresRepository) DeleteClient(ctx context.Context, clientID int64) error {
	result, err := r.db.Exec(ctx, `DELETE FROM clients WHERE id = $1`, clientID)
	if err != nil {
		if pgErrorCode(err) == pgForeignKeyViolation {
			return domain.ErrClientHasAccounts
		}
		return domain.PersistenceError("delete client", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrClientNotFound
	}
	return nil
}

// FindClientByID retrieves one client.
func (r *PostgresRepository) FindClientByID(ctx context.Context, clientID int64) (*domain.Client, error) {
	var client domain.Client
	query := `SELECT id, name, email FROM clients WHERE id = $1`
	err := r.db.QueryRow(ctx, query, clientID).Scan(&client.ID, &client.Name, &client.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrClientNotFound
		}
		return nil, domain.PersistenceError("find client", err)
	}
	return &client, nil
}

// FindClientsByName returns clients whose name contains name, ignoring case.
func (r *PostgresRepository) FindClientsByName(ctx context.Context, name string) ([]domain.Client, error) {
	query := `SELECT id, name, email FROM clients WHERE POSITION(LOWER($1) IN LOWER(name)) > 0 ORDER BY id`
	return r.queryClients(ctx, "find clients by name", query, name)
}

// FindAllClients returns every client ordered by id.
func (r *PostgresRepository) FindAllClients(ctx context.Context) ([]domain.Client, error) {
	return r.queryClients(ctx, "find clients", `SELECT id, name, email FROM clients ORDER BY id`)
}

func (r *PostgresRepository) queryClients(ctx context.Context, op, query string, args ...any) ([]domain.Client, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, domain.PersistenceError(op, err)
	}
	defer rows.Close()

	clients := make([]domain.Client, 0)
	for rows.Next() {
		var c domain.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Email); err != nil {
			return nil, domain.PersistenceError(op, err)
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.PersistenceError(op, err)
	}
	return clients, nil
}

const accountColumns = `id, number, account_type, balance, client_id, overdraft_limit, interest_rate`

// termsColumns splits the variant payload into the two nullable columns.
func termsColumns(account *domain.Account) (decimal.NullDecimal, decimal.NullDecimal) {
	var overdraft, rate decimal.NullDecimal
	if limit, ok := account.OverdraftLimit(); ok {
		overdraft = decimal.NewNullDecimal(limit)
	}
	if r, ok := account.InterestRate(); ok {
		rate = decimal.NewNullDecimal(r)
	}
	return overdraft, rate
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		account     domain.Account
		accountType string
		overdraft   decimal.NullDecimal
		rate        decimal.NullDecimal
	)
	if err := row.Scan(&account.ID, &account.Number, &accountType, &account.Balance, &account.ClientID, &overdraft, &rate); err != nil {
		return nil, err
	}
	switch domain.AccountType(accountType) {
	case domain.CurrentAccount:
		account.Terms = domain.CurrentTerms{OverdraftLimit: overdraft.Decimal}
	case domain.SavingsAccount:
		account.Terms = domain.SavingsTerms{InterestRate: rate.Decimal}
	default:
		return nil, fmt.Errorf("account %d has unknown type %q", account.ID, accountType)
	}
	return &account, nil
}

// CreateAccount inserts an account and assigns its ID. A clashing number yields
// domain.ErrDuplicateAccountNumber.
func (r *PostgresRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	overdraft, rate := termsColumns(account)
	query := `
		INSERT INTO accounts (number, account_type, balance, client_id, overdraft_limit, interest_rate)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	err := r.db.QueryRow(ctx, query,
		account.Number,
		string(account.Type()),
		account.Balance,
		account.ClientID,
		overdraft,
		rate,
	).Scan(&account.ID)
	if err != nil {
		switch pgErrorCode(err) {
		case pgUniqueViolation:
			return domain.ErrDuplicateAccountNumber
		case pgForeignKeyViolation:
			return domain.ErrClientNotFound
		}
		return domain.PersistenceError("create account", err)
	}
	return nil
}

// FindAccountByID retrieves one account.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID int64) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	account, err := scanAccount(r.db.QueryRow(ctx, query, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, domain.PersistenceError("find account", err)
	}
	return account, nil
}

// FindAccountByNumber retrieves one account by its external number.
func (r *PostgresRepository) FindAccountByNumber(ctx context.Context, number string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE number = $1`
	account, err := scanAccount(r.db.QueryRow(ctx, query, number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, domain.PersistenceError("find account by number", err)
	}
	return account, nil
}

// FindAccountsByClientID lists a client's accounts ordered by id.
func (r *PostgresRepository) FindAccountsByClientID(ctx context.Context, clientID int64) ([]domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE client_id = $1 ORDER BY id`
	return r.queryAccounts(ctx, "find accounts by client", query, clientID)
}

// FindAllAccounts lists every account ordered by id.
func (r *PostgresRepository) FindAllAccounts(ctx context.Context) ([]domain.Account, error) {
	return r.queryAccounts(ctx, "find accounts", `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
}

func (r *PostgresRepository) queryAccounts(ctx context.Context, op, query string, args ...any) ([]domain.Account, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, domain.PersistenceError(op, err)
	}
	defer rows.Close()

	accounts := make([]domain.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, domain.PersistenceError(op, err)
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.PersistenceError(op, err)
	}
	return accounts, nil
}

// UpdateAccountBalance overwrites the stored balance of an account.
func (r *PostgresRepository) UpdateAccountBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	query := `UPDATE accounts SET balance = $1, updated_at = NOW() WHERE id = $2`
	result, err := r.db.Exec(ctx, query, balance, accountID)
	if err != nil {
		return domain.PersistenceError("update account balance", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// UpdateAccountTerms persists the overdraft limit or interest rate of an account.
func (r *PostgresRepository) UpdateAccountTerms(ctx context.Context, account *domain.Account) error {
	overdraft, rate := termsColumns(account)
	query := `UPDATE accounts SET overdraft_limit = $1, interest_rate = $2, updated_at = NOW() WHERE id = $3`
	result, err := r.db.Exec(ctx, query, overdraft, rate, account.ID)
	if err != nil {
		return domain.PersistenceError("update account terms", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// DeleteAccount removes an account without transactions.
func (r *PostgresRepository) DeleteAccount(ctx context.Context, accountID int64) error {
	result, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, accountID)
	if err != nil {
		if pgErrorCode(err) == pgForeignKeyViolation {
			return domain.ErrAccountHasTransactions
		}
		return domain.PersistenceError("delete account", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

const transactionColumns = `id, occurred_at, amount, kind, location, account_id`

const insertTransaction = `
	INSERT INTO transactions (occurred_at, amount, kind, location, account_id)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id
`

// CreateTransaction inserts a transaction and assigns its ID.
func (r *PostgresRepository) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	err := r.db.QueryRow(ctx, insertTransaction,
		tx.Timestamp,
		tx.Amount,
		string(tx.Kind),
		tx.Location,
		tx.AccountID,
	).Scan(&tx.ID)
	if err != nil {
		if pgErrorCode(err) == pgForeignKeyViolation {
			return domain.ErrAccountNotFound
		}
		return domain.PersistenceError("create transaction", err)
	}
	return nil
}

// CreateTransactionWithBalance inserts the transaction and writes the new balance in
// one database transaction. The account row is locked first.
func (r *PostgresRepository) CreateTransactionWithBalance(ctx context.Context, tx *domain.Transaction, newBalance decimal.Decimal) error {
	dbTx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.PersistenceError("begin record transaction", err)
	}
	defer dbTx.Rollback(ctx)

	var locked int64
	err = dbTx.QueryRow(ctx, `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`, tx.AccountID).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrAccountNotFound
		}
		return domain.PersistenceError("lock account", err)
	}

	err = dbTx.QueryRow(ctx, insertTransaction,
		tx.Timestamp,
		tx.Amount,
		string(tx.Kind),
		tx.Location,
		tx.AccountID,
	).Scan(&tx.ID)
	if err != nil {
		return domain.PersistenceError("create transaction", err)
	}

	if _, err := dbTx.Exec(ctx, `UPDATE accounts SET balance = $1, updated_at = NOW() WHERE id = $2`, newBalance, tx.AccountID); err != nil {
		return domain.PersistenceError("update account balance", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		tx.ID = 0
		return domain.PersistenceError("commit record transaction", err)
	}
	return nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		tx   domain.Transaction
		kind string
	)
	if err := row.Scan(&tx.ID, &tx.Timestamp, &tx.Amount, &kind, &tx.Location, &tx.AccountID); err != nil {
		return nil, err
	}
	tx.Kind = domain.TransactionKind(kind)
	return &tx, nil
}

// FindTransactionByID retrieves one transaction.
func (r *PostgresRepository) FindTransactionByID(ctx context.Context, transactionID int64) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	tx, err := scanTransaction(r.db.QueryRow(ctx, query, transactionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, domain.PersistenceError("find transaction", err)
	}
	return tx, nil
}

const newestFirst = ` ORDER BY occurred_at DESC, id DESC`

// FindTransactionsByAccountID lists an account's transactions, newest first.
func (r *PostgresRepository) FindTransactionsByAccountID(ctx context.Context, accountID int64) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE account_id = $1` + newestFirst
	return r.queryTransactions(ctx, "find transactions by account", query, accountID)
}

// FindTransactionsByClientID lists the transactions of every account a client owns.
func (r *PostgresRepository) FindTransactionsByClientID(ctx context.Context, clientID int64) ([]domain.Transaction, error) {
	query := `
		SELECT t.id, t.occurred_at, t.amount, t.kind, t.location, t.account_id
		FROM transactions t
		JOIN accounts a ON a.id = t.account_id
		WHERE a.client_id = $1
		ORDER BY t.occurred_at DESC, t.id DESC
	`
	return r.queryTransactions(ctx, "find transactions by client", query, clientID)
}

// FindTransactionsByKind lists transactions of one kind.
func (r *PostgresRepository) FindTransactionsByKind(ctx context.Context, kind domain.TransactionKind) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE kind = $1` + newestFirst
	return r.queryTransactions(ctx, "find transactions by kind", query, string(kind))
}

// FindTransactionsByDateRange lists transactions with from <= timestamp <= to.
func (r *PostgresRepository) FindTransactionsByDateRange(ctx context.Context, from, to time.Time) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE occurred_at BETWEEN $1 AND $2` + newestFirst
	return r.queryTransactions(ctx, "find transactions by date range", query, from, to)
}

// FindTransactionsByAmountRange lists transactions with min <= amount <= max.
func (r *PostgresRepository) FindTransactionsByAmountRange(ctx context.Context, min, max decimal.Decimal) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE amount BETWEEN $1 AND $2` + newestFirst
	return r.queryTransactions(ctx, "find transactions by amount range", query, min, max)
}

// FindTransactionsByLocation lists transactions whose location contains location, ignoring case.
func (r *PostgresRepository) FindTransactionsByLocation(ctx context.Context, location string) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE POSITION(LOWER($1) IN LOWER(location)) > 0` + newestFirst
	return r.queryTransactions(ctx, "find transactions by location", query, location)
}

// FindAllTransactions lists every transaction, newest first.
func (r *PostgresRepository) FindAllTransactions(ctx context.Context) ([]domain.Transaction, error) {
	return r.queryTransactions(ctx, "find transactions", `SELECT `+transactionColumns+` FROM transactions`+newestFirst)
}

func (r *PostgresRepository) queryTransactions(ctx context.Context, op, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, domain.PersistenceError(op, err)
	}
	defer rows.Close()

	txs := make([]domain.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, domain.PersistenceError(op, err)
		}
		txs = append(txs, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.PersistenceError(op, err)
	}
	return txs, nil
}

// CountTransactionsByAccountID counts an account's transactions.
func (r *PostgresRepository) CountTransactionsByAccountID(ctx context.Context, accountID int64) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE account_id = $1`, accountID).Scan(&count); err != nil {
		return 0, domain.PersistenceError("count transactions", err)
	}
	return count, nil
}

// DeleteTransaction removes a transaction row. Balances are not adjusted.
func (r *PostgresRepository) DeleteTransaction(ctx context.Context, transactionID int64) error {
	result, err := r.db.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, transactionID)
	if err != nil {
		return domain.PersistenceError("delete transaction", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

// CreateBalanceReconciliation queues a pending balance repair.
func (r *PostgresRepository) CreateBalanceReconciliation(ctx context.Context, rec *domain.BalanceReconciliation) error {
	query := `
		INSERT INTO balance_reconciliations (transaction_id, account_id, kind, amount, status, last_error)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query,
		rec.TransactionID,
		rec.AccountID,
		string(rec.Kind),
		rec.Amount,
		string(domain.ReconciliationPending),
		rec.LastError,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return domain.PersistenceError("create balance reconciliation", err)
	}
	rec.Status = domain.ReconciliationPending
	return nil
}

const reconciliationColumns = `id, transaction_id, account_id, kind, amount, status, attempts, COALESCE(last_error, ''), created_at, resolved_at`

// FindPendingBalanceReconciliations returns the oldest pending repairs first.
func (r *PostgresRepository) FindPendingBalanceReconciliations(ctx context.Context, limit int) ([]domain.BalanceReconciliation, error) {
	query := `SELECT ` + reconciliationColumns + `
		FROM balance_reconciliations
		WHERE status = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2`
	return r.queryReconciliations(ctx, "find pending reconciliations", query, string(domain.ReconciliationPending), limit)
}

// FindPendingBalanceReconciliationsByAccountID returns the pending repairs of one
// account, oldest first.
func (r *PostgresRepository) FindPendingBalanceReconciliationsByAccountID(ctx context.Context, accountID int64) ([]domain.BalanceReconciliation, error) {
	query := `SELECT ` + reconciliationColumns + `
		FROM balance_reconciliations
		WHERE status = $1 AND account_id = $2
		ORDER BY created_at ASC, id ASC`
	return r.queryReconciliations(ctx, "find account reconciliations", query, string(domain.ReconciliationPending), accountID)
}

func (r *PostgresRepository) queryReconciliations(ctx context.Context, op, query string, args ...any) ([]domain.BalanceReconciliation, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, domain.PersistenceError(op, err)
	}
	defer rows.Close()

	recs := make([]domain.BalanceReconciliation, 0)
	for rows.Next() {
		var (
			rec    domain.BalanceReconciliation
			kind   string
			status string
		)
		if err := rows.Scan(&rec.ID, &rec.TransactionID, &rec.AccountID, &kind, &rec.Amount, &status, &rec.Attempts, &rec.LastError, &rec.CreatedAt, &rec.ResolvedAt); err != nil {
			return nil, domain.PersistenceError(op, err)
		}
		rec.Kind = domain.TransactionKind(kind)
		rec.Status = domain.ReconciliationStatus(status)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.PersistenceError(op, err)
	}
	return recs, nil
}

// ResolveBalanceReconciliation writes the repaired balance and closes the repair in one
// database transaction. The reconciliation row is claimed first so a concurrent pass
// cannot apply the same delta.
func (r *PostgresRepository) ResolveBalanceReconciliation(ctx context.Context, reconciliationID, accountID int64, newBalance decimal.Decimal, resolvedAt time.Time) error {
	dbTx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.PersistenceError("begin resolve reconciliation", err)
	}
	defer dbTx.Rollback(ctx)

	claim := `
		UPDATE balance_reconciliations
		SET status = $1, resolved_at = $2, attempts = attempts + 1, last_error = NULL
		WHERE id = $3 AND status = $4
	`
	result, err := dbTx.Exec(ctx, claim, string(domain.ReconciliationResolved), resolvedAt, reconciliationID, string(domain.ReconciliationPending))
	if err != nil {
		return domain.PersistenceError("resolve balance reconciliation", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrReconciliationNotFound
	}

	result, err = dbTx.Exec(ctx, `UPDATE accounts SET balance = $1, updated_at = NOW() WHERE id = $2`, newBalance, accountID)
	if err != nil {
		return domain.PersistenceError("update account balance", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}

	if err := dbTx.Commit(ctx); err != nil {
		return domain.PersistenceError("commit resolve reconciliation", err)
	}
	return nil
}

// MarkBalanceReconciliationResolved closes a pending repair.
func (r *PostgresRepository) MarkBalanceReconciliationResolved(ctx context.Context, reconciliationID int64, resolvedAt time.Time) error {
	query := `
		UPDATE balance_reconciliations
		SET status = $1, resolved_at = $2, attempts = attempts + 1, last_error = NULL
		WHERE id = $3 AND status = $4
	`
	result, err := r.db.Exec(ctx, query, string(domain.ReconciliationResolved), resolvedAt, reconciliationID, string(domain.ReconciliationPending))
	if err != nil {
		return domain.PersistenceError("resolve balance reconciliation", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrReconciliationNotFound
	}
	return nil
}

// RecordBalanceReconciliationFailure bumps the attempt counter and keeps the last error.
func (r *PostgresRepository) RecordBalanceReconciliationFailure(ctx context.Context, reconciliationID int64, reason string) error {
	query := `UPDATE balance_reconciliations SET attempts = attempts + 1, last_error = $1 WHERE id = $2`
	result, err := r.db.Exec(ctx, query, reason, reconciliationID)
	if err != nil {
		return domain.PersistenceError("record reconciliation failure", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrReconciliationNotFound
	}
	return nil
}

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/solubank/ledger-service/internal/domain"
)

func seedAccount(t *testing.T, repo *MemoryRepository, number string) (*domain.Client, *domain.Account) {
	t.Helper()
	ctx := context.Background()
	client := &domain.Client{Name: "Amina", Email: "amina@example.ma"}
	if err := repo.CreateClient(ctx, client); err != nil {
		t.Fatalf("create client: %v", err)
	}
	acc, err := domain.NewCurrentAccount(client.ID, number, decimal.NewFromInt(100), decimal.NewFromInt(50))
	if err != nil {
		t.Fatalf("new account: %v", err)
	}
	if err := repo.CreateAccount(ctx, acc); err != nil {
		t.Fatalf("create account: %v", err)
	}
	return client, acc
}

func TestMemoryRepository_ReferentialChecks(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	client, acc := seedAccount(t, repo, "ACC0000000001")

	if err := repo.DeleteClient(ctx, client.ID); !errors.Is(err, domain.ErrReferentialConflict) {
		t.Fatalf("expected referential conflict, got %v", err)
	}

	tx := &domain.Transaction{Timestamp: time.Now(), Amount: decimal.NewFromInt(5), Kind: domain.Deposit, AccountID: acc.ID}
	if err := repo.CreateTransaction(ctx, tx); err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if err := repo.DeleteAccount(ctx, acc.ID); !errors.Is(err, domain.ErrAccountHasTransactions) {
		t.Fatalf("expected ErrAccountHasTransactions, got %v", err)
	}

	if err := repo.DeleteTransaction(ctx, tx.ID); err != nil {
		t.Fatalf("delete transaction: %v", err)
	}
	if err := repo.DeleteAccount(ctx, acc.ID); err != nil {
		t.Fatalf("delete account: %v", err)
	}
	if err := repo.DeleteClient(ctx, client.ID); err != nil {
		t.Fatalf("delete client: %v", err)
	}
	if _, err := repo.FindClientByID(ctx, client.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryRepository_DuplicateAccountNumber(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	client, _ := seedAccount(t, repo, "ACCDUPLICATE1")

	dup, _ := domain.NewSavingsAccount(client.ID, "ACCDUPLICATE1", decimal.Zero, decimal.NewFromInt(2))
	if err := repo.CreateAccount(ctx, dup); !errors.Is(err, domain.ErrDuplicateAccountNumber) {
		t.Fatalf("expected duplicate number error, got %v", err)
	}

	orphan, _ := domain.NewSavingsAccount(999, "ACCORPHAN0001", decimal.Zero, decimal.NewFromInt(2))
	if err := repo.CreateAccount(ctx, orphan); !errors.Is(err, domain.ErrClientNotFound) {
		t.Fatalf("expected client not found, got %v", err)
	}
}

func TestMemoryRepository_TransactionQueries(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	_, acc := seedAccount(t, repo, "ACCQUERIES001")
	base := time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

	inputs := []domain.Transaction{
		{Timestamp: base, Amount: decimal.NewFromInt(10), Kind: domain.Deposit, Location: "Rabat, Maroc", AccountID: acc.ID},
		{Timestamp: base.Add(time.Hour), Amount: decimal.NewFromInt(20), Kind: domain.Withdrawal, Location: "Paris", AccountID: acc.ID},
		{Timestamp: base.Add(2 * time.Hour), Amount: decimal.NewFromInt(30), Kind: domain.Deposit, Location: "Fes, MAROC", AccountID: acc.ID},
	}
	for i := range inputs {
		if err := repo.CreateTransaction(ctx, &inputs[i]); err != nil {
			t.Fatalf("create transaction: %v", err)
		}
	}

	all, _ := repo.FindAllTransactions(ctx)
	if len(all) != 3 || all[0].ID != inputs[2].ID || all[2].ID != inputs[0].ID {
		t.Fatalf("expected newest first, got %+v", all)
	}

	deposits, _ := repo.FindTransactionsByKind(ctx, domain.Deposit)
	if len(deposits) != 2 {
		t.Fatalf("expected 2 deposits, got %d", len(deposits))
	}

	ranged, _ := repo.FindTransactionsByDateRange(ctx, base, base.Add(time.Hour))
	if len(ranged) != 2 {
		t.Fatalf("expected inclusive date range to return 2, got %d", len(ranged))
	}

	amounts, _ := repo.FindTransactionsByAmountRange(ctx, decimal.NewFromInt(20), decimal.NewFromInt(30))
	if len(amounts) != 2 {
		t.Fatalf("expected inclusive amount range to return 2, got %d", len(amounts))
	}

	maroc, _ := repo.FindTransactionsByLocation(ctx, "maroc")
	if len(maroc) != 2 {
		t.Fatalf("expected case-insensitive location match, got %d", len(maroc))
	}

	count, _ := repo.CountTransactionsByAccountID(ctx, acc.ID)
	if count != 3 {
		t.Fatalf("expected count 3, got %d", count)
	}
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	_, acc := seedAccount(t, repo, "ACCCOPIES0001")

	loaded, _ := repo.FindAccountByID(ctx, acc.ID)
	loaded.Balance = decimal.NewFromInt(-9999)

	again, _ := repo.FindAccountByID(ctx, acc.ID)
	if !again.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("stored balance was mutated through a returned pointer: %s", again.Balance)
	}
}

func TestMemoryRepository_ReconciliationQueue(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	_, acc := seedAccount(t, repo, "ACCRECON00001")

	tx := &domain.Transaction{Timestamp: time.Now(), Amount: decimal.NewFromInt(5), Kind: domain.Deposit, AccountID: acc.ID}
	_ = repo.CreateTransaction(ctx, tx)

	rec := &domain.BalanceReconciliation{TransactionID: tx.ID, AccountID: acc.ID, Kind: tx.Kind, Amount: tx.Amount}
	if err := repo.CreateBalanceReconciliation(ctx, rec); err != nil {
		t.Fatalf("create reconciliation: %v", err)
	}
	if err := repo.RecordBalanceReconciliationFailure(ctx, rec.ID, "db down"); err != nil {
		t.Fatalf("record failure: %v", err)
	}

	pending, _ := repo.FindPendingBalanceReconciliations(ctx, 10)
	if len(pending) != 1 || pending[0].Attempts != 1 || pending[0].LastError != "db down" {
		t.Fatalf("unexpected pending state %+v", pending)
	}

	if err := repo.MarkBalanceReconciliationResolved(ctx, rec.ID, time.Now()); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := repo.MarkBalanceReconciliationResolved(ctx, rec.ID, time.Now()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("resolving twice should fail, got %v", err)
	}
	pending, _ = repo.FindPendingBalanceReconciliations(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("expected empty queue, got %d", len(pending))
	}
}

func TestMigrationURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "postgres://u:p@db:5432/ledger?sslmode=disable", want: "pgx5://u:p@db:5432/ledger?sslmode=disable"},
		{in: "postgresql://u:p@db/ledger", want: "pgx5://u:p@db/ledger"},
		{in: "pgx5://u:p@db/ledger", want: "pgx5://u:p@db/ledger"},
		{in: "u:p@db/ledger", want: "pgx5://u:p@db/ledger"},
	}
	for _, tc := range tests {
		if got := MigrationURL(tc.in); got != tc.want {
			t.Fatalf("MigrationURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

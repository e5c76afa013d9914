package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/solubank/ledger-service/internal/domain"
	"github.com/solubank/ledger-service/internal/report"
)

// ledgerSnapshot is everything the reports read in one pass.
type ledgerSnapshot struct {
	clients      []domain.Client
	accounts     []domain.Account
	transactions []domain.Transaction
}

func (s *Service) loadSnapshot(ctx context.Context, withTransactions bool) (*ledgerSnapshot, error) {
	clients, err := s.repo.FindAllClients(ctx)
	if err != nil {
		return nil, domain.PersistenceError("find clients", err)
	}
	accounts, err := s.repo.FindAllAccounts(ctx)
	if err != nil {
		return nil, domain.PersistenceError("find accounts", err)
	}
	snap := &ledgerSnapshot{clients: clients, accounts: accounts}
	if withTransactions {
		if snap.transactions, err = s.allTransactions(ctx); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func (snap *ledgerSnapshot) clientsByID() map[int64]domain.Client {
	out := make(map[int64]domain.Client, len(snap.clients))
	for _, c := range snap.clients {
		out[c.ID] = c
	}
	return out
}

func (snap *ledgerSnapshot) transactionsByAccount() map[int64][]domain.Transaction {
	out := make(map[int64][]domain.Transaction)
	for _, tx := range snap.transactions {
		out[tx.AccountID] = append(out[tx.AccountID], tx)
	}
	return out
}

// TopClients ranks clients by total balance. limit <= 0 uses the configured default.
func (s *Service) TopClients(ctx context.Context, limit int) ([]domain.ClientBalance, error) {
	if limit <= 0 {
		limit = s.opts.TopClientsLimit
	}
	snap, err := s.loadSnapshot(ctx, false)
	if err != nil {
		return nil, err
	}
	return report.TopClientsByBalance(snap.clients, snap.accounts, limit), nil
}

// MonthlyReport aggregates the transactions of one UTC calendar month.
func (s *Service) MonthlyReport(ctx context.Context, year int, month time.Month) (*domain.MonthlyReport, error) {
	if month < time.January || month > time.December {
		return nil, domain.NewValidationError("month", "must be between 1 and 12")
	}
	from, to := report.MonthWindow(year, month, time.UTC)
	txs, err := s.repo.FindTransactionsByDateRange(ctx, from, to)
	if err != nil {
		return nil, domain.PersistenceError("find transactions by date range", err)
	}
	rep := report.Monthly(txs, from, to)
	return &rep, nil
}

// InactiveAccounts lists accounts without activity in the last days days. days <= 0
// uses the configured default.
func (s *Service) InactiveAccounts(ctx context.Context, days int) ([]domain.InactiveAccount, error) {
	if days <= 0 {
		days = s.opts.InactivityDays
	}
	snap, err := s.loadSnapshot(ctx, true)
	if err != nil {
		return nil, err
	}
	return report.InactiveAccounts(snap.accounts, snap.transactionsByAccount(), snap.clientsByID(), s.now(), days), nil
}

// LowBalanceAlerts lists accounts below threshold. A nil threshold uses the configured one.
func (s *Service) LowBalanceAlerts(ctx context.Context, threshold *decimal.Decimal) ([]domain.LowBalanceAlert, error) {
	limit := s.opts.LowBalanceThreshold
	if threshold != nil {
		limit = *threshold
	}
	snap, err := s.loadSnapshot(ctx, false)
	if err != nil {
		return nil, err
	}
	return report.LowBalanceAlerts(snap.accounts, snap.clientsByID(), limit), nil
}

// Statistics returns the global ledger snapshot.
func (s *Service) Statistics(ctx context.Context) (*domain.Statistics, error) {
	snap, err := s.loadSnapshot(ctx, true)
	if err != nil {
		return nil, err
	}
	stats := report.GlobalStatistics(len(snap.clients), snap.accounts, snap.transactions)
	return &stats, nil
}

// TransactionsByKind groups every transaction by kind; every kind is present.
func (s *Service) TransactionsByKind(ctx context.Context) (map[domain.TransactionKind][]domain.Transaction, error) {
	txs, err := s.allTransactions(ctx)
	if err != nil {
		return nil, err
	}
	return report.GroupByKind(txs), nil
}

// TransactionsByMonth groups every transaction by UTC "YYYY-MM".
func (s *Service) TransactionsByMonth(ctx context.Context) (map[string][]domain.Transaction, error) {
	txs, err := s.allTransactions(ctx)
	if err != nil {
		return nil, err
	}
	return report.GroupByMonth(txs, time.UTC), nil
}

// TopAccounts ranks accounts by balance. limit <= 0 uses the configured default.
func (s *Service) TopAccounts(ctx context.Context, limit int) ([]domain.Account, error) {
	if limit <= 0 {
		limit = s.opts.TopClientsLimit
	}
	accounts, err := s.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	return report.TopAccountsByBalance(accounts, limit), nil
}

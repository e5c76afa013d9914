package app

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/solubank/ledger-service/internal/domain"
	"github.com/solubank/ledger-service/internal/report"
)

// ClientBalanceSummary is the total position of one client.
type ClientBalanceSummary struct {
	Client       domain.Client `json:"client"`
	TotalBalance string        `json:"total_balance"`
	AccountCount int           `json:"account_count"`
}

// CreateClient validates and stores a new client.
func (s *Service) CreateClient(ctx context.Context, name, email string) (*domain.Client, error) {
	client, err := domain.NewClient(0, name, email)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateClient(ctx, &client); err != nil {
		return nil, domain.PersistenceError("create client", err)
	}
	s.logger.Info("client created", zap.Int64("client_id", client.ID))
	return &client, nil
}

// UpdateClient replaces a client's name and email.
func (s *Service) UpdateClient(ctx context.Context, clientID int64, name, email string) (*domain.Client, error) {
	client, err := domain.NewClient(clientID, name, email)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateClient(ctx, &client); err != nil {
		return nil, domain.PersistenceError("update client", err)
	}
	return &client, nil
}

// DeleteClient removes a client that owns no account.
func (s *Service) DeleteClient(ctx context.Context, clientID int64) error {
	if _, err := s.repo.FindClientByID(ctx, clientID); err != nil {
		return domain.PersistenceError("find client", err)
	}
	accounts, err := s.repo.FindAccountsByClientID(ctx, clientID)
	if err != nil {
		return domain.PersistenceError("find client accounts", err)
	}
	if len(accounts) > 0 {
		return domain.ErrClientHasAccounts
	}
	if err := s.repo.DeleteClient(ctx, clientID); err != nil {
		return domain.PersistenceError("delete client", err)
	}
	s.logger.Info("client deleted", zap.Int64("client_id", clientID))
	return nil
}

// GetClient loads one client.
func (s *Service) GetClient(ctx context.Context, clientID int64) (*domain.Client, error) {
	client, err := s.repo.FindClientByID(ctx, clientID)
	if err != nil {
		return nil, domain.PersistenceError("find client", err)
	}
	return client, nil
}

// ListClients returns every client, or those whose name contains nameFilter when set.
func (s *Service) ListClients(ctx context.Context, nameFilter string) ([]domain.Client, error) {
	var (
		clients []domain.Client
		err     error
	)
	if filter := strings.TrimSpace(nameFilter); filter != "" {
		clients, err = s.repo.FindClientsByName(ctx, filter)
	} else {
		clients, err = s.repo.FindAllClients(ctx)
	}
	if err != nil {
		return nil, domain.PersistenceError("find clients", err)
	}
	return clients, nil
}

// ClientAccounts lists the accounts of an existing client.
func (s *Service) ClientAccounts(ctx context.Context, clientID int64) ([]domain.Account, error) {
	if _, err := s.GetClient(ctx, clientID); err != nil {
		return nil, err
	}
	accounts, err := s.repo.FindAccountsByClientID(ctx, clientID)
	if err != nil {
		return nil, domain.PersistenceError("find client accounts", err)
	}
	return accounts, nil
}

// ClientBalance sums the balances of a client's accounts.
func (s *Service) ClientBalance(ctx context.Context, clientID int64) (*ClientBalanceSummary, error) {
	client, err := s.GetClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	accounts, err := s.repo.FindAccountsByClientID(ctx, clientID)
	if err != nil {
		return nil, domain.PersistenceError("find client accounts", err)
	}
	return &ClientBalanceSummary{
		Client:       *client,
		TotalBalance: report.ClientTotalBalance(accounts).StringFixed(2),
		AccountCount: len(accounts),
	}, nil
}

// ClientTransactions lists the transactions of every account of a client, newest first.
func (s *Service) ClientTransactions(ctx context.Context, clientID int64) ([]domain.Transaction, error) {
	if _, err := s.GetClient(ctx, clientID); err != nil {
		return nil, err
	}
	txs, err := s.repo.FindTransactionsByClientID(ctx, clientID)
	if err != nil {
		return nil, domain.PersistenceError("find client transactions", err)
	}
	return txs, nil
}

// ClientAverageTransaction is the mean transaction amount of a client, 2 dp.
func (s *Service) ClientAverageTransaction(ctx context.Context, clientID int64) (string, error) {
	txs, err := s.ClientTransactions(ctx, clientID)
	if err != nil {
		return "", err
	}
	return report.MeanAmount(txs).StringFixed(2), nil
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

package app

import (
	"context"

	"github.com/solubank/ledger-service/internal/domain"
)

func (s *Service) allTransactions(ctx context.Context) ([]domain.Transaction, error) {
	txs, err := s.repo.FindAllTransactions(ctx)
	if err != nil {
		return nil, domain.PersistenceError("find transactions", err)
	}
	return txs, nil
}

// LargeAmountTransactions lists transactions above the threshold, largest first.
func (s *Service) LargeAmountTransactions(ctx context.Context) ([]domain.Transaction, error) {
	txs, err := s.allTransactions(ctx)
	if err != nil {
		return nil, err
	}
	return s.opts.Rules.LargeAmountByAmount(txs), nil
}

// UnusualLocationTransactions lists transactions outside the home region.
func (s *Service) UnusualLocationTransactions(ctx context.Context) ([]domain.Transaction, error) {
	txs, err := s.allTransactions(ctx)
	if err != nil {
		return nil, err
	}
	return s.opts.Rules.UnusualLocation(txs), nil
}

// SuspiciousTransactions lists every transaction flagged by at least one snapshot rule.
func (s *Service) SuspiciousTransactions(ctx context.Context) ([]domain.Transaction, error) {
	txs, err := s.allTransactions(ctx)
	if err != nil {
		return nil, err
	}
	return s.opts.Rules.Suspicious(txs), nil
}

// SuspiciousReport returns each rule's view together with their union.
func (s *Service) SuspiciousReport(ctx context.Context) (*domain.SuspiciousReport, error) {
	txs, err := s.allTransactions(ctx)
	if err != nil {
		return nil, err
	}
	result := s.opts.Rules.Classify(txs)
	return &domain.SuspiciousReport{
		LargeAmount:     result.LargeAmount,
		UnusualLocation: result.UnusualLocation,
		All:             result.Suspicious,
	}, nil
}

// BurstForAccount lists the account's transactions inside the burst window ending now.
func (s *Service) BurstForAccount(ctx context.Context, accountID int64) ([]domain.Transaction, error) {
	txs, err := s.AccountTransactions(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.opts.Rules.Burst(txs, accountID, s.now()), nil
}

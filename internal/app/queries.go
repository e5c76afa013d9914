package app

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/solubank/ledger-service/internal/domain"
)

// TransactionFilter selects transactions. At most one criterion is applied, in the
// order kind, amount range, date range, location; an empty filter lists everything.
type TransactionFilter struct {
	Kind      *domain.TransactionKind
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	From      *time.Time
	To        *time.Time
	Location  string
}

// ListTransactions returns transactions matching filter, newest first.
func (s *Service) ListTransactions(ctx context.Context, filter TransactionFilter) ([]domain.Transaction, error) {
	var (
		txs []domain.Transaction
		err error
	)
	switch {
	case filter.Kind != nil:
		if !filter.Kind.Valid() {
			return nil, domain.NewValidationError("kind", "must be one of DEPOSIT, WITHDRAWAL, TRANSFER")
		}
		txs, err = s.repo.FindTransactionsByKind(ctx, *filter.Kind)
	case filter.MinAmount != nil || filter.MaxAmount != nil:
		if filter.MinAmount == nil || filter.MaxAmount == nil {
			return nil, domain.NewValidationError("amount", "min and max are both required")
		}
		if filter.MinAmount.GreaterThan(*filter.MaxAmount) {
			return nil, domain.NewValidationError("amount", "min must not exceed max")
		}
		txs, err = s.repo.FindTransactionsByAmountRange(ctx, *filter.MinAmount, *filter.MaxAmount)
	case filter.From != nil || filter.To != nil:
		if filter.From == nil || filter.To == nil {
			return nil, domain.NewValidationError("date", "from and to are both required")
		}
		if filter.From.After(*filter.To) {
			return nil, domain.NewValidationError("date", "from must not be after to")
		}
		txs, err = s.repo.FindTransactionsByDateRange(ctx, *filter.From, *filter.To)
	case strings.TrimSpace(filter.Location) != "":
		txs, err = s.repo.FindTransactionsByLocation(ctx, strings.TrimSpace(filter.Location))
	default:
		txs, err = s.repo.FindAllTransactions(ctx)
	}
	if err != nil {
		return nil, domain.PersistenceError("find transactions", err)
	}
	return txs, nil
}

// GetTransaction loads one transaction.
func (s *Service) GetTransaction(ctx context.Context, transactionID int64) (*domain.Transaction, error) {
	tx, err := s.repo.FindTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, domain.PersistenceError("find transaction", err)
	}
	return tx, nil
}

// DeleteTransaction removes a transaction record. It is an administrative correction:
// the account balance is left as it is.
func (s *Service) DeleteTransaction(ctx context.Context, transactionID int64) error {
	tx, err := s.GetTransaction(ctx, transactionID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteTransaction(ctx, transactionID); err != nil {
		return domain.PersistenceError("delete transaction", err)
	}
	s.logger.Warn("transaction deleted; balance left unchanged",
		zap.Int64("transaction_id", tx.ID),
		zap.Int64("account_id", tx.AccountID),
		zap.String("amount", tx.Amount.String()),
	)
	return nil
}

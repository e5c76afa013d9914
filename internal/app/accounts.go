package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/solubank/ledger-service/internal/domain"
	"github.com/solubank/ledger-service/internal/report"
)

// OpenCurrentAccount opens a Current account for an existing client.
func (s *Service) OpenCurrentAccount(ctx context.Context, clientID int64, balance, overdraftLimit decimal.Decimal) (*domain.Account, error) {
	return s.openAccount(ctx, clientID, func(number string) (*domain.Account, error) {
		return domain.NewCurrentAccount(clientID, number, balance, overdraftLimit)
	})
}

// OpenSavingsAccount opens a Savings account for an existing client.
func (s *Service) OpenSavingsAccount(ctx context.Context, clientID int64, balance, interestRate decimal.Decimal) (*domain.Account, error) {
	return s.openAccount(ctx, clientID, func(number string) (*domain.Account, error) {
		return domain.NewSavingsAccount(clientID, number, balance, interestRate)
	})
}

func (s *Service) openAccount(ctx context.Context, clientID int64, build func(number string) (*domain.Account, error)) (*domain.Account, error) {
	// Validate the shape before touching the store.
	if _, err := build("pending"); err != nil {
		return nil, err
	}
	if _, err := s.GetClient(ctx, clientID); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxAccountNumberTries; attempt++ {
		number := s.numbers.Next()
		if _, err := s.repo.FindAccountByNumber(ctx, number); err == nil {
			continue
		} else if !isNotFound(err) {
			return nil, domain.PersistenceError("check account number", err)
		}

		account, err := build(number)
		if err != nil {
			return nil, err
		}
		err = s.repo.CreateAccount(ctx, account)
		if errors.Is(err, domain.ErrDuplicateAccountNumber) {
			continue
		}
		if err != nil {
			return nil, domain.PersistenceError("create account", err)
		}
		s.logger.Info("account opened",
			zap.Int64("account_id", account.ID),
			zap.String("number", account.Number),
			zap.String("type", string(account.Type())),
			zap.Int64("client_id", clientID),
		)
		return account, nil
	}
	return nil, fmt.Errorf("allocate account number: %w: %w", domain.ErrPersistenceFailure, domain.ErrAccountNumberUnavailable)
}

// GetAccount loads one account.
func (s *Service) GetAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	account, err := s.repo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, domain.PersistenceError("find account", err)
	}
	return account, nil
}

// GetAccountByNumber loads one account by its external number.
func (s *Service) GetAccountByNumber(ctx context.Context, number string) (*domain.Account, error) {
	account, err := s.repo.FindAccountByNumber(ctx, number)
	if err != nil {
		return nil, domain.PersistenceError("find account by number", err)
	}
	return account, nil
}

// ListAccounts returns every account.
func (s *Service) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	accounts, err := s.repo.FindAllAccounts(ctx)
	if err != nil {
		return nil, domain.PersistenceError("find accounts", err)
	}
	return accounts, nil
}

// SetOverdraftLimit changes the overdraft of a Current account and persists it.
func (s *Service) SetOverdraftLimit(ctx context.Context, accountID int64, limit decimal.Decimal) (*domain.Account, error) {
	return s.updateTerms(ctx, accountID, func(account *domain.Account) error {
		return account.SetOverdraftLimit(limit)
	})
}

// SetInterestRate changes the rate of a Savings account and persists it.
func (s *Service) SetInterestRate(ctx context.Context, accountID int64, rate decimal.Decimal) (*domain.Account, error) {
	return s.updateTerms(ctx, accountID, func(account *domain.Account) error {
		return account.SetInterestRate(rate)
	})
}

func (s *Service) updateTerms(ctx context.Context, accountID int64, mutate func(*domain.Account) error) (*domain.Account, error) {
	unlock, err := s.locker.Lock(ctx, accountID)
	if err != nil {
		return nil, domain.PersistenceError("lock account", err)
	}
	defer unlock()

	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if err := mutate(account); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateAccountTerms(ctx, account); err != nil {
		return nil, domain.PersistenceError("update account terms", err)
	}
	return account, nil
}

// DeleteAccount removes an account without transactions.
func (s *Service) DeleteAccount(ctx context.Context, accountID int64) error {
	unlock, err := s.locker.Lock(ctx, accountID)
	if err != nil {
		return domain.PersistenceError("lock account", err)
	}
	defer unlock()

	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return err
	}
	count, err := s.repo.CountTransactionsByAccountID(ctx, accountID)
	if err != nil {
		return domain.PersistenceError("count transactions", err)
	}
	if count > 0 {
		return domain.ErrAccountHasTransactions
	}
	if err := s.repo.DeleteAccount(ctx, accountID); err != nil {
		return domain.PersistenceError("delete account", err)
	}
	s.logger.Info("account deleted", zap.Int64("account_id", accountID))
	return nil
}

// CanWithdraw answers the eligibility question for a hypothetical debit without writing.
func (s *Service) CanWithdraw(ctx context.Context, accountID int64, amount decimal.Decimal) (bool, error) {
	if !amount.IsPositive() {
		return false, domain.NewValidationError("amount", "must be > 0")
	}
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return false, err
	}
	if err := s.checkNoPendingReconciliation(ctx, accountID); err != nil {
		if errors.Is(err, domain.ErrBalanceReconciling) {
			return false, nil
		}
		return false, err
	}
	return account.CanWithdraw(amount), nil
}

// AccountTransactions lists an account's transactions, newest first.
func (s *Service) AccountTransactions(ctx context.Context, accountID int64) ([]domain.Transaction, error) {
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	txs, err := s.repo.FindTransactionsByAccountID(ctx, accountID)
	if err != nil {
		return nil, domain.PersistenceError("find account transactions", err)
	}
	return txs, nil
}

// AccountTransactionTotal sums the amounts of an account's transactions.
func (s *Service) AccountTransactionTotal(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	txs, err := s.AccountTransactions(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return report.TotalAmount(txs), nil
}

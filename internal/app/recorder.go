/**
 * @description
 * Transaction recording: the only path that changes an account balance.
 *
 * Received -> Validated -> Applied, or Rejected with no write. The account is held
 * under the per-account lock from the balance read to the balance write so that
 * concurrent debits cannot both pass the eligibility check.
 *
 * @notes
 * - Without atomic recording the transaction row and the balance are two writes. If
 *   the second fails the row stays, a BalanceReconciliation is queued and the caller
 *   gets a *domain.ReconciliationError.
 * - With atomic recording (opt-in) both writes share one database transaction and a
 *   failure leaves nothing behind.
 * - Debits are refused with domain.ErrBalanceReconciling while the account has a queued
 *   reconciliation. Credits are still accepted.
 */

package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/solubank/ledger-service/internal/domain"
	"github.com/solubank/ledger-service/internal/store"
)

// RecordTransactionRequest is the input of RecordTransaction.
type RecordTransactionRequest struct {
	AccountID int64
	Amount    decimal.Decimal
	Kind      domain.TransactionKind
	Location  string
}

// RecordTransaction validates, checks eligibility and persists a transaction together
// with the resulting balance.
func (s *Service) RecordTransaction(ctx context.Context, req RecordTransactionRequest) (*domain.Transaction, error) {
	if !req.Amount.IsPositive() {
		transactionsRejected.WithLabelValues("validation").Inc()
		return nil, domain.NewValidationError("amount", "must be > 0")
	}
	if !req.Kind.Valid() {
		transactionsRejected.WithLabelValues("validation").Inc()
		return nil, domain.NewValidationError("kind", "must be one of DEPOSIT, WITHDRAWAL, TRANSFER")
	}
	if req.AccountID <= 0 {
		transactionsRejected.WithLabelValues("validation").Inc()
		return nil, domain.NewValidationError("account_id", "must be a positive id")
	}

	unlock, err := s.locker.Lock(ctx, req.AccountID)
	if err != nil {
		return nil, domain.PersistenceError("lock account", err)
	}
	defer unlock()

	account, err := s.repo.FindAccountByID(ctx, req.AccountID)
	if err != nil {
		if isNotFound(err) {
			transactionsRejected.WithLabelValues("account_not_found").Inc()
			return nil, domain.ErrAccountNotFound
		}
		return nil, domain.PersistenceError("find account", err)
	}

	if req.Kind.IsDebit() {
		if err := s.checkNoPendingReconciliation(ctx, account.ID); err != nil {
			if errors.Is(err, domain.ErrBalanceReconciling) {
				transactionsRejected.WithLabelValues("reconciliation_pending").Inc()
			}
			return nil, err
		}
	}

	if req.Kind.IsDebit() && !account.CanWithdraw(req.Amount) {
		transactionsRejected.WithLabelValues("insufficient_funds").Inc()
		s.logger.Info("transaction rejected",
			zap.Int64("account_id", account.ID),
			zap.String("kind", string(req.Kind)),
			zap.String("amount", req.Amount.String()),
			zap.String("balance", account.Balance.String()),
			zap.String("reason", "insufficient_funds"),
		)
		return nil, domain.ErrInsufficientFunds
	}

	tx, err := domain.NewTransaction(0, s.now(), req.Amount, req.Kind, req.Location, account.ID)
	if err != nil {
		transactionsRejected.WithLabelValues("validation").Inc()
		return nil, err
	}
	newBalance := account.ApplyDelta(tx.Kind, tx.Amount)

	if atomic, ok := s.repo.(store.AtomicRecorder); ok && s.opts.AtomicRecording {
		if err := atomic.CreateTransactionWithBalance(ctx, &tx, newBalance); err != nil {
			transactionsRejected.WithLabelValues("persistence").Inc()
			return nil, domain.PersistenceError("record transaction", err)
		}
	} else {
		if err := s.repo.CreateTransaction(ctx, &tx); err != nil {
			transactionsRejected.WithLabelValues("persistence").Inc()
			return nil, domain.PersistenceError("create transaction", err)
		}
		if err := s.repo.UpdateAccountBalance(ctx, account.ID, newBalance); err != nil {
			return nil, s.queueReconciliation(ctx, tx, err)
		}
	}

	transactionsRecorded.WithLabelValues(string(tx.Kind)).Inc()
	s.logger.Info("transaction recorded",
		zap.Int64("transaction_id", tx.ID),
		zap.Int64("account_id", tx.AccountID),
		zap.String("kind", string(tx.Kind)),
		zap.String("amount", tx.Amount.String()),
		zap.String("new_balance", newBalance.String()),
	)
	s.publish(ctx, domain.EventTransactionRecorded, domain.TransactionRecordedEvent{
		EventID:       newEventID(),
		TransactionID: tx.ID,
		AccountID:     tx.AccountID,
		Kind:          tx.Kind,
		Amount:        tx.Amount,
		Location:      tx.Location,
		NewBalance:    newBalance,
		OccurredAt:    tx.Timestamp,
	})
	return &tx, nil
}

// checkNoPendingReconciliation refuses debits while a balance delta of the account is
// still queued: the stored balance is stale until the reconciler has applied it.
func (s *Service) checkNoPendingReconciliation(ctx context.Context, accountID int64) error {
	pending, err := s.repo.FindPendingBalanceReconciliationsByAccountID(ctx, accountID)
	if err != nil {
		return domain.PersistenceError("find account reconciliations", err)
	}
	if len(pending) > 0 {
		s.logger.Info("debit refused while reconciliation pending",
			zap.Int64("account_id", accountID),
			zap.Int("pending", len(pending)),
		)
		return fmt.Errorf("account %d: %w", accountID, domain.ErrBalanceReconciling)
	}
	return nil
}

// queueReconciliation records the missing balance delta of a saved transaction and
// returns the error the caller must see.
func (s *Service) queueReconciliation(ctx context.Context, tx domain.Transaction, cause error) error {
	cause = domain.PersistenceError("update account balance", cause)
	rec := domain.BalanceReconciliation{
		TransactionID: tx.ID,
		AccountID:     tx.AccountID,
		Kind:          tx.Kind,
		Amount:        tx.Amount,
		LastError:     cause.Error(),
	}
	if err := s.repo.CreateBalanceReconciliation(ctx, &rec); err != nil {
		// The transaction row exists but nothing tracks the missing delta.
		s.logger.Error("balance reconciliation could not be queued",
			zap.Int64("transaction_id", tx.ID),
			zap.Int64("account_id", tx.AccountID),
			zap.NamedError("balance_error", cause),
			zap.Error(err),
		)
		balanceReconciliations.WithLabelValues("unqueued").Inc()
	} else {
		balanceReconciliations.WithLabelValues("queued").Inc()
		s.logger.Warn("balance update failed; reconciliation queued",
			zap.Int64("transaction_id", tx.ID),
			zap.Int64("account_id", tx.AccountID),
			zap.Int64("reconciliation_id", rec.ID),
			zap.Error(cause),
		)
		s.publish(ctx, domain.EventReconciliationRequired, domain.ReconciliationEvent{
			EventID:          newEventID(),
			ReconciliationID: rec.ID,
			TransactionID:    tx.ID,
			AccountID:        tx.AccountID,
			Kind:             tx.Kind,
			Amount:           tx.Amount,
			Reason:           cause.Error(),
			OccurredAt:       s.now(),
		})
	}
	return &domain.ReconciliationError{
		TransactionID:    tx.ID,
		AccountID:        tx.AccountID,
		ReconciliationID: rec.ID,
		Cause:            cause,
	}
}

// IsReconciliationPending reports whether err means the transaction was saved but its
// balance delta is still queued.
func IsReconciliationPending(err error) bool {
	var rerr *domain.ReconciliationError
	return errors.As(err, &rerr)
}

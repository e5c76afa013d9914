package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/solubank/ledger-service/internal/domain"
	"github.com/solubank/ledger-service/internal/store"
)

// ReconcileResult summarises one reconciliation pass.
type ReconcileResult struct {
	Resolved int `json:"resolved"`
	Failed   int `json:"failed"`
}

// ReconcileBalances re-applies the balance delta of pending reconciliations, oldest
// first, up to the configured batch size. A reconciliation whose account can no longer
// be updated, or whose debit would break the account floor, stays pending with its
// attempt count bumped.
func (s *Service) ReconcileBalances(ctx context.Context) (ReconcileResult, error) {
	var result ReconcileResult
	pending, err := s.repo.FindPendingBalanceReconciliations(ctx, s.opts.ReconcileBatchSize)
	if err != nil {
		return result, domain.PersistenceError("find pending reconciliations", err)
	}

	for _, rec := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := s.reconcileOne(ctx, rec); err != nil {
			result.Failed++
			balanceReconciliations.WithLabelValues("failed").Inc()
			s.logger.Warn("balance reconciliation failed",
				zap.Int64("reconciliation_id", rec.ID),
				zap.Int64("transaction_id", rec.TransactionID),
				zap.Int64("account_id", rec.AccountID),
				zap.Error(err),
			)
			if ferr := s.repo.RecordBalanceReconciliationFailure(ctx, rec.ID, err.Error()); ferr != nil {
				s.logger.Error("failed to record reconciliation failure", zap.Int64("reconciliation_id", rec.ID), zap.Error(ferr))
			}
			continue
		}
		result.Resolved++
		balanceReconciliations.WithLabelValues("resolved").Inc()
	}
	return result, nil
}

func (s *Service) reconcileOne(ctx context.Context, rec domain.BalanceReconciliation) error {
	unlock, err := s.locker.Lock(ctx, rec.AccountID)
	if err != nil {
		return fmt.Errorf("lock account: %w", err)
	}
	defer unlock()

	account, err := s.repo.FindAccountByID(ctx, rec.AccountID)
	if err != nil {
		return fmt.Errorf("find account: %w", err)
	}
	if rec.Kind.IsDebit() && !account.CanWithdraw(rec.Amount) {
		return fmt.Errorf("apply %s of %s: %w", rec.Kind, rec.Amount, domain.ErrInsufficientFunds)
	}
	newBalance := account.ApplyDelta(rec.Kind, rec.Amount)

	if resolver, ok := s.repo.(store.AtomicRecorder); ok {
		if err := resolver.ResolveBalanceReconciliation(ctx, rec.ID, account.ID, newBalance, s.now()); err != nil {
			return fmt.Errorf("resolve reconciliation: %w", err)
		}
	} else {
		if err := s.repo.UpdateAccountBalance(ctx, account.ID, newBalance); err != nil {
			return fmt.Errorf("update account balance: %w", err)
		}
		if err := s.repo.MarkBalanceReconciliationResolved(ctx, rec.ID, s.now()); err != nil {
			// The delta is applied but the row is still pending.
			s.logger.Error("reconciliation applied but not marked resolved",
				zap.Int64("reconciliation_id", rec.ID),
				zap.Int64("account_id", rec.AccountID),
				zap.String("new_balance", newBalance.String()),
				zap.Error(err),
			)
			return fmt.Errorf("mark reconciliation resolved: %w", err)
		}
	}

	s.logger.Info("balance reconciled",
		zap.Int64("reconciliation_id", rec.ID),
		zap.Int64("transaction_id", rec.TransactionID),
		zap.Int64("account_id", rec.AccountID),
		zap.String("new_balance", newBalance.String()),
	)
	s.publish(ctx, domain.EventReconciliationResolved, domain.ReconciliationEvent{
		EventID:          newEventID(),
		ReconciliationID: rec.ID,
		TransactionID:    rec.TransactionID,
		AccountID:        rec.AccountID,
		Kind:             rec.Kind,
		Amount:           rec.Amount,
		OccurredAt:       s.now(),
	})
	return nil
}

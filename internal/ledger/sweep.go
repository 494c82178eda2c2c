package ledger

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "github.com/Dayo-Adewuyi/Banking-Ledger-System/internal/shared/errors"
	"github.com/Dayo-Adewuyi/Banking-Ledger-System/pkg/money"
)

// SweepResult reports one sweep pass over stale PENDING transactions.
type SweepResult struct {
	Processed int
	Failed    int
	FailedIDs []string
}

// SweepPending settles every PENDING transaction older than the configured
// staleness. Each transaction settles in its own commit scope: one bad
// transaction fails alone and the pass continues. Transactions that cannot
// settle (insufficient funds, closed account) are marked FAILED with a
// reason; transactions raced away by a concurrent settle or cancel are
// skipped.
func (s *Service) SweepPending(ctx context.Context) (*SweepResult, error) {
	cutoff := time.Now().Add(-s.cfg.SweepStaleness)
	pending, err := s.repo.ListPendingOlderThan(ctx, cutoff)
	if err != nil {
		return nil, storeError(err)
	}

	result := &SweepResult{}
	for _, tx := range pending {
		if ctx.Err() != nil {
			return result, contextError(ctx.Err())
		}

		err := s.settleOne(ctx, tx)
		switch {
		case err == nil:
			result.Processed++
			sweepOutcomes.WithLabelValues("processed").Inc()
		case errors.Is(err, ErrStateConflict):
			// Settled or cancelled by someone else since the listing.
			sweepOutcomes.WithLabelValues("skipped").Inc()
		default:
			result.Failed++
			result.FailedIDs = append(result.FailedIDs, tx.TransactionID)
			sweepOutcomes.WithLabelValues("failed").Inc()
			s.log.WithContext(ctx).WithError(err).Warn("pending transaction failed to settle",
				"transaction_id", tx.TransactionID,
			)
			if markErr := s.markFailed(ctx, tx, err); markErr != nil {
				s.log.WithContext(ctx).WithError(markErr).Error("could not mark transaction failed",
					"transaction_id", tx.TransactionID,
				)
			}
		}
	}

	if result.Processed > 0 || result.Failed > 0 {
		s.log.WithContext(ctx).Info("sweep pass finished",
			"processed", result.Processed,
			"failed", result.Failed,
		)
	}
	return result, nil
}

// settleOne applies a PENDING transaction's entries to balances and
// completes it, all in one commit scope.
func (s *Service) settleOne(ctx context.Context, tx *Transaction) error {
	return s.withCommit(ctx, "sweep", func(txCtx context.Context) error {
		if err := s.repo.UpdateTransactionStatus(txCtx, tx.TransactionID, StatusPending, StatusProcessing, nil, nil); err != nil {
			if errors.Is(err, ErrStateConflict) {
				return ErrStateConflict
			}
			return storeError(err)
		}

		deltas := make(map[uuid.UUID]decimal.Decimal, len(tx.Entries))
		for _, e := range tx.Entries {
			deltas[e.AccountID] = deltas[e.AccountID].Add(e.SignedAmount())
		}
		ids := sortedAccountIDs(deltas)

		now := time.Now()
		for _, id := range ids {
			account, err := s.repo.GetAccount(txCtx, id)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return apperrors.NotFound("account")
				}
				return storeError(err)
			}
			if !account.Active {
				return apperrors.InactiveAccount(account.AccountNumber)
			}
			balance, err := s.lockBalance(txCtx, id)
			if err != nil {
				return err
			}
			if !allowsNegative(account.Kind) && balance.Amount.Add(deltas[id]).Sign() < 0 {
				return apperrors.InsufficientFunds(money.Format(balance.Amount), money.Format(deltas[id].Neg())).
					WithDetail("accountNumber", account.AccountNumber)
			}
			if err := s.writeBalance(txCtx, balance, deltas[id], now); err != nil {
				return err
			}
		}

		return s.complete(txCtx, tx, now)
	})
}

// markFailed records the settlement failure on the journal row. The
// transaction walks PENDING to PROCESSING to FAILED in one commit so the
// lifecycle rules hold.
func (s *Service) markFailed(ctx context.Context, tx *Transaction, cause error) error {
	reason := cause.Error()
	if appErr := apperrors.GetAppError(cause); appErr != nil {
		reason = appErr.Message
	}
	return s.withCommit(ctx, "sweep", func(txCtx context.Context) error {
		if err := s.repo.UpdateTransactionStatus(txCtx, tx.TransactionID, StatusPending, StatusProcessing, nil, nil); err != nil {
			return storeError(err)
		}
		return s.transition(txCtx, tx, StatusProcessing, StatusFailed, nil, &reason)
	})
}

// RunSweeper settles stale PENDING transactions on a fixed interval until
// the context is cancelled. Intended to run as a background goroutine from
// main.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("sweeper started", "interval", interval, "staleness", s.cfg.SweepStaleness)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepPending(ctx); err != nil && ctx.Err() == nil {
				s.log.WithError(err).Error("sweep pass failed")
			}
		}
	}
}

// sortedAccountIDs fixes the balance lock order across commit scopes.
func sortedAccountIDs(deltas map[uuid.UUID]decimal.Decimal) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

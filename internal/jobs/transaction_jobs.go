package jobs

import (
	"context"
	"fmt"
	"time"

	"reseller-ledger/internal/domain"
	"reseller-ledger/internal/logger"
	"reseller-ledger/internal/repository"
)

// SweepStaleTransactions looks for transactions the orchestrator never
// finished. Rows stuck in processing outlived their gateway call and are
// flagged for an operator; the gateway may still have delivered, so they
// are not refunded automatically. Rows stuck in refund_pending are
// refunded.
func (jr *JobRunner) SweepStaleTransactions() {
	jr.runWithRecovery("SweepStaleTransactions", func() {
		ctx := context.Background()
		cfg := jr.config
		cutoff := jr.now().Add(-cfg.GatewayTimeout() - time.Duration(cfg.Scheduler.StaleMarginMinutes)*time.Minute)

		jr.flagStuckProcessing(ctx, cutoff)
		jr.retryPendingRefunds(ctx, cutoff)
	})
}

func (jr *JobRunner) flagStuckProcessing(ctx context.Context, cutoff time.Time) {
	stuck, err := jr.store.Transactions().ListByStatus(ctx, domain.TxnStatusProcessing, cutoff, jr.config.Scheduler.BatchSize)
	if err != nil {
		logger.Error("Failed to list stale processing transactions", "error", err)
		return
	}

	flagged := 0
	for _, txn := range stuck {
		if txn.NeedsReconciliation {
			continue
		}
		newlyFlagged, err := jr.flag(ctx, txn.ID, domain.TxnStatusProcessing)
		if err != nil {
			logger.Error("Failed to flag stale transaction", "txn_id", txn.ID, "error", err)
			continue
		}
		if !newlyFlagged {
			continue
		}
		flagged++
		jr.alert(ctx, txn, fmt.Sprintf("transaction has been processing since %s without a gateway outcome; %s was debited",
			txn.UpdatedAt.Format(time.RFC3339), txn.Total()))
	}
	logger.Info("Stale processing transactions swept", "candidates", len(stuck), "flagged", flagged)
}

func (jr *JobRunner) retryPendingRefunds(ctx context.Context, cutoff time.Time) {
	pending, err := jr.store.Transactions().ListByStatus(ctx, domain.TxnStatusRefundPending, cutoff, jr.config.Scheduler.BatchSize)
	if err != nil {
		logger.Error("Failed to list pending refunds", "error", err)
		return
	}

	refunded := 0
	for _, txn := range pending {
		if err := jr.services.Orchestrator.CompleteRefund(ctx, txn.ID); err != nil {
			logger.Error("Pending refund retry failed", "txn_id", txn.ID, "error", err)
			if !txn.NeedsReconciliation {
				if _, ferr := jr.flag(ctx, txn.ID, domain.TxnStatusRefundPending); ferr == nil {
					jr.alert(ctx, txn, fmt.Sprintf("refund of %s could not be completed: %v", txn.Total(), err))
				}
			}
			continue
		}
		refunded++
	}
	logger.Info("Pending refunds retried", "candidates", len(pending), "refunded", refunded)
}

// flag sets needs_reconciliation if the transaction is still in status. It
// reports whether the flag was newly set.
func (jr *JobRunner) flag(ctx context.Context, id string, status domain.TxnStatus) (bool, error) {
	flagged := false
	err := jr.store.WithinTx(ctx, func(tx repository.Store) error {
		flagged = false
		txn, err := tx.Transactions().GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if txn.Status != status || txn.NeedsReconciliation {
			return nil
		}
		txn.NeedsReconciliation = true
		if err := tx.Transactions().Update(ctx, txn); err != nil {
			return err
		}
		flagged = true
		return nil
	})
	return flagged, err
}

func (jr *JobRunner) alert(ctx context.Context, txn domain.BusinessTransaction, body string) {
	err := jr.services.Alerter.Alert(ctx, domain.Alert{
		Subject:       fmt.Sprintf("Reconciliation required for %s transaction", txn.Service),
		Body:          body,
		BusinessTxnID: txn.ID,
		UserID:        txn.UserID,
	})
	if err != nil {
		logger.Error("Failed to send operator alert", "txn_id", txn.ID, "error", err)
	}
}

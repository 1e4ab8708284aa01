package jobs

import (
	"context"
	"fmt"
	"strings"

	"reseller-ledger/internal/domain"
	"reseller-ledger/internal/logger"
)

// ReconcileWallets compares every wallet balance with the sum of its
// ledger and sends one alert listing the wallets that disagree.
func (jr *JobRunner) ReconcileWallets() {
	jr.runWithRecovery("ReconcileWallets", func() {
		ctx := context.Background()
		batch := jr.config.Scheduler.BatchSize

		var (
			afterID    int64
			checked    int
			mismatches []domain.Reconciliation
		)
		for {
			wallets, err := jr.store.Wallets().List(ctx, afterID, batch)
			if err != nil {
				logger.Error("Failed to list wallets", "after_id", afterID, "error", err)
				return
			}
			for _, w := range wallets {
				rec, err := jr.services.Ledger.Reconcile(ctx, w.UserID)
				if err != nil {
					logger.Error("Failed to reconcile wallet", "wallet_id", w.ID, "user_id", w.UserID, "error", err)
					continue
				}
				checked++
				if !rec.Consistent {
					mismatches = append(mismatches, *rec)
				}
			}
			if len(wallets) < batch {
				break
			}
			afterID = wallets[len(wallets)-1].ID
		}

		logger.Info("Wallet reconciliation finished", "checked", checked, "mismatches", len(mismatches))
		if len(mismatches) == 0 {
			return
		}

		var body strings.Builder
		for _, m := range mismatches {
			fmt.Fprintf(&body, "user %d wallet %d: balance %s, ledger %s\n",
				m.UserID, m.WalletID, m.Balance.StringFixed(2), m.LedgerSum.StringFixed(2))
		}
		err := jr.services.Alerter.Alert(ctx, domain.Alert{
			Subject: fmt.Sprintf("%d wallets do not match their ledger", len(mismatches)),
			Body:    body.String(),
		})
		if err != nil {
			logger.Error("Failed to send reconciliation alert", "error", err)
		}
	})
}

package jobs

import (
	"context"
	"time"

	"reseller-ledger/internal/logger"
)

// ReprocessCommissions retries distribution for successful transactions
// whose commission is still pending or failed after the grace period.
// Distribution is idempotent, so a transaction picked up twice is only
// paid once.
func (jr *JobRunner) ReprocessCommissions() {
	jr.runWithRecovery("ReprocessCommissions", func() {
		ctx := context.Background()
		cfg := jr.config.Scheduler
		cutoff := jr.now().Add(-time.Duration(cfg.CommissionGraceMinutes) * time.Minute)

		backlog, err := jr.store.Transactions().ListCommissionBacklog(ctx, cutoff, cfg.BatchSize)
		if err != nil {
			logger.Error("Failed to list commission backlog", "error", err)
			return
		}

		distributed, failed := 0, 0
		for _, txn := range backlog {
			ok, message := jr.services.Distributor.Process(ctx, txn.ID)
			if !ok {
				failed++
				logger.Warn("Commission still not distributed", "txn_id", txn.ID, "service", txn.Service, "detail", message)
				continue
			}
			distributed++
			logger.Debug("Commission reprocessed", "txn_id", txn.ID, "detail", message)
		}

		logger.Info("Commission backlog processed", "candidates", len(backlog), "distributed", distributed, "failed", failed)
	})
}

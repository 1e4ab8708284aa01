package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"reseller-ledger/internal/domain"
	"reseller-ledger/internal/events"
	"reseller-ledger/internal/logger"
	"reseller-ledger/internal/notify"
	"reseller-ledger/internal/repository"
	"reseller-ledger/internal/utils"
)

var errTxnNotSuccessful = errors.New("transaction is not successful")

type DistributorConfig struct {
	// NotifyTimeout bounds each event publish and push notification.
	NotifyTimeout time.Duration
}

type commissionDistributor struct {
	store     repository.Store
	plans     CommissionPlanService
	resolver  HierarchyResolver
	publisher events.Publisher
	pusher    notify.Pusher
	cfg       DistributorConfig
}

func NewCommissionDistributor(
	store repository.Store,
	plans CommissionPlanService,
	resolver HierarchyResolver,
	publisher events.Publisher,
	pusher notify.Pusher,
	cfg DistributorConfig,
) CommissionDistributor {
	if publisher == nil {
		publisher = events.NewNopPublisher()
	}
	if pusher == nil {
		pusher = notify.LogPusher{}
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = defaultNotifyTimeout
	}
	return &commissionDistributor{
		store:     store,
		plans:     plans,
		resolver:  resolver,
		publisher: publisher,
		pusher:    pusher,
		cfg:       cfg,
	}
}

// distribution is what one Process call credited.
type distribution struct {
	txn     *domain.BusinessTransaction
	pool    decimal.Decimal
	records []domain.CommissionDistributionRecord
	// already is set when an earlier run distributed this transaction.
	already bool
}

func (d *commissionDistributor) Process(ctx context.Context, businessTxnID string) (bool, string) {
	logger.EnterMethod("commissionDistributor.Process", "txnID", businessTxnID)

	result, err := d.distribute(ctx, businessTxnID)
	if err != nil {
		status := domain.CommissionStatusFailed
		if errors.Is(err, ErrAmountOutOfRange) {
			status = domain.CommissionStatusSkipped
		}
		if !errors.Is(err, errTxnNotSuccessful) && !errors.Is(err, repository.ErrNotFound) {
			d.setStatus(ctx, businessTxnID, status)
		}
		logger.ExitMethodWithError("commissionDistributor.Process", err, "txnID", businessTxnID)
		return false, err.Error()
	}

	if result.pool.IsZero() {
		d.setStatus(ctx, businessTxnID, domain.CommissionStatusSkipped)
		logger.ExitMethod("commissionDistributor.Process", "txnID", businessTxnID, "credits", 0)
		return true, "no commission for this transaction"
	}

	d.announce(ctx, result)

	credited := sumRecords(result.records)
	logger.ExitMethod("commissionDistributor.Process", "txnID", businessTxnID, "credits", len(result.records), "credited", credited)
	switch {
	case result.already:
		return true, "commission already distributed"
	case len(result.records) == 0:
		return true, "no eligible recipients for this commission"
	}
	return true, fmt.Sprintf("commission distributed: %d credits totalling %s", len(result.records), utils.FormatINR(credited))
}

func (d *commissionDistributor) distribute(ctx context.Context, businessTxnID string) (*distribution, error) {
	txn, err := d.store.Transactions().GetByID(ctx, businessTxnID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction %s: %w", businessTxnID, err)
	}
	if txn.Status != domain.TxnStatusSuccess {
		return nil, fmt.Errorf("%w: status %s", errTxnNotSuccessful, txn.Status)
	}

	assignment, err := d.plans.UserPlan(ctx, txn.UserID)
	if err != nil {
		return nil, err
	}
	rate, err := d.plans.GetRate(ctx, txn.Service, assignment.PlanID)
	if err != nil {
		return nil, err
	}
	if !rate.Eligible(txn.Amount) {
		return nil, fmt.Errorf("%w: %s", ErrAmountOutOfRange, txn.Amount)
	}

	pool := CalculateCommission(rate, txn.Amount)
	if !pool.IsPositive() {
		return &distribution{txn: txn, pool: decimal.Zero}, nil
	}

	retailer, err := d.store.Users().GetByID(ctx, txn.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load initiating user %d: %w", txn.UserID, err)
	}
	recipients, err := d.resolver.Resolve(ctx, retailer)
	if err != nil {
		return nil, err
	}

	result := &distribution{pool: pool}
	err = d.store.WithinTx(ctx, func(tx repository.Store) error {
		result.records = nil

		locked, err := tx.Transactions().GetByIDForUpdate(ctx, businessTxnID)
		if err != nil {
			return fmt.Errorf("failed to lock transaction %s: %w", businessTxnID, err)
		}
		if locked.Status != domain.TxnStatusSuccess {
			return fmt.Errorf("%w: status %s", errTxnNotSuccessful, locked.Status)
		}
		if locked.CommissionStatus == domain.CommissionStatusDistributed {
			result.already = true
			result.txn = locked
			return nil
		}

		for _, role := range domain.ShareRoles {
			rec, err := creditShare(ctx, tx, locked, rate, pool, role, recipients.For(role))
			if err != nil {
				return err
			}
			if rec != nil {
				result.records = append(result.records, *rec)
			}
		}

		locked.CommissionStatus = domain.CommissionStatusDistributed
		if len(result.records) == 0 {
			logger.Warn("No commission recipient was credited", "txn_id", businessTxnID, "pool", pool)
			locked.CommissionStatus = domain.CommissionStatusSkipped
		}
		if err := tx.Transactions().Update(ctx, locked); err != nil {
			return fmt.Errorf("failed to record commission status %s: %w", locked.CommissionStatus, err)
		}
		result.txn = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	residue := pool.Sub(sumRecords(result.records))
	if !residue.IsZero() && len(result.records) > 0 {
		logger.Debug("Commission rounding residue left unallocated", "txn_id", businessTxnID, "pool", pool, "residue", residue)
	}
	return result, nil
}

// creditShare credits one role's split. It returns nil when the role has
// no recipient, a zero split, or was already paid for this transaction.
func creditShare(
	ctx context.Context,
	tx repository.Store,
	txn *domain.BusinessTransaction,
	rate *domain.ServiceCommissionRate,
	pool decimal.Decimal,
	role domain.Role,
	recipient *domain.User,
) (*domain.CommissionDistributionRecord, error) {
	if recipient == nil {
		logger.Warn("No recipient for commission share", "txn_id", txn.ID, "role", role)
		return nil, nil
	}
	amount := utils.RoundMoney(utils.Percent(pool, rate.Share(role)))
	if !amount.IsPositive() {
		return nil, nil
	}

	paid, err := tx.Distributions().Exists(ctx, txn.ID, role)
	if err != nil {
		return nil, fmt.Errorf("failed to check %s distribution: %w", role, err)
	}
	if paid {
		return nil, nil
	}

	txnID := txn.ID
	reference := NewReference("COM")
	_, err = applyMutation(ctx, tx, mutation{
		userID:        recipient.ID,
		entryType:     domain.EntryTypeCredit,
		amount:        amount,
		category:      domain.CategoryCommission,
		description:   fmt.Sprintf("%s commission on %s %s", role, txn.Service, utils.FormatINR(txn.Amount)),
		reference:     reference,
		actorID:       txn.UserID,
		businessTxnID: &txnID,
		createWallet:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to credit %s commission to user %d: %w", role, recipient.ID, err)
	}

	rec := &domain.CommissionDistributionRecord{
		BusinessTxnID:  txn.ID,
		RateID:         rate.ID,
		RecipientID:    recipient.ID,
		Role:           role,
		Amount:         amount,
		OriginalAmount: txn.Amount,
		Reference:      reference,
	}
	if err := tx.Distributions().Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to record %s distribution: %w", role, err)
	}
	return rec, nil
}

func (d *commissionDistributor) Records(ctx context.Context, businessTxnID string) ([]domain.CommissionDistributionRecord, error) {
	return d.store.Distributions().ListByBusinessTxn(ctx, businessTxnID)
}

func (d *commissionDistributor) setStatus(ctx context.Context, businessTxnID string, status domain.CommissionStatus) {
	err := d.store.WithinTx(ctx, func(tx repository.Store) error {
		txn, err := tx.Transactions().GetByIDForUpdate(ctx, businessTxnID)
		if err != nil {
			return err
		}
		if txn.CommissionStatus == domain.CommissionStatusDistributed {
			return nil
		}
		txn.CommissionStatus = status
		return tx.Transactions().Update(ctx, txn)
	})
	if err != nil {
		logger.Error("Failed to update commission status", "txn_id", businessTxnID, "status", status, "error", err)
	}
}

// announce publishes the distribution and notifies each recipient. Both
// are best effort and each call gets its own NotifyTimeout.
func (d *commissionDistributor) announce(ctx context.Context, result *distribution) {
	if len(result.records) == 0 {
		return
	}
	txn := result.txn
	pubCtx, cancel := context.WithTimeout(ctx, d.cfg.NotifyTimeout)
	err := d.publisher.Publish(pubCtx, events.Event{
		Type:          events.TypeCommissionDistributed,
		BusinessTxnID: txn.ID,
		UserID:        txn.UserID,
		Service:       txn.Service,
		Amount:        sumRecords(result.records),
		Data:          result.records,
	})
	cancel()
	if err != nil {
		logger.Warn("Failed to publish commission event", "txn_id", txn.ID, "error", err)
	}

	for _, rec := range result.records {
		pushCtx, cancel := context.WithTimeout(ctx, d.cfg.NotifyTimeout)
		err := d.pusher.Push(pushCtx, domain.Notification{
			UserID:  rec.RecipientID,
			Title:   "Commission credited",
			Message: fmt.Sprintf("%s credited to your wallet for a %s transaction", utils.FormatINR(rec.Amount), txn.Service),
			Attributes: map[string]string{
				"type":      "COMMISSION",
				"txn_id":    txn.ID,
				"role":      string(rec.Role),
				"reference": rec.Reference,
			},
		})
		cancel()
		if err != nil {
			logger.Warn("Failed to notify commission recipient", "user_id", rec.RecipientID, "error", err)
		}
	}
}

func sumRecords(records []domain.CommissionDistributionRecord) decimal.Decimal {
	total := decimal.Zero
	for _, rec := range records {
		total = total.Add(rec.Amount)
	}
	return total
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"reseller-ledger/internal/domain"
	"reseller-ledger/internal/events"
	"reseller-ledger/internal/gateway"
	"reseller-ledger/internal/logger"
	"reseller-ledger/internal/notify"
	"reseller-ledger/internal/repository"
	"reseller-ledger/internal/utils"
)

const (
	defaultGatewayTimeout = 30 * time.Second
	defaultNotifyTimeout  = 5 * time.Second
)

type OrchestratorConfig struct {
	// Endpoints maps each service to its gateway path.
	Endpoints      map[domain.ServiceID]string
	Charges        map[domain.ServiceID]utils.ChargeTable
	GatewayTimeout time.Duration
	// NotifyTimeout bounds each event publish.
	NotifyTimeout time.Duration
}

type orchestrator struct {
	store       repository.Store
	wallets     WalletService
	ledger      LedgerService
	distributor CommissionDistributor
	gateway     Gateway
	publisher   events.Publisher
	alerter     notify.Alerter
	cfg         OrchestratorConfig
}

func NewOrchestrator(
	store repository.Store,
	wallets WalletService,
	ledger LedgerService,
	distributor CommissionDistributor,
	gw Gateway,
	publisher events.Publisher,
	alerter notify.Alerter,
	cfg OrchestratorConfig,
) Orchestrator {
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = defaultGatewayTimeout
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = defaultNotifyTimeout
	}
	if publisher == nil {
		publisher = events.NewNopPublisher()
	}
	if alerter == nil {
		alerter = notify.LogAlerter{}
	}
	return &orchestrator{
		store:       store,
		wallets:     wallets,
		ledger:      ledger,
		distributor: distributor,
		gateway:     gw,
		publisher:   publisher,
		alerter:     alerter,
		cfg:         cfg,
	}
}

// Execute runs one paid service call end to end. User mistakes come back as
// an unsuccessful Result with a nil error; the error is reserved for
// transient storage conflicts and failures that need an operator.
func (o *orchestrator) Execute(ctx context.Context, userID int64, req domain.ServiceRequest) (domain.Result, error) {
	logger.EnterMethod("orchestrator.Execute", "userID", userID, "service", req.Service, "amount", req.Amount)

	if !req.Service.Valid() {
		return domain.Failed(fmt.Sprintf("%s: %s", ErrUnknownService, req.Service), nil), nil
	}
	endpoint, ok := o.cfg.Endpoints[req.Service]
	if !ok {
		logger.Warn("No gateway endpoint configured", "service", req.Service)
		return domain.Failed(fmt.Sprintf("service %s is not available", req.Service), nil), nil
	}
	if !validMoney(req.Amount) || req.Amount.IsZero() {
		return domain.Failed(ErrInvalidAmount.Error(), nil), nil
	}

	pinOK, err := o.wallets.VerifyPIN(ctx, userID, req.PIN)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Failed("user not found", nil), nil
		}
		logger.ExitMethodWithError("orchestrator.Execute", err)
		return domain.Result{}, err
	}
	if !pinOK {
		logger.Warn("Transaction rejected: invalid PIN", "user_id", userID, "service", req.Service)
		return domain.Failed(ErrInvalidPIN.Error(), nil), nil
	}

	txn := &domain.BusinessTransaction{
		ID:               uuid.NewString(),
		Service:          req.Service,
		UserID:           userID,
		Amount:           req.Amount,
		Charge:           o.cfg.Charges[req.Service].Charge(req.Amount),
		CommissionStatus: domain.CommissionStatusPending,
		Params:           req.Params,
	}
	log := logger.WithTxn(txn.ID, string(txn.Service))

	if err := o.debit(ctx, txn); err != nil {
		if IsUserError(err) || errors.Is(err, ErrWalletNotFound) {
			log.Info("Transaction rejected before gateway call", "reason", err)
			return domain.Failed(err.Error(), nil), nil
		}
		logger.ExitMethodWithError("orchestrator.Execute", err, "txnID", txn.ID)
		return domain.Result{}, err
	}
	log.Info("Wallet debited, calling gateway", "total", txn.Total(), "charge", txn.Charge)

	// The money has left the wallet: finish the transaction even if the
	// caller goes away.
	bg := context.WithoutCancel(ctx)

	callCtx, cancel := context.WithTimeout(bg, o.cfg.GatewayTimeout)
	resp, callErr := o.gateway.Call(callCtx, http.MethodPost, endpoint, gatewayPayload(txn))
	cancel()

	var outcome gateway.Outcome
	raw := rawResponse(resp, callErr)
	if callErr != nil {
		log.Warn("Gateway call failed", "error", callErr)
		outcome = gateway.Outcome{Message: "service provider unavailable, amount refunded"}
	} else {
		outcome = gateway.Interpret(resp)
	}

	if outcome.Success {
		return o.complete(bg, txn, outcome, raw)
	}
	return o.refund(bg, txn, outcome, raw)
}

// debit creates the business transaction and takes amount + charge from
// the wallet in one database transaction, leaving it in processing.
func (o *orchestrator) debit(ctx context.Context, txn *domain.BusinessTransaction) error {
	return o.store.WithinTx(ctx, func(tx repository.Store) error {
		txn.Status = domain.TxnStatusInitiated
		if err := tx.Transactions().Create(ctx, txn); err != nil {
			return fmt.Errorf("failed to create transaction: %w", err)
		}
		txnID := txn.ID
		_, err := applyMutation(ctx, tx, mutation{
			userID:        txn.UserID,
			entryType:     domain.EntryTypeDebit,
			amount:        txn.Total().Neg(),
			category:      string(txn.Service),
			description:   fmt.Sprintf("%s of %s, charge %s", txn.Service, utils.FormatINR(txn.Amount), utils.FormatINR(txn.Charge)),
			reference:     NewReference("TXN"),
			actorID:       txn.UserID,
			businessTxnID: &txnID,
		})
		if err != nil {
			return err
		}
		txn.Status = domain.TxnStatusProcessing
		return tx.Transactions().Update(ctx, txn)
	})
}

func (o *orchestrator) complete(ctx context.Context, txn *domain.BusinessTransaction, outcome gateway.Outcome, raw json.RawMessage) (domain.Result, error) {
	log := logger.WithTxn(txn.ID, string(txn.Service))

	err := o.advance(ctx, txn, func(t *domain.BusinessTransaction) {
		t.GatewayReference = outcome.Reference
		t.GatewayResponse = raw
	}, domain.TxnStatusSuccess)
	if err != nil {
		// The gateway delivered the service but the row still says
		// processing. Do not refund; hand it to an operator.
		o.flagForReconciliation(ctx, txn, fmt.Sprintf("gateway succeeded (reference %q) but the transaction could not be marked successful: %v", outcome.Reference, err))
		logger.ExitMethodWithError("orchestrator.Execute", err, "txnID", txn.ID)
		return domain.Result{}, fmt.Errorf("failed to record gateway success for %s: %w", txn.ID, err)
	}
	log.Info("Transaction succeeded", "gateway_reference", outcome.Reference)

	if ok, detail := o.distributor.Process(ctx, txn.ID); !ok {
		log.Warn("Commission distribution failed; transaction stands", "detail", detail)
	}

	if fresh, err := o.store.Transactions().GetByID(ctx, txn.ID); err == nil {
		txn = fresh
	}
	o.publish(ctx, events.TypeTransactionSucceeded, txn)
	logger.ExitMethod("orchestrator.Execute", "txnID", txn.ID, "status", txn.Status)
	return domain.Succeeded(outcome.Message, txn), nil
}

func (o *orchestrator) refund(ctx context.Context, txn *domain.BusinessTransaction, outcome gateway.Outcome, raw json.RawMessage) (domain.Result, error) {
	log := logger.WithTxn(txn.ID, string(txn.Service))

	err := o.advance(ctx, txn, func(t *domain.BusinessTransaction) {
		t.GatewayReference = outcome.Reference
		t.GatewayResponse = raw
	}, domain.TxnStatusFailed, domain.TxnStatusRefundPending)
	if err == nil {
		err = o.creditRefund(ctx, txn)
	}
	if err != nil {
		o.flagForReconciliation(ctx, txn, fmt.Sprintf("refund of %s failed: %v", utils.FormatINR(txn.Total()), err))
		o.recordFailedRefund(ctx, txn)
		logger.ExitMethodWithError("orchestrator.Execute", err, "txnID", txn.ID)
		return domain.Failed(outcome.Message, txn), fmt.Errorf("%w: transaction %s: %v", ErrRefundFailed, txn.ID, err)
	}

	log.Info("Transaction failed at gateway and was refunded", "message", outcome.Message)
	o.publish(ctx, events.TypeTransactionRefunded, txn)
	logger.ExitMethod("orchestrator.Execute", "txnID", txn.ID, "status", txn.Status)
	return domain.Failed(outcome.Message, txn), nil
}

// creditRefund returns amount + charge to the wallet and marks the
// transaction refunded in one database transaction.
func (o *orchestrator) creditRefund(ctx context.Context, txn *domain.BusinessTransaction) error {
	return o.store.WithinTx(ctx, func(tx repository.Store) error {
		locked, err := tx.Transactions().GetByIDForUpdate(ctx, txn.ID)
		if err != nil {
			return fmt.Errorf("failed to lock transaction: %w", err)
		}
		if !locked.Status.CanTransition(domain.TxnStatusRefunded) {
			return fmt.Errorf("cannot refund transaction in status %s", locked.Status)
		}
		txnID := locked.ID
		_, err = applyMutation(ctx, tx, mutation{
			userID:        locked.UserID,
			entryType:     domain.EntryTypeCredit,
			amount:        locked.Total(),
			category:      domain.CategoryRefund,
			description:   fmt.Sprintf("refund of failed %s", locked.Service),
			reference:     NewReference("RFD"),
			actorID:       locked.UserID,
			businessTxnID: &txnID,
		})
		if err != nil {
			return err
		}
		locked.Status = domain.TxnStatusRefunded
		if err := tx.Transactions().Update(ctx, locked); err != nil {
			return err
		}
		*txn = *locked
		return nil
	})
}

func (o *orchestrator) CompleteRefund(ctx context.Context, businessTxnID string) error {
	txn, err := o.store.Transactions().GetByID(ctx, businessTxnID)
	if err != nil {
		return err
	}
	if txn.Status != domain.TxnStatusRefundPending {
		return fmt.Errorf("transaction %s is %s, not refund_pending", txn.ID, txn.Status)
	}
	if err := o.creditRefund(ctx, txn); err != nil {
		return fmt.Errorf("%w: transaction %s: %v", ErrRefundFailed, txn.ID, err)
	}
	logger.Info("Pending refund completed", "txn_id", txn.ID, "amount", txn.Total())
	o.publish(ctx, events.TypeTransactionRefunded, txn)
	return nil
}

func (o *orchestrator) Transaction(ctx context.Context, userID int64, businessTxnID string) (*domain.BusinessTransaction, error) {
	txn, err := o.store.Transactions().GetByID(ctx, businessTxnID)
	if err != nil {
		return nil, err
	}
	if userID != 0 && txn.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return txn, nil
}

// advance moves the transaction through path, applying update to the
// locked row before saving it.
func (o *orchestrator) advance(ctx context.Context, txn *domain.BusinessTransaction, update func(*domain.BusinessTransaction), path ...domain.TxnStatus) error {
	return o.store.WithinTx(ctx, func(tx repository.Store) error {
		locked, err := tx.Transactions().GetByIDForUpdate(ctx, txn.ID)
		if err != nil {
			return fmt.Errorf("failed to lock transaction: %w", err)
		}
		for _, next := range path {
			if !locked.Status.CanTransition(next) {
				return fmt.Errorf("illegal status change %s -> %s", locked.Status, next)
			}
			locked.Status = next
		}
		if update != nil {
			update(locked)
		}
		if err := tx.Transactions().Update(ctx, locked); err != nil {
			return fmt.Errorf("failed to save transaction: %w", err)
		}
		*txn = *locked
		return nil
	})
}

func (o *orchestrator) flagForReconciliation(ctx context.Context, txn *domain.BusinessTransaction, reason string) {
	logger.Error("Transaction needs reconciliation", "txn_id", txn.ID, "user_id", txn.UserID, "reason", reason)

	err := o.store.WithinTx(ctx, func(tx repository.Store) error {
		locked, err := tx.Transactions().GetByIDForUpdate(ctx, txn.ID)
		if err != nil {
			return err
		}
		locked.NeedsReconciliation = true
		if err := tx.Transactions().Update(ctx, locked); err != nil {
			return err
		}
		*txn = *locked
		return nil
	})
	if err != nil {
		logger.Error("Failed to flag transaction for reconciliation", "txn_id", txn.ID, "error", err)
		txn.NeedsReconciliation = true
	}

	alert := domain.Alert{
		Subject:       fmt.Sprintf("Reconciliation required for %s transaction", txn.Service),
		Body:          reason,
		BusinessTxnID: txn.ID,
		UserID:        txn.UserID,
	}
	if err := o.alerter.Alert(ctx, alert); err != nil {
		logger.Error("Failed to send operator alert", "txn_id", txn.ID, "error", err)
	}
	o.publish(ctx, events.TypeReconciliationRequired, txn)
}

// recordFailedRefund leaves a failed-status ledger entry so the user's
// statement shows the refund owed.
func (o *orchestrator) recordFailedRefund(ctx context.Context, txn *domain.BusinessTransaction) {
	w, err := o.store.Wallets().GetByUserID(ctx, txn.UserID)
	if err != nil {
		logger.Error("Cannot record failed refund: wallet not found", "txn_id", txn.ID, "error", err)
		return
	}
	txnID := txn.ID
	err = o.ledger.Record(ctx, &domain.LedgerEntry{
		WalletID:      w.ID,
		Amount:        txn.Total(),
		Type:          domain.EntryTypeCredit,
		Category:      domain.CategoryRefund,
		Description:   fmt.Sprintf("refund of failed %s pending reconciliation", txn.Service),
		ActorID:       txn.UserID,
		BusinessTxnID: &txnID,
		Reference:     NewReference("RFD"),
		BalanceAfter:  w.Balance,
		Status:        domain.EntryStatusFailed,
	})
	if err != nil {
		logger.Error("Failed to record failed refund entry", "txn_id", txn.ID, "error", err)
	}
}

func (o *orchestrator) publish(ctx context.Context, eventType events.Type, txn *domain.BusinessTransaction) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.NotifyTimeout)
	defer cancel()
	err := o.publisher.Publish(ctx, events.Event{
		Type:          eventType,
		BusinessTxnID: txn.ID,
		UserID:        txn.UserID,
		Service:       txn.Service,
		Amount:        txn.Total(),
		Data: map[string]any{
			"status":            txn.Status,
			"commission_status": txn.CommissionStatus,
			"gateway_reference": txn.GatewayReference,
		},
	})
	if err != nil {
		logger.Warn("Failed to publish transaction event", "txn_id", txn.ID, "type", eventType, "error", err)
	}
}

func gatewayPayload(txn *domain.BusinessTransaction) map[string]string {
	payload := make(map[string]string, len(txn.Params)+2)
	for k, v := range txn.Params {
		payload[k] = v
	}
	payload["reference"] = txn.ID
	payload["amount"] = txn.Amount.StringFixed(utils.MoneyPlaces)
	return payload
}

func rawResponse(resp *gateway.Response, callErr error) json.RawMessage {
	if resp != nil && len(resp.Data) > 0 {
		return resp.Data
	}
	if callErr != nil {
		raw, _ := json.Marshal(map[string]string{"error": callErr.Error()})
		return raw
	}
	return nil
}

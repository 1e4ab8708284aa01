package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"reseller-ledger/internal/domain"
	"reseller-ledger/internal/logger"
	"reseller-ledger/internal/repository"
)

type ledgerService struct {
	store repository.Store
}

func NewLedgerService(store repository.Store) LedgerService {
	return &ledgerService{store: store}
}

func (s *ledgerService) Record(ctx context.Context, entry *domain.LedgerEntry) error {
	if entry.Status != domain.EntryStatusFailed {
		return errors.New("only failed entries can be recorded without a wallet mutation")
	}
	return recordEntry(ctx, s.store.Ledger(), entry)
}

func (s *ledgerService) List(ctx context.Context, userID int64, page, pageSize int32) ([]domain.LedgerEntry, int32, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	w, err := s.store.Wallets().GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, 0, ErrWalletNotFound
		}
		return nil, 0, err
	}
	return s.store.Ledger().ListByWallet(ctx, w.ID, page, pageSize)
}

func (s *ledgerService) ListByBusinessTxn(ctx context.Context, businessTxnID string) ([]domain.LedgerEntry, error) {
	return s.store.Ledger().ListByBusinessTxn(ctx, businessTxnID)
}

// Reconcile compares the wallet balance with the sum of its successful
// ledger entries. Both are read in one transaction.
func (s *ledgerService) Reconcile(ctx context.Context, userID int64) (*domain.Reconciliation, error) {
	var rec *domain.Reconciliation
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		w, err := tx.Wallets().GetByUserIDForUpdate(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrWalletNotFound
			}
			return err
		}
		sum, err := tx.Ledger().SumByWallet(ctx, w.ID)
		if err != nil {
			return fmt.Errorf("failed to sum ledger of wallet %d: %w", w.ID, err)
		}
		rec = &domain.Reconciliation{
			UserID:     userID,
			WalletID:   w.ID,
			Balance:    w.Balance,
			LedgerSum:  sum,
			Consistent: w.Balance.Equal(sum),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !rec.Consistent {
		logger.Error("Wallet balance does not match ledger", "user_id", userID, "wallet_id", rec.WalletID,
			"balance", rec.Balance, "ledger_sum", rec.LedgerSum)
	}
	return rec, nil
}

// recordEntry is the single append path into the ledger.
func recordEntry(ctx context.Context, repo repository.LedgerRepository, e *domain.LedgerEntry) error {
	switch e.Type {
	case domain.EntryTypeCredit:
		if e.Amount.IsNegative() {
			return fmt.Errorf("credit entry with negative amount %s", e.Amount)
		}
	case domain.EntryTypeDebit:
		if e.Amount.IsPositive() {
			return fmt.Errorf("debit entry with positive amount %s", e.Amount)
		}
	default:
		return fmt.Errorf("unknown ledger entry type %q", e.Type)
	}
	if e.Reference == "" {
		e.Reference = NewReference("TXN")
	}
	if err := repo.Create(ctx, e); err != nil {
		return fmt.Errorf("failed to append ledger entry %s: %w", e.Reference, err)
	}
	return nil
}

// NewReference returns a unique reference such as COM-<uuid>.
func NewReference(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

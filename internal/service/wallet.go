package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"reseller-ledger/internal/domain"
	"reseller-ledger/internal/logger"
	"reseller-ledger/internal/repository"
	"reseller-ledger/internal/security"
	"reseller-ledger/internal/utils"
)

type DebitRequest struct {
	UserID        int64
	Amount        decimal.Decimal
	Fee           decimal.Decimal
	PIN           string
	Category      string
	Description   string
	Reference     string
	BusinessTxnID *string
}

type CreditRequest struct {
	UserID        int64
	Amount        decimal.Decimal
	Category      string
	Description   string
	Reference     string
	ActorID       int64
	BusinessTxnID *string
}

type walletService struct {
	store repository.Store
}

func NewWalletService(store repository.Store) WalletService {
	return &walletService{store: store}
}

func (s *walletService) Open(ctx context.Context, userID int64) (*domain.Wallet, error) {
	if _, err := s.store.Users().GetByID(ctx, userID); err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	w, err := s.store.Wallets().GetByUserID(ctx, userID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	w = &domain.Wallet{UserID: userID, Balance: decimal.Zero}
	if err := s.store.Wallets().Create(ctx, w); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return s.store.Wallets().GetByUserID(ctx, userID)
		}
		return nil, fmt.Errorf("failed to create wallet for user %d: %w", userID, err)
	}
	logger.Info("Wallet opened", "user_id", userID, "wallet_id", w.ID)
	return w, nil
}

func (s *walletService) Balance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	w, err := s.store.Wallets().GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return decimal.Zero, ErrWalletNotFound
		}
		return decimal.Zero, err
	}
	return w.Balance, nil
}

// VerifyPIN has no side effects. A missing user is an error, a wrong PIN
// is not.
func (s *walletService) VerifyPIN(ctx context.Context, userID int64, pin string) (bool, error) {
	u, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	return security.ComparePIN(u.PINHash, pin), nil
}

func (s *walletService) SetPIN(ctx context.Context, userID int64, pin string) error {
	hash, err := security.HashPIN(pin)
	if err != nil {
		return err
	}
	if err := s.store.Users().UpdatePINHash(ctx, userID, hash); err != nil {
		return fmt.Errorf("failed to store PIN for user %d: %w", userID, err)
	}
	return nil
}

func (s *walletService) Debit(ctx context.Context, req DebitRequest) (decimal.Decimal, error) {
	logger.EnterMethod("walletService.Debit", "userID", req.UserID, "amount", req.Amount, "fee", req.Fee)

	if !validMoney(req.Amount) || !validMoney(req.Fee) {
		logger.ExitMethodWithError("walletService.Debit", ErrInvalidAmount)
		return decimal.Zero, ErrInvalidAmount
	}
	ok, err := s.VerifyPIN(ctx, req.UserID, req.PIN)
	if err != nil {
		logger.ExitMethodWithError("walletService.Debit", err)
		return decimal.Zero, err
	}
	if !ok {
		logger.Warn("Debit rejected: invalid PIN", "user_id", req.UserID)
		return decimal.Zero, ErrInvalidPIN
	}

	var entry *domain.LedgerEntry
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		var err error
		entry, err = applyMutation(ctx, tx, mutation{
			userID:        req.UserID,
			entryType:     domain.EntryTypeDebit,
			amount:        req.Amount.Add(req.Fee).Neg(),
			category:      req.Category,
			description:   req.Description,
			reference:     req.Reference,
			actorID:       req.UserID,
			businessTxnID: req.BusinessTxnID,
		})
		return err
	})
	if err != nil {
		logger.ExitMethodWithError("walletService.Debit", err)
		return decimal.Zero, err
	}

	logger.ExitMethod("walletService.Debit", "balance", entry.BalanceAfter)
	return entry.BalanceAfter, nil
}

func (s *walletService) Credit(ctx context.Context, req CreditRequest) (decimal.Decimal, error) {
	logger.EnterMethod("walletService.Credit", "userID", req.UserID, "amount", req.Amount, "category", req.Category)

	if !validMoney(req.Amount) || req.Amount.IsZero() {
		logger.ExitMethodWithError("walletService.Credit", ErrInvalidAmount)
		return decimal.Zero, ErrInvalidAmount
	}

	var entry *domain.LedgerEntry
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		var err error
		entry, err = applyMutation(ctx, tx, mutation{
			userID:        req.UserID,
			entryType:     domain.EntryTypeCredit,
			amount:        req.Amount,
			category:      req.Category,
			description:   req.Description,
			reference:     req.Reference,
			actorID:       req.ActorID,
			businessTxnID: req.BusinessTxnID,
		})
		return err
	})
	if err != nil {
		logger.ExitMethodWithError("walletService.Credit", err)
		return decimal.Zero, err
	}

	logger.ExitMethod("walletService.Credit", "balance", entry.BalanceAfter)
	return entry.BalanceAfter, nil
}

// mutation is one signed balance change and the ledger entry describing it.
// The sign of amount must agree with entryType; a zero debit is still a debit.
type mutation struct {
	userID        int64
	entryType     domain.EntryType
	amount        decimal.Decimal
	category      string
	description   string
	reference     string
	actorID       int64
	businessTxnID *string
	// createWallet opens a missing wallet instead of failing.
	createWallet bool
}

// applyMutation locks the wallet row, applies the change and appends the
// ledger entry. It must run inside a transaction so the three steps commit
// or roll back together.
func applyMutation(ctx context.Context, tx repository.Store, m mutation) (*domain.LedgerEntry, error) {
	w, err := tx.Wallets().GetByUserIDForUpdate(ctx, m.userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		if !m.createWallet {
			return nil, ErrWalletNotFound
		}
		logger.Warn("Creating missing wallet during credit", "user_id", m.userID)
		w = &domain.Wallet{UserID: m.userID, Balance: decimal.Zero}
		if err := tx.Wallets().Create(ctx, w); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				// Another transaction opened it first. Rerunning ours
				// will find and lock that wallet.
				return nil, fmt.Errorf("%w: wallet for user %d opened concurrently", repository.ErrConflict, m.userID)
			}
			return nil, fmt.Errorf("failed to create wallet for user %d: %w", m.userID, err)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to lock wallet of user %d: %w", m.userID, err)
	}

	balance := w.Balance.Add(m.amount)
	if balance.IsNegative() {
		return nil, ErrInsufficientBalance
	}
	if err := tx.Wallets().UpdateBalance(ctx, w.ID, balance); err != nil {
		return nil, fmt.Errorf("failed to update wallet %d: %w", w.ID, err)
	}

	entry := &domain.LedgerEntry{
		WalletID:      w.ID,
		Amount:        m.amount,
		Type:          m.entryType,
		Category:      m.category,
		Description:   m.description,
		ActorID:       m.actorID,
		BusinessTxnID: m.businessTxnID,
		Reference:     m.reference,
		BalanceAfter:  balance,
		Status:        domain.EntryStatusSuccess,
	}
	if err := recordEntry(ctx, tx.Ledger(), entry); err != nil {
		return nil, err
	}

	logger.WalletMutation(w.ID, string(m.entryType), m.category, m.amount.StringFixed(utils.MoneyPlaces),
		balance.StringFixed(utils.MoneyPlaces), "user_id", m.userID, "reference", entry.Reference)
	return entry, nil
}

// validMoney accepts non-negative amounts with at most two decimal places.
func validMoney(d decimal.Decimal) bool {
	return !d.IsNegative() && d.Equal(utils.RoundMoney(d))
}

package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"reseller-ledger/internal/domain"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
	// ErrTransient is returned once lock conflict retries are exhausted. The
	// whole request is safe to retry.
	ErrTransient = errors.New("transient storage conflict")
	// ErrConflict means a concurrent transaction won a race. WithinTx
	// reruns the callback when it sees it.
	ErrConflict = errors.New("concurrent write conflict")
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	// FirstActiveAdmin returns the lowest-id active admin or superadmin.
	FirstActiveAdmin(ctx context.Context) (*domain.User, error)
	UpdatePINHash(ctx context.Context, id int64, pinHash string) error
}

type WalletRepository interface {
	Create(ctx context.Context, wallet *domain.Wallet) error
	GetByUserID(ctx context.Context, userID int64) (*domain.Wallet, error)
	// GetByUserIDForUpdate locks the wallet row until the surrounding
	// transaction ends.
	GetByUserIDForUpdate(ctx context.Context, userID int64) (*domain.Wallet, error)
	UpdateBalance(ctx context.Context, walletID int64, balance decimal.Decimal) error
	List(ctx context.Context, afterID int64, limit int) ([]domain.Wallet, error)
}

// LedgerRepository is append-only: there is no update or delete.
type LedgerRepository interface {
	Create(ctx context.Context, entry *domain.LedgerEntry) error
	ListByWallet(ctx context.Context, walletID int64, page, pageSize int32) ([]domain.LedgerEntry, int32, error)
	ListByBusinessTxn(ctx context.Context, businessTxnID string) ([]domain.LedgerEntry, error)
	SumByWallet(ctx context.Context, walletID int64) (decimal.Decimal, error)
}

type CommissionPlanRepository interface {
	Create(ctx context.Context, plan *domain.CommissionPlan) error
	GetByID(ctx context.Context, id int64) (*domain.CommissionPlan, error)
	GetByName(ctx context.Context, name string) (*domain.CommissionPlan, error)
	List(ctx context.Context) ([]domain.CommissionPlan, error)
	// AssignToUser replaces the user's plan assignment.
	AssignToUser(ctx context.Context, assignment *domain.UserCommissionPlan) error
	// GetUserPlan returns the user's active assignment.
	GetUserPlan(ctx context.Context, userID int64) (*domain.UserCommissionPlan, error)
}

type CommissionRateRepository interface {
	// Save inserts or replaces the rate for (service, plan).
	Save(ctx context.Context, rate *domain.ServiceCommissionRate) error
	Get(ctx context.Context, service domain.ServiceID, planID int64) (*domain.ServiceCommissionRate, error)
	ListByPlan(ctx context.Context, planID int64) ([]domain.ServiceCommissionRate, error)
}

type DistributionRepository interface {
	// Create fails with ErrDuplicate when a record for (business txn, role)
	// already exists.
	Create(ctx context.Context, record *domain.CommissionDistributionRecord) error
	Exists(ctx context.Context, businessTxnID string, role domain.Role) (bool, error)
	ListByBusinessTxn(ctx context.Context, businessTxnID string) ([]domain.CommissionDistributionRecord, error)
}

type BusinessTransactionRepository interface {
	Create(ctx context.Context, txn *domain.BusinessTransaction) error
	GetByID(ctx context.Context, id string) (*domain.BusinessTransaction, error)
	GetByIDForUpdate(ctx context.Context, id string) (*domain.BusinessTransaction, error)
	Update(ctx context.Context, txn *domain.BusinessTransaction) error
	ListByStatus(ctx context.Context, status domain.TxnStatus, updatedBefore time.Time, limit int) ([]domain.BusinessTransaction, error)
	// ListCommissionBacklog returns successful transactions whose commission
	// is still pending or failed.
	ListCommissionBacklog(ctx context.Context, updatedBefore time.Time, limit int) ([]domain.BusinessTransaction, error)
}

// Store groups the repositories and runs units of work. Repositories obtained
// from the Store passed to fn share one database transaction.
type Store interface {
	Users() UserRepository
	Wallets() WalletRepository
	Ledger() LedgerRepository
	Plans() CommissionPlanRepository
	Rates() CommissionRateRepository
	Distributions() DistributionRepository
	Transactions() BusinessTransactionRepository

	// WithinTx commits when fn returns nil and rolls back otherwise. Lock
	// conflicts and ErrConflict are retried a bounded number of times
	// before ErrTransient.
	// Calling WithinTx on a transactional Store joins the outer transaction.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

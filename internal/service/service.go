package service

import (
	"context"

	"github.com/shopspring/decimal"

	"reseller-ledger/internal/domain"
	"reseller-ledger/internal/gateway"
)

type WalletService interface {
	// Open creates a zero-balance wallet for the user, or returns the
	// existing one.
	Open(ctx context.Context, userID int64) (*domain.Wallet, error)
	Balance(ctx context.Context, userID int64) (decimal.Decimal, error)
	VerifyPIN(ctx context.Context, userID int64, pin string) (bool, error)
	SetPIN(ctx context.Context, userID int64, pin string) error
	Debit(ctx context.Context, req DebitRequest) (decimal.Decimal, error)
	Credit(ctx context.Context, req CreditRequest) (decimal.Decimal, error)
}

type LedgerService interface {
	// Record appends an audit entry that does not move the balance (status
	// failed). Balance-moving entries are written by wallet mutations.
	Record(ctx context.Context, entry *domain.LedgerEntry) error
	List(ctx context.Context, userID int64, page, pageSize int32) ([]domain.LedgerEntry, int32, error)
	ListByBusinessTxn(ctx context.Context, businessTxnID string) ([]domain.LedgerEntry, error)
	Reconcile(ctx context.Context, userID int64) (*domain.Reconciliation, error)
}

type CommissionPlanService interface {
	CreatePlan(ctx context.Context, plan *domain.CommissionPlan) error
	ListPlans(ctx context.Context) ([]domain.CommissionPlan, error)
	AssignPlan(ctx context.Context, userID, planID, assignedBy int64) error
	UserPlan(ctx context.Context, userID int64) (*domain.UserCommissionPlan, error)
	SaveRate(ctx context.Context, rate *domain.ServiceCommissionRate) error
	GetRate(ctx context.Context, service domain.ServiceID, planID int64) (*domain.ServiceCommissionRate, error)
	ListRates(ctx context.Context, planID int64) ([]domain.ServiceCommissionRate, error)
}

type HierarchyResolver interface {
	Resolve(ctx context.Context, retailer *domain.User) (*domain.Recipients, error)
}

type CommissionDistributor interface {
	// Process distributes commission for one successful business
	// transaction. It is safe to call repeatedly.
	Process(ctx context.Context, businessTxnID string) (bool, string)
	Records(ctx context.Context, businessTxnID string) ([]domain.CommissionDistributionRecord, error)
}

type Orchestrator interface {
	Execute(ctx context.Context, userID int64, req domain.ServiceRequest) (domain.Result, error)
	// CompleteRefund retries the wallet credit of a transaction stuck in
	// refund_pending.
	CompleteRefund(ctx context.Context, businessTxnID string) error
	// Transaction returns the caller's own transaction. A zero userID
	// skips the ownership check.
	Transaction(ctx context.Context, userID int64, businessTxnID string) (*domain.BusinessTransaction, error)
}

// Gateway is the part of the gateway client the orchestrator needs.
type Gateway interface {
	Call(ctx context.Context, method, endpoint string, payload any) (*gateway.Response, error)
}

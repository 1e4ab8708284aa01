package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type EntryType string

const (
	EntryTypeCredit EntryType = "credit"
	EntryTypeDebit  EntryType = "debit"
)

type EntryStatus string

const (
	EntryStatusSuccess EntryStatus = "success"
	EntryStatusFailed  EntryStatus = "failed"
)

// Ledger categories that are not a service identifier.
const (
	CategoryCommission = "commission"
	CategoryRefund     = "refund"
	CategoryTopup      = "topup"
)

type Wallet struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// LedgerEntry is one immutable wallet mutation. Amount is signed: credits are
// positive, debits negative, so the entries of a wallet sum to its balance.
type LedgerEntry struct {
	ID            int64           `json:"id"`
	WalletID      int64           `json:"wallet_id"`
	Amount        decimal.Decimal `json:"amount"`
	Type          EntryType       `json:"type"`
	Category      string          `json:"category"`
	Description   string          `json:"description"`
	ActorID       int64           `json:"actor_id"`
	BusinessTxnID *string         `json:"business_txn_id,omitempty"`
	Reference     string          `json:"reference"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Status        EntryStatus     `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

type Reconciliation struct {
	UserID     int64           `json:"user_id"`
	WalletID   int64           `json:"wallet_id"`
	Balance    decimal.Decimal `json:"balance"`
	LedgerSum  decimal.Decimal `json:"ledger_sum"`
	Consistent bool            `json:"consistent"`
}

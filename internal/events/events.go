// Package events publishes ledger and transaction lifecycle events for
// downstream consumers (reporting, statements, fraud checks).
package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"reseller-ledger/internal/domain"
)

type Type string

const (
	TypeTransactionSucceeded   Type = "transaction.succeeded"
	TypeTransactionRefunded    Type = "transaction.refunded"
	TypeCommissionDistributed  Type = "commission.distributed"
	TypeReconciliationRequired Type = "reconciliation.required"
	TypeWalletCredited         Type = "wallet.credited"
)

type Event struct {
	Type          Type             `json:"type"`
	BusinessTxnID string           `json:"business_txn_id,omitempty"`
	UserID        int64            `json:"user_id,omitempty"`
	Service       domain.ServiceID `json:"service,omitempty"`
	Amount        decimal.Decimal  `json:"amount"`
	Data          any              `json:"data,omitempty"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

// Key partitions events by business transaction so one transaction's
// events stay ordered.
func (e Event) Key() string {
	if e.BusinessTxnID != "" {
		return e.BusinessTxnID
	}
	return string(e.Type)
}

// Publisher delivers events after the database work they describe has
// committed. Publishing is best effort: callers log failures and move on.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close()
}

type nopPublisher struct{}

func NewNopPublisher() Publisher { return nopPublisher{} }

func (nopPublisher) Publish(context.Context, Event) error { return nil }
func (nopPublisher) Close()                               {}

// Package notify delivers user push notifications and operator alerts.
package notify

import (
	"context"
	"errors"

	"reseller-ledger/internal/domain"
	"reseller-ledger/internal/logger"
)

// Pusher sends a notification to one user's devices.
type Pusher interface {
	Push(ctx context.Context, n domain.Notification) error
}

// Alerter tells operators about conditions that need manual reconciliation.
type Alerter interface {
	Alert(ctx context.Context, a domain.Alert) error
}

// LogPusher writes notifications to the log. It stands in when no push
// provider is configured.
type LogPusher struct{}

func (LogPusher) Push(_ context.Context, n domain.Notification) error {
	logger.Info("Notification", "user_id", n.UserID, "title", n.Title, "message", n.Message)
	return nil
}

// LogAlerter writes alerts to the log at error level.
type LogAlerter struct{}

func (LogAlerter) Alert(_ context.Context, a domain.Alert) error {
	logger.Error("Operator alert", "subject", a.Subject, "body", a.Body, "txn_id", a.BusinessTxnID, "user_id", a.UserID)
	return nil
}

// MultiAlerter fans an alert out to every alerter and joins their errors.
type MultiAlerter []Alerter

func (m MultiAlerter) Alert(ctx context.Context, a domain.Alert) error {
	var errs []error
	for _, alerter := range m {
		if err := alerter.Alert(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

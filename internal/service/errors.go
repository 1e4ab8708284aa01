package service

import "errors"

// User-facing failures. They never leave partial state behind.
var (
	ErrInvalidPIN          = errors.New("invalid PIN")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrUnknownService      = errors.New("unknown service")
)

// Configuration failures. Distribution is aborted; the service transaction
// stands.
var (
	ErrNoCommissionPlan = errors.New("no active commission plan")
	ErrNoRateConfigured = errors.New("no commission rate configured")
	ErrInvalidShares    = errors.New("commission shares must sum to 100")
	ErrAmountOutOfRange = errors.New("amount outside commission eligibility range")
)

var (
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrRefundFailed means a debited amount could not be returned. The
	// transaction is flagged for reconciliation and operators are alerted.
	ErrRefundFailed = errors.New("refund failed")
)

// IsUserError reports whether err is caused by the caller's input rather
// than by configuration or infrastructure.
func IsUserError(err error) bool {
	return errors.Is(err, ErrInvalidPIN) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrUnknownService)
}

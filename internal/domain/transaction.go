package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type ServiceID string

const (
	ServiceRecharge      ServiceID = "recharge"
	ServiceBillPayment   ServiceID = "bill_payment"
	ServiceDMT           ServiceID = "dmt"
	ServiceVendorPayment ServiceID = "vendor_payment"
	ServiceAEPS          ServiceID = "aeps"
	ServiceCreditLink    ServiceID = "credit_link"
)

var knownServices = map[ServiceID]bool{
	ServiceRecharge:      true,
	ServiceBillPayment:   true,
	ServiceDMT:           true,
	ServiceVendorPayment: true,
	ServiceAEPS:          true,
	ServiceCreditLink:    true,
}

func (s ServiceID) Valid() bool {
	return knownServices[s]
}

type TxnStatus string

const (
	TxnStatusInitiated     TxnStatus = "initiated"
	TxnStatusProcessing    TxnStatus = "processing"
	TxnStatusSuccess       TxnStatus = "success"
	TxnStatusFailed        TxnStatus = "failed"
	TxnStatusRefundPending TxnStatus = "refund_pending"
	TxnStatusRefunded      TxnStatus = "refunded"
)

var txnTransitions = map[TxnStatus][]TxnStatus{
	TxnStatusInitiated:     {TxnStatusProcessing, TxnStatusFailed},
	TxnStatusProcessing:    {TxnStatusSuccess, TxnStatusFailed},
	TxnStatusFailed:        {TxnStatusRefundPending},
	TxnStatusRefundPending: {TxnStatusRefunded},
}

// CanTransition reports whether the business transaction state machine
// allows moving from s to next.
func (s TxnStatus) CanTransition(next TxnStatus) bool {
	for _, allowed := range txnTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s TxnStatus) Terminal() bool {
	return s == TxnStatusSuccess || s == TxnStatusRefunded
}

type CommissionStatus string

const (
	CommissionStatusPending     CommissionStatus = "pending"
	CommissionStatusDistributed CommissionStatus = "distributed"
	CommissionStatusFailed      CommissionStatus = "failed"
	CommissionStatusSkipped     CommissionStatus = "skipped"
)

// BusinessTransaction is the paid service action (recharge, transfer, payout,
// withdrawal) that triggers commission distribution.
type BusinessTransaction struct {
	ID                  string            `json:"id"`
	Service             ServiceID         `json:"service"`
	UserID              int64             `json:"user_id"`
	Amount              decimal.Decimal   `json:"amount"`
	Charge              decimal.Decimal   `json:"charge"`
	Status              TxnStatus         `json:"status"`
	GatewayReference    string            `json:"gateway_reference,omitempty"`
	GatewayResponse     json.RawMessage   `json:"gateway_response,omitempty"`
	CommissionStatus    CommissionStatus  `json:"commission_status"`
	NeedsReconciliation bool              `json:"needs_reconciliation"`
	Params              map[string]string `json:"params,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

func (t *BusinessTransaction) Total() decimal.Decimal {
	return t.Amount.Add(t.Charge)
}

// ServiceRequest is what a retailer submits to buy a service.
type ServiceRequest struct {
	Service ServiceID         `json:"service"`
	Amount  decimal.Decimal   `json:"amount"`
	PIN     string            `json:"-"`
	Params  map[string]string `json:"params,omitempty"`
}

// Result is the single response shape of every orchestration call.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func Succeeded(message string, data any) Result {
	return Result{Success: true, Message: message, Data: data}
}

func Failed(message string, data any) Result {
	return Result{Success: false, Message: message, Data: data}
}

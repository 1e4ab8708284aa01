package domain

// Notification is a message pushed to one user's devices.
type Notification struct {
	UserID     int64             `json:"user_id"`
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	Attributes map[string]string `json:"attributes"`
}

// Alert is an operator-facing message for conditions that need manual
// reconciliation.
type Alert struct {
	Subject       string `json:"subject"`
	Body          string `json:"body"`
	BusinessTxnID string `json:"business_txn_id,omitempty"`
	UserID        int64  `json:"user_id,omitempty"`
}

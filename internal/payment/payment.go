package payment

import (
	"errors"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// IsResolved reports whether the payment reached an outcome; resolved
// payments only ever move to refunded, never back.
func (s Status) IsResolved() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCancelled || s == StatusRefunded
}

var (
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrOrderNotPayable     = errors.New("order is not awaiting payment")
	ErrAmountMismatch      = errors.New("payment amount mismatch")
	ErrCorrelationMismatch = errors.New("gateway correlation id mismatch")
	ErrIllegalPaymentState = errors.New("illegal payment state for this operation")
	ErrGateway             = errors.New("payment gateway error")
)

// Attempt is one interaction with the gateway. History is append-only;
// earlier attempts are never overwritten.
type Attempt struct {
	CorrelationID string    `json:"correlation_id,omitempty"`
	Kind          string    `json:"kind"` // charge | verify | refund
	Outcome       string    `json:"outcome"`
	At            time.Time `json:"at"`
}

// Payment tracks one order's active payment. Amount is fixed at creation to
// the order total and never changes.
type Payment struct {
	ID            string    `json:"id"`
	OrderID       string    `json:"order_id"`
	Amount        int64     `json:"amount"`
	Method        string    `json:"method"`
	Status        Status    `json:"status"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Attempts      []Attempt `json:"attempts"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

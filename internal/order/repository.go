package order

import (
	"context"
	"time"

	"github.com/avolk/go_checkout/internal/payment"
)

// Repository persists orders. Consumers define this interface, not the
// Postgres implementation.
type Repository interface {
	// CreateWithPayment inserts the order and its pending payment in one
	// transaction: both land or neither does.
	CreateWithPayment(ctx context.Context, o *Order, p *payment.Payment) error

	Get(ctx context.Context, id string) (*Order, error)

	ListByCustomer(ctx context.Context, customerID string) ([]*Order, error)

	// UpdateStatus transitions the order only if its current status is one
	// of from; the condition is evaluated at the store. Returns false when
	// no row matched, meaning someone else transitioned first.
	UpdateStatus(ctx context.Context, id string, from []Status, to Status, reason string) (bool, error)

	// ListAwaitingPaymentBefore returns orders stuck in awaiting_payment
	// since before the cutoff. The TTL sweep feeds on this.
	ListAwaitingPaymentBefore(ctx context.Context, cutoff time.Time) ([]*Order, error)

	// ListReservingBefore returns orders that are still holding
	// reservations (created/awaiting_payment) and are older than the
	// cutoff. The consistency auditor feeds on this.
	ListReservingBefore(ctx context.Context, cutoff time.Time) ([]*Order, error)
}

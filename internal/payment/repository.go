package payment

import "context"

// Repository persists payments. All state transitions are conditional
// updates evaluated at the store: the boolean result reports whether this
// caller won the transition, which is what makes Verify idempotent under
// duplicate gateway callbacks.
type Repository interface {
	Get(ctx context.Context, id string) (*Payment, error)

	// GetByOrder returns the order's most recent payment attempt.
	GetByOrder(ctx context.Context, orderID string) (*Payment, error)

	// BeginProcessing moves pending → processing and records the gateway
	// correlation id. Returns false if the payment already left pending.
	BeginProcessing(ctx context.Context, id, correlationID string, attempt Attempt) (bool, error)

	// Resolve moves pending/processing → success or failed, appending the
	// attempt. Returns false if the payment was already resolved.
	Resolve(ctx context.Context, id string, to Status, attempt Attempt) (bool, error)

	// Void moves pending/processing → cancelled (order cancelled before
	// payment resolution).
	Void(ctx context.Context, id string, attempt Attempt) (bool, error)

	// MarkRefunded moves success → refunded.
	MarkRefunded(ctx context.Context, id string, attempt Attempt) (bool, error)
}

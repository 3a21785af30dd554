package cart

import (
	"context"
	"errors"
)

var ErrCartNotFound = errors.New("cart not found")

// Repository defines the interface for cart persistence.
// Consumers define this interface, not the MongoDB implementation.
type Repository interface {
	// FindOrCreate returns the customer's cart, creating an empty one with
	// upsert semantics so concurrent first-access cannot race.
	FindOrCreate(ctx context.Context, customerID string) (*Cart, error)

	Get(ctx context.Context, customerID string) (*Cart, error)

	// Save persists the cart's items, totals and activity stamp.
	Save(ctx context.Context, cart *Cart) error

	Delete(ctx context.Context, customerID string) error
}

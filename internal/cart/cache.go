package cart

import (
	"context"
	"errors"
)

type Cache interface {
	Get(ctx context.Context, customerID string) (*Cart, error)
	Set(ctx context.Context, customerID string, cart *Cart) error
	Delete(ctx context.Context, customerID string) error
}

var ErrCacheMiss = errors.New("cache miss")

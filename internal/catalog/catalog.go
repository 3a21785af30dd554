package catalog

import (
	"context"
	"errors"
)

var ErrProductNotFound = errors.New("product not found")

// Product is what the checkout core sees of the catalog. Price is in minor
// units. The core trusts these fields only at cart-add / order-create time
// and never re-reads them after an order snapshot is frozen.
type Product struct {
	ID       int64
	SKU      string
	Name     string
	Price    int64
	IsActive bool
}

// Catalog is the external product collaborator. Consumers define this
// interface, not the SQLite implementation.
type Catalog interface {
	GetProduct(ctx context.Context, id int64) (*Product, error)
}

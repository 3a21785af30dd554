package inventory

import (
	"context"
	"errors"
	"time"
)

// Common errors returned by ledger implementations
var (
	ErrProductNotFound   = errors.New("product not found in inventory")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrOverCapacity      = errors.New("restock exceeds max stock level")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

// Record is the single source of truth for a product's stock. Availability
// flags are derived on read, never persisted: the legacy habit of mirroring
// a stock counter onto the product record is what drifted in production.
type Record struct {
	ProductID         int64     `bson:"product_id" json:"product_id"`
	SKU               string    `bson:"sku" json:"sku"`
	QuantityAvailable int       `bson:"quantity_available" json:"quantity_available"`
	QuantityReserved  int       `bson:"quantity_reserved" json:"quantity_reserved"`
	QuantityLocked    int       `bson:"quantity_locked" json:"quantity_locked"`
	ReorderLevel      int       `bson:"reorder_level" json:"reorder_level"`
	MaxStockLevel     int       `bson:"max_stock_level" json:"max_stock_level"`
	LastRestocked     time.Time `bson:"last_restocked" json:"last_restocked"`
}

// AvailableForSale is the only quantity ever offered to new carts.
func (r Record) AvailableForSale() int {
	return r.QuantityAvailable
}

func (r Record) IsLowStock() bool {
	return r.QuantityAvailable <= r.ReorderLevel
}

func (r Record) IsOutOfStock() bool {
	return r.QuantityAvailable == 0
}

// Ledger exposes the only three mutations a checkout may apply to stock,
// plus read-side projections. Every mutation must execute as a single
// conditional update evaluated at the store; implementations must never
// read a quantity into memory, adjust it, and write it back.
type Ledger interface {
	// Reserve moves qty from available to reserved, failing with
	// ErrInsufficientStock when fewer than qty units are available.
	// No partial reservation.
	Reserve(ctx context.Context, productID int64, qty int) error

	// Release reverses a reservation: reserved decreases (floored at zero)
	// and the released units return to available.
	Release(ctx context.Context, productID int64, qty int) error

	// Commit converts a reservation into a permanent sale: reserved
	// decreases, available is untouched (it already dropped at Reserve).
	Commit(ctx context.Context, productID int64, qty int) error

	GetAvailability(ctx context.Context, productID int64) (*Record, error)

	// ListLowStock returns records at or below the given availability
	// threshold. A negative threshold means "each record's own reorder
	// level".
	ListLowStock(ctx context.Context, threshold int) ([]Record, error)

	// ListReserved returns every record currently holding a reservation.
	// The consistency audit reads this to find holds no order explains.
	ListReserved(ctx context.Context) ([]Record, error)

	// Restock adds qty to available, guarded by MaxStockLevel.
	Restock(ctx context.Context, productID int64, qty int) error

	// SetStock creates or overwrites a record. Initialization only.
	SetStock(ctx context.Context, rec Record) error
}

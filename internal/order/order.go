package order

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avolk/go_checkout/internal/cart"
	"github.com/avolk/go_checkout/internal/inventory"
	"github.com/avolk/go_checkout/internal/pricing"
)

type Status string

const (
	StatusCreated         Status = "created"
	StatusAwaitingPayment Status = "awaiting_payment"
	StatusPaid            Status = "paid"
	StatusFulfilled       Status = "fulfilled"
	StatusCancelled       Status = "cancelled"
	StatusPaymentFailed   Status = "payment_failed"
)

var transitions = map[Status][]Status{
	StatusCreated:         {StatusAwaitingPayment, StatusCancelled},
	StatusAwaitingPayment: {StatusPaid, StatusPaymentFailed, StatusCancelled},
	StatusPaid:            {StatusFulfilled, StatusCancelled},
}

func CanTransitionTo(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusFulfilled || s == StatusCancelled || s == StatusPaymentFailed
}

// String representation (for logging)
func (s Status) String() string {
	return string(s)
}

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrEmptyCart         = errors.New("cart is empty, nothing to check out")
	ErrIllegalTransition = errors.New("illegal order status transition")
)

// StockError names every line the ledger could not cover during creation.
// All reservations made in the same attempt were already rolled back.
type StockError struct {
	Shortfalls []cart.Shortfall
}

func (e *StockError) Error() string {
	parts := make([]string, len(e.Shortfalls))
	for i, s := range e.Shortfalls {
		parts[i] = fmt.Sprintf("product %d: requested %d, available %d", s.ProductID, s.Requested, s.Available)
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

func (e *StockError) Unwrap() error {
	return inventory.ErrInsufficientStock
}

type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// Item is a frozen copy of a cart line. Price is the add-time price; it is
// never refreshed from the catalog after the order exists.
type Item struct {
	ProductID int64             `json:"product_id"`
	SKU       string            `json:"sku"`
	Name      string            `json:"name"`
	UnitPrice int64             `json:"unit_price"`
	Quantity  int               `json:"quantity"`
	Variant   map[string]string `json:"variant,omitempty"`
}

// Order is an immutable snapshot of the cart at creation time plus a small
// mutable status envelope. Items, addresses and totals never change after
// insert; only status fields do.
type Order struct {
	ID                 string         `json:"id"`
	CustomerID         string         `json:"customer_id"`
	Items              []Item         `json:"items"`
	ShippingAddress    Address        `json:"shipping_address"`
	BillingAddress     Address        `json:"billing_address"`
	Totals             pricing.Totals `json:"totals"`
	Status             Status         `json:"status"`
	CancellationReason string         `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	CancelledAt        *time.Time     `json:"cancelled_at,omitempty"`
}

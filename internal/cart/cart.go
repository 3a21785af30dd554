package cart

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/avolk/go_checkout/internal/pricing"
)

// MaxItemQuantity caps a single line; re-adds that would push past it are
// rejected rather than silently clamped.
const MaxItemQuantity = 100

// EmptyCartTTL is how long an inactive, empty cart survives before the
// store garbage-collects it.
const EmptyCartTTL = 30 * 24 * time.Hour

var (
	ErrInvalidQuantity  = errors.New("quantity must be between 1 and 100")
	ErrQuantityExceeded = errors.New("item quantity limit exceeded")
	ErrItemNotFound     = errors.New("item not found in cart")
	ErrProductInactive  = errors.New("product is not available for sale")
)

// CartItem denormalizes name/sku/price at add-time so receipts stay stable
// even if the catalog changes afterwards.
type CartItem struct {
	ProductID int64             `bson:"product_id" json:"product_id"`
	SKU       string            `bson:"sku" json:"sku"`
	Name      string            `bson:"name" json:"name"`
	UnitPrice int64             `bson:"unit_price" json:"unit_price"`
	Quantity  int               `bson:"quantity" json:"quantity"`
	Variant   map[string]string `bson:"variant,omitempty" json:"variant,omitempty"`
	AddedAt   time.Time         `bson:"added_at" json:"added_at"`
	UpdatedAt time.Time         `bson:"updated_at" json:"updated_at"`
}

// Key is the dedup identity of a line: product plus its variant attributes,
// order-independent. Re-adding the same key merges quantities.
func (i CartItem) Key() string {
	return VariantKey(i.ProductID, i.Variant)
}

func VariantKey(productID int64, variant map[string]string) string {
	if len(variant) == 0 {
		return fmt.Sprintf("%d", productID)
	}

	keys := make([]string, 0, len(variant))
	for k := range variant {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "%d", productID)
	for _, k := range keys {
		fmt.Fprintf(&b, "|%s=%s", k, variant[k])
	}
	return b.String()
}

type Cart struct {
	ID           string         `bson:"_id,omitempty" json:"id"`
	CustomerID   string         `bson:"customer_id" json:"customer_id"`
	Items        []CartItem     `bson:"items" json:"items"`
	Totals       pricing.Totals `bson:"totals" json:"totals"`
	LastActivity time.Time      `bson:"last_activity" json:"last_activity"`
	// ExpiresAt is set only while the cart is empty; the store's TTL index
	// sweeps expired documents.
	ExpiresAt *time.Time `bson:"expires_at,omitempty" json:"-"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updated_at"`
}

// Lines converts items for the totals calculator.
func (c *Cart) Lines() []pricing.Line {
	lines := make([]pricing.Line, len(c.Items))
	for i, item := range c.Items {
		lines[i] = pricing.Line{UnitPrice: item.UnitPrice, Quantity: item.Quantity}
	}
	return lines
}

// Shortfall reports one line that cannot currently be covered by stock.
type Shortfall struct {
	ItemIndex int   `json:"item_index"`
	ProductID int64 `json:"product_id"`
	Requested int   `json:"requested"`
	Available int   `json:"available"`
}

package pricing

import "math"

// All amounts are integer minor units of the configured currency.

type Config struct {
	TaxRate               float64
	FreeShippingThreshold int64
	FlatShippingFee       int64
}

// DefaultConfig mirrors the storefront defaults: 18% tax, free shipping
// over 500, flat fee of 50 otherwise.
func DefaultConfig() Config {
	return Config{
		TaxRate:               0.18,
		FreeShippingThreshold: 500,
		FlatShippingFee:       50,
	}
}

type Line struct {
	UnitPrice int64
	Quantity  int
}

type Totals struct {
	TotalItems int   `json:"total_items" bson:"total_items"`
	Subtotal   int64 `json:"subtotal" bson:"subtotal"`
	Tax        int64 `json:"tax" bson:"tax"`
	Shipping   int64 `json:"shipping" bson:"shipping"`
	Total      int64 `json:"total" bson:"total"`
}

// Calculate derives totals from scratch on every call. Nothing is adjusted
// incrementally, so repeated calls over the same lines always agree.
func Calculate(cfg Config, lines []Line) Totals {
	var t Totals
	for _, l := range lines {
		t.TotalItems += l.Quantity
		t.Subtotal += l.UnitPrice * int64(l.Quantity)
	}

	t.Tax = roundHalfUp(float64(t.Subtotal) * cfg.TaxRate)
	if t.Subtotal > cfg.FreeShippingThreshold {
		t.Shipping = 0
	} else if t.Subtotal > 0 {
		t.Shipping = cfg.FlatShippingFee
	}
	t.Total = t.Subtotal + t.Tax + t.Shipping
	return t
}

func roundHalfUp(v float64) int64 {
	return int64(math.Floor(v + 0.5))
}

// Package audit reconciles inventory holds against the orders that are
// supposed to explain them. It only ever reads and reports; repairs stay a
// human decision because automated "fixes" are how the previous stock
// counters drifted in the first place.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/avolk/go_checkout/internal/inventory"
	"github.com/avolk/go_checkout/internal/order"
)

const (
	// DefaultGrace keeps freshly created orders out of the comparison; a
	// checkout mid-flight legitimately disagrees with the ledger for a
	// moment.
	DefaultGrace = 5 * time.Minute

	defaultInterval = 10 * time.Minute
)

// Warning flags one product whose reserved count in the ledger does not
// match the open orders holding it.
type Warning struct {
	ProductID      int64     `json:"product_id"`
	SKU            string    `json:"sku,omitempty"`
	LedgerReserved int       `json:"ledger_reserved"`
	OrdersReserved int       `json:"orders_reserved"`
	OrderIDs       []string  `json:"order_ids,omitempty"`
	DetectedAt     time.Time `json:"detected_at"`
}

// Sink receives warnings. Implementations decide whether that means a log
// line, a metric, or a ticket.
type Sink interface {
	Report(ctx context.Context, w Warning)
}

// LogSink writes warnings to the standard logger.
type LogSink struct{}

func (LogSink) Report(_ context.Context, w Warning) {
	log.Printf("AUDIT: product %d reserved mismatch: ledger=%d orders=%d (order ids: %v)",
		w.ProductID, w.LedgerReserved, w.OrdersReserved, w.OrderIDs)
}

type Auditor struct {
	orders   order.Repository
	ledger   inventory.Ledger
	sink     Sink
	grace    time.Duration
	interval time.Duration
}

func NewAuditor(orders order.Repository, ledger inventory.Ledger, sink Sink, grace, interval time.Duration) *Auditor {
	if sink == nil {
		sink = LogSink{}
	}
	if grace <= 0 {
		grace = DefaultGrace
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Auditor{orders: orders, ledger: ledger, sink: sink, grace: grace, interval: interval}
}

// Run blocks until ctx is cancelled.
func (a *Auditor) Run(ctx context.Context) {
	log.Printf("consistency auditor started (grace=%s interval=%s)", a.grace, a.interval)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("consistency auditor stopped")
			return
		case <-ticker.C:
			if _, err := a.AuditOnce(ctx); err != nil {
				log.Printf("consistency audit failed: %v", err)
			}
		}
	}
}

// AuditOnce runs a single scan and reports every mismatch to the sink.
func (a *Auditor) AuditOnce(ctx context.Context) ([]Warning, error) {
	cutoff := time.Now().Add(-a.grace)

	open, err := a.orders.ListReservingBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	type hold struct {
		qty      int
		orderIDs []string
	}
	expected := make(map[int64]*hold)
	for _, o := range open {
		for _, item := range o.Items {
			h, ok := expected[item.ProductID]
			if !ok {
				h = &hold{}
				expected[item.ProductID] = h
			}
			h.qty += item.Quantity
			h.orderIDs = append(h.orderIDs, o.ID)
		}
	}

	reserved, err := a.ledger.ListReserved(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var warnings []Warning

	// Ledger side: every hold must be explained by open orders.
	seen := make(map[int64]bool)
	for _, rec := range reserved {
		seen[rec.ProductID] = true
		h := expected[rec.ProductID]
		want := 0
		var ids []string
		if h != nil {
			want = h.qty
			ids = h.orderIDs
		}
		if rec.QuantityReserved != want {
			warnings = append(warnings, Warning{
				ProductID:      rec.ProductID,
				SKU:            rec.SKU,
				LedgerReserved: rec.QuantityReserved,
				OrdersReserved: want,
				OrderIDs:       ids,
				DetectedAt:     now,
			})
		}
	}

	// Order side: an open order whose hold vanished from the ledger means
	// stock was released (or oversold) out from under it.
	for productID, h := range expected {
		if seen[productID] {
			continue
		}
		warnings = append(warnings, Warning{
			ProductID:      productID,
			LedgerReserved: 0,
			OrdersReserved: h.qty,
			OrderIDs:       h.orderIDs,
			DetectedAt:     now,
		})
	}

	for _, w := range warnings {
		a.sink.Report(ctx, w)
	}
	if len(warnings) > 0 {
		log.Printf("consistency audit found %d mismatched product(s) across %d open order(s)", len(warnings), len(open))
	}
	return warnings, nil
}

package notify

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventOrderCreated     EventType = "order-created"
	EventPaymentSucceeded EventType = "payment-succeeded"
	EventPaymentFailed    EventType = "payment-failed"
	EventOrderCancelled   EventType = "order-cancelled"
)

type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	OrderID    string         `json:"order_id"`
	CustomerID string         `json:"customer_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload,omitempty"`
}

func NewEvent(t EventType, orderID, customerID string, payload map[string]any) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       t,
		OrderID:    orderID,
		CustomerID: customerID,
		OccurredAt: time.Now(),
		Payload:    payload,
	}
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Emit delivers fire-and-forget: a failed or slow notification is logged and
// never blocks or fails the state transition that produced it.
func Emit(p Publisher, evt Event) {
	if p == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.Publish(ctx, evt); err != nil {
			log.Printf("failed to publish %s event for order %s: %v", evt.Type, evt.OrderID, err)
		}
	}()
}

// Nop swallows events. Used in tests and when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerGateway wraps a Gateway with a circuit breaker and bounded
// exponential backoff for charge creation. Status lookups pass through the
// breaker without retries: Verify has its own idempotency and a lost lookup
// is retried by the caller's webhook redelivery.
type BreakerGateway struct {
	inner      Gateway
	charges    *gobreaker.CircuitBreaker[string]
	statuses   *gobreaker.CircuitBreaker[*GatewayResponse]
	maxRetries int
	baseDelay  time.Duration
}

func NewBreakerGateway(inner Gateway, maxRetries int, baseDelay time.Duration) *BreakerGateway {
	settings := gobreaker.Settings{
		Name:    "payment-gateway",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}

	return &BreakerGateway{
		inner:      inner,
		charges:    gobreaker.NewCircuitBreaker[string](settings),
		statuses:   gobreaker.NewCircuitBreaker[*GatewayResponse](settings),
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
	}
}

func (g *BreakerGateway) CreateCharge(ctx context.Context, amount int64, method string) (string, error) {
	delay := g.baseDelay
	var lastErr error

	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
				delay *= 2
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		correlationID, err := g.charges.Execute(func() (string, error) {
			return g.inner.CreateCharge(ctx, amount, method)
		})
		if err == nil {
			return correlationID, nil
		}
		lastErr = err
	}

	return "", fmt.Errorf("%w: charge failed after %d attempts: %v", ErrGateway, g.maxRetries+1, lastErr)
}

func (g *BreakerGateway) GetChargeStatus(ctx context.Context, correlationID string) (*GatewayResponse, error) {
	resp, err := g.statuses.Execute(func() (*GatewayResponse, error) {
		return g.inner.GetChargeStatus(ctx, correlationID)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: status lookup: %v", ErrGateway, err)
	}
	return resp, nil
}

package order

import (
	"context"
	"log"
	"time"
)

const (
	// DefaultPaymentTTL is how long an order may sit in awaiting_payment
	// before the sweeper cancels it and returns its stock.
	DefaultPaymentTTL = 15 * time.Minute

	defaultSweepInterval = time.Minute
)

// Sweeper cancels orders whose payment window has expired. It goes through
// Service.Cancel so expiry follows the same path as a manual cancellation:
// stock released, payment voided, event emitted.
type Sweeper struct {
	service  *Service
	repo     Repository
	ttl      time.Duration
	interval time.Duration
	onSweep  func(count int)
}

func NewSweeper(service *Service, repo Repository, ttl, interval time.Duration) *Sweeper {
	if ttl <= 0 {
		ttl = DefaultPaymentTTL
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{service: service, repo: repo, ttl: ttl, interval: interval}
}

// OnSweep registers a hook called after each pass with the number of orders
// cancelled. Used for metrics.
func (s *Sweeper) OnSweep(fn func(count int)) {
	s.onSweep = fn
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	log.Printf("payment sweeper started (ttl=%s interval=%s)", s.ttl, s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("payment sweeper stopped")
			return
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				log.Printf("payment sweep failed: %v", err)
			}
		}
	}
}

// SweepOnce performs a single pass and is safe to call directly from tests.
func (s *Sweeper) SweepOnce(ctx context.Context) error {
	cutoff := time.Now().Add(-s.ttl)
	stale, err := s.repo.ListAwaitingPaymentBefore(ctx, cutoff)
	if err != nil {
		return err
	}

	swept := 0
	for _, o := range stale {
		if err := s.service.Cancel(ctx, o.ID, "payment window expired"); err != nil {
			// A concurrent payment or cancellation may have won; skip it.
			log.Printf("sweeper could not cancel order %s: %v", o.ID, err)
			continue
		}
		swept++
	}
	if swept > 0 {
		log.Printf("payment sweeper cancelled %d expired order(s)", swept)
	}
	if s.onSweep != nil {
		s.onSweep(swept)
	}
	return nil
}

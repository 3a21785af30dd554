package order

import (
	"context"
	"sync"
	"time"

	"github.com/avolk/go_checkout/internal/cart"
	"github.com/avolk/go_checkout/internal/catalog"
	"github.com/avolk/go_checkout/internal/payment"
)

// memOrderRepo is an in-memory Repository with the same conditional-update
// semantics as the Postgres implementation.
type memOrderRepo struct {
	mu       sync.Mutex
	orders   map[string]*Order
	payments *memPaymentRepo
	failNext error // next CreateWithPayment returns this
}

func newMemOrderRepo(payments *memPaymentRepo) *memOrderRepo {
	return &memOrderRepo{orders: make(map[string]*Order), payments: payments}
}

func (r *memOrderRepo) CreateWithPayment(_ context.Context, o *Order, p *payment.Payment) error {
	r.mu.Lock()
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		r.mu.Unlock()
		return err
	}
	cp := *o
	r.orders[o.ID] = &cp
	r.mu.Unlock()
	r.payments.put(p)
	return nil
}

func (r *memOrderRepo) Get(_ context.Context, id string) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *memOrderRepo) ListByCustomer(_ context.Context, customerID string) ([]*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Order
	for _, o := range r.orders {
		if o.CustomerID == customerID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memOrderRepo) UpdateStatus(_ context.Context, id string, from []Status, to Status, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, f := range from {
		if o.Status == f {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	if to == StatusCancelled {
		now := time.Now()
		o.CancelledAt = &now
		o.CancellationReason = reason
	}
	return true, nil
}

func (r *memOrderRepo) ListAwaitingPaymentBefore(_ context.Context, cutoff time.Time) ([]*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Order
	for _, o := range r.orders {
		if o.Status == StatusAwaitingPayment && o.CreatedAt.Before(cutoff) {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memOrderRepo) ListReservingBefore(_ context.Context, cutoff time.Time) ([]*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Order
	for _, o := range r.orders {
		if (o.Status == StatusCreated || o.Status == StatusAwaitingPayment) && o.CreatedAt.Before(cutoff) {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

// memPaymentRepo mirrors the Postgres payment repository's transition gates.
type memPaymentRepo struct {
	mu       sync.Mutex
	payments map[string]*payment.Payment // by id
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{payments: make(map[string]*payment.Payment)}
}

func (r *memPaymentRepo) put(p *payment.Payment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.payments[p.ID] = &cp
}

func (r *memPaymentRepo) Get(_ context.Context, id string) (*payment.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, payment.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memPaymentRepo) GetByOrder(_ context.Context, orderID string) (*payment.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *payment.Payment
	for _, p := range r.payments {
		if p.OrderID != orderID {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, payment.ErrPaymentNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *memPaymentRepo) transition(id string, from []payment.Status, to payment.Status, correlationID string, attempt payment.Attempt) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return false, payment.ErrPaymentNotFound
	}
	matched := false
	for _, f := range from {
		if p.Status == f {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	p.Status = to
	if correlationID != "" {
		p.CorrelationID = correlationID
	}
	p.Attempts = append(p.Attempts, attempt)
	p.UpdatedAt = time.Now()
	return true, nil
}

func (r *memPaymentRepo) BeginProcessing(_ context.Context, id, correlationID string, attempt payment.Attempt) (bool, error) {
	return r.transition(id, []payment.Status{payment.StatusPending}, payment.StatusProcessing, correlationID, attempt)
}

func (r *memPaymentRepo) Resolve(_ context.Context, id string, to payment.Status, attempt payment.Attempt) (bool, error) {
	return r.transition(id, []payment.Status{payment.StatusPending, payment.StatusProcessing}, to, "", attempt)
}

func (r *memPaymentRepo) Void(_ context.Context, id string, attempt payment.Attempt) (bool, error) {
	return r.transition(id, []payment.Status{payment.StatusPending, payment.StatusProcessing}, payment.StatusCancelled, "", attempt)
}

func (r *memPaymentRepo) MarkRefunded(_ context.Context, id string, attempt payment.Attempt) (bool, error) {
	return r.transition(id, []payment.Status{payment.StatusSuccess}, payment.StatusRefunded, "", attempt)
}

// memCartRepo backs the cart service in tests.
type memCartRepo struct {
	mu    sync.Mutex
	carts map[string]*cart.Cart
}

func newMemCartRepo() *memCartRepo {
	return &memCartRepo{carts: make(map[string]*cart.Cart)}
}

func (r *memCartRepo) FindOrCreate(_ context.Context, customerID string) (*cart.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.carts[customerID]; ok {
		cp := *c
		return &cp, nil
	}
	now := time.Now()
	c := &cart.Cart{CustomerID: customerID, LastActivity: now, CreatedAt: now, UpdatedAt: now}
	r.carts[customerID] = c
	cp := *c
	return &cp, nil
}

func (r *memCartRepo) Get(_ context.Context, customerID string) (*cart.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.carts[customerID]
	if !ok {
		return nil, cart.ErrCartNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memCartRepo) Save(_ context.Context, c *cart.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.carts[c.CustomerID] = &cp
	return nil
}

func (r *memCartRepo) Delete(_ context.Context, customerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.carts, customerID)
	return nil
}

type nopCache struct{}

func (nopCache) Get(context.Context, string) (*cart.Cart, error) { return nil, cart.ErrCacheMiss }
func (nopCache) Set(context.Context, string, *cart.Cart) error   { return nil }
func (nopCache) Delete(context.Context, string) error            { return nil }

// stubCatalog serves fixed products.
type stubCatalog struct {
	products map[int64]*catalog.Product
}

func (c *stubCatalog) GetProduct(_ context.Context, id int64) (*catalog.Product, error) {
	p, ok := c.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

type stubRefunder struct {
	mu     sync.Mutex
	calls  []string
	err    error
	onCall func(paymentID string)
}

func (r *stubRefunder) Refund(_ context.Context, paymentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, paymentID)
	if r.onCall != nil {
		r.onCall(paymentID)
	}
	return r.err
}

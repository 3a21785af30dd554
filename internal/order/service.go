package order

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/avolk/go_checkout/internal/cart"
	"github.com/avolk/go_checkout/internal/inventory"
	"github.com/avolk/go_checkout/internal/notify"
	"github.com/avolk/go_checkout/internal/payment"
	"github.com/avolk/go_checkout/internal/pricing"
	"github.com/google/uuid"
)

// Refunder is the slice of the payment orchestrator the order machine needs
// when a paid order is cancelled.
type Refunder interface {
	Refund(ctx context.Context, paymentID string) error
}

type Service struct {
	repo     Repository
	payments payment.Repository
	carts    *cart.Service
	ledger   inventory.Ledger
	pricing  pricing.Config
	events   notify.Publisher
	refunder Refunder
}

func NewService(repo Repository, payments payment.Repository, carts *cart.Service, ledger inventory.Ledger, cfg pricing.Config, events notify.Publisher) *Service {
	return &Service{
		repo:     repo,
		payments: payments,
		carts:    carts,
		ledger:   ledger,
		pricing:  cfg,
		events:   events,
	}
}

// SetRefunder wires the payment orchestrator in after both sides exist.
func (s *Service) SetRefunder(r Refunder) {
	s.refunder = r
}

// Create materializes an order from the customer's cart: reserves every
// line, freezes the item snapshot and totals, and persists order plus
// pending payment in one transaction. Any reservation failure rolls back
// everything reserved in this attempt before the error surfaces.
func (s *Service) Create(ctx context.Context, customerID string, shipping, billing Address, method string) (*Order, error) {
	c, err := s.carts.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if len(c.Items) == 0 {
		return nil, ErrEmptyCart
	}

	reserved, stockErr, err := s.reserveAll(ctx, c.Items)
	if err != nil {
		s.releaseAll(ctx, reserved)
		return nil, err
	}
	if stockErr != nil {
		s.releaseAll(ctx, reserved)
		return nil, stockErr
	}

	now := time.Now()
	o := &Order{
		ID:              uuid.New().String(),
		CustomerID:      customerID,
		Items:           freezeItems(c.Items),
		ShippingAddress: shipping,
		BillingAddress:  billing,
		Totals:          pricing.Calculate(s.pricing, c.Lines()),
		Status:          StatusAwaitingPayment,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	p := &payment.Payment{
		ID:        uuid.New().String(),
		OrderID:   o.ID,
		Amount:    o.Totals.Total,
		Method:    method,
		Status:    payment.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.CreateWithPayment(ctx, o, p); err != nil {
		s.releaseAll(ctx, reserved)
		return nil, err
	}

	if err := s.carts.ClearCart(ctx, customerID); err != nil {
		// The order is already committed; a lingering cart is recoverable.
		log.Printf("order %s created but cart %s not cleared: %v", o.ID, customerID, err)
	}

	notify.Emit(s.events, notify.NewEvent(notify.EventOrderCreated, o.ID, customerID, map[string]any{
		"total":      o.Totals.Total,
		"item_count": len(o.Items),
	}))

	return o, nil
}

func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	return s.repo.Get(ctx, orderID)
}

func (s *Service) ListByCustomer(ctx context.Context, customerID string) ([]*Order, error) {
	return s.repo.ListByCustomer(ctx, customerID)
}

// Cancel releases the order's stock and records the reason. Paid orders are
// refunded through the orchestrator before anything else happens.
func (s *Service) Cancel(ctx context.Context, orderID, reason string) error {
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if !CanTransitionTo(o.Status, StatusCancelled) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, o.Status, StatusCancelled)
	}

	wasPaid := o.Status == StatusPaid
	if wasPaid {
		p, err := s.payments.GetByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if s.refunder == nil {
			return fmt.Errorf("cannot cancel paid order %s: no refunder configured", orderID)
		}
		if err := s.refunder.Refund(ctx, p.ID); err != nil {
			return fmt.Errorf("refund for order %s failed: %w", orderID, err)
		}
	}

	ok, err := s.repo.UpdateStatus(ctx, orderID,
		[]Status{StatusCreated, StatusAwaitingPayment, StatusPaid},
		StatusCancelled, reason)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: order %s already left a cancellable state", ErrIllegalTransition, orderID)
	}

	// Reserved holds and committed sales alike return to available; the
	// ledger floors the reserved counter for already-committed lines.
	for _, item := range o.Items {
		if err := s.ledger.Release(ctx, item.ProductID, item.Quantity); err != nil {
			return fmt.Errorf("failed to release stock for product %d on cancel: %w", item.ProductID, err)
		}
	}

	if !wasPaid {
		if p, err := s.payments.GetByOrder(ctx, orderID); err == nil {
			attempt := payment.Attempt{Kind: "void", Outcome: "order cancelled", At: time.Now()}
			if _, err := s.payments.Void(ctx, p.ID, attempt); err != nil {
				log.Printf("failed to void payment %s for cancelled order %s: %v", p.ID, orderID, err)
			}
		} else if !errors.Is(err, payment.ErrPaymentNotFound) {
			log.Printf("failed to load payment for cancelled order %s: %v", orderID, err)
		}
	}

	notify.Emit(s.events, notify.NewEvent(notify.EventOrderCancelled, orderID, o.CustomerID, map[string]any{
		"reason": reason,
	}))

	return nil
}

// MarkPaid is invoked by the payment orchestrator when a verified charge
// succeeds. The conditional status update is the gate: whoever loses it
// finds the order already resolved, and a repeat call for the same payment
// is a no-op so inventory commits exactly once.
func (s *Service) MarkPaid(ctx context.Context, orderID, paymentID string) error {
	if err := s.checkActivePayment(ctx, orderID, paymentID); err != nil {
		return err
	}

	ok, err := s.repo.UpdateStatus(ctx, orderID, []Status{StatusAwaitingPayment}, StatusPaid, "")
	if err != nil {
		return err
	}
	if !ok {
		o, err := s.repo.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status == StatusPaid {
			return nil // duplicate callback, already applied
		}
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, o.Status, StatusPaid)
	}

	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return err
	}
	for _, item := range o.Items {
		if err := s.ledger.Commit(ctx, item.ProductID, item.Quantity); err != nil {
			return fmt.Errorf("failed to commit stock for product %d: %w", item.ProductID, err)
		}
	}
	return nil
}

// MarkFailed is the failure counterpart: order to payment_failed, every
// reservation released. Same idempotency shape as MarkPaid.
func (s *Service) MarkFailed(ctx context.Context, orderID, paymentID string) error {
	if err := s.checkActivePayment(ctx, orderID, paymentID); err != nil {
		return err
	}

	ok, err := s.repo.UpdateStatus(ctx, orderID, []Status{StatusAwaitingPayment}, StatusPaymentFailed, "")
	if err != nil {
		return err
	}
	if !ok {
		o, err := s.repo.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status == StatusPaymentFailed {
			return nil
		}
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, o.Status, StatusPaymentFailed)
	}

	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return err
	}
	for _, item := range o.Items {
		if err := s.ledger.Release(ctx, item.ProductID, item.Quantity); err != nil {
			return fmt.Errorf("failed to release stock for product %d: %w", item.ProductID, err)
		}
	}
	return nil
}

// OrderForPayment implements payment.OrderControl.
func (s *Service) OrderForPayment(ctx context.Context, orderID string) (int64, bool, error) {
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return 0, false, err
	}
	return o.Totals.Total, o.Status == StatusAwaitingPayment, nil
}

// OrderRefundable implements payment.OrderControl.
func (s *Service) OrderRefundable(ctx context.Context, orderID string) (bool, error) {
	o, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return false, err
	}
	return o.Status == StatusPaid || o.Status == StatusCancelled, nil
}

// checkActivePayment rejects transition attempts that do not come from the
// order's active payment.
func (s *Service) checkActivePayment(ctx context.Context, orderID, paymentID string) error {
	p, err := s.payments.GetByOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if p.ID != paymentID {
		return fmt.Errorf("%w: payment %s is not the active payment for order %s", ErrIllegalTransition, paymentID, orderID)
	}
	return nil
}

// reserveAll attempts every line so a failing checkout can name all short
// items at once, not just the first.
func (s *Service) reserveAll(ctx context.Context, items []cart.CartItem) ([]cart.CartItem, *StockError, error) {
	var reserved []cart.CartItem
	var shortfalls []cart.Shortfall

	for i, item := range items {
		err := s.ledger.Reserve(ctx, item.ProductID, item.Quantity)
		if err == nil {
			reserved = append(reserved, item)
			continue
		}
		if errors.Is(err, inventory.ErrInsufficientStock) || errors.Is(err, inventory.ErrProductNotFound) {
			available := 0
			if rec, recErr := s.ledger.GetAvailability(ctx, item.ProductID); recErr == nil {
				available = rec.AvailableForSale()
			}
			shortfalls = append(shortfalls, cart.Shortfall{
				ItemIndex: i,
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: available,
			})
			continue
		}
		return reserved, nil, fmt.Errorf("failed to reserve product %d: %w", item.ProductID, err)
	}

	if len(shortfalls) > 0 {
		return reserved, &StockError{Shortfalls: shortfalls}, nil
	}
	return reserved, nil, nil
}

// releaseAll compensates a failed creation attempt. Release failures are
// logged, not returned: the auditor reconciles anything left behind.
func (s *Service) releaseAll(ctx context.Context, items []cart.CartItem) {
	for _, item := range items {
		if err := s.ledger.Release(ctx, item.ProductID, item.Quantity); err != nil {
			log.Printf("failed to roll back reservation for product %d: %v", item.ProductID, err)
		}
	}
}

func freezeItems(items []cart.CartItem) []Item {
	frozen := make([]Item, len(items))
	for i, item := range items {
		frozen[i] = Item{
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			Variant:   item.Variant,
		}
	}
	return frozen
}

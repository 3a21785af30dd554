package payment

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/avolk/go_checkout/internal/notify"
	"github.com/google/uuid"
)

// OrderControl is the slice of the order state machine the orchestrator is
// allowed to drive. The order service implements it; MarkPaid/MarkFailed are
// reachable only through this interface, so no other caller can fake a
// payment outcome.
type OrderControl interface {
	// OrderForPayment reports the order total and whether it currently
	// accepts a payment (awaiting_payment).
	OrderForPayment(ctx context.Context, orderID string) (total int64, payable bool, err error)

	// OrderRefundable reports whether the order may take a refund
	// (paid, or cancelled pending refund).
	OrderRefundable(ctx context.Context, orderID string) (bool, error)

	MarkPaid(ctx context.Context, orderID, paymentID string) error
	MarkFailed(ctx context.Context, orderID, paymentID string) error
}

// Result is the caller-facing outcome of a verification.
type Result struct {
	Payment *Payment
	// Duplicate is set when the callback matched an already-resolved
	// payment and nothing changed.
	Duplicate bool
	// Retryable tells the shopper whether a failed payment is worth
	// retrying or needs support.
	Retryable bool
	Reason    string
}

type Orchestrator struct {
	repo    Repository
	gateway Gateway
	orders  OrderControl
	events  notify.Publisher
}

func NewOrchestrator(repo Repository, gateway Gateway, orders OrderControl, events notify.Publisher) *Orchestrator {
	return &Orchestrator{
		repo:    repo,
		gateway: gateway,
		orders:  orders,
		events:  events,
	}
}

// Initiate asks the gateway for a charge and records the correlation id.
// Order status is untouched: the outcome only lands through Verify.
func (o *Orchestrator) Initiate(ctx context.Context, orderID, method string) (*Payment, error) {
	total, payable, err := o.orders.OrderForPayment(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !payable {
		return nil, ErrOrderNotPayable
	}

	p, err := o.repo.GetByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if p.Amount != total {
		return nil, fmt.Errorf("%w: payment %d vs order %d", ErrAmountMismatch, p.Amount, total)
	}
	if p.Status == StatusProcessing {
		return p, nil // charge already in flight
	}
	if p.Status != StatusPending {
		return nil, ErrIllegalPaymentState
	}

	correlationID, err := o.gateway.CreateCharge(ctx, p.Amount, method)
	if err != nil {
		// Order stays awaiting_payment with stock reserved; the TTL sweep
		// reclaims it if the shopper never comes back.
		return nil, err
	}

	ok, err := o.repo.BeginProcessing(ctx, p.ID, correlationID, Attempt{
		CorrelationID: correlationID,
		Kind:          "charge",
		Outcome:       "initiated",
		At:            time.Now(),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost a race with a concurrent initiate; that charge wins.
		return o.repo.Get(ctx, p.ID)
	}

	return o.repo.Get(ctx, p.ID)
}

// Verify settles a payment from a gateway response. Idempotent by
// correlation id: redelivered callbacks for a resolved payment change
// nothing, so inventory is committed or released exactly once.
func (o *Orchestrator) Verify(ctx context.Context, paymentID string, resp *GatewayResponse) (*Result, error) {
	p, err := o.repo.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	if p.Status.IsResolved() {
		if p.CorrelationID != "" && resp.CorrelationID == p.CorrelationID {
			return &Result{Payment: p, Duplicate: true}, nil
		}
		return nil, ErrCorrelationMismatch
	}

	outcome := StatusSuccess
	reason := resp.Reason
	retryable := resp.Retryable
	switch {
	case p.CorrelationID == "" || resp.CorrelationID != p.CorrelationID:
		outcome = StatusFailed
		reason = "correlation id mismatch"
		retryable = false
	case resp.Amount != p.Amount:
		outcome = StatusFailed
		reason = "amount mismatch"
		retryable = false
	case !resp.Success:
		outcome = StatusFailed
	}

	won, err := o.repo.Resolve(ctx, p.ID, outcome, Attempt{
		CorrelationID: resp.CorrelationID,
		Kind:          "verify",
		Outcome:       string(outcome),
		At:            time.Now(),
	})
	if err != nil {
		return nil, err
	}
	if !won {
		// A concurrent delivery of the same callback resolved it first.
		current, err := o.repo.Get(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		return &Result{Payment: current, Duplicate: true}, nil
	}

	if outcome == StatusSuccess {
		if err := o.orders.MarkPaid(ctx, p.OrderID, p.ID); err != nil {
			log.Printf("payment %s resolved but order %s not marked paid: %v", p.ID, p.OrderID, err)
			return nil, err
		}
		notify.Emit(o.events, notify.NewEvent(notify.EventPaymentSucceeded, p.OrderID, "", map[string]any{
			"payment_id": p.ID,
			"amount":     p.Amount,
		}))
	} else {
		if err := o.orders.MarkFailed(ctx, p.OrderID, p.ID); err != nil {
			log.Printf("payment %s failed but order %s not marked failed: %v", p.ID, p.OrderID, err)
			return nil, err
		}
		notify.Emit(o.events, notify.NewEvent(notify.EventPaymentFailed, p.OrderID, "", map[string]any{
			"payment_id": p.ID,
			"reason":     reason,
			"retryable":  retryable,
		}))
	}

	current, err := o.repo.Get(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &Result{Payment: current, Retryable: retryable, Reason: reason}, nil
}

// Refund records a refund for a captured payment. Inventory is deliberately
// untouched: a refunded-but-fulfilled order's stock already left the ledger.
func (o *Orchestrator) Refund(ctx context.Context, paymentID string) error {
	p, err := o.repo.Get(ctx, paymentID)
	if err != nil {
		return err
	}
	if p.Status != StatusSuccess {
		return ErrIllegalPaymentState
	}

	refundable, err := o.orders.OrderRefundable(ctx, p.OrderID)
	if err != nil {
		return err
	}
	if !refundable {
		return ErrIllegalPaymentState
	}

	ok, err := o.repo.MarkRefunded(ctx, p.ID, Attempt{
		CorrelationID: p.CorrelationID,
		Kind:          "refund",
		Outcome:       "refunded",
		At:            time.Now(),
	})
	if err != nil {
		return err
	}
	if !ok {
		return ErrIllegalPaymentState
	}
	return nil
}

// SimulateSuccess settles the payment as approved without a gateway round
// trip. It still flows through Verify, so tests and production share one
// idempotency and transition path.
func (o *Orchestrator) SimulateSuccess(ctx context.Context, paymentID string) (*Result, error) {
	return o.simulate(ctx, paymentID, true, "", false)
}

// SimulateFailure settles the payment as declined through the same path.
func (o *Orchestrator) SimulateFailure(ctx context.Context, paymentID string) (*Result, error) {
	return o.simulate(ctx, paymentID, false, "simulated decline", true)
}

func (o *Orchestrator) simulate(ctx context.Context, paymentID string, success bool, reason string, retryable bool) (*Result, error) {
	p, err := o.repo.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	correlationID := p.CorrelationID
	if correlationID == "" {
		// Never initiated: fabricate the charge leg first.
		correlationID = fmt.Sprintf("SIM-%s", uuid.New().String())
		if _, err := o.repo.BeginProcessing(ctx, p.ID, correlationID, Attempt{
			CorrelationID: correlationID,
			Kind:          "charge",
			Outcome:       "simulated",
			At:            time.Now(),
		}); err != nil {
			return nil, err
		}
	}

	return o.Verify(ctx, paymentID, &GatewayResponse{
		CorrelationID: correlationID,
		Amount:        p.Amount,
		Success:       success,
		Reason:        reason,
		Retryable:     retryable,
	})
}

package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRepo is an in-memory Repository with the same conditional-transition
// semantics as the Postgres one.
type mockRepo struct {
	mu       sync.Mutex
	payments map[string]*Payment
}

func newMockRepo() *mockRepo {
	return &mockRepo{payments: make(map[string]*Payment)}
}

func (r *mockRepo) put(p *Payment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.payments[p.ID] = &cp
}

func (r *mockRepo) Get(_ context.Context, id string) (*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *mockRepo) GetByOrder(_ context.Context, orderID string) (*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.OrderID == orderID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPaymentNotFound
}

func (r *mockRepo) transition(id string, from []Status, to Status, correlationID string, attempt Attempt) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return false, ErrPaymentNotFound
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

func (r *mockRepo) BeginProcessing(_ context.Context, id, correlationID string, attempt Attempt) (bool, error) {
	return r.transition(id, []Status{StatusPending}, StatusProcessing, correlationID, attempt)
}

func (r *mockRepo) Resolve(_ context.Context, id string, to Status, attempt Attempt) (bool, error) {
	return r.transition(id, []Status{StatusPending, StatusProcessing}, to, "", attempt)
}

func (r *mockRepo) Void(_ context.Context, id string, attempt Attempt) (bool, error) {
	return r.transition(id, []Status{StatusPending, StatusProcessing}, StatusCancelled, "", attempt)
}

func (r *mockRepo) MarkRefunded(_ context.Context, id string, attempt Attempt) (bool, error) {
	return r.transition(id, []Status{StatusSuccess}, StatusRefunded, "", attempt)
}

// mockOrders records which transitions the orchestrator drove.
type mockOrders struct {
	mu          sync.Mutex
	total       int64
	payable     bool
	refundable  bool
	paidCalls   int
	failedCalls int
}

func (m *mockOrders) OrderForPayment(context.Context, string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total, m.payable, nil
}

func (m *mockOrders) OrderRefundable(context.Context, string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refundable, nil
}

func (m *mockOrders) MarkPaid(context.Context, string, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paidCalls++
	m.payable = false
	return nil
}

func (m *mockOrders) MarkFailed(context.Context, string, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failedCalls++
	m.payable = false
	return nil
}

type orchFixture struct {
	repo    *mockRepo
	gateway *Simulator
	orders  *mockOrders
	orch    *Orchestrator
	payment *Payment
}

func newOrchFixture(outcome OutcomeSource) *orchFixture {
	repo := newMockRepo()
	gw := NewSimulator(outcome)
	orders := &mockOrders{total: 6608, payable: true}

	now := time.Now()
	p := &Payment{
		ID:        uuid.New().String(),
		OrderID:   uuid.New().String(),
		Amount:    6608,
		Method:    "card",
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	repo.put(p)

	return &orchFixture{
		repo:    repo,
		gateway: gw,
		orders:  orders,
		orch:    NewOrchestrator(repo, gw, orders, nil),
		payment: p,
	}
}

func TestInitiate_RecordsCorrelationAndProcessing(t *testing.T) {
	f := newOrchFixture(FixedOutcome{Success: true})
	ctx := context.Background()

	p, err := f.orch.Initiate(ctx, f.payment.OrderID, "card")
	require.NoError(t, err)

	assert.Equal(t, StatusProcessing, p.Status)
	assert.NotEmpty(t, p.CorrelationID)
	require.Len(t, p.Attempts, 1)
	assert.Equal(t, "charge", p.Attempts[0].Kind)
}

func TestInitiate_OrderNotPayable(t *testing.T) {
	f := newOrchFixture(FixedOutcome{Success: true})
	f.orders.payable = false

	_, err := f.orch.Initiate(context.Background(), f.payment.OrderID, "card")
	assert.ErrorIs(t, err, ErrOrderNotPayable)
}

func TestInitiate_AmountMismatch(t *testing.T) {
	f := newOrchFixture(FixedOutcome{Success: true})
	f.orders.total = 9999 // order total drifted from the recorded payment

	_, err := f.orch.Initiate(context.Background(), f.payment.OrderID, "card")
	assert.ErrorIs(t, err, ErrAmountMismatch)
}

func TestInitiate_AlreadyProcessingReturnsInFlightCharge(t *testing.T) {
	f := newOrchFixture(FixedOutcome{Success: true})
	ctx := context.Background()

	first, err := f.orch.Initiate(ctx, f.payment.OrderID, "card")
	require.NoError(t, err)
	second, err := f.orch.Initiate(ctx, f.payment.OrderID, "card")
	require.NoError(t, err)

	assert.Equal(t, first.CorrelationID, second.CorrelationID, "no second charge created")
}

func TestVerify_SuccessMarksOrderPaid(t *testing.T) {
	f := newOrchFixture(FixedOutcome{Success: true})
	ctx := context.Background()

	p, err := f.orch.Initiate(ctx, f.payment.OrderID, "card")
	require.NoError(t, err)
	resp, err := f.gateway.GetChargeStatus(ctx, p.CorrelationID)
	require.NoError(t, err)

	res, err := f.orch.Verify(ctx, p.ID, resp)
	require.NoError(t, err)

	assert.False(t, res.Duplicate)
	assert.Equal(t, StatusSuccess, res.Payment.Status)
	assert.Equal(t, 1, f.orders.paidCalls)
	assert.Equal(t, 0, f.orders.failedCalls)
}

func TestVerify_DuplicateCallbackIsNoOp(t *testing.T) {
	f := newOrchFixture(FixedOutcome{Success: true})
	ctx := context.Background()

	p, err := f.orch.Initiate(ctx, f.payment.OrderID, "card")
	require.NoError(t, err)
	resp, err := f.gateway.GetChargeStatus(ctx, p.CorrelationID)
	require.NoError(t, err)

	_, err = f.orch.Verify(ctx, p.ID, resp)
	require.NoError(t, err)
	res, err := f.orch.Verify(ctx, p.ID, resp)
	require.NoError(t, err)

	assert.True(t, res.Duplicate)
	assert.Equal(t, StatusSuccess, res.Payment.Status)
	assert.Equal(t, 1, f.orders.paidCalls, "order transition driven exactly once")
}

func TestVerify_DeclineMarksOrderFailed(t *testing.T) {
	f := newOrchFixture(FixedOutcome{Success: false, Reason: "insufficient funds", Retryable: true})
	ctx := context.Background()

	p, err := f.orch.Initiate(ctx, f.payment.OrderID, "card")
	require.NoError(t, err)
	resp, err := f.gateway.GetChargeStatus(ctx, p.CorrelationID)
	require.NoError(t, err)

	res, err := f.orch.Verify(ctx, p.ID, resp)
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, res.Payment.Status)
	assert.True(t, res.Retryable)
	assert.Equal(t, "insufficient funds", res.Reason)
	assert.Equal(t, 1, f.orders.failedCalls)
}

func TestVerify_CorrelationMismatchFailsPayment(t *testing.T) {
	f := newOrchFixture(FixedOutcome{Success: true})
	ctx := context.Background()

	p, err := f.orch.Initiate(ctx, f.payment.OrderID, "card")
	require.NoError(t, err)

	res, err := f.orch.Verify(ctx, p.ID, &GatewayResponse{
		CorrelationID: "SIM-forged",
		Amount:        p.Amount,
		Success:       true,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, res.Payment.Status)
	assert.False(t, res.Retryable)
	assert.Equal(t, 0, f.orders.paidCalls)
	assert.Equal(t, 1, f.orders.failedCalls)
}

func TestVerify_AmountMismatchFailsPayment(t *testing.T) {
	f := newOrchFixture(FixedOutcome{Success: true})
	ctx := context.Background()

	p, err := f.orch.Initiate(ctx, f.payment.OrderID, "card")
	require.NoError(t, err)

	res, err := f.orch.Verify(ctx, p.ID, &GatewayResponse{
		CorrelationID: p.CorrelationID,
		Amount:        p.Amount - 1,
		Success:       true,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, res.Payment.Status)
	assert.Equal(t, "amount mismatch", res.Reason)
}

func TestVerify_MismatchedCallbackAfterResolution(t *testing.T) {
	f := newOrchFixture(FixedOutcome{Success: true})
	ctx := context.Background()

	p, err := f.orch.Initiate(ctx, f.payment.OrderID, "card")
	require.NoError(t, err)
	resp, err := f.gateway.GetChargeStatus(ctx, p.CorrelationID)
	require.NoError(t, err)
	_, err = f.orch.Verify(ctx, p.ID, resp)
	require.NoError(t, err)

	_, err = f.orch.Verify(ctx, p.ID, &GatewayResponse{
		CorrelationID: "SIM-other",
		Amount:        p.Amount,
		Success:       true,
	})
	assert.ErrorIs(t, err, ErrCorrelationMismatch)
}

func TestRefund_SucceededPaymentOnRefundableOrder(t *testing.T) {
	f := newOrchFixture(FixedOutcome{Success: true})
	ctx := context.Background()

	p, err := f.orch.Initiate(ctx, f.payment.OrderID, "card")
	require.NoError(t, err)
	resp, err := f.gateway.GetChargeStatus(ctx, p.CorrelationID)
	require.NoError(t, err)
	_, err = f.orch.Verify(ctx, p.ID, resp)
	require.NoError(t, err)
	f.orders.refundable = true

	require.NoError(t, f.orch.Refund(ctx, p.ID))

	got, err := f.repo.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, got.Status)
}

func TestRefund_RejectsUnresolvedPayment(t *testing.T) {
	f := newOrchFixture(FixedOutcome{Success: true})

	err := f.orch.Refund(context.Background(), f.payment.ID)
	assert.ErrorIs(t, err, ErrIllegalPaymentState)
}

func TestRefund_RejectsNonRefundableOrder(t *testing.T) {
	f := newOrchFixture(FixedOutcome{Success: true})
	ctx := context.Background()

	p, err := f.orch.Initiate(ctx, f.payment.OrderID, "card")
	require.NoError(t, err)
	resp, err := f.gateway.GetChargeStatus(ctx, p.CorrelationID)
	require.NoError(t, err)
	_, err = f.orch.Verify(ctx, p.ID, resp)
	require.NoError(t, err)
	f.orders.refundable = false

	err = f.orch.Refund(ctx, p.ID)
	assert.ErrorIs(t, err, ErrIllegalPaymentState)
}

func TestSimulateSuccess_NeverInitiated(t *testing.T) {
	f := newOrchFixture(FixedOutcome{Success: true})

	res, err := f.orch.SimulateSuccess(context.Background(), f.payment.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, res.Payment.Status)
	assert.NotEmpty(t, res.Payment.CorrelationID)
	assert.Equal(t, 1, f.orders.paidCalls)
}

func TestSimulateFailure_SharesVerifyIdempotency(t *testing.T) {
	f := newOrchFixture(FixedOutcome{Success: true})
	ctx := context.Background()

	res, err := f.orch.SimulateFailure(ctx, f.payment.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Payment.Status)
	assert.True(t, res.Retryable)

	// A second simulation hits the resolved guard, not the order machine.
	res, err = f.orch.SimulateFailure(ctx, f.payment.ID)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, 1, f.orders.failedCalls)
}

func TestVerify_UnknownPayment(t *testing.T) {
	f := newOrchFixture(FixedOutcome{Success: true})

	_, err := f.orch.Verify(context.Background(), "missing", &GatewayResponse{})
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

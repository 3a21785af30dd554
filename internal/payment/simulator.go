package payment

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
)

// OutcomeSource decides how a simulated charge resolves.
type OutcomeSource interface {
	Outcome() (success bool, reason string, retryable bool)
}

// RandomOutcome approves most charges and declines the rest, roughly like a
// sandbox gateway.
type RandomOutcome struct{}

func (RandomOutcome) Outcome() (bool, string, bool) {
	n := rand.Intn(100)
	switch {
	case n < 95:
		return true, "", false
	case n < 98:
		return false, "insufficient funds", true
	default:
		return false, "card blocked", false
	}
}

// FixedOutcome always resolves the same way. Test wiring.
type FixedOutcome struct {
	Success   bool
	Reason    string
	Retryable bool
}

func (f FixedOutcome) Outcome() (bool, string, bool) {
	return f.Success, f.Reason, f.Retryable
}

// Simulator stands in for the real gateway. The outcome is fixed when the
// charge is created, so repeated status lookups for one correlation id
// always agree, like a real processor's record.
type Simulator struct {
	mu      sync.Mutex
	source  OutcomeSource
	charges map[string]*GatewayResponse
}

func NewSimulator(source OutcomeSource) *Simulator {
	return &Simulator{
		source:  source,
		charges: make(map[string]*GatewayResponse),
	}
}

func (s *Simulator) CreateCharge(_ context.Context, amount int64, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	correlationID := fmt.Sprintf("SIM-%s", uuid.New().String())
	success, reason, retryable := s.source.Outcome()
	s.charges[correlationID] = &GatewayResponse{
		CorrelationID: correlationID,
		Amount:        amount,
		Success:       success,
		Reason:        reason,
		Retryable:     retryable,
	}
	return correlationID, nil
}

func (s *Simulator) GetChargeStatus(_ context.Context, correlationID string) (*GatewayResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp, ok := s.charges[correlationID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown correlation id %s", ErrGateway, correlationID)
	}
	copied := *resp
	return &copied, nil
}

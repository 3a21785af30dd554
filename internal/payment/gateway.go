package payment

import "context"

// GatewayResponse is what a charge-status lookup or webhook callback
// carries. All responses are treated as untrusted until Verify matches them
// against the recorded amount and correlation id.
type GatewayResponse struct {
	CorrelationID string `json:"correlation_id"`
	Amount        int64  `json:"amount"`
	Success       bool   `json:"success"`
	Reason        string `json:"reason,omitempty"`
	// Retryable distinguishes "try again" declines from "contact support".
	Retryable bool `json:"retryable"`
}

// Gateway is the external charge processor. Implementations may be the real
// gateway client or the simulator; callers cannot tell them apart.
type Gateway interface {
	CreateCharge(ctx context.Context, amount int64, method string) (correlationID string, err error)
	GetChargeStatus(ctx context.Context, correlationID string) (*GatewayResponse, error)
}

package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/avolk/go_checkout/internal/metrics"
	"github.com/avolk/go_checkout/internal/payment"
	"github.com/go-chi/chi/v5"
)

type PaymentHandler struct {
	payments *payment.Orchestrator
	repo     payment.Repository
	metrics  *metrics.Set
}

func NewPaymentHandler(payments *payment.Orchestrator, repo payment.Repository, m *metrics.Set) *PaymentHandler {
	return &PaymentHandler{payments: payments, repo: repo, metrics: m}
}

func (h *PaymentHandler) countOutcome(res *payment.Result) {
	if h.metrics == nil || res == nil || res.Duplicate || res.Payment == nil {
		return
	}
	h.metrics.Payments.WithLabelValues(string(res.Payment.Status)).Inc()
}

type initiateRequestDTO struct {
	Method string `json:"method"`
}

type simulateRequestDTO struct {
	Outcome string `json:"outcome"` // success | failure
}

// Initiate asks the gateway to open a charge for the order's pending
// payment.
func (h *PaymentHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Method == "" {
		req.Method = "card"
	}

	p, err := h.payments.Initiate(r.Context(), chi.URLParam(r, "orderID"), req.Method)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, p)
}

func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.repo.Get(r.Context(), chi.URLParam(r, "paymentID"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *PaymentHandler) GetByOrder(w http.ResponseWriter, r *http.Request) {
	p, err := h.repo.GetByOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// Verify is the gateway callback endpoint. The raw response body is passed
// through untrusted; the orchestrator matches it against the recorded
// amount and correlation id.
func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var resp payment.GatewayResponse
	if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	res, err := h.payments.Verify(r.Context(), chi.URLParam(r, "paymentID"), &resp)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	h.countOutcome(res)
	respondJSON(w, http.StatusOK, res)
}

// Simulate settles the payment without a gateway round trip, through the
// same verification path real callbacks use.
func (h *PaymentHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	paymentID := chi.URLParam(r, "paymentID")
	var res *payment.Result
	var err error
	switch req.Outcome {
	case "success":
		res, err = h.payments.SimulateSuccess(r.Context(), paymentID)
	case "failure":
		res, err = h.payments.SimulateFailure(r.Context(), paymentID)
	default:
		respondError(w, http.StatusBadRequest, "invalid_outcome", "outcome must be success or failure")
		return
	}
	if err != nil {
		respondDomainError(w, err)
		return
	}
	h.countOutcome(res)
	respondJSON(w, http.StatusOK, res)
}

// Refund records a refund for a captured payment.
func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentID")
	if err := h.payments.Refund(r.Context(), paymentID); err != nil {
		respondDomainError(w, err)
		return
	}

	p, err := h.repo.Get(r.Context(), paymentID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/avolk/go_checkout/internal/metrics"
	"github.com/avolk/go_checkout/internal/order"
	"github.com/go-chi/chi/v5"
)

type OrderHandler struct {
	orders  *order.Service
	metrics *metrics.Set
}

func NewOrderHandler(orders *order.Service, m *metrics.Set) *OrderHandler {
	return &OrderHandler{orders: orders, metrics: m}
}

type checkoutRequestDTO struct {
	CustomerID      string        `json:"customer_id"`
	ShippingAddress order.Address `json:"shipping_address"`
	BillingAddress  order.Address `json:"billing_address"`
	PaymentMethod   string        `json:"payment_method"`
}

type cancelRequestDTO struct {
	Reason string `json:"reason"`
}

func (h *OrderHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.CustomerID == "" {
		respondError(w, http.StatusBadRequest, "missing_customer_id", "customer_id is required")
		return
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = "card"
	}

	o, err := h.orders.Create(r.Context(), req.CustomerID, req.ShippingAddress, req.BillingAddress, req.PaymentMethod)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.OrdersCreated.Inc()
	}
	respondJSON(w, http.StatusCreated, o)
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *OrderHandler) ListByCustomer(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListByCustomer(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if orders == nil {
		orders = []*order.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Reason == "" {
		req.Reason = "cancelled by customer"
	}

	orderID := chi.URLParam(r, "orderID")
	if err := h.orders.Cancel(r.Context(), orderID, req.Reason); err != nil {
		respondDomainError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.OrdersCancelled.WithLabelValues("manual").Inc()
	}

	o, err := h.orders.Get(r.Context(), orderID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

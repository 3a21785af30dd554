package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/avolk/go_checkout/internal/cart"
	"github.com/avolk/go_checkout/internal/catalog"
	"github.com/avolk/go_checkout/internal/inventory"
	"github.com/avolk/go_checkout/internal/order"
	"github.com/avolk/go_checkout/internal/payment"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// respondDomainError maps package sentinels onto HTTP statuses. Anything
// unmatched is a 500 with the detail kept out of the response body.
func respondDomainError(w http.ResponseWriter, err error) {
	var stockErr *order.StockError
	if errors.As(err, &stockErr) {
		respondJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "insufficient stock",
			Code:    "insufficient_stock",
			Details: stockErr.Shortfalls,
		})
		return
	}

	switch {
	case errors.Is(err, cart.ErrCartNotFound),
		errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, inventory.ErrProductNotFound),
		errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, payment.ErrPaymentNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, inventory.ErrInvalidQuantity):
		respondError(w, http.StatusBadRequest, "invalid_quantity", err.Error())
	case errors.Is(err, cart.ErrQuantityExceeded):
		respondError(w, http.StatusUnprocessableEntity, "quantity_limit", err.Error())
	case errors.Is(err, cart.ErrItemNotFound):
		respondError(w, http.StatusNotFound, "item_not_found", err.Error())
	case errors.Is(err, cart.ErrProductInactive):
		respondError(w, http.StatusUnprocessableEntity, "product_inactive", err.Error())
	case errors.Is(err, inventory.ErrInsufficientStock):
		respondError(w, http.StatusConflict, "insufficient_stock", err.Error())
	case errors.Is(err, inventory.ErrOverCapacity):
		respondError(w, http.StatusUnprocessableEntity, "over_capacity", err.Error())
	case errors.Is(err, order.ErrEmptyCart):
		respondError(w, http.StatusUnprocessableEntity, "empty_cart", err.Error())
	case errors.Is(err, order.ErrIllegalTransition),
		errors.Is(err, payment.ErrIllegalPaymentState),
		errors.Is(err, payment.ErrOrderNotPayable):
		respondError(w, http.StatusConflict, "illegal_state", err.Error())
	case errors.Is(err, payment.ErrAmountMismatch),
		errors.Is(err, payment.ErrCorrelationMismatch):
		respondError(w, http.StatusUnprocessableEntity, "verification_mismatch", err.Error())
	case errors.Is(err, payment.ErrGateway):
		respondError(w, http.StatusBadGateway, "gateway_error", "payment gateway unavailable")
	default:
		log.Printf("internal error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/avolk/go_checkout/internal/inventory"
	"github.com/go-chi/chi/v5"
)

type InventoryHandler struct {
	ledger inventory.Ledger
}

func NewInventoryHandler(ledger inventory.Ledger) *InventoryHandler {
	return &InventoryHandler{ledger: ledger}
}

type restockRequestDTO struct {
	Quantity int `json:"quantity"`
}

func (h *InventoryHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product id must be an integer")
		return
	}

	rec, err := h.ledger.GetAvailability(r.Context(), productID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"product_id":         rec.ProductID,
		"sku":                rec.SKU,
		"available_for_sale": rec.AvailableForSale(),
		"reserved":           rec.QuantityReserved,
		"low_stock":          rec.IsLowStock(),
		"out_of_stock":       rec.IsOutOfStock(),
	})
}

// ListLowStock returns records at or below ?threshold=N; without the
// parameter each record's own reorder level applies.
func (h *InventoryHandler) ListLowStock(w http.ResponseWriter, r *http.Request) {
	threshold := -1
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid_threshold", "threshold must be a non-negative integer")
			return
		}
		threshold = n
	}

	records, err := h.ledger.ListLowStock(r.Context(), threshold)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if records == nil {
		records = []inventory.Record{}
	}
	respondJSON(w, http.StatusOK, records)
}

func (h *InventoryHandler) Restock(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product id must be an integer")
		return
	}

	var req restockRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if err := h.ledger.Restock(r.Context(), productID, req.Quantity); err != nil {
		respondDomainError(w, err)
		return
	}

	rec, err := h.ledger.GetAvailability(r.Context(), productID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

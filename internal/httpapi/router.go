// Package httpapi is the thin HTTP surface over the checkout core. Handlers
// decode, delegate, and map domain sentinels to statuses; no business rules
// live here.
package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/avolk/go_checkout/internal/cart"
	"github.com/avolk/go_checkout/internal/inventory"
	"github.com/avolk/go_checkout/internal/metrics"
	"github.com/avolk/go_checkout/internal/order"
	"github.com/avolk/go_checkout/internal/payment"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Deps struct {
	Carts    *cart.Service
	Orders   *order.Service
	Payments *payment.Orchestrator
	PayRepo  payment.Repository
	Ledger   inventory.Ledger
	Metrics  *metrics.Set
}

func NewRouter(d Deps) http.Handler {
	cartH := NewCartHandler(d.Carts)
	orderH := NewOrderHandler(d.Orders, d.Metrics)
	paymentH := NewPaymentHandler(d.Payments, d.PayRepo, d.Metrics)
	inventoryH := NewInventoryHandler(d.Ledger)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(30 * time.Second))
	if d.Metrics != nil {
		r.Use(metricsMiddleware(d.Metrics))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/carts/{customerID}", func(r chi.Router) {
			r.Get("/", cartH.Get)
			r.Delete("/", cartH.Clear)
			r.Post("/items", cartH.AddItem)
			r.Put("/items", cartH.UpdateItem)
			r.Delete("/items", cartH.RemoveItem)
			r.Get("/validate", cartH.Validate)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", orderH.Checkout)
			r.Get("/{orderID}", orderH.Get)
			r.Post("/{orderID}/cancel", orderH.Cancel)
			r.Post("/{orderID}/payment", paymentH.Initiate)
			r.Get("/{orderID}/payment", paymentH.GetByOrder)
		})

		r.Get("/customers/{customerID}/orders", orderH.ListByCustomer)

		r.Route("/payments/{paymentID}", func(r chi.Router) {
			r.Get("/", paymentH.Get)
			r.Post("/verify", paymentH.Verify)
			r.Post("/simulate", paymentH.Simulate)
			r.Post("/refund", paymentH.Refund)
		})

		r.Route("/inventory", func(r chi.Router) {
			r.Get("/low-stock", inventoryH.ListLowStock)
			r.Get("/{productID}", inventoryH.GetAvailability)
			r.Post("/{productID}/restock", inventoryH.Restock)
		})
	})

	return r
}

func metricsMiddleware(m *metrics.Set) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			pattern := chi.RouteContext(r.Context()).RoutePattern()
			if pattern == "" {
				pattern = "unmatched"
			}
			handler := r.Method + " " + pattern
			m.Requests.WithLabelValues(handler, strconv.Itoa(ww.Status())).Inc()
			m.LatencyMS.WithLabelValues(handler).Observe(float64(time.Since(start).Milliseconds()))
		})
	}
}

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Set holds the checkout server's instruments. One Set per process.
type Set struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec

	OrdersCreated   prometheus.Counter
	OrdersCancelled *prometheus.CounterVec
	Payments        *prometheus.CounterVec
	SweptOrders     prometheus.Counter
	AuditWarnings   prometheus.Counter
}

func New(reg prometheus.Registerer) *Set {
	s := &Set{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkout",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"handler", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "checkout",
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"handler"}),
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "checkout",
			Name:      "orders_created_total",
			Help:      "Orders successfully materialized from carts.",
		}),
		OrdersCancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkout",
			Name:      "orders_cancelled_total",
			Help:      "Orders cancelled, by origin (manual or sweeper).",
		}, []string{"origin"}),
		Payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "checkout",
			Name:      "payments_total",
			Help:      "Resolved payments by outcome.",
		}, []string{"outcome"}),
		SweptOrders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "checkout",
			Name:      "swept_orders_total",
			Help:      "Orders auto-cancelled after the payment window expired.",
		}),
		AuditWarnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "checkout",
			Name:      "audit_warnings_total",
			Help:      "Inventory holds the consistency audit could not explain.",
		}),
	}

	reg.MustRegister(
		s.Requests, s.LatencyMS,
		s.OrdersCreated, s.OrdersCancelled, s.Payments,
		s.SweptOrders, s.AuditWarnings,
	)
	return s
}

func Handler() http.Handler {
	return promhttp.Handler()
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides process-wide observability for the storefront gateway.
// Module-specific metrics (relay, orders) hang off this one struct so both
// binaries register against the default registry exactly once.
type Metrics struct {
	RelayRequests   *prometheus.CounterVec
	RelayDuration   prometheus.Histogram
	LoginsTotal     *prometheus.CounterVec
	OrdersCreated   prometheus.Counter
	OrdersSubmitted prometheus.Counter
	OrdersResolved  *prometheus.CounterVec
	CSRFRejected    prometheus.Counter
}

// New registers and returns all gateway metrics.
func New() *Metrics {
	return &Metrics{
		RelayRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "libreria_relay_requests_total",
			Help: "Proxied requests by method and status class",
		}, []string{"method", "status_class"}),
		RelayDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "libreria_relay_request_duration_seconds",
			Help:    "Duration of proxied requests",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		LoginsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "libreria_logins_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
		OrdersCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "libreria_orders_created_total",
			Help: "Draft orders created",
		}),
		OrdersSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "libreria_orders_submitted_total",
			Help: "Orders submitted with proof of payment",
		}),
		OrdersResolved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "libreria_orders_resolved_total",
			Help: "Submitted orders resolved by an administrator",
		}, []string{"status"}),
		CSRFRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "libreria_csrf_rejected_total",
			Help: "Mutating requests rejected by CSRF validation",
		}),
	}
}

// ObserveRelay records one proxied request.
func (m *Metrics) ObserveRelay(method string, status int, start time.Time) {
	m.RelayRequests.WithLabelValues(method, statusClass(status)).Inc()
	m.RelayDuration.Observe(time.Since(start).Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

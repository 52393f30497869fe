package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "orders_api"

// Metrics owns a Prometheus registry with HTTP and order workflow collectors. It
// satisfies services.Metrics.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	ordersCreated     *prometheus.CounterVec
	reconciliations   *prometheus.CounterVec
	callbacksRejected *prometheus.CounterVec
}

// NewMetrics registers the collectors on a fresh registry, including Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "orders_created_total",
			Help:      "Order creation attempts by result.",
		}, []string{"result"}),
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "payment_reconciliations_total",
			Help:      "Payment outcomes applied by source and outcome.",
		}, []string{"source", "outcome"}),
		callbacksRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "payment_callbacks_rejected_total",
			Help:      "Gateway callbacks rejected before reconciliation, by reason.",
		}, []string{"reason"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpLatency,
		m.ordersCreated,
		m.reconciliations,
		m.callbacksRejected,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) OrderCreated(result string) {
	m.ordersCreated.WithLabelValues(result).Inc()
}

func (m *Metrics) PaymentReconciled(source, outcome string) {
	m.reconciliations.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) CallbackRejected(reason string) {
	m.callbacksRejected.WithLabelValues(reason).Inc()
}

// ObserveHTTP records a completed request.
func (m *Metrics) ObserveHTTP(method, route string, status int, latency time.Duration) {
	method, route = SanitizeMethod(method), SanitizeRoute(route)
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(latency.Seconds())
}

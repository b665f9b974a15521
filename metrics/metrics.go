// Package metrics holds the Prometheus collectors of the API node.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medichain"

// Completion paths of an order
const (
	CompletionStatusUpdate = "status_update"
	CompletionDelivery     = "delivery"
	CompletionPayment      = "payment"
	CompletionWebhook      = "webhook"
)

type Metrics struct {
	registry *prometheus.Registry

	requests             *prometheus.CounterVec
	requestDuration      *prometheus.HistogramVec
	ordersCreated        *prometheus.CounterVec
	ordersCompleted      *prometheus.CounterVec
	paymentVerifications *prometheus.CounterVec
	ledgerSubmissions    *prometheus.CounterVec
}

// New creates the collectors on a dedicated registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency by method and route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Orders created, split by emergency flag.",
		}, []string{"emergency"}),
		ordersCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_completed_total",
			Help:      "Orders moved to completed, by completion path.",
		}, []string{"path"}),
		paymentVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_verifications_total",
			Help:      "Gateway signature checks by kind and result.",
		}, []string{"kind", "result"}),
		ledgerSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_submissions_total",
			Help:      "Ledger transactions submitted by type and result.",
		}, []string{"type", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.requestDuration,
		m.ordersCreated,
		m.ordersCompleted,
		m.paymentVerifications,
		m.ledgerSubmissions,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mostly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) OrderCreated(emergency bool) {
	if m == nil {
		return
	}
	m.ordersCreated.WithLabelValues(strconv.FormatBool(emergency)).Inc()
}

func (m *Metrics) OrderCompleted(path string) {
	if m == nil {
		return
	}
	m.ordersCompleted.WithLabelValues(path).Inc()
}

// PaymentVerification records a signature check; kind is "payment" or "webhook"
func (m *Metrics) PaymentVerification(kind string, ok bool) {
	if m == nil {
		return
	}
	result := "valid"
	if !ok {
		result = "invalid"
	}
	m.paymentVerifications.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) LedgerSubmission(txType string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ledgerSubmissions.WithLabelValues(txType, result).Inc()
}

package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "handover"

// Metrics wraps the Prometheus collectors of the bot and its ops API.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	httpErrors         *prometheus.CounterVec
	escalations        *prometheus.CounterVec
	claims             *prometheus.CounterVec
	dialogsEnded       prometheus.Counter
	relayedMessages    prometheus.Counter
	adminRegistrations *prometheus.CounterVec
	storeErrors        *prometheus.CounterVec
}

// NewMetrics registers all collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Ops API requests by path, method and status.",
		}, []string{"path", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Ops API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method"}),
		httpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "Ops API errors by domain error code.",
		}, []string{"path", "method", "code"}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Escalation requests by enqueue outcome.",
		}, []string{"outcome"}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_total",
			Help:      "Operator claims by result.",
		}, []string{"result"}),
		dialogsEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialogs_ended_total",
			Help:      "Dialogs torn down by either participant.",
		}),
		relayedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relayed_messages_total",
			Help:      "Messages forwarded between dialog participants.",
		}),
		adminRegistrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_registrations_total",
			Help:      "Admin elevation attempts by result.",
		}, []string{"result"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Durable store failures by document.",
		}, []string{"document"}),
	}
	reg.MustRegister(
		m.httpRequests, m.httpDuration, m.httpErrors,
		m.escalations, m.claims, m.dialogsEnded, m.relayedMessages,
		m.adminRegistrations, m.storeErrors,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest counts an ops API request.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError counts an ops API failure by domain code.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.httpErrors.WithLabelValues(path, method, code).Inc()
}

func (m *Metrics) RecordEscalation(outcome string) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordClaim(result string) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordDialogEnded() {
	if m == nil {
		return
	}
	m.dialogsEnded.Inc()
}

func (m *Metrics) RecordRelay() {
	if m == nil {
		return
	}
	m.relayedMessages.Inc()
}

func (m *Metrics) RecordAdminRegistration(result string) {
	if m == nil {
		return
	}
	m.adminRegistrations.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordStoreError(document string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(document).Inc()
}

package observability

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aggsync"

// Metrics owns a private Prometheus registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge
	apiAggCalls *prometheus.CounterVec

	aggOperations *prometheus.HistogramVec
	aggConflicts  *prometheus.CounterVec
	aggRetries    *prometheus.CounterVec
	aggRecomputes *prometheus.CounterVec
	aggRecompute  *prometheus.HistogramVec

	eventsPublished *prometheus.CounterVec
}

// Enabled reports whether METRICS_ENABLED asks for a /metrics endpoint.
func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return true
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of admin API requests",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Duration of admin API requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_in_flight",
			Help:      "Number of admin API requests being served",
		}),
		apiAggCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "aggregate_requests_total",
			Help:      "Admin API requests addressed to one aggregate definition",
		}, []string{"definition", "status"}),
		aggOperations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "operation_duration_seconds",
			Help:      "Duration of aggregate write operations by status",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		}, []string{"operation", "status"}),
		aggConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "conflicts_total",
			Help:      "Aggregate writes rejected by a concurrent change",
		}, []string{"operation"}),
		aggRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "retryable_failures_total",
			Help:      "Aggregate writes that failed with a retryable error",
		}, []string{"operation"}),
		aggRecomputes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "recomputes_total",
			Help:      "Parent recomputations by definition and outcome",
		}, []string{"definition", "outcome"}),
		aggRecompute: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "recompute_duration_seconds",
			Help:      "Duration of a single parent recomputation",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"definition"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Aggregate change events published by channel and status",
		}, []string{"channel", "status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests,
		m.apiLatency,
		m.apiInflight,
		m.apiAggCalls,
		m.aggOperations,
		m.aggConflicts,
		m.aggRetries,
		m.aggRecomputes,
		m.aggRecompute,
		m.eventsPublished,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

// IncAggregateRequest counts an admin call for definition. Callers pass "unknown" for
// names that did not resolve so the label stays bounded by the registry.
func (m *Metrics) IncAggregateRequest(definition, status string) {
	if m == nil {
		return
	}
	if definition == "" {
		definition = "unknown"
	}
	m.apiAggCalls.WithLabelValues(definition, status).Inc()
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveAggregateOperation(op, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.aggOperations.WithLabelValues(op, status).Observe(dur.Seconds())
}

func (m *Metrics) IncAggregateConflict(op string) {
	if m == nil {
		return
	}
	m.aggConflicts.WithLabelValues(op).Inc()
}

func (m *Metrics) IncAggregateRetry(op string) {
	if m == nil {
		return
	}
	m.aggRetries.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveAggregateRecompute(definition, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.aggRecomputes.WithLabelValues(definition, outcome).Inc()
	m.aggRecompute.WithLabelValues(definition).Observe(dur.Seconds())
}

func (m *Metrics) IncEventPublished(channel, status string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(channel, status).Inc()
}

package metrics

import (
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRegistry owns the collectors backing the prometheus hook implementations. Hooks for
// different sources share the same collectors, distinguished by a "source" label.
type PrometheusRegistry struct {
	registry *prometheus.Registry

	cxEvents        *prometheus.CounterVec
	cxLatency       *prometheus.HistogramVec
	ioEvents        *prometheus.CounterVec
	queries         *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	recursions      *prometheus.CounterVec
	upstreamLatency prometheus.Histogram
	rtt             prometheus.Histogram
	responseSize    prometheus.Histogram
	errors          prometheus.Counter
}

// PrometheusConnectionLifecycleHook is a ConnectionLifecycleHook backed by prometheus collectors.
type PrometheusConnectionLifecycleHook struct {
	registry *PrometheusRegistry
	source   string
}

// PrometheusConnectionIOHook is a ConnectionIOHook backed by prometheus collectors.
type PrometheusConnectionIOHook struct {
	registry *PrometheusRegistry
	source   string
}

// PrometheusWhoisHook is a WhoisHook backed by prometheus collectors.
type PrometheusWhoisHook struct {
	registry *PrometheusRegistry
}

// NewPrometheusRegistry creates a registry with all uwhoisd collectors plus the standard process
// and Go runtime collectors.
func NewPrometheusRegistry() *PrometheusRegistry {
	r := &PrometheusRegistry{
		registry: prometheus.NewRegistry(),
		cxEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uwhoisd",
			Name:      "connection_events_total",
			Help:      "Connection lifecycle events by source and event.",
		}, []string{"source", "event"}),
		cxLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "uwhoisd",
			Name:      "connection_open_seconds",
			Help:      "Latency of establishing connections by source.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		ioEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uwhoisd",
			Name:      "io_events_total",
			Help:      "Connection I/O failures by source and event.",
		}, []string{"source", "event"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uwhoisd",
			Name:      "queries_total",
			Help:      "Client queries by outcome.",
		}, []string{"outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uwhoisd",
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by result.",
		}, []string{"result"}),
		recursions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uwhoisd",
			Name:      "recursions_total",
			Help:      "Thin registry referrals followed, by zone.",
		}, []string{"zone"}),
		upstreamLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "uwhoisd",
			Name:      "upstream_query_seconds",
			Help:      "Latency of single upstream query legs.",
			Buckets:   prometheus.DefBuckets,
		}),
		rtt: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "uwhoisd",
			Name:      "query_rtt_seconds",
			Help:      "End-to-end latency of serving client queries.",
			Buckets:   prometheus.DefBuckets,
		}),
		responseSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "uwhoisd",
			Name:      "response_size_bytes",
			Help:      "Size of responses written to clients.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "uwhoisd",
			Name:      "errors_total",
			Help:      "Queries that could not be correctly served.",
		}),
	}

	r.registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
		r.cxEvents,
		r.cxLatency,
		r.ioEvents,
		r.queries,
		r.cacheLookups,
		r.recursions,
		r.upstreamLatency,
		r.rtt,
		r.responseSize,
		r.errors,
	)

	return r
}

// Handler serves the registry in the prometheus exposition format.
func (r *PrometheusRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ConnectionLifecycleHook creates a lifecycle hook for the given source.
func (r *PrometheusRegistry) ConnectionLifecycleHook(source string) ConnectionLifecycleHook {
	return &PrometheusConnectionLifecycleHook{registry: r, source: source}
}

// ConnectionIOHook creates an I/O hook for the given source.
func (r *PrometheusRegistry) ConnectionIOHook(source string) ConnectionIOHook {
	return &PrometheusConnectionIOHook{registry: r, source: source}
}

// WhoisHook creates the query lifecycle hook.
func (r *PrometheusRegistry) WhoisHook() WhoisHook {
	return &PrometheusWhoisHook{registry: r}
}

// EmitConnectionOpen prometheus implementation
func (h *PrometheusConnectionLifecycleHook) EmitConnectionOpen(latency time.Duration, addr net.Addr) {
	h.registry.cxEvents.WithLabelValues(h.source, "cx_open").Inc()

	if latency > 0 {
		h.registry.cxLatency.WithLabelValues(h.source).Observe(latency.Seconds())
	}
}

// EmitConnectionClose prometheus implementation
func (h *PrometheusConnectionLifecycleHook) EmitConnectionClose(addr net.Addr) {
	h.registry.cxEvents.WithLabelValues(h.source, "cx_close").Inc()
}

// EmitConnectionError prometheus implementation
func (h *PrometheusConnectionLifecycleHook) EmitConnectionError() {
	h.registry.cxEvents.WithLabelValues(h.source, "cx_error").Inc()
}

// EmitReadError prometheus implementation
func (h *PrometheusConnectionIOHook) EmitReadError(addr net.Addr) {
	h.registry.ioEvents.WithLabelValues(h.source, "read_error").Inc()
}

// EmitWriteError prometheus implementation
func (h *PrometheusConnectionIOHook) EmitWriteError(addr net.Addr) {
	h.registry.ioEvents.WithLabelValues(h.source, "write_error").Inc()
}

// EmitTimeout prometheus implementation
func (h *PrometheusConnectionIOHook) EmitTimeout(addr net.Addr) {
	h.registry.ioEvents.WithLabelValues(h.source, "io_timeout").Inc()
}

// EmitQuery prometheus implementation
func (h *PrometheusWhoisHook) EmitQuery(outcome string, client net.Addr) {
	h.registry.queries.WithLabelValues(outcome).Inc()
}

// EmitCacheHit prometheus implementation
func (h *PrometheusWhoisHook) EmitCacheHit() {
	h.registry.cacheLookups.WithLabelValues("hit").Inc()
}

// EmitCacheMiss prometheus implementation
func (h *PrometheusWhoisHook) EmitCacheMiss() {
	h.registry.cacheLookups.WithLabelValues("miss").Inc()
}

// EmitRecursion prometheus implementation
func (h *PrometheusWhoisHook) EmitRecursion(zone string) {
	h.registry.recursions.WithLabelValues(zone).Inc()
}

// EmitUpstreamLatency prometheus implementation
func (h *PrometheusWhoisHook) EmitUpstreamLatency(latency time.Duration, server string) {
	h.registry.upstreamLatency.Observe(latency.Seconds())
}

// EmitRTT prometheus implementation
func (h *PrometheusWhoisHook) EmitRTT(latency time.Duration, client net.Addr) {
	h.registry.rtt.Observe(latency.Seconds())
}

// EmitResponseSize prometheus implementation
func (h *PrometheusWhoisHook) EmitResponseSize(bytes int64, client net.Addr) {
	h.registry.responseSize.Observe(float64(bytes))
}

// EmitError prometheus implementation
func (h *PrometheusWhoisHook) EmitError() {
	h.registry.errors.Inc()
}

// Package metrics exposes the pipeline's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "marketpulse"

// Cycle outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeDegraded = "degraded"
	OutcomeFailed   = "failed"
)

// Skip reasons.
const (
	SkipBusy    = "busy"
	SkipBackoff = "backoff"
)

// Metrics owns a registry so that several instances can coexist in tests.
type Metrics struct {
	Registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	cycleDuration *prometheus.HistogramVec
	skippedTicks  *prometheus.CounterVec
	discarded     *prometheus.CounterVec
	fieldErrors   *prometheus.CounterVec
	staleFields   prometheus.Gauge
	version       prometheus.Gauge
	publishes     prometheus.Counter
	subscribers   prometheus.Gauge

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "cycles_total",
			Help:      "Provider refresh cycles by outcome.",
		}, []string{"provider", "outcome"}),
		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of provider fetch and normalize cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		}, []string{"provider"}),
		skippedTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "skipped_ticks_total",
			Help:      "Ticks skipped because a cycle was running or the provider was backing off.",
		}, []string{"provider", "reason"}),
		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "discarded_results_total",
			Help:      "Completed cycles dropped because the selection changed while they ran.",
		}, []string{"provider"}),
		fieldErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "normalize",
			Name:      "field_errors_total",
			Help:      "Fields that could not be normalized.",
		}, []string{"provider", "format"}),
		staleFields: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "stale_fields",
			Help:      "Fields flagged stale in the current snapshot.",
		}),
		version: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "version",
			Help:      "Version of the current snapshot.",
		}),
		publishes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "publishes_total",
			Help:      "Snapshots published.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "subscribers",
			Help:      "Open snapshot stream connections.",
		}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"method", "path"}),
	}
	m.Registry.MustRegister(
		m.cycles,
		m.cycleDuration,
		m.skippedTicks,
		m.discarded,
		m.fieldErrors,
		m.staleFields,
		m.version,
		m.publishes,
		m.subscribers,
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) RecordCycle(provider, outcome string, d time.Duration) {
	m.cycles.WithLabelValues(provider, outcome).Inc()
	m.cycleDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *Metrics) SkippedTick(provider, reason string) {
	m.skippedTicks.WithLabelValues(provider, reason).Inc()
}

func (m *Metrics) Discarded(provider string) {
	m.discarded.WithLabelValues(provider).Inc()
}

func (m *Metrics) FieldErrors(provider, format string, n int) {
	if n > 0 {
		m.fieldErrors.WithLabelValues(provider, format).Add(float64(n))
	}
}

func (m *Metrics) SnapshotPublished(version uint64, stale int) {
	m.publishes.Inc()
	m.version.Set(float64(version))
	m.staleFields.Set(float64(stale))
}

func (m *Metrics) StreamOpened() { m.subscribers.Inc() }
func (m *Metrics) StreamClosed() { m.subscribers.Dec() }

// Handler exposes the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler records request metrics. Paths are labelled by route
// template when served through a mux router.
func (m *Metrics) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" || strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		path := routeLabel(r)
		method := strings.ToUpper(r.Method)
		m.httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	unknownRoles    *prometheus.CounterVec
	reloads         *prometheus.CounterVec
	snapshotRows    prometheus.Gauge
}

// NewMetrics builds a private registry with the Go runtime, process, HTTP and
// registry collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(registry)
	return &Metrics{
		registry: registry,
		handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeboard_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"route", "code"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradeboard_http_request_duration_seconds",
			Help:    "HTTP request duration per route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		unknownRoles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeboard_registry_unknown_role_total",
			Help: "Views evaluated for identities with an unrecognised role.",
		}, []string{"role"}),
		reloads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeboard_registry_reloads_total",
			Help: "Registry snapshot loads by source kind and result.",
		}, []string{"kind", "result"}),
		snapshotRows: f.NewGauge(prometheus.GaugeOpts{
			Name: "tradeboard_registry_snapshot_rows",
			Help: "Rows in the active registry snapshot.",
		}),
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// UnknownRole counts a view evaluated for a role outside the known set.
func (m *Metrics) UnknownRole(role string) {
	if m == nil {
		return
	}
	if role == "" {
		role = "empty"
	}
	m.unknownRoles.WithLabelValues(role).Inc()
}

// SnapshotLoaded records a successful load and the new row count.
func (m *Metrics) SnapshotLoaded(kind string, rows int) {
	if m == nil {
		return
	}
	m.reloads.WithLabelValues(kind, "success").Inc()
	m.snapshotRows.Set(float64(rows))
}

// SnapshotFailed records a load that left the previous snapshot in place.
func (m *Metrics) SnapshotFailed(kind string) {
	if m == nil {
		return
	}
	m.reloads.WithLabelValues(kind, "failure").Inc()
}

// Registerer exposes the registry for custom metrics.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}

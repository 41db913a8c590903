// Package observability exposes the Prometheus registry, HTTP metrics and
// computation metrics of the reporting engine.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jobmetrics "github.com/finboard/finboard/internal/jobs"
)

// Computation summarises one dashboard or DRE computation.
type Computation struct {
	Report   string
	Computed int64
	Hits     int64
	Gaps     int64
	Cycles   int
	Elapsed  time.Duration
	Err      error
}

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	computations    *prometheus.CounterVec
	computeDuration *prometheus.HistogramVec
	evaluations     *prometheus.CounterVec
	cycles          *prometheus.CounterVec
	jobs            *jobmetrics.Metrics
}

// NewMetrics initialises the registry with HTTP, engine and job metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "finboard_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "finboard_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	computations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "finboard_computations_total",
		Help: "Report computations by report and outcome.",
	}, []string{"report", "outcome"})
	computeDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "finboard_computation_duration_seconds",
		Help:    "Duration of report computations, fetches included.",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"report"})
	evaluations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "finboard_indicator_evaluations_total",
		Help: "Indicator evaluations by result: computed, cache hit or configuration gap.",
	}, []string{"report", "result"})
	cycles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "finboard_indicator_cycles_total",
		Help: "Configs or reports that failed on a cyclic indicator composition.",
	}, []string{"report"})
	registry.MustRegister(requests, duration, computations, computeDuration, evaluations, cycles)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		computations:    computations,
		computeDuration: computeDuration,
		evaluations:     evaluations,
		cycles:          cycles,
		jobs:            jobmetrics.NewMetrics(registry),
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request counts and latency per route pattern.
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

// ObserveComputation records the outcome of one report computation.
func (m *Metrics) ObserveComputation(c Computation) {
	if m == nil {
		return
	}
	outcome := "success"
	if c.Err != nil {
		outcome = "failure"
	}
	m.computations.WithLabelValues(c.Report, outcome).Inc()
	m.computeDuration.WithLabelValues(c.Report).Observe(c.Elapsed.Seconds())
	m.evaluations.WithLabelValues(c.Report, "computed").Add(float64(c.Computed))
	m.evaluations.WithLabelValues(c.Report, "hit").Add(float64(c.Hits))
	m.evaluations.WithLabelValues(c.Report, "gap").Add(float64(c.Gaps))
	if c.Cycles > 0 {
		m.cycles.WithLabelValues(c.Report).Add(float64(c.Cycles))
	}
}

// Jobs returns the job collectors registered on this registry.
func (m *Metrics) Jobs() *jobmetrics.Metrics {
	if m == nil {
		return nil
	}
	return m.jobs
}

// Registerer exposes the registry for custom collectors.
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

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}

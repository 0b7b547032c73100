// Package metrics holds the Prometheus collectors for the bridge, the worker
// runtime and the HTTP host.
//
// All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "wasm_analyzer"
	unmatched = "unmatched"
)

// Outcome values for bridge calls.
const (
	OutcomeOK          = "ok"
	OutcomeRemoteError = "remote_error"
	OutcomeTerminated  = "terminated"
	OutcomeCanceled    = "canceled"
)

// Metrics is a set of registered collectors.
type Metrics struct {
	gatherer prometheus.Gatherer

	bridgeCalls        *prometheus.CounterVec
	bridgeCallDuration *prometheus.HistogramVec
	bridgePending      prometheus.Gauge
	bridgeStale        prometheus.Counter

	workersActive      prometheus.Gauge
	workerStartup      *prometheus.HistogramVec
	workerInvocations  *prometheus.CounterVec
	workerInvokeTiming *prometheus.HistogramVec

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. A nil reg uses a
// fresh registry, which keeps tests independent of the global one.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		gatherer: reg,

		bridgeCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bridge_calls_total",
				Help:      "Total number of operations issued through the bridge, by outcome.",
			},
			[]string{"op", "outcome"},
		),
		bridgeCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "bridge_call_duration_seconds",
				Help:      "Time from sending a request to its settlement, in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		bridgePending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "bridge_pending_requests",
				Help:      "Number of requests awaiting a response.",
			},
		),
		bridgeStale: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bridge_stale_responses_total",
				Help:      "Responses discarded because no request was pending under their id.",
			},
		),

		workersActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "workers_active",
				Help:      "Number of workers that have not terminated.",
			},
		),
		workerStartup: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "worker_startup_seconds",
				Help:      "Duration from worker start to ready or failure, in seconds.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"result"},
		),
		workerInvocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_invocations_total",
				Help:      "Total number of requests handled by workers, by error code.",
			},
			[]string{"op", "code"},
		),
		workerInvokeTiming: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "worker_invocation_duration_seconds",
				Help:      "Engine invocation time, in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),

		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	reg.MustRegister(
		m.bridgeCalls,
		m.bridgeCallDuration,
		m.bridgePending,
		m.bridgeStale,
		m.workersActive,
		m.workerStartup,
		m.workerInvocations,
		m.workerInvokeTiming,
		m.httpRequests,
		m.httpRequestDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// BridgeCall records a settled bridge call.
func (m *Metrics) BridgeCall(op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.bridgeCalls.WithLabelValues(op, outcome).Inc()
	m.bridgeCallDuration.WithLabelValues(op).Observe(d.Seconds())
}

// BridgePending adjusts the pending request gauge.
func (m *Metrics) BridgePending(delta int) {
	if m == nil {
		return
	}
	m.bridgePending.Add(float64(delta))
}

// BridgeStale counts a discarded response.
func (m *Metrics) BridgeStale() {
	if m == nil {
		return
	}
	m.bridgeStale.Inc()
}

// WorkerStarted marks a worker as live.
func (m *Metrics) WorkerStarted() {
	if m == nil {
		return
	}
	m.workersActive.Inc()
}

// WorkerStopped marks a worker as terminated.
func (m *Metrics) WorkerStopped() {
	if m == nil {
		return
	}
	m.workersActive.Dec()
}

// WorkerStartup records how long a worker took to become ready or fail.
func (m *Metrics) WorkerStartup(ok bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "ready"
	if !ok {
		result = "failed"
	}
	m.workerStartup.WithLabelValues(result).Observe(d.Seconds())
}

// WorkerInvocation records one handled request. code is empty on success.
func (m *Metrics) WorkerInvocation(op, code string, d time.Duration) {
	if m == nil {
		return
	}
	if code == "" {
		code = OutcomeOK
	}
	m.workerInvocations.WithLabelValues(op, code).Inc()
	m.workerInvokeTiming.WithLabelValues(op).Observe(d.Seconds())
}

// Middleware records request count and duration for every HTTP request.
// Uses the chi route pattern (not the raw path) to avoid unbounded cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		path := routePattern(r)
		m.httpRequests.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		m.httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// routePattern extracts the matched chi route pattern, falling back to "unmatched".
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return unmatched
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	m.BridgeCall("hover", OutcomeOK, time.Millisecond)
	m.BridgePending(1)
	m.BridgeStale()
	m.WorkerStarted()
	m.WorkerStopped()
	m.WorkerStartup(true, time.Second)
	m.WorkerInvocation("hover", "", time.Millisecond)

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rec.Code)
	}
}

func TestBridgeMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.BridgeCall("hover", OutcomeOK, time.Millisecond)
	m.BridgeCall("hover", OutcomeOK, time.Millisecond)
	m.BridgeCall("hover", OutcomeRemoteError, time.Millisecond)
	m.BridgePending(3)
	m.BridgePending(-1)
	m.BridgeStale()

	if got := testutil.ToFloat64(m.bridgeCalls.WithLabelValues("hover", OutcomeOK)); got != 2 {
		t.Errorf("ok calls = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.bridgePending); got != 2 {
		t.Errorf("pending = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.bridgeStale); got != 1 {
		t.Errorf("stale = %v, want 1", got)
	}
}

func TestWorkerMetrics(t *testing.T) {
	m := New(nil)

	m.WorkerStarted()
	m.WorkerStarted()
	m.WorkerStopped()
	m.WorkerInvocation("diagnostics", "", time.Millisecond)
	m.WorkerInvocation("diagnostics", "engine_error", time.Millisecond)

	if got := testutil.ToFloat64(m.workersActive); got != 1 {
		t.Errorf("active workers = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.workerInvocations.WithLabelValues("diagnostics", OutcomeOK)); got != 1 {
		t.Errorf("ok invocations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.workerInvocations.WithLabelValues("diagnostics", "engine_error")); got != 1 {
		t.Errorf("engine_error invocations = %v, want 1", got)
	}
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New(nil)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/v1/engines/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", m.Handler())

	for _, name := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/engines/"+name, nil))
	}

	got := testutil.ToFloat64(m.httpRequests.WithLabelValues(http.MethodGet, "/v1/engines/{name}", "404"))
	if got != 3 {
		t.Errorf("requests = %v, want 3", got)
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "wasm_analyzer_http_requests_total") {
		t.Error("/metrics should expose the HTTP request counter")
	}
}

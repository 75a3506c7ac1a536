package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCollectors(t *testing.T) {
	m := New("tg_test", nil)
	m.Transition("approve", nil)
	m.Transition("approve", nil)
	m.Transition("cancel", errors.New("refused"))
	m.AutosaveFlush(nil)
	m.StoreHook("get", time.Millisecond, nil)
	m.Export(3, 7)

	if got := value(t, m.TransitionsTotal.WithLabelValues("approve", "ok")); got != 2 {
		t.Fatalf("approve ok = %v", got)
	}
	if got := value(t, m.TransitionsTotal.WithLabelValues("cancel", "error")); got != 1 {
		t.Fatalf("cancel error = %v", got)
	}
	if got := value(t, m.ExportTasks); got != 7 {
		t.Fatalf("export tasks = %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "tg_test_store_operation_duration_seconds") {
		t.Fatalf("store histogram missing from exposition")
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Transition("approve", nil)
	m.AutosaveFlush(nil)
	m.Export(1, 1)
	m.StoreHook("get", 0, nil)
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestMiddlewareCounts(t *testing.T) {
	m := New("tg_mw", nil)
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/x", nil))
	if got := value(t, m.HTTPRequestsTotal.WithLabelValues("POST", "/v1/x", "201")); got != 1 {
		t.Fatalf("request count = %v", got)
	}
}

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	if err := m.Write(&out); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if out.Counter != nil {
		return out.GetCounter().GetValue()
	}
	return out.GetGauge().GetValue()
}

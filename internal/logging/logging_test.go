package logging

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLevels(t *testing.T) {
	for _, env := range []string{"production", "development"} {
		l, err := New(Config{Level: "warn", Environment: env})
		if err != nil {
			t.Fatalf("%s: %v", env, err)
		}
		if l.Core().Enabled(zap.InfoLevel) {
			t.Fatalf("%s: info should be disabled at warn", env)
		}
	}
}

func TestMiddlewareTagsRequests(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)
	var seen string
	h := RequestIDMiddleware(base)(AccessLogMiddleware(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		FromContext(r.Context(), nil).Info("inside")
		w.WriteHeader(http.StatusTeapot)
	})))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	h.ServeHTTP(rec, req)

	if seen != "req-1" || rec.Header().Get(RequestIDHeader) != "req-1" {
		t.Fatalf("request id not propagated: %q %q", seen, rec.Header().Get(RequestIDHeader))
	}
	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 log lines, got %d", len(entries))
	}
	access := entries[1].ContextMap()
	if access["status"] != int64(http.StatusTeapot) || access["request_id"] != "req-1" {
		t.Fatalf("unexpected access log %v", access)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("request id should be generated")
	}
}

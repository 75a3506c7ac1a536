package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	TransitionsTotal    *prometheus.CounterVec
	AutosaveFlushes     *prometheus.CounterVec
	StoreOpDuration     *prometheus.HistogramVec
	ExportProviders     prometheus.Gauge
	ExportTasks         prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers collectors named prefix_* on reg. A nil reg uses a fresh
// registry so tests and multiple servers never collide.
func New(prefix string, reg *prometheus.Registry) *Metrics {
	if prefix == "" {
		prefix = "taskgate"
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		TransitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_review_transitions_total",
			Help: "Approval workflow transitions by action and result",
		}, []string{"action", "result"}),
		AutosaveFlushes: f.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_autosave_flushes_total",
			Help: "Debounced writes flushed to the store",
		}, []string{"result"}),
		StoreOpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "_store_operation_duration_seconds",
			Help:    "Duration of document store operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"op", "result"}),
		ExportProviders: f.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_export_providers",
			Help: "Providers in the last compiled export",
		}),
		ExportTasks: f.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_export_tasks",
			Help: "Tasks in the last compiled export",
		}),
		gatherer: reg,
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) Transition(action string, err error) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(action, result(err)).Inc()
}

func (m *Metrics) AutosaveFlush(err error) {
	if m == nil {
		return
	}
	m.AutosaveFlushes.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) Export(providers, tasks int) {
	if m == nil {
		return
	}
	m.ExportProviders.Set(float64(providers))
	m.ExportTasks.Set(float64(tasks))
}

// StoreHook matches repo.Hook.
func (m *Metrics) StoreHook(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.StoreOpDuration.WithLabelValues(op, result(err)).Observe(d.Seconds())
}

// Middleware records request counts and latency labeled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if pattern := rc.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

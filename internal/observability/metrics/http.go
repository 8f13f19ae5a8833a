package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "visa"

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	transitionsTotal   *prometheus.CounterVec
	documentsTotal     *prometheus.CounterVec
	trafficRejected    *prometheus.CounterVec
	retryAttemptsTotal *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	transitionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "status_transitions_total",
			Help:      "Persisted status transitions by target status and trigger.",
		},
		[]string{"service", "status", "trigger"},
	)
	documentsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "documents_uploaded_total",
			Help:      "Uploaded application documents by kind.",
		},
		[]string{"service", "kind"},
	)
	trafficRejected := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rejected_requests_total",
			Help:      "Requests rejected by traffic control.",
		},
		[]string{"service", "reason"},
	)
	retryAttemptsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "retry_attempts_total",
			Help:      "Retried attempts by operation.",
		},
		[]string{"service", "operation"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "circuit_open",
			Help:      "1 while the circuit breaker of an operation is not closed.",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		transitionsTotal,
		documentsTotal,
		trafficRejected,
		retryAttemptsTotal,
		breakerState,
	)

	return &HTTPServerMetrics{
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		transitionsTotal:   transitionsTotal,
		documentsTotal:     documentsTotal,
		trafficRejected:    trafficRejected,
		retryAttemptsTotal: retryAttemptsTotal,
		breakerState:       breakerState,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses application ids so label cardinality stays bounded.
func normalizePath(path string) string {
	const prefix = "/api/applications/"
	if !strings.HasPrefix(path, prefix) {
		return path
	}
	rest := strings.TrimPrefix(path, prefix)
	if rest == "submit" || rest == "" {
		return path
	}
	id, action, hasAction := strings.Cut(rest, "/")
	if id == "" {
		return path
	}
	if !hasAction {
		return prefix + "{id}"
	}
	return prefix + "{id}/" + action
}

func (m *HTTPServerMetrics) RecordTransition(service, status string, automatic bool) {
	trigger := "manual"
	if automatic {
		trigger = "automatic"
	}
	m.transitionsTotal.WithLabelValues(service, status, trigger).Inc()
}

func (m *HTTPServerMetrics) RecordDocumentUpload(service, kind string, count int) {
	if count <= 0 {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.documentsTotal.WithLabelValues(service, kind).Add(float64(count))
}

func (m *HTTPServerMetrics) RecordRejected(service, reason string) {
	m.trafficRejected.WithLabelValues(service, reason).Inc()
}

// ResilienceObserver adapts the metrics to resilience.Observer.
func (m *HTTPServerMetrics) ResilienceObserver(service string) *ResilienceObserver {
	return &ResilienceObserver{
		service: service,
		retries: m.retryAttemptsTotal,
		state:   m.breakerState,
	}
}

type ResilienceObserver struct {
	service string
	retries *prometheus.CounterVec
	state   *prometheus.GaugeVec
}

func (o *ResilienceObserver) RetryAttempt(operation string) {
	o.retries.WithLabelValues(o.service, operation).Inc()
}

func (o *ResilienceObserver) BreakerStateChanged(operation string, state string) {
	open := 0.0
	if state != "closed" {
		open = 1
	}
	o.state.WithLabelValues(o.service, operation).Set(open)
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	eventsTotal     *prometheus.CounterVec
	eventDuration   *prometheus.HistogramVec
	eventsInFlight  prometheus.Gauge
	deliveryLatency *prometheus.HistogramVec
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	eventsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "status_events_total",
			Help:      "Total handled status events by outcome.",
		},
		[]string{"service", "outcome"},
	)
	eventDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "status_event_duration_seconds",
			Help:      "Status event handling duration in seconds by outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "outcome"},
	)
	eventsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "status_events_in_flight",
			Help:      "Number of status events being handled.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	deliveryLatency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "delivery_latency_seconds",
			Help:      "Delay between a status transition and its handling by the worker.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
		},
		[]string{"service"},
	)

	registry.MustRegister(eventsTotal, eventDuration, eventsInFlight, deliveryLatency)

	return &WorkerMetrics{
		registry:        registry,
		eventsTotal:     eventsTotal,
		eventDuration:   eventDuration,
		eventsInFlight:  eventsInFlight,
		deliveryLatency: deliveryLatency,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartEvent() {
	m.eventsInFlight.Inc()
}

func (m *WorkerMetrics) FinishEvent(service string, duration time.Duration, err error) {
	m.eventsInFlight.Dec()

	outcome := "success"
	if err != nil {
		outcome = "error"
	}

	m.eventsTotal.WithLabelValues(service, outcome).Inc()
	m.eventDuration.WithLabelValues(service, outcome).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveDeliveryLatency(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.deliveryLatency.WithLabelValues(service).Observe(lag.Seconds())
}

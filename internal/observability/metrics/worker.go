package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	predictTotal    *prometheus.CounterVec
	predictDuration *prometheus.HistogramVec
	predictInFlight prometheus.Gauge
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	predictTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pneumo",
			Subsystem: "worker",
			Name:      "predict_requests_total",
			Help:      "Total prediction requests served by variant and status.",
		},
		[]string{"service", "variant", "status"},
	)
	predictDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pneumo",
			Subsystem: "worker",
			Name:      "predict_duration_seconds",
			Help:      "Prediction request duration in seconds by variant and status.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"service", "variant", "status"},
	)
	predictInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pneumo",
			Subsystem: "worker",
			Name:      "predict_in_flight",
			Help:      "Number of in-flight prediction requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(predictTotal, predictDuration, predictInFlight)

	return &WorkerMetrics{
		registry:        registry,
		predictTotal:    predictTotal,
		predictDuration: predictDuration,
		predictInFlight: predictInFlight,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartPrediction() {
	m.predictInFlight.Inc()
}

func (m *WorkerMetrics) FinishPrediction(service, variant string, duration time.Duration, err error) {
	m.predictInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.predictTotal.WithLabelValues(service, variant, status).Inc()
	m.predictDuration.WithLabelValues(service, variant, status).Observe(duration.Seconds())
}

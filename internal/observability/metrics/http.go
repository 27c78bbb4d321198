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

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	predictionsTotal   *prometheus.CounterVec
	predictionDuration *prometheus.HistogramVec
	workflowsTotal     *prometheus.CounterVec
	recordsSavedTotal  *prometheus.CounterVec
	activeSessions     prometheus.Gauge
	breakerState       *prometheus.GaugeVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pneumo",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pneumo",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pneumo",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	predictionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pneumo",
			Subsystem: "classifier",
			Name:      "predictions_total",
			Help:      "Total model invocations by variant and outcome.",
		},
		[]string{"service", "variant", "outcome"},
	)
	predictionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pneumo",
			Subsystem: "classifier",
			Name:      "prediction_duration_seconds",
			Help:      "Model invocation duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"service", "variant"},
	)
	workflowsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pneumo",
			Subsystem: "classifier",
			Name:      "workflow_transitions_total",
			Help:      "Classification workflow transitions by mode and resulting state.",
		},
		[]string{"service", "mode", "state"},
	)
	recordsSavedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pneumo",
			Subsystem: "records",
			Name:      "saved_total",
			Help:      "Total patient records saved by classification label.",
		},
		[]string{"service", "label"},
	)
	activeSessions := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pneumo",
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Number of live user sessions.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pneumo",
			Subsystem: "predictor",
			Name:      "breaker_state",
			Help:      "Predictor circuit breaker state per operation: 0 closed, 1 half-open, 2 open.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
		[]string{"operation"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		predictionsTotal,
		predictionDuration,
		workflowsTotal,
		recordsSavedTotal,
		activeSessions,
		breakerState,
	)

	return &HTTPServerMetrics{
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		predictionsTotal:   predictionsTotal,
		predictionDuration: predictionDuration,
		workflowsTotal:     workflowsTotal,
		recordsSavedTotal:  recordsSavedTotal,
		activeSessions:     activeSessions,
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

func normalizePath(path string) string {
	switch {
	case path == "/v1/patients/export":
		return path
	case strings.HasPrefix(path, "/v1/patients/") && strings.HasSuffix(path, "/image"):
		return "/v1/patients/{patient_id}/image"
	case strings.HasPrefix(path, "/v1/patients/"):
		return "/v1/patients/{patient_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordPrediction(service, variant, outcome string, duration time.Duration) {
	if variant == "" {
		variant = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.predictionsTotal.WithLabelValues(service, variant, outcome).Inc()
	m.predictionDuration.WithLabelValues(service, variant).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordWorkflow(service, mode, state string) {
	m.workflowsTotal.WithLabelValues(service, mode, state).Inc()
}

func (m *HTTPServerMetrics) RecordPatientSaved(service, label string) {
	m.recordsSavedTotal.WithLabelValues(service, label).Inc()
}

func (m *HTTPServerMetrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

func (m *HTTPServerMetrics) SetBreakerState(operation, state string) {
	value := 0.0
	switch state {
	case "half-open":
		value = 1
	case "open":
		value = 2
	}
	m.breakerState.WithLabelValues(operation).Set(value)
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

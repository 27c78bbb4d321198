package httpadapter

import (
	"encoding/json"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/kirillkom/pneumonia-classifier/internal/config"
	"github.com/kirillkom/pneumonia-classifier/internal/core/ports"
	"github.com/kirillkom/pneumonia-classifier/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	cfg      config.Config
	auth     ports.Authenticator
	classify ports.ClassificationWorkflow
	records  ports.PatientRecorder
	sessions ports.SessionStore
	metrics  *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	auth ports.Authenticator,
	classify ports.ClassificationWorkflow,
	records ports.PatientRecorder,
	sessions ports.SessionStore,
	serverMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:      cfg,
		auth:     auth,
		classify: classify,
		records:  records,
		sessions: sessions,
		metrics:  serverMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.json", rt.openAPIDocument)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var authLimiter *rate.Limiter
	if rt.cfg.AuthRateLimitRPS > 0 {
		burst := rt.cfg.AuthRateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		authLimiter = rate.NewLimiter(rate.Limit(rt.cfg.AuthRateLimitRPS), burst)
	}
	mux.Handle("POST /v1/auth/register", rateLimitMiddleware(http.HandlerFunc(rt.register), authLimiter))
	mux.Handle("POST /v1/auth/login", rateLimitMiddleware(http.HandlerFunc(rt.login), authLimiter))
	mux.HandleFunc("POST /v1/auth/logout", rt.logout)
	mux.HandleFunc("GET /v1/auth/me", rt.requireSession(rt.me))

	gate := newBackpressure(rt.cfg.ClassifyMaxInFlight, rt.cfg.ClassifyQueueTimeout())
	modelRoute := func(h http.HandlerFunc) http.HandlerFunc {
		return rt.requireSession(gate(h).ServeHTTP)
	}
	mux.HandleFunc("POST /v1/classifications", modelRoute(rt.startClassification))
	mux.HandleFunc("POST /v1/classifications/current/confirm", modelRoute(rt.confirmClassification))
	mux.HandleFunc("GET /v1/classifications/current", rt.requireSession(rt.currentClassification))
	mux.HandleFunc("DELETE /v1/classifications/current", rt.requireSession(rt.resetClassification))
	mux.HandleFunc("POST /v1/classifications/current/record", rt.requireSession(rt.recordClassification))

	mux.HandleFunc("GET /v1/patients", rt.requireSession(rt.listPatients))
	mux.HandleFunc("GET /v1/patients/export", rt.requireSession(rt.exportPatients))
	mux.HandleFunc("GET /v1/patients/{id}", rt.requireSession(rt.getPatient))
	mux.HandleFunc("GET /v1/patients/{id}/image", rt.requireSession(rt.getPatientImage))

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

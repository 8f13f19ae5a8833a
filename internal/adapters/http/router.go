package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kirillkom/visa-desk/internal/config"
	"github.com/kirillkom/visa-desk/internal/core/domain"
	"github.com/kirillkom/visa-desk/internal/core/ports"
	"github.com/kirillkom/visa-desk/internal/observability/metrics"
)

const metricsService = "api"

type Dependencies struct {
	Submitter ports.ApplicationSubmitter
	Workflow  ports.StatusWorkflow
	Documents ports.DocumentIntake
	Reader    ports.ApplicationReader
	Verifier  SessionVerifier
	// Metrics is optional; /metrics is mounted only when set.
	Metrics *metrics.HTTPServerMetrics
	// Files backs document downloads under cfg.StorageBaseURL when set.
	Files ports.ObjectStorage
}

type Router struct {
	cfg  config.Config
	deps Dependencies
}

func NewRouter(cfg config.Config, deps Dependencies) *Router {
	return &Router{cfg: cfg, deps: deps}
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", rt.healthz)
	if rt.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.deps.Metrics.Handler())
	}

	traffic := rt.trafficControl()
	if prefix := documentPrefix(rt.cfg.StorageBaseURL); rt.deps.Files != nil && prefix != "" {
		r.Group(func(files chi.Router) {
			files.Use(traffic)
			files.Use(authMiddleware(rt.deps.Verifier))
			files.Get(prefix+"/*", rt.serveDocument)
		})
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(traffic)
		if rt.cfg.APIRequestTimeoutSeconds > 0 {
			api.Use(middleware.Timeout(time.Duration(rt.cfg.APIRequestTimeoutSeconds) * time.Second))
		}

		api.Get("/statuses", rt.listStatuses)

		api.Group(func(authed chi.Router) {
			authed.Use(authMiddleware(rt.deps.Verifier))

			authed.With(requireRoles(domain.RoleUser)).Post("/applications/submit", rt.submitApplication)
			authed.Get("/applications", rt.listApplications)
			authed.Get("/applications/{id}", rt.getApplication)
			authed.With(requireRoles(domain.RoleAdmin, domain.RoleEmployee)).Put("/applications/{id}", rt.updateStatus)
			authed.With(requireRoles(domain.RoleAgent, domain.RoleSales)).Post("/applications/{id}/update-status", rt.updateStatusWithOfferLetter)
			authed.With(requireRoles(domain.RoleAgent)).Post("/applications/{id}/accept", rt.acceptApplication)
			authed.With(requireRoles(domain.RoleAdmin)).Delete("/applications/{id}", rt.deleteApplication)
			authed.Post("/upload-multiple-documents", rt.uploadDocuments)
			authed.With(requireRoles(domain.RoleAdmin)).Get("/admin/applications/export", rt.exportApplications)
		})
	})

	if rt.deps.Metrics != nil {
		return rt.deps.Metrics.Middleware(metricsService, r)
	}
	return r
}

// trafficControl builds one rate limiter and one concurrency gate shared by
// every group it is mounted on.
func (rt *Router) trafficControl() func(http.Handler) http.Handler {
	var onReject rejectFunc
	if rt.deps.Metrics != nil {
		onReject = func(reason string) {
			rt.deps.Metrics.RecordRejected(metricsService, reason)
		}
	}
	limit := rateLimiter(rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, onReject)
	gate := concurrencyGate(rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait, onReject)
	return func(next http.Handler) http.Handler {
		return limit(gate(next))
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusCatalogResponse struct {
	Success  bool                `json:"success"`
	Statuses []domain.StatusInfo `json:"statuses"`
	Extended []domain.Status     `json:"extended"`
}

func (rt *Router) listStatuses(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusCatalogResponse{
		Success:  true,
		Statuses: domain.Catalog(),
		Extended: domain.ExtendedStatuses(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("write_json_failed", "error", err)
	}
}

package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gatekeeper/internal/catalog"
	rlhandler "gatekeeper/internal/ratelimit/handler"
	rlmiddleware "gatekeeper/internal/ratelimit/middleware"
	"gatekeeper/internal/ratelimit/models"
	"gatekeeper/pkg/platform/httputil"
	"gatekeeper/pkg/platform/middleware/admin"
	"gatekeeper/pkg/platform/middleware/logging"
	metadata "gatekeeper/pkg/platform/middleware/metadata"
	request "gatekeeper/pkg/platform/middleware/request"
	"gatekeeper/pkg/platform/middleware/requesttime"
)

type backendReporter interface {
	Backend() models.Backend
}

type routerDeps struct {
	logger     *slog.Logger
	limiter    backendReporter
	rateLimit  *rlmiddleware.Middleware
	admin      *rlhandler.Handler
	adminToken string
	catalog    *catalog.Handler
	gatherer   prometheus.Gatherer
}

type healthResponse struct {
	Status           string         `json:"status"`
	RateLimitBackend models.Backend `json:"rateLimitBackend"`
}

// newRouter assembles the HTTP surface. Only /api is rate limited; admin routes
// exist only when an admin token is configured.
func newRouter(deps routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(logging.Logger(deps.logger))

	r.NotFound(catalog.NotFound)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, &healthResponse{
			Status:           "ok",
			RateLimitBackend: deps.limiter.Backend(),
		})
	})
	r.Handle("/metrics", promhttp.HandlerFor(deps.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(deps.rateLimit.RateLimit())
		deps.catalog.Register(r)
	})

	if deps.adminToken != "" {
		r.Group(func(r chi.Router) {
			r.Use(admin.RequireAdminToken(deps.adminToken, deps.logger))
			deps.admin.RegisterAdmin(r)
		})
	}

	return r
}

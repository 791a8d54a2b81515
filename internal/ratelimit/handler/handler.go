package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"gatekeeper/internal/ratelimit/config"
	"gatekeeper/internal/ratelimit/models"
	"gatekeeper/internal/ratelimit/ports"
	"gatekeeper/pkg/platform/httputil"
	request "gatekeeper/pkg/platform/middleware/request"
)

// Service is the limiter surface exposed to operators.
type Service interface {
	GetConfig() config.Config
	UpdateConfig(u config.Update) config.Config
	Backend() models.Backend
	RegisterRemoteStore(client ports.RemoteClient) error
	ForceFallbackToLocal()
	ResetWindow(ctx context.Context, identifier string) error
}

// HealthChecker reports whether the remote store is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handler serves the rate limit admin API.
type Handler struct {
	service      Service
	logger       *slog.Logger
	remote       ports.RemoteClient
	remoteHealth HealthChecker
}

// maxWindowMs is the largest window that still fits in a time.Duration.
const maxWindowMs = int64(math.MaxInt64 / int64(time.Millisecond))

type Option func(*Handler)

// WithRemote enables re-registration of the remote store through the admin API.
func WithRemote(client ports.RemoteClient, health HealthChecker) Option {
	return func(h *Handler) {
		h.remote = client
		h.remoteHealth = health
	}
}

func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		service: service,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterAdmin mounts the admin routes. Callers are expected to guard r.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Route("/admin/rate-limit", func(r chi.Router) {
		r.Get("/config", h.HandleGetConfig)
		r.Patch("/config", h.HandleUpdateConfig)
		r.Get("/backend", h.HandleGetBackend)
		r.Post("/backend/remote", h.HandleUseRemote)
		r.Post("/backend/local", h.HandleUseLocal)
		r.Delete("/windows/{identifier}", h.HandleResetWindow)
	})
}

func (h *Handler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, toConfigResponse(h.service.GetConfig()))
}

func (h *Handler) HandleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	var req models.UpdateConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid rate limit config update",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}

	if req.WindowMs != nil && *req.WindowMs > maxWindowMs {
		h.logger.WarnContext(ctx, "rate limit window out of range",
			"request_id", requestID,
			"window_ms", *req.WindowMs,
		)
		httputil.WriteError(w, http.StatusBadRequest, "bad_request", "windowMs is out of range")
		return
	}

	update := config.Update{
		MaxRequests: req.MaxRequests,
		Message:     req.Message,
	}
	if req.WindowMs != nil {
		window := time.Duration(*req.WindowMs) * time.Millisecond
		update.Window = &window
	}

	cfg := h.service.UpdateConfig(update)
	h.logger.InfoContext(ctx, "rate limit config changed via admin API",
		"request_id", requestID,
		"window_ms", cfg.Window.Milliseconds(),
		"max_requests", cfg.MaxRequests,
	)
	httputil.WriteJSON(w, http.StatusOK, toConfigResponse(cfg))
}

func (h *Handler) HandleGetBackend(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, &models.BackendResponse{Backend: h.service.Backend()})
}

// HandleUseRemote checks the remote store and selects it again. This is the
// only way back to the remote backend after a failover.
func (h *Handler) HandleUseRemote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	if h.remote == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "remote_unavailable", "no remote store configured")
		return
	}
	if h.remoteHealth != nil {
		if err := h.remoteHealth.Health(ctx); err != nil {
			h.logger.WarnContext(ctx, "remote store health check failed",
				"request_id", requestID,
				"error", err.Error(),
			)
			httputil.WriteError(w, http.StatusServiceUnavailable, "remote_unavailable", "remote store is unreachable")
			return
		}
	}
	if err := h.service.RegisterRemoteStore(h.remote); err != nil {
		h.logger.ErrorContext(ctx, "failed to register remote store",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &models.BackendResponse{Backend: h.service.Backend()})
}

func (h *Handler) HandleUseLocal(w http.ResponseWriter, r *http.Request) {
	h.service.ForceFallbackToLocal()
	httputil.WriteJSON(w, http.StatusOK, &models.BackendResponse{Backend: h.service.Backend()})
}

func (h *Handler) HandleResetWindow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identifier := strings.TrimSpace(chi.URLParam(r, "identifier"))
	if identifier == "" {
		httputil.WriteError(w, http.StatusBadRequest, "bad_request", "identifier is required")
		return
	}

	if err := h.service.ResetWindow(ctx, identifier); err != nil {
		h.logger.ErrorContext(ctx, "failed to reset rate limit window",
			"request_id", request.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &models.ResetWindowResponse{Identifier: identifier, Reset: true})
}

func toConfigResponse(cfg config.Config) *models.ConfigResponse {
	return &models.ConfigResponse{
		WindowMs:    cfg.Window.Milliseconds(),
		MaxRequests: cfg.MaxRequests,
		Message:     cfg.Message,
	}
}

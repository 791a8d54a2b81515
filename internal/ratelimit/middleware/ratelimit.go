package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"gatekeeper/internal/ratelimit/models"
	"gatekeeper/pkg/platform/httputil"
	metadata "gatekeeper/pkg/platform/middleware/metadata"
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

type RateLimiter interface {
	Evaluate(ctx context.Context, identifier string) *models.Decision
}

type Middleware struct {
	limiter  RateLimiter
	logger   *slog.Logger
	disabled bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (for testing/demo mode).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func New(limiter RateLimiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled && logger != nil {
		logger.Info("rate limiting disabled")
	}
	return m
}

// Evaluate admits or rejects r and reports whether the caller should continue.
// Rate limit headers are set in both cases; on rejection the 429 body has
// already been written.
func (m *Middleware) Evaluate(w http.ResponseWriter, r *http.Request) bool {
	if m.disabled {
		return true
	}

	ctx := r.Context()
	identifier := metadata.GetClientIP(ctx)
	if identifier == "" {
		identifier = metadata.ClientIPFromRequest(r)
	}

	decision := m.limiter.Evaluate(ctx, identifier)
	addRateLimitHeaders(w, decision)

	if !decision.Allowed {
		writeRateLimitExceeded(w, decision)
		return false
	}
	return true
}

// RateLimit applies Evaluate to every request passing through.
func (m *Middleware) RateLimit() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !m.Evaluate(w, r) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func addRateLimitHeaders(w http.ResponseWriter, decision *models.Decision) {
	w.Header().Set(HeaderLimit, strconv.Itoa(decision.Limit))
	w.Header().Set(HeaderRemaining, strconv.Itoa(decision.Remaining))
	w.Header().Set(HeaderReset, strconv.FormatInt(decision.ResetUnix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, decision *models.Decision) {
	w.Header().Set(HeaderRetryAfter, strconv.Itoa(decision.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.RateLimitExceededResponse{
		Message:    decision.Message,
		RetryAfter: decision.RetryAfter,
	})
}

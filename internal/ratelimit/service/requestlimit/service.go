// Package requestlimit decides whether a request may proceed, holding the
// remote/local backend selection and failing over when the remote store errors.
package requestlimit

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"gatekeeper/internal/ratelimit/config"
	"gatekeeper/internal/ratelimit/metrics"
	"gatekeeper/internal/ratelimit/models"
	"gatekeeper/internal/ratelimit/ports"
	"gatekeeper/internal/ratelimit/store/remote"
	"gatekeeper/pkg/platform/privacy"
	"gatekeeper/pkg/requestcontext"
)

// LocalWindowStore is the in-process store every Service owns.
type LocalWindowStore = ports.LocalWindowStore

// selection is an immutable backend choice. A remote selection always carries
// its store; the service swaps whole values so readers never see a mix.
type selection struct {
	backend models.Backend
	remote  *remote.Store
}

var localSelection = &selection{backend: models.BackendLocal}

func remoteSelection(store *remote.Store) *selection {
	return &selection{backend: models.BackendRemote, remote: store}
}

type Service struct {
	local         LocalWindowStore
	config        *config.Holder
	selection     atomic.Pointer[selection]
	remoteTimeout time.Duration
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithRemoteTimeout bounds each remote check (default remote.DefaultTimeout).
func WithRemoteTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.remoteTimeout = d
		}
	}
}

// New creates a service that starts on the local backend.
func New(local LocalWindowStore, cfg *config.Holder, opts ...Option) (*Service, error) {
	if local == nil {
		return nil, errors.New("local window store is required")
	}
	if cfg == nil {
		return nil, errors.New("config holder is required")
	}

	svc := &Service{
		local:         local,
		config:        cfg,
		remoteTimeout: remote.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.selection.Store(localSelection)

	return svc, nil
}

// Evaluate records one request for identifier and returns the decision.
// It never fails: remote errors fail over to the local store, and a local
// store error admits the request.
func (s *Service) Evaluate(ctx context.Context, identifier string) *models.Decision {
	now := requestcontext.Now(ctx)
	cfg := s.config.Get()
	limits := cfg.Limits()
	key := models.NewWindowKey(identifier).String()

	decision := s.check(ctx, key, identifier, limits)
	decision.Limit = limits.MaxRequests
	if !decision.Allowed {
		decision.RetryAfter = models.RetryAfterSeconds(now, decision.ResetAt)
		decision.Message = cfg.Message
		ports.LogEvent(ctx, s.logger, slog.LevelInfo, "rate_limit_exceeded",
			"identifier", privacy.AnonymizeIP(identifier),
			"backend", decision.Backend,
			"limit", limits.MaxRequests,
			"window_ms", limits.Window.Milliseconds(),
			"retry_after", decision.RetryAfter,
		)
	}
	if s.metrics != nil {
		s.metrics.RecordDecision(decision)
	}
	return decision
}

func (s *Service) check(ctx context.Context, key, identifier string, limits models.Limits) *models.Decision {
	current := s.selection.Load()
	if current.remote != nil {
		decision, err := current.remote.Check(ctx, key, limits)
		if err == nil {
			return decision
		}
		s.failover(ctx, current, identifier, err)
	}

	decision, err := s.local.Check(ctx, key, limits)
	if err != nil {
		ports.LogEvent(ctx, s.logger, slog.LevelError, "local_window_check_failed",
			"identifier", privacy.AnonymizeIP(identifier),
			"error", err,
		)
		return &models.Decision{
			Allowed:   true,
			Remaining: limits.MaxRequests,
			ResetAt:   requestcontext.Now(ctx).Add(limits.Window),
			Backend:   models.BackendLocal,
		}
	}
	return decision
}

// failover switches from the observed remote selection to local. A concurrent
// re-registration replaces the pointer, so the swap then fails and is kept.
func (s *Service) failover(ctx context.Context, observed *selection, identifier string, cause error) {
	ports.LogEvent(ctx, s.logger, slog.LevelWarn, "remote_window_check_failed",
		"identifier", privacy.AnonymizeIP(identifier),
		"error", cause,
	)
	if !s.selection.CompareAndSwap(observed, localSelection) {
		return
	}
	if s.metrics != nil {
		s.metrics.IncrementFailovers()
	}
	ports.LogEvent(ctx, s.logger, slog.LevelWarn, "rate_limit_backend_failover",
		"from", models.BackendRemote,
		"to", models.BackendLocal,
	)
}

// RegisterRemoteStore selects a remote store built on client. Calling it again
// after a failover is the only way back to the remote backend.
func (s *Service) RegisterRemoteStore(client ports.RemoteClient) error {
	store, err := remote.New(client,
		remote.WithTimeout(s.remoteTimeout),
		remote.WithMetrics(s.metrics),
	)
	if err != nil {
		return err
	}
	s.selection.Store(remoteSelection(store))
	if s.logger != nil {
		s.logger.Info("rate limit backend selected", "backend", models.BackendRemote, "timeout", s.remoteTimeout)
	}
	return nil
}

// ForceFallbackToLocal selects the local store regardless of remote health.
func (s *Service) ForceFallbackToLocal() {
	s.selection.Store(localSelection)
	if s.logger != nil {
		s.logger.Info("rate limit backend selected", "backend", models.BackendLocal)
	}
}

func (s *Service) Backend() models.Backend {
	return s.selection.Load().backend
}

func (s *Service) GetConfig() config.Config {
	return s.config.Get()
}

// UpdateConfig applies the valid fields of u. Windows already open keep their
// reset time; the new settings apply from the next check.
func (s *Service) UpdateConfig(u config.Update) config.Config {
	cfg := s.config.Update(u)
	if s.logger != nil {
		s.logger.Info("rate limit config updated",
			"window_ms", cfg.Window.Milliseconds(),
			"max_requests", cfg.MaxRequests,
		)
	}
	return cfg
}

// ResetWindow clears identifier's window in the local store.
func (s *Service) ResetWindow(ctx context.Context, identifier string) error {
	key := models.NewWindowKey(identifier).String()
	if err := s.local.Reset(ctx, key); err != nil {
		return err
	}
	ports.LogEvent(ctx, s.logger, slog.LevelInfo, "rate_limit_window_reset",
		"identifier", privacy.AnonymizeIP(identifier),
	)
	return nil
}

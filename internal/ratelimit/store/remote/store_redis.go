package remote

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"gatekeeper/internal/ratelimit/metrics"
	"gatekeeper/internal/ratelimit/models"
	"gatekeeper/internal/ratelimit/ports"
	"gatekeeper/pkg/requestcontext"
)

// DefaultTimeout bounds a whole Check, all round trips included.
const DefaultTimeout = 250 * time.Millisecond

const tracerName = "gatekeeper/internal/ratelimit/store/remote"

// Store is the shared fixed-window store backed by a RemoteClient.
//
// The read-then-write sequence is not atomic across replicas: two instances may
// both see count == Max-1 and both increment. The overshoot is bounded by the
// number of concurrent callers and accepted.
type Store struct {
	client  ports.RemoteClient
	timeout time.Duration
	tracer  trace.Tracer
	metrics *metrics.Metrics
}

type Option func(*Store)

// WithTimeout bounds each Check (default 250ms).
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Store) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

func New(client ports.RemoteClient, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.New("remote client is required")
	}
	s := &Store{
		client:  client,
		timeout: DefaultTimeout,
		tracer:  otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Timeout returns the per-check deadline.
func (s *Store) Timeout() time.Duration {
	return s.timeout
}

// Check records one request for key. Any failure, including the deadline, is
// returned as *StoreError.
func (s *Store) Check(ctx context.Context, key string, limits models.Limits) (*models.Decision, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "ratelimit.remote.check",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("ratelimit.key", key)),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	decision, err := s.check(ctx, key, limits)
	if s.metrics != nil {
		s.metrics.ObserveRemoteCheck(float64(time.Since(start).Microseconds()) / 1000.0)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "remote window check failed")
		var storeErr *StoreError
		if s.metrics != nil && errors.As(err, &storeErr) {
			s.metrics.RecordRemoteError(storeErr.Op)
		}
		return nil, err
	}

	span.SetAttributes(
		attribute.Bool("ratelimit.allowed", decision.Allowed),
		attribute.Int("ratelimit.remaining", decision.Remaining),
	)
	return decision, nil
}

func (s *Store) check(ctx context.Context, key string, limits models.Limits) (*models.Decision, error) {
	now := requestcontext.Now(ctx)

	count, found, err := s.client.Get(ctx, key)
	if err != nil {
		return nil, &StoreError{Op: OpGet, Key: key, Err: err}
	}

	if !found {
		if err := s.client.SetWithExpiry(ctx, key, 1, limits.Window); err != nil {
			return nil, &StoreError{Op: OpSet, Key: key, Err: err}
		}
		return &models.Decision{
			Allowed:   true,
			Limit:     limits.MaxRequests,
			Remaining: limits.MaxRequests - 1,
			ResetAt:   now.Add(limits.Window),
			Backend:   models.BackendRemote,
		}, nil
	}

	ttl, known, err := s.client.TTL(ctx, key)
	if err != nil {
		return nil, &StoreError{Op: OpTTL, Key: key, Err: err}
	}
	if !known || ttl <= 0 {
		ttl = limits.Window
	}
	resetAt := now.Add(ttl)

	if count >= int64(limits.MaxRequests) {
		return &models.Decision{
			Allowed:   false,
			Limit:     limits.MaxRequests,
			Remaining: 0,
			ResetAt:   resetAt,
			Backend:   models.BackendRemote,
		}, nil
	}

	if _, err := s.client.Increment(ctx, key); err != nil {
		return nil, &StoreError{Op: OpIncrement, Key: key, Err: err}
	}
	return &models.Decision{
		Allowed:   true,
		Limit:     limits.MaxRequests,
		Remaining: max(0, limits.MaxRequests-int(count)-1),
		ResetAt:   resetAt,
		Backend:   models.BackendRemote,
	}, nil
}

// Package ports defines shared interfaces for the ratelimit module.
// Interfaces are placed here when consumed by multiple packages to avoid duplication.
package ports

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"log/slog"
	"time"

	"gatekeeper/internal/ratelimit/models"
	request "gatekeeper/pkg/platform/middleware/request"
)

// WindowStore manages fixed-window counters keyed by client.
type WindowStore interface {
	// Check records one request for key and reports whether it is admitted.
	Check(ctx context.Context, key string, limits models.Limits) (*models.Decision, error)
}

// LocalWindowStore is the in-process window store, which also supports clearing
// a single client's window.
type LocalWindowStore interface {
	WindowStore
	Reset(ctx context.Context, key string) error
}

// RemoteClient is the subset of a distributed key-value store the remote window
// store needs. Implementations must be safe for concurrent use.
type RemoteClient interface {
	// Get returns the counter stored at key; found is false when the key is absent.
	Get(ctx context.Context, key string) (value int64, found bool, err error)

	// SetWithExpiry stores value at key with a millisecond-precision expiry.
	SetWithExpiry(ctx context.Context, key string, value int64, expiry time.Duration) error

	// Increment atomically adds one to the counter at key and returns the new value.
	Increment(ctx context.Context, key string) (int64, error)

	// TTL returns the remaining lifetime of key; known is false when the store
	// cannot report one (missing key or no expiry).
	TTL(ctx context.Context, key string) (ttl time.Duration, known bool, err error)
}

// LogEvent logs a limiter event with the request ID attached for traceability.
func LogEvent(ctx context.Context, logger *slog.Logger, level slog.Level, event string, attrs ...any) {
	if logger == nil {
		return
	}
	if requestID := request.GetRequestID(ctx); requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}
	args := append(attrs, "event", event)
	logger.Log(ctx, level, event, args...)
}

package testutil

import (
	"net/http"
	"time"

	"gatekeeper/pkg/requestcontext"
)

// WithRequestTime pins the request-scoped clock.
// This simulates what the requesttime middleware would do, at a chosen instant.
func WithRequestTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}

// WithClientIP adds a resolved client IP to the request context.
// This simulates what the metadata middleware would do.
func WithClientIP(req *http.Request, ip string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, req.UserAgent()))
}

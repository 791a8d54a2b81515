package metadata

import (
	"context"
	"net"
	"net/http"
	"strings"

	"gatekeeper/pkg/requestcontext"
)

// UnknownClient is the identifier used when no address source is present.
// All such requests share one rate-limit bucket.
const UnknownClient = "unknown"

// ClientMetadata extracts client IP address and User-Agent from the request
// and adds them to the context for use by handlers and services.
// This middleware should be applied early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClientIP retrieves the client IP address from the context.
func GetClientIP(ctx context.Context) string {
	return requestcontext.ClientIP(ctx)
}

// GetUserAgent retrieves the User-Agent from the context.
func GetUserAgent(ctx context.Context) string {
	return requestcontext.UserAgent(ctx)
}

// ClientIPFromRequest extracts the real client IP from the request, handling proxies and load balancers.
//
// Precedence, first non-empty wins:
//  1. first entry of X-Forwarded-For
//  2. X-Real-IP
//  3. the transport peer address (port stripped)
//  4. "unknown"
func ClientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs (client, proxy1, proxy2, ...)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	if addr := strings.TrimSpace(r.RemoteAddr); addr != "" {
		// "ip:port" or "[v6]:port"; bare addresses are used as-is
		if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
			return host
		}
		return addr
	}

	return UnknownClient
}

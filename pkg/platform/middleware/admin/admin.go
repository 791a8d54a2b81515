package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"gatekeeper/pkg/platform/httputil"
	request "gatekeeper/pkg/platform/middleware/request"
)

// AdminTokenHeader carries the operator token for the rate-limit admin routes.
const AdminTokenHeader = "X-Admin-Token"

// RequireAdminToken rejects requests whose X-Admin-Token does not match expectedToken.
// An empty expectedToken rejects everything; callers mount admin routes only when a
// token is configured.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(AdminTokenHeader)
			// Use constant-time comparison to prevent timing attacks
			if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", request.GetRequestID(ctx),
					"path", r.URL.Path,
				)
				httputil.WriteError(w, http.StatusUnauthorized, "unauthorized", "admin token required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

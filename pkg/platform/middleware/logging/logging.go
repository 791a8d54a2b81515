// Package logging writes one structured access log line per request.
package logging

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	metadata "gatekeeper/pkg/platform/middleware/metadata"
	request "gatekeeper/pkg/platform/middleware/request"
	"gatekeeper/pkg/platform/privacy"
)

// Logger logs method, path, status and latency. 5xx responses log at error,
// 429 at warn, everything else at info.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			switch {
			case status >= http.StatusInternalServerError:
				level = slog.LevelError
			case status == http.StatusTooManyRequests:
				level = slog.LevelWarn
			}

			ctx := r.Context()
			logger.Log(ctx, level, "http request",
				"request_id", request.GetRequestID(ctx),
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
				"client_ip", privacy.AnonymizeIP(metadata.GetClientIP(ctx)),
				"user_agent", metadata.GetUserAgent(ctx),
			)
		})
	}
}

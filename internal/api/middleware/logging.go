package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dom/learnhub-api/internal/logging"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// RequestLogger puts a request-scoped logger into the context and writes one
// access log line per request. It must run after chi's RequestID middleware.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := base.With(
				"method", r.Method,
				"path", r.URL.Path,
				"remote_ip", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
			if rid := chiMiddleware.GetReqID(r.Context()); rid != "" {
				l = l.With("request_id", rid)
				w.Header().Set(chiMiddleware.RequestIDHeader, rid)
			}

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(logging.IntoContext(r.Context(), l)))
			dur := time.Since(start)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			switch {
			case status >= 500:
				l.Error("request completed", "status", status, "duration_ms", dur.Milliseconds())
			case status >= 400:
				l.Warn("request completed", "status", status, "duration_ms", dur.Milliseconds())
			default:
				l.Info("request completed", "status", status, "duration_ms", dur.Milliseconds(), "bytes", ww.BytesWritten())
			}
		})
	}
}

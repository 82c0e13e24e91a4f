package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/pribylovaa/go-jwt-auth/internal/pkg/log"
)

// Logging кладёт в контекст request-scoped логгер (с request_id)
// и пишет одну запись "http" на запрос.
func Logging(l *slog.Logger) Middleware {
	if l == nil {
		l = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLogger := l
			if rid := r.Header.Get("X-Request-Id"); rid != "" {
				reqLogger = reqLogger.With(slog.String("request_id", rid))
			}
			r = r.WithContext(log.Into(r.Context(), reqLogger))

			sw := newStatusWriter(w)
			start := time.Now()
			next.ServeHTTP(sw, r)
			dur := time.Since(start)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", sw.statusCode()),
				slog.Duration("dur", dur),
				slog.Int("bytes", sw.count),
			}

			level := slog.LevelInfo
			if sw.statusCode() >= http.StatusInternalServerError {
				level = slog.LevelError
			}

			log.From(r.Context()).LogAttrs(r.Context(), level, "http", attrs...)
		})
	}
}

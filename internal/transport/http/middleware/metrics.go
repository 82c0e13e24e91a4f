package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// HTTPObserver принимает наблюдения о запросах.
type HTTPObserver interface {
	ObserveHTTP(route, method string, status int, dur time.Duration)
}

// Metrics учитывает запросы по шаблону маршрута chi, а не по сырому пути.
func Metrics(o HTTPObserver) Middleware {
	return func(next http.Handler) http.Handler {
		if o == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := newStatusWriter(w)
			start := time.Now()
			next.ServeHTTP(sw, r)

			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil {
				if p := rc.RoutePattern(); p != "" {
					route = p
				}
			}

			o.ObserveHTTP(route, r.Method, sw.statusCode(), time.Since(start))
		})
	}
}

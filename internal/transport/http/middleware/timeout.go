package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	apierrors "github.com/pribylovaa/go-jwt-auth/internal/transport/http/errors"
)

// Timeout ограничивает время обработки запроса значением d.
// Существующий deadline не продлевается; d <= 0 отключает мидлвар.
// Если обработчик вернулся по истёкшему deadline и ничего не записал,
// клиент получает 504 deadline_exceeded.
func Timeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if _, ok := ctx.Deadline(); !ok {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
				r = r.WithContext(ctx)
			}

			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r)

			if sw.status == 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				apierrors.WriteError(sw, r, ctx.Err())
			}
		})
	}
}

package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pribylovaa/go-jwt-auth/internal/pkg/log"
	"github.com/pribylovaa/go-jwt-auth/internal/token"
	apierrors "github.com/pribylovaa/go-jwt-auth/internal/transport/http/errors"
)

type claimsKey struct{}

// AccessVerifier проверяет access-токены.
type AccessVerifier interface {
	VerifyAccessToken(raw string) (*token.VerifiedClaims, error)
}

// Authenticate требует действительный access-токен в Authorization: Bearer.
// Нет токена - 401 unauthorized; токен недействителен или просрочен - 403 forbidden.
// Проверенные claims доступны обработчику через ClaimsFrom.
func Authenticate(v AccessVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearer(r)
			if !ok {
				apierrors.WriteError(w, r, apierrors.ErrUnauthorized)
				return
			}

			vc, err := v.VerifyAccessToken(raw)
			if err != nil {
				log.From(r.Context()).Debug("access_token_rejected",
					slog.String("reason", string(token.ReasonOf(err))),
				)
				apierrors.WriteError(w, r, apierrors.ErrForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), vc)))
		})
	}
}

// OptionalAuth кладёт claims в контекст, если передан действительный токен,
// и пропускает запрос в любом случае.
func OptionalAuth(v AccessVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if raw, ok := bearer(r); ok {
				if vc, err := v.VerifyAccessToken(raw); err == nil {
					r = r.WithContext(withClaims(r.Context(), vc))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClaimsFrom возвращает проверенные claims из контекста.
func ClaimsFrom(ctx context.Context) (*token.VerifiedClaims, bool) {
	vc, ok := ctx.Value(claimsKey{}).(*token.VerifiedClaims)
	return vc, ok && vc != nil
}

func withClaims(ctx context.Context, vc *token.VerifiedClaims) context.Context {
	ctx = context.WithValue(ctx, claimsKey{}, vc)
	return log.With(ctx, slog.String("user_id", vc.Subject))
}

// bearer извлекает токен из Authorization. Схема сравнивается без учёта регистра.
func bearer(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")

	const prefix = "bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}

	raw := strings.TrimSpace(auth[len(prefix):])
	return raw, raw != ""
}

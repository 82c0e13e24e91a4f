// http собирает REST-интерфейс сервиса на chi.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/go-jwt-auth/internal/config"
	"github.com/pribylovaa/go-jwt-auth/internal/service"
	"github.com/pribylovaa/go-jwt-auth/internal/token"
	apierrors "github.com/pribylovaa/go-jwt-auth/internal/transport/http/errors"
	"github.com/pribylovaa/go-jwt-auth/internal/transport/http/handlers"
	"github.com/pribylovaa/go-jwt-auth/internal/transport/http/middleware"
)

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger   *slog.Logger
	Timeout  time.Duration
	BasePath string // например, "/api"; если пустой — роуты регистрируются на корне.
	Metrics  middleware.HTTPObserver
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(svc *service.Service, engine *token.Engine, cfg config.AuthConfig, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),            // безопасно ловим паники
		middleware.RequestID(),          // формируем/прокидываем X-Request-Id (до логирования!)
		middleware.Logging(opts.Logger), // кладём request-scoped логгер в контекст и логируем
	)
	if opts.Metrics != nil {
		root.Use(middleware.Metrics(opts.Metrics))
	}
	if opts.Timeout > 0 {
		root.Use(middleware.Timeout(opts.Timeout)) // общий дедлайн запроса
	}

	root.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, r, http.StatusNotFound, "not_found", "not found")
	})
	root.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	h := handlers.New(svc, engine, cfg)

	if opts.BasePath != "" && opts.BasePath != "/" {
		sub := chi.NewRouter()
		registerRoutes(sub, h, engine)
		root.Mount(opts.BasePath, sub)
		return root
	}

	registerRoutes(root, h, engine)
	return root
}

// registerRoutes — единая точка регистрации всех REST-эндпойнтов.
func registerRoutes(r chi.Router, h *handlers.Handlers, engine *token.Engine) {
	// публичные; access-токен, если передан, только дополняет логи
	r.Group(func(r chi.Router) {
		r.Use(middleware.OptionalAuth(engine))

		// учётные записи и сессии
		r.Post("/signup", h.Signup)
		r.Post("/signin", h.Signin)
		r.Post("/refresh", h.Refresh)
		r.Post("/logout", h.Logout)

		// инспекция токенов
		r.Post("/verify", h.Verify)
		r.Post("/decode", h.Decode)

		// пароль и e-mail
		r.Post("/password/forgot", h.ForgotPassword)
		r.Post("/password/reset", h.ResetPassword)
		r.Post("/email/verify", h.VerifyEmail)
	})

	// требуют access-токен
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(engine))

		r.Post("/revoke-all", h.RevokeAll)
		r.Get("/info", h.Info)
		r.Post("/generate", h.Generate)
		r.Get("/me", h.Me)
		r.Post("/email/verify/request", h.RequestEmailVerification)
	})
}

func writeStatus(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	resp := apierrors.ErrorResponse{Error: apierrors.APIError{Code: code, Message: msg}}
	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

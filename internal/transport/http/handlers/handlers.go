package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-jwt-auth/internal/config"
	"github.com/pribylovaa/go-jwt-auth/internal/service"
	"github.com/pribylovaa/go-jwt-auth/internal/token"
	apierrors "github.com/pribylovaa/go-jwt-auth/internal/transport/http/errors"
	"github.com/pribylovaa/go-jwt-auth/internal/transport/http/middleware"
)

// maxBodyBytes — предел размера тела запроса.
const maxBodyBytes = 1 << 20

// Handlers агрегирует зависимости обработчиков.
type Handlers struct {
	svc    *service.Service
	engine *token.Engine
	cfg    config.AuthConfig
	now    func() time.Time
}

func New(svc *service.Service, engine *token.Engine, cfg config.AuthConfig) *Handlers {
	return &Handlers{svc: svc, engine: engine, cfg: cfg, now: time.Now}
}

// writeJSON — единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict — строгий JSON-декодер: запрещаем неизвестные поля,
// лишние данные после объекта и тела больше maxBodyBytes.
func decodeStrict(w http.ResponseWriter, r *http.Request, value any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(value); err != nil {
		return fmt.Errorf("%w: %v", apierrors.ErrBadRequest, err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data", apierrors.ErrBadRequest)
	}

	return nil
}

// subject возвращает ID пользователя из проверенного access-токена.
func subject(r *http.Request) (uuid.UUID, error) {
	vc, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		return uuid.Nil, apierrors.ErrUnauthorized
	}

	id, err := vc.UserID()
	if err != nil {
		return uuid.Nil, apierrors.ErrForbidden
	}

	return id, nil
}

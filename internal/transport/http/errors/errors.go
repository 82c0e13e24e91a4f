// errors стандартизирует ответы об ошибках HTTP-слоя.
// На вход он принимает доменную ошибку (виды из service, session, token),
// а на выход даёт:
//   - корректный HTTP-статус;
//   - короткий стабильный код и безопасное message без утечки деталей.
//
// Ошибки проверки токенов и учётных данных сводятся к одному ответу
// "unauthorized": клиент не узнаёт, какая именно проверка не прошла.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/pribylovaa/go-jwt-auth/internal/service"
	"github.com/pribylovaa/go-jwt-auth/internal/session"
	"github.com/pribylovaa/go-jwt-auth/internal/token"
)

// Нестандартный код часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

// Ошибки самого транспорта.
var (
	// ErrBadRequest — тело запроса не разобрано или не прошло проверку.
	ErrBadRequest = stderrors.New("bad request")
	// ErrUnauthorized — нет Bearer-токена (или учётные данные отклонены).
	ErrUnauthorized = stderrors.New("unauthorized")
	// ErrForbidden — Bearer-токен есть, но недействителен или просрочен.
	ErrForbidden = stderrors.New("forbidden")
)

// APIError — единый формат для фронта.
// Code — короткий стабильный код для машиночитаемой обработки на FE.
// Message — безопасное человекочитаемое описание.
// RequestID — прокидывается из X-Request-Id, если есть (для трассировки).
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse — корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// ToHTTP конвертирует доменную ошибку в HTTP-статус и унифицированный ответ.
//
// Поведение:
//   - err == nil - программная ошибка вызова: 500/internal, чтобы не послать
//     "200 OK" с телом ошибки и не маскировать баг.
//   - неизвестная ошибка (в том числе service.ErrStore) - 500/internal без деталей.
func ToHTTP(err error) (int, ErrorResponse) {
	status, code, msg := classify(err)

	return status, ErrorResponse{
		Error: APIError{
			Code:    code,
			Message: msg,
		},
	}
}

// WriteError — хелпер для HTTP-хендлеров.
// Пишет корректный статус/тело, добавляет request_id из заголовка, если он есть.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	// Прокидываем request_id для фронта, чтобы он мог репортить баги с привязкой.
	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// classify — таблица соответствия видов ошибок и ответов:
//   - ErrBadRequest, ErrInvalidEmail, ErrWeakPassword, ErrEmptyPassword,
//     ErrInvalidActionToken, ErrInvalidTTL -> 400
//   - ErrMalformed (только /decode) -> 400/malformed
//   - ErrInvalidCredentials, ErrInvalidToken, ErrTokenRevoked, ErrUnauthorized -> 401
//   - ErrForbidden -> 403
//   - ErrUserNotFound -> 404
//   - ErrEmailTaken -> 409
//   - context.Canceled -> 499, context.DeadlineExceeded -> 504
//   - прочее -> 500/internal
func classify(err error) (int, string, string) {
	switch {
	case err == nil:
		return http.StatusInternalServerError, "internal", "internal error"
	case stderrors.Is(err, service.ErrInvalidEmail):
		return http.StatusBadRequest, "invalid_email", "invalid email"
	case stderrors.Is(err, service.ErrEmptyPassword):
		return http.StatusBadRequest, "empty_password", "password is empty"
	case stderrors.Is(err, service.ErrWeakPassword):
		return http.StatusBadRequest, "weak_password",
			"password must be at least 8 characters and contain lower, upper, digit and special characters"
	case stderrors.Is(err, service.ErrInvalidActionToken):
		return http.StatusBadRequest, "invalid_action_token", "invalid or expired token"
	case stderrors.Is(err, token.ErrInvalidTTL):
		return http.StatusBadRequest, "invalid_argument", "invalid expires_in"
	case stderrors.Is(err, token.ErrMalformed):
		return http.StatusBadRequest, "malformed", "malformed token"
	case stderrors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "invalid_argument", "invalid argument"
	case stderrors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid email or password"
	case stderrors.Is(err, token.ErrInvalidToken),
		stderrors.Is(err, session.ErrTokenRevoked),
		stderrors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized", "unauthorized"
	case stderrors.Is(err, ErrForbidden):
		return http.StatusForbidden, "forbidden", "forbidden"
	case stderrors.Is(err, session.ErrUserNotFound):
		return http.StatusNotFound, "not_found", "not found"
	case stderrors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict, "email_taken", "email already taken"
	case stderrors.Is(err, context.Canceled):
		return StatusClientClosedRequest, "canceled", "canceled"
	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "deadline_exceeded", "deadline exceeded"
	default:
		return http.StatusInternalServerError, "internal", "internal error"
	}
}

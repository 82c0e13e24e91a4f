package token

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidToken — токен не прошёл проверку (подпись, срок, структура, claims).
	// Конкретная причина доступна через *InvalidTokenError.
	ErrInvalidToken = errors.New("invalid token")

	// ErrMalformed — токен не разбирается даже без проверки подписи (только Decode).
	ErrMalformed = errors.New("malformed token")

	// ErrInvalidTTL — некорректный срок жизни токена.
	ErrInvalidTTL = errors.New("invalid token ttl")

	// ErrConfig — движок сконфигурирован некорректно.
	ErrConfig = errors.New("invalid token engine config")

	// ErrEmptySubject — попытка выпустить токен без subject.
	ErrEmptySubject = errors.New("token subject is empty")
)

// Reason — машиночитаемая причина отказа проверки токена.
type Reason string

const (
	ReasonMalformed   Reason = "malformed"
	ReasonSignature   Reason = "signature"
	ReasonExpired     Reason = "expired"
	ReasonNotYetValid Reason = "not_yet_valid"
	ReasonClaims      Reason = "claims"
	ReasonWrongType   Reason = "wrong_type"
)

// InvalidTokenError — отказ проверки токена с причиной.
// errors.Is(err, ErrInvalidToken) истинно для любой причины.
type InvalidTokenError struct {
	Reason Reason
	Err    error
}

func (e *InvalidTokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid token (%s): %v", e.Reason, e.Err)
	}

	return fmt.Sprintf("invalid token (%s)", e.Reason)
}

func (e *InvalidTokenError) Is(target error) bool {
	return target == ErrInvalidToken
}

func (e *InvalidTokenError) Unwrap() error {
	return e.Err
}

// ReasonOf извлекает причину из ошибки проверки. Пустая строка — не ошибка токена.
func ReasonOf(err error) Reason {
	var ite *InvalidTokenError
	if errors.As(err, &ite) {
		return ite.Reason
	}

	return ""
}

func invalid(reason Reason, err error) error {
	return &InvalidTokenError{Reason: reason, Err: err}
}

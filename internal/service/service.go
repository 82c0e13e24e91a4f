// service содержит бизнес-логику auth-сервиса: регистрацию и вход,
// ротацию и отзыв сессий, сброс пароля и подтверждение e-mail.
//
// Основные аспекты:
//   - Service не хранит состояние запроса и безопасен для конкурентного
//     использования, если безопасны хранилище и менеджер сессий.
//   - Ошибки возвращаются видами (переменные ниже) и далее маппятся
//     транспортом на HTTP-статусы.
//   - Письма отправляются в фоне и на результат операции не влияют.
package service

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pribylovaa/go-jwt-auth/internal/config"
	"github.com/pribylovaa/go-jwt-auth/internal/metrics"
	"github.com/pribylovaa/go-jwt-auth/internal/notify"
	"github.com/pribylovaa/go-jwt-auth/internal/password"
	"github.com/pribylovaa/go-jwt-auth/internal/session"
	"github.com/pribylovaa/go-jwt-auth/internal/storage"
)

var (
	// ErrInvalidCredentials — пара логин/пароль неверна или пользователь не найден.
	// Оба случая неразличимы для клиента. HTTP 401.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEmailTaken — e-mail уже занят другим пользователем. HTTP 409.
	ErrEmailTaken = errors.New("email already taken")

	// ErrInvalidEmail — e-mail имеет некорректный формат. HTTP 400.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrWeakPassword — пароль не удовлетворяет политике сложности. HTTP 400.
	ErrWeakPassword = errors.New("password is too weak")

	// ErrEmptyPassword — пароль пустой. HTTP 400.
	ErrEmptyPassword = errors.New("password is empty")

	// ErrInvalidActionToken — токен сброса пароля/подтверждения не найден,
	// уже использован, просрочен или другого назначения. HTTP 400.
	ErrInvalidActionToken = errors.New("invalid or expired action token")

	// ErrStore — хранилище недоступно или нарушено ограничение.
	// Склеивается с исходной ошибкой через errors.Join. HTTP 500.
	ErrStore = errors.New("store error")
)

// Service описывает бизнес-логику auth-сервиса.
type Service struct {
	store    storage.Storage
	sessions *session.Manager
	hasher   password.Hasher
	notifier *notify.Notifier
	cfg      config.AuthConfig
	metrics  metrics.Recorder
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// New создаёт новый экземпляр Service.
func New(
	store storage.Storage,
	sessions *session.Manager,
	hasher password.Hasher,
	notifier *notify.Notifier,
	cfg config.AuthConfig,
) *Service {
	return &Service{
		store:    store,
		sessions: sessions,
		hasher:   hasher,
		notifier: notifier,
		cfg:      cfg,
		metrics:  metrics.Nop{},
		now:      time.Now,
	}
}

// SetMetrics устанавливает получателя метрик (опционально).
func (s *Service) SetMetrics(r metrics.Recorder) {
	if r != nil {
		s.metrics = r
	}
}

// storeErr помечает ошибку хранилища видом ErrStore, сохраняя причину.
func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(ErrStore, err))
}

func outcome(err error) string {
	if err != nil {
		return metrics.OutcomeFailure
	}

	return metrics.OutcomeSuccess
}

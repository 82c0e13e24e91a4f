// storage описывает контракт хранилища учётных данных.
// Каждая операция атомарна в пределах записи одного пользователя.
package storage

//go:generate mockgen -source=storage.go -destination=../../mocks/mock_storage.go -package=mocks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-jwt-auth/internal/models"
)

var (
	// ErrNotFound — запись не найдена (пользователь/токен).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (email/хэш токена).
	ErrAlreadyExists = errors.New("already exists")
)

// UserStorage выполняет операции над пользователями.
type UserStorage interface {
	// CreateUser создаёт пользователя; ErrAlreadyExists при занятом email.
	CreateUser(ctx context.Context, user *models.User) error
	// UserByEmail находит пользователя по нормализованному email.
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// UpdatePassword заменяет хэш пароля.
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string, now time.Time) error
	// MarkEmailVerified отмечает email подтверждённым.
	MarkEmailVerified(ctx context.Context, id uuid.UUID, now time.Time) error
	// DeleteUser удаляет пользователя вместе с его токенами; ErrNotFound, если его нет.
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// RefreshTokenStorage — множество действующих refresh-токенов пользователя.
type RefreshTokenStorage interface {
	// AddRefreshToken добавляет токен в множество пользователя.
	AddRefreshToken(ctx context.Context, token *models.RefreshToken) error
	// RemoveRefreshToken удаляет токен, если он есть в множестве.
	// true — токен был и удалён этим вызовом.
	RemoveRefreshToken(ctx context.Context, userID uuid.UUID, hash string) (bool, error)
	// ReplaceRefreshToken одной условной операцией удаляет oldHash и добавляет next.
	// false — oldHash уже отсутствует (отозван или использован), next не сохранён.
	ReplaceRefreshToken(ctx context.Context, userID uuid.UUID, oldHash string, next *models.RefreshToken) (bool, error)
	// RemoveSession удаляет все токены сессии и возвращает их количество.
	RemoveSession(ctx context.Context, userID, sessionID uuid.UUID) (int64, error)
	// ClearRefreshTokens очищает множество пользователя.
	ClearRefreshTokens(ctx context.Context, userID uuid.UUID) (int64, error)
	// DeleteExpiredRefreshTokens удаляет все просроченные токены.
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

// ActionTokenStorage — одноразовые токены сброса пароля/подтверждения email.
type ActionTokenStorage interface {
	// SaveActionToken сохраняет токен действия.
	SaveActionToken(ctx context.Context, token *models.ActionToken) error
	// ConsumeActionToken атомарно удаляет и возвращает действующий токен.
	// ErrNotFound — токена нет, он другого назначения или просрочен.
	ConsumeActionToken(ctx context.Context, hash string, purpose models.ActionPurpose, now time.Time) (*models.ActionToken, error)
}

// Storage задаёт контракт работы с хранилищем учётных данных.
type Storage interface {
	UserStorage
	RefreshTokenStorage
	ActionTokenStorage
	Close()
}

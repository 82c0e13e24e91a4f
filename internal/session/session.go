// session сверяет ротацию refresh-токенов с хранилищем.
//
// Подпись и срок refresh-токена проверяет token.Engine, а действительность
// определяется наличием его хэша в множестве пользователя. Использованный
// или отозванный токен с корректной подписью отклоняется как ErrTokenRevoked.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-jwt-auth/internal/cache"
	"github.com/pribylovaa/go-jwt-auth/internal/metrics"
	"github.com/pribylovaa/go-jwt-auth/internal/models"
	"github.com/pribylovaa/go-jwt-auth/internal/pkg/log"
	"github.com/pribylovaa/go-jwt-auth/internal/storage"
	"github.com/pribylovaa/go-jwt-auth/internal/token"
	"github.com/pribylovaa/go-jwt-auth/pkg/redact"
)

var (
	// ErrTokenRevoked — подпись верна, но токена нет в множестве пользователя
	// (уже использован при ротации или отозван).
	ErrTokenRevoked = errors.New("token revoked")

	// ErrUserNotFound — subject токена не соответствует пользователю.
	ErrUserNotFound = errors.New("user not found")

	// ErrRefreshTokenCollision — исчерпаны попытки сохранить уникальный хэш.
	ErrRefreshTokenCollision = errors.New("refresh token collision")
)

// Store — часть хранилища, с которой работает менеджер.
type Store interface {
	storage.UserStorage
	storage.RefreshTokenStorage
}

// Manager выпускает, ротирует и отзывает сессии. Безопасен для конкурентного
// использования, если безопасно хранилище.
type Manager struct {
	store   Store
	engine  *token.Engine
	rcache  cache.RefreshCache // может быть nil
	metrics metrics.Recorder
	now     func() time.Time
}

// New создаёт менеджер сессий.
func New(store Store, engine *token.Engine) *Manager {
	return &Manager{
		store:   store,
		engine:  engine,
		metrics: metrics.Nop{},
		now:     time.Now,
	}
}

// SetRefreshCache устанавливает кэш израсходованных refresh-токенов (опционально).
func (m *Manager) SetRefreshCache(c cache.RefreshCache) {
	m.rcache = c
}

// SetMetrics устанавливает получателя метрик.
func (m *Manager) SetMetrics(r metrics.Recorder) {
	if r != nil {
		m.metrics = r
	}
}

// IssueInitial открывает новую сессию пользователя и выдаёт пару токенов.
func (m *Manager) IssueInitial(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	const (
		op          = "session.IssueInitial"
		maxAttempts = 3
	)

	lg := log.From(ctx)
	sid := uuid.New()

	for attempt := 0; attempt < maxAttempts; attempt++ {
		pair, rec, err := m.issuePair(user, sid)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		if err := m.store.AddRefreshToken(ctx, rec); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				// Коллизия хэша — выпускаем заново.
				continue
			}
			if errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
			}

			lg.Error("save_refresh_token_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		lg.Debug("session_opened",
			slog.String("user_id", user.ID.String()),
			slog.String("session_id", sid.String()),
		)
		return pair, nil
	}

	lg.Error("refresh_collision_exceeded", slog.String("op", op))

	return nil, fmt.Errorf("%s: %w", op, ErrRefreshTokenCollision)
}

// Rotate обменивает предъявленный refresh-токен на новую пару.
//
//  1. Проверка подписи и срока (ErrInvalidToken).
//  2. Поиск пользователя по subject (ErrUserNotFound).
//  3-4. Условная замена хэша в хранилище одной операцией: из конкурентных
//     вызовов с одним токеном успешен ровно один, остальные — ErrTokenRevoked.
//
// Новый refresh-токен наследует идентификатор сессии.
func (m *Manager) Rotate(ctx context.Context, presented string) (*models.TokenPair, *models.User, error) {
	const op = "session.Rotate"

	lg := log.From(ctx)

	vc, userID, sid, err := m.verify(presented)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	hash := token.HashRefreshToken(presented)

	if m.consumedInCache(ctx, hash) {
		m.reuseDetected(ctx, userID, sid, "cache")
		return nil, nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	user, err := m.store.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("refresh_user_not_found", slog.String("user_id", userID.String()))
			return nil, nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := m.replace(ctx, op, user, hash, sid)
	if err != nil {
		return nil, nil, err
	}

	m.rememberConsumed(ctx, hash, userID, sid, vc.ExpiresAt)

	lg.Info("refresh_rotated",
		slog.String("user_id", userID.String()),
		slog.String("session_id", sid.String()),
	)

	return pair, user, nil
}

// replace выпускает новую пару и условно подменяет ею hash. Коллизия хэша
// нового токена оставляет старый на месте, поэтому выпуск повторяется.
func (m *Manager) replace(ctx context.Context, op string, user *models.User, hash string, sid uuid.UUID) (*models.TokenPair, error) {
	const maxAttempts = 3

	lg := log.From(ctx)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		pair, next, err := m.issuePair(user, sid)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		replaced, err := m.store.ReplaceRefreshToken(ctx, user.ID, hash, next)
		if err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				continue
			}

			lg.Error("refresh_replace_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if !replaced {
			m.reuseDetected(ctx, user.ID, sid, "store")
			return nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
		}

		return pair, nil
	}

	lg.Error("refresh_collision_exceeded", slog.String("op", op))

	return nil, fmt.Errorf("%s: %w", op, ErrRefreshTokenCollision)
}

// Revoke завершает сессию, которой принадлежит refresh-токен.
// Возвращает число удалённых токенов; повторный вызов даёт 0 и не является ошибкой.
func (m *Manager) Revoke(ctx context.Context, presented string) (int64, error) {
	const op = "session.Revoke"

	vc, userID, sid, err := m.verify(presented)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	n, err := m.store.RemoveSession(ctx, userID, sid)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	m.rememberConsumed(ctx, token.HashRefreshToken(presented), userID, sid, vc.ExpiresAt)

	log.From(ctx).Info("session_revoked",
		slog.String("user_id", userID.String()),
		slog.String("session_id", sid.String()),
		slog.Int64("tokens", n),
	)

	return n, nil
}

// RevokeAll очищает все сессии пользователя. Идемпотентна.
func (m *Manager) RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	const op = "session.RevokeAll"

	n, err := m.store.ClearRefreshTokens(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("sessions_revoked_all",
		slog.String("user_id", userID.String()),
		slog.Int64("tokens", n),
	)

	return n, nil
}

// verify проверяет refresh-токен и извлекает пользователя и сессию.
func (m *Manager) verify(presented string) (*token.VerifiedClaims, uuid.UUID, uuid.UUID, error) {
	vc, err := m.engine.VerifyRefreshToken(presented)
	if err != nil {
		return nil, uuid.Nil, uuid.Nil, err
	}

	userID, err := vc.UserID()
	if err != nil {
		return nil, uuid.Nil, uuid.Nil, err
	}

	sid, err := uuid.Parse(vc.SessionID)
	if err != nil {
		return nil, uuid.Nil, uuid.Nil, &token.InvalidTokenError{Reason: token.ReasonClaims, Err: err}
	}

	return vc, userID, sid, nil
}

// issuePair выпускает access+refresh и запись для хранилища.
func (m *Manager) issuePair(user *models.User, sid uuid.UUID) (*models.TokenPair, *models.RefreshToken, error) {
	access, accessExp, err := m.engine.IssueAccessToken(token.Claims{
		Subject: user.ID.String(),
		Email:   user.Email,
		Name:    user.Name,
	}, 0)
	if err != nil {
		return nil, nil, err
	}

	refresh, refreshExp, err := m.engine.IssueRefreshToken(user.ID.String(), sid.String(), 0)
	if err != nil {
		return nil, nil, err
	}

	rec := &models.RefreshToken{
		Hash:      token.HashRefreshToken(refresh),
		UserID:    user.ID,
		SessionID: sid,
		CreatedAt: m.now().UTC(),
		ExpiresAt: refreshExp,
	}

	return &models.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, rec, nil
}

func (m *Manager) consumedInCache(ctx context.Context, hash string) bool {
	if m.rcache == nil {
		return false
	}

	e, ok, err := m.rcache.Get(ctx, hash)
	if err != nil {
		// Кэш не источник истины: при ошибке идём в хранилище.
		log.From(ctx).Warn("refresh_cache_get_failed", slog.String("err", err.Error()))
		return false
	}

	return ok && e.Revoked
}

func (m *Manager) rememberConsumed(ctx context.Context, hash string, userID, sid uuid.UUID, exp time.Time) {
	if m.rcache == nil {
		return
	}

	e := &cache.RefreshEntry{UserID: userID, SessionID: sid, Revoked: true, ExpiresAt: exp}
	if err := m.rcache.Set(ctx, hash, e, exp.Sub(m.now())); err != nil {
		log.From(ctx).Warn("refresh_cache_set_failed", slog.String("err", err.Error()))
	}
}

func (m *Manager) reuseDetected(ctx context.Context, userID, sid uuid.UUID, source string) {
	m.metrics.RefreshReuse()

	log.From(ctx).Warn("refresh_reuse_detected",
		slog.String("user_id", userID.String()),
		slog.String("session_id", sid.String()),
		slog.String("source", source),
		slog.String("token", redact.Token()),
	)
}

package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-jwt-auth/internal/models"
	"github.com/pribylovaa/go-jwt-auth/internal/pkg/log"
	"github.com/pribylovaa/go-jwt-auth/internal/session"
	"github.com/pribylovaa/go-jwt-auth/internal/storage"
	"github.com/pribylovaa/go-jwt-auth/pkg/redact"
)

// actionTokenBytes — длина секрета токена действия до hex-кодирования.
const actionTokenBytes = 32

// RequestPasswordReset создаёт одноразовый токен сброса и отправляет ссылку.
// Для неизвестного e-mail ничего не делает и возвращает nil.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (err error) {
	const op = "service.action.RequestPasswordReset"

	defer func() { s.metrics.AuthEvent("password_reset_request", outcome(err)) }()

	normEmail, err := validateEmail(email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	user, err := s.store.UserByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.From(ctx).Debug("password_reset_unknown_email", slog.String("email", redact.Email(normEmail)))
			return nil
		}

		return storeErr(op, err)
	}

	raw, err := s.issueActionToken(ctx, user.ID, models.PurposePasswordReset, s.cfg.ResetTokenTTL)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.notifier.Dispatch(ctx, "password_reset", func(ctx context.Context) error {
		return s.notifier.SendPasswordReset(ctx, user.Email, raw, user.ID.String())
	})

	return nil
}

// ResetPassword меняет пароль по токену сброса и завершает все сессии пользователя.
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) (err error) {
	const op = "service.action.ResetPassword"

	defer func() { s.metrics.AuthEvent("password_reset", outcome(err)) }()

	if err := validatePassword(newPassword); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	at, err := s.consumeActionToken(ctx, rawToken, models.PurposePasswordReset)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.store.UpdatePassword(ctx, at.UserID, hash, s.now().UTC()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, session.ErrUserNotFound)
		}

		// Ссылка остаётся рабочей: токен возвращается в хранилище.
		s.restoreActionToken(ctx, rawToken, at)

		return storeErr(op, err)
	}

	if _, err := s.sessions.RevokeAll(ctx, at.UserID); err != nil {
		return storeErr(op, err)
	}

	log.From(ctx).Info("password_reset", slog.String("user_id", at.UserID.String()))

	return nil
}

// RequestEmailVerification отправляет новую ссылку подтверждения.
// Для уже подтверждённого e-mail ничего не делает.
func (s *Service) RequestEmailVerification(ctx context.Context, userID uuid.UUID) error {
	const op = "service.action.RequestEmailVerification"

	user, err := s.Profile(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if user.EmailVerified {
		return nil
	}

	if !s.sendVerification(ctx, user) {
		return storeErr(op, errors.New("verification token not saved"))
	}

	return nil
}

// VerifyEmail подтверждает e-mail по токену.
func (s *Service) VerifyEmail(ctx context.Context, rawToken string) (_ uuid.UUID, err error) {
	const op = "service.action.VerifyEmail"

	defer func() { s.metrics.AuthEvent("verify_email", outcome(err)) }()

	at, err := s.consumeActionToken(ctx, rawToken, models.PurposeVerifyEmail)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.store.MarkEmailVerified(ctx, at.UserID, s.now().UTC()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return uuid.Nil, fmt.Errorf("%s: %w", op, session.ErrUserNotFound)
		}

		return uuid.Nil, storeErr(op, err)
	}

	log.From(ctx).Info("email_verified", slog.String("user_id", at.UserID.String()))

	return at.UserID, nil
}

// sendVerification сохраняет токен подтверждения и отправляет ссылку в фоне.
// false — токен сохранить не удалось (письмо не отправлено).
func (s *Service) sendVerification(ctx context.Context, user *models.User) bool {
	raw, err := s.issueActionToken(ctx, user.ID, models.PurposeVerifyEmail, s.cfg.VerifyTokenTTL)
	if err != nil {
		log.From(ctx).Warn("verification_token_failed",
			slog.String("user_id", user.ID.String()),
			slog.String("err", err.Error()),
		)
		return false
	}

	s.notifier.Dispatch(ctx, "verification", func(ctx context.Context) error {
		return s.notifier.SendVerification(ctx, user.Email, raw, user.ID.String())
	})

	return true
}

// issueActionToken генерирует секрет и сохраняет его sha256. Возвращает секрет.
func (s *Service) issueActionToken(ctx context.Context, userID uuid.UUID, purpose models.ActionPurpose, ttl time.Duration) (string, error) {
	const op = "service.action.issueActionToken"

	buf := make([]byte, actionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	raw := hex.EncodeToString(buf)

	now := s.now().UTC()
	at := &models.ActionToken{
		Hash:      hashActionToken(raw),
		UserID:    userID,
		Purpose:   purpose,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	if err := s.store.SaveActionToken(ctx, at); err != nil {
		return "", storeErr(op, err)
	}

	return raw, nil
}

func (s *Service) consumeActionToken(ctx context.Context, raw string, purpose models.ActionPurpose) (*models.ActionToken, error) {
	const op = "service.action.consumeActionToken"

	if raw == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidActionToken)
	}

	at, err := s.store.ConsumeActionToken(ctx, hashActionToken(raw), purpose, s.now().UTC())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidActionToken)
		}

		return nil, storeErr(op, err)
	}

	return at, nil
}

// restoreActionToken сохраняет израсходованный токен обратно, если операция,
// ради которой он был погашен, не удалась.
func (s *Service) restoreActionToken(ctx context.Context, raw string, at *models.ActionToken) {
	restored := *at
	restored.Hash = hashActionToken(raw)

	if err := s.store.SaveActionToken(context.WithoutCancel(ctx), &restored); err != nil {
		log.From(ctx).Error("action_token_restore_failed",
			slog.String("user_id", at.UserID.String()),
			slog.String("err", err.Error()),
		)
	}
}

func hashActionToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

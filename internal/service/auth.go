package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-jwt-auth/internal/models"
	"github.com/pribylovaa/go-jwt-auth/internal/pkg/log"
	"github.com/pribylovaa/go-jwt-auth/internal/session"
	"github.com/pribylovaa/go-jwt-auth/internal/storage"
	"github.com/pribylovaa/go-jwt-auth/internal/token"
	"github.com/pribylovaa/go-jwt-auth/pkg/redact"
)

// Signup регистрирует пользователя и открывает первую сессию.
// Приветствие и ссылка подтверждения e-mail уходят в фоне.
func (s *Service) Signup(ctx context.Context, email, password, name string) (_ *models.User, _ *models.TokenPair, err error) {
	const op = "service.auth.Signup"

	defer func() { s.metrics.AuthEvent("signup", outcome(err)) }()

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	if err := validatePassword(password); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.store.UserByEmail(ctx, normEmail)
	if err == nil {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, nil, storeErr(op, err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now().UTC()
	user := &models.User{
		ID:           uuid.New(),
		Email:        normEmail,
		Name:         sanitizeName(name),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}

		return nil, nil, storeErr(op, err)
	}

	pair, err := s.sessions.IssueInitial(ctx, user)
	if err != nil {
		// Без сессии регистрация не состоялась: e-mail должен остаться свободным.
		if derr := s.store.DeleteUser(context.WithoutCancel(ctx), user.ID); derr != nil {
			log.From(ctx).Error("signup_rollback_failed",
				slog.String("user_id", user.ID.String()),
				slog.String("err", derr.Error()),
			)
		}

		return nil, nil, s.sessionErr(op, err)
	}

	log.From(ctx).Info("user_signed_up",
		slog.String("user_id", user.ID.String()),
		slog.String("email", redact.Email(user.Email)),
	)

	s.notifier.Dispatch(ctx, "welcome", func(ctx context.Context) error {
		return s.notifier.SendWelcome(ctx, user.Email, user.Name)
	})
	s.sendVerification(ctx, user)

	return user, pair, nil
}

// Signin выполняет вход по e-mail и паролю. Неизвестный e-mail, неверный
// формат, пустой и неверный пароль дают одну и ту же ErrInvalidCredentials.
func (s *Service) Signin(ctx context.Context, email, password string) (_ *models.User, _ *models.TokenPair, err error) {
	const op = "service.auth.Signin"

	defer func() { s.metrics.AuthEvent("signin", outcome(err)) }()

	normEmail, err := validateEmail(email)
	if err != nil || password == "" {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	user, err := s.store.UserByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Выравниваем время ответа с веткой существующего пользователя.
			s.hasher.Verify(password, s.dummy())
			return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, nil, storeErr(op, err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		log.From(ctx).Info("signin_rejected", slog.String("user_id", user.ID.String()))
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	pair, err := s.sessions.IssueInitial(ctx, user)
	if err != nil {
		return nil, nil, s.sessionErr(op, err)
	}

	return user, pair, nil
}

// Refresh обменивает refresh-токен на новую пару.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (_ *models.TokenPair, _ *models.User, err error) {
	const op = "service.auth.Refresh"

	defer func() { s.metrics.AuthEvent("refresh", outcome(err)) }()

	pair, user, err := s.sessions.Rotate(ctx, refreshToken)
	if err != nil {
		return nil, nil, s.sessionErr(op, err)
	}

	return pair, user, nil
}

// Logout завершает сессию, которой принадлежит refresh-токен. Идемпотентна.
func (s *Service) Logout(ctx context.Context, refreshToken string) (err error) {
	const op = "service.auth.Logout"

	defer func() { s.metrics.AuthEvent("logout", outcome(err)) }()

	if _, err := s.sessions.Revoke(ctx, refreshToken); err != nil {
		return s.sessionErr(op, err)
	}

	return nil
}

// LogoutAll завершает все сессии пользователя. Возвращает число отозванных токенов.
func (s *Service) LogoutAll(ctx context.Context, userID uuid.UUID) (_ int64, err error) {
	const op = "service.auth.LogoutAll"

	defer func() { s.metrics.AuthEvent("logout_all", outcome(err)) }()

	n, err := s.sessions.RevokeAll(ctx, userID)
	if err != nil {
		return 0, storeErr(op, err)
	}

	return n, nil
}

// Profile возвращает пользователя по ID.
func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	const op = "service.auth.Profile"

	u, err := s.store.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, session.ErrUserNotFound)
		}

		return nil, storeErr(op, err)
	}

	return u, nil
}

// sessionErr пропускает виды ошибок менеджера сессий и токенов как есть,
// остальное считается ошибкой хранилища.
func (s *Service) sessionErr(op string, err error) error {
	switch {
	case errors.Is(err, token.ErrInvalidToken),
		errors.Is(err, session.ErrTokenRevoked),
		errors.Is(err, session.ErrUserNotFound),
		errors.Is(err, session.ErrRefreshTokenCollision):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return storeErr(op, err)
	}
}

// dummy — хэш для сравнения при отсутствии пользователя. Считается один раз.
func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash(uuid.NewString())
		if err == nil {
			s.dummyHash = h
		}
	})

	return s.dummyHash
}

// validateEmail проверяет базовый формат email, обрезает пробелы и приводит к нижнему регистру.
func validateEmail(raw string) (string, error) {
	const op = "service.auth.validateEmail"

	email := strings.TrimSpace(raw)
	if email == "" {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	return strings.ToLower(email), nil
}

// validatePassword проверяет минимальные требования к паролю.
// Политика: длина >= 8 рун, хотя бы одна строчная, заглавная, цифра и спецсимвол.
func validatePassword(pw string) error {
	const op = "service.auth.validatePassword"

	if len(pw) == 0 {
		return fmt.Errorf("%s: %w", op, ErrEmptyPassword)
	}

	if len([]rune(pw)) < 8 {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if !(hasLower && hasUpper && hasDigit && hasSpecial) {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	return nil
}

// sanitizeName убирает угловые скобки и пробелы по краям.
func sanitizeName(name string) string {
	name = strings.NewReplacer("<", "", ">", "").Replace(name)
	return strings.TrimSpace(name)
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pribylovaa/go-jwt-auth/internal/models"
	"github.com/pribylovaa/go-jwt-auth/internal/storage"
)

const userColumns = `id, email, name, password_hash, email_verified, created_at, updated_at`

// CreateUser создает нового пользователя в БД.
func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	const op = "storage.postgres.CreateUser"

	query := `
		INSERT INTO users(id, email, name, password_hash, email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.Exec(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.EmailVerified,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return mapWriteErr(op, err)
	}

	return nil
}

// UserByEmail находит пользователя по email (CITEXT, без учёта регистра).
func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.postgres.UserByEmail"

	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	return s.scanUser(ctx, op, query, email)
}

// UserByID находит пользователя по ID.
func (s *Storage) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "storage.postgres.UserByID"

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	return s.scanUser(ctx, op, query, id)
}

func (s *Storage) UpdatePassword(ctx context.Context, id uuid.UUID, hash string, now time.Time) error {
	const op = "storage.postgres.UpdatePassword"

	query := `
		UPDATE users
		SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`

	return s.execUser(ctx, op, query, id, hash, now)
}

func (s *Storage) MarkEmailVerified(ctx context.Context, id uuid.UUID, now time.Time) error {
	const op = "storage.postgres.MarkEmailVerified"

	query := `
		UPDATE users
		SET email_verified = TRUE, updated_at = $2
		WHERE id = $1
	`

	return s.execUser(ctx, op, query, id, now)
}

// DeleteUser удаляет пользователя; refresh- и action-токены уходят каскадом.
func (s *Storage) DeleteUser(ctx context.Context, id uuid.UUID) error {
	const op = "storage.postgres.DeleteUser"

	return s.execUser(ctx, op, `DELETE FROM users WHERE id = $1`, id)
}

func (s *Storage) scanUser(ctx context.Context, op, query string, arg any) (*models.User, error) {
	var user models.User
	err := s.db.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.EmailVerified,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &user, nil
}

func (s *Storage) execUser(ctx context.Context, op, query string, args ...any) error {
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

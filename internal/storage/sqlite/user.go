package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-jwt-auth/internal/models"
	"github.com/pribylovaa/go-jwt-auth/internal/storage"
)

const userColumns = `id, email, name, password_hash, email_verified, created_at, updated_at`

func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	const op = "storage.sqlite.CreateUser"

	query := `
		INSERT INTO users(id, email, name, password_hash, email_verified, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.PasswordHash,
		user.EmailVerified,
		toMillis(user.CreatedAt),
		toMillis(user.UpdatedAt),
	)
	if err != nil {
		return mapWriteErr(op, err)
	}

	return nil
}

func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.sqlite.UserByEmail"

	return s.scanUser(ctx, op, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

func (s *Storage) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "storage.sqlite.UserByID"

	return s.scanUser(ctx, op, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (s *Storage) UpdatePassword(ctx context.Context, id uuid.UUID, hash string, now time.Time) error {
	const op = "storage.sqlite.UpdatePassword"

	return s.execUser(ctx, op,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		hash, toMillis(now), id)
}

func (s *Storage) MarkEmailVerified(ctx context.Context, id uuid.UUID, now time.Time) error {
	const op = "storage.sqlite.MarkEmailVerified"

	return s.execUser(ctx, op,
		`UPDATE users SET email_verified = 1, updated_at = ? WHERE id = ?`,
		toMillis(now), id)
}

// DeleteUser удаляет пользователя; токены удаляются каскадом (foreign_keys = ON).
func (s *Storage) DeleteUser(ctx context.Context, id uuid.UUID) error {
	const op = "storage.sqlite.DeleteUser"

	return s.execUser(ctx, op, `DELETE FROM users WHERE id = ?`, id)
}

func (s *Storage) scanUser(ctx context.Context, op, query string, arg any) (*models.User, error) {
	var (
		user                 models.User
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&user.EmailVerified,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user.CreatedAt = fromMillis(createdAt)
	user.UpdatedAt = fromMillis(updatedAt)

	return &user, nil
}

func (s *Storage) execUser(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

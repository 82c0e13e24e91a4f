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

const insertRefreshToken = `
	INSERT INTO refresh_tokens(token_hash, user_id, session_id, created_at, expires_at)
	VALUES (?, ?, ?, ?, ?)
`

func refreshArgs(t *models.RefreshToken) []any {
	return []any{t.Hash, t.UserID, t.SessionID, toMillis(t.CreatedAt), toMillis(t.ExpiresAt)}
}

func (s *Storage) AddRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const op = "storage.sqlite.AddRefreshToken"

	if _, err := s.db.ExecContext(ctx, insertRefreshToken, refreshArgs(token)...); err != nil {
		return mapWriteErr(op, err)
	}

	return nil
}

func (s *Storage) RemoveRefreshToken(ctx context.Context, userID uuid.UUID, hash string) (bool, error) {
	const op = "storage.sqlite.RemoveRefreshToken"

	n, err := s.deleteTokens(ctx, op,
		`DELETE FROM refresh_tokens WHERE token_hash = ? AND user_id = ?`, hash, userID)

	return n > 0, err
}

// ReplaceRefreshToken удаляет oldHash и вставляет next в одной транзакции.
func (s *Storage) ReplaceRefreshToken(ctx context.Context, userID uuid.UUID, oldHash string, next *models.RefreshToken) (bool, error) {
	const op = "storage.sqlite.ReplaceRefreshToken"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE token_hash = ? AND user_id = ?`, oldHash, userID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, insertRefreshToken, refreshArgs(next)...); err != nil {
		return false, mapWriteErr(op, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return true, nil
}

func (s *Storage) RemoveSession(ctx context.Context, userID, sessionID uuid.UUID) (int64, error) {
	const op = "storage.sqlite.RemoveSession"

	return s.deleteTokens(ctx, op,
		`DELETE FROM refresh_tokens WHERE user_id = ? AND session_id = ?`, userID, sessionID)
}

func (s *Storage) ClearRefreshTokens(ctx context.Context, userID uuid.UUID) (int64, error) {
	const op = "storage.sqlite.ClearRefreshTokens"

	return s.deleteTokens(ctx, op, `DELETE FROM refresh_tokens WHERE user_id = ?`, userID)
}

func (s *Storage) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.sqlite.DeleteExpiredRefreshTokens"

	return s.deleteTokens(ctx, op, `DELETE FROM refresh_tokens WHERE expires_at <= ?`, toMillis(now))
}

func (s *Storage) deleteTokens(ctx context.Context, op, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

func (s *Storage) SaveActionToken(ctx context.Context, token *models.ActionToken) error {
	const op = "storage.sqlite.SaveActionToken"

	query := `
		INSERT INTO action_tokens(token_hash, user_id, purpose, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		token.Hash,
		token.UserID,
		string(token.Purpose),
		toMillis(token.CreatedAt),
		toMillis(token.ExpiresAt),
	)
	if err != nil {
		return mapWriteErr(op, err)
	}

	return nil
}

// ConsumeActionToken удаляет и возвращает действующий токен с нужным назначением.
func (s *Storage) ConsumeActionToken(ctx context.Context, hash string, purpose models.ActionPurpose, now time.Time) (*models.ActionToken, error) {
	const op = "storage.sqlite.ConsumeActionToken"

	query := `
		DELETE FROM action_tokens
		WHERE token_hash = ? AND purpose = ? AND expires_at > ?
		RETURNING token_hash, user_id, purpose, created_at, expires_at
	`

	var (
		token                models.ActionToken
		p                    string
		createdAt, expiresAt int64
	)
	err := s.db.QueryRowContext(ctx, query, hash, string(purpose), toMillis(now)).Scan(
		&token.Hash,
		&token.UserID,
		&p,
		&createdAt,
		&expiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}
	token.Purpose = models.ActionPurpose(p)
	token.CreatedAt = fromMillis(createdAt)
	token.ExpiresAt = fromMillis(expiresAt)

	return &token, nil
}

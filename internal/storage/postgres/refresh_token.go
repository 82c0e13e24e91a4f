package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-jwt-auth/internal/models"
)

const insertRefreshToken = `
	INSERT INTO refresh_tokens(token_hash, user_id, session_id, created_at, expires_at)
	VALUES ($1, $2, $3, $4, $5)
`

// AddRefreshToken сохраняет хэш нового refresh-токена.
func (s *Storage) AddRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const op = "storage.postgres.AddRefreshToken"

	_, err := s.db.Exec(ctx, insertRefreshToken,
		token.Hash,
		token.UserID,
		token.SessionID,
		token.CreatedAt,
		token.ExpiresAt,
	)
	if err != nil {
		return mapWriteErr(op, err)
	}

	return nil
}

// RemoveRefreshToken удаляет токен пользователя. false — токена не было.
func (s *Storage) RemoveRefreshToken(ctx context.Context, userID uuid.UUID, hash string) (bool, error) {
	const op = "storage.postgres.RemoveRefreshToken"

	query := `DELETE FROM refresh_tokens WHERE token_hash = $1 AND user_id = $2`

	tag, err := s.db.Exec(ctx, query, hash, userID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected() > 0, nil
}

// ReplaceRefreshToken в одной транзакции удаляет oldHash и вставляет next.
// Конкурентный DELETE той же строки ждёт блокировку и после коммита
// первой транзакции не находит строку, поэтому успешен ровно один вызов.
func (s *Storage) ReplaceRefreshToken(ctx context.Context, userID uuid.UUID, oldHash string, next *models.RefreshToken) (bool, error) {
	const op = "storage.postgres.ReplaceRefreshToken"

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1 AND user_id = $2`, oldHash, userID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	_, err = tx.Exec(ctx, insertRefreshToken,
		next.Hash,
		next.UserID,
		next.SessionID,
		next.CreatedAt,
		next.ExpiresAt,
	)
	if err != nil {
		return false, mapWriteErr(op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return true, nil
}

// RemoveSession удаляет все токены одной сессии.
func (s *Storage) RemoveSession(ctx context.Context, userID, sessionID uuid.UUID) (int64, error) {
	const op = "storage.postgres.RemoveSession"

	query := `DELETE FROM refresh_tokens WHERE user_id = $1 AND session_id = $2`

	return s.deleteTokens(ctx, op, query, userID, sessionID)
}

// ClearRefreshTokens удаляет все токены пользователя.
func (s *Storage) ClearRefreshTokens(ctx context.Context, userID uuid.UUID) (int64, error) {
	const op = "storage.postgres.ClearRefreshTokens"

	query := `DELETE FROM refresh_tokens WHERE user_id = $1`

	return s.deleteTokens(ctx, op, query, userID)
}

// DeleteExpiredRefreshTokens удаляет все просроченные токены.
func (s *Storage) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.postgres.DeleteExpiredRefreshTokens"

	query := `DELETE FROM refresh_tokens WHERE expires_at <= $1`

	return s.deleteTokens(ctx, op, query, now)
}

func (s *Storage) deleteTokens(ctx context.Context, op, query string, args ...any) (int64, error) {
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}

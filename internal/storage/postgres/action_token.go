package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pribylovaa/go-jwt-auth/internal/models"
	"github.com/pribylovaa/go-jwt-auth/internal/storage"
)

// SaveActionToken сохраняет хэш одноразового токена действия.
func (s *Storage) SaveActionToken(ctx context.Context, token *models.ActionToken) error {
	const op = "storage.postgres.SaveActionToken"

	query := `
		INSERT INTO action_tokens(token_hash, user_id, purpose, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.db.Exec(ctx, query,
		token.Hash,
		token.UserID,
		string(token.Purpose),
		token.CreatedAt,
		token.ExpiresAt,
	)
	if err != nil {
		return mapWriteErr(op, err)
	}

	return nil
}

// ConsumeActionToken атомарно удаляет и возвращает действующий токен с нужным назначением.
func (s *Storage) ConsumeActionToken(ctx context.Context, hash string, purpose models.ActionPurpose, now time.Time) (*models.ActionToken, error) {
	const op = "storage.postgres.ConsumeActionToken"

	query := `
		DELETE FROM action_tokens
		WHERE token_hash = $1 AND purpose = $2 AND expires_at > $3
		RETURNING token_hash, user_id, purpose, created_at, expires_at
	`

	var (
		token models.ActionToken
		p     string
	)
	err := s.db.QueryRow(ctx, query, hash, string(purpose), now).Scan(
		&token.Hash,
		&token.UserID,
		&p,
		&token.CreatedAt,
		&token.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}
	token.Purpose = models.ActionPurpose(p)

	return &token, nil
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken — отслеживаемый сервером refresh-токен.
//
// Хранится только хэш токена (sha256, base64url). SessionID сохраняется
// при ротации и позволяет завершить одну сессию, не трогая остальные.
type RefreshToken struct {
	Hash      string
	UserID    uuid.UUID
	SessionID uuid.UUID
	CreatedAt time.Time
	ExpiresAt time.Time
}

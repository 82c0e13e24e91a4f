package models

import (
	"time"

	"github.com/google/uuid"
)

// User — учётная запись пользователя.
// PasswordHash никогда не логируется и не отдаётся клиенту.
type User struct {
	ID            uuid.UUID
	Email         string
	Name          string
	PasswordHash  string
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

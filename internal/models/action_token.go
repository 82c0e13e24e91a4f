package models

import (
	"time"

	"github.com/google/uuid"
)

// ActionPurpose — назначение одноразового токена действия.
type ActionPurpose string

const (
	// PurposePasswordReset — сброс пароля.
	PurposePasswordReset ActionPurpose = "password_reset"
	// PurposeVerifyEmail — подтверждение e-mail.
	PurposeVerifyEmail ActionPurpose = "verify_email"
)

// ActionToken — одноразовый токен сброса пароля или подтверждения e-mail.
// Hash — sha256 (hex) от случайного секрета, отправленного пользователю.
type ActionToken struct {
	Hash      string
	UserID    uuid.UUID
	Purpose   ActionPurpose
	CreatedAt time.Time
	ExpiresAt time.Time
}

package handlers

import (
	"time"

	"github.com/pribylovaa/go-jwt-auth/internal/models"
)

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type generateRequest struct {
	Payload   map[string]any `json:"payload"`
	ExpiresIn string         `json:"expires_in"`
}

type forgotRequest struct {
	Email string `json:"email"`
}

type resetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// User — публичное представление пользователя (без хэша пароля).
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

// Tokens — пара токенов в ответе.
type Tokens struct {
	TokenType        string    `json:"token_type"`
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type authResponse struct {
	User   User   `json:"user"`
	Tokens Tokens `json:"tokens"`
}

type tokensResponse struct {
	Tokens Tokens `json:"tokens"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type revokeAllResponse struct {
	OK      bool  `json:"ok"`
	Revoked int64 `json:"revoked"`
}

type verifyEmailResponse struct {
	OK     bool   `json:"ok"`
	UserID string `json:"user_id"`
}

type verifyUser struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

type verifyResponse struct {
	Valid     bool        `json:"valid"`
	User      *verifyUser `json:"user,omitempty"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
	Reason    string      `json:"reason,omitempty"`
}

type decodeResponse struct {
	Decoded   map[string]any `json:"decoded"`
	Algorithm string         `json:"algorithm,omitempty"`
	IssuedAt  *time.Time     `json:"issued_at,omitempty"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
}

type infoResponse struct {
	Type      string         `json:"type"`
	Algorithm string         `json:"algorithm"`
	Subject   string         `json:"subject"`
	Issuer    string         `json:"issuer,omitempty"`
	Audience  []string       `json:"audience,omitempty"`
	IssuedAt  time.Time      `json:"issued_at"`
	ExpiresAt time.Time      `json:"expires_at"`
	Expired   bool           `json:"expired"`
	ValidFor  int64          `json:"valid_for"`
	Payload   map[string]any `json:"payload"`
}

type generateResponse struct {
	Token     string         `json:"token"`
	ExpiresIn string         `json:"expires_in"`
	ExpiresAt time.Time      `json:"expires_at"`
	Payload   map[string]any `json:"payload"`
}

func userFromModel(u *models.User) User {
	return User{
		ID:            u.ID.String(),
		Email:         u.Email,
		Name:          u.Name,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
	}
}

func tokensFromModel(p *models.TokenPair) Tokens {
	return Tokens{
		TokenType:        "Bearer",
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

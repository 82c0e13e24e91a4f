package models

import "time"

// TokenPair — пара токенов, выдаваемая при аутентификации/регистрации/ротации.
//
// Описание:
//   - AccessToken — короткоживущий JWT для доступа к API;
//   - RefreshToken — JWT, подписанный отдельным секретом; на сервере
//     отслеживается только его хэш;
//   - AccessExpiresAt / RefreshExpiresAt — моменты истечения (UTC).
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

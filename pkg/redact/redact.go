// redact маскирует чувствительные данные перед записью в лог.
// Секреты (пароли, токены) в лог не попадают никогда; вместо токена можно
// писать его отпечаток, чтобы связывать записи одного токена между собой.
package redact

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Email маскирует e-mail: первые две руны локальной части + "***", домен без изменений.
// Локальная часть из двух и менее рун заменяется целиком. Без ровно одного '@' — "***".
func Email(s string) string {
	if strings.Count(s, "@") != 1 {
		return "***"
	}

	i := strings.IndexByte(s, '@')
	local, domain := s[:i], s[i+1:]

	lr := []rune(local)
	if len(lr) > 2 {
		local = string(lr[:2]) + "***"
	} else {
		local = "***"
	}

	return local + "@" + domain
}

// Token возвращает литерал-заглушку для токена в логах.
func Token() string { return "[REDACTED_TOKEN]" }

// Password возвращает литерал-заглушку для пароля в логах.
func Password() string { return "[REDACTED_PASSWORD]" }

// Fingerprint — первые 8 hex-символов sha256 от значения.
// Необратим; пустая строка даёт пустой результат.
func Fingerprint(s string) string {
	if s == "" {
		return ""
	}

	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:4])
}

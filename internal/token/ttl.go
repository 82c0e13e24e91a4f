package token

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// maxTTLDays — больше дней не помещается в time.Duration.
const maxTTLDays = math.MaxInt64 / int64(24*time.Hour)

// ParseTTL разбирает срок жизни токена: синтаксис time.ParseDuration
// ("90m", "1h30m") плюс дни ("7d"). Результат строго положителен.
func ParseTTL(s string) (time.Duration, error) {
	const op = "token.ttl.ParseTTL"

	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%s: empty: %w", op, ErrInvalidTTL)
	}

	var d time.Duration
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.ParseInt(days, 10, 64)
		if err != nil || n <= 0 || n > maxTTLDays {
			return 0, fmt.Errorf("%s: %q: %w", op, s, ErrInvalidTTL)
		}
		d = time.Duration(n) * 24 * time.Hour
	} else {
		var err error
		d, err = time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("%s: %q: %w", op, s, ErrInvalidTTL)
		}
	}

	if d <= 0 {
		return 0, fmt.Errorf("%s: %q: %w", op, s, ErrInvalidTTL)
	}

	return d, nil
}

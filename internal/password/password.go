// password — возможность хэширования паролей: bcrypt (по умолчанию) и argon2id.
// Verify определяет алгоритм по формату хэша, поэтому смена алгоритма
// в конфигурации не ломает вход по ранее сохранённым хэшам.
package password

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pribylovaa/go-jwt-auth/internal/config"
	"golang.org/x/crypto/bcrypt"
)

// ErrUnknownHasher — алгоритм не поддерживается.
var ErrUnknownHasher = errors.New("unknown password hasher")

// Hasher хэширует и проверяет пароли.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

// New возвращает Hasher согласно конфигурации.
func New(cfg config.PasswordConfig) (Hasher, error) {
	const op = "password.New"

	switch cfg.Hasher {
	case config.HasherBcrypt, "":
		cost := cfg.BcryptCost
		if cost == 0 {
			cost = bcrypt.DefaultCost
		}
		if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
			return nil, fmt.Errorf("%s: bcrypt cost %d out of range", op, cost)
		}
		return &dispatcher{primary: Bcrypt{Cost: cost}}, nil
	case config.HasherArgon2id:
		return &dispatcher{primary: NewArgon2id()}, nil
	default:
		return nil, fmt.Errorf("%s: %q: %w", op, cfg.Hasher, ErrUnknownHasher)
	}
}

// dispatcher хэширует основным алгоритмом, а проверяет тем, которым хэш был создан.
type dispatcher struct {
	primary Hasher
}

func (d *dispatcher) Hash(plain string) (string, error) {
	return d.primary.Hash(plain)
}

func (d *dispatcher) Verify(plain, hash string) bool {
	if strings.HasPrefix(hash, argon2Prefix) {
		return NewArgon2id().Verify(plain, hash)
	}

	return Bcrypt{}.Verify(plain, hash)
}

// Bcrypt — хэширование bcrypt с заданной стоимостью.
type Bcrypt struct {
	Cost int
}

func (b Bcrypt) Hash(plain string) (string, error) {
	const op = "password.Bcrypt.Hash"

	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	out, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(out), nil
}

func (Bcrypt) Verify(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

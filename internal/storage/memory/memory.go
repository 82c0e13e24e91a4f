// memory — хранилище учётных данных в памяти процесса.
// Используется в окружении local и в тестах; все операции под одним мьютексом,
// что даёт требуемую атомарность на уровне записи пользователя.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-jwt-auth/internal/models"
	"github.com/pribylovaa/go-jwt-auth/internal/storage"
)

type Storage struct {
	mu      sync.Mutex
	users   map[uuid.UUID]*models.User
	byEmail map[string]uuid.UUID
	// refresh[userID][hash]
	refresh map[uuid.UUID]map[string]*models.RefreshToken
	actions map[string]*models.ActionToken
}

// New создаёт пустое хранилище.
func New() *Storage {
	return &Storage{
		users:   make(map[uuid.UUID]*models.User),
		byEmail: make(map[string]uuid.UUID),
		refresh: make(map[uuid.UUID]map[string]*models.RefreshToken),
		actions: make(map[string]*models.ActionToken),
	}
}

// Close — no-op.
func (s *Storage) Close() {}

func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	const op = "storage.memory.CreateUser"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(user.Email)
	if _, ok := s.byEmail[key]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}
	if _, ok := s.users[user.ID]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}

	cp := *user
	s.users[user.ID] = &cp
	s.byEmail[key] = user.ID

	return nil
}

func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.memory.UserByEmail"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	cp := *s.users[id]
	return &cp, nil
}

func (s *Storage) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "storage.memory.UserByID"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	cp := *u
	return &cp, nil
}

func (s *Storage) UpdatePassword(ctx context.Context, id uuid.UUID, hash string, now time.Time) error {
	const op = "storage.memory.UpdatePassword"

	return s.updateUser(ctx, op, id, func(u *models.User) {
		u.PasswordHash = hash
		u.UpdatedAt = now
	})
}

func (s *Storage) MarkEmailVerified(ctx context.Context, id uuid.UUID, now time.Time) error {
	const op = "storage.memory.MarkEmailVerified"

	return s.updateUser(ctx, op, id, func(u *models.User) {
		u.EmailVerified = true
		u.UpdatedAt = now
	})
}

func (s *Storage) DeleteUser(ctx context.Context, id uuid.UUID) error {
	const op = "storage.memory.DeleteUser"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	delete(s.byEmail, strings.ToLower(u.Email))
	delete(s.users, id)
	delete(s.refresh, id)
	for hash, at := range s.actions {
		if at.UserID == id {
			delete(s.actions, hash)
		}
	}

	return nil
}

func (s *Storage) updateUser(ctx context.Context, op string, id uuid.UUID, fn func(u *models.User)) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	fn(u)

	return nil
}

func (s *Storage) AddRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const op = "storage.memory.AddRefreshToken"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.addLocked(op, token)
}

func (s *Storage) addLocked(op string, token *models.RefreshToken) error {
	if _, ok := s.users[token.UserID]; !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	for _, set := range s.refresh {
		if _, ok := set[token.Hash]; ok {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}
	}

	set, ok := s.refresh[token.UserID]
	if !ok {
		set = make(map[string]*models.RefreshToken)
		s.refresh[token.UserID] = set
	}
	cp := *token
	set[token.Hash] = &cp

	return nil
}

func (s *Storage) RemoveRefreshToken(ctx context.Context, userID uuid.UUID, hash string) (bool, error) {
	const op = "storage.memory.RemoveRefreshToken"

	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.refresh[userID]
	if _, ok := set[hash]; !ok {
		return false, nil
	}
	delete(set, hash)

	return true, nil
}

func (s *Storage) ReplaceRefreshToken(ctx context.Context, userID uuid.UUID, oldHash string, next *models.RefreshToken) (bool, error) {
	const op = "storage.memory.ReplaceRefreshToken"

	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.refresh[userID]
	old, ok := set[oldHash]
	if !ok {
		return false, nil
	}
	delete(set, oldHash)

	if err := s.addLocked(op, next); err != nil {
		set[oldHash] = old
		return false, err
	}

	return true, nil
}

func (s *Storage) RemoveSession(ctx context.Context, userID, sessionID uuid.UUID) (int64, error) {
	const op = "storage.memory.RemoveSession"

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for hash, t := range s.refresh[userID] {
		if t.SessionID == sessionID {
			delete(s.refresh[userID], hash)
			n++
		}
	}

	return n, nil
}

func (s *Storage) ClearRefreshTokens(ctx context.Context, userID uuid.UUID) (int64, error) {
	const op = "storage.memory.ClearRefreshTokens"

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(s.refresh[userID]))
	delete(s.refresh, userID)

	return n, nil
}

func (s *Storage) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.memory.DeleteExpiredRefreshTokens"

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, set := range s.refresh {
		for hash, t := range set {
			if !t.ExpiresAt.After(now) {
				delete(set, hash)
				n++
			}
		}
	}

	return n, nil
}

func (s *Storage) SaveActionToken(ctx context.Context, token *models.ActionToken) error {
	const op = "storage.memory.SaveActionToken"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.actions[token.Hash]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}
	cp := *token
	s.actions[token.Hash] = &cp

	return nil
}

func (s *Storage) ConsumeActionToken(ctx context.Context, hash string, purpose models.ActionPurpose, now time.Time) (*models.ActionToken, error) {
	const op = "storage.memory.ConsumeActionToken"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.actions[hash]
	if !ok || t.Purpose != purpose || !t.ExpiresAt.After(now) {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	delete(s.actions, hash)

	return t, nil
}

// Проверка на соответствие интерфейсу Storage.
var _ storage.Storage = (*Storage)(nil)

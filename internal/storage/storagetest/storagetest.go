// storagetest — общий набор проверок контракта storage.Storage.
// Каждая реализация (memory, sqlite, postgres, mongo) прогоняет его у себя в тестах.
package storagetest

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/pribylovaa/go-jwt-auth/internal/models"
	"github.com/pribylovaa/go-jwt-auth/internal/storage"
	"github.com/stretchr/testify/require"
)

// Factory возвращает чистое хранилище для одного подтеста.
type Factory func(t *testing.T) storage.Storage

// Run прогоняет все проверки контракта.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("delete_user", func(t *testing.T) { testDeleteUser(t, newStore(t)) })
	t.Run("refresh_add_remove", func(t *testing.T) { testRefreshAddRemove(t, newStore(t)) })
	t.Run("refresh_replace_single_use", func(t *testing.T) { testReplaceSingleUse(t, newStore(t)) })
	t.Run("refresh_replace_concurrent", func(t *testing.T) { testReplaceConcurrent(t, newStore(t)) })
	t.Run("sessions_and_clear", func(t *testing.T) { testSessionsAndClear(t, newStore(t)) })
	t.Run("delete_expired", func(t *testing.T) { testDeleteExpired(t, newStore(t)) })
	t.Run("action_tokens", func(t *testing.T) { testActionTokens(t, newStore(t)) })
}

// SeedUser создаёт пользователя со случайным email.
func SeedUser(t *testing.T, st storage.Storage) *models.User {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Millisecond)
	u := &models.User{
		ID:           uuid.New(),
		Email:        strings.ToLower(gofakeit.Email()),
		Name:         gofakeit.Name(),
		PasswordHash: "hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, st.CreateUser(context.Background(), u))

	return u
}

// NewRefresh строит запись refresh-токена со случайным хэшем.
func NewRefresh(userID, sessionID uuid.UUID, expiresAt time.Time) *models.RefreshToken {
	return &models.RefreshToken{
		Hash:      uuid.NewString(),
		UserID:    userID,
		SessionID: sessionID,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		ExpiresAt: expiresAt.UTC().Truncate(time.Millisecond),
	}
}

func testUsers(t *testing.T, st storage.Storage) {
	ctx := context.Background()
	u := SeedUser(t, st)

	byEmail, err := st.UserByEmail(ctx, u.Email)
	require.NoError(t, err)
	require.Equal(t, u.ID, byEmail.ID)
	require.Equal(t, u.Name, byEmail.Name)
	require.Equal(t, "hash", byEmail.PasswordHash)
	require.False(t, byEmail.EmailVerified)
	require.WithinDuration(t, u.CreatedAt, byEmail.CreatedAt, time.Second)

	byID, err := st.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, u.Email, byID.Email)

	// Дубликат email (в другом регистре) — ErrAlreadyExists.
	dup := *u
	dup.ID = uuid.New()
	dup.Email = strings.ToUpper(u.Email)
	require.ErrorIs(t, st.CreateUser(ctx, &dup), storage.ErrAlreadyExists)

	_, err = st.UserByEmail(ctx, "missing@example.com")
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = st.UserByID(ctx, uuid.New())
	require.ErrorIs(t, err, storage.ErrNotFound)

	now := time.Now().UTC()
	require.NoError(t, st.UpdatePassword(ctx, u.ID, "new-hash", now))
	require.NoError(t, st.MarkEmailVerified(ctx, u.ID, now))

	got, err := st.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "new-hash", got.PasswordHash)
	require.True(t, got.EmailVerified)

	require.ErrorIs(t, st.UpdatePassword(ctx, uuid.New(), "x", now), storage.ErrNotFound)
	require.ErrorIs(t, st.MarkEmailVerified(ctx, uuid.New(), now), storage.ErrNotFound)
}

func testDeleteUser(t *testing.T, st storage.Storage) {
	ctx := context.Background()
	u := SeedUser(t, st)
	now := time.Now().UTC().Truncate(time.Millisecond)

	rt := NewRefresh(u.ID, uuid.New(), now.Add(time.Hour))
	require.NoError(t, st.AddRefreshToken(ctx, rt))
	at := &models.ActionToken{
		Hash: uuid.NewString(), UserID: u.ID, Purpose: models.PurposeVerifyEmail,
		CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, st.SaveActionToken(ctx, at))

	require.NoError(t, st.DeleteUser(ctx, u.ID))
	require.ErrorIs(t, st.DeleteUser(ctx, u.ID), storage.ErrNotFound)

	_, err := st.UserByID(ctx, u.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = st.UserByEmail(ctx, u.Email)
	require.ErrorIs(t, err, storage.ErrNotFound)

	ok, err := st.RemoveRefreshToken(ctx, u.ID, rt.Hash)
	require.NoError(t, err)
	require.False(t, ok)
	_, err = st.ConsumeActionToken(ctx, at.Hash, models.PurposeVerifyEmail, now)
	require.ErrorIs(t, err, storage.ErrNotFound)

	// E-mail снова свободен.
	again := *u
	again.ID = uuid.New()
	require.NoError(t, st.CreateUser(ctx, &again))
}

func testRefreshAddRemove(t *testing.T, st storage.Storage) {
	ctx := context.Background()
	u := SeedUser(t, st)
	rt := NewRefresh(u.ID, uuid.New(), time.Now().Add(time.Hour))

	require.NoError(t, st.AddRefreshToken(ctx, rt))
	require.ErrorIs(t, st.AddRefreshToken(ctx, rt), storage.ErrAlreadyExists)

	// Чужой пользователь не может удалить токен.
	ok, err := st.RemoveRefreshToken(ctx, uuid.New(), rt.Hash)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = st.RemoveRefreshToken(ctx, u.ID, rt.Hash)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = st.RemoveRefreshToken(ctx, u.ID, rt.Hash)
	require.NoError(t, err)
	require.False(t, ok)
}

func testReplaceSingleUse(t *testing.T, st storage.Storage) {
	ctx := context.Background()
	u := SeedUser(t, st)
	sid := uuid.New()
	exp := time.Now().Add(time.Hour)

	r1 := NewRefresh(u.ID, sid, exp)
	require.NoError(t, st.AddRefreshToken(ctx, r1))

	r2 := NewRefresh(u.ID, sid, exp)
	ok, err := st.ReplaceRefreshToken(ctx, u.ID, r1.Hash, r2)
	require.NoError(t, err)
	require.True(t, ok)

	// r1 уже использован: повтор не сохраняет r3.
	r3 := NewRefresh(u.ID, sid, exp)
	ok, err = st.ReplaceRefreshToken(ctx, u.ID, r1.Hash, r3)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = st.RemoveRefreshToken(ctx, u.ID, r3.Hash)
	require.NoError(t, err)
	require.False(t, ok, "replacement must not be stored when old token is absent")

	// r2 остаётся действующим.
	ok, err = st.RemoveRefreshToken(ctx, u.ID, r2.Hash)
	require.NoError(t, err)
	require.True(t, ok)
}

func testReplaceConcurrent(t *testing.T, st storage.Storage) {
	ctx := context.Background()
	u := SeedUser(t, st)
	sid := uuid.New()
	exp := time.Now().Add(time.Hour)

	r1 := NewRefresh(u.ID, sid, exp)
	require.NoError(t, st.AddRefreshToken(ctx, r1))

	const workers = 8
	var (
		wg      sync.WaitGroup
		success atomic.Int32
		start   = make(chan struct{})
		errs    = make(chan error, workers)
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := st.ReplaceRefreshToken(ctx, u.ID, r1.Hash, NewRefresh(u.ID, sid, exp))
			if err != nil {
				errs <- err
				return
			}
			if ok {
				success.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), success.Load())

	// В сессии ровно один живой токен.
	n, err := st.RemoveSession(ctx, u.ID, sid)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func testSessionsAndClear(t *testing.T, st storage.Storage) {
	ctx := context.Background()
	u := SeedUser(t, st)
	other := SeedUser(t, st)
	exp := time.Now().Add(time.Hour)

	s1, s2 := uuid.New(), uuid.New()
	require.NoError(t, st.AddRefreshToken(ctx, NewRefresh(u.ID, s1, exp)))
	require.NoError(t, st.AddRefreshToken(ctx, NewRefresh(u.ID, s2, exp)))
	require.NoError(t, st.AddRefreshToken(ctx, NewRefresh(u.ID, s2, exp)))
	keep := NewRefresh(other.ID, uuid.New(), exp)
	require.NoError(t, st.AddRefreshToken(ctx, keep))

	n, err := st.RemoveSession(ctx, u.ID, s2)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	n, err = st.ClearRefreshTokens(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	// Идемпотентность.
	n, err = st.ClearRefreshTokens(ctx, u.ID)
	require.NoError(t, err)
	require.Zero(t, n)

	// Токены другого пользователя не затронуты.
	ok, err := st.RemoveRefreshToken(ctx, other.ID, keep.Hash)
	require.NoError(t, err)
	require.True(t, ok)
}

func testDeleteExpired(t *testing.T, st storage.Storage) {
	ctx := context.Background()
	u := SeedUser(t, st)
	now := time.Now().UTC().Truncate(time.Millisecond)

	past := NewRefresh(u.ID, uuid.New(), now.Add(-time.Minute))
	edge := NewRefresh(u.ID, uuid.New(), now)
	live := NewRefresh(u.ID, uuid.New(), now.Add(time.Hour))
	for _, rt := range []*models.RefreshToken{past, edge, live} {
		require.NoError(t, st.AddRefreshToken(ctx, rt))
	}

	n, err := st.DeleteExpiredRefreshTokens(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	ok, err := st.RemoveRefreshToken(ctx, u.ID, live.Hash)
	require.NoError(t, err)
	require.True(t, ok)
}

func testActionTokens(t *testing.T, st storage.Storage) {
	ctx := context.Background()
	u := SeedUser(t, st)
	now := time.Now().UTC().Truncate(time.Millisecond)

	reset := &models.ActionToken{
		Hash: uuid.NewString(), UserID: u.ID, Purpose: models.PurposePasswordReset,
		CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, st.SaveActionToken(ctx, reset))
	require.ErrorIs(t, st.SaveActionToken(ctx, reset), storage.ErrAlreadyExists)

	// Не то назначение — не найден и не израсходован.
	_, err := st.ConsumeActionToken(ctx, reset.Hash, models.PurposeVerifyEmail, now)
	require.ErrorIs(t, err, storage.ErrNotFound)

	got, err := st.ConsumeActionToken(ctx, reset.Hash, models.PurposePasswordReset, now)
	require.NoError(t, err)
	require.Equal(t, u.ID, got.UserID)

	// Одноразовый.
	_, err = st.ConsumeActionToken(ctx, reset.Hash, models.PurposePasswordReset, now)
	require.ErrorIs(t, err, storage.ErrNotFound)

	expired := &models.ActionToken{
		Hash: uuid.NewString(), UserID: u.ID, Purpose: models.PurposeVerifyEmail,
		CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}
	require.NoError(t, st.SaveActionToken(ctx, expired))
	_, err = st.ConsumeActionToken(ctx, expired.Hash, models.PurposeVerifyEmail, now)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

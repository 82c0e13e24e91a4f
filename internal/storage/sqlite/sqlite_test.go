package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-jwt-auth/internal/storage"
	"github.com/pribylovaa/go-jwt-auth/internal/storage/storagetest"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	st, err := New(context.Background(), filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(st.Close)

	return st
}

func TestStorage_Contract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		return newTestStorage(t)
	})
}

func TestNew_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "auth.db")

	st, err := New(ctx, path)
	require.NoError(t, err)
	u := storagetest.SeedUser(t, st)
	st.Close()

	st, err = New(ctx, path)
	require.NoError(t, err)
	defer st.Close()

	got, err := st.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, u.Email, got.Email)
	require.Equal(t, u.CreatedAt, got.CreatedAt)
}

func TestAddRefreshToken_UnknownUser(t *testing.T) {
	st := newTestStorage(t)

	rt := storagetest.NewRefresh(uuid.New(), uuid.New(), time.Now().Add(time.Hour))
	err := st.AddRefreshToken(context.Background(), rt)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestReplaceRefreshToken_DuplicateNextRollsBack(t *testing.T) {
	ctx := context.Background()
	st := newTestStorage(t)
	u := storagetest.SeedUser(t, st)
	exp := time.Now().Add(time.Hour)

	old := storagetest.NewRefresh(u.ID, uuid.New(), exp)
	taken := storagetest.NewRefresh(u.ID, uuid.New(), exp)
	require.NoError(t, st.AddRefreshToken(ctx, old))
	require.NoError(t, st.AddRefreshToken(ctx, taken))

	next := storagetest.NewRefresh(u.ID, old.SessionID, exp)
	next.Hash = taken.Hash

	ok, err := st.ReplaceRefreshToken(ctx, u.ID, old.Hash, next)
	require.ErrorIs(t, err, storage.ErrAlreadyExists)
	require.False(t, ok)

	// Удаление старого токена откатилось вместе с транзакцией.
	ok, err = st.RemoveRefreshToken(ctx, u.ID, old.Hash)
	require.NoError(t, err)
	require.True(t, ok)
}

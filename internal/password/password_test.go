package password

import (
	"strings"
	"testing"

	"github.com/pribylovaa/go-jwt-auth/internal/config"
	"github.com/stretchr/testify/require"
)

func TestNew_SelectsHasher(t *testing.T) {
	t.Parallel()

	h, err := New(config.PasswordConfig{Hasher: config.HasherBcrypt, BcryptCost: 4})
	require.NoError(t, err)
	hash, err := h.Hash("Passw0rd!")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "$2a$04$"))

	h, err = New(config.PasswordConfig{Hasher: config.HasherArgon2id})
	require.NoError(t, err)
	hash, err = h.Hash("Passw0rd!")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, argon2Prefix))

	_, err = New(config.PasswordConfig{Hasher: "md5"})
	require.ErrorIs(t, err, ErrUnknownHasher)

	_, err = New(config.PasswordConfig{Hasher: config.HasherBcrypt, BcryptCost: 99})
	require.Error(t, err)
}

func TestHashVerify_RoundTrip(t *testing.T) {
	t.Parallel()

	hashers := map[string]Hasher{
		"bcrypt":   Bcrypt{Cost: 4},
		"argon2id": NewArgon2id(),
	}

	for name, h := range hashers {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			hash, err := h.Hash("Passw0rd!")
			require.NoError(t, err)
			require.NotContains(t, hash, "Passw0rd!")

			require.True(t, h.Verify("Passw0rd!", hash))
			require.False(t, h.Verify("passw0rd!", hash))
			require.False(t, h.Verify("", hash))

			// Соль делает хэши одного пароля различными.
			again, err := h.Hash("Passw0rd!")
			require.NoError(t, err)
			require.NotEqual(t, hash, again)
		})
	}
}

func TestDispatcher_VerifiesEitherFormat(t *testing.T) {
	t.Parallel()

	h, err := New(config.PasswordConfig{Hasher: config.HasherBcrypt, BcryptCost: 4})
	require.NoError(t, err)

	legacy, err := NewArgon2id().Hash("Secr3t!!")
	require.NoError(t, err)

	require.True(t, h.Verify("Secr3t!!", legacy))
	require.False(t, h.Verify("wrong", legacy))
}

func TestArgon2id_Verify_GarbageHash(t *testing.T) {
	t.Parallel()

	a := NewArgon2id()
	for _, bad := range []string{"", "$argon2id$", "$argon2id$v=19$m=x$a$b", "$argon2id$v=18$m=1,t=1,p=1$AAAA$AAAA"} {
		require.False(t, a.Verify("x", bad), bad)
	}
}

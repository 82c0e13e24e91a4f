package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pribylovaa/go-jwt-auth/internal/config"
	"github.com/stretchr/testify/require"
)

func testAuthCfg() config.AuthConfig {
	return config.AuthConfig{
		AccessSecret:    strings.Repeat("a", 32),
		RefreshSecret:   strings.Repeat("r", 32),
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		Issuer:          "auth-service",
		Audience:        []string{"api"},
		Leeway:          5 * time.Second,
	}
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(testAuthCfg())
	require.NoError(t, err)
	return e
}

// withClock фиксирует «текущее время» движка.
func withClock(e *Engine, now time.Time) {
	e.now = func() time.Time { return now }
}

func TestNew_RejectsBadConfig(t *testing.T) {
	t.Parallel()

	cases := map[string]func(c *config.AuthConfig){
		"no_access_secret":  func(c *config.AuthConfig) { c.AccessSecret = "" },
		"no_refresh_secret": func(c *config.AuthConfig) { c.RefreshSecret = "" },
		"same_secrets":      func(c *config.AuthConfig) { c.RefreshSecret = c.AccessSecret },
		"zero_access_ttl":   func(c *config.AuthConfig) { c.AccessTokenTTL = 0 },
		"negative_leeway":   func(c *config.AuthConfig) { c.Leeway = -time.Second },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := testAuthCfg()
			mutate(&cfg)

			_, err := New(cfg)
			require.ErrorIs(t, err, ErrConfig)
		})
	}
}

func TestIssueAccessToken_VerifyRoundTrip(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	uid := uuid.NewString()

	tok, exp, err := e.IssueAccessToken(Claims{
		Subject: uid,
		Email:   "a@x.com",
		Name:    "A",
		Extra:   map[string]any{"role": "admin", "sub": "spoofed", "exp": 1},
	}, 0)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(15*time.Minute), exp, 2*time.Second)

	vc, err := e.VerifyAccessToken(tok)
	require.NoError(t, err)
	require.Equal(t, TypeAccess, vc.Type)
	require.Equal(t, uid, vc.Subject)
	require.Equal(t, "a@x.com", vc.Email)
	require.Equal(t, "A", vc.Name)
	require.Equal(t, "admin", vc.Extra["role"])
	require.Equal(t, "auth-service", vc.Issuer)
	require.Equal(t, []string{"api"}, vc.Audience)
	require.Equal(t, "HS256", vc.Algorithm)
	require.NotEmpty(t, vc.ID)
	require.True(t, exp.Equal(vc.ExpiresAt))

	got, err := vc.UserID()
	require.NoError(t, err)
	require.Equal(t, uid, got.String())
}

func TestIssueAccessToken_EmptySubject_And_NegativeTTL(t *testing.T) {
	t.Parallel()

	e := newEngine(t)

	_, _, err := e.IssueAccessToken(Claims{}, 0)
	require.ErrorIs(t, err, ErrEmptySubject)

	_, _, err = e.IssueAccessToken(Claims{Subject: "u"}, -time.Second)
	require.ErrorIs(t, err, ErrInvalidTTL)
}

func TestVerifyAccessToken_ExpiresAfterTTL(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	issued := time.Now().UTC()
	withClock(e, issued)

	tok, _, err := e.IssueAccessToken(Claims{Subject: "user-1"}, time.Minute)
	require.NoError(t, err)

	// До истечения — валиден.
	withClock(e, issued.Add(59*time.Second))
	_, err = e.VerifyAccessToken(tok)
	require.NoError(t, err)

	// После ttl + leeway — отказ с причиной expired.
	withClock(e, issued.Add(time.Minute+10*time.Second))
	_, err = e.VerifyAccessToken(tok)
	require.ErrorIs(t, err, ErrInvalidToken)
	require.Equal(t, ReasonExpired, ReasonOf(err))
}

func TestKeySeparation(t *testing.T) {
	t.Parallel()

	e := newEngine(t)

	access, _, err := e.IssueAccessToken(Claims{Subject: "u"}, 0)
	require.NoError(t, err)
	refresh, _, err := e.IssueRefreshToken("u", "sid-1", 0)
	require.NoError(t, err)

	_, err = e.VerifyRefreshToken(access)
	require.ErrorIs(t, err, ErrInvalidToken)
	require.Equal(t, ReasonSignature, ReasonOf(err))

	_, err = e.VerifyAccessToken(refresh)
	require.ErrorIs(t, err, ErrInvalidToken)
	require.Equal(t, ReasonSignature, ReasonOf(err))

	vc, err := e.VerifyRefreshToken(refresh)
	require.NoError(t, err)
	require.Equal(t, TypeRefresh, vc.Type)
	require.Equal(t, "sid-1", vc.SessionID)
}

func TestIssueRefreshToken_Unique(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	withClock(e, time.Now())

	a, _, err := e.IssueRefreshToken("u", "s", 0)
	require.NoError(t, err)
	b, _, err := e.IssueRefreshToken("u", "s", 0)
	require.NoError(t, err)

	// Одинаковое время выпуска, но разный jti.
	require.NotEqual(t, a, b)
	require.NotEqual(t, HashRefreshToken(a), HashRefreshToken(b))
}

func TestVerify_Rejections(t *testing.T) {
	t.Parallel()

	cfg := testAuthCfg()
	e := newEngine(t)
	now := time.Now().UTC()

	base := func() jwt.MapClaims {
		return jwt.MapClaims{
			"sub": "u",
			"typ": "access",
			"iss": cfg.Issuer,
			"aud": cfg.Audience,
			"iat": now.Unix(),
			"exp": now.Add(time.Minute).Unix(),
		}
	}
	sign := func(t *testing.T, m jwt.SigningMethod, claims jwt.MapClaims, key []byte) string {
		t.Helper()
		s, err := jwt.NewWithClaims(m, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}

	tests := []struct {
		name   string
		token  func(t *testing.T) string
		reason Reason
	}{
		{"garbage", func(*testing.T) string { return "not.a.jwt" }, ReasonMalformed},
		{"wrong_alg", func(t *testing.T) string {
			return sign(t, jwt.SigningMethodHS512, base(), []byte(cfg.AccessSecret))
		}, ReasonSignature},
		{"wrong_secret", func(t *testing.T) string {
			return sign(t, jwt.SigningMethodHS256, base(), []byte(strings.Repeat("z", 32)))
		}, ReasonSignature},
		{"wrong_issuer", func(t *testing.T) string {
			c := base()
			c["iss"] = "other"
			return sign(t, jwt.SigningMethodHS256, c, []byte(cfg.AccessSecret))
		}, ReasonClaims},
		{"wrong_audience", func(t *testing.T) string {
			c := base()
			c["aud"] = []string{"elsewhere"}
			return sign(t, jwt.SigningMethodHS256, c, []byte(cfg.AccessSecret))
		}, ReasonClaims},
		{"missing_exp", func(t *testing.T) string {
			c := base()
			delete(c, "exp")
			return sign(t, jwt.SigningMethodHS256, c, []byte(cfg.AccessSecret))
		}, ReasonClaims},
		{"issued_in_future", func(t *testing.T) string {
			c := base()
			c["iat"] = now.Add(time.Hour).Unix()
			c["exp"] = now.Add(2 * time.Hour).Unix()
			return sign(t, jwt.SigningMethodHS256, c, []byte(cfg.AccessSecret))
		}, ReasonNotYetValid},
		{"wrong_type", func(t *testing.T) string {
			c := base()
			c["typ"] = "refresh"
			return sign(t, jwt.SigningMethodHS256, c, []byte(cfg.AccessSecret))
		}, ReasonWrongType},
		{"empty_subject", func(t *testing.T) string {
			c := base()
			delete(c, "sub")
			return sign(t, jwt.SigningMethodHS256, c, []byte(cfg.AccessSecret))
		}, ReasonClaims},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.VerifyAccessToken(tt.token(t))
			require.ErrorIs(t, err, ErrInvalidToken)
			require.Equal(t, tt.reason, ReasonOf(err))
		})
	}
}

func TestDecode_ExpiredTokenStillDecodes(t *testing.T) {
	t.Parallel()

	e := newEngine(t)
	past := time.Now().Add(-time.Hour).UTC()
	withClock(e, past)

	tok, exp, err := e.IssueAccessToken(Claims{Subject: "user-1", Extra: map[string]any{"k": "v"}}, time.Minute)
	require.NoError(t, err)

	withClock(e, time.Now())

	_, err = e.VerifyAccessToken(tok)
	require.ErrorIs(t, err, ErrInvalidToken)

	dc, err := e.Decode(tok)
	require.NoError(t, err)
	require.Equal(t, "user-1", dc.Subject)
	require.Equal(t, "HS256", dc.Algorithm)
	require.Equal(t, "v", dc.Claims["k"])
	require.NotNil(t, dc.ExpiresAt)
	require.True(t, exp.Equal(*dc.ExpiresAt))
	require.NotNil(t, dc.IssuedAt)
}

func TestDecode_Malformed(t *testing.T) {
	t.Parallel()

	e := newEngine(t)

	for _, raw := range []string{"", "abc", "a.b", "a.b.c"} {
		_, err := e.Decode(raw)
		require.ErrorIs(t, err, ErrMalformed, raw)
	}
}

func TestHashRefreshToken_Deterministic(t *testing.T) {
	t.Parallel()

	require.Equal(t, HashRefreshToken("x"), HashRefreshToken("x"))
	require.NotEqual(t, HashRefreshToken("x"), HashRefreshToken("y"))
	require.NotContains(t, HashRefreshToken("x"), "=")
}

func TestParseTTL(t *testing.T) {
	t.Parallel()

	ok := map[string]time.Duration{
		"1h":    time.Hour,
		"90m":   90 * time.Minute,
		"7d":    7 * 24 * time.Hour,
		" 30s ": 30 * time.Second,
		"106751d": 106751 * 24 * time.Hour,
	}
	for in, want := range ok {
		got, err := ParseTTL(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "0s", "-1h", "xd", "soon", "0d", "-3d", "106752d", "213504d", "300000d", "99999999999999999999d"} {
		_, err := ParseTTL(in)
		require.ErrorIs(t, err, ErrInvalidTTL, in)
	}
}

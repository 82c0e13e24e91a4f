package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pribylovaa/go-jwt-auth/internal/config"
	"github.com/pribylovaa/go-jwt-auth/internal/token"
	"github.com/stretchr/testify/require"
)

// capHandler — тестовый slog.Handler, который:
//   - аккумулирует базовые attrs, приходящие через Logger.With(...);
//   - собирает attrs из каждой записи в map[string]any;
//   - не создаёт реальных I/O, чтобы не паниковать в тестах.
type capHandler struct {
	base    []slog.Attr
	lastMsg string
	lastLvl slog.Level
	attrs   map[string]any
	count   int
}

func (h *capHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *capHandler) Handle(_ context.Context, r slog.Record) error {
	out := make(map[string]any, len(h.base)+8)

	for _, a := range h.base {
		out[a.Key] = a.Value.Any()
	}

	r.Attrs(func(a slog.Attr) bool {
		out[a.Key] = a.Value.Any()
		return true
	})

	h.count++
	h.lastMsg = r.Message
	h.lastLvl = r.Level
	h.attrs = out

	return nil
}

func (h *capHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) > 0 {
		h.base = append(h.base, attrs...)
	}

	return h
}

func (h *capHandler) WithGroup(string) slog.Handler { return h }

func makeReq(target string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = (&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 12345}).String()
	return req
}

type apiError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type errEnvelope struct {
	Error apiError `json:"error"`
}

func TestChain_Order(t *testing.T) {
	order := []string{}

	m1 := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "m1-begin")
			next.ServeHTTP(w, r)
			order = append(order, "m1-end")
		})
	}

	m2 := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "m2-begin")
			next.ServeHTTP(w, r)
			order = append(order, "m2-end")
		})
	}

	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
		w.WriteHeader(http.StatusTeapot)
	})

	chain := Chain(final, m1, m2)
	rr := httptest.NewRecorder()
	chain.ServeHTTP(rr, makeReq("/chain"))

	require.Equal(t, []string{"m1-begin", "m2-begin", "handler", "m2-end", "m1-end"}, order)
	require.Equal(t, http.StatusTeapot, rr.Code)
}

func TestRequestID_GenerateAndPropagate(t *testing.T) {
	var seenID string
	var seenCtxID string

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = r.Header.Get("X-Request-Id")
		seenCtxID = RequestIDFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	chain := Chain(h, RequestID())
	rr := httptest.NewRecorder()
	req := makeReq("/rid")
	chain.ServeHTTP(rr, req)

	respID := rr.Header().Get("X-Request-Id")
	require.NotEmpty(t, respID)
	require.Len(t, respID, 32) // 16 байт → 32 hex-символа

	require.Equal(t, respID, seenID)
	require.Equal(t, respID, seenCtxID)
}

func TestRequestID_UseExisting(t *testing.T) {
	const given = "abc123-existing-id"
	var seenCtxID string

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenCtxID = RequestIDFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	chain := Chain(h, RequestID())
	rr := httptest.NewRecorder()
	req := makeReq("/rid2")
	req.Header.Set("X-Request-Id", given)
	chain.ServeHTTP(rr, req)

	require.Equal(t, given, rr.Header().Get("X-Request-Id"))
	require.Equal(t, given, seenCtxID)
}

func TestTimeout_SetsDeadline_WhenAbsent(t *testing.T) {
	var hasDeadline bool
	var left time.Duration

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dl, ok := r.Context().Deadline()
		hasDeadline = ok
		if ok {
			left = time.Until(dl)
		}
		w.WriteHeader(http.StatusOK)
	})

	chain := Chain(h, Timeout(50*time.Millisecond))
	rr := httptest.NewRecorder()
	req := makeReq("/timeout")
	chain.ServeHTTP(rr, req)

	require.True(t, hasDeadline)
	require.Greater(t, left, time.Duration(0))
}

func TestTimeout_DoesNotOverrideExistingDeadline(t *testing.T) {
	var childDL time.Time

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dl, _ := r.Context().Deadline()
		childDL = dl
		w.WriteHeader(http.StatusOK)
	})

	parent, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req := makeReq("/timeout2").WithContext(parent)

	chain := Chain(h, Timeout(1*time.Second)) // больше, чем у родителя
	rr := httptest.NewRecorder()
	chain.ServeHTTP(rr, req)

	parentDL, _ := parent.Deadline()
	require.WithinDuration(t, parentDL, childDL, time.Millisecond)
}

func TestTimeout_WritesGatewayTimeout(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	chain := Chain(h, Timeout(20*time.Millisecond))
	rr := httptest.NewRecorder()
	chain.ServeHTTP(rr, makeReq("/slow"))

	require.Equal(t, http.StatusGatewayTimeout, rr.Code)

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "deadline_exceeded", body.Error.Code)
}

func TestTimeout_KeepsWrittenResponse(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		<-r.Context().Done()
	})

	chain := Chain(h, Timeout(20*time.Millisecond))
	rr := httptest.NewRecorder()
	chain.ServeHTTP(rr, makeReq("/slow"))

	require.Equal(t, http.StatusAccepted, rr.Code)
	require.Empty(t, rr.Body.String())
}

func TestRecover_ConvertsPanicTo500(t *testing.T) {
	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	chain := Chain(panicHandler, Recover())
	rr := httptest.NewRecorder()
	req := makeReq("/panic")

	chain.ServeHTTP(rr, req)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var env errEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	require.Equal(t, "internal", env.Error.Code)
	require.NotEmpty(t, env.Error.Message)
}

func TestLogging_WritesRecord_WithStatusDurBytesAndRequestID(t *testing.T) {
	h := &capHandler{}
	logger := slog.New(h)

	// Ручной request id обеспечит присутствие request_id в логах.
	const rid = "rid-456"
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Не вызываем WriteHeader — статус должен стать 200 после Write.
		_, _ = w.Write([]byte("0123456789")) // 10 байт
	})

	// Порядок важен: RequestID до Logging, чтобы id попал в attrs лога.
	handler := Chain(final, RequestID(), Logging(logger))

	rr := httptest.NewRecorder()
	req := makeReq("/log")
	req.Header.Set("X-Request-Id", rid)

	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1, h.count)
	require.Equal(t, "http", h.lastMsg)

	// Проверяем ключевые атрибуты.
	method, _ := h.attrs["method"].(string)
	path, _ := h.attrs["path"].(string)
	status, _ := h.attrs["status"].(int64) // slog хранит числа как int64
	bytes, _ := h.attrs["bytes"].(int64)
	ridAttr, _ := h.attrs["request_id"].(string)

	require.Equal(t, http.MethodGet, method)
	require.Equal(t, "/log", path)
	require.EqualValues(t, http.StatusOK, status)
	require.EqualValues(t, 10, bytes)
	require.Equal(t, rid, ridAttr)

	// Длительность > 0.
	_, hasDur := h.attrs["dur"]
	require.True(t, hasDur)
}

func TestStatusWriter_CountsBytes_AndDefaultStatus200(t *testing.T) {
	rr := httptest.NewRecorder()
	sw := newStatusWriter(rr)

	_, _ = sw.Write([]byte("abcd")) // 4 байта

	require.Equal(t, http.StatusOK, sw.status) // статус умолчаний — 200
	require.Equal(t, 4, sw.count)
}

func testEngine(t *testing.T) *token.Engine {
	t.Helper()

	e, err := token.New(config.AuthConfig{
		AccessSecret:    strings.Repeat("a", 32),
		RefreshSecret:   strings.Repeat("r", 32),
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
		Issuer:          "auth-service",
	})
	require.NoError(t, err)
	return e
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) errEnvelope {
	t.Helper()

	var env errEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return env
}

func TestAuthenticate_MissingBearer_401(t *testing.T) {
	e := testEngine(t)
	called := false
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
	chain := Chain(h, Authenticate(e))

	for _, header := range []string{"", "Basic aaa", "Bearer ", "Bearer"} {
		rr := httptest.NewRecorder()
		req := makeReq("/me")
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		chain.ServeHTTP(rr, req)

		require.Equal(t, http.StatusUnauthorized, rr.Code, header)
		require.Equal(t, "unauthorized", decodeEnvelope(t, rr).Error.Code)
	}
	require.False(t, called)
}

func TestAuthenticate_InvalidOrRefreshToken_403(t *testing.T) {
	e := testEngine(t)
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be called")
	})
	chain := Chain(h, Authenticate(e))

	refresh, _, err := e.IssueRefreshToken("u-1", "s-1", 0)
	require.NoError(t, err)

	for _, raw := range []string{"garbage", refresh} {
		rr := httptest.NewRecorder()
		req := makeReq("/me")
		req.Header.Set("Authorization", "Bearer "+raw)
		chain.ServeHTTP(rr, req)

		require.Equal(t, http.StatusForbidden, rr.Code)
		require.Equal(t, "forbidden", decodeEnvelope(t, rr).Error.Code)
	}
}

func TestAuthenticate_ValidToken_PutsClaims(t *testing.T) {
	e := testEngine(t)
	access, _, err := e.IssueAccessToken(token.Claims{Subject: "u-1", Email: "a@b.c"}, 0)
	require.NoError(t, err)

	var got *token.VerifiedClaims
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = ClaimsFrom(r.Context())
	})

	rr := httptest.NewRecorder()
	req := makeReq("/me")
	req.Header.Set("Authorization", "bearer "+access)
	Chain(h, Authenticate(e)).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, got)
	require.Equal(t, "u-1", got.Subject)
	require.Equal(t, "a@b.c", got.Email)
}

func TestOptionalAuth(t *testing.T) {
	e := testEngine(t)
	access, _, err := e.IssueAccessToken(token.Claims{Subject: "u-1"}, 0)
	require.NoError(t, err)

	var found bool
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, found = ClaimsFrom(r.Context())
	})
	chain := Chain(h, OptionalAuth(e))

	rr := httptest.NewRecorder()
	chain.ServeHTTP(rr, makeReq("/x"))
	require.Equal(t, http.StatusOK, rr.Code)
	require.False(t, found)

	rr = httptest.NewRecorder()
	req := makeReq("/x")
	req.Header.Set("Authorization", "Bearer bad")
	chain.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.False(t, found)

	rr = httptest.NewRecorder()
	req = makeReq("/x")
	req.Header.Set("Authorization", "Bearer "+access)
	chain.ServeHTTP(rr, req)
	require.True(t, found)
}

type observation struct {
	route, method string
	status        int
}

type fakeObserver struct {
	mu  sync.Mutex
	obs []observation
}

func (f *fakeObserver) ObserveHTTP(route, method string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.obs = append(f.obs, observation{route, method, status})
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	o := &fakeObserver{}

	r := chi.NewRouter()
	r.Use(Metrics(o))
	r.Get("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, makeReq("/users/42"))
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, makeReq("/nope"))

	require.Equal(t, []observation{
		{"/users/{id}", http.MethodGet, http.StatusAccepted},
		{"unmatched", http.MethodGet, http.StatusNotFound},
	}, o.obs)
}

func TestMetrics_NilObserverIsNoop(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	rr := httptest.NewRecorder()
	Chain(h, Metrics(nil)).ServeHTTP(rr, makeReq("/x"))
	require.Equal(t, http.StatusTeapot, rr.Code)
}

func TestLogging_ServerErrorLoggedAsError(t *testing.T) {
	h := &capHandler{}
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	rr := httptest.NewRecorder()
	Chain(final, Logging(slog.New(h))).ServeHTTP(rr, makeReq("/boom"))

	require.Equal(t, slog.LevelError, h.lastLvl)
	require.EqualValues(t, http.StatusInternalServerError, h.attrs["status"])
}

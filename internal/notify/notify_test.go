package notify

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pribylovaa/go-jwt-auth/internal/config"
	"github.com/pribylovaa/go-jwt-auth/internal/pkg/log"
	"github.com/stretchr/testify/require"
)

type capHandler struct {
	mu   sync.Mutex
	msgs []string
	last map[string]any
}

func (h *capHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *capHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := map[string]any{}
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	h.mu.Lock()
	h.msgs = append(h.msgs, r.Message)
	h.last = attrs
	h.mu.Unlock()
	return nil
}

func (h *capHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *capHandler) WithGroup(string) slog.Handler      { return h }

// recordingSender запоминает письма и может возвращать ошибку.
type recordingSender struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func TestSendPasswordReset_Link(t *testing.T) {
	t.Parallel()

	s := &recordingSender{}
	n := New(s, "https://app.example.com/", time.Second)

	require.NoError(t, n.SendPasswordReset(context.Background(), "a@b.c", "tok 1", "u-1"))

	require.Len(t, s.sent, 1)
	msg := s.sent[0]
	require.Equal(t, "a@b.c", msg.To)
	require.Contains(t, msg.Body, "https://app.example.com/reset-password?token=tok+1&userId=u-1")
}

func TestSendVerification_Link(t *testing.T) {
	t.Parallel()

	s := &recordingSender{}
	n := New(s, "http://localhost:3000", time.Second)

	require.NoError(t, n.SendVerification(context.Background(), "a@b.c", "abc", "u-2"))
	require.Contains(t, s.sent[0].Body, "http://localhost:3000/verify-email?token=abc&userId=u-2")
}

func TestSendWelcome(t *testing.T) {
	t.Parallel()

	s := &recordingSender{}
	n := New(s, "", 0)

	require.NoError(t, n.SendWelcome(context.Background(), "a@b.c", "Ann"))
	require.Contains(t, s.sent[0].Body, "Hello, Ann!")
}

func TestSend_ErrorRedactsRecipient(t *testing.T) {
	t.Parallel()

	boom := errors.New("smtp down")
	n := New(&recordingSender{err: boom}, "", 0)

	err := n.SendWelcome(context.Background(), "alice@example.com", "")
	require.ErrorIs(t, err, boom)
	require.NotContains(t, err.Error(), "alice@")
	require.Contains(t, err.Error(), "al***@example.com")
}

func TestDispatch_LogsFailureAndIgnoresCancel(t *testing.T) {
	t.Parallel()

	h := &capHandler{}
	ctx, cancel := context.WithCancel(log.Into(context.Background(), slog.New(h)))
	cancel()

	n := New(&recordingSender{}, "", time.Second)

	var gotErr error
	n.Dispatch(ctx, "welcome", func(ctx context.Context) error {
		gotErr = ctx.Err()
		return errors.New("nope")
	})
	n.Wait()

	require.NoError(t, gotErr, "detached context must not inherit cancellation")
	require.Equal(t, []string{"notify_send_failed"}, h.msgs)
	require.Equal(t, "welcome", h.last["kind"])
}

func TestDispatch_AppliesTimeout(t *testing.T) {
	t.Parallel()

	n := New(&recordingSender{}, "", 20*time.Millisecond)

	var deadline bool
	n.Dispatch(context.Background(), "reset", func(ctx context.Context) error {
		_, deadline = ctx.Deadline()
		<-ctx.Done()
		return ctx.Err()
	})
	n.Wait()

	require.True(t, deadline)
}

func TestDispatch_Success(t *testing.T) {
	t.Parallel()

	h := &capHandler{}
	ctx := log.Into(context.Background(), slog.New(h))
	s := &recordingSender{}
	n := New(s, "", time.Second)

	n.Dispatch(ctx, "welcome", func(ctx context.Context) error {
		return n.SendWelcome(ctx, "a@b.c", "")
	})
	n.Wait()

	require.Len(t, s.sent, 1)
	require.Equal(t, []string{"notify_sent"}, h.msgs)
}

func TestStatus(t *testing.T) {
	t.Parallel()

	require.Equal(t, Status{Configured: false, Mode: ModeLog}, New(&LogSender{}, "", 0).Status())
	require.Equal(t, Status{Configured: false, Mode: ModeLog}, New(LogSender{}, "", 0).Status())
	require.Equal(t, Status{Configured: true, Mode: ModeSMTP}, New(NewSMTPSender(config.MailConfig{}), "", 0).Status())
}

func TestNewSender_ByConfig(t *testing.T) {
	t.Parallel()

	require.IsType(t, &LogSender{}, NewSender(config.MailConfig{}))
	require.IsType(t, &SMTPSender{}, NewSender(config.MailConfig{Host: "smtp.example.com"}))
}

func TestLogSender_NoLinkInLog(t *testing.T) {
	t.Parallel()

	h := &capHandler{}
	ctx := log.Into(context.Background(), slog.New(h))

	n := New(LogSender{}, "http://x", 0)
	require.NoError(t, n.SendPasswordReset(ctx, "alice@example.com", "secret-token", "u"))

	require.Equal(t, []string{"mail_logged"}, h.msgs)
	for _, v := range h.last {
		s, _ := v.(string)
		require.NotContains(t, s, "secret-token")
	}
	require.Equal(t, "al***@example.com", h.last["to"])
}

func TestSMTPSender_Unreachable(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	s := NewSMTPSender(config.MailConfig{
		Host:        "127.0.0.1",
		Port:        addr.Port,
		From:        "noreply@example.com",
		SendTimeout: time.Second,
	})

	err = s.Send(context.Background(), Message{To: "a@b.c", Subject: "s", Body: "b"})
	require.Error(t, err)
	require.True(t, strings.HasPrefix(err.Error(), "notify.SMTPSender.Send"), err.Error())
}

func TestSMTPSender_BadAddresses(t *testing.T) {
	t.Parallel()

	s := NewSMTPSender(config.MailConfig{Host: "127.0.0.1", Port: 25, From: "not an address"})
	err := s.Send(context.Background(), Message{To: "a@b.c"})
	require.ErrorContains(t, err, "from")

	s = NewSMTPSender(config.MailConfig{Host: "127.0.0.1", Port: 25, From: "a@b.c"})
	err = s.Send(context.Background(), Message{To: "bad"})
	require.ErrorContains(t, err, "to")
}

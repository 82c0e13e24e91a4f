// notify отправляет письма сброса пароля, подтверждения e-mail и приветствия.
//
// Отправка никогда не влияет на результат запроса: Dispatch запускает её
// в отдельной горутине с собственным таймаутом, ошибки только логируются.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pribylovaa/go-jwt-auth/internal/pkg/log"
	"github.com/pribylovaa/go-jwt-auth/pkg/redact"
)

// Режимы работы шлюза.
const (
	ModeSMTP = "smtp"
	ModeLog  = "log"
)

// Message — письмо в виде простого текста.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender доставляет одно письмо.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Status описывает, куда уходят письма.
type Status struct {
	Configured bool   `json:"configured"`
	Mode       string `json:"mode"`
}

// Notifier собирает письма и отправляет их через Sender.
type Notifier struct {
	sender      Sender
	baseURL     string
	sendTimeout time.Duration
	mode        string

	wg sync.WaitGroup
}

// New создаёт шлюз. baseURL — адрес клиентского приложения для ссылок в письмах.
func New(sender Sender, baseURL string, sendTimeout time.Duration) *Notifier {
	mode := ModeSMTP
	switch sender.(type) {
	case LogSender, *LogSender:
		mode = ModeLog
	}

	if sendTimeout <= 0 {
		sendTimeout = 5 * time.Second
	}

	return &Notifier{
		sender:      sender,
		baseURL:     strings.TrimRight(baseURL, "/"),
		sendTimeout: sendTimeout,
		mode:        mode,
	}
}

// Status сообщает режим доставки.
func (n *Notifier) Status() Status {
	return Status{Configured: n.mode == ModeSMTP, Mode: n.mode}
}

// SendPasswordReset отправляет ссылку сброса пароля.
func (n *Notifier) SendPasswordReset(ctx context.Context, email, token, userID string) error {
	link := n.link("/reset-password", token, userID)

	return n.send(ctx, "notify.SendPasswordReset", Message{
		To:      email,
		Subject: "Password reset",
		Body: "You requested a password reset.\n\n" +
			"Open the link below to choose a new password:\n" + link + "\n\n" +
			"If you did not request this, ignore this message.",
	})
}

// SendVerification отправляет ссылку подтверждения e-mail.
func (n *Notifier) SendVerification(ctx context.Context, email, token, userID string) error {
	link := n.link("/verify-email", token, userID)

	return n.send(ctx, "notify.SendVerification", Message{
		To:      email,
		Subject: "Confirm your email",
		Body:    "Confirm your email address by opening the link below:\n" + link,
	})
}

// SendWelcome отправляет приветственное письмо.
func (n *Notifier) SendWelcome(ctx context.Context, email, name string) error {
	greeting := "Hello"
	if name != "" {
		greeting += ", " + name
	}

	return n.send(ctx, "notify.SendWelcome", Message{
		To:      email,
		Subject: "Welcome",
		Body:    greeting + "!\n\nYour account has been created.",
	})
}

// Dispatch выполняет fn в фоне. Отмена ctx запроса на отправку не влияет,
// действует только send_timeout. Логгер берётся из ctx.
func (n *Notifier) Dispatch(ctx context.Context, name string, fn func(ctx context.Context) error) {
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.sendTimeout)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer cancel()

		lg := log.From(bg)
		start := time.Now()

		if err := fn(bg); err != nil {
			lg.Warn("notify_send_failed",
				slog.String("kind", name),
				slog.String("err", err.Error()),
			)
			return
		}

		lg.Debug("notify_sent",
			slog.String("kind", name),
			slog.Duration("dur", time.Since(start)),
		)
	}()
}

// Wait дожидается фоновых отправок (используется при остановке и в тестах).
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) send(ctx context.Context, op string, msg Message) error {
	if err := n.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("%s: to=%s: %w", op, redact.Email(msg.To), err)
	}

	return nil
}

func (n *Notifier) link(path, token, userID string) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("userId", userID)

	return n.baseURL + path + "?" + q.Encode()
}

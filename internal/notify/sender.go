package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pribylovaa/go-jwt-auth/internal/config"
	"github.com/pribylovaa/go-jwt-auth/internal/pkg/log"
	"github.com/pribylovaa/go-jwt-auth/pkg/redact"
	"github.com/wneessen/go-mail"
)

// SMTPSender отправляет письма через SMTP-сервер.
type SMTPSender struct {
	cfg config.MailConfig
}

// NewSMTPSender создаёт отправителя. Соединение открывается на каждое письмо.
func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	const op = "notify.SMTPSender.Send"

	m := mail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return fmt.Errorf("%s: from: %w", op, err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("%s: to: %w", op, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)

	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(s.timeout()),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	c, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *SMTPSender) timeout() time.Duration {
	if s.cfg.SendTimeout > 0 {
		return s.cfg.SendTimeout
	}

	return 5 * time.Second
}

// LogSender пишет письмо в лог вместо отправки. Ссылки с токенами
// в лог не попадают.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, msg Message) error {
	log.From(ctx).Info("mail_logged",
		slog.String("to", redact.Email(msg.To)),
		slog.String("subject", msg.Subject),
		slog.Int("body_len", len(msg.Body)),
	)

	return nil
}

// NewSender выбирает отправителя по конфигурации: SMTP, если задан хост,
// иначе LogSender.
func NewSender(cfg config.MailConfig) Sender {
	if cfg.Configured() {
		return NewSMTPSender(cfg)
	}

	return &LogSender{}
}

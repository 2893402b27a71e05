package mail

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"

	"go.uber.org/zap"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends email through a plain SMTP relay
type SMTPMailer struct {
	addr   string
	auth   smtp.Auth
	from   string
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	logger *zap.Logger
}

func NewSMTPMailer(cfg SMTPConfig, logger *zap.Logger) *SMTPMailer {
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPMailer{
		addr:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		auth:   auth,
		from:   cfg.From,
		send:   smtp.SendMail,
		logger: logger,
	}
}

func (m *SMTPMailer) Send(ctx context.Context, e Email) error {
	if err := validate(e); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	from := e.From
	if from == "" {
		from = m.from
	}

	raw, err := BuildRaw(from, e)
	if err != nil {
		return err
	}

	rcpts := append(append([]string{}, e.To...), e.Cc...)
	if err := m.send(m.addr, m.auth, from, rcpts, raw); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}

	m.logger.Info("email sent via SMTP", zap.Strings("to", e.To), zap.String("relay", m.addr))
	return nil
}

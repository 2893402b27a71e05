package backend

import (
	"context"

	"github.com/lalithlochan/courier/internal/db"
	"github.com/lalithlochan/courier/internal/mail"
	"github.com/lalithlochan/courier/internal/notify"
)

type EmailConfig struct {
	notify.Options
	From string `json:"from"`
}

// EmailContent is the stored form of an email message.
type EmailContent struct {
	Subject     string            `json:"subject"`
	Body        string            `json:"body"`
	From        string            `json:"from,omitempty"`
	Cc          []string          `json:"cc,omitempty"`
	Attachments []mail.Attachment `json:"attachments,omitempty"`
}

// Email sends one HTML email per recipient.
type Email struct {
	*notify.Base
	mailer mail.Mailer
	from   string
}

func NewEmail(kwargs notify.Kwargs, deps Deps) (*Email, error) {
	var cfg EmailConfig
	if err := notify.DecodeConfig(notify.BackendEmail, deps.settings(notify.BackendEmail), kwargs, &cfg); err != nil {
		return nil, err
	}
	if deps.Mailer == nil {
		return nil, &notify.ConfigurationError{Backend: notify.BackendEmail, Key: "mailer"}
	}
	return &Email{
		Base:   deps.base(notify.BackendEmail, cfg.Options, notify.HTMLRenderer{}, nil),
		mailer: deps.Mailer,
		from:   cfg.From,
	}, nil
}

func (e *Email) MakeContent(title, body string, _ []notify.Recipient, _ notify.Field, opts notify.Kwargs) (any, error) {
	var extra struct {
		From        string            `json:"from"`
		Cc          []string          `json:"cc"`
		Attachments []mail.Attachment `json:"attachments"`
	}
	if err := decodeMessageKwargs(notify.BackendEmail, opts, &extra); err != nil {
		return nil, err
	}
	from := extra.From
	if from == "" {
		from = e.from
	}
	return EmailContent{
		Subject:     title,
		Body:        body,
		From:        from,
		Cc:          extra.Cc,
		Attachments: extra.Attachments,
	}, nil
}

func (e *Email) PerformSend(ctx context.Context, msg *db.Message, recipients []notify.Recipient, field notify.Field, save bool, _ notify.Kwargs) error {
	content, ok := msg.Content.(EmailContent)
	if !ok {
		return unexpectedContent(e.ID(), msg.Content)
	}
	if field == nil {
		field = notify.FieldEmail
	}

	for i := range recipients {
		r := &recipients[i]
		addr, err := e.ResolveAddress(ctx, *r, field)
		if err != nil {
			return err
		}

		details := notify.Kwargs{"to": []string{addr}}
		sendErr := e.mailer.Send(ctx, mail.Email{
			From:        content.From,
			To:          []string{addr},
			Cc:          content.Cc,
			Subject:     content.Subject,
			Body:        content.Body,
			HTML:        true,
			Attachments: content.Attachments,
		})
		if err := report(ctx, e.Base, msg, r, save, details, sendErr); err != nil {
			return err
		}
	}
	return nil
}

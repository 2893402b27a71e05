package mail

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Email is one outbound message. From may be empty, in which case the
// mailer's default sender is used.
type Email struct {
	From        string
	To          []string
	Cc          []string
	Subject     string
	Body        string
	HTML        bool
	Attachments []Attachment
}

// Attachment is a file attached to an email. Data is base64 in JSON form.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	Data        []byte `json:"data"`
}

// Mailer delivers emails.
type Mailer interface {
	Send(ctx context.Context, e Email) error
}

var errNoRecipients = errors.New("email has no recipients")

func validate(e Email) error {
	if len(e.To) == 0 {
		return errNoRecipients
	}
	return nil
}

// LogMailer logs emails instead of sending them (for development)
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, e Email) error {
	if err := validate(e); err != nil {
		return err
	}
	m.logger.Info("email sent",
		zap.Strings("to", e.To),
		zap.Strings("cc", e.Cc),
		zap.String("subject", e.Subject),
		zap.Bool("html", e.HTML),
		zap.Int("attachments", len(e.Attachments)),
	)
	return nil
}

package backend

import (
	"context"

	"github.com/lalithlochan/courier/internal/db"
	"github.com/lalithlochan/courier/internal/notify"
	"github.com/lalithlochan/courier/internal/sms"
)

type SMSConfig struct {
	notify.Options
	SignName string `json:"sign_name"`
}

// SMSContent is the stored form of a text message. The text itself is
// produced by the gateway from the template code.
type SMSContent struct {
	SignName      string         `json:"sign_name"`
	TemplateCode  string         `json:"template_code"`
	TemplateParam map[string]any `json:"template_param,omitempty"`
}

// SMS sends a templated text message to each recipient's phone.
type SMS struct {
	*notify.Base
	gateway  sms.Gateway
	signName string
}

func NewSMS(kwargs notify.Kwargs, deps Deps) (*SMS, error) {
	var cfg SMSConfig
	if err := notify.DecodeConfig(notify.BackendSMS, deps.settings(notify.BackendSMS), kwargs, &cfg); err != nil {
		return nil, err
	}
	if err := required(notify.BackendSMS, "sign_name", cfg.SignName); err != nil {
		return nil, err
	}
	if deps.SMS == nil {
		return nil, &notify.ConfigurationError{Backend: notify.BackendSMS, Key: "gateway"}
	}
	return &SMS{
		Base:     deps.base(notify.BackendSMS, cfg.Options, nil, nil),
		gateway:  deps.SMS,
		signName: cfg.SignName,
	}, nil
}

// MakeContent requires a template_code message kwarg. template_param and
// sign_name are optional.
func (s *SMS) MakeContent(_, _ string, _ []notify.Recipient, _ notify.Field, opts notify.Kwargs) (any, error) {
	var content SMSContent
	if err := decodeMessageKwargs(notify.BackendSMS, opts, &content); err != nil {
		return nil, err
	}
	if content.TemplateCode == "" {
		return nil, &notify.ValidationError{Reason: "sms requires a template_code message kwarg"}
	}
	if content.SignName == "" {
		content.SignName = s.signName
	}
	return content, nil
}

func (s *SMS) PerformSend(ctx context.Context, msg *db.Message, recipients []notify.Recipient, field notify.Field, save bool, _ notify.Kwargs) error {
	content, ok := msg.Content.(SMSContent)
	if !ok {
		return unexpectedContent(s.ID(), msg.Content)
	}
	if field == nil {
		field = notify.FieldPhone
	}

	for i := range recipients {
		r := &recipients[i]
		phone, err := s.ResolveAddress(ctx, *r, field)
		if err != nil {
			return err
		}

		details := notify.Kwargs{"phone_numbers": phone}
		sendErr := s.gateway.Send(ctx, sms.Message{
			Phone:         phone,
			SignName:      content.SignName,
			TemplateCode:  content.TemplateCode,
			TemplateParam: content.TemplateParam,
		})
		if err := report(ctx, s.Base, msg, r, save, details, sendErr); err != nil {
			return err
		}
	}
	return nil
}

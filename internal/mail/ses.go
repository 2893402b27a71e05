package mail

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"
)

// sesAPI is the part of the SES client the mailer uses.
type sesAPI interface {
	SendRawEmail(ctx context.Context, params *ses.SendRawEmailInput, optFns ...func(*ses.Options)) (*ses.SendRawEmailOutput, error)
}

// SESMailer sends email through AWS SES
type SESMailer struct {
	client sesAPI
	from   string
	logger *zap.Logger
}

type SESConfig struct {
	Region    string
	FromEmail string
}

func NewSESMailer(ctx context.Context, cfg SESConfig, logger *zap.Logger) (*SESMailer, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config: %w", err)
	}
	return &SESMailer{
		client: ses.NewFromConfig(awsCfg),
		from:   cfg.FromEmail,
		logger: logger,
	}, nil
}

// Send sends e as a raw MIME message so cc and attachments survive
func (m *SESMailer) Send(ctx context.Context, e Email) error {
	if err := validate(e); err != nil {
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

	input := &ses.SendRawEmailInput{
		Source:       aws.String(from),
		Destinations: append(append([]string{}, e.To...), e.Cc...),
		RawMessage:   &types.RawMessage{Data: raw},
	}

	result, err := m.client.SendRawEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}

	m.logger.Info("email sent via SES",
		zap.Strings("to", e.To),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)
	return nil
}

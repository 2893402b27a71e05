package sms

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"
)

// Message is a templated text message for one phone number.
type Message struct {
	Phone         string
	SignName      string
	TemplateCode  string
	TemplateParam map[string]any
}

// Gateway delivers text messages.
type Gateway interface {
	Send(ctx context.Context, m Message) error
}

// snsAPI is the part of the SNS client the gateway uses.
type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SNSConfig struct {
	Region          string
	AccessKeyID     string
	AccessKeySecret string

	// Templates maps a template code to its text/template body.
	Templates map[string]string
}

// SNSGateway sends SMS through AWS SNS, rendering the template code
// locally since SNS has no server-side templates.
type SNSGateway struct {
	client    snsAPI
	templates map[string]*template.Template
	logger    *zap.Logger
}

// NewSNSGateway creates a gateway. Static credentials are used when an
// access key is configured, the default AWS chain otherwise.
func NewSNSGateway(ctx context.Context, cfg SNSConfig, logger *zap.Logger) (*SNSGateway, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.AccessKeySecret, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config for SNS: %w", err)
	}

	templates, err := parseTemplates(cfg.Templates)
	if err != nil {
		return nil, err
	}

	return &SNSGateway{
		client:    sns.NewFromConfig(awsCfg),
		templates: templates,
		logger:    logger,
	}, nil
}

func parseTemplates(raw map[string]string) (map[string]*template.Template, error) {
	out := make(map[string]*template.Template, len(raw))
	for code, body := range raw {
		t, err := template.New(code).Option("missingkey=error").Parse(body)
		if err != nil {
			return nil, fmt.Errorf("parse sms template %s: %w", code, err)
		}
		out[code] = t
	}
	return out, nil
}

// Send renders the template and publishes it to the phone number
func (g *SNSGateway) Send(ctx context.Context, m Message) error {
	if m.Phone == "" {
		return fmt.Errorf("sms message missing phone number")
	}
	text, err := g.render(m)
	if err != nil {
		return err
	}

	input := &sns.PublishInput{
		PhoneNumber: aws.String(m.Phone),
		Message:     aws.String(text),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SMSType": {
				DataType:    aws.String("String"),
				StringValue: aws.String("Transactional"),
			},
		},
	}
	if m.SignName != "" {
		input.MessageAttributes["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(m.SignName),
		}
	}

	result, err := g.client.Publish(ctx, input)
	if err != nil {
		return fmt.Errorf("sns publish failed: %w", err)
	}

	g.logger.Info("SMS sent via SNS",
		zap.String("phone_number", m.Phone),
		zap.String("template_code", m.TemplateCode),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)
	return nil
}

func (g *SNSGateway) render(m Message) (string, error) {
	t, ok := g.templates[m.TemplateCode]
	if !ok {
		return "", fmt.Errorf("unknown sms template %q", m.TemplateCode)
	}
	params := m.TemplateParam
	if params == nil {
		params = map[string]any{}
	}
	var b strings.Builder
	if err := t.Execute(&b, params); err != nil {
		return "", fmt.Errorf("render sms template %s: %w", m.TemplateCode, err)
	}
	return b.String(), nil
}

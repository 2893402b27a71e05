package sms

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"
)

type fakeSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("sms-1")}, nil
}

func newTestGateway(t *testing.T, fake *fakeSNS) *SNSGateway {
	t.Helper()
	templates, err := parseTemplates(map[string]string{
		"SMS_001": "Your code is {{.code}}",
	})
	if err != nil {
		t.Fatalf("parse templates: %v", err)
	}
	return &SNSGateway{client: fake, templates: templates, logger: zap.NewNop()}
}

func TestSNSGateway_Send(t *testing.T) {
	fake := &fakeSNS{}
	g := newTestGateway(t, fake)

	err := g.Send(context.Background(), Message{
		Phone:         "+8613800000000",
		SignName:      "Courier",
		TemplateCode:  "SMS_001",
		TemplateParam: map[string]any{"code": "1234"},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	in := fake.inputs[0]
	if aws.ToString(in.Message) != "Your code is 1234" {
		t.Errorf("message = %q", aws.ToString(in.Message))
	}
	if aws.ToString(in.MessageAttributes["AWS.SNS.SMS.SenderID"].StringValue) != "Courier" {
		t.Error("sender id attribute not set from sign name")
	}
}

func TestSNSGateway_Errors(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		err  error
	}{
		{"no_phone", Message{TemplateCode: "SMS_001"}, nil},
		{"unknown_template", Message{Phone: "+1", TemplateCode: "SMS_404"}, nil},
		{"missing_param", Message{Phone: "+1", TemplateCode: "SMS_001"}, nil},
		{"publish_error", Message{Phone: "+1", TemplateCode: "SMS_001", TemplateParam: map[string]any{"code": "1"}}, errors.New("opted out")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeSNS{err: tt.err}
			g := newTestGateway(t, fake)
			if err := g.Send(context.Background(), tt.msg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseTemplates_Invalid(t *testing.T) {
	if _, err := parseTemplates(map[string]string{"bad": "{{.x"}); err == nil {
		t.Error("expected parse error")
	}
}

package mail

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	netmail "net/mail"
	"net/smtp"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"go.uber.org/zap"
)

type fakeSES struct {
	input *ses.SendRawEmailInput
	err   error
}

func (f *fakeSES) SendRawEmail(ctx context.Context, params *ses.SendRawEmailInput, optFns ...func(*ses.Options)) (*ses.SendRawEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendRawEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestBuildRaw(t *testing.T) {
	raw, err := BuildRaw("noreply@example.com", Email{
		To:          []string{"a@example.com"},
		Cc:          []string{"b@example.com", "c@example.com"},
		Subject:     "Déploiement",
		Body:        "<p>done</p>",
		HTML:        true,
		Attachments: []Attachment{{Filename: "report.csv", Data: []byte("a,b\n1,2\n")}},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	msg, err := netmail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := msg.Header.Get("Cc"); got != "b@example.com, c@example.com" {
		t.Errorf("cc = %q", got)
	}
	subject, _ := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
	if subject != "Déploiement" {
		t.Errorf("subject = %q", subject)
	}

	_, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil {
		t.Fatalf("content type: %v", err)
	}
	mr := multipart.NewReader(msg.Body, params["boundary"])

	body, err := mr.NextPart()
	if err != nil {
		t.Fatalf("body part: %v", err)
	}
	if !strings.HasPrefix(body.Header.Get("Content-Type"), "text/html") {
		t.Errorf("body content type = %q", body.Header.Get("Content-Type"))
	}
	text, _ := io.ReadAll(body)
	if string(text) != "<p>done</p>" {
		t.Errorf("body = %q", text)
	}

	att, err := mr.NextPart()
	if err != nil {
		t.Fatalf("attachment part: %v", err)
	}
	if att.FileName() != "report.csv" {
		t.Errorf("filename = %q", att.FileName())
	}
}

func TestSESMailer_Send(t *testing.T) {
	fake := &fakeSES{}
	m := &SESMailer{client: fake, from: "noreply@example.com", logger: zap.NewNop()}

	err := m.Send(context.Background(), Email{
		To:      []string{"a@example.com"},
		Cc:      []string{"b@example.com"},
		Subject: "hi",
		Body:    "hello",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if aws.ToString(fake.input.Source) != "noreply@example.com" {
		t.Errorf("source = %q", aws.ToString(fake.input.Source))
	}
	if len(fake.input.Destinations) != 2 {
		t.Errorf("destinations = %v", fake.input.Destinations)
	}
	if len(fake.input.RawMessage.Data) == 0 {
		t.Error("raw message is empty")
	}
}

func TestSESMailer_Errors(t *testing.T) {
	fake := &fakeSES{err: errors.New("throttled")}
	m := &SESMailer{client: fake, from: "noreply@example.com", logger: zap.NewNop()}

	if err := m.Send(context.Background(), Email{Subject: "x"}); !errors.Is(err, errNoRecipients) {
		t.Errorf("expected errNoRecipients, got %v", err)
	}
	if err := m.Send(context.Background(), Email{To: []string{"a@example.com"}}); err == nil {
		t.Error("expected error from SES")
	}
}

func TestSMTPMailer_Send(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "localhost", Port: 2525, From: "noreply@example.com"}, zap.NewNop())

	var gotAddr, gotFrom string
	var gotTo []string
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo = addr, from, to
		return nil
	}

	err := m.Send(context.Background(), Email{
		From: "ops@example.com",
		To:   []string{"a@example.com"},
		Cc:   []string{"b@example.com"},
		Body: "hi",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotAddr != "localhost:2525" || gotFrom != "ops@example.com" || len(gotTo) != 2 {
		t.Errorf("unexpected call: %s %s %v", gotAddr, gotFrom, gotTo)
	}
}

func TestLogMailer_Send(t *testing.T) {
	m := NewLogMailer(zap.NewNop())
	if err := m.Send(context.Background(), Email{To: []string{"a@example.com"}}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

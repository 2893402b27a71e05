package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/lalithlochan/courier/internal/db"
	"github.com/lalithlochan/courier/internal/dingtalk"
	"github.com/lalithlochan/courier/internal/notify"
)

type ChatbotConfig struct {
	notify.Options
	Webhook string `json:"webhook"`
}

// Chatbot posts one message to a group chatbot webhook, mentioning the
// recipients by mobile number.
type Chatbot struct {
	*notify.Base
	robot   *dingtalk.Robot
	webhook string
}

func NewChatbot(kwargs notify.Kwargs, deps Deps) (*Chatbot, error) {
	var cfg ChatbotConfig
	if err := notify.DecodeConfig(notify.BackendChatbot, deps.settings(notify.BackendChatbot), kwargs, &cfg); err != nil {
		return nil, err
	}
	if err := required(notify.BackendChatbot, "webhook", cfg.Webhook); err != nil {
		return nil, err
	}
	if deps.DingTalk == nil {
		return nil, &notify.ConfigurationError{Backend: notify.BackendChatbot, Key: "dingtalk"}
	}
	return &Chatbot{
		Base:    deps.base(notify.BackendChatbot, cfg.Options, notify.NewMarkdownRenderer(), nil),
		robot:   deps.DingTalk.Robot(),
		webhook: cfg.Webhook,
	}, nil
}

// MakeContent builds the webhook payload. at_all mentions everyone;
// otherwise at_mobiles is used when given, or the recipients' mobiles
// are resolved through field.
func (c *Chatbot) MakeContent(title, body string, recipients []notify.Recipient, field notify.Field, opts notify.Kwargs) (any, error) {
	msgtype, _ := opts["msgtype"].(string)
	if msgtype == "" {
		msgtype = "markdown"
	}

	at := notify.Kwargs{}
	if all, _ := opts["at_all"].(bool); all {
		at["isAtAll"] = true
	} else {
		mobiles, err := c.mentions(recipients, field, opts["at_mobiles"])
		if err != nil {
			return nil, err
		}
		if len(mobiles) > 0 {
			mention := make([]string, len(mobiles))
			for i, m := range mobiles {
				mention[i] = "@" + m
			}
			body = strings.Join(mention, " ") + "\n\n" + body
			at["atMobiles"] = mobiles
		}
	}

	payload := notify.Kwargs{"msgtype": msgtype}
	if len(at) > 0 {
		payload["at"] = at
	}
	switch msgtype {
	case "text":
		payload["text"] = notify.Kwargs{"content": body}
	default:
		payload[msgtype] = notify.Kwargs{"title": title, "text": body}
	}
	return notify.Merge(payload, opts.Without("msgtype", "at_all", "at_mobiles")), nil
}

func (c *Chatbot) mentions(recipients []notify.Recipient, field notify.Field, given any) ([]string, error) {
	switch v := given.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, m := range v {
			out = append(out, fmt.Sprint(m))
		}
		return out, nil
	case nil:
	default:
		return nil, &notify.ValidationError{Reason: "at_mobiles must be a list of mobile numbers"}
	}

	if field == nil {
		return nil, nil
	}
	out := make([]string, 0, len(recipients))
	for _, r := range recipients {
		mobile, err := notify.Resolve(r, field)
		if err != nil {
			return nil, err
		}
		out = append(out, mobile)
	}
	return out, nil
}

// PerformSend posts once for the whole batch and reports the outcome for
// every recipient, or once without a recipient when there are none.
func (c *Chatbot) PerformSend(ctx context.Context, msg *db.Message, recipients []notify.Recipient, _ notify.Field, save bool, _ notify.Kwargs) error {
	details := notify.Kwargs{"webhook": c.webhook}
	sendErr := c.robot.Send(ctx, c.webhook, msg.Content)

	if len(recipients) == 0 {
		return report(ctx, c.Base, msg, nil, save, details, sendErr)
	}
	for i := range recipients {
		if err := report(ctx, c.Base, msg, &recipients[i], save, details, sendErr); err != nil {
			return err
		}
	}
	return nil
}

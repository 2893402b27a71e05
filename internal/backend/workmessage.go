package backend

import (
	"context"
	"errors"

	"github.com/lalithlochan/courier/internal/db"
	"github.com/lalithlochan/courier/internal/dingtalk"
	"github.com/lalithlochan/courier/internal/notify"
)

type WorkMessageConfig struct {
	notify.Options
	AgentID   int64  `json:"agent_id"`
	AppKey    string `json:"app_key"`
	AppSecret string `json:"app_secret"`
}

// WorkMessage sends a markdown work notification to each recipient
// through the app messaging API.
type WorkMessage struct {
	*notify.Base
	client  *dingtalk.Client
	agentID int64
}

func NewWorkMessage(kwargs notify.Kwargs, deps Deps) (*WorkMessage, error) {
	var cfg WorkMessageConfig
	if err := notify.DecodeConfig(notify.BackendWorkMessage, deps.settings(notify.BackendWorkMessage), kwargs, &cfg); err != nil {
		return nil, err
	}
	if cfg.AgentID == 0 {
		return nil, &notify.ConfigurationError{Backend: notify.BackendWorkMessage, Key: "agent_id"}
	}
	if err := required(notify.BackendWorkMessage, "app_key", cfg.AppKey); err != nil {
		return nil, err
	}
	if err := required(notify.BackendWorkMessage, "app_secret", cfg.AppSecret); err != nil {
		return nil, err
	}
	if deps.DingTalk == nil {
		return nil, &notify.ConfigurationError{Backend: notify.BackendWorkMessage, Key: "dingtalk"}
	}

	client := deps.DingTalk.Client(cfg.AppKey, cfg.AppSecret)
	return &WorkMessage{
		Base:    deps.base(notify.BackendWorkMessage, cfg.Options, notify.NewMarkdownRenderer(), mobileResolver{client: client, backend: notify.BackendWorkMessage}),
		client:  client,
		agentID: cfg.AgentID,
	}, nil
}

// mobileResolver turns a mobile number into the platform user id. Other
// values are used as user ids unchanged.
type mobileResolver struct {
	client  *dingtalk.Client
	backend string
}

func (m mobileResolver) ResolveAddress(ctx context.Context, r notify.Recipient, field notify.Field) (string, error) {
	addr, err := notify.Resolve(r, field)
	if err != nil {
		return "", err
	}
	if !isMobile(addr) {
		return addr, nil
	}
	userID, err := m.client.UserIDByMobile(ctx, addr)
	if err != nil {
		return "", &notify.TransportError{Backend: m.backend, RecipientID: r.ID, Err: err}
	}
	return userID, nil
}

func isMobile(s string) bool {
	if len(s) != 11 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func (w *WorkMessage) MakeContent(title, body string, _ []notify.Recipient, _ notify.Field, _ notify.Kwargs) (any, error) {
	return notify.Kwargs{
		"msgtype":  "markdown",
		"markdown": notify.Kwargs{"title": title, "text": body},
	}, nil
}

// PerformSend sends one request per recipient, addressed to that
// recipient's user id. A failed lookup or send is reported for that
// recipient only.
func (w *WorkMessage) PerformSend(ctx context.Context, msg *db.Message, recipients []notify.Recipient, field notify.Field, save bool, sendKwargs notify.Kwargs) error {
	for i := range recipients {
		r := &recipients[i]
		userID, err := w.ResolveAddress(ctx, *r, field)
		var terr *notify.TransportError
		switch {
		case errors.As(err, &terr):
			if ferr := w.OnFailure(ctx, msg, r, err, save, nil); ferr != nil {
				return ferr
			}
			continue
		case err != nil:
			return err
		}

		body := notify.Merge(notify.Kwargs{
			"agent_id":    w.agentID,
			"msg":         msg.Content,
			"userid_list": userID,
		}, sendKwargs)
		details := notify.Kwargs{"userid_list": userID}

		sendErr := w.client.SendWorkMessage(ctx, body)
		if err := report(ctx, w.Base, msg, r, save, details, sendErr); err != nil {
			return err
		}
	}
	return nil
}

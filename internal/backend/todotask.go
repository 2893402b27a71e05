package backend

import (
	"context"

	"github.com/lalithlochan/courier/internal/db"
	"github.com/lalithlochan/courier/internal/dingtalk"
	"github.com/lalithlochan/courier/internal/notify"
)

type TodoTaskConfig struct {
	notify.Options
	AppKey    string `json:"app_key"`
	AppSecret string `json:"app_secret"`
}

// TodoTask creates a to-do task for each recipient, addressed by union id.
type TodoTask struct {
	*notify.Base
	client *dingtalk.Client
}

func NewTodoTask(kwargs notify.Kwargs, deps Deps) (*TodoTask, error) {
	var cfg TodoTaskConfig
	if err := notify.DecodeConfig(notify.BackendTodoTask, deps.settings(notify.BackendTodoTask), kwargs, &cfg); err != nil {
		return nil, err
	}
	if err := required(notify.BackendTodoTask, "app_key", cfg.AppKey); err != nil {
		return nil, err
	}
	if err := required(notify.BackendTodoTask, "app_secret", cfg.AppSecret); err != nil {
		return nil, err
	}
	if deps.DingTalk == nil {
		return nil, &notify.ConfigurationError{Backend: notify.BackendTodoTask, Key: "dingtalk"}
	}
	return &TodoTask{
		Base:   deps.base(notify.BackendTodoTask, cfg.Options, nil, nil),
		client: deps.DingTalk.Client(cfg.AppKey, cfg.AppSecret),
	}, nil
}

// MakeContent builds the task body. Message kwargs such as dueTime or
// detailUrl are passed through; nil values are dropped.
func (t *TodoTask) MakeContent(title, body string, _ []notify.Recipient, _ notify.Field, opts notify.Kwargs) (any, error) {
	extra := notify.Kwargs{}
	for k, v := range opts {
		if v != nil {
			extra[k] = v
		}
	}
	return notify.Merge(notify.Kwargs{"subject": title, "description": body}, extra), nil
}

func (t *TodoTask) PerformSend(ctx context.Context, msg *db.Message, recipients []notify.Recipient, field notify.Field, save bool, _ notify.Kwargs) error {
	content, ok := msg.Content.(notify.Kwargs)
	if !ok {
		return unexpectedContent(t.ID(), msg.Content)
	}

	for i := range recipients {
		r := &recipients[i]
		unionID, err := t.ResolveAddress(ctx, *r, field)
		if err != nil {
			return err
		}

		executors := []string{unionID}
		details := notify.Kwargs{"unionid": unionID, "executorIds": executors}
		body := notify.Merge(notify.Kwargs{"executorIds": executors}, content)

		sendErr := t.client.CreateTodoTask(ctx, unionID, body)
		if err := report(ctx, t.Base, msg, r, save, details, sendErr); err != nil {
			return err
		}
	}
	return nil
}

package backend

import (
	"context"

	"github.com/lalithlochan/courier/internal/db"
	"github.com/lalithlochan/courier/internal/notify"
)

// DefaultGroupPrefix prefixes the fan-out group of every recipient.
const DefaultGroupPrefix = "notify-"

// GroupName is the fan-out group a recipient's consumers join.
func GroupName(prefix, recipientID string) string {
	if prefix == "" {
		prefix = DefaultGroupPrefix
	}
	return prefix + recipientID
}

type WebsocketConfig struct {
	notify.Options
	GroupPrefix string `json:"group_prefix"`
}

// Websocket pushes messages to the real-time group of each recipient.
type Websocket struct {
	*notify.Base
	publisher Publisher
	prefix    string
}

func NewWebsocket(kwargs notify.Kwargs, deps Deps) (*Websocket, error) {
	var cfg WebsocketConfig
	if err := notify.DecodeConfig(notify.BackendWebsocket, deps.settings(notify.BackendWebsocket), kwargs, &cfg); err != nil {
		return nil, err
	}
	if deps.Publisher == nil {
		return nil, &notify.ConfigurationError{Backend: notify.BackendWebsocket, Key: "publisher"}
	}
	return &Websocket{
		Base:      deps.base(notify.BackendWebsocket, cfg.Options, nil, nil),
		publisher: deps.Publisher,
		prefix:    cfg.GroupPrefix,
	}, nil
}

// MakeContent builds the event. Extra message kwargs are copied into it
// and may override the standard keys.
func (w *Websocket) MakeContent(title, body string, _ []notify.Recipient, _ notify.Field, opts notify.Kwargs) (any, error) {
	msgtype, _ := opts["msgtype"].(string)
	if msgtype == "" {
		msgtype = "notify"
	}
	event := notify.Kwargs{
		"type":    msgtype + ".message",
		"msgtype": msgtype,
		"title":   title,
		"message": body,
	}
	return notify.Merge(event, opts.Without("msgtype")), nil
}

func (w *Websocket) PerformSend(ctx context.Context, msg *db.Message, recipients []notify.Recipient, _ notify.Field, save bool, _ notify.Kwargs) error {
	for i := range recipients {
		r := &recipients[i]
		group := GroupName(w.prefix, r.ID)
		details := notify.Kwargs{"group_name": group}

		sendErr := w.publisher.Publish(ctx, group, msg.Content)
		if err := report(ctx, w.Base, msg, r, save, details, sendErr); err != nil {
			return err
		}
	}
	return nil
}

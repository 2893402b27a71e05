// Package backend holds the built-in notification channels.
package backend

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/db"
	"github.com/lalithlochan/courier/internal/dingtalk"
	"github.com/lalithlochan/courier/internal/mail"
	"github.com/lalithlochan/courier/internal/notify"
	"github.com/lalithlochan/courier/internal/sms"
)

// Publisher fans a payload out to every member of a group.
type Publisher interface {
	Publish(ctx context.Context, group string, payload any) error
}

// Deps are the shared services backends are built from.
type Deps struct {
	Store notify.Store

	// Settings holds one settings block per backend id.
	Settings map[string]map[string]any

	Mailer    mail.Mailer
	Publisher Publisher
	DingTalk  *dingtalk.Pool
	SMS       sms.Gateway
	Logger    *zap.Logger
}

func (d Deps) settings(id string) notify.Kwargs {
	return notify.Kwargs(d.Settings[id])
}

func (d Deps) base(id string, opts notify.Options, renderer notify.Renderer, resolver notify.AddressResolver) *notify.Base {
	return notify.NewBase(notify.BaseConfig{
		ID:           id,
		FailSilently: opts.FailSilently,
		Store:        d.Store,
		Logger:       d.Logger,
		Renderer:     renderer,
		Resolver:     resolver,
	})
}

// RegisterAll registers every built-in backend with reg.
func RegisterAll(reg *notify.Registry, deps Deps) error {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	factories := []struct {
		id      string
		factory notify.Factory
		aliases []string
	}{
		{notify.BackendDummy, factory(NewDummy, deps), nil},
		{notify.BackendEmail, factory(NewEmail, deps), nil},
		{notify.BackendWebsocket, factory(NewWebsocket, deps), nil},
		{notify.BackendChatbot, factory(NewChatbot, deps), nil},
		{notify.BackendWorkMessage, factory(NewWorkMessage, deps), nil},
		{notify.BackendTodoTask, factory(NewTodoTask, deps), nil},
		{notify.BackendSMS, factory(NewSMS, deps), []string{"aliyunsms"}},
	}

	for _, f := range factories {
		if err := reg.Register(f.id, f.factory, f.aliases...); err != nil {
			return err
		}
	}
	return nil
}

// factory binds a constructor to deps. A failed constructor yields a nil
// Backend rather than a typed nil pointer.
func factory[B notify.Backend](newBackend func(notify.Kwargs, Deps) (B, error), deps Deps) notify.Factory {
	return func(kwargs notify.Kwargs) (notify.Backend, error) {
		b, err := newBackend(kwargs, deps)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

// report routes one delivery outcome to the success or failure hook.
func report(ctx context.Context, b *notify.Base, msg *db.Message, r *notify.Recipient, save bool, details notify.Kwargs, sendErr error) error {
	if sendErr != nil {
		return b.OnFailure(ctx, msg, r, sendErr, save, details)
	}
	return b.OnSuccess(ctx, msg, r, save, details)
}

func required(backendID, key, value string) error {
	if value == "" {
		return &notify.ConfigurationError{Backend: backendID, Key: key}
	}
	return nil
}

func decodeMessageKwargs(backendID string, opts notify.Kwargs, out any) error {
	if err := opts.Decode(out); err != nil {
		return &notify.ValidationError{Reason: fmt.Sprintf("%s message kwargs: %v", backendID, err)}
	}
	return nil
}

func unexpectedContent(backendID string, content any) error {
	return fmt.Errorf("%s: unexpected message content %T", backendID, content)
}

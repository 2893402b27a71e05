package notify

import (
	"context"
	"errors"

	"github.com/lalithlochan/courier/internal/db"
	"github.com/lalithlochan/courier/internal/metrics"
	"go.uber.org/zap"
)

// Backend is one delivery channel.
type Backend interface {
	// ID is the canonical backend id, stored as the message type.
	ID() string

	// Render produces the message body from stored template content.
	Render(content string, data map[string]any) (string, error)

	// MakeContent builds the channel-specific payload. Pure: no I/O.
	MakeContent(title, body string, recipients []Recipient, field Field, opts Kwargs) (any, error)

	// PerformSend delivers msg and reports every outcome through the
	// success and failure hooks.
	PerformSend(ctx context.Context, msg *db.Message, recipients []Recipient, field Field, save bool, opts Kwargs) error
}

// Factory constructs a backend from the merged construction kwargs.
type Factory func(kwargs Kwargs) (Backend, error)

// Store persists messages and per-recipient delivery records.
type Store interface {
	CreateMessage(ctx context.Context, msg *db.Message) error
	CreateNotification(ctx context.Context, n *db.Notification) error
}

// TemplateStore looks up stored templates by code. A missing template is
// reported as db.ErrNotFound.
type TemplateStore interface {
	GetTemplateByCode(ctx context.Context, code string) (*db.MessageTemplate, error)
}

// BaseConfig configures the shared part of a backend.
type BaseConfig struct {
	ID           string
	FailSilently bool
	Store        Store
	Logger       *zap.Logger

	// Renderer defaults to PlainRenderer.
	Renderer Renderer

	// Resolver defaults to FieldResolver.
	Resolver AddressResolver
}

// Base implements the parts every backend shares: rendering, recipient
// resolution and the success/failure hooks. Backends embed *Base.
type Base struct {
	id           string
	failSilently bool
	store        Store
	logger       *zap.Logger
	renderer     Renderer
	resolver     AddressResolver

	recorder recorder
}

// NewBase creates a Base.
func NewBase(cfg BaseConfig) *Base {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Renderer == nil {
		cfg.Renderer = PlainRenderer{}
	}
	if cfg.Resolver == nil {
		cfg.Resolver = FieldResolver{}
	}
	b := &Base{
		id:           cfg.ID,
		failSilently: cfg.FailSilently,
		store:        cfg.Store,
		logger:       cfg.Logger.With(zap.String("backend", cfg.ID)),
		renderer:     cfg.Renderer,
		resolver:     cfg.Resolver,
	}
	b.recorder = recorder{store: cfg.Store}
	return b
}

func (b *Base) ID() string { return b.id }

func (b *Base) FailSilently() bool { return b.failSilently }

func (b *Base) Logger() *zap.Logger { return b.logger }

func (b *Base) Render(content string, data map[string]any) (string, error) {
	return b.renderer.Render(content, data)
}

// ResolveAddress turns r into a transport address with the backend's
// resolver strategy.
func (b *Base) ResolveAddress(ctx context.Context, r Recipient, field Field) (string, error) {
	return b.resolver.ResolveAddress(ctx, r, field)
}

// OnSuccess records a delivered message. When save is set and a recipient
// is given, the message is persisted (once) and a sent notification row is
// created for the recipient.
func (b *Base) OnSuccess(ctx context.Context, msg *db.Message, r *Recipient, save bool, details Kwargs) error {
	metrics.RecordDelivery(b.id, metrics.OutcomeSent)
	if !save || r == nil {
		b.logger.Debug("message delivered", zap.String("recipient_id", recipientID(r)))
		return nil
	}
	if err := b.recorder.record(ctx, msg, r, true, details); err != nil {
		return err
	}
	b.logger.Debug("message delivered",
		zap.String("recipient_id", r.ID),
		zap.String("message_id", msg.ID.String()),
	)
	return nil
}

// OnFailure handles a failed delivery. Unless the backend fails silently
// the cause is returned as a *TransportError and nothing is recorded.
// Otherwise the failure is logged and, when save is set, an unsent
// notification row is created.
func (b *Base) OnFailure(ctx context.Context, msg *db.Message, r *Recipient, cause error, save bool, details Kwargs) error {
	metrics.RecordDelivery(b.id, metrics.OutcomeFailed)
	terr := b.transportError(r, cause)

	if !b.failSilently {
		return terr
	}
	b.logger.Error("message delivery failed",
		zap.String("recipient_id", recipientID(r)),
		zap.String("msg_type", msg.MsgType),
		zap.Error(cause),
	)

	if !save || r == nil {
		return nil
	}
	return b.recorder.record(ctx, msg, r, false, details)
}

func (b *Base) transportError(r *Recipient, cause error) *TransportError {
	var terr *TransportError
	if errors.As(cause, &terr) {
		return terr
	}
	return &TransportError{Backend: b.id, RecipientID: recipientID(r), Err: cause}
}

func recipientID(r *Recipient) string {
	if r == nil {
		return ""
	}
	return r.ID
}

package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lalithlochan/courier/internal/db"
	"github.com/lalithlochan/courier/internal/metrics"
	"go.uber.org/zap"
)

// Request is one logical notification addressed to one or more backends.
type Request struct {
	Recipients []Recipient
	Title      string

	// Message is the literal body. Nil means no body was given, which is
	// different from an empty one.
	Message *string

	TemplateCode string
	Context      map[string]any

	Save           bool
	Backends       []string
	RecipientField Field

	MessageKwargs Kwargs
	BackendKwargs Kwargs
	SendKwargs    Kwargs
	Mark          map[string]any
}

// Text returns a pointer to s for Request.Message.
func Text(s string) *string { return &s }

// Validate checks the request shape before anything is sent.
func (r Request) Validate() error {
	hasTemplate := r.TemplateCode != "" && len(r.Context) > 0
	if r.Message == nil && len(r.MessageKwargs) == 0 && !hasTemplate {
		return &ValidationError{Reason: "message, message kwargs, or template code with context is required"}
	}
	if len(r.Backends) == 0 {
		return &ValidationError{Reason: "at least one backend is required"}
	}
	return nil
}

// Envelope carries everything a backend needs to build and send one message.
type Envelope struct {
	Title         string
	Body          string
	Recipients    []Recipient
	Field         Field
	Save          bool
	Mark          map[string]any
	MessageKwargs Kwargs
	SendKwargs    Kwargs
}

// Send builds the payload with b and hands the message to its transport.
func Send(ctx context.Context, b Backend, env Envelope) error {
	content, err := b.MakeContent(env.Title, env.Body, env.Recipients, env.Field, env.MessageKwargs)
	if err != nil {
		return err
	}
	metrics.RecordMessageBuilt(b.ID())

	msg := &db.Message{
		Title:   env.Title,
		Content: content,
		MsgType: b.ID(),
		Mark:    env.Mark,
	}
	return b.PerformSend(ctx, msg, env.Recipients, env.Field, env.Save, env.SendKwargs)
}

// SendWithTemplate renders tmpl with data through b and sends the result.
// The template title is used when the envelope has none, and the
// template's message kwargs sit under the envelope's.
func SendWithTemplate(ctx context.Context, b Backend, tmpl *db.MessageTemplate, data map[string]any, env Envelope) error {
	body, err := b.Render(tmpl.Content, data)
	if err != nil {
		return err
	}
	env.Body = body
	if env.Title == "" {
		env.Title = tmpl.Title
	}
	env.MessageKwargs = Merge(tmpl.MessageKwargs, env.MessageKwargs)
	return Send(ctx, b, env)
}

// Dispatcher fans one notify call out to its backends.
type Dispatcher struct {
	registry  *Registry
	templates TemplateStore
	logger    *zap.Logger
}

// NewDispatcher creates a Dispatcher. templates may be nil when no
// template lookups are expected.
func NewDispatcher(registry *Registry, templates TemplateStore, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		registry:  registry,
		templates: templates,
		logger:    logger,
	}
}

// Registry returns the backend registry.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Notify validates req, resolves every backend reference, looks up its
// template once and sends through each resolved backend in order. A
// failing backend does not stop the others; the first error encountered
// is returned after all were attempted.
func (d *Dispatcher) Notify(ctx context.Context, req Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if len(req.Recipients) == 0 && req.Save {
		d.logger.Warn("no recipients given, notifications will not be saved",
			zap.Strings("backends", req.Backends),
		)
	}

	var firstErr error
	fail := func(ref string, err error) {
		d.logger.Error("backend dispatch failed",
			zap.String("backend", ref),
			zap.Error(err),
		)
		if firstErr == nil {
			firstErr = err
		}
	}

	targets := make([]target, 0, len(req.Backends))
	for _, ref := range req.Backends {
		factory, id, err := d.registry.Resolve(ref)
		if err != nil {
			fail(ref, err)
			continue
		}
		targets = append(targets, target{ref: ref, id: id, factory: factory})
	}
	if len(targets) == 0 {
		return firstErr
	}

	var tmpl *db.MessageTemplate
	if req.TemplateCode != "" {
		t, err := d.template(ctx, req.TemplateCode)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return firstErr
		}
		tmpl = t
	}

	for _, tg := range targets {
		if err := d.dispatch(ctx, tg, tmpl, req); err != nil {
			fail(tg.ref, err)
		}
	}
	return firstErr
}

// target is a resolved backend reference.
type target struct {
	ref     string
	id      string
	factory Factory
}

func (d *Dispatcher) template(ctx context.Context, code string) (*db.MessageTemplate, error) {
	if d.templates == nil {
		return nil, &TemplateNotFoundError{Code: code, Err: errors.New("no template store configured")}
	}
	tmpl, err := d.templates.GetTemplateByCode(ctx, code)
	if errors.Is(err, db.ErrNotFound) {
		return nil, &TemplateNotFoundError{Code: code, Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("get template %s: %w", code, err)
	}
	return tmpl, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, tg target, tmpl *db.MessageTemplate, req Request) error {
	start := time.Now()
	defer func() { metrics.ObserveDispatch(tg.id, time.Since(start)) }()

	env := Envelope{
		Title:         req.Title,
		Recipients:    req.Recipients,
		Field:         req.RecipientField,
		Save:          req.Save,
		Mark:          req.Mark,
		MessageKwargs: req.MessageKwargs,
		SendKwargs:    req.SendKwargs,
	}

	if tmpl != nil {
		backend, err := tg.factory(Merge(tmpl.BackendKwargs, req.BackendKwargs))
		if err != nil {
			return err
		}
		return SendWithTemplate(ctx, backend, tmpl, req.Context, env)
	}

	backend, err := tg.factory(Merge(req.BackendKwargs))
	if err != nil {
		return err
	}
	if req.Message != nil {
		env.Body = *req.Message
	}
	return Send(ctx, backend, env)
}

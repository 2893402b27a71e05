package notify

import "context"

// Backend ids of the built-in channels.
const (
	BackendDummy       = "dummy"
	BackendEmail       = "email"
	BackendWebsocket   = "websocket"
	BackendChatbot     = "dingtalkchatbot"
	BackendWorkMessage = "dingtalkworkmessage"
	BackendTodoTask    = "dingtalktodotask"
	BackendSMS         = "sms"
)

// Default recipient fields for the shortcuts.
const (
	FieldEmail      FieldName = "email"
	FieldPhone      FieldName = "phone"
	FieldDingTalkID FieldName = "dingtalk_id"
	FieldUnionID    FieldName = "dingtalk_union_id"
)

// notifyBy sends req through a single backend, filling in a default
// recipient field when the caller left it empty. defaults sit under the
// caller's message kwargs.
func (d *Dispatcher) notifyBy(ctx context.Context, backend string, field Field, defaults Kwargs, req Request) error {
	req.Backends = []string{backend}
	if req.RecipientField == nil && field != nil {
		req.RecipientField = field
	}
	if len(defaults) > 0 {
		req.MessageKwargs = Merge(defaults, req.MessageKwargs)
	}
	return d.Notify(ctx, req)
}

func (d *Dispatcher) NotifyByDummy(ctx context.Context, req Request) error {
	return d.notifyBy(ctx, BackendDummy, nil, nil, req)
}

func (d *Dispatcher) NotifyByEmail(ctx context.Context, req Request) error {
	return d.notifyBy(ctx, BackendEmail, FieldEmail, nil, req)
}

// NotifyByWebsocket sends "notify" events unless msgtype is given.
func (d *Dispatcher) NotifyByWebsocket(ctx context.Context, req Request) error {
	return d.notifyBy(ctx, BackendWebsocket, nil, Kwargs{"msgtype": "notify"}, req)
}

// NotifyByChatbot posts markdown unless msgtype is given.
func (d *Dispatcher) NotifyByChatbot(ctx context.Context, req Request) error {
	return d.notifyBy(ctx, BackendChatbot, FieldPhone, Kwargs{"msgtype": "markdown"}, req)
}

func (d *Dispatcher) NotifyByWorkMessage(ctx context.Context, req Request) error {
	return d.notifyBy(ctx, BackendWorkMessage, FieldDingTalkID, nil, req)
}

// NotifyByTodoTask turns on the in-app reminder unless notifyConfigs is
// given.
func (d *Dispatcher) NotifyByTodoTask(ctx context.Context, req Request) error {
	return d.notifyBy(ctx, BackendTodoTask, FieldUnionID, Kwargs{"notifyConfigs": map[string]any{"dingNotify": "1"}}, req)
}

// NotifyBySMS addresses a gateway template. req.TemplateCode names the SMS
// template rather than a stored message template, and req.Context becomes
// its parameters.
func (d *Dispatcher) NotifyBySMS(ctx context.Context, req Request) error {
	defaults := Kwargs{}
	if req.TemplateCode != "" {
		defaults["template_code"] = req.TemplateCode
		req.TemplateCode = ""
	}
	if len(req.Context) > 0 {
		defaults["template_param"] = req.Context
		req.Context = nil
	}
	return d.notifyBy(ctx, BackendSMS, FieldPhone, defaults, req)
}

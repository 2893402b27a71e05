package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/db"
	"github.com/lalithlochan/courier/internal/notify"
)

// Store defines the notification database operations the API exposes.
type Store interface {
	GetMessage(ctx context.Context, id uuid.UUID) (*db.Message, error)
	ListNotifications(ctx context.Context, filter db.NotificationFilter, limit, offset int) ([]*db.Notification, error)
	UpdateFlags(ctx context.Context, filter db.NotificationFilter, flags db.FlagUpdate) (int64, error)
	Clear(ctx context.Context, msgType string) (int64, error)
	UpsertTemplate(ctx context.Context, t *db.MessageTemplate) error
}

// Notifier sends one notification request through its backends.
type Notifier interface {
	Notify(ctx context.Context, req notify.Request) error
}

// TemplateInvalidator drops cached copies of a template after it changes.
type TemplateInvalidator interface {
	Invalidate(ctx context.Context, code string) error
}

// NotifyRequest is the body of POST /v1/notify.
type NotifyRequest struct {
	Recipients     []notify.Recipient `json:"recipients"`
	Title          string             `json:"title"`
	Message        *string            `json:"message"`
	TemplateCode   string             `json:"template_code"`
	Context        map[string]any     `json:"context"`
	Save           *bool              `json:"save"`
	Backends       []string           `json:"backends"`
	RecipientField string             `json:"recipient_field"`
	MessageKwargs  map[string]any     `json:"message_kwargs"`
	BackendKwargs  map[string]any     `json:"backend_kwargs"`
	SendKwargs     map[string]any     `json:"send_kwargs"`
	Mark           map[string]any     `json:"mark"`
}

// toRequest maps the body onto a notify.Request. save defaults to true.
func (nr NotifyRequest) toRequest() notify.Request {
	req := notify.Request{
		Recipients:    nr.Recipients,
		Title:         nr.Title,
		Message:       nr.Message,
		TemplateCode:  nr.TemplateCode,
		Context:       nr.Context,
		Save:          nr.Save == nil || *nr.Save,
		Backends:      nr.Backends,
		MessageKwargs: nr.MessageKwargs,
		BackendKwargs: nr.BackendKwargs,
		SendKwargs:    nr.SendKwargs,
		Mark:          nr.Mark,
	}
	if nr.RecipientField != "" {
		req.RecipientField = notify.FieldName(nr.RecipientField)
	}
	return req
}

// FlagsRequest is the body of PATCH /v1/notifications/flags.
type FlagsRequest struct {
	IDs         []uuid.UUID   `json:"ids"`
	RecipientID string        `json:"recipient_id"`
	MsgType     string        `json:"msg_type"`
	Set         db.FlagUpdate `json:"set"`
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger    *zap.Logger
	store     Store
	notifier  Notifier
	templates notify.TemplateStore
	cache     TemplateInvalidator // nil if Redis not configured
	streams   Subscriber          // nil if Redis not configured
	prefix    string
}

// NewHandler creates a new API handler. Templates are read from the store
// until WithTemplateCache is used.
func NewHandler(logger *zap.Logger, store Store, templates notify.TemplateStore, notifier Notifier) *Handler {
	return &Handler{
		logger:    logger,
		store:     store,
		notifier:  notifier,
		templates: templates,
	}
}

// WithTemplateCache reads templates through cache and invalidates it on
// every template write.
func (h *Handler) WithTemplateCache(cache interface {
	notify.TemplateStore
	TemplateInvalidator
}) *Handler {
	h.templates = cache
	h.cache = cache
	return h
}

// WithStreams enables GET /v1/stream/{recipientID}. groupPrefix must match
// the websocket backend's.
func (h *Handler) WithStreams(sub Subscriber, groupPrefix string) *Handler {
	h.streams = sub
	h.prefix = groupPrefix
	return h
}

// Register mounts the request/response routes on r. The stream route is
// mounted with RegisterStream, outside any request timeout.
func (h *Handler) Register(r chi.Router) {
	r.Post("/notify", h.Notify)
	r.Get("/notifications", h.ListNotifications)
	r.Patch("/notifications/flags", h.UpdateFlags)
	r.Get("/messages/{id}", h.GetMessage)
	r.Delete("/messages", h.ClearMessages)
	r.Get("/templates/{code}", h.GetTemplate)
	r.Put("/templates/{code}", h.PutTemplate)
}

// Notify handles POST /v1/notify. Delivery is synchronous; the response
// reports the first error any backend returned.
func (h *Handler) Notify(w http.ResponseWriter, r *http.Request) {
	var body NotifyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	req := body.toRequest()
	if err := h.notifier.Notify(r.Context(), req); err != nil {
		h.writeNotifyError(w, err, req)
		return
	}

	h.logger.Info("notification sent",
		zap.Strings("backends", req.Backends),
		zap.Int("recipients", len(req.Recipients)),
		zap.String("template_code", req.TemplateCode),
	)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "sent",
		"backends":   req.Backends,
		"recipients": len(req.Recipients),
	})
}

// ListNotifications handles GET /v1/notifications?recipient_id=&msg_type=&has_read=&is_sent=&is_ignored=&limit=20&offset=0
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := db.NotificationFilter{
		RecipientID: q.Get("recipient_id"),
		MsgType:     q.Get("msg_type"),
	}

	var err error
	for _, p := range []struct {
		name string
		dst  **bool
	}{
		{"has_read", &filter.HasRead},
		{"is_sent", &filter.IsSent},
		{"is_ignored", &filter.IsIgnored},
	} {
		if *p.dst, err = parseBool(q.Get(p.name)); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid "+p.name, p.name+" must be true or false")
			return
		}
	}

	// Parse pagination parameters with defaults
	limit := 20
	offset := 0

	if limitStr := q.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	if offsetStr := q.Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	notifications, err := h.store.ListNotifications(r.Context(), filter, limit, offset)
	if err != nil {
		h.logger.Error("failed to list notifications",
			zap.Error(err),
			zap.String("recipient_id", filter.RecipientID),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list notifications", "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":   notifications,
		"limit":  limit,
		"offset": offset,
		"count":  len(notifications),
	})
}

// UpdateFlags handles PATCH /v1/notifications/flags
func (h *Handler) UpdateFlags(w http.ResponseWriter, r *http.Request) {
	var req FlagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if req.Set.Empty() {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Nothing to update",
			"set must contain has_read, is_ignored or is_sent")
		return
	}
	if len(req.IDs) == 0 && req.RecipientID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing filter",
			"ids or recipient_id is required")
		return
	}

	filter := db.NotificationFilter{IDs: req.IDs, RecipientID: req.RecipientID, MsgType: req.MsgType}
	updated, err := h.store.UpdateFlags(r.Context(), filter, req.Set)
	if err != nil {
		h.logger.Error("failed to update notification flags",
			zap.Error(err),
			zap.String("recipient_id", req.RecipientID),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to update notifications", "")
		return
	}

	h.logger.Info("notification flags updated",
		zap.String("recipient_id", req.RecipientID),
		zap.Int64("updated", updated),
	)
	writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

// GetMessage handles GET /v1/messages/{id}
func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid message ID", "ID must be a valid UUID")
		return
	}

	msg, err := h.store.GetMessage(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "not_found", "Message not found", "")
		return
	}
	if err != nil {
		h.logger.Error("failed to get message", zap.Error(err), zap.String("id", idStr))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get message", "")
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

// ClearMessages handles DELETE /v1/messages?msg_type=xxx
func (h *Handler) ClearMessages(w http.ResponseWriter, r *http.Request) {
	msgType := r.URL.Query().Get("msg_type")
	if msgType == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing msg_type", "msg_type query parameter is required")
		return
	}

	deleted, err := h.store.Clear(r.Context(), msgType)
	if err != nil {
		h.logger.Error("failed to clear messages", zap.Error(err), zap.String("msg_type", msgType))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to clear messages", "")
		return
	}

	h.logger.Info("messages cleared", zap.String("msg_type", msgType), zap.Int64("deleted", deleted))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"msg_type": msgType,
		"deleted":  deleted,
	})
}

// GetTemplate handles GET /v1/templates/{code}
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	tmpl, err := h.templates.GetTemplateByCode(r.Context(), code)
	if errors.Is(err, db.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "template_not_found", "Template not found", "no template with code "+code)
		return
	}
	if err != nil {
		h.logger.Error("failed to get template", zap.Error(err), zap.String("code", code))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get template", "")
		return
	}

	writeJSON(w, http.StatusOK, tmpl)
}

// PutTemplate handles PUT /v1/templates/{code}. The code in the path wins
// over the body.
func (h *Handler) PutTemplate(w http.ResponseWriter, r *http.Request) {
	var tmpl db.MessageTemplate
	if err := json.NewDecoder(r.Body).Decode(&tmpl); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	tmpl.Code = chi.URLParam(r, "code")

	if tmpl.Name == "" || tmpl.Content == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields", "name and content are required")
		return
	}

	if err := h.store.UpsertTemplate(r.Context(), &tmpl); err != nil {
		h.logger.Error("failed to save template", zap.Error(err), zap.String("code", tmpl.Code))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to save template", "")
		return
	}

	if h.cache != nil {
		if err := h.cache.Invalidate(r.Context(), tmpl.Code); err != nil {
			h.logger.Warn("failed to invalidate cached template",
				zap.Error(err),
				zap.String("code", tmpl.Code),
			)
		}
	}

	writeJSON(w, http.StatusOK, tmpl)
}

// writeNotifyError maps dispatch errors onto problem responses.
func (h *Handler) writeNotifyError(w http.ResponseWriter, err error, req notify.Request) {
	var (
		verr *notify.ValidationError
		uerr *notify.UnknownBackendError
		nerr *notify.TemplateNotFoundError
		cerr *notify.ConfigurationError
		rerr *notify.RenderError
		aerr *notify.AttributeError
		terr *notify.TransportError
	)

	switch {
	case errors.As(err, &verr):
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid notification", err.Error())
	case errors.As(err, &uerr):
		h.writeError(w, http.StatusBadRequest, "unknown_backend", "Unknown backend", err.Error())
	case errors.As(err, &nerr):
		h.writeError(w, http.StatusNotFound, "template_not_found", "Template not found", err.Error())
	case errors.As(err, &cerr):
		h.writeError(w, http.StatusUnprocessableEntity, "configuration_error", "Backend misconfigured", err.Error())
	case errors.As(err, &rerr):
		h.writeError(w, http.StatusUnprocessableEntity, "render_error", "Template rendering failed", err.Error())
	case errors.As(err, &aerr):
		h.writeError(w, http.StatusUnprocessableEntity, "recipient_error", "Recipient address missing", err.Error())
	case errors.As(err, &terr):
		h.logger.Warn("notification delivery failed",
			zap.Error(err),
			zap.String("backend", terr.Backend),
			zap.String("recipient_id", terr.RecipientID),
		)
		h.writeError(w, http.StatusBadGateway, "transport_error", "Delivery failed", err.Error())
	default:
		h.logger.Error("failed to send notification",
			zap.Error(err),
			zap.Strings("backends", req.Backends),
		)
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to send notification", "")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// parseBool parses an optional boolean query parameter.
func parseBool(s string) (*bool, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Stream is one consumer's membership in a fan-out group.
type Stream interface {
	Events() <-chan []byte
	Close() error
}

// Subscriber joins fan-out groups.
type Subscriber interface {
	Subscribe(ctx context.Context, group string) (Stream, error)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ctx context.Context, group string) (Stream, error)

func (f SubscriberFunc) Subscribe(ctx context.Context, group string) (Stream, error) {
	return f(ctx, group)
}

// keepAlive is how often an idle stream sends a comment line.
var keepAlive = 25 * time.Second

// streamEvent is what a consumer receives for each message.
type streamEvent struct {
	MsgType string `json:"msgtype"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// RegisterStream mounts GET /stream/{recipientID} on r.
func (h *Handler) RegisterStream(r chi.Router) {
	r.Get("/stream/{recipientID}", h.StreamEvents)
}

// StreamEvents handles GET /v1/stream/{recipientID}. The client joins the
// recipient's group and receives server-sent events until it disconnects.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if h.streams == nil {
		h.writeError(w, http.StatusServiceUnavailable, "stream_unavailable", "Streaming disabled", "real-time fan-out is not configured")
		return
	}

	recipientID := chi.URLParam(r, "recipientID")
	group := h.prefix + recipientID

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, err := h.streams.Subscribe(ctx, group)
	if err != nil {
		h.logger.Error("failed to join group", zap.Error(err), zap.String("group", group))
		h.writeError(w, http.StatusServiceUnavailable, "stream_unavailable", "Failed to join stream", "")
		return
	}
	defer sub.Close()

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Warn("response does not support streaming", zap.Error(err))
		return
	}

	h.logger.Info("stream opened", zap.String("group", group))
	defer h.logger.Info("stream closed", zap.String("group", group))

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case raw, ok := <-sub.Events():
			if !ok {
				return
			}
			var ev streamEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				h.logger.Warn("dropping malformed event", zap.Error(err), zap.String("group", group))
				continue
			}
			data, _ := json.Marshal(ev)
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.MsgType, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

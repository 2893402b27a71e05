package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/backend"
	"github.com/lalithlochan/courier/internal/db"
	"github.com/lalithlochan/courier/internal/notify"
)

// fakeNotifier records requests and returns err.
type fakeNotifier struct {
	last *notify.Request
	err  error
}

func (f *fakeNotifier) Notify(ctx context.Context, req notify.Request) error {
	f.last = &req
	return f.err
}

type fakeCache struct {
	notify.TemplateStore
	invalidated []string
}

func (f *fakeCache) Invalidate(ctx context.Context, code string) error {
	f.invalidated = append(f.invalidated, code)
	return nil
}

// fakeStream is a Stream fed by the test.
type fakeStream struct {
	events chan []byte
	closed chan struct{}
}

func (s *fakeStream) Events() <-chan []byte { return s.events }

func (s *fakeStream) Close() error {
	close(s.closed)
	return nil
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/v1", func(r chi.Router) {
		h.Register(r)
		h.RegisterStream(r)
	})
	return r
}

// newDummyEnv wires the handler to a real dispatcher with every built-in
// backend over an in-memory store.
func newDummyEnv(t *testing.T) (*db.MemoryStore, http.Handler) {
	t.Helper()
	store := db.NewMemoryStore()
	reg := notify.NewRegistry()
	if err := backend.RegisterAll(reg, backend.Deps{Store: store, Logger: zap.NewNop()}); err != nil {
		t.Fatalf("register backends: %v", err)
	}
	d := notify.NewDispatcher(reg, store, zap.NewNop())
	return store, newRouter(NewHandler(zap.NewNop(), store, store, d))
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	if ct := rr.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("content type = %q", ct)
	}
	var e ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&e); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return e
}

func TestNotify_SendsAndSaves(t *testing.T) {
	store, h := newDummyEnv(t)

	rr := do(t, h, http.MethodPost, "/v1/notify", map[string]any{
		"recipients": []map[string]any{{"id": "1"}, {"id": "2"}},
		"title":      "Hello",
		"message":    "World",
		"backends":   []string{"dummy"},
		"mark":       map[string]any{"project": "apollo"},
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if msgs, rows := store.Counts(); msgs != 1 || rows != 2 {
		t.Errorf("counts = %d messages, %d rows; want 1, 2", msgs, rows)
	}
}

func TestNotify_SaveFalse(t *testing.T) {
	store, h := newDummyEnv(t)

	rr := do(t, h, http.MethodPost, "/v1/notify", map[string]any{
		"recipients": []map[string]any{{"id": "1"}},
		"message":    "x",
		"backends":   []string{"dummy"},
		"save":       false,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if msgs, rows := store.Counts(); msgs != 0 || rows != 0 {
		t.Errorf("counts = %d, %d; want empty store", msgs, rows)
	}
}

func TestNotify_MapsRequest(t *testing.T) {
	fake := &fakeNotifier{}
	h := newRouter(NewHandler(zap.NewNop(), db.NewMemoryStore(), nil, fake))

	rr := do(t, h, http.MethodPost, "/v1/notify", map[string]any{
		"recipients":      []map[string]any{{"id": "7", "attrs": map[string]string{"email": "a@example.com"}}},
		"template_code":   "W001",
		"context":         map[string]any{"name": "Ann"},
		"backends":        []string{"email"},
		"recipient_field": "email",
		"backend_kwargs":  map[string]any{"fail_silently": true},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	req := fake.last
	if req == nil {
		t.Fatal("notifier not called")
	}
	if !req.Save {
		t.Error("save should default to true")
	}
	if req.RecipientField != notify.FieldName("email") {
		t.Errorf("recipient field = %v", req.RecipientField)
	}
	if req.TemplateCode != "W001" || req.Context["name"] != "Ann" {
		t.Errorf("template = %q %v", req.TemplateCode, req.Context)
	}
	if req.Recipients[0].Attrs["email"] != "a@example.com" {
		t.Errorf("recipients = %v", req.Recipients)
	}
	if req.Message != nil {
		t.Error("absent message should stay nil")
	}
}

func TestNotify_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		errType string
	}{
		{"validation", &notify.ValidationError{Reason: "no backends"}, http.StatusBadRequest, "invalid_request"},
		{"unknown backend", &notify.UnknownBackendError{Ref: "fax"}, http.StatusBadRequest, "unknown_backend"},
		{"template not found", &notify.TemplateNotFoundError{Code: "X"}, http.StatusNotFound, "template_not_found"},
		{"configuration", &notify.ConfigurationError{Backend: "sms", Key: "sign_name"}, http.StatusUnprocessableEntity, "configuration_error"},
		{"render", &notify.RenderError{Err: errors.New("missing key")}, http.StatusUnprocessableEntity, "render_error"},
		{"attribute", &notify.AttributeError{RecipientID: "1", Name: "email"}, http.StatusUnprocessableEntity, "recipient_error"},
		{"transport", &notify.TransportError{Backend: "email", RecipientID: "1", Err: errors.New("refused")}, http.StatusBadGateway, "transport_error"},
		{"other", errors.New("database down"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newRouter(NewHandler(zap.NewNop(), db.NewMemoryStore(), nil, &fakeNotifier{err: tt.err}))

			rr := do(t, h, http.MethodPost, "/v1/notify", map[string]any{"message": "x", "backends": []string{"dummy"}})

			if rr.Code != tt.status {
				t.Errorf("status = %d, want %d", rr.Code, tt.status)
			}
			if e := decodeError(t, rr); e.Type != tt.errType || e.Status != tt.status {
				t.Errorf("error = %+v", e)
			}
		})
	}
}

func TestNotify_RealDispatcherErrors(t *testing.T) {
	_, h := newDummyEnv(t)

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"malformed json", `{"message":`, http.StatusBadRequest},
		{"no backends", map[string]any{"message": "x"}, http.StatusBadRequest},
		{"unknown backend", map[string]any{"message": "x", "backends": []string{"fax"}}, http.StatusBadRequest},
		{"missing template", map[string]any{"template_code": "nope", "context": map[string]any{"a": 1}, "backends": []string{"dummy"}}, http.StatusNotFound},
		{"unconfigured backend", map[string]any{"message": "x", "backends": []string{"email"}}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/v1/notify", tt.body)
			if rr.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", rr.Code, tt.status, rr.Body.String())
			}
		})
	}
}

func seed(t *testing.T, store *db.MemoryStore) *db.Message {
	t.Helper()
	ctx := context.Background()
	msg := &db.Message{Title: "t", Content: "c", MsgType: "dummy"}
	if err := store.CreateMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}
	for _, n := range []*db.Notification{
		{RecipientID: "1", MessageID: msg.ID, IsSent: true},
		{RecipientID: "1", MessageID: msg.ID, IsSent: false},
		{RecipientID: "2", MessageID: msg.ID, IsSent: true, HasRead: true},
	} {
		if err := store.CreateNotification(ctx, n); err != nil {
			t.Fatal(err)
		}
	}
	return msg
}

func TestListNotifications(t *testing.T) {
	store := db.NewMemoryStore()
	seed(t, store)
	h := newRouter(NewHandler(zap.NewNop(), store, store, &fakeNotifier{}))

	tests := []struct {
		query string
		count int
	}{
		{"", 3},
		{"?recipient_id=1", 2},
		{"?recipient_id=1&is_sent=true", 1},
		{"?has_read=true", 1},
		{"?msg_type=email", 0},
		{"?limit=2", 2},
		{"?limit=2&offset=2", 1},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rr := do(t, h, http.MethodGet, "/v1/notifications"+tt.query, nil)
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d", rr.Code)
			}
			var resp struct {
				Count int `json:"count"`
			}
			json.NewDecoder(rr.Body).Decode(&resp)
			if resp.Count != tt.count {
				t.Errorf("count = %d, want %d", resp.Count, tt.count)
			}
		})
	}

	rr := do(t, h, http.MethodGet, "/v1/notifications?has_read=maybe", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("invalid bool: status = %d", rr.Code)
	}
}

func TestUpdateFlags(t *testing.T) {
	store := db.NewMemoryStore()
	seed(t, store)
	h := newRouter(NewHandler(zap.NewNop(), store, store, &fakeNotifier{}))

	rr := do(t, h, http.MethodPatch, "/v1/notifications/flags", map[string]any{
		"recipient_id": "1",
		"set":          map[string]any{"has_read": true},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Updated int64 `json:"updated"`
	}
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Updated != 2 {
		t.Errorf("updated = %d, want 2", resp.Updated)
	}

	read, _ := store.ListNotifications(context.Background(), db.NotificationFilter{}.Read(), 10, 0)
	if len(read) != 3 {
		t.Errorf("read rows = %d, want 3", len(read))
	}

	for name, body := range map[string]any{
		"empty set": map[string]any{"recipient_id": "1", "set": map[string]any{}},
		"no filter": map[string]any{"set": map[string]any{"has_read": true}},
		"malformed": `{"set":`,
	} {
		t.Run(name, func(t *testing.T) {
			rr := do(t, h, http.MethodPatch, "/v1/notifications/flags", body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d", rr.Code)
			}
		})
	}
}

func TestMessages(t *testing.T) {
	store := db.NewMemoryStore()
	msg := seed(t, store)
	h := newRouter(NewHandler(zap.NewNop(), store, store, &fakeNotifier{}))

	rr := do(t, h, http.MethodGet, "/v1/messages/"+msg.ID.String(), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get: status = %d", rr.Code)
	}
	var got db.Message
	json.NewDecoder(rr.Body).Decode(&got)
	if got.ID != msg.ID || got.MsgType != "dummy" {
		t.Errorf("message = %+v", got)
	}

	if rr := do(t, h, http.MethodGet, "/v1/messages/"+uuid.NewString(), nil); rr.Code != http.StatusNotFound {
		t.Errorf("unknown id: status = %d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, "/v1/messages/not-a-uuid", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d", rr.Code)
	}
	if rr := do(t, h, http.MethodDelete, "/v1/messages", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("clear without msg_type: status = %d", rr.Code)
	}

	rr = do(t, h, http.MethodDelete, "/v1/messages?msg_type=dummy", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("clear: status = %d", rr.Code)
	}
	if msgs, rows := store.Counts(); msgs != 0 || rows != 0 {
		t.Errorf("counts after clear = %d, %d", msgs, rows)
	}
}

func TestTemplates(t *testing.T) {
	store := db.NewMemoryStore()
	cache := &fakeCache{TemplateStore: store}
	h := newRouter(NewHandler(zap.NewNop(), store, store, &fakeNotifier{}).WithTemplateCache(cache))

	if rr := do(t, h, http.MethodGet, "/v1/templates/W001", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("missing template: status = %d", rr.Code)
	}

	rr := do(t, h, http.MethodPut, "/v1/templates/W001", map[string]any{
		"code":           "ignored",
		"name":           "Welcome",
		"title":          "Welcome aboard",
		"content":        "Hi {{.name}}",
		"message_kwargs": map[string]any{"msgtype": "text"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("put: status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != "W001" {
		t.Errorf("invalidated = %v", cache.invalidated)
	}

	rr = do(t, h, http.MethodGet, "/v1/templates/W001", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get: status = %d", rr.Code)
	}
	var tmpl db.MessageTemplate
	json.NewDecoder(rr.Body).Decode(&tmpl)
	if tmpl.Code != "W001" || tmpl.Content != "Hi {{.name}}" || tmpl.MessageKwargs["msgtype"] != "text" {
		t.Errorf("template = %+v", tmpl)
	}

	if rr := do(t, h, http.MethodPut, "/v1/templates/W002", map[string]any{"name": "x"}); rr.Code != http.StatusBadRequest {
		t.Errorf("missing content: status = %d", rr.Code)
	}
}

func TestTemplateThenNotify(t *testing.T) {
	store, h := newDummyEnv(t)

	do(t, h, http.MethodPut, "/v1/templates/W001", map[string]any{"name": "Welcome", "title": "Hi", "content": "Hello {{.name}}"})

	rr := do(t, h, http.MethodPost, "/v1/notify", map[string]any{
		"recipients":    []map[string]any{{"id": "1"}},
		"template_code": "W001",
		"context":       map[string]any{"name": "Ann"},
		"backends":      []string{"dummy"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	rows, _ := store.ListNotifications(context.Background(), db.NotificationFilter{RecipientID: "1"}, 10, 0)
	if len(rows) != 1 {
		t.Fatalf("rows = %d", len(rows))
	}
	msg, _ := store.GetMessage(context.Background(), rows[0].MessageID)
	if msg.Title != "Hi" || msg.Content != "Hello Ann" {
		t.Errorf("message = %+v", msg)
	}
}

func TestStream_Disabled(t *testing.T) {
	h := newRouter(NewHandler(zap.NewNop(), db.NewMemoryStore(), nil, &fakeNotifier{}))
	if rr := do(t, h, http.MethodGet, "/v1/stream/1", nil); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestStream_ForwardsEvents(t *testing.T) {
	stream := &fakeStream{events: make(chan []byte, 1), closed: make(chan struct{})}
	joined := make(chan string, 1)
	sub := SubscriberFunc(func(ctx context.Context, group string) (Stream, error) {
		joined <- group
		return stream, nil
	})

	h := NewHandler(zap.NewNop(), db.NewMemoryStore(), nil, &fakeNotifier{}).WithStreams(sub, "notify-")
	srv := httptest.NewServer(newRouter(h))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/stream/42", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	if group := <-joined; group != "notify-42" {
		t.Errorf("joined group = %q", group)
	}

	stream.events <- []byte(`{"type":"notify.message","msgtype":"notify","title":"Build","message":"done"}`)

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 2 {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if lines[0] != "event: notify" {
		t.Errorf("event line = %q", lines[0])
	}
	if lines[1] != `data: {"msgtype":"notify","title":"Build","message":"done"}` {
		t.Errorf("data line = %q", lines[1])
	}

	cancel()
	select {
	case <-stream.closed:
	case <-time.After(2 * time.Second):
		t.Error("subscription not closed after disconnect")
	}
}

package db

import (
	"context"
	"errors"
	"testing"
)

func seedStore(t *testing.T) (*MemoryStore, *Message) {
	t.Helper()
	ctx := context.Background()
	store := NewMemoryStore()

	msg := &Message{Title: "hello", Content: "body", MsgType: "email", Mark: map[string]any{"order": "42"}}
	if err := store.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("create message: %v", err)
	}
	for _, rcpt := range []string{"u1", "u2", "u3"} {
		n := &Notification{RecipientID: rcpt, MessageID: msg.ID, IsSent: rcpt != "u3"}
		if err := store.CreateNotification(ctx, n); err != nil {
			t.Fatalf("create notification: %v", err)
		}
	}
	return store, msg
}

func TestMemoryStore_CreateMessageAssignsID(t *testing.T) {
	store, msg := seedStore(t)
	if !msg.Persisted() {
		t.Fatal("expected message to be persisted")
	}
	got, err := store.GetMessage(context.Background(), msg.ID)
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if got.Title != "hello" {
		t.Errorf("title = %q, want hello", got.Title)
	}
}

func TestMemoryStore_NotificationRequiresMessage(t *testing.T) {
	store := NewMemoryStore()
	err := store.CreateNotification(context.Background(), &Notification{RecipientID: "u1"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_ListFilters(t *testing.T) {
	store, msg := seedStore(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter NotificationFilter
		want   int
	}{
		{"all", NotificationFilter{}, 3},
		{"sent", NotificationFilter{}.Sent(), 2},
		{"unsent", NotificationFilter{}.Unsent(), 1},
		{"recipient", NotificationFilter{RecipientID: "u2"}, 1},
		{"msg_type", NotificationFilter{MsgType: "email"}, 3},
		{"other_msg_type", NotificationFilter{MsgType: "sms"}, 0},
		{"mark", NotificationFilter{Mark: map[string]any{"order": "42"}}, 3},
		{"mark_mismatch", NotificationFilter{Mark: map[string]any{"order": "7"}}, 0},
		{"message", NotificationFilter{MessageID: msg.ID}.Unread(), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListNotifications(ctx, tt.filter, 100, 0)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d notifications, want %d", len(got), tt.want)
			}
		})
	}
}

func TestMemoryStore_UpdateFlags(t *testing.T) {
	store, _ := seedStore(t)
	ctx := context.Background()

	changed, err := store.UpdateFlags(ctx, NotificationFilter{RecipientID: "u1"}, MarkRead())
	if err != nil {
		t.Fatalf("update flags: %v", err)
	}
	if changed != 1 {
		t.Fatalf("changed = %d, want 1", changed)
	}

	read, _ := store.ListNotifications(ctx, NotificationFilter{}.Read(), 10, 0)
	if len(read) != 1 || read[0].RecipientID != "u1" {
		t.Errorf("unexpected read notifications: %+v", read)
	}

	if changed, _ := store.UpdateFlags(ctx, NotificationFilter{}, FlagUpdate{}); changed != 0 {
		t.Errorf("empty update changed %d rows", changed)
	}
}

func TestMemoryStore_Clear(t *testing.T) {
	store, _ := seedStore(t)
	removed, err := store.Clear(context.Background(), "email")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if m, n := store.Counts(); m != 0 || n != 0 {
		t.Errorf("counts after clear = (%d, %d), want (0, 0)", m, n)
	}
}

func TestMemoryStore_Templates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.GetTemplateByCode(ctx, "W001"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	tmpl := &MessageTemplate{Code: "W001", Name: "welcome", Content: "hi {{.name}}"}
	if err := store.UpsertTemplate(ctx, tmpl); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, err := store.GetTemplateByCode(ctx, "W001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Content != "hi {{.name}}" {
		t.Errorf("content = %q", got.Content)
	}
}

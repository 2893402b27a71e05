package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/db"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	client := &Client{rdb: rdb, logger: zap.NewNop()}

	return client, mr, func() {
		rdb.Close()
		mr.Close()
	}
}

type countingSource struct {
	store *db.MemoryStore
	calls int
}

func (s *countingSource) GetTemplateByCode(ctx context.Context, code string) (*db.MessageTemplate, error) {
	s.calls++
	return s.store.GetTemplateByCode(ctx, code)
}

func TestClient_Ping(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestTemplateCache_ReadThrough(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	store := db.NewMemoryStore()
	_ = store.UpsertTemplate(ctx, &db.MessageTemplate{Code: "W001", Title: "Welcome", Content: "hi {{.name}}"})
	source := &countingSource{store: store}
	cache := NewTemplateCache(client, source, time.Minute, zap.NewNop())

	for i := 0; i < 3; i++ {
		tmpl, err := cache.GetTemplateByCode(ctx, "W001")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if tmpl.Title != "Welcome" {
			t.Errorf("title = %q", tmpl.Title)
		}
	}
	if source.calls != 1 {
		t.Errorf("source calls = %d, want 1", source.calls)
	}
	if ttl := mr.TTL("template:W001"); ttl != time.Minute {
		t.Errorf("ttl = %v, want 1m", ttl)
	}

	if err := cache.Invalidate(ctx, "W001"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := cache.GetTemplateByCode(ctx, "W001"); err != nil {
		t.Fatalf("get after invalidate: %v", err)
	}
	if source.calls != 2 {
		t.Errorf("source calls after invalidate = %d, want 2", source.calls)
	}
}

func TestTemplateCache_NotFoundIsNotCached(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	cache := NewTemplateCache(client, &countingSource{store: db.NewMemoryStore()}, 0, zap.NewNop())

	_, err := cache.GetTemplateByCode(context.Background(), "missing")
	if !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if mr.Exists("template:missing") {
		t.Error("missing template should not be cached")
	}
}

func TestTemplateCache_FallsBackWhenRedisIsDown(t *testing.T) {
	client, mr, cleanup := setupTestRedis(t)
	defer cleanup()
	ctx := context.Background()

	store := db.NewMemoryStore()
	_ = store.UpsertTemplate(ctx, &db.MessageTemplate{Code: "W001", Content: "x"})
	cache := NewTemplateCache(client, &countingSource{store: store}, time.Minute, zap.NewNop())

	mr.Close()

	if _, err := cache.GetTemplateByCode(ctx, "W001"); err != nil {
		t.Fatalf("expected fallback to source, got %v", err)
	}
}

func TestFanout_PublishSubscribe(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	fanout := NewFanout(client, zap.NewNop())
	sub, err := fanout.Subscribe(ctx, "notify-42")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	if err := fanout.Publish(ctx, "notify-42", map[string]any{"msgtype": "notify", "title": "hi"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case raw := <-sub.Events():
		var event map[string]any
		if err := json.Unmarshal(raw, &event); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if event["title"] != "hi" {
			t.Errorf("event = %v", event)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

func TestFanout_PublishWithoutSubscribers(t *testing.T) {
	client, _, cleanup := setupTestRedis(t)
	defer cleanup()

	fanout := NewFanout(client, zap.NewNop())
	if err := fanout.Publish(context.Background(), "notify-1", map[string]any{"x": 1}); err != nil {
		t.Errorf("publish to empty group should succeed: %v", err)
	}
}

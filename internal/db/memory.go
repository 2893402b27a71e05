package db

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process store with the same surface as Repository.
// It backs local development without Postgres and the package tests.
type MemoryStore struct {
	mu            sync.RWMutex
	messages      map[uuid.UUID]*Message
	notifications []*Notification
	templates     map[string]*MessageTemplate
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages:  make(map[uuid.UUID]*Message),
		templates: make(map[string]*MessageTemplate),
	}
}

func (s *MemoryStore) CreateMessage(ctx context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ID = uuid.New()
	msg.CreatedAt = time.Now()
	cp := *msg
	s.messages[msg.ID] = &cp
	return nil
}

func (s *MemoryStore) GetMessage(ctx context.Context, id uuid.UUID) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	cp := *msg
	return &cp, nil
}

func (s *MemoryStore) CreateNotification(ctx context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[n.MessageID]; !ok {
		return fmt.Errorf("insert notification: message %s: %w", n.MessageID, ErrNotFound)
	}
	n.ID = uuid.New()
	n.CreatedAt = time.Now()
	n.UpdatedAt = n.CreatedAt
	cp := *n
	s.notifications = append(s.notifications, &cp)
	return nil
}

func (s *MemoryStore) ListNotifications(ctx context.Context, filter NotificationFilter, limit, offset int) ([]*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Notification
	for _, n := range s.notifications {
		if s.matches(n, filter) {
			cp := *n
			matched = append(matched, &cp)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *MemoryStore) UpdateFlags(ctx context.Context, filter NotificationFilter, flags FlagUpdate) (int64, error) {
	if flags.Empty() {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var changed int64
	for _, n := range s.notifications {
		if !s.matches(n, filter) {
			continue
		}
		if flags.HasRead != nil {
			n.HasRead = *flags.HasRead
		}
		if flags.IsIgnored != nil {
			n.IsIgnored = *flags.IsIgnored
		}
		if flags.IsSent != nil {
			n.IsSent = *flags.IsSent
		}
		n.UpdatedAt = time.Now()
		changed++
	}
	return changed, nil
}

func (s *MemoryStore) Clear(ctx context.Context, msgType string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.notifications[:0]
	for _, n := range s.notifications {
		if msg, ok := s.messages[n.MessageID]; ok && msg.MsgType == msgType {
			continue
		}
		kept = append(kept, n)
	}
	s.notifications = kept

	var removed int64
	for id, msg := range s.messages {
		if msg.MsgType == msgType {
			delete(s.messages, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) GetTemplateByCode(ctx context.Context, code string) (*MessageTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[code]
	if !ok {
		return nil, fmt.Errorf("template %s: %w", code, ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) UpsertTemplate(ctx context.Context, t *MessageTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing, ok := s.templates[t.Code]; ok {
		t.CreatedAt = existing.CreatedAt
	} else {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	cp := *t
	s.templates[t.Code] = &cp
	return nil
}

// Counts returns the number of stored messages and notifications.
func (s *MemoryStore) Counts() (messages, notifications int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages), len(s.notifications)
}

// matches must be called with the lock held.
func (s *MemoryStore) matches(n *Notification, f NotificationFilter) bool {
	if len(f.IDs) > 0 {
		found := false
		for _, id := range f.IDs {
			if id == n.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.RecipientID != "" && n.RecipientID != f.RecipientID {
		return false
	}
	if f.MessageID != uuid.Nil && n.MessageID != f.MessageID {
		return false
	}
	if f.HasRead != nil && n.HasRead != *f.HasRead {
		return false
	}
	if f.IsIgnored != nil && n.IsIgnored != *f.IsIgnored {
		return false
	}
	if f.IsSent != nil && n.IsSent != *f.IsSent {
		return false
	}
	if f.MsgType != "" || len(f.Mark) > 0 {
		msg, ok := s.messages[n.MessageID]
		if !ok {
			return false
		}
		if f.MsgType != "" && msg.MsgType != f.MsgType {
			return false
		}
		for k, v := range f.Mark {
			if !reflect.DeepEqual(msg.Mark[k], v) {
				return false
			}
		}
	}
	return true
}

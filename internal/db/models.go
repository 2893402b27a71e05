package db

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a row looked up by key does not exist.
var ErrNotFound = errors.New("not found")

// Message is one rendered notification payload produced by a backend.
type Message struct {
	ID        uuid.UUID      `json:"id"`
	Title     string         `json:"title,omitempty"`
	Content   any            `json:"content"`
	MsgType   string         `json:"msg_type"`
	Mark      map[string]any `json:"mark,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Persisted reports whether the message has been inserted.
func (m *Message) Persisted() bool {
	return m.ID != uuid.Nil
}

// Notification is the outcome record of one (message, recipient) pair.
type Notification struct {
	ID           uuid.UUID      `json:"id"`
	RecipientID  string         `json:"recipient_id"`
	MessageID    uuid.UUID      `json:"message_id"`
	HasRead      bool           `json:"has_read"`
	IsIgnored    bool           `json:"is_ignored"`
	IsSent       bool           `json:"is_sent"`
	NotifyKwargs map[string]any `json:"notify_kwargs"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// MessageTemplate is a stored, reusable content definition.
type MessageTemplate struct {
	Code          string         `json:"code"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	Title         string         `json:"title,omitempty"`
	Content       string         `json:"content"`
	BackendKwargs map[string]any `json:"backend_kwargs,omitempty"`
	MessageKwargs map[string]any `json:"message_kwargs,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// NotificationFilter narrows notification queries and bulk updates.
// Zero-valued fields do not filter.
type NotificationFilter struct {
	IDs         []uuid.UUID
	RecipientID string
	MessageID   uuid.UUID
	MsgType     string
	Mark        map[string]any
	HasRead     *bool
	IsIgnored   *bool
	IsSent      *bool
}

// Read returns a filter matching read notifications.
func (f NotificationFilter) Read() NotificationFilter { return f.withHasRead(true) }

// Unread returns a filter matching unread notifications.
func (f NotificationFilter) Unread() NotificationFilter { return f.withHasRead(false) }

// Ignored returns a filter matching ignored notifications.
func (f NotificationFilter) Ignored() NotificationFilter {
	v := true
	f.IsIgnored = &v
	return f
}

// Sent returns a filter matching notifications whose send succeeded.
func (f NotificationFilter) Sent() NotificationFilter { return f.withIsSent(true) }

// Unsent returns a filter matching notifications whose send failed.
func (f NotificationFilter) Unsent() NotificationFilter { return f.withIsSent(false) }

func (f NotificationFilter) withHasRead(v bool) NotificationFilter {
	f.HasRead = &v
	return f
}

func (f NotificationFilter) withIsSent(v bool) NotificationFilter {
	f.IsSent = &v
	return f
}

// FlagUpdate lists the flags to set; nil fields are left untouched.
type FlagUpdate struct {
	HasRead   *bool `json:"has_read,omitempty"`
	IsIgnored *bool `json:"is_ignored,omitempty"`
	IsSent    *bool `json:"is_sent,omitempty"`
}

// Empty reports whether the update would change nothing.
func (u FlagUpdate) Empty() bool {
	return u.HasRead == nil && u.IsIgnored == nil && u.IsSent == nil
}

// Flag helpers mirroring the notification state transitions.
func MarkRead() FlagUpdate    { v := true; return FlagUpdate{HasRead: &v} }
func MarkUnread() FlagUpdate  { v := false; return FlagUpdate{HasRead: &v} }
func MarkIgnored() FlagUpdate { v := true; return FlagUpdate{IsIgnored: &v} }
func MarkSent() FlagUpdate    { v := true; return FlagUpdate{IsSent: &v} }

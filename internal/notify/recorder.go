package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lalithlochan/courier/internal/db"
)

var errNoStore = errors.New("no store configured for saving notifications")

// recorder writes delivery outcomes. The message row is inserted lazily on
// the first record and reused for every later recipient.
type recorder struct {
	store Store
	mu    sync.Mutex
}

func (rec *recorder) record(ctx context.Context, msg *db.Message, r *Recipient, sent bool, details Kwargs) error {
	if rec.store == nil {
		return errNoStore
	}
	if err := rec.persistMessage(ctx, msg); err != nil {
		return err
	}

	n := &db.Notification{
		RecipientID:  r.ID,
		MessageID:    msg.ID,
		IsSent:       sent,
		NotifyKwargs: details,
	}
	if err := rec.store.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("record notification for %s: %w", r.ID, err)
	}
	return nil
}

func (rec *recorder) persistMessage(ctx context.Context, msg *db.Message) error {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if msg.Persisted() {
		return nil
	}
	if err := rec.store.CreateMessage(ctx, msg); err != nil {
		return fmt.Errorf("persist message: %w", err)
	}
	return nil
}

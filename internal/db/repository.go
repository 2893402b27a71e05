package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Repository handles database operations for messages, notifications and
// message templates.
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new repository.
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// CreateMessage inserts msg and fills in its ID and CreatedAt.
func (r *Repository) CreateMessage(ctx context.Context, msg *Message) error {
	content, err := json.Marshal(msg.Content)
	if err != nil {
		return fmt.Errorf("marshal message content: %w", err)
	}
	mark, err := marshalNullable(msg.Mark)
	if err != nil {
		return fmt.Errorf("marshal message mark: %w", err)
	}

	id := uuid.New()
	query := `
		INSERT INTO message (id, title, content, msg_type, mark)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5)
		RETURNING created_at
	`
	if err := r.db.Pool().QueryRow(ctx, query, id, msg.Title, content, msg.MsgType, mark).Scan(&msg.CreatedAt); err != nil {
		r.logger.Error("failed to create message",
			zap.Error(err),
			zap.String("msg_type", msg.MsgType),
		)
		return fmt.Errorf("insert message: %w", err)
	}
	msg.ID = id

	r.logger.Debug("message created",
		zap.String("message_id", id.String()),
		zap.String("msg_type", msg.MsgType),
	)
	return nil
}

// GetMessage retrieves a message by ID.
func (r *Repository) GetMessage(ctx context.Context, id uuid.UUID) (*Message, error) {
	query := `
		SELECT id, COALESCE(title, ''), content, msg_type, mark, created_at
		FROM message
		WHERE id = $1
	`

	var (
		msg           Message
		content, mark []byte
	)
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&msg.ID, &msg.Title, &content, &msg.MsgType, &mark, &msg.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query message: %w", err)
	}

	if len(content) > 0 {
		if err := json.Unmarshal(content, &msg.Content); err != nil {
			return nil, fmt.Errorf("decode message content: %w", err)
		}
	}
	if len(mark) > 0 {
		if err := json.Unmarshal(mark, &msg.Mark); err != nil {
			return nil, fmt.Errorf("decode message mark: %w", err)
		}
	}
	return &msg, nil
}

// CreateNotification inserts an outcome record and fills in its ID and
// timestamps.
func (r *Repository) CreateNotification(ctx context.Context, n *Notification) error {
	kwargs := n.NotifyKwargs
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	kwargsJSON, err := json.Marshal(kwargs)
	if err != nil {
		return fmt.Errorf("marshal notify kwargs: %w", err)
	}

	id := uuid.New()
	query := `
		INSERT INTO notification (
			id, recipient_id, message_id, has_read, is_ignored, is_sent, notify_kwargs
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err = r.db.Pool().QueryRow(ctx, query,
		id,
		n.RecipientID,
		n.MessageID,
		n.HasRead,
		n.IsIgnored,
		n.IsSent,
		kwargsJSON,
	).Scan(&n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		r.logger.Error("failed to create notification",
			zap.Error(err),
			zap.String("message_id", n.MessageID.String()),
			zap.String("recipient_id", n.RecipientID),
		)
		return fmt.Errorf("insert notification: %w", err)
	}
	n.ID = id
	return nil
}

// ListNotifications returns notifications matching filter, newest first.
func (r *Repository) ListNotifications(ctx context.Context, filter NotificationFilter, limit, offset int) ([]*Notification, error) {
	where, args := buildWhere(filter, 1)
	query := `
		SELECT
			n.id, n.recipient_id, n.message_id, n.has_read, n.is_ignored,
			n.is_sent, n.notify_kwargs, n.created_at, n.updated_at
		FROM notification AS n
		JOIN message AS m ON m.id = n.message_id
		WHERE ` + where + fmt.Sprintf(`
		ORDER BY n.created_at DESC
		LIMIT $%d OFFSET $%d
	`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		var (
			n      Notification
			kwargs []byte
		)
		err := rows.Scan(
			&n.ID,
			&n.RecipientID,
			&n.MessageID,
			&n.HasRead,
			&n.IsIgnored,
			&n.IsSent,
			&kwargs,
			&n.CreatedAt,
			&n.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if len(kwargs) > 0 {
			if err := json.Unmarshal(kwargs, &n.NotifyKwargs); err != nil {
				return nil, fmt.Errorf("decode notify kwargs: %w", err)
			}
		}
		notifications = append(notifications, &n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return notifications, nil
}

// UpdateFlags bulk-sets read/ignored/sent flags on matching notifications
// and returns the number of rows changed.
func (r *Repository) UpdateFlags(ctx context.Context, filter NotificationFilter, flags FlagUpdate) (int64, error) {
	if flags.Empty() {
		return 0, nil
	}

	where, args := buildWhere(filter, 4)
	query := `
		UPDATE notification AS n
		SET has_read = COALESCE($1, n.has_read),
			is_ignored = COALESCE($2, n.is_ignored),
			is_sent = COALESCE($3, n.is_sent),
			updated_at = NOW()
		FROM message AS m
		WHERE m.id = n.message_id AND ` + where
	args = append([]any{flags.HasRead, flags.IsIgnored, flags.IsSent}, args...)

	result, err := r.db.Pool().Exec(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to update notification flags", zap.Error(err))
		return 0, fmt.Errorf("update notification flags: %w", err)
	}
	return result.RowsAffected(), nil
}

// Clear deletes every notification and message produced by one backend.
func (r *Repository) Clear(ctx context.Context, msgType string) (int64, error) {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		DELETE FROM notification
		WHERE message_id IN (SELECT id FROM message WHERE msg_type = $1)
	`, msgType)
	if err != nil {
		return 0, fmt.Errorf("delete notifications: %w", err)
	}

	result, err := tx.Exec(ctx, `DELETE FROM message WHERE msg_type = $1`, msgType)
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	r.logger.Info("messages cleared",
		zap.String("msg_type", msgType),
		zap.Int64("messages", result.RowsAffected()),
	)
	return result.RowsAffected(), nil
}

// GetTemplateByCode retrieves a message template by its unique code.
func (r *Repository) GetTemplateByCode(ctx context.Context, code string) (*MessageTemplate, error) {
	query := `
		SELECT
			code, name, COALESCE(description, ''), COALESCE(title, ''), content,
			backend_kwargs, message_kwargs, created_at, updated_at
		FROM message_template
		WHERE code = $1
	`

	var (
		t                    MessageTemplate
		backendKw, messageKw []byte
	)
	err := r.db.Pool().QueryRow(ctx, query, code).Scan(
		&t.Code,
		&t.Name,
		&t.Description,
		&t.Title,
		&t.Content,
		&backendKw,
		&messageKw,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("template %s: %w", code, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query template: %w", err)
	}

	if len(backendKw) > 0 {
		if err := json.Unmarshal(backendKw, &t.BackendKwargs); err != nil {
			return nil, fmt.Errorf("decode backend kwargs: %w", err)
		}
	}
	if len(messageKw) > 0 {
		if err := json.Unmarshal(messageKw, &t.MessageKwargs); err != nil {
			return nil, fmt.Errorf("decode message kwargs: %w", err)
		}
	}
	return &t, nil
}

// UpsertTemplate creates or replaces the template with t.Code.
func (r *Repository) UpsertTemplate(ctx context.Context, t *MessageTemplate) error {
	backendKw, err := json.Marshal(nonNilMap(t.BackendKwargs))
	if err != nil {
		return fmt.Errorf("marshal backend kwargs: %w", err)
	}
	messageKw, err := json.Marshal(nonNilMap(t.MessageKwargs))
	if err != nil {
		return fmt.Errorf("marshal message kwargs: %w", err)
	}

	query := `
		INSERT INTO message_template (
			code, name, description, title, content, backend_kwargs, message_kwargs
		) VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			backend_kwargs = EXCLUDED.backend_kwargs,
			message_kwargs = EXCLUDED.message_kwargs,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`
	err = r.db.Pool().QueryRow(ctx, query,
		t.Code, t.Name, t.Description, t.Title, t.Content, backendKw, messageKw,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert template: %w", err)
	}

	r.logger.Info("template saved", zap.String("code", t.Code))
	return nil
}

// buildWhere renders filter as a SQL condition over aliases n and m,
// numbering placeholders from start.
func buildWhere(f NotificationFilter, start int) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, start+len(args)-1))
	}

	if len(f.IDs) > 0 {
		add("n.id = ANY($%d)", f.IDs)
	}
	if f.RecipientID != "" {
		add("n.recipient_id = $%d", f.RecipientID)
	}
	if f.MessageID != uuid.Nil {
		add("n.message_id = $%d", f.MessageID)
	}
	if f.MsgType != "" {
		add("m.msg_type = $%d", f.MsgType)
	}
	if len(f.Mark) > 0 {
		mark, _ := json.Marshal(f.Mark)
		add("m.mark @> $%d::jsonb", mark)
	}
	if f.HasRead != nil {
		add("n.has_read = $%d", *f.HasRead)
	}
	if f.IsIgnored != nil {
		add("n.is_ignored = $%d", *f.IsIgnored)
	}
	if f.IsSent != nil {
		add("n.is_sent = $%d", *f.IsSent)
	}

	if len(conds) == 0 {
		return "TRUE", nil
	}
	return strings.Join(conds, " AND "), args
}

func marshalNullable(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

const messageColumns = `id, conversation_id, sender_id, content, message_type, attachments, reply_to_id, is_deleted, is_edited, created_at, updated_at`

const messageViewColumns = `m.id, m.conversation_id, m.sender_id, m.content, m.message_type, m.attachments, m.reply_to_id, m.is_deleted, m.is_edited, m.created_at, m.updated_at,
COALESCE(p.full_name, CASE WHEN m.sender_id = 'ai-assistant' THEN 'AI Assistant' ELSE '' END) AS sender_name,
p.avatar_url AS sender_avatar,
LEFT(rm.content, 120) AS reply_preview`

// MessageRepository persists messages and read receipts.
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository constructs the repository.
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// ListByConversation returns a page of non-deleted messages in ascending time order.
// The page is taken from the newest end: offset 0 is the latest limit messages.
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID string, page models.PageRequest) ([]models.MessageView, error) {
	query := `SELECT * FROM (
SELECT ` + messageViewColumns + `
FROM messages m
LEFT JOIN profiles p ON p.id = m.sender_id
LEFT JOIN messages rm ON rm.id = m.reply_to_id AND rm.is_deleted = FALSE
WHERE m.conversation_id = $1 AND m.is_deleted = FALSE
ORDER BY m.created_at DESC, m.id DESC
LIMIT $2 OFFSET $3
) page ORDER BY created_at ASC, id ASC`
	var messages []models.MessageView
	if err := r.db.SelectContext(ctx, &messages, query, conversationID, page.Limit, page.Offset); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// FindByID returns a message by id regardless of deletion state.
func (r *MessageRepository) FindByID(ctx context.Context, id string) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`
	var message models.Message
	if err := r.db.GetContext(ctx, &message, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return &message, nil
}

// Create inserts the message and bumps the conversation's last_message_at in one transaction.
func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	message.CreatedAt = now
	message.UpdatedAt = now
	if message.MessageType == "" {
		message.MessageType = models.MessageText
	}
	if len(message.Attachments) == 0 {
		message.Attachments = json.RawMessage("[]")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin message tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const insert = `INSERT INTO messages (id, conversation_id, sender_id, content, message_type, attachments, reply_to_id, is_deleted, is_edited, created_at, updated_at)
VALUES (:id, :conversation_id, :sender_id, :content, :message_type, :attachments, :reply_to_id, :is_deleted, :is_edited, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, insert, message); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET last_message_at = $2, is_archived = FALSE WHERE id = $1`, message.ConversationID, now); err != nil {
		return fmt.Errorf("bump conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit message tx: %w", err)
	}
	return nil
}

// UpdateContent edits the message body and flags it as edited.
func (r *MessageRepository) UpdateContent(ctx context.Context, id, content string) (*models.Message, error) {
	query := `UPDATE messages SET content = $2, is_edited = TRUE, updated_at = $3 WHERE id = $1 AND is_deleted = FALSE RETURNING ` + messageColumns
	var message models.Message
	if err := r.db.GetContext(ctx, &message, query, id, content, time.Now().UTC()); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("update message: %w", err)
	}
	return &message, nil
}

// SoftDelete hides the message from history.
func (r *MessageRepository) SoftDelete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET is_deleted = TRUE, updated_at = $2 WHERE id = $1 AND is_deleted = FALSE`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkConversationRead upserts read receipts for every unread message from others.
// Re-running it is a no-op.
func (r *MessageRepository) MarkConversationRead(ctx context.Context, conversationID, userID string) (int64, error) {
	const query = `INSERT INTO message_reads (message_id, user_id, read_at)
SELECT m.id, $2, $3 FROM messages m
WHERE m.conversation_id = $1 AND m.sender_id <> $2 AND m.is_deleted = FALSE
ON CONFLICT (message_id, user_id) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, conversationID, userID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Recent returns the last limit non-deleted messages of a conversation, oldest first.
func (r *MessageRepository) Recent(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	query := `SELECT * FROM (SELECT ` + messageColumns + ` FROM messages
WHERE conversation_id = $1 AND is_deleted = FALSE ORDER BY created_at DESC LIMIT $2) recent ORDER BY created_at ASC`
	var messages []models.Message
	if err := r.db.SelectContext(ctx, &messages, query, conversationID, limit); err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	return messages, nil
}

// ListForModeration returns messages across conversations for content review.
func (r *MessageRepository) ListForModeration(ctx context.Context, filter models.MessageFilter) ([]models.MessageView, int, error) {
	base := ` FROM messages m
LEFT JOIN profiles p ON p.id = m.sender_id
LEFT JOIN messages rm ON rm.id = m.reply_to_id
WHERE 1=1`
	var conditions []string
	var args []interface{}
	if !filter.IncludeDeleted {
		conditions = append(conditions, "m.is_deleted = FALSE")
	}
	if filter.ConversationID != "" {
		args = append(args, filter.ConversationID)
		conditions = append(conditions, fmt.Sprintf("m.conversation_id = $%d", len(args)))
	}
	if filter.SenderID != "" {
		args = append(args, filter.SenderID)
		conditions = append(conditions, fmt.Sprintf("m.sender_id = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("LOWER(m.content) LIKE $%d", len(args)))
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*)"+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count moderation messages: %w", err)
	}
	_, limit, offset := normalizePage(filter.Page, filter.PageSize)
	query := fmt.Sprintf("SELECT %s%s ORDER BY m.created_at DESC LIMIT %d OFFSET %d", messageViewColumns, base, limit, offset)
	var messages []models.MessageView
	if err := r.db.SelectContext(ctx, &messages, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list moderation messages: %w", err)
	}
	return messages, total, nil
}

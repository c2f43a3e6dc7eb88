package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

const conversationColumns = `id, type, participants, participant_key, title, last_message_at, is_archived, created_at`

// ConversationRepository persists conversations and their participant sets.
type ConversationRepository struct {
	db *sqlx.DB
}

// NewConversationRepository constructs the repository.
func NewConversationRepository(db *sqlx.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// ListForUser returns the user's non-archived conversations, most recently active first.
func (r *ConversationRepository) ListForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations
WHERE $1 = ANY(participants) AND is_archived = FALSE
ORDER BY last_message_at DESC NULLS LAST, created_at DESC`
	var conversations []models.Conversation
	if err := r.db.SelectContext(ctx, &conversations, query, userID); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return conversations, nil
}

// FindByID returns a conversation by id.
func (r *ConversationRepository) FindByID(ctx context.Context, id string) (*models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	var conversation models.Conversation
	if err := r.db.GetContext(ctx, &conversation, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &conversation, nil
}

// FindDirect returns the direct conversation between exactly the given pair.
func (r *ConversationRepository) FindDirect(ctx context.Context, a, b string) (*models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE type = 'direct' AND participant_key = $1`
	var conversation models.Conversation
	if err := r.db.GetContext(ctx, &conversation, query, models.ParticipantKey(a, b)); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find direct conversation: %w", err)
	}
	return &conversation, nil
}

// FindOrCreateDirect returns the direct conversation for the pair, creating it when
// missing. The partial unique index on participant_key makes concurrent callers
// converge on one row: the loser's insert is a no-op and it re-reads the winner.
func (r *ConversationRepository) FindOrCreateDirect(ctx context.Context, a, b string) (*models.Conversation, bool, error) {
	existing, err := r.FindDirect(ctx, a, b)
	if err == nil {
		return existing, false, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, err
	}

	conversation := &models.Conversation{
		ID:             uuid.NewString(),
		Type:           models.ConversationDirect,
		Participants:   pq.StringArray{a, b},
		ParticipantKey: models.ParticipantKey(a, b),
		CreatedAt:      time.Now().UTC(),
	}
	const insert = `INSERT INTO conversations (id, type, participants, participant_key, title, is_archived, created_at)
VALUES (:id, :type, :participants, :participant_key, :title, :is_archived, :created_at)
ON CONFLICT (participant_key) WHERE type = 'direct' DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, insert, conversation)
	if err != nil {
		return nil, false, fmt.Errorf("create direct conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return conversation, true, nil
	}
	winner, err := r.FindDirect(ctx, a, b)
	if err != nil {
		return nil, false, err
	}
	return winner, false, nil
}

// SetArchived updates the archived flag.
func (r *ConversationRepository) SetArchived(ctx context.Context, id string, archived bool) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE conversations SET is_archived = $2 WHERE id = $1`, id, archived); err != nil {
		return fmt.Errorf("archive conversation: %w", err)
	}
	return nil
}

// LastMessages returns the newest non-deleted message per conversation.
func (r *ConversationRepository) LastMessages(ctx context.Context, conversationIDs []string) (map[string]models.Message, error) {
	result := make(map[string]models.Message, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return result, nil
	}
	query := `SELECT DISTINCT ON (conversation_id) ` + messageColumns + ` FROM messages
WHERE conversation_id = ANY($1) AND is_deleted = FALSE
ORDER BY conversation_id, created_at DESC`
	var rows []models.Message
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(conversationIDs)); err != nil {
		return nil, fmt.Errorf("last messages: %w", err)
	}
	for _, row := range rows {
		result[row.ConversationID] = row
	}
	return result, nil
}

// UnreadCounts returns, per conversation, messages from others the user has not read.
func (r *ConversationRepository) UnreadCounts(ctx context.Context, userID string, conversationIDs []string) (map[string]int, error) {
	result := make(map[string]int, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return result, nil
	}
	const query = `SELECT m.conversation_id, COUNT(*) AS unread
FROM messages m
LEFT JOIN message_reads mr ON mr.message_id = m.id AND mr.user_id = $1
WHERE m.conversation_id = ANY($2) AND m.sender_id <> $1 AND m.is_deleted = FALSE AND mr.message_id IS NULL
GROUP BY m.conversation_id`
	var rows []struct {
		ConversationID string `db:"conversation_id"`
		Unread         int    `db:"unread"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, userID, pq.Array(conversationIDs)); err != nil {
		return nil, fmt.Errorf("unread counts: %w", err)
	}
	for _, row := range rows {
		result[row.ConversationID] = row.Unread
	}
	return result, nil
}

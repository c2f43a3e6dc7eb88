package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

func TestMessageCreateBumpsConversation(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMessageRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO messages").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE conversations SET last_message_at").
		WithArgs("conv-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	msg := &models.Message{ConversationID: "conv-1", SenderID: "u1", Content: "hello"}
	require.NoError(t, repo.Create(context.Background(), msg))
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, models.MessageText, msg.MessageType)
	assert.JSONEq(t, "[]", string(msg.Attachments))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListByConversationExcludesDeleted(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMessageRepository(db)

	now := time.Now()
	cols := []string{"id", "conversation_id", "sender_id", "content", "message_type", "attachments", "reply_to_id", "is_deleted", "is_edited", "created_at", "updated_at", "sender_name", "sender_avatar", "reply_preview"}
	mock.ExpectQuery("WHERE m.conversation_id = \\$1 AND m.is_deleted = FALSE").
		WithArgs("conv-1", 50, 0).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("m1", "conv-1", "u1", "first", "text", []byte("[]"), nil, false, false, now, now, "Ana", nil, nil).
			AddRow("m2", "conv-1", "ai-assistant", "second", "text", []byte("[]"), nil, false, false, now.Add(time.Second), now, "AI Assistant", nil, nil))

	msgs, err := repo.ListByConversation(context.Background(), "conv-1", models.PageRequest{Limit: 50})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "AI Assistant", msgs[1].SenderName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkConversationReadIsUpsert(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMessageRepository(db)

	mock.ExpectExec("INSERT INTO message_reads .* ON CONFLICT \\(message_id, user_id\\) DO NOTHING").
		WithArgs("conv-1", "u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.MarkConversationRead(context.Background(), "conv-1", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

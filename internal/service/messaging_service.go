package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/realtime"
	"github.com/noah-isme/tutorhub-api/pkg/assistant"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/jobs"
)

// JobTypeAssistantReply asks the assistant to answer the latest message of a conversation.
const JobTypeAssistantReply = "assistant.reply"

const (
	// MessagePageSize is the history page used by the realtime session.
	MessagePageSize        = 50
	maxMessagePageSize     = 100
	maxMessageLength       = 4000
	assistantDisplayName   = "AI Assistant"
	assistantHistoryLimit  = 20
	notificationPreviewLen = 120
)

type conversationRepository interface {
	ListForUser(ctx context.Context, userID string) ([]models.Conversation, error)
	FindByID(ctx context.Context, id string) (*models.Conversation, error)
	FindOrCreateDirect(ctx context.Context, a, b string) (*models.Conversation, bool, error)
	SetArchived(ctx context.Context, id string, archived bool) error
	LastMessages(ctx context.Context, conversationIDs []string) (map[string]models.Message, error)
	UnreadCounts(ctx context.Context, userID string, conversationIDs []string) (map[string]int, error)
}

type messageRepository interface {
	ListByConversation(ctx context.Context, conversationID string, page models.PageRequest) ([]models.MessageView, error)
	FindByID(ctx context.Context, id string) (*models.Message, error)
	Create(ctx context.Context, message *models.Message) error
	UpdateContent(ctx context.Context, id, content string) (*models.Message, error)
	SoftDelete(ctx context.Context, id string) error
	MarkConversationRead(ctx context.Context, conversationID, userID string) (int64, error)
	Recent(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
}

type profileDirectory interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
	FindSummaries(ctx context.Context, ids []string) (map[string]models.ProfileSummary, error)
}

type notificationCreator interface {
	Create(ctx context.Context, n *models.Notification) (*models.Notification, error)
}

// AssistantResponder answers the AI conversation. A nil responder disables it.
type AssistantResponder interface {
	Reply(ctx context.Context, history []assistant.Turn) (string, error)
}

// Messenger is the messaging surface available to one signed-in role.
type Messenger interface {
	GetConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error)
	GetMessages(ctx context.Context, conversationID, userID string, page models.PageRequest) ([]models.MessageView, error)
	SendMessage(ctx context.Context, input SendMessageInput) (*models.MessageView, error)
	EditMessage(ctx context.Context, messageID, userID, content string) (*models.Message, error)
	DeleteMessage(ctx context.Context, messageID, userID string) error
	MarkAsRead(ctx context.Context, conversationID, userID string) (int64, error)
	GetOrCreateTeacherConversation(ctx context.Context, userID, teacherID string) (*models.Conversation, error)
	GetOrCreateAIConversation(ctx context.Context, userID string) (*models.Conversation, error)
	ArchiveConversation(ctx context.Context, conversationID, userID string) error
}

// SendMessageInput is a new message from a participant.
type SendMessageInput struct {
	ConversationID string             `json:"conversation_id" validate:"required"`
	SenderID       string             `json:"-" validate:"required"`
	Content        string             `json:"content" validate:"required,max=4000"`
	MessageType    models.MessageType `json:"message_type" validate:"omitempty,oneof=text image file"`
	Attachments    json.RawMessage    `json:"attachments,omitempty"`
	ReplyToID      *string            `json:"reply_to_id,omitempty"`
}

// AssistantReplyJob is the payload of JobTypeAssistantReply.
type AssistantReplyJob struct {
	ConversationID string
	RequestedBy    string
}

// messengerPolicy describes what one role variant may start conversations with.
type messengerPolicy struct {
	name             string
	counterpartRoles []models.UserRole
	allowAssistant   bool
}

var (
	studentPolicy = messengerPolicy{name: "student", counterpartRoles: []models.UserRole{models.RoleTeacher}, allowAssistant: true}
	parentPolicy  = messengerPolicy{name: "parent", counterpartRoles: []models.UserRole{models.RoleTeacher}, allowAssistant: true}
	generalPolicy = messengerPolicy{name: "general"}
)

func (p messengerPolicy) allows(role models.UserRole) bool {
	if len(p.counterpartRoles) == 0 {
		return true
	}
	for _, r := range p.counterpartRoles {
		if r == role {
			return true
		}
	}
	return false
}

// MessagingServiceParams groups the collaborators of MessagingService.
type MessagingServiceParams struct {
	Conversations conversationRepository
	Messages      messageRepository
	Profiles      profileDirectory
	Notifications notificationCreator
	Publisher     eventPublisher
	Queue         jobEnqueuer
	Assistant     AssistantResponder
	Validator     *validator.Validate
	Logger        *zap.Logger
}

// MessagingService implements conversations and messages. Callers obtain a
// role specific Messenger through ForRole.
type MessagingService struct {
	conversations conversationRepository
	messages      messageRepository
	profiles      profileDirectory
	notifications notificationCreator
	publisher     eventPublisher
	queue         jobEnqueuer
	assistant     AssistantResponder
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewMessagingService constructs the messaging service.
func NewMessagingService(params MessagingServiceParams) *MessagingService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	return &MessagingService{
		conversations: params.Conversations,
		messages:      params.Messages,
		profiles:      params.Profiles,
		notifications: params.Notifications,
		publisher:     params.Publisher,
		queue:         params.Queue,
		assistant:     params.Assistant,
		validator:     validate,
		logger:        logger,
	}
}

// ForRole selects the messenger variant for a role. Unknown roles get the general variant.
func (s *MessagingService) ForRole(role models.UserRole) Messenger {
	switch role {
	case models.RoleStudent:
		return &roleMessenger{MessagingService: s, policy: studentPolicy}
	case models.RoleParent:
		return &roleMessenger{MessagingService: s, policy: parentPolicy}
	default:
		return &roleMessenger{MessagingService: s, policy: generalPolicy}
	}
}

// AssistantEnabled reports whether assistant conversations can be answered.
func (s *MessagingService) AssistantEnabled() bool {
	return s.assistant != nil && s.queue != nil
}

type roleMessenger struct {
	*MessagingService
	policy messengerPolicy
}

// GetConversations lists the user's active conversations, newest activity first.
func (s *MessagingService) GetConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	conversations, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list conversations")
	}
	summaries := make([]models.ConversationSummary, 0, len(conversations))
	if len(conversations) == 0 {
		return summaries, nil
	}

	ids := make([]string, 0, len(conversations))
	var others []string
	for _, conv := range conversations {
		ids = append(ids, conv.ID)
		for _, other := range conv.Others(userID) {
			if other != models.AIAssistantID {
				others = append(others, other)
			}
		}
	}

	last, err := s.conversations.LastMessages(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load last messages")
	}
	unread, err := s.conversations.UnreadCounts(ctx, userID, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count unread messages")
	}
	profiles := map[string]models.ProfileSummary{}
	if len(others) > 0 {
		if profiles, err = s.profiles.FindSummaries(ctx, others); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load participants")
		}
	}

	for _, conv := range conversations {
		summary := models.ConversationSummary{Conversation: conv, UnreadCount: unread[conv.ID]}
		if msg, ok := last[conv.ID]; ok {
			msg := msg
			summary.LastMessage = &msg
		}
		if counterpart := conv.Others(userID); len(counterpart) > 0 {
			summary.OtherParticipant = participantSummary(counterpart[0], profiles)
		}
		summaries = append(summaries, summary)
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i].LastMessageAt, summaries[j].LastMessageAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.After(*b)
	})
	return summaries, nil
}

// GetMessages returns one page of non-deleted history in ascending time order.
func (s *MessagingService) GetMessages(ctx context.Context, conversationID, userID string, page models.PageRequest) ([]models.MessageView, error) {
	if _, err := s.participantConversation(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	if page.Offset < 0 {
		page.Offset = 0
	}
	if page.Limit <= 0 {
		page.Limit = MessagePageSize
	}
	if page.Limit > maxMessagePageSize {
		page.Limit = maxMessagePageSize
	}
	messages, err := s.messages.ListByConversation(ctx, conversationID, page)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load messages")
	}
	if messages == nil {
		messages = []models.MessageView{}
	}
	return messages, nil
}

// SendMessage stores a message, broadcasts it and notifies the other participants.
func (s *MessagingService) SendMessage(ctx context.Context, input SendMessageInput) (*models.MessageView, error) {
	input.Content = strings.TrimSpace(input.Content)
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid message payload")
	}
	conv, err := s.participantConversation(ctx, input.ConversationID, input.SenderID)
	if err != nil {
		return nil, err
	}
	replyTo := trimOptional(input.ReplyToID)
	if replyTo != nil {
		parent, err := s.messages.FindByID(ctx, *replyTo)
		if err != nil || parent.ConversationID != conv.ID || parent.IsDeleted {
			return nil, appErrors.Clone(appErrors.ErrValidation, "reply target is not part of this conversation")
		}
	}

	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       input.SenderID,
		Content:        input.Content,
		MessageType:    input.MessageType,
		Attachments:    input.Attachments,
		ReplyToID:      replyTo,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to send message")
	}

	view := s.viewOf(ctx, msg)
	s.fanOut(ctx, conv, view)

	if conv.HasParticipant(models.AIAssistantID) && input.SenderID != models.AIAssistantID && s.AssistantEnabled() {
		job := jobs.Job{Type: JobTypeAssistantReply, Payload: &AssistantReplyJob{ConversationID: conv.ID, RequestedBy: input.SenderID}}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Warn("enqueue assistant reply", zap.String("conversation_id", conv.ID), zap.Error(err))
		}
	}
	return view, nil
}

// EditMessage replaces the content of the sender's own message.
func (s *MessagingService) EditMessage(ctx context.Context, messageID, userID, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" || utf8.RuneCountInString(content) > maxMessageLength {
		return nil, appErrors.Clone(appErrors.ErrValidation, "message content must be between 1 and 4000 characters")
	}
	if _, err := s.ownMessage(ctx, messageID, userID); err != nil {
		return nil, err
	}
	updated, err := s.messages.UpdateContent(ctx, messageID, content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "message not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to edit message")
	}
	s.publishMessageEvent(ctx, updated.ConversationID, realtime.EventUpdate, updated)
	return updated, nil
}

// DeleteMessage soft deletes the sender's own message.
func (s *MessagingService) DeleteMessage(ctx context.Context, messageID, userID string) error {
	msg, err := s.ownMessage(ctx, messageID, userID)
	if err != nil {
		return err
	}
	return s.removeMessage(ctx, msg)
}

// Moderate soft deletes any message on behalf of an administrator.
func (s *MessagingService) Moderate(ctx context.Context, messageID string) (*models.Message, error) {
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "message not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load message")
	}
	if msg.IsDeleted {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "message not found")
	}
	if err := s.removeMessage(ctx, msg); err != nil {
		return nil, err
	}
	msg.IsDeleted = true
	return msg, nil
}

// MarkAsRead records read receipts for every unread message from the other participants.
func (s *MessagingService) MarkAsRead(ctx context.Context, conversationID, userID string) (int64, error) {
	if _, err := s.participantConversation(ctx, conversationID, userID); err != nil {
		return 0, err
	}
	marked, err := s.messages.MarkConversationRead(ctx, conversationID, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark messages read")
	}
	return marked, nil
}

// ArchiveConversation hides the conversation from the list until a new message arrives.
func (s *MessagingService) ArchiveConversation(ctx context.Context, conversationID, userID string) error {
	if _, err := s.participantConversation(ctx, conversationID, userID); err != nil {
		return err
	}
	if err := s.conversations.SetArchived(ctx, conversationID, true); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive conversation")
	}
	return nil
}

// GetOrCreateTeacherConversation returns the direct conversation with the counterpart,
// creating it on first contact. The counterpart must be an active profile the variant may contact.
func (m *roleMessenger) GetOrCreateTeacherConversation(ctx context.Context, userID, teacherID string) (*models.Conversation, error) {
	teacherID = strings.TrimSpace(teacherID)
	if teacherID == "" || teacherID == userID || teacherID == models.AIAssistantID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid conversation counterpart")
	}
	counterpart, err := m.profiles.FindByID(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load counterpart")
	}
	if !counterpart.IsActive || counterpart.IsSuspended {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	if !m.policy.allows(counterpart.Role) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("%s accounts can only message teachers", m.policy.name))
	}
	return m.directConversation(ctx, userID, teacherID)
}

// GetOrCreateAIConversation returns the user's assistant conversation.
func (m *roleMessenger) GetOrCreateAIConversation(ctx context.Context, userID string) (*models.Conversation, error) {
	if !m.policy.allowAssistant {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "the assistant is not available for this account")
	}
	return m.directConversation(ctx, userID, models.AIAssistantID)
}

func (s *MessagingService) directConversation(ctx context.Context, a, b string) (*models.Conversation, error) {
	conv, created, err := s.conversations.FindOrCreateDirect(ctx, a, b)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open conversation")
	}
	if created {
		s.logger.Debug("conversation created", zap.String("conversation_id", conv.ID))
	}
	if conv.IsArchived {
		if err := s.conversations.SetArchived(ctx, conv.ID, false); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to restore conversation")
		}
		conv.IsArchived = false
	}
	return conv, nil
}

// HandleAssistantJob is the job queue handler for JobTypeAssistantReply.
func (s *MessagingService) HandleAssistantJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(*AssistantReplyJob)
	if !ok || payload == nil {
		return fmt.Errorf("assistant job %s: unexpected payload %T", job.ID, job.Payload)
	}
	if s.assistant == nil {
		return nil
	}
	conv, err := s.conversations.FindByID(ctx, payload.ConversationID)
	if err != nil {
		return fmt.Errorf("load assistant conversation: %w", err)
	}
	if !conv.HasParticipant(models.AIAssistantID) {
		return nil
	}
	recent, err := s.messages.Recent(ctx, conv.ID, assistantHistoryLimit)
	if err != nil {
		return fmt.Errorf("load assistant history: %w", err)
	}
	if len(recent) == 0 || recent[len(recent)-1].SenderID == models.AIAssistantID {
		return nil
	}
	history := make([]assistant.Turn, 0, len(recent))
	for _, msg := range recent {
		history = append(history, assistant.Turn{FromAssistant: msg.SenderID == models.AIAssistantID, Text: msg.Content})
	}

	reply, err := s.assistant.Reply(ctx, history)
	if err != nil {
		return err
	}
	msg := &models.Message{ConversationID: conv.ID, SenderID: models.AIAssistantID, Content: reply, MessageType: models.MessageText}
	if err := s.messages.Create(ctx, msg); err != nil {
		return fmt.Errorf("store assistant reply: %w", err)
	}
	s.fanOut(ctx, conv, &models.MessageView{Message: *msg, SenderName: assistantDisplayName})
	return nil
}

func (s *MessagingService) participantConversation(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	conv, err := s.conversations.FindByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "conversation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load conversation")
	}
	if !conv.HasParticipant(userID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not a participant of this conversation")
	}
	return conv, nil
}

func (s *MessagingService) ownMessage(ctx context.Context, messageID, userID string) (*models.Message, error) {
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "message not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load message")
	}
	if msg.IsDeleted {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "message not found")
	}
	if msg.SenderID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the sender can change this message")
	}
	return msg, nil
}

func (s *MessagingService) removeMessage(ctx context.Context, msg *models.Message) error {
	if err := s.messages.SoftDelete(ctx, msg.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "message not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete message")
	}
	s.publishMessageEvent(ctx, msg.ConversationID, realtime.EventDelete, map[string]string{
		"id":              msg.ID,
		"conversation_id": msg.ConversationID,
	})
	return nil
}

func (s *MessagingService) viewOf(ctx context.Context, msg *models.Message) *models.MessageView {
	view := &models.MessageView{Message: *msg}
	if msg.SenderID == models.AIAssistantID {
		view.SenderName = assistantDisplayName
		return view
	}
	summaries, err := s.profiles.FindSummaries(ctx, []string{msg.SenderID})
	if err != nil {
		s.logger.Warn("load sender summary", zap.String("sender_id", msg.SenderID), zap.Error(err))
		return view
	}
	if sender, ok := summaries[msg.SenderID]; ok {
		view.SenderName = sender.FullName
		view.SenderAvatar = sender.AvatarURL
	}
	return view
}

// fanOut broadcasts a stored message and notifies every other human participant.
func (s *MessagingService) fanOut(ctx context.Context, conv *models.Conversation, view *models.MessageView) {
	s.publishMessageEvent(ctx, conv.ID, realtime.EventInsert, view)
	if s.notifications == nil {
		return
	}
	data, _ := json.Marshal(map[string]string{"conversation_id": conv.ID, "message_id": view.ID})
	title := "New message"
	if view.SenderName != "" {
		title = "New message from " + view.SenderName
	}
	for _, recipient := range conv.Others(view.SenderID) {
		if recipient == models.AIAssistantID {
			continue
		}
		note := &models.Notification{
			UserID:   recipient,
			Type:     models.NotificationNewMessage,
			Title:    title,
			Message:  preview(view.Content, notificationPreviewLen),
			Data:     data,
			Priority: models.PriorityNormal,
		}
		if _, err := s.notifications.Create(ctx, note); err != nil {
			s.logger.Warn("create message notification", zap.String("user_id", recipient), zap.Error(err))
		}
	}
}

func (s *MessagingService) publishMessageEvent(ctx context.Context, conversationID, eventType string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	channel := realtime.MessagesChannel(conversationID)
	ev, err := realtime.NewEvent(eventType, channel, payload)
	if err != nil {
		s.logger.Warn("build message event", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, channel, ev); err != nil {
		s.logger.Warn("publish message event", zap.String("conversation_id", conversationID), zap.Error(err))
	}
}

func participantSummary(id string, profiles map[string]models.ProfileSummary) *models.ProfileSummary {
	if id == models.AIAssistantID {
		return &models.ProfileSummary{ID: id, FullName: assistantDisplayName}
	}
	if summary, ok := profiles[id]; ok {
		return &summary
	}
	return &models.ProfileSummary{ID: id}
}

func preview(content string, limit int) string {
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit]) + "…"
}

package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/service"
	"github.com/noah-isme/tutorhub-api/pkg/response"
)

type messengerSource interface {
	ForRole(role models.UserRole) service.Messenger
}

// MessagingHandler exposes conversations and messages over REST. The realtime
// gateway offers the same operations over the websocket.
type MessagingHandler struct {
	messengers messengerSource
}

// NewMessagingHandler constructs the handler.
func NewMessagingHandler(messengers messengerSource) *MessagingHandler {
	return &MessagingHandler{messengers: messengers}
}

func (h *MessagingHandler) messenger(c *gin.Context) (service.Messenger, *models.JWTClaims, bool) {
	claims, ok := currentUser(c)
	if !ok {
		return nil, nil, false
	}
	return h.messengers.ForRole(claims.Role), claims, true
}

// Conversations godoc
// @Summary List conversations
// @Description Conversations of the caller, newest activity first, with unread counts
// @Tags Messaging
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /conversations [get]
func (h *MessagingHandler) Conversations(c *gin.Context) {
	m, claims, ok := h.messenger(c)
	if !ok {
		return
	}
	items, err := m.GetConversations(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// StartWithTeacher godoc
// @Summary Open a direct conversation
// @Description Returns the existing conversation with the counterpart or creates it
// @Tags Messaging
// @Accept json
// @Produce json
// @Param payload body map[string]string true "counterpart_id"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /conversations/direct [post]
func (h *MessagingHandler) StartWithTeacher(c *gin.Context) {
	m, claims, ok := h.messenger(c)
	if !ok {
		return
	}
	var payload struct {
		CounterpartID string `json:"counterpart_id" binding:"required"`
	}
	if !bindJSON(c, &payload, "counterpart_id is required") {
		return
	}
	conv, err := m.GetOrCreateTeacherConversation(c.Request.Context(), claims.UserID, payload.CounterpartID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conv, nil)
}

// StartWithAssistant godoc
// @Summary Open the AI assistant conversation
// @Tags Messaging
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /conversations/assistant [post]
func (h *MessagingHandler) StartWithAssistant(c *gin.Context) {
	m, claims, ok := h.messenger(c)
	if !ok {
		return
	}
	conv, err := m.GetOrCreateAIConversation(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, conv, nil)
}

// Messages godoc
// @Summary List messages
// @Description Oldest first; deleted messages are never returned
// @Tags Messaging
// @Produce json
// @Param id path string true "Conversation ID"
// @Param offset query int false "Offset"
// @Param limit query int false "Limit (default 50)"
// @Success 200 {object} response.Envelope
// @Router /conversations/{id}/messages [get]
func (h *MessagingHandler) Messages(c *gin.Context) {
	m, claims, ok := h.messenger(c)
	if !ok {
		return
	}
	page := models.PageRequest{}
	page.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	page.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(service.MessagePageSize)))

	items, err := m.GetMessages(c.Request.Context(), c.Param("id"), claims.UserID, page)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil, map[string]interface{}{
		"offset":    page.Offset,
		"exhausted": len(items) == 0,
	})
}

// Send godoc
// @Summary Send message
// @Tags Messaging
// @Accept json
// @Produce json
// @Param id path string true "Conversation ID"
// @Param payload body service.SendMessageInput true "Message"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /conversations/{id}/messages [post]
func (h *MessagingHandler) Send(c *gin.Context) {
	m, claims, ok := h.messenger(c)
	if !ok {
		return
	}
	var input service.SendMessageInput
	if !bindJSON(c, &input, "invalid message payload") {
		return
	}
	input.ConversationID = c.Param("id")
	input.SenderID = claims.UserID

	msg, err := m.SendMessage(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, msg)
}

// MarkRead godoc
// @Summary Mark conversation read
// @Tags Messaging
// @Produce json
// @Param id path string true "Conversation ID"
// @Success 200 {object} response.Envelope
// @Router /conversations/{id}/read [post]
func (h *MessagingHandler) MarkRead(c *gin.Context) {
	m, claims, ok := h.messenger(c)
	if !ok {
		return
	}
	marked, err := m.MarkAsRead(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"marked": marked}, nil)
}

// Archive godoc
// @Summary Archive conversation
// @Tags Messaging
// @Param id path string true "Conversation ID"
// @Success 204
// @Router /conversations/{id}/archive [post]
func (h *MessagingHandler) Archive(c *gin.Context) {
	m, claims, ok := h.messenger(c)
	if !ok {
		return
	}
	if err := m.ArchiveConversation(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Edit godoc
// @Summary Edit own message
// @Tags Messaging
// @Accept json
// @Produce json
// @Param id path string true "Message ID"
// @Param payload body map[string]string true "content"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /messages/{id} [patch]
func (h *MessagingHandler) Edit(c *gin.Context) {
	m, claims, ok := h.messenger(c)
	if !ok {
		return
	}
	var payload struct {
		Content string `json:"content" binding:"required"`
	}
	if !bindJSON(c, &payload, "content is required") {
		return
	}
	msg, err := m.EditMessage(c.Request.Context(), c.Param("id"), claims.UserID, strings.TrimSpace(payload.Content))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, msg, nil)
}

// Delete godoc
// @Summary Delete own message
// @Tags Messaging
// @Param id path string true "Message ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Router /messages/{id} [delete]
func (h *MessagingHandler) Delete(c *gin.Context) {
	m, claims, ok := h.messenger(c)
	if !ok {
		return
	}
	if err := m.DeleteMessage(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

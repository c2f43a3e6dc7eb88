package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/service"
	"github.com/noah-isme/tutorhub-api/pkg/push"
	"github.com/noah-isme/tutorhub-api/pkg/response"
)

type notificationService interface {
	List(ctx context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkAsRead(ctx context.Context, id, userID string) error
	MarkAllAsRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, id, userID string) error
	GetPreferences(ctx context.Context, userID string) ([]models.NotificationPreference, error)
	UpdatePreference(ctx context.Context, userID string, req service.UpdatePreferenceRequest) (*models.NotificationPreference, error)
	PushPublicKey() (string, error)
	RegisterPushSubscription(ctx context.Context, userID string, sub push.Subscription) error
	RemovePushSubscription(ctx context.Context, userID, endpoint string) error
}

// NotificationHandler serves the caller's inbox, preferences and push subscriptions.
type NotificationHandler struct {
	service notificationService
}

// NewNotificationHandler constructs the handler.
func NewNotificationHandler(svc notificationService) *NotificationHandler {
	return &NotificationHandler{service: svc}
}

// List godoc
// @Summary List notifications
// @Tags Notifications
// @Produce json
// @Param unread_only query bool false "Only unread"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	page, size := pageParams(c)
	filter := models.NotificationFilter{Page: page, PageSize: size}
	if unread := optionalBool(c, "unread_only"); unread != nil {
		filter.UnreadOnly = *unread
	}
	items, pagination, err := h.service.List(c.Request.Context(), claims.UserID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// UnreadCount godoc
// @Summary Unread notification count
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications/unread-count [get]
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	count, err := h.service.UnreadCount(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"unread": count}, nil)
}

// MarkRead godoc
// @Summary Mark notification read
// @Tags Notifications
// @Param id path string true "Notification ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /notifications/{id}/read [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.service.MarkAsRead(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// MarkAllRead godoc
// @Summary Mark all notifications read
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications/read-all [post]
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	updated, err := h.service.MarkAllAsRead(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"updated": updated}, nil)
}

// Delete godoc
// @Summary Delete notification
// @Tags Notifications
// @Param id path string true "Notification ID"
// @Success 204
// @Router /notifications/{id} [delete]
func (h *NotificationHandler) Delete(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Preferences godoc
// @Summary Notification preferences
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /notifications/preferences [get]
func (h *NotificationHandler) Preferences(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	prefs, err := h.service.GetPreferences(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, prefs, nil)
}

// UpdatePreference godoc
// @Summary Toggle browser delivery for a notification type
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body service.UpdatePreferenceRequest true "Preference"
// @Success 200 {object} response.Envelope
// @Router /notifications/preferences [put]
func (h *NotificationHandler) UpdatePreference(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.UpdatePreferenceRequest
	if !bindJSON(c, &req, "invalid preference payload") {
		return
	}
	pref, err := h.service.UpdatePreference(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pref, nil)
}

// PushKey godoc
// @Summary VAPID public key
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /notifications/push/key [get]
func (h *NotificationHandler) PushKey(c *gin.Context) {
	key, err := h.service.PushPublicKey()
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"public_key": key}, nil)
}

// Subscribe godoc
// @Summary Register a browser push subscription
// @Tags Notifications
// @Accept json
// @Param payload body push.Subscription true "Subscription"
// @Success 204
// @Router /notifications/push/subscriptions [post]
func (h *NotificationHandler) Subscribe(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var sub push.Subscription
	if !bindJSON(c, &sub, "invalid push subscription") {
		return
	}
	if err := h.service.RegisterPushSubscription(c.Request.Context(), claims.UserID, sub); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Unsubscribe godoc
// @Summary Remove a browser push subscription
// @Tags Notifications
// @Accept json
// @Param payload body map[string]string true "endpoint"
// @Success 204
// @Router /notifications/push/subscriptions [delete]
func (h *NotificationHandler) Unsubscribe(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var payload struct {
		Endpoint string `json:"endpoint" binding:"required"`
	}
	if !bindJSON(c, &payload, "endpoint is required") {
		return
	}
	if err := h.service.RemovePushSubscription(c.Request.Context(), claims.UserID, payload.Endpoint); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

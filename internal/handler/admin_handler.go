package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/service"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/response"
)

type adminService interface {
	ListUsers(ctx context.Context, filter models.UserFilter) ([]models.Profile, *models.Pagination, error)
	ToggleUserSuspension(ctx context.Context, actor *models.JWTClaims, userID string) (*models.Profile, error)
	ApproveTeacherVerification(ctx context.Context, actor *models.JWTClaims, teacherID string) (*models.TeacherListing, error)
	RejectTeacherVerification(ctx context.Context, actor *models.JWTClaims, teacherID string, req service.RejectTeacherRequest) (*models.TeacherListing, error)
	ListPayments(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentView, *models.Pagination, error)
	ListRecentMessages(ctx context.Context, filter models.MessageFilter) ([]models.MessageView, *models.Pagination, error)
	ModerateMessage(ctx context.Context, actor *models.JWTClaims, messageID string, req service.ModerateMessageRequest) (*models.Message, error)
	RecordExport(ctx context.Context, actor *models.JWTClaims, job *models.ExportJob)
}

type exportService interface {
	RequestPaymentExport(ctx context.Context, requestedBy, format string, filter models.PaymentFilter) (*models.ExportJob, error)
	Status(ctx context.Context, id string) (*models.ExportJob, error)
	Open(ctx context.Context, token string) (*service.ExportDownload, error)
}

// AdminHandler serves user management, teacher verification, payment
// oversight and message moderation.
type AdminHandler struct {
	admin   adminService
	exports exportService
}

// NewAdminHandler constructs the handler.
func NewAdminHandler(admin adminService, exports exportService) *AdminHandler {
	return &AdminHandler{admin: admin, exports: exports}
}

// ListUsers godoc
// @Summary List users
// @Tags Admin
// @Produce json
// @Param role query string false "Role"
// @Param suspended query bool false "Suspended"
// @Param search query string false "Name or email"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/users [get]
func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, size := pageParams(c)
	filter := models.UserFilter{
		Suspended: optionalBool(c, "suspended"),
		Search:    strings.TrimSpace(c.Query("search")),
		Page:      page,
		PageSize:  size,
		SortBy:    c.Query("sort"),
		SortOrder: c.Query("order"),
	}
	if raw := c.Query("role"); raw != "" {
		role := models.UserRole(raw)
		filter.Role = &role
	}
	users, pagination, err := h.admin.ListUsers(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, users, pagination)
}

// ToggleSuspension godoc
// @Summary Suspend or reinstate a user
// @Description Suspending closes the user's live connections
// @Tags Admin
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/users/{id}/suspension [post]
func (h *AdminHandler) ToggleSuspension(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	user, err := h.admin.ToggleUserSuspension(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, user, nil)
}

// ApproveTeacher godoc
// @Summary Approve teacher verification
// @Tags Admin
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /admin/teachers/{id}/approve [post]
func (h *AdminHandler) ApproveTeacher(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	teacher, err := h.admin.ApproveTeacherVerification(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teacher, nil)
}

// RejectTeacher godoc
// @Summary Reject teacher verification
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Teacher ID"
// @Param payload body service.RejectTeacherRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/teachers/{id}/reject [post]
func (h *AdminHandler) RejectTeacher(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.RejectTeacherRequest
	if !bindJSON(c, &req, "reason is required") {
		return
	}
	teacher, err := h.admin.RejectTeacherVerification(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teacher, nil)
}

// ListPayments godoc
// @Summary List payments
// @Tags Admin
// @Produce json
// @Param status query string false "Status"
// @Param user_id query string false "Payer"
// @Param from query string false "From (YYYY-MM-DD or RFC3339)"
// @Param to query string false "To (YYYY-MM-DD or RFC3339)"
// @Success 200 {object} response.Envelope
// @Router /admin/payments [get]
func (h *AdminHandler) ListPayments(c *gin.Context) {
	filter, err := paymentFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	payments, pagination, err := h.admin.ListPayments(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payments, pagination)
}

// RequestExport godoc
// @Summary Export payment statement
// @Description Queues a CSV or PDF render of the filtered payments
// @Tags Admin
// @Produce json
// @Param format query string false "csv or pdf"
// @Success 202 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /admin/payments/export [post]
func (h *AdminHandler) RequestExport(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	filter, err := paymentFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	job, err := h.exports.RequestPaymentExport(c.Request.Context(), claims.UserID, c.Query("format"), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.admin.RecordExport(c.Request.Context(), claims, job)
	response.Accepted(c, job)
}

// ExportStatus godoc
// @Summary Export status
// @Tags Admin
// @Produce json
// @Param id path string true "Export ID"
// @Success 200 {object} response.Envelope
// @Router /admin/exports/{id} [get]
func (h *AdminHandler) ExportStatus(c *gin.Context) {
	job, err := h.exports.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// DownloadExport godoc
// @Summary Download a rendered export via signed token
// @Tags Admin
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /admin/exports/download/{token} [get]
func (h *AdminHandler) DownloadExport(c *gin.Context) {
	download, err := h.exports.Open(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck
	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", download.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), download.ContentType, download.File, nil)
}

// ListMessages godoc
// @Summary Recent messages for moderation
// @Tags Admin
// @Produce json
// @Param conversation_id query string false "Conversation"
// @Param sender_id query string false "Sender"
// @Param search query string false "Content search"
// @Param include_deleted query bool false "Include deleted"
// @Success 200 {object} response.Envelope
// @Router /admin/messages [get]
func (h *AdminHandler) ListMessages(c *gin.Context) {
	page, size := pageParams(c)
	filter := models.MessageFilter{
		ConversationID: c.Query("conversation_id"),
		SenderID:       c.Query("sender_id"),
		Search:         strings.TrimSpace(c.Query("search")),
		Page:           page,
		PageSize:       size,
	}
	if deleted := optionalBool(c, "include_deleted"); deleted != nil {
		filter.IncludeDeleted = *deleted
	}
	messages, pagination, err := h.admin.ListRecentMessages(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, messages, pagination)
}

// ModerateMessage godoc
// @Summary Remove a message
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Message ID"
// @Param payload body service.ModerateMessageRequest false "Reason"
// @Success 200 {object} response.Envelope
// @Router /admin/messages/{id}/moderate [post]
func (h *AdminHandler) ModerateMessage(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.ModerateMessageRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req, "invalid moderation payload") {
		return
	}
	msg, err := h.admin.ModerateMessage(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, msg, nil)
}

func paymentFilter(c *gin.Context) (models.PaymentFilter, error) {
	page, size := pageParams(c)
	filter := models.PaymentFilter{UserID: c.Query("user_id"), Page: page, PageSize: size}
	if raw := c.Query("status"); raw != "" {
		status := models.PaymentStatus(raw)
		filter.Status = &status
	}
	var err error
	if filter.From, err = parseDateParam(c.Query("from")); err != nil {
		return filter, err
	}
	if filter.To, err = parseDateParam(c.Query("to")); err != nil {
		return filter, err
	}
	return filter, nil
}

func parseDateParam(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, appErrors.Clone(appErrors.ErrValidation, "invalid date format, expected YYYY-MM-DD")
}

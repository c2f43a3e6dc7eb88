package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/service"
	"github.com/noah-isme/tutorhub-api/pkg/response"
)

type sessionRequestService interface {
	Create(ctx context.Context, studentID string, in service.CreateSessionRequestInput) (*service.SessionRequestResult, error)
	Accept(ctx context.Context, teacherID, requestID string, in service.AcceptSessionRequestInput) (*models.SessionRequest, error)
	Decline(ctx context.Context, teacherID, requestID string, in service.DeclineSessionRequestInput) (*models.SessionRequest, error)
	Cancel(ctx context.Context, studentID, requestID string) (*models.SessionRequest, error)
	Get(ctx context.Context, claims *models.JWTClaims, requestID string) (*models.SessionRequestView, error)
	ListForStudent(ctx context.Context, studentID string, filter models.SessionRequestFilter) ([]models.SessionRequestView, *models.Pagination, error)
	ListForTeacher(ctx context.Context, teacherID string, filter models.SessionRequestFilter) ([]models.SessionRequestView, *models.Pagination, error)
}

// SessionRequestHandler exposes the booking workflow.
type SessionRequestHandler struct {
	service sessionRequestService
}

// NewSessionRequestHandler constructs the handler.
func NewSessionRequestHandler(svc sessionRequestService) *SessionRequestHandler {
	return &SessionRequestHandler{service: svc}
}

// Create godoc
// @Summary Request a session
// @Description Debits the session cost from the student's balance and notifies the teacher
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body service.CreateSessionRequestInput true "Request"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /session-requests [post]
func (h *SessionRequestHandler) Create(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var in service.CreateSessionRequestInput
	if !bindJSON(c, &in, "invalid session request payload") {
		return
	}
	result, err := h.service.Create(c.Request.Context(), claims.UserID, in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// List godoc
// @Summary List session requests
// @Description Students see what they sent, teachers see what they received
// @Tags Sessions
// @Produce json
// @Param status query string false "Status"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /session-requests [get]
func (h *SessionRequestHandler) List(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	page, size := pageParams(c)
	filter := models.SessionRequestFilter{Page: page, PageSize: size}
	if raw := c.Query("status"); raw != "" {
		status := models.SessionRequestStatus(raw)
		filter.Status = &status
	}

	var (
		items      []models.SessionRequestView
		pagination *models.Pagination
		err        error
	)
	if claims.Role == models.RoleTeacher {
		items, pagination, err = h.service.ListForTeacher(c.Request.Context(), claims.UserID, filter)
	} else {
		items, pagination, err = h.service.ListForStudent(c.Request.Context(), claims.UserID, filter)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Session request detail
// @Tags Sessions
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /session-requests/{id} [get]
func (h *SessionRequestHandler) Get(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	req, err := h.service.Get(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, req, nil)
}

// Accept godoc
// @Summary Accept a pending request
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body service.AcceptSessionRequestInput false "Reply"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /session-requests/{id}/accept [post]
func (h *SessionRequestHandler) Accept(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var in service.AcceptSessionRequestInput
	if c.Request.ContentLength > 0 && !bindJSON(c, &in, "invalid accept payload") {
		return
	}
	req, err := h.service.Accept(c.Request.Context(), claims.UserID, c.Param("id"), in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, req, nil)
}

// Decline godoc
// @Summary Decline a pending request
// @Description Refunds the escrowed tokens to the student
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body service.DeclineSessionRequestInput true "Reason"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /session-requests/{id}/decline [post]
func (h *SessionRequestHandler) Decline(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var in service.DeclineSessionRequestInput
	if !bindJSON(c, &in, "invalid decline payload") {
		return
	}
	req, err := h.service.Decline(c.Request.Context(), claims.UserID, c.Param("id"), in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, req, nil)
}

// Cancel godoc
// @Summary Cancel own pending request
// @Tags Sessions
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /session-requests/{id}/cancel [post]
func (h *SessionRequestHandler) Cancel(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	req, err := h.service.Cancel(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, req, nil)
}

package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/pkg/response"
)

type studentService interface {
	Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.StudentDetail, error)
	Transactions(ctx context.Context, claims *models.JWTClaims, id string, page, pageSize int) ([]models.TokenTransaction, *models.Pagination, error)
	Children(ctx context.Context, parentID string) ([]models.StudentDetail, error)
}

// StudentHandler exposes student balances and ledgers.
type StudentHandler struct {
	service studentService
}

// NewStudentHandler constructs the handler.
func NewStudentHandler(svc studentService) *StudentHandler {
	return &StudentHandler{service: svc}
}

// Get godoc
// @Summary Get student
// @Description Student detail including token balance
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	student, err := h.service.Get(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, student, nil)
}

// Transactions godoc
// @Summary Token ledger
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/transactions [get]
func (h *StudentHandler) Transactions(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	page, size := pageParams(c)
	items, pagination, err := h.service.Transactions(c.Request.Context(), claims, c.Param("id"), page, size)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, items, pagination)
}

// Children godoc
// @Summary Parent's linked students
// @Tags Students
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /parents/me/children [get]
func (h *StudentHandler) Children(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	children, err := h.service.Children(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, children, nil)
}

package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/service"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/response"
)

type teacherService interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.TeacherListing, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.TeacherListing, error)
	UpdateOwnProfile(ctx context.Context, teacherID string, req service.UpdateTeacherProfileRequest) (*models.TeacherListing, error)
}

// TeacherHandler serves the teacher directory.
type TeacherHandler struct {
	service teacherService
}

// NewTeacherHandler constructs the handler.
func NewTeacherHandler(svc teacherService) *TeacherHandler {
	return &TeacherHandler{service: svc}
}

// List godoc
// @Summary Browse teachers
// @Tags Teachers
// @Produce json
// @Param subject query string false "Subject"
// @Param max_rate query number false "Maximum hourly rate"
// @Param verified_only query bool false "Only approved teachers"
// @Param search query string false "Name or bio search"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /teachers [get]
func (h *TeacherHandler) List(c *gin.Context) {
	var filter models.TeacherFilter
	filter.Page, filter.PageSize = pageParams(c)
	filter.Subject = c.Query("subject")
	filter.Search = c.Query("search")
	filter.SortBy = c.Query("sort_by")
	filter.SortOrder = c.Query("sort_order")
	if raw := c.Query("max_rate"); raw != "" {
		rate, err := strconv.ParseFloat(raw, 64)
		if err != nil || rate < 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "max_rate must be a positive number"))
			return
		}
		filter.MaxRate = &rate
	}
	if verified := optionalBool(c, "verified_only"); verified != nil {
		filter.VerifiedOnly = *verified
	}

	teachers, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, teachers, pagination)
}

// Get godoc
// @Summary Get teacher
// @Tags Teachers
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /teachers/{id} [get]
func (h *TeacherHandler) Get(c *gin.Context) {
	teacher, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, teacher, nil)
}

// UpdateMe godoc
// @Summary Update own teacher profile
// @Tags Teachers
// @Accept json
// @Produce json
// @Param payload body service.UpdateTeacherProfileRequest true "Teacher profile"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /teachers/me [patch]
func (h *TeacherHandler) UpdateMe(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	var req service.UpdateTeacherProfileRequest
	if !bindJSON(c, &req, "invalid teacher profile payload") {
		return
	}

	teacher, err := h.service.UpdateOwnProfile(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, teacher, nil)
}

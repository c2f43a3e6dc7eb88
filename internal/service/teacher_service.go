package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

const teacherCachePattern = "teachers:*"

type teacherRepository interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.TeacherListing, int, error)
	FindByID(ctx context.Context, id string) (*models.TeacherListing, error)
	UpdateProfile(ctx context.Context, teacher *models.Teacher) error
}

// UpdateTeacherProfileRequest edits the tutor facing fields of the caller's teacher row.
type UpdateTeacherProfileRequest struct {
	Bio             *string  `json:"bio" validate:"omitempty,max=2000"`
	HourlyRate      *float64 `json:"hourly_rate" validate:"omitempty,gte=0,lte=10000"`
	Subjects        []string `json:"subjects" validate:"omitempty,max=20,dive,min=1,max=60"`
	ExperienceYears *int     `json:"experience_years" validate:"omitempty,gte=0,lte=80"`
}

type cachedTeacherPage struct {
	Items []models.TeacherListing `json:"items"`
	Total int                     `json:"total"`
}

// TeacherService serves teacher browsing and self service profile edits.
type TeacherService struct {
	repo      teacherRepository
	cache     *CacheService
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeacherService constructs a TeacherService. cache may be nil.
func NewTeacherService(repo teacherRepository, cache *CacheService, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *TeacherService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &TeacherService{repo: repo, cache: cache, cacheTTL: cacheTTL, validator: validate, logger: logger}
}

// List returns teachers plus pagination data. Public browse results are cached.
func (s *TeacherService) List(ctx context.Context, filter models.TeacherFilter) ([]models.TeacherListing, *models.Pagination, error) {
	page, _, err := readThrough(ctx, s.cache, teacherListKey(filter), s.cacheTTL, func(ctx context.Context) (cachedTeacherPage, error) {
		teachers, total, err := s.repo.List(ctx, filter)
		if teachers == nil {
			teachers = []models.TeacherListing{}
		}
		return cachedTeacherPage{Items: teachers, Total: total}, err
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	return page.Items, paginationFor(filter.Page, filter.PageSize, page.Total), nil
}

// Get returns a teacher by id.
func (s *TeacherService) Get(ctx context.Context, id string) (*models.TeacherListing, error) {
	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	// Suspended teachers are hidden from the directory.
	if teacher.IsSuspended {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}
	return teacher, nil
}

// UpdateOwnProfile applies the provided fields to the caller's teacher row.
func (s *TeacherService) UpdateOwnProfile(ctx context.Context, teacherID string, req UpdateTeacherProfileRequest) (*models.TeacherListing, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher profile payload")
	}
	current, err := s.Get(ctx, teacherID)
	if err != nil {
		return nil, err
	}

	updated := current.Teacher
	if req.Bio != nil {
		updated.Bio = strings.TrimSpace(*req.Bio)
	}
	if req.HourlyRate != nil {
		updated.HourlyRate = *req.HourlyRate
	}
	if req.Subjects != nil {
		updated.Subjects = normalizeSubjects(req.Subjects)
	}
	if req.ExperienceYears != nil {
		updated.ExperienceYears = *req.ExperienceYears
	}

	if err := s.repo.UpdateProfile(ctx, &updated); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher profile")
	}
	s.invalidate(ctx)

	current.Teacher = updated
	return current, nil
}

func (s *TeacherService) invalidate(ctx context.Context) {
	s.cache.Invalidate(ctx, teacherCachePattern)
}

func teacherListKey(filter models.TeacherFilter) string {
	var maxRate, status string
	if filter.MaxRate != nil {
		maxRate = strconv.FormatFloat(*filter.MaxRate, 'f', 2, 64)
	}
	if filter.Status != nil {
		status = string(*filter.Status)
	}
	return makeCacheKey("teachers",
		"q="+strings.ToLower(strings.TrimSpace(filter.Search)),
		"s="+strings.ToLower(filter.Subject),
		"r="+maxRate,
		fmt.Sprintf("v=%t", filter.VerifiedOnly),
		"st="+status,
		fmt.Sprintf("p=%d/%d", filter.Page, filter.PageSize),
		"o="+filter.SortBy+" "+filter.SortOrder,
	)
}

func normalizeSubjects(subjects []string) []string {
	seen := make(map[string]struct{}, len(subjects))
	out := make([]string, 0, len(subjects))
	for _, subject := range subjects {
		subject = strings.TrimSpace(subject)
		key := strings.ToLower(subject)
		if subject == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, subject)
	}
	return out
}

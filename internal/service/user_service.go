package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.Profile, int, error)
	FindByID(ctx context.Context, id string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, user *models.Profile) error
}

type studentAccountReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	FindParent(ctx context.Context, id string) (*models.Parent, error)
}

// UserService exposes profile reads and self service edits.
type UserService struct {
	repo      userRepository
	teachers  teacherReader
	students  studentAccountReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, teachers teacherReader, students studentAccountReader, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, teachers: teachers, students: students, validator: validate, logger: logger}
}

// List returns paginated profiles and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.Profile, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a profile by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.Profile, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Me returns the signed in profile with its role extension.
func (s *UserService) Me(ctx context.Context, userID string) (*models.AccountDetail, error) {
	profile, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	detail := &models.AccountDetail{Profile: *profile}

	switch profile.Role {
	case models.RoleTeacher:
		teacher, err := s.teachers.FindByID(ctx, userID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher profile")
		}
		if teacher != nil {
			detail.Teacher = &teacher.Teacher
		}
	case models.RoleStudent:
		student, err := s.students.FindByID(ctx, userID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
		}
		if student != nil {
			detail.Student = &student.Student
		}
	case models.RoleParent:
		parent, err := s.students.FindParent(ctx, userID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load parent profile")
		}
		detail.Parent = parent
	}
	return detail, nil
}

// UpdateProfile edits the caller's display name and avatar.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) (*models.Profile, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}
	if req.FullName == nil && req.AvatarURL == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "nothing to update")
	}

	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		if name == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "full name cannot be blank")
		}
		user.FullName = name
	}
	if req.AvatarURL != nil {
		user.AvatarURL = trimOptional(req.AvatarURL)
	}

	if err := s.repo.UpdateProfile(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}
	return user, nil
}

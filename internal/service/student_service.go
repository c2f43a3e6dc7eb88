package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

type studentRepository interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	ListByParent(ctx context.Context, parentID string) ([]models.StudentDetail, error)
	ListTransactions(ctx context.Context, studentID string, page, pageSize int) ([]models.TokenTransaction, int, error)
}

// StudentService exposes student balances and token ledgers to the student, their parent and admins.
type StudentService struct {
	repo   studentRepository
	logger *zap.Logger
}

// NewStudentService constructs a StudentService.
func NewStudentService(repo studentRepository, logger *zap.Logger) *StudentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, logger: logger}
}

// Get returns the student with its token balance.
func (s *StudentService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.StudentDetail, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !canViewStudent(claims, student) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	return student, nil
}

// Transactions returns a page of the student's token ledger, newest first.
func (s *StudentService) Transactions(ctx context.Context, claims *models.JWTClaims, id string, page, pageSize int) ([]models.TokenTransaction, *models.Pagination, error) {
	if _, err := s.Get(ctx, claims, id); err != nil {
		return nil, nil, err
	}
	items, total, err := s.repo.ListTransactions(ctx, id, page, pageSize)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list token transactions")
	}
	return items, paginationFor(page, pageSize, total), nil
}

// Children lists the students linked to a parent.
func (s *StudentService) Children(ctx context.Context, parentID string) ([]models.StudentDetail, error) {
	children, err := s.repo.ListByParent(ctx, parentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list children")
	}
	if children == nil {
		children = []models.StudentDetail{}
	}
	return children, nil
}

func canViewStudent(claims *models.JWTClaims, student *models.StudentDetail) bool {
	if claims == nil {
		return false
	}
	switch claims.Role {
	case models.RoleAdmin:
		return true
	case models.RoleStudent:
		return claims.UserID == student.ID
	case models.RoleParent:
		return student.ParentID != nil && *student.ParentID == claims.UserID
	}
	return false
}

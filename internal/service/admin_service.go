package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

type adminUserStore interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.Profile, int, error)
	FindByID(ctx context.Context, id string) (*models.Profile, error)
	SetSuspended(ctx context.Context, id string, suspended bool) error
}

type teacherVerifier interface {
	FindByID(ctx context.Context, id string) (*models.TeacherListing, error)
	SetVerification(ctx context.Context, id string, status models.VerificationStatus, note *string) error
}

type paymentLister interface {
	List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentView, int, error)
}

type moderationFeed interface {
	ListForModeration(ctx context.Context, filter models.MessageFilter) ([]models.MessageView, int, error)
}

type messageModerator interface {
	Moderate(ctx context.Context, messageID string) (*models.Message, error)
}

// RejectTeacherRequest carries the reviewer's reason.
type RejectTeacherRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// ModerateMessageRequest carries the moderator's reason.
type ModerateMessageRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// AdminServiceParams groups constructor dependencies.
type AdminServiceParams struct {
	Users         adminUserStore
	Teachers      teacherVerifier
	Payments      paymentLister
	Messages      moderationFeed
	Moderator     messageModerator
	Notifications notificationCreator
	Audit         auditLogger
	Sessions      sessionTerminator
	Cache         cacheInvalidator
	Validator     *validator.Validate
	Logger        *zap.Logger
}

// AdminService implements the back-office operations: user oversight, teacher
// verification, payment oversight and content moderation.
type AdminService struct {
	users         adminUserStore
	teachers      teacherVerifier
	payments      paymentLister
	messages      moderationFeed
	moderator     messageModerator
	notifications notificationCreator
	audit         auditLogger
	sessions      sessionTerminator
	cache         cacheInvalidator
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewAdminService constructs an AdminService.
func NewAdminService(params AdminServiceParams) *AdminService {
	if params.Validator == nil {
		params.Validator = validator.New()
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if params.Cache == nil {
		params.Cache = (*CacheService)(nil)
	}
	return &AdminService{
		users:         params.Users,
		teachers:      params.Teachers,
		payments:      params.Payments,
		messages:      params.Messages,
		moderator:     params.Moderator,
		notifications: params.Notifications,
		audit:         params.Audit,
		sessions:      params.Sessions,
		cache:         params.Cache,
		validator:     params.Validator,
		logger:        params.Logger,
	}
}

// ListUsers returns profiles for the user management screen.
func (s *AdminService) ListUsers(ctx context.Context, filter models.UserFilter) ([]models.Profile, *models.Pagination, error) {
	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, paginationFor(filter.Page, filter.PageSize, total), nil
}

// ToggleUserSuspension flips the suspension flag of a user. Suspending closes
// every live realtime session of that user.
func (s *AdminService) ToggleUserSuspension(ctx context.Context, actor *models.JWTClaims, userID string) (*models.Profile, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.UserID == userID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "administrators cannot suspend themselves")
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if user.Role == models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "administrators cannot be suspended")
	}

	suspend := !user.IsSuspended
	if err := s.users.SetSuspended(ctx, userID, suspend); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update suspension")
	}
	user.IsSuspended = suspend
	s.cache.Invalidate(ctx, accountCacheKey(userID), teacherCachePattern)

	action := models.AuditActionUserReinstate
	note := &models.Notification{
		UserID:   userID,
		Type:     models.NotificationAccountReinstated,
		Title:    "Account reinstated",
		Message:  "Your account has been reinstated. You can sign in again.",
		Priority: models.PriorityHigh,
	}
	if suspend {
		action = models.AuditActionUserSuspend
		note.Type = models.NotificationAccountSuspended
		note.Title = "Account suspended"
		note.Message = "Your account has been suspended by an administrator."
		if s.sessions != nil {
			closed := s.sessions.DisconnectUser(userID)
			s.logger.Info("closed realtime sessions of suspended user", zap.String("user_id", userID), zap.Int("sessions", closed))
		}
	}
	s.recordAudit(ctx, actor, action, "profiles", userID, map[string]bool{"is_suspended": !suspend}, map[string]bool{"is_suspended": suspend})
	s.notify(ctx, note)
	return user, nil
}

// ApproveTeacherVerification marks a teacher as verified.
func (s *AdminService) ApproveTeacherVerification(ctx context.Context, actor *models.JWTClaims, teacherID string) (*models.TeacherListing, error) {
	return s.review(ctx, actor, teacherID, models.VerificationApproved, nil)
}

// RejectTeacherVerification rejects a teacher's verification with a reason.
func (s *AdminService) RejectTeacherVerification(ctx context.Context, actor *models.JWTClaims, teacherID string, req RejectTeacherRequest) (*models.TeacherListing, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "a rejection reason is required")
	}
	return s.review(ctx, actor, teacherID, models.VerificationRejected, &req.Reason)
}

func (s *AdminService) review(ctx context.Context, actor *models.JWTClaims, teacherID string, status models.VerificationStatus, reason *string) (*models.TeacherListing, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	teacher, err := s.teachers.FindByID(ctx, teacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	previous := teacher.VerificationStatus
	if err := s.teachers.SetVerification(ctx, teacherID, status, reason); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update verification")
	}
	teacher.VerificationStatus = status
	teacher.VerificationNote = reason

	action := models.AuditActionTeacherApprove
	note := &models.Notification{
		UserID:   teacherID,
		Type:     models.NotificationVerificationApproved,
		Title:    "Verification approved",
		Message:  "Your teacher profile is verified and visible to students.",
		Priority: models.PriorityHigh,
	}
	if status == models.VerificationRejected {
		action = models.AuditActionTeacherReject
		note.Type = models.NotificationVerificationRejected
		note.Title = "Verification rejected"
		note.Message = fmt.Sprintf("Your verification was rejected: %s", *reason)
	}
	s.recordAudit(ctx, actor, action, "teachers", teacherID,
		map[string]string{"verification_status": string(previous)},
		map[string]string{"verification_status": string(status)})
	s.notify(ctx, note)
	s.cache.Invalidate(ctx, teacherCachePattern, dashboardCachePattern)
	return teacher, nil
}

// ListPayments returns payments for oversight.
func (s *AdminService) ListPayments(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentView, *models.Pagination, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "date range end precedes start")
	}
	payments, total, err := s.payments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	return payments, paginationFor(filter.Page, filter.PageSize, total), nil
}

// ListRecentMessages returns the moderation feed, newest first.
func (s *AdminService) ListRecentMessages(ctx context.Context, filter models.MessageFilter) ([]models.MessageView, *models.Pagination, error) {
	messages, total, err := s.messages.ListForModeration(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list messages")
	}
	return messages, paginationFor(filter.Page, filter.PageSize, total), nil
}

// ModerateMessage soft deletes a message on behalf of an administrator.
func (s *AdminService) ModerateMessage(ctx context.Context, actor *models.JWTClaims, messageID string, req ModerateMessageRequest) (*models.Message, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid moderation payload")
	}
	msg, err := s.moderator.Moderate(ctx, messageID)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actor, models.AuditActionMessageModerate, "messages", messageID,
		map[string]string{"content": msg.Content, "sender_id": msg.SenderID},
		map[string]string{"reason": strings.TrimSpace(req.Reason)})
	return msg, nil
}

// RecordExport audits an export request.
func (s *AdminService) RecordExport(ctx context.Context, actor *models.JWTClaims, job *models.ExportJob) {
	if job == nil {
		return
	}
	s.recordAudit(ctx, actor, models.AuditActionPaymentsExport, "payments", job.ID, nil, map[string]string{"format": job.Format})
}

func (s *AdminService) notify(ctx context.Context, note *models.Notification) {
	if s.notifications == nil {
		return
	}
	if _, err := s.notifications.Create(ctx, note); err != nil {
		s.logger.Warn("failed to notify user", zap.String("user_id", note.UserID), zap.String("type", note.Type), zap.Error(err))
	}
}

func (s *AdminService) recordAudit(ctx context.Context, actor *models.JWTClaims, action, resource, resourceID string, oldValues, newValues interface{}) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     userIDPtr(actor),
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
		IPAddress:  "system",
		UserAgent:  "admin-service",
		CreatedAt:  time.Now().UTC(),
	}
	if oldValues != nil {
		entry.OldValues, _ = json.Marshal(oldValues)
	}
	if newValues != nil {
		entry.NewValues, _ = json.Marshal(newValues)
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

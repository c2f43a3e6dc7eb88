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
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/repository"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

const expirySweepBatch = 100

type sessionRequestRepository interface {
	CreateWithDebit(ctx context.Context, req *models.SessionRequest, note *models.Notification) (int, error)
	Transition(ctx context.Context, t models.Transition, note func(*models.SessionRequest) *models.Notification) (*models.SessionRequest, error)
	FindByID(ctx context.Context, id string) (*models.SessionRequestView, error)
	List(ctx context.Context, filter models.SessionRequestFilter) ([]models.SessionRequestView, int, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error)
}

type teacherReader interface {
	FindByID(ctx context.Context, id string) (*models.TeacherListing, error)
}

type notificationDeliverer interface {
	Deliver(ctx context.Context, notes ...*models.Notification)
}

type settingsReader interface {
	IntValue(ctx context.Context, key string, fallback int) int
}

// CreateSessionRequestInput is the student's booking proposal.
type CreateSessionRequestInput struct {
	TeacherID      string    `json:"teacher_id" validate:"required"`
	Subject        string    `json:"subject" validate:"required,max=120"`
	Message        string    `json:"message" validate:"max=2000"`
	RequestedStart time.Time `json:"requested_start" validate:"required"`
	DurationHours  float64   `json:"duration_hours" validate:"required,gt=0"`
}

// AcceptSessionRequestInput carries the teacher's optional reply.
type AcceptSessionRequestInput struct {
	Response *string `json:"response" validate:"omitempty,max=2000"`
}

// DeclineSessionRequestInput carries the decline reason.
type DeclineSessionRequestInput struct {
	Reason   string  `json:"reason" validate:"required,max=200"`
	Response *string `json:"response" validate:"omitempty,max=2000"`
}

// SessionRequestResult is returned after a successful booking.
type SessionRequestResult struct {
	Request *models.SessionRequest `json:"request"`
	Balance int                    `json:"balance"`
}

// SessionRequestConfig holds the workflow defaults; system settings override
// cost and expiry at runtime.
type SessionRequestConfig struct {
	TokenCost        int
	RequestTTL       time.Duration
	MaxDurationHours float64
}

// SessionRequestService runs the token escrowed booking workflow.
type SessionRequestService struct {
	repo      sessionRequestRepository
	teachers  teacherReader
	notifier  notificationDeliverer
	settings  settingsReader
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    SessionRequestConfig
	now       func() time.Time
}

// NewSessionRequestService constructs the service.
func NewSessionRequestService(repo sessionRequestRepository, teachers teacherReader, notifier notificationDeliverer, settings settingsReader, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg SessionRequestConfig) *SessionRequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.TokenCost <= 0 {
		cfg.TokenCost = 10
	}
	if cfg.RequestTTL <= 0 {
		cfg.RequestTTL = 7 * 24 * time.Hour
	}
	if cfg.MaxDurationHours <= 0 {
		cfg.MaxDurationHours = 8
	}
	return &SessionRequestService{
		repo:      repo,
		teachers:  teachers,
		notifier:  notifier,
		settings:  settings,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		config:    cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create books a session with a teacher. The cost is debited, the request row,
// the ledger entry and the teacher's notification are written in one transaction.
func (s *SessionRequestService) Create(ctx context.Context, studentID string, in CreateSessionRequestInput) (*SessionRequestResult, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session request payload")
	}
	now := s.now()
	if !in.RequestedStart.After(now) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "requested start must be in the future")
	}
	if in.DurationHours > s.config.MaxDurationHours {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duration cannot exceed %.0f hours", s.config.MaxDurationHours))
	}
	if in.TeacherID == studentID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot request a session with yourself")
	}

	teacher, err := s.teachers.FindByID(ctx, in.TeacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if !teacher.IsActive || teacher.IsSuspended || teacher.VerificationStatus != models.VerificationApproved {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teacher is not accepting session requests")
	}

	cost := s.tokenCost(ctx)
	start := in.RequestedStart.UTC()
	req := &models.SessionRequest{
		StudentID:      studentID,
		TeacherID:      in.TeacherID,
		Subject:        strings.TrimSpace(in.Subject),
		Message:        strings.TrimSpace(in.Message),
		RequestedStart: start,
		RequestedEnd:   start.Add(time.Duration(in.DurationHours * float64(time.Hour))),
		DurationHours:  in.DurationHours,
		TokensRequired: cost,
		ExpiresAt:      now.Add(s.requestTTL(ctx)),
	}
	req.ID = uuid.NewString()
	req.Status = models.SessionRequestPending
	note := requestNotification(req, in.TeacherID, models.NotificationSessionRequest,
		"New session request",
		fmt.Sprintf("A student requested a %s session on %s", req.Subject, start.Format("Jan 2 15:04 MST")), models.PriorityHigh)
	balance, err := s.repo.CreateWithDebit(ctx, req, note)
	if err != nil {
		s.metrics.RecordSessionRequest("rejected")
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		case errors.Is(err, repository.ErrInsufficientBalance):
			return nil, appErrors.Clone(appErrors.ErrInsufficientTokens, fmt.Sprintf("a session request costs %d tokens, balance is %d", cost, balance))
		case errors.Is(err, repository.ErrPendingExists):
			return nil, appErrors.Clone(appErrors.ErrDuplicateRequest, "you already have a pending request with this teacher")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session request")
	}

	s.metrics.RecordSessionRequest("created")
	s.notifier.Deliver(ctx, note)
	s.logger.Info("session request created",
		zap.String("request_id", req.ID),
		zap.String("student_id", studentID),
		zap.String("teacher_id", in.TeacherID),
		zap.Int("balance", balance),
	)
	return &SessionRequestResult{Request: req, Balance: balance}, nil
}

// Accept confirms a pending request. No tokens move.
func (s *SessionRequestService) Accept(ctx context.Context, teacherID, requestID string, in AcceptSessionRequestInput) (*models.SessionRequest, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid accept payload")
	}
	if err := s.authorize(ctx, requestID, func(r *models.SessionRequestView) bool { return r.TeacherID == teacherID }); err != nil {
		return nil, err
	}
	return s.transition(ctx, models.Transition{
		RequestID: requestID,
		ActorID:   teacherID,
		To:        models.SessionRequestAccepted,
		Response:  trimOptional(in.Response),
	}, func(r *models.SessionRequest) *models.Notification {
		return requestNotification(r, r.StudentID, models.NotificationSessionRequestAccepted,
			"Session request accepted",
			fmt.Sprintf("Your %s session request was accepted", r.Subject), models.PriorityHigh)
	})
}

// Decline rejects a pending request and refunds the escrowed tokens.
func (s *SessionRequestService) Decline(ctx context.Context, teacherID, requestID string, in DeclineSessionRequestInput) (*models.SessionRequest, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decline payload")
	}
	if err := s.authorize(ctx, requestID, func(r *models.SessionRequestView) bool { return r.TeacherID == teacherID }); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(in.Reason)
	return s.transition(ctx, models.Transition{
		RequestID: requestID,
		ActorID:   teacherID,
		To:        models.SessionRequestDeclined,
		Reason:    &reason,
		Response:  trimOptional(in.Response),
	}, func(r *models.SessionRequest) *models.Notification {
		return requestNotification(r, r.StudentID, models.NotificationSessionRequestDeclined,
			"Session request declined",
			fmt.Sprintf("Your %s session request was declined. %d tokens were refunded", r.Subject, r.TokensRequired), models.PriorityNormal)
	})
}

// Cancel withdraws the student's own pending request and refunds it.
func (s *SessionRequestService) Cancel(ctx context.Context, studentID, requestID string) (*models.SessionRequest, error) {
	if err := s.authorize(ctx, requestID, func(r *models.SessionRequestView) bool { return r.StudentID == studentID }); err != nil {
		return nil, err
	}
	return s.transition(ctx, models.Transition{
		RequestID: requestID,
		ActorID:   studentID,
		To:        models.SessionRequestCancelled,
	}, func(r *models.SessionRequest) *models.Notification {
		return requestNotification(r, r.TeacherID, models.NotificationSessionRequestCanceled,
			"Session request cancelled",
			fmt.Sprintf("A student cancelled their %s session request", r.Subject), models.PriorityLow)
	})
}

// ExpirePending moves every pending request past its expiry to expired with a
// refund and returns how many were expired.
func (s *SessionRequestService) ExpirePending(ctx context.Context) (int, error) {
	expired := 0
	for {
		ids, err := s.repo.ListExpired(ctx, s.now(), expirySweepBatch)
		if err != nil {
			return expired, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list expired requests")
		}
		for _, id := range ids {
			_, err := s.transition(ctx, models.Transition{
				RequestID: id,
				ActorID:   "system",
				To:        models.SessionRequestExpired,
			}, func(r *models.SessionRequest) *models.Notification {
				return requestNotification(r, r.StudentID, models.NotificationSessionRequestExpired,
					"Session request expired",
					fmt.Sprintf("Your %s session request expired without an answer. %d tokens were refunded", r.Subject, r.TokensRequired), models.PriorityNormal)
			})
			if err != nil {
				if appErrors.Is(err, appErrors.ErrInvalidTransition) {
					continue
				}
				return expired, err
			}
			expired++
		}
		if len(ids) < expirySweepBatch {
			break
		}
	}
	if expired > 0 {
		s.logger.Info("expired pending session requests", zap.Int("count", expired))
	}
	return expired, nil
}

// Get returns a request visible to the caller.
func (s *SessionRequestService) Get(ctx context.Context, claims *models.JWTClaims, requestID string) (*models.SessionRequestView, error) {
	req, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if claims.Role != models.RoleAdmin && req.StudentID != claims.UserID && req.TeacherID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "session request not found")
	}
	return req, nil
}

// ListForStudent returns the student's requests, newest first.
func (s *SessionRequestService) ListForStudent(ctx context.Context, studentID string, filter models.SessionRequestFilter) ([]models.SessionRequestView, *models.Pagination, error) {
	filter.StudentID = studentID
	filter.TeacherID = ""
	return s.list(ctx, filter)
}

// ListForTeacher returns requests addressed to the teacher, optionally by status.
func (s *SessionRequestService) ListForTeacher(ctx context.Context, teacherID string, filter models.SessionRequestFilter) ([]models.SessionRequestView, *models.Pagination, error) {
	filter.TeacherID = teacherID
	filter.StudentID = ""
	return s.list(ctx, filter)
}

func (s *SessionRequestService) list(ctx context.Context, filter models.SessionRequestFilter) ([]models.SessionRequestView, *models.Pagination, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list session requests")
	}
	return items, paginationFor(filter.Page, filter.PageSize, total), nil
}

func (s *SessionRequestService) load(ctx context.Context, requestID string) (*models.SessionRequestView, error) {
	req, err := s.repo.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session request")
	}
	return req, nil
}

func (s *SessionRequestService) authorize(ctx context.Context, requestID string, allowed func(*models.SessionRequestView) bool) error {
	req, err := s.load(ctx, requestID)
	if err != nil {
		return err
	}
	if !allowed(req) {
		return appErrors.Clone(appErrors.ErrForbidden, "not a party to this session request")
	}
	return nil
}

func (s *SessionRequestService) transition(ctx context.Context, t models.Transition, build func(*models.SessionRequest) *models.Notification) (*models.SessionRequest, error) {
	t.At = s.now()
	var note *models.Notification
	updated, err := s.repo.Transition(ctx, t, func(r *models.SessionRequest) *models.Notification {
		note = build(r)
		return note
	})
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session request not found")
		case errors.Is(err, repository.ErrNotPending):
			current := "answered"
			if updated != nil {
				current = string(updated.Status)
			}
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("request is already %s", current))
		case errors.Is(err, repository.ErrRequestExpired):
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "request has expired")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session request")
	}

	s.metrics.RecordSessionRequest(string(t.To))
	if note != nil {
		s.notifier.Deliver(ctx, note)
	}
	s.logger.Info("session request transitioned",
		zap.String("request_id", updated.ID),
		zap.String("status", string(updated.Status)),
		zap.String("actor_id", t.ActorID),
	)
	return updated, nil
}

func (s *SessionRequestService) tokenCost(ctx context.Context) int {
	if s.settings == nil {
		return s.config.TokenCost
	}
	if cost := s.settings.IntValue(ctx, models.SettingSessionTokenCost, s.config.TokenCost); cost > 0 {
		return cost
	}
	return s.config.TokenCost
}

func (s *SessionRequestService) requestTTL(ctx context.Context) time.Duration {
	if s.settings == nil {
		return s.config.RequestTTL
	}
	fallback := int(s.config.RequestTTL / (24 * time.Hour))
	if days := s.settings.IntValue(ctx, models.SettingRequestExpiryDays, fallback); days > 0 {
		return time.Duration(days) * 24 * time.Hour
	}
	return s.config.RequestTTL
}

func requestNotification(r *models.SessionRequest, userID, notificationType, title, message string, priority models.NotificationPriority) *models.Notification {
	data, _ := json.Marshal(map[string]string{
		"request_id": r.ID,
		"student_id": r.StudentID,
		"teacher_id": r.TeacherID,
		"status":     string(r.Status),
	})
	return &models.Notification{
		UserID:   userID,
		Type:     notificationType,
		Title:    title,
		Message:  message,
		Data:     data,
		Priority: priority,
	}
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

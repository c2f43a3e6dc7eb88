package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/realtime"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/jobs"
	"github.com/noah-isme/tutorhub-api/pkg/push"
)

// JobTypePushNotification delivers a stored notification to the user's browsers.
const JobTypePushNotification = "push.notification"

// NotificationTypes lists every type a user can tune browser delivery for.
var NotificationTypes = []string{
	models.NotificationNewMessage,
	models.NotificationSessionRequest,
	models.NotificationSessionRequestAccepted,
	models.NotificationSessionRequestDeclined,
	models.NotificationSessionRequestCanceled,
	models.NotificationSessionRequestExpired,
	models.NotificationVerificationApproved,
	models.NotificationVerificationRejected,
	models.NotificationAccountSuspended,
	models.NotificationAccountReinstated,
	models.NotificationSystem,
}

type notificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	List(ctx context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, int, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkAsRead(ctx context.Context, id, userID string) error
	MarkAllAsRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, id, userID string) error
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
	ListPreferences(ctx context.Context, userID string) ([]models.NotificationPreference, error)
	UpsertPreference(ctx context.Context, pref *models.NotificationPreference) error
	BrowserEnabled(ctx context.Context, userID, notificationType string) (bool, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, channel string, ev realtime.Event) error
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

type pushGateway interface {
	Enabled() bool
	PublicKey() string
	Subscribe(ctx context.Context, userID string, sub push.Subscription) error
	Unsubscribe(ctx context.Context, userID, endpoint string) error
	Send(ctx context.Context, userID string, msg push.Message) (int, error)
}

// UpdatePreferenceRequest toggles browser delivery for one notification type.
type UpdatePreferenceRequest struct {
	Type           string `json:"type" validate:"required"`
	BrowserEnabled *bool  `json:"browser_enabled" validate:"required"`
}

// NotificationService stores notifications and fans them out to realtime
// subscribers and browser push.
type NotificationService struct {
	repo      notificationRepository
	publisher eventPublisher
	queue     jobEnqueuer
	push      pushGateway
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewNotificationService constructs the service. publisher, queue and push are optional.
func NewNotificationService(repo notificationRepository, publisher eventPublisher, queue jobEnqueuer, pusher pushGateway, validate *validator.Validate, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &NotificationService{
		repo:      repo,
		publisher: publisher,
		queue:     queue,
		push:      pusher,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create persists n and delivers it.
func (s *NotificationService) Create(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	if n == nil || strings.TrimSpace(n.UserID) == "" || strings.TrimSpace(n.Type) == "" || strings.TrimSpace(n.Title) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "notification requires user, type and title")
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create notification")
	}
	s.Deliver(ctx, n)
	return n, nil
}

// Deliver publishes already stored notifications and queues browser push where
// the recipient's preference allows it. Failures are logged, never returned.
func (s *NotificationService) Deliver(ctx context.Context, notes ...*models.Notification) {
	for _, n := range notes {
		if n == nil {
			continue
		}
		s.publish(ctx, n.UserID, realtime.EventInsert, n)
		s.enqueuePush(ctx, n)
	}
}

// List returns a page of live notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, error) {
	items, total, err := s.repo.List(ctx, userID, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return items, paginationFor(filter.Page, filter.PageSize, total), nil
}

// UnreadCount returns the number of unread live notifications.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	count, err := s.repo.UnreadCount(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count notifications")
	}
	return count, nil
}

// MarkAsRead flags one of the user's notifications as read.
func (s *NotificationService) MarkAsRead(ctx context.Context, id, userID string) error {
	if err := s.repo.MarkAsRead(ctx, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	s.publish(ctx, userID, realtime.EventUpdate, map[string]interface{}{"id": id, "is_read": true})
	return nil
}

// MarkAllAsRead flags every notification of the user as read.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	updated, err := s.repo.MarkAllAsRead(ctx, userID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	s.publish(ctx, userID, realtime.EventUpdate, map[string]interface{}{"all": true, "is_read": true})
	return updated, nil
}

// Delete removes one of the user's notifications.
func (s *NotificationService) Delete(ctx context.Context, id, userID string) error {
	if err := s.repo.Delete(ctx, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete notification")
	}
	s.publish(ctx, userID, realtime.EventDelete, map[string]string{"id": id})
	return nil
}

// GetPreferences returns the delivery preference for every known type,
// defaulting to enabled where the user never chose.
func (s *NotificationService) GetPreferences(ctx context.Context, userID string) ([]models.NotificationPreference, error) {
	stored, err := s.repo.ListPreferences(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load preferences")
	}
	byType := make(map[string]models.NotificationPreference, len(stored))
	for _, pref := range stored {
		byType[pref.Type] = pref
	}
	prefs := make([]models.NotificationPreference, 0, len(NotificationTypes))
	for _, t := range NotificationTypes {
		if pref, ok := byType[t]; ok {
			prefs = append(prefs, pref)
			continue
		}
		prefs = append(prefs, models.NotificationPreference{UserID: userID, Type: t, BrowserEnabled: true})
	}
	return prefs, nil
}

// UpdatePreference stores the browser delivery choice for one type.
func (s *NotificationService) UpdatePreference(ctx context.Context, userID string, req UpdatePreferenceRequest) (*models.NotificationPreference, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid preference payload")
	}
	if !knownNotificationType(req.Type) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown notification type %q", req.Type))
	}
	pref := &models.NotificationPreference{
		UserID:         userID,
		Type:           req.Type,
		BrowserEnabled: *req.BrowserEnabled,
		UpdatedAt:      s.now(),
	}
	if err := s.repo.UpsertPreference(ctx, pref); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update preference")
	}
	return pref, nil
}

// PurgeExpired deletes notifications whose expiry has passed.
func (s *NotificationService) PurgeExpired(ctx context.Context) (int64, error) {
	removed, err := s.repo.PurgeExpired(ctx, s.now())
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to purge notifications")
	}
	if removed > 0 {
		s.logger.Info("purged expired notifications", zap.Int64("count", removed))
	}
	return removed, nil
}

// PushPublicKey returns the VAPID key browsers subscribe with.
func (s *NotificationService) PushPublicKey() (string, error) {
	if s.push == nil || !s.push.Enabled() {
		return "", appErrors.Clone(appErrors.ErrServiceDisabled, "browser push is not configured")
	}
	return s.push.PublicKey(), nil
}

// RegisterPushSubscription stores a browser push endpoint for the user.
func (s *NotificationService) RegisterPushSubscription(ctx context.Context, userID string, sub push.Subscription) error {
	if s.push == nil || !s.push.Enabled() {
		return appErrors.Clone(appErrors.ErrServiceDisabled, "browser push is not configured")
	}
	if err := s.validator.Struct(sub); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid push subscription")
	}
	if err := s.push.Subscribe(ctx, userID, sub); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store push subscription")
	}
	return nil
}

// RemovePushSubscription forgets a browser push endpoint.
func (s *NotificationService) RemovePushSubscription(ctx context.Context, userID, endpoint string) error {
	if s.push == nil || !s.push.Enabled() {
		return appErrors.Clone(appErrors.ErrServiceDisabled, "browser push is not configured")
	}
	if strings.TrimSpace(endpoint) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "endpoint is required")
	}
	if err := s.push.Unsubscribe(ctx, userID, endpoint); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove push subscription")
	}
	return nil
}

// HandlePushJob is the job queue handler for JobTypePushNotification.
func (s *NotificationService) HandlePushJob(ctx context.Context, job jobs.Job) error {
	n, ok := job.Payload.(*models.Notification)
	if !ok || n == nil {
		return fmt.Errorf("push job %s: unexpected payload %T", job.ID, job.Payload)
	}
	if s.push == nil || !s.push.Enabled() {
		return nil
	}
	msg := push.Message{
		Title: n.Title,
		Body:  n.Message,
		URL:   "/notifications",
		Tag:   n.Type,
		Data:  map[string]string{"notification_id": n.ID, "type": n.Type},
	}
	delivered, err := s.push.Send(ctx, n.UserID, msg)
	if err != nil {
		return err
	}
	s.logger.Debug("push delivered", zap.String("notification_id", n.ID), zap.Int("endpoints", delivered))
	return nil
}

func (s *NotificationService) publish(ctx context.Context, userID, eventType string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	channel := realtime.NotificationsChannel(userID)
	ev, err := realtime.NewEvent(eventType, channel, payload)
	if err != nil {
		s.logger.Warn("build notification event", zap.Error(err))
		return
	}
	if err := s.publisher.Publish(ctx, channel, ev); err != nil {
		s.logger.Warn("publish notification event", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *NotificationService) enqueuePush(ctx context.Context, n *models.Notification) {
	if s.queue == nil || s.push == nil || !s.push.Enabled() {
		return
	}
	enabled, err := s.repo.BrowserEnabled(ctx, n.UserID, n.Type)
	if err != nil {
		s.logger.Warn("load push preference", zap.String("user_id", n.UserID), zap.Error(err))
		return
	}
	if !enabled {
		return
	}
	if err := s.queue.Enqueue(jobs.Job{Type: JobTypePushNotification, Payload: n}); err != nil {
		s.logger.Warn("enqueue push notification", zap.String("notification_id", n.ID), zap.Error(err))
	}
}

func knownNotificationType(t string) bool {
	for _, known := range NotificationTypes {
		if known == t {
			return true
		}
	}
	return false
}

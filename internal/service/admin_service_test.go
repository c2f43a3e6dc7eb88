package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/realtime"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

type memoryAdminUsers struct {
	users  map[string]*models.Profile
	filter models.UserFilter
}

func (m *memoryAdminUsers) List(ctx context.Context, filter models.UserFilter) ([]models.Profile, int, error) {
	m.filter = filter
	var out []models.Profile
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (m *memoryAdminUsers) FindByID(ctx context.Context, id string) (*models.Profile, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (m *memoryAdminUsers) SetSuspended(ctx context.Context, id string, suspended bool) error {
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.IsSuspended = suspended
	return nil
}

type memoryVerifier struct {
	teachers map[string]*models.TeacherListing
}

func (m *memoryVerifier) FindByID(ctx context.Context, id string) (*models.TeacherListing, error) {
	t, ok := m.teachers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (m *memoryVerifier) SetVerification(ctx context.Context, id string, status models.VerificationStatus, note *string) error {
	t, ok := m.teachers[id]
	if !ok {
		return sql.ErrNoRows
	}
	t.VerificationStatus = status
	t.VerificationNote = note
	return nil
}

type stubPaymentLister struct {
	rows []models.PaymentView
}

func (s stubPaymentLister) List(ctx context.Context, filter models.PaymentFilter) ([]models.PaymentView, int, error) {
	return s.rows, len(s.rows), nil
}

type stubModerationFeed struct {
	rows []models.MessageView
}

func (s stubModerationFeed) ListForModeration(ctx context.Context, filter models.MessageFilter) ([]models.MessageView, int, error) {
	return s.rows, len(s.rows), nil
}

type adminFixture struct {
	svc       *AdminService
	users     *memoryAdminUsers
	teachers  *memoryVerifier
	messaging *messagingFixture
	audit     *recordingAudit
	sessions  *fakeTerminator
	cache     *recordingInvalidator
	notifier  *recordingNotifier
}

func newAdminFixture() *adminFixture {
	f := &adminFixture{
		users: &memoryAdminUsers{users: map[string]*models.Profile{
			"student-1": {ID: "student-1", Role: models.RoleStudent, IsActive: true},
			"admin-2":   {ID: "admin-2", Role: models.RoleAdmin, IsActive: true},
		}},
		teachers: &memoryVerifier{teachers: map[string]*models.TeacherListing{
			"teacher-1": {Teacher: models.Teacher{ID: "teacher-1", VerificationStatus: models.VerificationPending}, FullName: "Tina Teacher"},
		}},
		messaging: newMessagingFixture(),
		audit:     &recordingAudit{},
		sessions:  &fakeTerminator{},
		cache:     &recordingInvalidator{},
		notifier:  &recordingNotifier{},
	}
	f.svc = NewAdminService(AdminServiceParams{
		Users:         f.users,
		Teachers:      f.teachers,
		Payments:      stubPaymentLister{rows: samplePayments()},
		Messages:      stubModerationFeed{rows: []models.MessageView{{Message: models.Message{ID: "m1", Content: "hello"}}}},
		Moderator:     f.messaging.svc,
		Notifications: f.notifier,
		Audit:         f.audit,
		Sessions:      f.sessions,
		Cache:         f.cache,
	})
	return f
}

func TestToggleUserSuspension(t *testing.T) {
	f := newAdminFixture()
	ctx := context.Background()

	user, err := f.svc.ToggleUserSuspension(ctx, adminClaims, "student-1")
	require.NoError(t, err)
	assert.True(t, user.IsSuspended)
	assert.True(t, f.users.users["student-1"].IsSuspended)
	assert.Equal(t, []string{"student-1"}, f.sessions.disconnected)
	require.Len(t, f.notifier.ofType(models.NotificationAccountSuspended), 1)
	assert.Equal(t, []string{accountCacheKey("student-1"), teacherCachePattern}, f.cache.patterns)

	user, err = f.svc.ToggleUserSuspension(ctx, adminClaims, "student-1")
	require.NoError(t, err)
	assert.False(t, user.IsSuspended)
	assert.Len(t, f.sessions.disconnected, 1)
	require.Len(t, f.notifier.ofType(models.NotificationAccountReinstated), 1)
	assert.Equal(t, []string{models.AuditActionUserSuspend, models.AuditActionUserReinstate}, f.audit.actions())

	_, err = f.svc.ToggleUserSuspension(ctx, adminClaims, "admin-2")
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
	_, err = f.svc.ToggleUserSuspension(ctx, adminClaims, "admin-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	_, err = f.svc.ToggleUserSuspension(ctx, adminClaims, "nobody")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestTeacherVerificationReview(t *testing.T) {
	f := newAdminFixture()
	ctx := context.Background()

	_, err := f.svc.RejectTeacherVerification(ctx, adminClaims, "teacher-1", RejectTeacherRequest{Reason: "   "})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	rejected, err := f.svc.RejectTeacherVerification(ctx, adminClaims, "teacher-1", RejectTeacherRequest{Reason: "Certificate unreadable"})
	require.NoError(t, err)
	assert.Equal(t, models.VerificationRejected, rejected.VerificationStatus)
	notes := f.notifier.ofType(models.NotificationVerificationRejected)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0].Message, "Certificate unreadable")

	approved, err := f.svc.ApproveTeacherVerification(ctx, adminClaims, "teacher-1")
	require.NoError(t, err)
	assert.Equal(t, models.VerificationApproved, approved.VerificationStatus)
	assert.Equal(t, models.VerificationApproved, f.teachers.teachers["teacher-1"].VerificationStatus)
	assert.Len(t, f.notifier.ofType(models.NotificationVerificationApproved), 1)

	assert.Equal(t, []string{models.AuditActionTeacherReject, models.AuditActionTeacherApprove}, f.audit.actions())
	assert.Contains(t, f.cache.patterns, teacherCachePattern)
	assert.Contains(t, f.cache.patterns, dashboardCachePattern)

	_, err = f.svc.ApproveTeacherVerification(ctx, adminClaims, "teacher-9")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestModerateMessage(t *testing.T) {
	f := newAdminFixture()
	ctx := context.Background()
	student := f.messaging.svc.ForRole(models.RoleStudent)
	conv, err := student.GetOrCreateTeacherConversation(ctx, "student-1", "teacher-1")
	require.NoError(t, err)
	msg, err := student.SendMessage(ctx, SendMessageInput{ConversationID: conv.ID, SenderID: "student-1", Content: "spam spam"})
	require.NoError(t, err)

	moderated, err := f.svc.ModerateMessage(ctx, adminClaims, msg.ID, ModerateMessageRequest{Reason: "spam"})
	require.NoError(t, err)
	assert.True(t, moderated.IsDeleted)
	assert.Equal(t, []string{models.AuditActionMessageModerate}, f.audit.actions())
	assert.Equal(t,
		[]string{realtime.EventInsert, realtime.EventDelete},
		f.messaging.publisher.types(realtime.MessagesChannel(conv.ID)))

	_, err = f.svc.ModerateMessage(ctx, adminClaims, msg.ID, ModerateMessageRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestAdminListings(t *testing.T) {
	f := newAdminFixture()
	ctx := context.Background()
	role := models.RoleStudent

	users, pagination, err := f.svc.ListUsers(ctx, models.UserFilter{Role: &role, Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, 2, pagination.Page)
	assert.Equal(t, &role, f.users.filter.Role)

	payments, _, err := f.svc.ListPayments(ctx, models.PaymentFilter{})
	require.NoError(t, err)
	assert.Len(t, payments, 2)

	messages, _, err := f.svc.ListRecentMessages(ctx, models.MessageFilter{})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "m1", messages[0].ID)

	from := samplePayments()[0].CreatedAt
	to := from.AddDate(0, 0, -1)
	_, _, err = f.svc.ListPayments(ctx, models.PaymentFilter{From: &from, To: &to})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

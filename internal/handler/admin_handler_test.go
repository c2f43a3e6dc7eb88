package handler

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/internal/dto"
	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/service"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

type fakeAdmin struct {
	userFilter    models.UserFilter
	paymentFilter models.PaymentFilter
	rejected      service.RejectTeacherRequest
	moderated     service.ModerateMessageRequest
	recorded      []*models.ExportJob
}

func (f *fakeAdmin) ListUsers(_ context.Context, filter models.UserFilter) ([]models.Profile, *models.Pagination, error) {
	f.userFilter = filter
	return []models.Profile{{ID: "u1"}}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, nil
}

func (f *fakeAdmin) ToggleUserSuspension(_ context.Context, actor *models.JWTClaims, userID string) (*models.Profile, error) {
	if userID == actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot suspend yourself")
	}
	return &models.Profile{ID: userID, IsSuspended: true}, nil
}

func (f *fakeAdmin) ApproveTeacherVerification(_ context.Context, _ *models.JWTClaims, id string) (*models.TeacherListing, error) {
	return &models.TeacherListing{Teacher: models.Teacher{ID: id, VerificationStatus: models.VerificationApproved}}, nil
}

func (f *fakeAdmin) RejectTeacherVerification(_ context.Context, _ *models.JWTClaims, id string, req service.RejectTeacherRequest) (*models.TeacherListing, error) {
	f.rejected = req
	return &models.TeacherListing{Teacher: models.Teacher{ID: id, VerificationStatus: models.VerificationRejected}}, nil
}

func (f *fakeAdmin) ListPayments(_ context.Context, filter models.PaymentFilter) ([]models.PaymentView, *models.Pagination, error) {
	f.paymentFilter = filter
	return nil, &models.Pagination{Page: 1}, nil
}

func (f *fakeAdmin) ListRecentMessages(_ context.Context, filter models.MessageFilter) ([]models.MessageView, *models.Pagination, error) {
	return []models.MessageView{}, &models.Pagination{Page: 1}, nil
}

func (f *fakeAdmin) ModerateMessage(_ context.Context, _ *models.JWTClaims, id string, req service.ModerateMessageRequest) (*models.Message, error) {
	f.moderated = req
	return &models.Message{ID: id, IsDeleted: true}, nil
}

func (f *fakeAdmin) RecordExport(_ context.Context, _ *models.JWTClaims, job *models.ExportJob) {
	f.recorded = append(f.recorded, job)
}

type fakeExports struct {
	format string
	file   string
	err    error
}

func (f *fakeExports) RequestPaymentExport(_ context.Context, requestedBy, format string, _ models.PaymentFilter) (*models.ExportJob, error) {
	f.format = format
	if f.err != nil {
		return nil, f.err
	}
	return &models.ExportJob{ID: "exp-1", Format: format, Status: models.ExportQueued, RequestedBy: requestedBy}, nil
}

func (f *fakeExports) Status(_ context.Context, id string) (*models.ExportJob, error) {
	return &models.ExportJob{ID: id, Status: models.ExportFinished}, nil
}

func (f *fakeExports) Open(_ context.Context, token string) (*service.ExportDownload, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "download link is invalid or expired")
	}
	file, err := os.Open(f.file)
	if err != nil {
		return nil, err
	}
	return &service.ExportDownload{File: file, Filename: "payments_exp-1.csv", ContentType: "text/csv"}, nil
}

func TestAdminHandlerListUsersParsesFilter(t *testing.T) {
	fake := &fakeAdmin{}
	h := NewAdminHandler(fake, &fakeExports{})

	c, rec := newTestContext(http.MethodGet, "/admin/users?role=teacher&suspended=true&search=+ana+&page=3", nil, adminClaims)
	h.ListUsers(c)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, fake.userFilter.Role)
	assert.Equal(t, models.RoleTeacher, *fake.userFilter.Role)
	require.NotNil(t, fake.userFilter.Suspended)
	assert.True(t, *fake.userFilter.Suspended)
	assert.Equal(t, "ana", fake.userFilter.Search)
	assert.Equal(t, 3, fake.userFilter.Page)
}

func TestAdminHandlerSuspensionAndReview(t *testing.T) {
	fake := &fakeAdmin{}
	h := NewAdminHandler(fake, &fakeExports{})

	c, rec := newTestContext(http.MethodPost, "/admin/users/admin-1/suspension", nil, adminClaims)
	h.ToggleSuspension(withParam(c, "id", "admin-1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = newTestContext(http.MethodPost, "/admin/users/u1/suspension", nil, adminClaims)
	h.ToggleSuspension(withParam(c, "id", "u1"))
	assert.Equal(t, http.StatusOK, rec.Code)

	c, rec = newTestContext(http.MethodPost, "/admin/teachers/t1/reject", map[string]string{"reason": "Blurry ID"}, adminClaims)
	h.RejectTeacher(withParam(c, "id", "t1"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Blurry ID", fake.rejected.Reason)

	c, rec = newTestContext(http.MethodPost, "/admin/teachers/t1/approve", nil, adminClaims)
	h.ApproveTeacher(withParam(c, "id", "t1"))
	var listing models.TeacherListing
	decodeData(t, decodeEnvelope(t, rec), &listing)
	assert.Equal(t, models.VerificationApproved, listing.VerificationStatus)

	c, rec = newTestContext(http.MethodPost, "/admin/messages/m1/moderate", nil, adminClaims)
	h.ModerateMessage(withParam(c, "id", "m1"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, fake.moderated.Reason)
}

func TestAdminHandlerPaymentFilterDates(t *testing.T) {
	fake := &fakeAdmin{}
	h := NewAdminHandler(fake, &fakeExports{})

	c, rec := newTestContext(http.MethodGet, "/admin/payments?status=completed&from=2026-01-01&to=2026-01-31T23:59:59Z", nil, adminClaims)
	h.ListPayments(c)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, fake.paymentFilter.From)
	require.NotNil(t, fake.paymentFilter.To)
	assert.Equal(t, 1, fake.paymentFilter.From.Day())
	assert.Equal(t, models.PaymentCompleted, *fake.paymentFilter.Status)

	c, rec = newTestContext(http.MethodGet, "/admin/payments?from=yesterday", nil, adminClaims)
	h.ListPayments(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminHandlerExports(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payments.csv")
	require.NoError(t, os.WriteFile(path, []byte("Date,Payer\n"), 0o600))
	admin := &fakeAdmin{}
	exports := &fakeExports{file: path}
	h := NewAdminHandler(admin, exports)

	c, rec := newTestContext(http.MethodPost, "/admin/payments/export?format=pdf", nil, adminClaims)
	h.RequestExport(c)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "pdf", exports.format)
	require.Len(t, admin.recorded, 1)

	c, rec = newTestContext(http.MethodGet, "/admin/exports/download/good", nil, nil)
	h.DownloadExport(withParam(c, "token", "good"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "payments_exp-1.csv")
	assert.Equal(t, "Date,Payer\n", rec.Body.String())

	c, rec = newTestContext(http.MethodGet, "/admin/exports/download/bad", nil, nil)
	h.DownloadExport(withParam(c, "token", "bad"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	exports.err = appErrors.Clone(appErrors.ErrServiceDisabled, "exports are not configured")
	c, rec = newTestContext(http.MethodPost, "/admin/payments/export", nil, adminClaims)
	h.RequestExport(c)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Len(t, admin.recorded, 1)
}

type fakeDashboard struct {
	hit bool
	err error
}

func (f fakeDashboard) Stats(context.Context) (*models.DashboardStats, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	return &models.DashboardStats{TotalUsers: 12}, f.hit, nil
}

func TestDashboardHandlerReportsCacheHit(t *testing.T) {
	c, rec := newTestContext(http.MethodGet, "/admin/dashboard", nil, adminClaims)
	NewDashboardHandler(fakeDashboard{hit: true}).Admin(c)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, true, env.Meta["cache_hit"])
	assert.Contains(t, env.Meta, "processing_time_ms")
	var stats models.DashboardStats
	decodeData(t, env, &stats)
	assert.Equal(t, 12, stats.TotalUsers)

	c, rec = newTestContext(http.MethodGet, "/admin/dashboard", nil, adminClaims)
	NewDashboardHandler(fakeDashboard{err: errors.New("boom")}).Admin(c)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type fakeSettings struct {
	updated dto.BulkUpdateSettingsRequest
	actor   *models.JWTClaims
}

func (f *fakeSettings) List(context.Context) ([]dto.SettingItem, error) {
	return []dto.SettingItem{{Key: "maintenance_mode", Value: "false", IsDefault: true}}, nil
}

func (f *fakeSettings) Get(_ context.Context, key string) (*dto.SettingItem, error) {
	if key != "maintenance_mode" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "setting not found")
	}
	return &dto.SettingItem{Key: key, Value: "false"}, nil
}

func (f *fakeSettings) BulkUpdate(_ context.Context, req dto.BulkUpdateSettingsRequest, actor *models.JWTClaims) ([]dto.SettingItem, error) {
	f.updated = req
	f.actor = actor
	return []dto.SettingItem{{Key: req.Items[0].Key, Value: req.Items[0].Value}}, nil
}

func TestSettingsHandler(t *testing.T) {
	fake := &fakeSettings{}
	h := NewSettingsHandler(fake)

	c, rec := newTestContext(http.MethodGet, "/admin/settings/unknown", nil, adminClaims)
	h.Get(withParam(c, "key", "unknown"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	c, rec = newTestContext(http.MethodPut, "/admin/settings", dto.BulkUpdateSettingsRequest{
		Items: []dto.UpdateSettingRequest{{Key: "maintenance_mode", Value: "true"}},
	}, adminClaims)
	h.BulkUpdate(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, adminClaims, fake.actor)
	assert.Equal(t, "true", fake.updated.Items[0].Value)

	c, rec = newTestContext(http.MethodPut, "/admin/settings", dto.BulkUpdateSettingsRequest{}, nil)
	h.BulkUpdate(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

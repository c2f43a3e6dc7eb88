package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/internal/dto"
	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

type memorySettingsRepo struct {
	rows  map[string]models.SystemSetting
	reads int
}

func (r *memorySettingsRepo) ListByKeys(ctx context.Context, keys []string) ([]models.SystemSetting, error) {
	r.reads++
	var out []models.SystemSetting
	for _, key := range keys {
		if row, ok := r.rows[key]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *memorySettingsRepo) Get(ctx context.Context, key string) (*models.SystemSetting, error) {
	row, ok := r.rows[key]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &row, nil
}

func (r *memorySettingsRepo) BulkUpsert(ctx context.Context, settings []models.SystemSetting) error {
	if r.rows == nil {
		r.rows = map[string]models.SystemSetting{}
	}
	for _, s := range settings {
		r.rows[s.Key] = s
	}
	return nil
}

type recordingAudit struct {
	logs []*models.AuditLog
}

func (a *recordingAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func (a *recordingAudit) actions() []string {
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}

type recordingInvalidator struct {
	patterns []string
}

func (i *recordingInvalidator) Invalidate(_ context.Context, patterns ...string) {
	i.patterns = append(i.patterns, patterns...)
}

var adminClaims = &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}

func TestSettingsServiceListFillsDefaults(t *testing.T) {
	repo := &memorySettingsRepo{rows: map[string]models.SystemSetting{
		models.SettingSessionTokenCost: {Key: models.SettingSessionTokenCost, Value: "25"},
	}}
	svc := NewSettingsService(repo, nil, nil, nil, nil, SettingsServiceConfig{Defaults: map[string]string{models.SettingSupportEmail: "help@tutorhub.test"}})

	items, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, len(settingKeys))
	byKey := map[string]dto.SettingItem{}
	for _, item := range items {
		byKey[item.Key] = item
	}
	assert.Equal(t, "25", byKey[models.SettingSessionTokenCost].Value)
	assert.False(t, byKey[models.SettingSessionTokenCost].IsDefault)
	assert.Equal(t, "7", byKey[models.SettingRequestExpiryDays].Value)
	assert.True(t, byKey[models.SettingRequestExpiryDays].IsDefault)
	assert.Equal(t, "help@tutorhub.test", byKey[models.SettingSupportEmail].Value)

	item, err := svc.Get(context.Background(), models.SettingPlatformName)
	require.NoError(t, err)
	assert.Equal(t, "TutorHub", item.Value)

	_, err = svc.Get(context.Background(), "unknown")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestSettingsServiceBulkUpdate(t *testing.T) {
	repo := &memorySettingsRepo{}
	audit := &recordingAudit{}
	cache := &recordingInvalidator{}
	svc := NewSettingsService(repo, audit, cache, nil, nil, SettingsServiceConfig{})
	ctx := context.Background()

	assert.Equal(t, 10, svc.IntValue(ctx, models.SettingSessionTokenCost, 1))

	result, err := svc.BulkUpdate(ctx, dto.BulkUpdateSettingsRequest{Items: []dto.UpdateSettingRequest{
		{Key: models.SettingSessionTokenCost, Value: " 15 "},
		{Key: models.SettingMaintenanceMode, Value: "TRUE"},
		{Key: models.SettingSupportEmail, Value: "Help@TutorHub.test"},
	}}, adminClaims)
	require.NoError(t, err)
	require.Len(t, result, 3)
	assert.Equal(t, "15", repo.rows[models.SettingSessionTokenCost].Value)
	assert.Equal(t, "true", repo.rows[models.SettingMaintenanceMode].Value)
	assert.Equal(t, "help@tutorhub.test", repo.rows[models.SettingSupportEmail].Value)

	assert.Equal(t, []string{models.AuditActionSettingsUpdate}, audit.actions())
	assert.Equal(t, []string{dashboardCachePattern}, cache.patterns)

	// the memo is reset on write so the new cost applies immediately
	assert.Equal(t, 15, svc.IntValue(ctx, models.SettingSessionTokenCost, 1))
	assert.True(t, svc.BoolValue(ctx, models.SettingMaintenanceMode))
}

func TestSettingsServiceBulkUpdateRejectsAtomically(t *testing.T) {
	cases := map[string][]dto.UpdateSettingRequest{
		"out of range": {{Key: models.SettingSessionTokenCost, Value: "5000"}},
		"not integer":  {{Key: models.SettingRequestExpiryDays, Value: "soon"}},
		"bad boolean":  {{Key: models.SettingMaintenanceMode, Value: "yes"}},
		"bad email":    {{Key: models.SettingSupportEmail, Value: "nobody"}},
		"unknown key":  {{Key: "feature.x", Value: "1"}},
		"duplicate": {
			{Key: models.SettingPlatformName, Value: "A"},
			{Key: models.SettingPlatformName, Value: "B"},
		},
		"one bad among good": {
			{Key: models.SettingPlatformName, Value: "Tutors"},
			{Key: models.SettingSessionTokenCost, Value: "0"},
		},
	}
	for name, items := range cases {
		t.Run(name, func(t *testing.T) {
			repo := &memorySettingsRepo{}
			audit := &recordingAudit{}
			svc := NewSettingsService(repo, audit, nil, nil, nil, SettingsServiceConfig{})
			_, err := svc.BulkUpdate(context.Background(), dto.BulkUpdateSettingsRequest{Items: items}, adminClaims)
			assert.True(t, appErrors.Is(err, appErrors.ErrValidation), err)
			assert.Empty(t, repo.rows)
			assert.Empty(t, audit.logs)
		})
	}
}

func TestSettingsServiceMemoisesReads(t *testing.T) {
	repo := &memorySettingsRepo{}
	svc := NewSettingsService(repo, nil, nil, nil, nil, SettingsServiceConfig{})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	svc.IntValue(ctx, models.SettingSessionTokenCost, 0)
	svc.StringValue(ctx, models.SettingPlatformName)
	assert.Equal(t, 1, repo.reads)

	now = now.Add(settingsMemoTTL + time.Second)
	svc.BoolValue(ctx, models.SettingMaintenanceMode)
	assert.Equal(t, 2, repo.reads)
}

package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

func TestConfigurationRepositoryListByKeys(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	repo := NewConfigurationRepository(db)
	rows := sqlmock.NewRows([]string{"key", "value", "type", "description", "updated_by", "updated_at"}).
		AddRow("platform_name", "TutorHub", "string", "desc", "admin", time.Now())
	mock.ExpectQuery("SELECT key, value").
		WithArgs("platform_name").
		WillReturnRows(rows)

	result, err := repo.ListByKeys(context.Background(), []string{"platform_name"})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "TutorHub", result[0].Value)
}

func TestConfigurationRepositoryBulkUpsert(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewConfigurationRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO system_settings").
		WithArgs("session_token_cost", "12", "integer", sqlmock.AnyArg(), "admin", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO system_settings").
		WithArgs("maintenance_mode", "true", "boolean", sqlmock.AnyArg(), "admin", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	items := []models.SystemSetting{
		{Key: models.SettingSessionTokenCost, Value: "12", Type: models.SettingTypeInteger, UpdatedBy: strPtr("admin")},
		{Key: models.SettingMaintenanceMode, Value: "true", Type: models.SettingTypeBoolean, UpdatedBy: strPtr("admin")},
	}
	require.NoError(t, repo.BulkUpsert(context.Background(), items))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdminRepositoryRevenueWindow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAdminRepository(db)

	from := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	mock.ExpectQuery("SUM\\(amount_cents\\)").
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(int64(12500)))

	total, err := repo.RevenueCents(context.Background(), models.DateWindow{From: from, To: to})
	require.NoError(t, err)
	assert.Equal(t, int64(12500), total)
}

func strPtr(value string) *string {
	return &value
}

package models

import "time"

// SettingType defines supported types for system setting values.
type SettingType string

const (
	SettingTypeString  SettingType = "string"
	SettingTypeInteger SettingType = "integer"
	SettingTypeBoolean SettingType = "boolean"
	SettingTypeEmail   SettingType = "email"
)

// Recognised system setting keys.
const (
	SettingPlatformName         = "platform_name"
	SettingSessionTokenCost     = "session_token_cost"
	SettingRequestExpiryDays    = "request_expiry_days"
	SettingInitialStudentTokens = "initial_student_tokens"
	SettingMaintenanceMode      = "maintenance_mode"
	SettingSupportEmail         = "support_email"
)

// SystemSetting represents a persisted platform setting.
type SystemSetting struct {
	Key         string      `db:"key" json:"key"`
	Value       string      `db:"value" json:"value"`
	Type        SettingType `db:"type" json:"type"`
	Description *string     `db:"description" json:"description,omitempty"`
	UpdatedBy   *string     `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

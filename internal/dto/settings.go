package dto

// SettingItem represents a system setting exposed via API.
type SettingItem struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Type        string `json:"type"`
	Description string `json:"description"`
	IsDefault   bool   `json:"is_default"`
}

// UpdateSettingRequest describes one setting change.
type UpdateSettingRequest struct {
	Key   string `json:"key" validate:"required"`
	Value string `json:"value"`
}

// BulkUpdateSettingsRequest holds multiple setting changes applied together.
type BulkUpdateSettingsRequest struct {
	Items []UpdateSettingRequest `json:"items" validate:"required,min=1,dive"`
}

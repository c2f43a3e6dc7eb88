package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/dto"
	"github.com/noah-isme/tutorhub-api/internal/models"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

const settingsMemoTTL = 30 * time.Second

type settingsRepository interface {
	ListByKeys(ctx context.Context, keys []string) ([]models.SystemSetting, error)
	Get(ctx context.Context, key string) (*models.SystemSetting, error)
	BulkUpsert(ctx context.Context, settings []models.SystemSetting) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, patterns ...string)
}

type settingDefinition struct {
	Key         string
	Type        models.SettingType
	Description string
	Min         int
	Max         int
}

var settingKeys = []string{
	models.SettingPlatformName,
	models.SettingSessionTokenCost,
	models.SettingRequestExpiryDays,
	models.SettingInitialStudentTokens,
	models.SettingMaintenanceMode,
	models.SettingSupportEmail,
}

var settingDefinitions = map[string]settingDefinition{
	models.SettingPlatformName: {
		Key:         models.SettingPlatformName,
		Type:        models.SettingTypeString,
		Description: "Name shown in headers and emails",
		Max:         80,
	},
	models.SettingSessionTokenCost: {
		Key:         models.SettingSessionTokenCost,
		Type:        models.SettingTypeInteger,
		Description: "Tokens escrowed by one session request",
		Min:         1,
		Max:         1000,
	},
	models.SettingRequestExpiryDays: {
		Key:         models.SettingRequestExpiryDays,
		Type:        models.SettingTypeInteger,
		Description: "Days before an unanswered session request expires",
		Min:         1,
		Max:         30,
	},
	models.SettingInitialStudentTokens: {
		Key:         models.SettingInitialStudentTokens,
		Type:        models.SettingTypeInteger,
		Description: "Tokens granted to newly registered students",
		Min:         0,
		Max:         1000,
	},
	models.SettingMaintenanceMode: {
		Key:         models.SettingMaintenanceMode,
		Type:        models.SettingTypeBoolean,
		Description: "Shows the maintenance banner to non-admin users",
	},
	models.SettingSupportEmail: {
		Key:         models.SettingSupportEmail,
		Type:        models.SettingTypeEmail,
		Description: "Address users contact for support",
	},
}

// SettingsServiceConfig supplies fallback values for settings never saved.
type SettingsServiceConfig struct {
	Defaults map[string]string
}

// SettingsService manages the allow-listed platform settings.
type SettingsService struct {
	repo      settingsRepository
	audit     auditLogger
	cache     cacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
	defaults  map[string]string

	memoMu  sync.Mutex
	memo    map[string]string
	memoExp time.Time
	now     func() time.Time
}

// NewSettingsService constructs a SettingsService.
func NewSettingsService(repo settingsRepository, audit auditLogger, cache cacheInvalidator, validate *validator.Validate, logger *zap.Logger, cfg SettingsServiceConfig) *SettingsService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache == nil {
		cache = (*CacheService)(nil)
	}
	defaults := map[string]string{
		models.SettingPlatformName:         "TutorHub",
		models.SettingSessionTokenCost:     "10",
		models.SettingRequestExpiryDays:    "7",
		models.SettingInitialStudentTokens: "0",
		models.SettingMaintenanceMode:      "false",
	}
	for key, value := range cfg.Defaults {
		if value == "" {
			continue
		}
		defaults[key] = value
	}
	return &SettingsService{
		repo:      repo,
		audit:     audit,
		cache:     cache,
		validator: validate,
		logger:    logger,
		defaults:  defaults,
		now:       time.Now,
	}
}

// List returns every allow-listed setting, filling unsaved keys with defaults.
func (s *SettingsService) List(ctx context.Context) ([]dto.SettingItem, error) {
	rows, err := s.repo.ListByKeys(ctx, settingKeys)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list settings")
	}
	existing := make(map[string]models.SystemSetting, len(rows))
	for _, row := range rows {
		existing[row.Key] = row
	}

	items := make([]dto.SettingItem, 0, len(settingKeys))
	for _, key := range settingKeys {
		def := settingDefinitions[key]
		item := dto.SettingItem{Key: key, Type: string(def.Type), Description: def.Description}
		if row, ok := existing[key]; ok {
			item.Value = row.Value
		} else {
			item.Value = s.defaults[key]
			item.IsDefault = true
		}
		items = append(items, item)
	}
	return items, nil
}

// Get returns one setting.
func (s *SettingsService) Get(ctx context.Context, key string) (*dto.SettingItem, error) {
	def, err := requireSetting(key)
	if err != nil {
		return nil, err
	}
	row, err := s.repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &dto.SettingItem{Key: key, Value: s.defaults[key], Type: string(def.Type), Description: def.Description, IsDefault: true}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to get setting")
	}
	return &dto.SettingItem{Key: key, Value: row.Value, Type: string(def.Type), Description: def.Description}, nil
}

// BulkUpdate validates every item and upserts them in one transaction. Nothing
// is written when any item is rejected.
func (s *SettingsService) BulkUpdate(ctx context.Context, req dto.BulkUpdateSettingsRequest, actor *models.JWTClaims) ([]dto.SettingItem, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid settings payload")
	}
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	keys := make([]string, 0, len(req.Items))
	seen := make(map[string]struct{}, len(req.Items))
	for _, item := range req.Items {
		if _, dup := seen[item.Key]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate setting %s", item.Key))
		}
		seen[item.Key] = struct{}{}
		keys = append(keys, item.Key)
	}

	toUpsert := make([]models.SystemSetting, 0, len(req.Items))
	for _, item := range req.Items {
		def, err := requireSetting(item.Key)
		if err != nil {
			return nil, err
		}
		value, err := s.normalize(def, item.Value)
		if err != nil {
			return nil, err
		}
		toUpsert = append(toUpsert, models.SystemSetting{
			Key:         item.Key,
			Value:       value,
			Type:        def.Type,
			Description: strPtr(def.Description),
			UpdatedBy:   userIDPtr(actor),
			UpdatedAt:   s.now().UTC(),
		})
	}

	previous, err := s.repo.ListByKeys(ctx, keys)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load settings")
	}
	prevValues := make(map[string]string, len(previous))
	for _, row := range previous {
		prevValues[row.Key] = row.Value
	}

	if err := s.repo.BulkUpsert(ctx, toUpsert); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update settings")
	}
	s.resetMemo()
	s.cache.Invalidate(ctx, dashboardCachePattern)

	result := make([]dto.SettingItem, 0, len(toUpsert))
	changes := make(map[string]map[string]string, len(toUpsert))
	for _, row := range toUpsert {
		def := settingDefinitions[row.Key]
		result = append(result, dto.SettingItem{Key: row.Key, Value: row.Value, Type: string(def.Type), Description: def.Description})
		changes[row.Key] = map[string]string{"old": prevValues[row.Key], "new": row.Value}
	}
	s.emitAudit(ctx, actor, changes)
	return result, nil
}

// StringValue returns the effective value of key.
func (s *SettingsService) StringValue(ctx context.Context, key string) string {
	values := s.effective(ctx)
	return values[key]
}

// IntValue returns the effective integer value of key, or fallback when unset or malformed.
func (s *SettingsService) IntValue(ctx context.Context, key string, fallback int) int {
	raw, ok := s.effective(ctx)[key]
	if !ok || raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// BoolValue returns the effective boolean value of key.
func (s *SettingsService) BoolValue(ctx context.Context, key string) bool {
	return s.effective(ctx)[key] == "true"
}

// effective merges stored values over defaults, memoised briefly since the
// request workflow reads settings on every booking.
func (s *SettingsService) effective(ctx context.Context) map[string]string {
	s.memoMu.Lock()
	defer s.memoMu.Unlock()
	if s.memo != nil && s.now().Before(s.memoExp) {
		return s.memo
	}
	values := make(map[string]string, len(s.defaults))
	for key, value := range s.defaults {
		values[key] = value
	}
	rows, err := s.repo.ListByKeys(ctx, settingKeys)
	if err != nil {
		s.logger.Warn("failed to load settings, using defaults", zap.Error(err))
		return values
	}
	for _, row := range rows {
		values[row.Key] = row.Value
	}
	s.memo = values
	s.memoExp = s.now().Add(settingsMemoTTL)
	return values
}

func (s *SettingsService) resetMemo() {
	s.memoMu.Lock()
	s.memo = nil
	s.memoMu.Unlock()
}

func (s *SettingsService) normalize(def settingDefinition, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch def.Type {
	case models.SettingTypeBoolean:
		switch strings.ToLower(value) {
		case "true", "false":
			return strings.ToLower(value), nil
		}
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s expects boolean value", def.Key))
	case models.SettingTypeInteger:
		n, err := strconv.Atoi(value)
		if err != nil {
			return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s expects integer value", def.Key))
		}
		if n < def.Min || n > def.Max {
			return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s must be between %d and %d", def.Key, def.Min, def.Max))
		}
		return strconv.Itoa(n), nil
	case models.SettingTypeEmail:
		if err := s.validator.Var(value, "required,email"); err != nil {
			return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s expects an email address", def.Key))
		}
		return strings.ToLower(value), nil
	case models.SettingTypeString:
		if value == "" {
			return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s cannot be empty", def.Key))
		}
		if def.Max > 0 && len(value) > def.Max {
			return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s exceeds %d characters", def.Key, def.Max))
		}
		return value, nil
	}
	return "", appErrors.Clone(appErrors.ErrValidation, "unsupported setting type")
}

func (s *SettingsService) emitAudit(ctx context.Context, actor *models.JWTClaims, changes map[string]map[string]string) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(changes)
	resource := "system_settings"
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     userIDPtr(actor),
		Action:     models.AuditActionSettingsUpdate,
		Resource:   resource,
		ResourceID: &resource,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "settings-service",
	}); err != nil {
		s.logger.Warn("failed to record settings audit", zap.Error(err))
	}
}

func requireSetting(key string) (settingDefinition, error) {
	def, ok := settingDefinitions[key]
	if !ok {
		return settingDefinition{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported setting %q", key))
	}
	return def, nil
}

func strPtr(value string) *string {
	if value == "" {
		return nil
	}
	result := value
	return &result
}

func userIDPtr(actor *models.JWTClaims) *string {
	if actor == nil || actor.UserID == "" {
		return nil
	}
	id := actor.UserID
	return &id
}

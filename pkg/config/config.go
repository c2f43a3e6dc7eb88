package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Realtime  RealtimeConfig
	Sessions  SessionsConfig
	Dashboard DashboardConfig
	Push      PushConfig
	Assistant AssistantConfig
	Exports   ExportsConfig
	Settings  SettingsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
	AccountCheckTTL   time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RealtimeConfig tunes the websocket gateway and pub/sub fan-out.
type RealtimeConfig struct {
	UseRedis          bool
	MaxConnections    int
	TypingIdleTimeout time.Duration
	ReconcileInterval time.Duration
	WriteTimeout      time.Duration
	PongTimeout       time.Duration
	MessagePageSize   int
}

// SessionsConfig governs the session request escrow workflow.
type SessionsConfig struct {
	TokenCost        int
	RequestTTL       time.Duration
	MaxDurationHours float64
	ExpirySweepCron  string
	NotificationCron string
}

// DashboardConfig governs admin dashboard caching.
type DashboardConfig struct {
	Enabled  bool
	CacheTTL time.Duration
}

// PushConfig configures browser web push delivery.
type PushConfig struct {
	Enabled         bool
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
	TTL             int
	Workers         int
}

// AssistantConfig configures the AI assistant conversation participant.
type AssistantConfig struct {
	Enabled bool
	APIKey  string
	Model   string
	Timeout time.Duration
}

// ExportsConfig controls payment export generation and downloads.
type ExportsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	Workers         int
	Retries         int
}

// SettingsConfig holds fallback values for system settings that were never persisted.
type SettingsConfig struct {
	PlatformName         string
	SupportEmail         string
	InitialStudentTokens int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
		AccountCheckTTL:   parseDuration(v.GetString("JWT_ACCOUNT_CHECK_TTL"), 30*time.Second),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Realtime = RealtimeConfig{
		UseRedis:          v.GetBool("REALTIME_USE_REDIS"),
		MaxConnections:    v.GetInt("REALTIME_MAX_CONNECTIONS"),
		TypingIdleTimeout: parseDuration(v.GetString("REALTIME_TYPING_IDLE"), 3*time.Second),
		ReconcileInterval: parseDuration(v.GetString("REALTIME_RECONCILE_INTERVAL"), 30*time.Second),
		WriteTimeout:      parseDuration(v.GetString("REALTIME_WRITE_TIMEOUT"), 10*time.Second),
		PongTimeout:       parseDuration(v.GetString("REALTIME_PONG_TIMEOUT"), 60*time.Second),
		MessagePageSize:   v.GetInt("REALTIME_MESSAGE_PAGE_SIZE"),
	}

	cfg.Sessions = SessionsConfig{
		TokenCost:        v.GetInt("SESSION_TOKEN_COST"),
		RequestTTL:       parseDuration(v.GetString("SESSION_REQUEST_TTL"), 7*24*time.Hour),
		MaxDurationHours: v.GetFloat64("SESSION_MAX_DURATION_HOURS"),
		ExpirySweepCron:  v.GetString("SESSION_EXPIRY_CRON"),
		NotificationCron: v.GetString("NOTIFICATION_PURGE_CRON"),
	}

	cfg.Dashboard = DashboardConfig{
		Enabled:  v.GetBool("ENABLE_DASHBOARD_CACHE"),
		CacheTTL: parseDuration(v.GetString("DASHBOARD_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Push = PushConfig{
		Enabled:         v.GetBool("ENABLE_WEB_PUSH"),
		VAPIDPublicKey:  v.GetString("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: v.GetString("VAPID_PRIVATE_KEY"),
		Subscriber:      v.GetString("VAPID_SUBSCRIBER"),
		TTL:             v.GetInt("WEB_PUSH_TTL"),
		Workers:         v.GetInt("WEB_PUSH_WORKERS"),
	}

	cfg.Assistant = AssistantConfig{
		Enabled: v.GetBool("ENABLE_AI_ASSISTANT"),
		APIKey:  v.GetString("GEMINI_API_KEY"),
		Model:   v.GetString("GEMINI_MODEL"),
		Timeout: parseDuration(v.GetString("AI_ASSISTANT_TIMEOUT"), 30*time.Second),
	}

	cfg.Exports = ExportsConfig{
		StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 24*time.Hour),
		Workers:         v.GetInt("EXPORTS_WORKER_CONCURRENCY"),
		Retries:         v.GetInt("EXPORTS_WORKER_RETRIES"),
	}

	cfg.Settings = SettingsConfig{
		PlatformName:         v.GetString("PLATFORM_NAME"),
		SupportEmail:         v.GetString("SUPPORT_EMAIL"),
		InitialStudentTokens: v.GetInt("INITIAL_STUDENT_TOKENS"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "tutorhub")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ACCOUNT_CHECK_TTL", "30s")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("REALTIME_USE_REDIS", true)
	v.SetDefault("REALTIME_MAX_CONNECTIONS", 10000)
	v.SetDefault("REALTIME_TYPING_IDLE", "3s")
	v.SetDefault("REALTIME_RECONCILE_INTERVAL", "30s")
	v.SetDefault("REALTIME_WRITE_TIMEOUT", "10s")
	v.SetDefault("REALTIME_PONG_TIMEOUT", "60s")
	v.SetDefault("REALTIME_MESSAGE_PAGE_SIZE", 50)

	v.SetDefault("SESSION_TOKEN_COST", 10)
	v.SetDefault("SESSION_REQUEST_TTL", "168h")
	v.SetDefault("SESSION_MAX_DURATION_HOURS", 8)
	v.SetDefault("SESSION_EXPIRY_CRON", "*/5 * * * *")
	v.SetDefault("NOTIFICATION_PURGE_CRON", "0 3 * * *")

	v.SetDefault("ENABLE_DASHBOARD_CACHE", true)
	v.SetDefault("DASHBOARD_CACHE_TTL", "5m")

	v.SetDefault("ENABLE_WEB_PUSH", false)
	v.SetDefault("VAPID_PUBLIC_KEY", "")
	v.SetDefault("VAPID_PRIVATE_KEY", "")
	v.SetDefault("VAPID_SUBSCRIBER", "support@tutorhub.local")
	v.SetDefault("WEB_PUSH_TTL", 30)
	v.SetDefault("WEB_PUSH_WORKERS", 2)

	v.SetDefault("ENABLE_AI_ASSISTANT", false)
	v.SetDefault("GEMINI_API_KEY", "")
	v.SetDefault("GEMINI_MODEL", "gemini-2.0-flash")
	v.SetDefault("AI_ASSISTANT_TIMEOUT", "30s")

	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "24h")
	v.SetDefault("EXPORTS_WORKER_CONCURRENCY", 1)
	v.SetDefault("EXPORTS_WORKER_RETRIES", 3)

	v.SetDefault("PLATFORM_NAME", "TutorHub")
	v.SetDefault("SUPPORT_EMAIL", "support@tutorhub.local")
	v.SetDefault("INITIAL_STUDENT_TOKENS", 0)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/tutorhub-api/api/swagger"
	"github.com/noah-isme/tutorhub-api/internal/handler"
	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/realtime"
	"github.com/noah-isme/tutorhub-api/internal/repository"
	"github.com/noah-isme/tutorhub-api/internal/service"
	"github.com/noah-isme/tutorhub-api/pkg/assistant"
	"github.com/noah-isme/tutorhub-api/pkg/cache"
	"github.com/noah-isme/tutorhub-api/pkg/config"
	"github.com/noah-isme/tutorhub-api/pkg/database"
	"github.com/noah-isme/tutorhub-api/pkg/jobs"
	"github.com/noah-isme/tutorhub-api/pkg/logger"
	"github.com/noah-isme/tutorhub-api/pkg/push"
	"github.com/noah-isme/tutorhub-api/pkg/scheduler"
	"github.com/noah-isme/tutorhub-api/pkg/storage"
)

// @title TutorHub API
// @version 1.0.0
// @description Tutoring marketplace backend: accounts, teacher discovery, token escrowed session requests, messaging, notifications and administration.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, cfg.Database.Name, logr); err != nil {
			return err
		}
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching and cross-node fan-out disabled", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}

	app, err := buildApp(ctx, cfg, db, redisClient, logr)
	if err != nil {
		return err
	}
	defer app.shutdown()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type app struct {
	router   *gin.Engine
	shutdown func()
}

func buildApp(ctx context.Context, cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, logr *zap.Logger) (*app, error) {
	validate := validator.New()
	metrics := service.NewMetricsService()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	sessionRequestRepo := repository.NewSessionRequestRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	adminRepo := repository.NewAdminRepository(db)
	settingsRepo := repository.NewConfigurationRepository(db)

	// Realtime fan-out.
	var broker realtime.Broker
	if cfg.Realtime.UseRedis && redisClient != nil {
		broker = realtime.NewRedisBroker(redisClient, logr)
	} else {
		broker = realtime.NewMemoryBroker(logr)
	}
	publisher := service.NewInstrumentedPublisher(broker, metrics)
	hub := realtime.NewHub(cfg.Realtime.MaxConnections, logr)
	hub.OnChange(metrics.SetRealtimeConnections)

	// Background work.
	recordFailure := func(job jobs.Job, _ error) { metrics.RecordJobFailure(job.Type) }
	workQueue := jobs.NewQueue("background", jobs.QueueConfig{
		Workers:   maxInt(cfg.Push.Workers, 2),
		Logger:    logr,
		OnFailure: recordFailure,
	})
	exportQueue := jobs.NewQueue("exports", jobs.QueueConfig{
		Workers:    cfg.Exports.Workers,
		MaxRetries: cfg.Exports.Retries,
		RetryDelay: 2 * time.Second,
		Logger:     logr,
		OnFailure:  recordFailure,
	})

	// Services.
	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheSvc = service.NewCacheService(repository.NewCacheRepository(redisClient, logr), metrics, cfg.Dashboard.CacheTTL, logr, true)
	} else {
		cacheSvc = service.NewCacheService(nil, metrics, cfg.Dashboard.CacheTTL, logr, false)
	}

	settingsSvc := service.NewSettingsService(settingsRepo, userRepo, cacheSvc, validate, logr, service.SettingsServiceConfig{
		Defaults: map[string]string{
			models.SettingPlatformName:         cfg.Settings.PlatformName,
			models.SettingSupportEmail:         cfg.Settings.SupportEmail,
			models.SettingInitialStudentTokens: strconv.Itoa(cfg.Settings.InitialStudentTokens),
			models.SettingSessionTokenCost:     strconv.Itoa(cfg.Sessions.TokenCost),
			models.SettingRequestExpiryDays:    strconv.Itoa(int(cfg.Sessions.RequestTTL.Hours() / 24)),
		},
	})

	pushCfg := cfg.Push
	var pushStore push.SubscriptionStore
	if redisClient != nil {
		pushStore = push.NewRedisSubscriptionStore(redisClient)
	} else {
		pushCfg.Enabled = false
	}
	pushSender := push.NewSender(pushCfg, pushStore, logr)
	notificationSvc := service.NewNotificationService(notificationRepo, publisher, workQueue, pushSender, validate, logr)

	var responder service.AssistantResponder
	if cfg.Assistant.Enabled {
		gemini, err := assistant.NewGemini(ctx, cfg.Assistant, logr)
		if err != nil {
			logr.Warn("ai assistant disabled", zap.Error(err))
		} else {
			responder = gemini
		}
	}
	messagingSvc := service.NewMessagingService(service.MessagingServiceParams{
		Conversations: conversationRepo,
		Messages:      messageRepo,
		Profiles:      userRepo,
		Notifications: notificationSvc,
		Publisher:     publisher,
		Queue:         workQueue,
		Assistant:     responder,
		Validator:     validate,
		Logger:        logr,
	})

	authSvc := service.NewAuthService(userRepo, settingsSvc, hub, cacheSvc, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		AccountCacheTTL:    cfg.JWT.AccountCheckTTL,
		Issuer:             "tutorhub-api",
	})
	userSvc := service.NewUserService(userRepo, teacherRepo, studentRepo, validate, logr)
	teacherSvc := service.NewTeacherService(teacherRepo, cacheSvc, cfg.Dashboard.CacheTTL, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, logr)
	sessionRequestSvc := service.NewSessionRequestService(sessionRequestRepo, teacherRepo, notificationSvc, settingsSvc, metrics, validate, logr, service.SessionRequestConfig{
		TokenCost:        cfg.Sessions.TokenCost,
		RequestTTL:       cfg.Sessions.RequestTTL,
		MaxDurationHours: cfg.Sessions.MaxDurationHours,
	})

	var dashboardCache *service.CacheService
	if cfg.Dashboard.Enabled {
		dashboardCache = cacheSvc
	}
	dashboardSvc := service.NewDashboardService(adminRepo, dashboardCache, service.DashboardServiceConfig{CacheTTL: cfg.Dashboard.CacheTTL}, logr)

	exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("prepare export storage: %w", err)
	}
	exportSvc := service.NewExportService(paymentRepo, exportStore, storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL),
		exportQueue, nil, service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Exports.SignedURLTTL}, logr)

	adminSvc := service.NewAdminService(service.AdminServiceParams{
		Users:         userRepo,
		Teachers:      teacherRepo,
		Payments:      paymentRepo,
		Messages:      messageRepo,
		Moderator:     messagingSvc,
		Notifications: notificationSvc,
		Audit:         userRepo,
		Sessions:      hub,
		Cache:         cacheSvc,
		Validator:     validate,
		Logger:        logr,
	})

	gateway := service.NewRealtimeGateway(messagingSvc, notificationSvc, broker, publisher, service.RealtimeGatewayConfig{
		TypingIdleTimeout: cfg.Realtime.TypingIdleTimeout,
		ReconcileInterval: cfg.Realtime.ReconcileInterval,
		PageSize:          cfg.Realtime.MessagePageSize,
	}, logr)

	workQueue.Handle(service.JobTypePushNotification, notificationSvc.HandlePushJob)
	workQueue.Handle(service.JobTypeAssistantReply, messagingSvc.HandleAssistantJob)
	exportQueue.Handle(service.JobTypePaymentExport, exportSvc.HandleExportJob)
	workQueue.Start(ctx)
	exportQueue.Start(ctx)

	cron, err := scheduler.New(logr)
	if err != nil {
		return nil, err
	}
	if err := registerCronJobs(cron, cfg, sessionRequestSvc, notificationSvc, exportSvc, logr); err != nil {
		return nil, err
	}
	cron.Start()

	checks := map[string]handler.HealthCheck{
		"database": func(ctx context.Context) error { return db.PingContext(ctx) },
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	handlers := routeHandlers{
		auth:          handler.NewAuthHandler(authSvc, userSvc),
		users:         handler.NewUserHandler(userSvc),
		teachers:      handler.NewTeacherHandler(teacherSvc),
		students:      handler.NewStudentHandler(studentSvc),
		messaging:     handler.NewMessagingHandler(messagingSvc),
		notifications: handler.NewNotificationHandler(notificationSvc),
		sessions:      handler.NewSessionRequestHandler(sessionRequestSvc),
		dashboard:     handler.NewDashboardHandler(dashboardSvc),
		admin:         handler.NewAdminHandler(adminSvc, exportSvc),
		settings:      handler.NewSettingsHandler(settingsSvc),
		metrics:       handler.NewMetricsHandler(metrics, checks),
		websocket: handler.NewWebsocketHandler(ctx, hub, broker, gateway, handler.WebsocketConfig{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			Client: realtime.ClientConfig{
				WriteTimeout: cfg.Realtime.WriteTimeout,
				PongTimeout:  cfg.Realtime.PongTimeout,
			},
		}, logr),
	}
	router := newRouter(cfg, logr, handlers, routeDeps{
		tokens:   authSvc,
		settings: settingsSvc,
		audit:    userRepo,
		metrics:  metrics,
	})

	return &app{
		router: router,
		shutdown: func() {
			if err := cron.Stop(); err != nil {
				logr.Warn("scheduler stop failed", zap.Error(err))
			}
			hub.Shutdown()
			workQueue.Stop()
			exportQueue.Stop()
			if err := broker.Close(); err != nil {
				logr.Warn("realtime broker close failed", zap.Error(err))
			}
		},
	}, nil
}

func registerCronJobs(cron *scheduler.Scheduler, cfg *config.Config, sessions *service.SessionRequestService, notifications *service.NotificationService, exports *service.ExportService, logr *zap.Logger) error {
	if err := cron.AddCron("session-request-expiry", cfg.Sessions.ExpirySweepCron, func(ctx context.Context) error {
		_, err := sessions.ExpirePending(ctx)
		return err
	}); err != nil {
		return err
	}
	if err := cron.AddCron("notification-purge", cfg.Sessions.NotificationCron, func(ctx context.Context) error {
		_, err := notifications.PurgeExpired(ctx)
		return err
	}); err != nil {
		return err
	}
	return cron.AddCron("export-cleanup", "30 * * * *", func(context.Context) error {
		removed, err := exports.Cleanup(0)
		if len(removed) > 0 {
			logr.Info("expired exports removed", zap.Int("count", len(removed)))
		}
		return err
	})
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

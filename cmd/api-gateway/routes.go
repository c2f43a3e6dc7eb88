package main

import (
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/handler"
	"github.com/noah-isme/tutorhub-api/internal/middleware"
	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/service"
	"github.com/noah-isme/tutorhub-api/pkg/config"
	"github.com/noah-isme/tutorhub-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/tutorhub-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/tutorhub-api/pkg/middleware/requestid"
)

type routeHandlers struct {
	auth          *handler.AuthHandler
	users         *handler.UserHandler
	teachers      *handler.TeacherHandler
	students      *handler.StudentHandler
	messaging     *handler.MessagingHandler
	notifications *handler.NotificationHandler
	sessions      *handler.SessionRequestHandler
	dashboard     *handler.DashboardHandler
	admin         *handler.AdminHandler
	settings      *handler.SettingsHandler
	metrics       *handler.MetricsHandler
	websocket     *handler.WebsocketHandler
}

type routeDeps struct {
	tokens   *service.AuthService
	settings *service.SettingsService
	audit    middleware.AuditWriter
	metrics  *service.MetricsService
}

func newRouter(cfg *config.Config, logr *zap.Logger, h routeHandlers, deps routeDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	prefix := strings.TrimRight(cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	api := r.Group(prefix)
	api.Use(middleware.WithResponseMeta())
	api.Use(middleware.OptionalJWT(deps.tokens))
	api.Use(middleware.Maintenance(deps.settings))

	students := middleware.RequireRoles(models.RoleStudent)
	teachers := middleware.RequireRoles(models.RoleTeacher)
	parents := middleware.RequireRoles(models.RoleParent)
	admins := middleware.RequireRoles(models.RoleAdmin)
	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(deps.audit, logr, action, resource)
	}

	auth := api.Group("/auth")
	auth.POST("/register", h.auth.Register)
	auth.POST("/login", h.auth.Login)
	auth.POST("/refresh", h.auth.Refresh)

	api.GET("/teachers", h.teachers.List)
	api.GET("/teachers/:id", h.teachers.Get)
	api.GET("/notifications/push/key", h.notifications.PushKey)
	// The signed token is the credential for export downloads.
	api.GET("/admin/exports/download/:token", h.admin.DownloadExport)

	secured := api.Group("")
	secured.Use(middleware.JWT(deps.tokens))

	secured.POST("/auth/logout", h.auth.Logout)
	secured.POST("/auth/change-password", h.auth.ChangePassword)
	secured.GET("/auth/me", h.auth.Me)

	secured.PATCH("/users/me", audit(models.AuditActionProfileUpdate, "user"), h.users.UpdateProfile)
	secured.GET("/users/:id", middleware.RBAC(string(models.RoleAdmin), middleware.SelfAccess), h.users.Get)
	secured.PATCH("/teachers/me", teachers, audit(models.AuditActionProfileUpdate, "teacher"), h.teachers.UpdateMe)
	secured.GET("/students/:id", h.students.Get)
	secured.GET("/students/:id/transactions", h.students.Transactions)
	secured.GET("/parents/me/children", parents, h.students.Children)

	secured.GET("/conversations", h.messaging.Conversations)
	secured.POST("/conversations/direct", h.messaging.StartWithTeacher)
	secured.POST("/conversations/assistant", h.messaging.StartWithAssistant)
	secured.GET("/conversations/:id/messages", h.messaging.Messages)
	secured.POST("/conversations/:id/messages", h.messaging.Send)
	secured.POST("/conversations/:id/read", h.messaging.MarkRead)
	secured.POST("/conversations/:id/archive", h.messaging.Archive)
	secured.PATCH("/messages/:id", h.messaging.Edit)
	secured.DELETE("/messages/:id", h.messaging.Delete)

	secured.GET("/notifications", h.notifications.List)
	secured.GET("/notifications/unread-count", h.notifications.UnreadCount)
	secured.POST("/notifications/read-all", h.notifications.MarkAllRead)
	secured.GET("/notifications/preferences", h.notifications.Preferences)
	secured.PUT("/notifications/preferences", h.notifications.UpdatePreference)
	secured.POST("/notifications/push/subscriptions", h.notifications.Subscribe)
	secured.DELETE("/notifications/push/subscriptions", h.notifications.Unsubscribe)
	secured.POST("/notifications/:id/read", h.notifications.MarkRead)
	secured.DELETE("/notifications/:id", h.notifications.Delete)

	secured.POST("/session-requests", students, h.sessions.Create)
	secured.GET("/session-requests", h.sessions.List)
	secured.GET("/session-requests/:id", h.sessions.Get)
	secured.POST("/session-requests/:id/accept", teachers, h.sessions.Accept)
	secured.POST("/session-requests/:id/decline", teachers, h.sessions.Decline)
	secured.POST("/session-requests/:id/cancel", students, h.sessions.Cancel)

	secured.GET("/ws", h.websocket.Connect)

	admin := secured.Group("/admin")
	admin.Use(admins)
	admin.GET("/dashboard", h.dashboard.Admin)
	admin.GET("/metrics", h.metrics.Snapshot)
	admin.GET("/users", h.admin.ListUsers)
	admin.POST("/users/:id/suspension", h.admin.ToggleSuspension)
	admin.POST("/teachers/:id/approve", h.admin.ApproveTeacher)
	admin.POST("/teachers/:id/reject", h.admin.RejectTeacher)
	admin.GET("/payments", h.admin.ListPayments)
	admin.POST("/payments/export", h.admin.RequestExport)
	admin.GET("/exports/:id", h.admin.ExportStatus)
	admin.GET("/messages", h.admin.ListMessages)
	admin.POST("/messages/:id/moderate", h.admin.ModerateMessage)
	admin.GET("/settings", h.settings.List)
	admin.GET("/settings/:key", h.settings.Get)
	admin.PUT("/settings", h.settings.BulkUpdate)

	return r
}

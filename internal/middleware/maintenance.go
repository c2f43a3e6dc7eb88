package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

// MaintenanceHeader is set on every response while maintenance mode is on.
const MaintenanceHeader = "X-Maintenance-Mode"

type maintenanceReader interface {
	BoolValue(ctx context.Context, key string) bool
}

// Maintenance flags responses while the maintenance_mode setting is enabled so
// clients can show their banner. Requests are never blocked; admins get no flag
// because they are the ones running the maintenance.
func Maintenance(settings maintenanceReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		if settings != nil && settings.BoolValue(c.Request.Context(), models.SettingMaintenanceMode) {
			if claims := CurrentUser(c); claims == nil || claims.Role != models.RoleAdmin {
				c.Writer.Header().Set(MaintenanceHeader, "true")
				SetMeta(c, "maintenance", true)
			}
		}
		c.Next()
	}
}

package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/noah-isme/tutorhub-api/internal/service"
)

const unmatchedRoute = "unmatched"

// Metrics records latency per route template. Websocket upgrades are skipped
// because their duration is the lifetime of the connection.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil || websocket.IsWebSocketUpgrade(c.Request) {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			// raw paths of unknown routes would explode label cardinality
			route = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}

package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/realtime"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/middleware/cors"
	"github.com/noah-isme/tutorhub-api/pkg/response"
)

// WebsocketConfig configures the realtime upgrade endpoint.
type WebsocketConfig struct {
	AllowedOrigins []string
	Client         realtime.ClientConfig
}

// WebsocketHandler upgrades authenticated requests to realtime clients.
type WebsocketHandler struct {
	baseCtx    context.Context
	hub        *realtime.Hub
	broker     realtime.Broker
	dispatcher realtime.Dispatcher
	cfg        WebsocketConfig
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

// NewWebsocketHandler constructs the handler. Clients live until baseCtx is
// cancelled or the connection drops; they never inherit the request context.
func NewWebsocketHandler(baseCtx context.Context, hub *realtime.Hub, broker realtime.Broker, dispatcher realtime.Dispatcher, cfg WebsocketConfig, logger *zap.Logger) *WebsocketHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &WebsocketHandler{
		baseCtx:    baseCtx,
		hub:        hub,
		broker:     broker,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     cors.OriginChecker(cfg.AllowedOrigins),
	}
	return h
}

// Connect godoc
// @Summary Open the realtime connection
// @Description Authenticates with the bearer token or the access_token query parameter
// @Tags Realtime
// @Success 101
// @Failure 401 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /ws [get]
func (h *WebsocketHandler) Connect(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}
	if !websocket.IsWebSocketUpgrade(c.Request) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "websocket upgrade required"))
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	client := realtime.NewClient(h.hub, conn, h.broker, h.dispatcher, claims.UserID, claims.Role, h.cfg.Client, h.logger)
	if err := client.Start(h.baseCtx); err != nil {
		h.logger.Info("realtime client refused", zap.String("user_id", claims.UserID), zap.Error(err))
	}
}

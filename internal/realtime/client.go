package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

const (
	defaultWriteWait      = 10 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultMaxMessageSize = 8192
	defaultSendBuffer     = 256
)

// Conn is the subset of *websocket.Conn used by Client.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Dispatcher reacts to client lifecycle and commands.
type Dispatcher interface {
	OnConnect(ctx context.Context, c *Client) error
	HandleCommand(ctx context.Context, c *Client, cmd Command)
	OnDisconnect(c *Client)
}

// EventObserver is implemented by dispatchers that track broker events before
// they are forwarded to the client.
type EventObserver interface {
	ObserveEvent(c *Client, ev Event)
}

// ClientConfig tunes connection timeouts and buffers.
type ClientConfig struct {
	WriteTimeout   time.Duration
	PongTimeout    time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

func (cfg ClientConfig) withDefaults() ClientConfig {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteWait
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongWait
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	return cfg
}

// Client is one authenticated websocket connection.
type Client struct {
	id         string
	userID     string
	role       models.UserRole
	conn       Conn
	hub        *Hub
	dispatcher Dispatcher
	session    *Session
	cfg        ClientConfig
	logger     *zap.Logger

	send      chan Event
	done      chan struct{}
	cancel    context.CancelFunc
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewClient wires a connection to the hub and broker.
func NewClient(hub *Hub, conn Conn, broker Broker, dispatcher Dispatcher, userID string, role models.UserRole, cfg ClientConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	c := &Client{
		id:         uuid.NewString(),
		userID:     userID,
		role:       role,
		conn:       conn,
		hub:        hub,
		dispatcher: dispatcher,
		cfg:        cfg,
		send:       make(chan Event, cfg.SendBuffer),
		done:       make(chan struct{}),
	}
	c.logger = logger.With(zap.String("client_id", c.id), zap.String("user_id", userID))
	c.session = NewSession(broker, c.deliver, c.logger)
	return c
}

// ID returns the connection identifier.
func (c *Client) ID() string { return c.id }

// UserID returns the authenticated user.
func (c *Client) UserID() string { return c.userID }

// Role returns the authenticated user's role.
func (c *Client) Role() models.UserRole { return c.role }

// Session exposes the client's subscriptions.
func (c *Client) Session() *Session { return c.session }

// Done is closed when the client shuts down.
func (c *Client) Done() <-chan struct{} { return c.done }

// Start registers the client and launches its pumps. The returned error means
// the connection was refused and has been closed.
func (c *Client) Start(parent context.Context) error {
	if err := c.hub.Register(c); err != nil {
		_ = c.conn.Close()
		return err
	}
	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel

	if c.dispatcher != nil {
		if err := c.dispatcher.OnConnect(ctx, c); err != nil {
			c.logger.Warn("realtime connect hook failed", zap.Error(err))
			c.Close()
			return err
		}
	}

	c.wg.Add(2)
	go c.writePump()
	go c.readPump(ctx)
	return nil
}

// Send queues ev for delivery. A full buffer marks the client as too slow and
// closes it.
func (c *Client) Send(ev Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	case <-c.done:
		return false
	default:
		c.logger.Warn("realtime send buffer full, closing client")
		go c.Close()
		return false
	}
}

func (c *Client) deliver(ev Event) {
	if obs, ok := c.dispatcher.(EventObserver); ok {
		obs.ObserveEvent(c, ev)
	}
	c.Send(ev)
}

// Reply sends a direct event answering requestID.
func (c *Client) Reply(eventType, requestID string, payload interface{}) bool {
	ev, err := NewEvent(eventType, "", payload)
	if err != nil {
		c.logger.Error("build reply", zap.String("type", eventType), zap.Error(err))
		return false
	}
	ev.RequestID = requestID
	return c.Send(ev)
}

// ReplyError reports a failed command to the client.
func (c *Client) ReplyError(requestID, code, message string) bool {
	return c.Reply(EventError, requestID, map[string]string{"code": code, "message": message})
}

// Close tears the connection down. It is safe to call from any goroutine.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		close(c.done)
		c.session.Close()
		_ = c.conn.Close()
		c.hub.Unregister(c)
		if c.dispatcher != nil {
			c.dispatcher.OnDisconnect(c)
		}
	})
}

// Wait blocks until both pumps exit.
func (c *Client) Wait() {
	c.wg.Wait()
}

func (c *Client) readPump(ctx context.Context) {
	defer c.wg.Done()
	defer c.Close()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("realtime read error", zap.Error(err))
			}
			return
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil || cmd.Type == "" {
			c.ReplyError("", "BAD_COMMAND", "malformed command")
			continue
		}
		if c.dispatcher != nil {
			c.dispatcher.HandleCommand(ctx, c, cmd)
		}
	}
}

func (c *Client) writePump() {
	pingPeriod := (c.cfg.PongTimeout * 9) / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.wg.Done()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case ev := <-c.send:
			payload, err := json.Marshal(ev)
			if err != nil {
				c.logger.Error("marshal outbound event", zap.Error(err))
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package realtime

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

const defaultMaxConnections = 10000

// ErrHubFull is returned when the connection limit is reached.
var ErrHubFull = errors.New("realtime hub at capacity")

// Hub tracks live websocket clients by user.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*Client]struct{}
	total    int
	maxConns int
	logger   *zap.Logger
	onChange func(total int)
}

// NewHub constructs a hub. maxConns <= 0 uses the default limit.
func NewHub(maxConns int, logger *zap.Logger) *Hub {
	if maxConns <= 0 {
		maxConns = defaultMaxConnections
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:  make(map[string]map[*Client]struct{}),
		maxConns: maxConns,
		logger:   logger,
	}
}

// OnChange installs a callback invoked with the connection total after each change.
func (h *Hub) OnChange(fn func(total int)) {
	h.mu.Lock()
	h.onChange = fn
	h.mu.Unlock()
}

// Register adds c to the hub.
func (h *Hub) Register(c *Client) error {
	h.mu.Lock()
	if h.total >= h.maxConns {
		h.mu.Unlock()
		h.logger.Warn("realtime connection rejected", zap.String("user_id", c.UserID()), zap.Int("max", h.maxConns))
		return ErrHubFull
	}
	set, ok := h.clients[c.UserID()]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.UserID()] = set
	}
	set[c] = struct{}{}
	h.total++
	total, hook := h.total, h.onChange
	h.mu.Unlock()

	h.logger.Debug("realtime client registered", zap.String("user_id", c.UserID()), zap.Int("total", total))
	if hook != nil {
		hook(total)
	}
	return nil
}

// Unregister removes c from the hub. Unknown clients are ignored.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.UserID()]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := set[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.UserID())
	}
	h.total--
	total, hook := h.total, h.onChange
	h.mu.Unlock()

	if hook != nil {
		hook(total)
	}
}

// DisconnectUser closes every connection belonging to userID and returns how many were closed.
func (h *Hub) DisconnectUser(userID string) int {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.Close()
	}
	return len(targets)
}

// Count returns the live connections of userID.
func (h *Hub) Count(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Total returns all live connections.
func (h *Hub) Total() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// Shutdown closes every client.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	targets := make([]*Client, 0, h.total)
	for _, set := range h.clients {
		for c := range set {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.Close()
	}
}

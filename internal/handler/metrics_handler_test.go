package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsHandlerReady(t *testing.T) {
	h := NewMetricsHandler(nil, map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
	})
	c, rec := newTestContext(http.MethodGet, "/readyz", nil, nil)
	h.Ready(c)
	assert.Equal(t, http.StatusOK, rec.Code)

	h = NewMetricsHandler(nil, map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})
	c, rec = newTestContext(http.MethodGet, "/readyz", nil, nil)
	h.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")

	c, rec = newTestContext(http.MethodGet, "/metrics", nil, nil)
	h.Prometheus(c)
	assert.Equal(t, http.StatusServiceUnavailable, c.Writer.Status())
}

func TestWebsocketHandlerRequiresUpgrade(t *testing.T) {
	h := NewWebsocketHandler(context.Background(), nil, nil, nil, WebsocketConfig{AllowedOrigins: []string{"https://app.example.com"}}, nil)

	assert.NotNil(t, h.upgrader.CheckOrigin)
	req, _ := http.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, h.upgrader.CheckOrigin(req))
	req.Header.Set("Origin", "https://app.example.com/")
	assert.True(t, h.upgrader.CheckOrigin(req))

	c, rec := newTestContext(http.MethodGet, "/ws", nil, studentClaims)
	h.Connect(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = newTestContext(http.MethodGet, "/ws", nil, nil)
	h.Connect(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

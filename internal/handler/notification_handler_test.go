package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/service"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/push"
)

type fakeNotifications struct {
	filter     models.NotificationFilter
	pref       service.UpdatePreferenceRequest
	subscribed []push.Subscription
	removed    []string
	pushKey    string
}

func (f *fakeNotifications) List(_ context.Context, _ string, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, error) {
	f.filter = filter
	return []models.Notification{{ID: "n1"}}, &models.Pagination{Page: filter.Page, TotalCount: 1}, nil
}

func (f *fakeNotifications) UnreadCount(context.Context, string) (int, error) { return 4, nil }

func (f *fakeNotifications) MarkAsRead(_ context.Context, id, _ string) error {
	if id != "n1" {
		return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
	}
	return nil
}

func (f *fakeNotifications) MarkAllAsRead(context.Context, string) (int64, error) { return 4, nil }

func (f *fakeNotifications) Delete(context.Context, string, string) error { return nil }

func (f *fakeNotifications) GetPreferences(context.Context, string) ([]models.NotificationPreference, error) {
	return []models.NotificationPreference{}, nil
}

func (f *fakeNotifications) UpdatePreference(_ context.Context, userID string, req service.UpdatePreferenceRequest) (*models.NotificationPreference, error) {
	f.pref = req
	return &models.NotificationPreference{UserID: userID, Type: req.Type, BrowserEnabled: *req.BrowserEnabled}, nil
}

func (f *fakeNotifications) PushPublicKey() (string, error) {
	if f.pushKey == "" {
		return "", appErrors.Clone(appErrors.ErrServiceDisabled, "push notifications are disabled")
	}
	return f.pushKey, nil
}

func (f *fakeNotifications) RegisterPushSubscription(_ context.Context, _ string, sub push.Subscription) error {
	f.subscribed = append(f.subscribed, sub)
	return nil
}

func (f *fakeNotifications) RemovePushSubscription(_ context.Context, _ string, endpoint string) error {
	f.removed = append(f.removed, endpoint)
	return nil
}

func TestNotificationHandlerListAndCount(t *testing.T) {
	fake := &fakeNotifications{}
	h := NewNotificationHandler(fake)

	c, rec := newTestContext(http.MethodGet, "/notifications?unread_only=true&page=2", nil, studentClaims)
	h.List(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, fake.filter.UnreadOnly)
	assert.Equal(t, 2, fake.filter.Page)

	c, rec = newTestContext(http.MethodGet, "/notifications/unread-count", nil, studentClaims)
	h.UnreadCount(c)
	var body map[string]int
	decodeData(t, decodeEnvelope(t, rec), &body)
	assert.Equal(t, 4, body["unread"])

	c, rec = newTestContext(http.MethodPost, "/notifications/n9/read", nil, studentClaims)
	h.MarkRead(withParam(c, "id", "n9"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	c, _ = newTestContext(http.MethodPost, "/notifications/n1/read", nil, studentClaims)
	h.MarkRead(withParam(c, "id", "n1"))
	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
}

func TestNotificationHandlerPreferencesAndPush(t *testing.T) {
	fake := &fakeNotifications{}
	h := NewNotificationHandler(fake)

	c, rec := newTestContext(http.MethodPut, "/notifications/preferences", map[string]interface{}{"type": "new_message", "browser_enabled": false}, studentClaims)
	h.UpdatePreference(c)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, fake.pref.BrowserEnabled)
	assert.False(t, *fake.pref.BrowserEnabled)

	c, rec = newTestContext(http.MethodGet, "/notifications/push/key", nil, studentClaims)
	h.PushKey(c)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	fake.pushKey = "BPub"
	c, rec = newTestContext(http.MethodGet, "/notifications/push/key", nil, studentClaims)
	h.PushKey(c)
	assert.Equal(t, http.StatusOK, rec.Code)

	c, _ = newTestContext(http.MethodPost, "/notifications/push/subscriptions", push.Subscription{
		Endpoint: "https://push.example.com/abc",
		Keys:     push.Keys{P256dh: "key", Auth: "auth"},
	}, studentClaims)
	h.Subscribe(c)
	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	require.Len(t, fake.subscribed, 1)

	c, rec = newTestContext(http.MethodDelete, "/notifications/push/subscriptions", map[string]string{}, studentClaims)
	h.Unsubscribe(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, fake.removed)
}

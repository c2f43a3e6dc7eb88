package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/pkg/config"
)

const redisKeyPrefix = "push:subs:"

// Subscription is a browser PushSubscription as serialised by the Push API.
type Subscription struct {
	Endpoint string `json:"endpoint" validate:"required,url"`
	Keys     Keys   `json:"keys" validate:"required"`
}

// Keys holds the client public key material.
type Keys struct {
	P256dh string `json:"p256dh" validate:"required"`
	Auth   string `json:"auth" validate:"required"`
}

// Message is the payload delivered to the service worker.
type Message struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	URL   string            `json:"url,omitempty"`
	Tag   string            `json:"tag,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
}

// SubscriptionStore persists push subscriptions per user.
type SubscriptionStore interface {
	Save(ctx context.Context, userID string, sub Subscription) error
	Remove(ctx context.Context, userID, endpoint string) error
	List(ctx context.Context, userID string) ([]Subscription, error)
}

// RedisSubscriptionStore keeps subscriptions in a hash keyed by endpoint.
type RedisSubscriptionStore struct {
	client *redis.Client
}

// NewRedisSubscriptionStore constructs the store.
func NewRedisSubscriptionStore(client *redis.Client) *RedisSubscriptionStore {
	return &RedisSubscriptionStore{client: client}
}

// Save upserts a subscription for the user.
func (s *RedisSubscriptionStore) Save(ctx context.Context, userID string, sub Subscription) error {
	raw, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal subscription: %w", err)
	}
	if err := s.client.HSet(ctx, redisKeyPrefix+userID, sub.Endpoint, raw).Err(); err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

// Remove deletes the subscription identified by endpoint.
func (s *RedisSubscriptionStore) Remove(ctx context.Context, userID, endpoint string) error {
	if err := s.client.HDel(ctx, redisKeyPrefix+userID, endpoint).Err(); err != nil {
		return fmt.Errorf("remove subscription: %w", err)
	}
	return nil
}

// List returns all subscriptions stored for the user.
func (s *RedisSubscriptionStore) List(ctx context.Context, userID string) ([]Subscription, error) {
	values, err := s.client.HGetAll(ctx, redisKeyPrefix+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	subs := make([]Subscription, 0, len(values))
	for _, raw := range values {
		var sub Subscription
		if err := json.Unmarshal([]byte(raw), &sub); err != nil {
			continue
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

type sendFunc func(ctx context.Context, message []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error)

// Sender delivers web push messages to every subscription of a user.
type Sender struct {
	store   SubscriptionStore
	options *webpush.Options
	send    sendFunc
	logger  *zap.Logger
}

// NewSender builds a sender. Without VAPID keys the sender is disabled and Send is a no-op.
func NewSender(cfg config.PushConfig, store SubscriptionStore, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	sender := &Sender{store: store, send: webpush.SendNotificationWithContext, logger: logger}
	if cfg.Enabled && cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != "" {
		ttl := cfg.TTL
		if ttl <= 0 {
			ttl = 30
		}
		sender.options = &webpush.Options{
			Subscriber:      cfg.Subscriber,
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
			TTL:             ttl,
		}
	}
	return sender
}

// Enabled reports whether VAPID credentials are configured.
func (s *Sender) Enabled() bool {
	return s.options != nil
}

// PublicKey exposes the VAPID public key for client subscription.
func (s *Sender) PublicKey() string {
	if s.options == nil {
		return ""
	}
	return s.options.VAPIDPublicKey
}

// Subscribe stores a subscription for the user.
func (s *Sender) Subscribe(ctx context.Context, userID string, sub Subscription) error {
	return s.store.Save(ctx, userID, sub)
}

// Unsubscribe removes a subscription for the user.
func (s *Sender) Unsubscribe(ctx context.Context, userID, endpoint string) error {
	return s.store.Remove(ctx, userID, endpoint)
}

// Send pushes msg to all of the user's subscriptions and returns the number delivered.
// Subscriptions rejected with 404 or 410 are pruned.
func (s *Sender) Send(ctx context.Context, userID string, msg Message) (int, error) {
	if !s.Enabled() {
		return 0, nil
	}
	subs, err := s.store.List(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(subs) == 0 {
		return 0, nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("marshal push message: %w", err)
	}

	delivered := 0
	var lastErr error
	for _, sub := range subs {
		wpSub := &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys:     webpush.Keys{P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth},
		}
		resp, err := s.send(ctx, payload, wpSub, s.options)
		if err != nil {
			lastErr = err
			s.logger.Warn("push delivery failed", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		_ = resp.Body.Close()
		switch {
		case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
			if err := s.store.Remove(ctx, userID, sub.Endpoint); err != nil {
				s.logger.Warn("failed to prune push subscription", zap.String("user_id", userID), zap.Error(err))
			}
		case resp.StatusCode >= 300:
			lastErr = fmt.Errorf("push endpoint returned %d", resp.StatusCode)
		default:
			delivered++
		}
	}
	if delivered == 0 && lastErr != nil {
		return 0, lastErr
	}
	return delivered, nil
}

package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisChannelPrefix = "tutorhub:rt:"

// pubSubConn is the part of *redis.PubSub the broker drives.
type pubSubConn interface {
	Subscribe(ctx context.Context, channels ...string) error
	Unsubscribe(ctx context.Context, channels ...string) error
	Channel(opts ...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

// RedisBroker fans events out across API instances through Redis Pub/Sub.
// The process holds a single Pub/Sub connection: a Redis channel is joined
// when its first local subscriber arrives and left after the last one closes.
// Incoming messages are dispatched to local subscribers through a MemoryBroker.
type RedisBroker struct {
	client *redis.Client
	pubsub pubSubConn
	local  *MemoryBroker
	logger *zap.Logger

	mu     sync.Mutex
	refs   map[string]int
	closed bool
	start  sync.Once
	done   chan struct{}
}

// NewRedisBroker constructs a broker on an existing client.
func NewRedisBroker(client *redis.Client, logger *zap.Logger) *RedisBroker {
	b := newRedisBroker(client.Subscribe(context.Background()), logger)
	b.client = client
	return b
}

func newRedisBroker(ps pubSubConn, logger *zap.Logger) *RedisBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBroker{
		pubsub: ps,
		local:  NewMemoryBroker(logger),
		logger: logger,
		refs:   make(map[string]int),
		done:   make(chan struct{}),
	}
}

// Publish sends ev to every instance subscribed to channel, this one included.
func (b *RedisBroker) Publish(ctx context.Context, channel string, ev Event) error {
	if ev.Channel == "" {
		ev.Channel = channel
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, redisChannelPrefix+channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe registers a local subscription, joining the Redis channel when it
// is the first one for channel.
func (b *RedisBroker) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}
	if b.refs[channel] == 0 {
		if err := b.pubsub.Subscribe(ctx, redisChannelPrefix+channel); err != nil {
			return nil, fmt.Errorf("subscribe %s: %w", channel, err)
		}
		b.start.Do(func() { go b.run() })
	}
	sub, err := b.local.Subscribe(ctx, channel)
	if err != nil {
		if b.refs[channel] == 0 {
			b.leave(channel)
		}
		return nil, err
	}
	b.refs[channel]++
	return &redisSubscription{Subscription: sub, broker: b, channel: channel}, nil
}

// Channels returns the number of Redis channels currently joined.
func (b *RedisBroker) Channels() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.refs)
}

// Close leaves every channel and ends all local subscriptions. The Redis
// client itself is owned by the caller.
func (b *RedisBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.refs = make(map[string]int)
	b.mu.Unlock()

	err := b.pubsub.Close()
	_ = b.local.Close()
	return err
}

func (b *RedisBroker) release(channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.refs[channel] == 0 {
		return
	}
	b.refs[channel]--
	if b.refs[channel] == 0 {
		delete(b.refs, channel)
		b.leave(channel)
	}
}

// leave must be called with b.mu held.
func (b *RedisBroker) leave(channel string) {
	if err := b.pubsub.Unsubscribe(context.Background(), redisChannelPrefix+channel); err != nil {
		b.logger.Warn("unsubscribe redis channel", zap.String("channel", channel), zap.Error(err))
	}
}

func (b *RedisBroker) run() {
	defer close(b.done)
	for msg := range b.pubsub.Channel() {
		channel := strings.TrimPrefix(msg.Channel, redisChannelPrefix)
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			b.logger.Warn("discarding malformed event", zap.String("channel", channel), zap.Error(err))
			continue
		}
		if ev.Channel == "" {
			ev.Channel = channel
		}
		if err := b.local.Publish(context.Background(), channel, ev); err != nil {
			return
		}
	}
}

type redisSubscription struct {
	Subscription
	broker  *RedisBroker
	channel string
	once    sync.Once
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		err = s.Subscription.Close()
		s.broker.release(s.channel)
	})
	return err
}

package realtime

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

const subscriptionBuffer = 64

// ErrBrokerClosed is returned by operations on a closed broker.
var ErrBrokerClosed = errors.New("broker closed")

// Publisher publishes events to a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, ev Event) error
}

// Subscription streams events of one channel until closed.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Broker fans events out to every subscriber of a channel.
type Broker interface {
	Publisher
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	Close() error
}

// MemoryBroker is an in-process broker for single node deployments and tests.
// Slow subscribers drop events instead of blocking publishers.
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySubscription]struct{}
	closed bool
	logger *zap.Logger
}

// NewMemoryBroker constructs an empty broker.
func NewMemoryBroker(logger *zap.Logger) *MemoryBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryBroker{subs: make(map[string]map[*memorySubscription]struct{}), logger: logger}
}

// Publish delivers ev to current subscribers of channel.
func (b *MemoryBroker) Publish(_ context.Context, channel string, ev Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBrokerClosed
	}
	if ev.Channel == "" {
		ev.Channel = channel
	}
	for sub := range b.subs[channel] {
		sub.deliver(ev, b.logger)
	}
	return nil
}

// Subscribe registers a new subscription on channel.
func (b *MemoryBroker) Subscribe(_ context.Context, channel string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}
	sub := &memorySubscription{broker: b, channel: channel, events: make(chan Event, subscriptionBuffer)}
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*memorySubscription]struct{})
	}
	b.subs[channel][sub] = struct{}{}
	return sub, nil
}

// Subscribers returns the number of live subscriptions on channel.
func (b *MemoryBroker) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

// Close terminates every subscription.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for channel, subs := range b.subs {
		for sub := range subs {
			sub.closeLocked()
		}
		delete(b.subs, channel)
	}
	return nil
}

func (b *MemoryBroker) remove(sub *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.subs[sub.channel]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.subs, sub.channel)
		}
	}
	sub.closeLocked()
}

type memorySubscription struct {
	broker  *MemoryBroker
	channel string
	events  chan Event
	once    sync.Once
}

func (s *memorySubscription) Events() <-chan Event { return s.events }

func (s *memorySubscription) Close() error {
	s.broker.remove(s)
	return nil
}

// closeLocked must be called with the broker lock held so no publish races the close.
func (s *memorySubscription) closeLocked() {
	s.once.Do(func() { close(s.events) })
}

func (s *memorySubscription) deliver(ev Event, logger *zap.Logger) {
	select {
	case s.events <- ev:
	default:
		logger.Warn("dropping event for slow subscriber", zap.String("channel", s.channel), zap.String("type", ev.Type))
	}
}

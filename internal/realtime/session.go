package realtime

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrSessionClosed is returned once a session has been torn down.
var ErrSessionClosed = errors.New("realtime session closed")

// Session owns the broker subscriptions of one connection. Each key holds at
// most one live subscription; subscribing again under the same key closes the
// previous one before the new one starts delivering.
type Session struct {
	broker  Broker
	deliver func(Event)
	logger  *zap.Logger

	mu     sync.Mutex
	subs   map[string]*keyedSubscription
	closed bool
}

type keyedSubscription struct {
	channel string
	sub     Subscription
	done    chan struct{}
}

// NewSession binds a session to broker, forwarding every event to deliver.
func NewSession(broker Broker, deliver func(Event), logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		broker:  broker,
		deliver: deliver,
		logger:  logger,
		subs:    make(map[string]*keyedSubscription),
	}
}

// Subscribe points key at channel. Subscribing a key to the channel it already
// follows is a no-op.
func (s *Session) Subscribe(ctx context.Context, key, channel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if current, ok := s.subs[key]; ok {
		if current.channel == channel {
			return nil
		}
		current.stop()
		delete(s.subs, key)
	}

	sub, err := s.broker.Subscribe(ctx, channel)
	if err != nil {
		return err
	}
	ks := &keyedSubscription{channel: channel, sub: sub, done: make(chan struct{})}
	s.subs[key] = ks
	go s.forward(ks)
	return nil
}

// Unsubscribe closes the subscription held under key, if any.
func (s *Session) Unsubscribe(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.subs[key]; ok {
		current.stop()
		delete(s.subs, key)
	}
}

// Channel reports the channel currently followed under key.
func (s *Session) Channel(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.subs[key]
	if !ok {
		return "", false
	}
	return current.channel, true
}

// Len returns the number of live subscriptions.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Close releases every subscription. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for key, current := range s.subs {
		current.stop()
		delete(s.subs, key)
	}
}

func (s *Session) forward(ks *keyedSubscription) {
	defer close(ks.done)
	for ev := range ks.sub.Events() {
		s.deliver(ev)
	}
}

// stop closes the subscription and waits for its forwarder so no stale event
// is delivered after a replacement.
func (ks *keyedSubscription) stop() {
	_ = ks.sub.Close()
	<-ks.done
}

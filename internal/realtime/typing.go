package realtime

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const typingPublishTimeout = 2 * time.Second

type stopper interface {
	Stop() bool
}

// TypingTracker debounces keystrokes into typing presence for one connection.
// The first keystroke publishes typing=true; after idle without keystrokes the
// tracker publishes typing=false.
type TypingTracker struct {
	publisher Publisher
	userID    string
	idle      time.Duration
	logger    *zap.Logger
	afterFunc func(time.Duration, func()) stopper

	mu             sync.Mutex
	conversationID string
	typing         bool
	timer          stopper
	generation     uint64
	stopped        bool
}

// NewTypingTracker constructs a tracker for userID. A zero idle uses 3s.
func NewTypingTracker(publisher Publisher, userID string, idle time.Duration, logger *zap.Logger) *TypingTracker {
	if idle <= 0 {
		idle = 3 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TypingTracker{
		publisher: publisher,
		userID:    userID,
		idle:      idle,
		logger:    logger,
		afterFunc: func(d time.Duration, fn func()) stopper { return time.AfterFunc(d, fn) },
	}
}

// Keystroke records input in conversationID and re-arms the idle timer.
func (t *TypingTracker) Keystroke(conversationID string) {
	var pending []TypingPayload

	t.mu.Lock()
	if t.stopped || conversationID == "" {
		t.mu.Unlock()
		return
	}
	if t.typing && t.conversationID != conversationID {
		pending = append(pending, TypingPayload{UserID: t.userID, ConversationID: t.conversationID, Typing: false})
		t.typing = false
	}
	if !t.typing {
		pending = append(pending, TypingPayload{UserID: t.userID, ConversationID: conversationID, Typing: true})
		t.typing = true
	}
	t.conversationID = conversationID
	t.generation++
	gen := t.generation
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = t.afterFunc(t.idle, func() { t.expire(gen) })
	t.mu.Unlock()

	t.publish(pending...)
}

// Reset ends any typing state immediately, e.g. after the user sends a message.
func (t *TypingTracker) Reset() {
	t.publish(t.clear(false)...)
}

// Stop ends typing state and ignores further keystrokes.
func (t *TypingTracker) Stop() {
	t.publish(t.clear(true)...)
}

// Typing reports the conversation currently marked as typing.
func (t *TypingTracker) Typing() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conversationID, t.typing
}

func (t *TypingTracker) clear(stop bool) []TypingPayload {
	t.mu.Lock()
	defer t.mu.Unlock()
	if stop {
		t.stopped = true
	}
	t.generation++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	if !t.typing {
		return nil
	}
	t.typing = false
	return []TypingPayload{{UserID: t.userID, ConversationID: t.conversationID, Typing: false}}
}

func (t *TypingTracker) expire(gen uint64) {
	t.mu.Lock()
	if gen != t.generation || !t.typing {
		t.mu.Unlock()
		return
	}
	t.typing = false
	t.timer = nil
	payload := TypingPayload{UserID: t.userID, ConversationID: t.conversationID, Typing: false}
	t.mu.Unlock()

	t.publish(payload)
}

func (t *TypingTracker) publish(payloads ...TypingPayload) {
	for _, p := range payloads {
		channel := PresenceChannel(p.ConversationID)
		ev, err := NewEvent(EventTyping, channel, p)
		if err != nil {
			t.logger.Warn("build typing event", zap.Error(err))
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), typingPublishTimeout)
		if err := t.publisher.Publish(ctx, channel, ev); err != nil {
			t.logger.Warn("publish typing event", zap.String("conversation_id", p.ConversationID), zap.Error(err))
		}
		cancel()
	}
}

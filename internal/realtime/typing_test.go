package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu       sync.Mutex
	payloads []TypingPayload
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, ev Event) error {
	var payload TypingPayload
	if err := ev.Decode(&payload); err != nil {
		return err
	}
	p.mu.Lock()
	p.payloads = append(p.payloads, payload)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) all() []TypingPayload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]TypingPayload(nil), p.payloads...)
}

type manualTimer struct {
	fn      func()
	stopped bool
}

func (m *manualTimer) Stop() bool {
	m.stopped = true
	return true
}

func newManualTracker(pub Publisher) (*TypingTracker, *[]*manualTimer) {
	tracker := NewTypingTracker(pub, "u1", time.Second, nil)
	timers := &[]*manualTimer{}
	tracker.afterFunc = func(_ time.Duration, fn func()) stopper {
		tm := &manualTimer{fn: fn}
		*timers = append(*timers, tm)
		return tm
	}
	return tracker, timers
}

func TestTypingTrackerDebounce(t *testing.T) {
	pub := &recordingPublisher{}
	tracker, timers := newManualTracker(pub)

	tracker.Keystroke("c1")
	tracker.Keystroke("c1")
	tracker.Keystroke("c1")

	require.Len(t, pub.all(), 1)
	assert.True(t, pub.all()[0].Typing)
	require.Len(t, *timers, 3)
	assert.True(t, (*timers)[0].stopped)
	assert.True(t, (*timers)[1].stopped)

	// a stale timer firing must not end the typing state
	(*timers)[0].fn()
	assert.Len(t, pub.all(), 1)

	(*timers)[2].fn()
	got := pub.all()
	require.Len(t, got, 2)
	assert.Equal(t, TypingPayload{UserID: "u1", ConversationID: "c1", Typing: false}, got[1])

	_, typing := tracker.Typing()
	assert.False(t, typing)
}

func TestTypingTrackerSwitchConversation(t *testing.T) {
	pub := &recordingPublisher{}
	tracker, _ := newManualTracker(pub)

	tracker.Keystroke("c1")
	tracker.Keystroke("c2")

	got := pub.all()
	require.Len(t, got, 3)
	assert.Equal(t, TypingPayload{UserID: "u1", ConversationID: "c1", Typing: false}, got[1])
	assert.Equal(t, TypingPayload{UserID: "u1", ConversationID: "c2", Typing: true}, got[2])
}

func TestTypingTrackerResetAndStop(t *testing.T) {
	pub := &recordingPublisher{}
	tracker, timers := newManualTracker(pub)

	tracker.Keystroke("c1")
	tracker.Reset()
	require.Len(t, pub.all(), 2)
	assert.False(t, pub.all()[1].Typing)
	assert.True(t, (*timers)[0].stopped)

	tracker.Reset()
	assert.Len(t, pub.all(), 2)

	tracker.Keystroke("c1")
	tracker.Stop()
	tracker.Keystroke("c1")
	got := pub.all()
	require.Len(t, got, 4)
	assert.False(t, got[3].Typing)
}

func TestTypingTrackerRealTimer(t *testing.T) {
	pub := &recordingPublisher{}
	tracker := NewTypingTracker(pub, "u1", 20*time.Millisecond, nil)

	tracker.Keystroke("c1")
	require.Eventually(t, func() bool { return len(pub.all()) == 2 }, time.Second, 5*time.Millisecond)
	assert.False(t, pub.all()[1].Typing)
}

package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/realtime"
)

const (
	defaultReconcileInterval = 30 * time.Second
	subscriptionListSize     = 50
)

// NotificationSnapshot is the state pushed to observers after every change.
type NotificationSnapshot struct {
	Notifications []models.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unread_count"`
	Latest        *models.Notification  `json:"latest,omitempty"`
}

// NotificationObserver receives snapshots. Observers are compared by identity,
// so register pointers.
type NotificationObserver interface {
	NotificationsChanged(snapshot NotificationSnapshot)
}

type notificationReader interface {
	List(ctx context.Context, userID string, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
}

// NotificationSubscription is the notification state of one signed in session.
// It owns the user's broker subscription, keeps a bounded list plus unread count,
// and reconciles both against the database on a fixed interval so missed events
// heal themselves.
type NotificationSubscription struct {
	userID   string
	reader   notificationReader
	sub      realtime.Subscription
	interval time.Duration
	logger   *zap.Logger

	// syncMu serializes reconciles and applied events so an older database
	// read never replaces newer state.
	syncMu    sync.Mutex
	mu        sync.Mutex
	observers []NotificationObserver
	state     NotificationSnapshot

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// OpenNotificationSubscription subscribes to the user's notification channel,
// loads the initial state and starts the reconcile loop. Close must be called
// when the session ends.
func OpenNotificationSubscription(ctx context.Context, broker realtime.Broker, reader notificationReader, userID string, interval time.Duration, logger *zap.Logger) (*NotificationSubscription, error) {
	if interval <= 0 {
		interval = defaultReconcileInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sub, err := broker.Subscribe(ctx, realtime.NotificationsChannel(userID))
	if err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s := &NotificationSubscription{
		userID:   userID,
		reader:   reader,
		sub:      sub,
		interval: interval,
		logger:   logger.With(zap.String("user_id", userID)),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	if err := s.Reconcile(ctx); err != nil {
		s.logger.Warn("initial notification sync failed", zap.Error(err))
	}
	go s.run(runCtx)
	return s, nil
}

// AddListener registers o and hands it the current snapshot. Registering the
// same observer twice is a no-op.
func (s *NotificationSubscription) AddListener(o NotificationObserver) {
	s.mu.Lock()
	for _, existing := range s.observers {
		if existing == o {
			s.mu.Unlock()
			return
		}
	}
	s.observers = append(s.observers, o)
	snapshot := copySnapshot(s.state)
	s.mu.Unlock()

	o.NotificationsChanged(snapshot)
}

// RemoveListener unregisters o.
func (s *NotificationSubscription) RemoveListener(o NotificationObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.observers {
		if existing == o {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}

// Listeners returns the number of registered observers.
func (s *NotificationSubscription) Listeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observers)
}

// Snapshot returns the current state.
func (s *NotificationSubscription) Snapshot() NotificationSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copySnapshot(s.state)
}

// Reconcile reloads the list and unread count from the database.
func (s *NotificationSubscription) Reconcile(ctx context.Context) error {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	items, _, err := s.reader.List(ctx, s.userID, models.NotificationFilter{Page: 1, PageSize: subscriptionListSize})
	if err != nil {
		return err
	}
	unread, err := s.reader.UnreadCount(ctx, s.userID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.state = NotificationSnapshot{Notifications: items, UnreadCount: unread}
	snapshot := copySnapshot(s.state)
	s.mu.Unlock()

	s.notify(snapshot)
	return nil
}

// Close stops the reconcile loop, releases the broker subscription and drops
// every observer.
func (s *NotificationSubscription) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		_ = s.sub.Close()
		<-s.done
		s.mu.Lock()
		s.observers = nil
		s.mu.Unlock()
	})
}

func (s *NotificationSubscription) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	events := s.sub.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.apply(ctx, ev)
		case <-ticker.C:
			s.reconcile(ctx)
		}
	}
}

func (s *NotificationSubscription) reconcile(ctx context.Context) {
	if err := s.Reconcile(ctx); err != nil && ctx.Err() == nil {
		s.logger.Warn("notification reconcile failed", zap.Error(err))
	}
}

func (s *NotificationSubscription) apply(ctx context.Context, ev realtime.Event) {
	if ev.Type != realtime.EventInsert {
		s.reconcile(ctx)
		return
	}
	var n models.Notification
	if err := ev.Decode(&n); err != nil {
		s.logger.Warn("decode notification event", zap.Error(err))
		return
	}

	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	s.mu.Lock()
	list := make([]models.Notification, 0, len(s.state.Notifications)+1)
	list = append(list, n)
	for _, existing := range s.state.Notifications {
		if existing.ID == n.ID {
			continue
		}
		list = append(list, existing)
	}
	if len(list) > subscriptionListSize {
		list = list[:subscriptionListSize]
	}
	s.state.Notifications = list
	if !n.IsRead {
		s.state.UnreadCount++
	}
	latest := n
	s.state.Latest = &latest
	snapshot := copySnapshot(s.state)
	s.mu.Unlock()

	s.notify(snapshot)
}

func (s *NotificationSubscription) notify(snapshot NotificationSnapshot) {
	s.mu.Lock()
	observers := make([]NotificationObserver, len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	for _, o := range observers {
		o.NotificationsChanged(snapshot)
	}
}

func copySnapshot(in NotificationSnapshot) NotificationSnapshot {
	out := in
	out.Notifications = append([]models.Notification(nil), in.Notifications...)
	return out
}

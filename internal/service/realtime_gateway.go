package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/realtime"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
)

const (
	subscriptionKeyMessages = "messages"
	subscriptionKeyPresence = "presence"
)

// InstrumentedPublisher counts every event it publishes.
type InstrumentedPublisher struct {
	next    realtime.Publisher
	metrics *MetricsService
}

// NewInstrumentedPublisher wraps next with event metrics.
func NewInstrumentedPublisher(next realtime.Publisher, metrics *MetricsService) *InstrumentedPublisher {
	return &InstrumentedPublisher{next: next, metrics: metrics}
}

// Publish forwards ev and records it when the broker accepted it.
func (p *InstrumentedPublisher) Publish(ctx context.Context, channel string, ev realtime.Event) error {
	if err := p.next.Publish(ctx, channel, ev); err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.RecordRealtimeEvent(ev.Type)
	}
	return nil
}

// RealtimeGatewayConfig tunes per connection behaviour.
type RealtimeGatewayConfig struct {
	TypingIdleTimeout time.Duration
	ReconcileInterval time.Duration
	PageSize          int
}

// RealtimeGateway drives a websocket session: conversation selection, paging,
// sending, typing presence and the notification feed. The history offset of a
// session is the number of live messages it has seen in the selected
// conversation, so messages arriving while the user scrolls back do not shift
// older pages.
type RealtimeGateway struct {
	messaging     *MessagingService
	notifications notificationReader
	broker        realtime.Broker
	publisher     realtime.Publisher
	cfg           RealtimeGatewayConfig
	logger        *zap.Logger

	mu      sync.Mutex
	clients map[string]*clientState
}

type clientState struct {
	mu           sync.Mutex
	messenger    Messenger
	active       string
	loaded       map[string]struct{}
	exhausted    bool
	typing       *realtime.TypingTracker
	subscription *NotificationSubscription
	observer     *clientObserver
}

// clientObserver forwards notification snapshots to one connection.
type clientObserver struct {
	client *realtime.Client
}

func (o *clientObserver) NotificationsChanged(snapshot NotificationSnapshot) {
	o.client.Reply(realtime.EventNotificationsSync, "", snapshot)
}

// NewRealtimeGateway constructs the gateway. publisher defaults to broker.
func NewRealtimeGateway(messaging *MessagingService, notifications notificationReader, broker realtime.Broker, publisher realtime.Publisher, cfg RealtimeGatewayConfig, logger *zap.Logger) *RealtimeGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = broker
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = MessagePageSize
	}
	return &RealtimeGateway{
		messaging:     messaging,
		notifications: notifications,
		broker:        broker,
		publisher:     publisher,
		cfg:           cfg,
		logger:        logger,
		clients:       make(map[string]*clientState),
	}
}

// OnConnect picks the messenger for the client's role and opens its notification feed.
func (g *RealtimeGateway) OnConnect(ctx context.Context, c *realtime.Client) error {
	state := &clientState{
		messenger: g.messaging.ForRole(c.Role()),
		typing:    realtime.NewTypingTracker(g.publisher, c.UserID(), g.cfg.TypingIdleTimeout, g.logger),
	}
	if g.notifications != nil {
		sub, err := OpenNotificationSubscription(ctx, g.broker, g.notifications, c.UserID(), g.cfg.ReconcileInterval, g.logger)
		if err != nil {
			return err
		}
		state.subscription = sub
		state.observer = &clientObserver{client: c}
		sub.AddListener(state.observer)
	}

	g.mu.Lock()
	g.clients[c.ID()] = state
	g.mu.Unlock()
	return nil
}

// OnDisconnect releases everything the connection owned.
func (g *RealtimeGateway) OnDisconnect(c *realtime.Client) {
	g.mu.Lock()
	state, ok := g.clients[c.ID()]
	delete(g.clients, c.ID())
	g.mu.Unlock()
	if !ok {
		return
	}
	state.typing.Stop()
	if state.subscription != nil {
		state.subscription.RemoveListener(state.observer)
		state.subscription.Close()
	}
}

// Connections returns the number of sessions with live state.
func (g *RealtimeGateway) Connections() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.clients)
}

// HandleCommand executes one client command and replies on the same connection.
func (g *RealtimeGateway) HandleCommand(ctx context.Context, c *realtime.Client, cmd realtime.Command) {
	g.mu.Lock()
	state, ok := g.clients[c.ID()]
	g.mu.Unlock()
	if !ok {
		c.ReplyError(cmd.RequestID, appErrors.ErrUnauthorized.Code, "session is not initialised")
		return
	}

	var err error
	switch cmd.Type {
	case realtime.CommandSelectConversation:
		err = g.selectConversation(ctx, c, state, cmd)
	case realtime.CommandLoadMore:
		err = g.loadMore(ctx, c, state, cmd)
	case realtime.CommandSendMessage:
		err = g.sendMessage(ctx, c, state, cmd)
	case realtime.CommandTyping:
		err = g.keystroke(state, cmd)
	default:
		err = appErrors.Clone(appErrors.ErrValidation, "unknown command "+cmd.Type)
	}
	if err != nil {
		appErr := appErrors.FromError(err)
		if appErr.Status >= 500 {
			g.logger.Error("realtime command failed", zap.String("type", cmd.Type), zap.String("user_id", c.UserID()), zap.Error(err))
		}
		c.ReplyError(cmd.RequestID, appErr.Code, appErr.Message)
	}
}

type messagesPage struct {
	ConversationID string               `json:"conversation_id"`
	Messages       []models.MessageView `json:"messages"`
	Offset         int                  `json:"offset"`
	Exhausted      bool                 `json:"exhausted"`
}

// ObserveEvent keeps the paging offset in step with messages inserted into or
// removed from the selected conversation.
func (g *RealtimeGateway) ObserveEvent(c *realtime.Client, ev realtime.Event) {
	if ev.Type != realtime.EventInsert && ev.Type != realtime.EventDelete {
		return
	}
	g.mu.Lock()
	state, ok := g.clients[c.ID()]
	g.mu.Unlock()
	if !ok {
		return
	}
	var ref struct {
		ID string `json:"id"`
	}
	if err := ev.Decode(&ref); err != nil || ref.ID == "" {
		return
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	if state.active == "" || ev.Channel != realtime.MessagesChannel(state.active) {
		return
	}
	if ev.Type == realtime.EventInsert {
		state.loaded[ref.ID] = struct{}{}
		return
	}
	delete(state.loaded, ref.ID)
}

// selectConversation loads the newest page of the chosen conversation, marks it
// read and then moves the live channels over to it.
func (g *RealtimeGateway) selectConversation(ctx context.Context, c *realtime.Client, state *clientState, cmd realtime.Command) error {
	if cmd.ConversationID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "conversation_id is required")
	}
	userID := c.UserID()
	messages, err := state.messenger.GetMessages(ctx, cmd.ConversationID, userID, models.PageRequest{Offset: 0, Limit: g.cfg.PageSize})
	if err != nil {
		return err
	}
	marked, err := state.messenger.MarkAsRead(ctx, cmd.ConversationID, userID)
	if err != nil {
		g.logger.Warn("mark conversation read", zap.String("conversation_id", cmd.ConversationID), zap.Error(err))
	}

	state.mu.Lock()
	previous := state.active
	state.active = cmd.ConversationID
	state.loaded = make(map[string]struct{}, len(messages))
	for _, msg := range messages {
		state.loaded[msg.ID] = struct{}{}
	}
	state.exhausted = false
	state.mu.Unlock()
	if previous != "" && previous != cmd.ConversationID {
		state.typing.Reset()
	}

	session := c.Session()
	if err := session.Subscribe(ctx, subscriptionKeyMessages, realtime.MessagesChannel(cmd.ConversationID)); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to subscribe to conversation")
	}
	if err := session.Subscribe(ctx, subscriptionKeyPresence, realtime.PresenceChannel(cmd.ConversationID)); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to subscribe to presence")
	}

	c.Reply(realtime.EventConversationSelected, cmd.RequestID, messagesPage{
		ConversationID: cmd.ConversationID,
		Messages:       messages,
		Offset:         len(messages),
	})
	c.Reply(realtime.EventUnreadCount, "", map[string]interface{}{
		"conversation_id": cmd.ConversationID,
		"unread_count":    0,
		"marked_read":     marked,
	})
	return nil
}

// loadMore fetches the next older page. An empty page marks history as exhausted.
func (g *RealtimeGateway) loadMore(ctx context.Context, c *realtime.Client, state *clientState, cmd realtime.Command) error {
	state.mu.Lock()
	active, offset, exhausted := state.active, len(state.loaded), state.exhausted
	state.mu.Unlock()
	if active == "" {
		return appErrors.Clone(appErrors.ErrValidation, "no conversation selected")
	}
	if exhausted {
		c.Reply(realtime.EventMessagesPage, cmd.RequestID, messagesPage{ConversationID: active, Messages: []models.MessageView{}, Offset: offset, Exhausted: true})
		return nil
	}

	messages, err := state.messenger.GetMessages(ctx, active, c.UserID(), models.PageRequest{Offset: offset, Limit: g.cfg.PageSize})
	if err != nil {
		return err
	}

	state.mu.Lock()
	if state.active != active {
		state.mu.Unlock()
		return appErrors.Clone(appErrors.ErrConflict, "conversation changed while loading")
	}
	for _, msg := range messages {
		state.loaded[msg.ID] = struct{}{}
	}
	state.exhausted = len(messages) == 0
	page := messagesPage{ConversationID: active, Messages: messages, Offset: len(state.loaded), Exhausted: state.exhausted}
	state.mu.Unlock()

	c.Reply(realtime.EventMessagesPage, cmd.RequestID, page)
	return nil
}

func (g *RealtimeGateway) sendMessage(ctx context.Context, c *realtime.Client, state *clientState, cmd realtime.Command) error {
	conversationID := cmd.ConversationID
	if conversationID == "" {
		state.mu.Lock()
		conversationID = state.active
		state.mu.Unlock()
	}
	view, err := state.messenger.SendMessage(ctx, SendMessageInput{
		ConversationID: conversationID,
		SenderID:       c.UserID(),
		Content:        cmd.Content,
		MessageType:    models.MessageType(cmd.MessageType),
		ReplyToID:      cmd.ReplyToID,
	})
	if err != nil {
		return err
	}
	c.Reply(realtime.EventMessageSent, cmd.RequestID, view)
	state.typing.Reset()
	return nil
}

// keystroke only applies to the selected conversation, whose membership was
// checked when it was selected.
func (g *RealtimeGateway) keystroke(state *clientState, cmd realtime.Command) error {
	state.mu.Lock()
	active := state.active
	state.mu.Unlock()
	if active == "" || (cmd.ConversationID != "" && cmd.ConversationID != active) {
		return appErrors.Clone(appErrors.ErrValidation, "typing is only tracked for the selected conversation")
	}
	state.typing.Keystroke(active)
	return nil
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/internal/models"
	"github.com/noah-isme/tutorhub-api/internal/realtime"
	"github.com/noah-isme/tutorhub-api/pkg/assistant"
	appErrors "github.com/noah-isme/tutorhub-api/pkg/errors"
	"github.com/noah-isme/tutorhub-api/pkg/jobs"
)

// memoryMessaging backs both conversation and message repositories with shared state.
type memoryMessaging struct {
	mu            sync.Mutex
	conversations map[string]*models.Conversation
	messages      []*models.Message
	reads         map[string]map[string]bool
	seq           int
	clock         time.Time
}

func newMemoryMessaging() *memoryMessaging {
	return &memoryMessaging{
		conversations: map[string]*models.Conversation{},
		reads:         map[string]map[string]bool{},
		clock:         time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (m *memoryMessaging) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

type memoryConversations struct{ *memoryMessaging }

func (r memoryConversations) ListForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Conversation
	for _, c := range r.conversations {
		if c.HasParticipant(userID) && !c.IsArchived {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memoryConversations) FindByID(ctx context.Context, id string) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conversations[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (r memoryConversations) FindOrCreateDirect(ctx context.Context, a, b string) (*models.Conversation, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := models.ParticipantKey(a, b)
	for _, c := range r.conversations {
		if c.Type == models.ConversationDirect && c.ParticipantKey == key {
			cp := *c
			return &cp, false, nil
		}
	}
	c := &models.Conversation{ID: r.nextID("conv"), Type: models.ConversationDirect, Participants: pq.StringArray{a, b}, ParticipantKey: key, CreatedAt: r.clock}
	r.conversations[c.ID] = c
	cp := *c
	return &cp, true, nil
}

func (r memoryConversations) SetArchived(ctx context.Context, id string, archived bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversations[id].IsArchived = archived
	return nil
}

func (r memoryConversations) LastMessages(ctx context.Context, ids []string) (map[string]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]models.Message{}
	for _, msg := range r.messages {
		if !msg.IsDeleted {
			out[msg.ConversationID] = *msg
		}
	}
	return out, nil
}

func (r memoryConversations) UnreadCounts(ctx context.Context, userID string, ids []string) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]int{}
	for _, msg := range r.messages {
		if !msg.IsDeleted && msg.SenderID != userID && !r.reads[msg.ID][userID] {
			out[msg.ConversationID]++
		}
	}
	return out, nil
}

type memoryMessages struct{ *memoryMessaging }

func (r memoryMessages) ListByConversation(ctx context.Context, conversationID string, page models.PageRequest) ([]models.MessageView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var live []models.MessageView
	for _, msg := range r.messages {
		if msg.ConversationID == conversationID && !msg.IsDeleted {
			live = append(live, models.MessageView{Message: *msg})
		}
	}
	// newest page first, returned oldest to newest
	end := len(live) - page.Offset
	if end <= 0 {
		return nil, nil
	}
	start := end - page.Limit
	if start < 0 {
		start = 0
	}
	return live[start:end], nil
}

func (r memoryMessages) FindByID(ctx context.Context, id string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.messages {
		if msg.ID == id {
			cp := *msg
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r memoryMessages) Create(ctx context.Context, message *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	message.ID = r.nextID("msg")
	r.clock = r.clock.Add(time.Minute)
	message.CreatedAt = r.clock
	cp := *message
	r.messages = append(r.messages, &cp)
	conv := r.conversations[message.ConversationID]
	at := r.clock
	conv.LastMessageAt = &at
	conv.IsArchived = false
	return nil
}

func (r memoryMessages) UpdateContent(ctx context.Context, id, content string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.messages {
		if msg.ID == id && !msg.IsDeleted {
			msg.Content = content
			msg.IsEdited = true
			cp := *msg
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r memoryMessages) SoftDelete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.messages {
		if msg.ID == id && !msg.IsDeleted {
			msg.IsDeleted = true
			return nil
		}
	}
	return sql.ErrNoRows
}

func (r memoryMessages) MarkConversationRead(ctx context.Context, conversationID, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, msg := range r.messages {
		if msg.ConversationID != conversationID || msg.SenderID == userID || msg.IsDeleted {
			continue
		}
		if r.reads[msg.ID] == nil {
			r.reads[msg.ID] = map[string]bool{}
		}
		if !r.reads[msg.ID][userID] {
			r.reads[msg.ID][userID] = true
			n++
		}
	}
	return n, nil
}

func (r memoryMessages) Recent(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Message
	for _, msg := range r.messages {
		if msg.ConversationID == conversationID && !msg.IsDeleted {
			out = append(out, *msg)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type fakeProfiles map[string]*models.Profile

func (f fakeProfiles) FindByID(ctx context.Context, id string) (*models.Profile, error) {
	if p, ok := f[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (f fakeProfiles) FindSummaries(ctx context.Context, ids []string) (map[string]models.ProfileSummary, error) {
	out := map[string]models.ProfileSummary{}
	for _, id := range ids {
		if p, ok := f[id]; ok {
			out[id] = p.Summary()
		}
	}
	return out, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []*models.Notification
}

func (r *recordingNotifier) Create(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return n, nil
}

func (r *recordingNotifier) Deliver(ctx context.Context, notes ...*models.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, notes...)
}

func (r *recordingNotifier) ofType(t string) []*models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Notification
	for _, n := range r.notes {
		if n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, channel string, ev realtime.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ev.Channel = channel
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types(channel string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, ev := range p.events {
		if ev.Channel == channel {
			out = append(out, ev.Type)
		}
	}
	return out
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []jobs.Job
}

func (q *recordingQueue) Enqueue(job jobs.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

type stubResponder struct {
	history []assistant.Turn
	reply   string
	err     error
}

func (s *stubResponder) Reply(ctx context.Context, history []assistant.Turn) (string, error) {
	s.history = history
	return s.reply, s.err
}

type messagingFixture struct {
	store     *memoryMessaging
	svc       *MessagingService
	notifier  *recordingNotifier
	publisher *recordingPublisher
	queue     *recordingQueue
	responder *stubResponder
}

func newMessagingFixture() *messagingFixture {
	store := newMemoryMessaging()
	profiles := fakeProfiles{
		"student-1": {ID: "student-1", FullName: "Sam Student", Role: models.RoleStudent, IsActive: true},
		"parent-1":  {ID: "parent-1", FullName: "Pat Parent", Role: models.RoleParent, IsActive: true},
		"teacher-1": {ID: "teacher-1", FullName: "Tina Teacher", Role: models.RoleTeacher, IsActive: true},
		"teacher-2": {ID: "teacher-2", FullName: "Gone Teacher", Role: models.RoleTeacher, IsActive: true, IsSuspended: true},
		"admin-1":   {ID: "admin-1", FullName: "Ada Admin", Role: models.RoleAdmin, IsActive: true},
	}
	f := &messagingFixture{
		store:     store,
		notifier:  &recordingNotifier{},
		publisher: &recordingPublisher{},
		queue:     &recordingQueue{},
		responder: &stubResponder{reply: "A derivative is a rate of change."},
	}
	f.svc = NewMessagingService(MessagingServiceParams{
		Conversations: memoryConversations{store},
		Messages:      memoryMessages{store},
		Profiles:      profiles,
		Notifications: f.notifier,
		Publisher:     f.publisher,
		Queue:         f.queue,
		Assistant:     f.responder,
	})
	return f
}

func TestGetOrCreateTeacherConversationReturnsSameID(t *testing.T) {
	f := newMessagingFixture()
	student := f.svc.ForRole(models.RoleStudent)
	ctx := context.Background()

	first, err := student.GetOrCreateTeacherConversation(ctx, "student-1", "teacher-1")
	require.NoError(t, err)
	second, err := student.GetOrCreateTeacherConversation(ctx, "student-1", "teacher-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// the teacher opening the same pair lands in the same row
	fromTeacher, err := f.svc.ForRole(models.RoleTeacher).GetOrCreateTeacherConversation(ctx, "teacher-1", "student-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, fromTeacher.ID)
}

func TestGetOrCreateConversationConcurrentCallsConverge(t *testing.T) {
	f := newMessagingFixture()
	student := f.svc.ForRole(models.RoleStudent)

	ids := make([]string, 8)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv, err := student.GetOrCreateTeacherConversation(context.Background(), "student-1", "teacher-1")
			if err == nil {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Len(t, f.store.conversations, 1)
}

func TestRoleVariantsRestrictCounterparts(t *testing.T) {
	f := newMessagingFixture()
	ctx := context.Background()

	_, err := f.svc.ForRole(models.RoleStudent).GetOrCreateTeacherConversation(ctx, "student-1", "admin-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, err = f.svc.ForRole(models.RoleParent).GetOrCreateTeacherConversation(ctx, "parent-1", "student-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, err = f.svc.ForRole(models.RoleStudent).GetOrCreateTeacherConversation(ctx, "student-1", "teacher-2")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))

	_, err = f.svc.ForRole(models.RoleStudent).GetOrCreateTeacherConversation(ctx, "student-1", "student-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	conv, err := f.svc.ForRole(models.RoleAdmin).GetOrCreateTeacherConversation(ctx, "admin-1", "student-1")
	require.NoError(t, err)
	assert.True(t, conv.HasParticipant("admin-1"))

	_, err = f.svc.ForRole(models.RoleTeacher).GetOrCreateAIConversation(ctx, "teacher-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestDeletedMessagesNeverReturned(t *testing.T) {
	f := newMessagingFixture()
	ctx := context.Background()
	student := f.svc.ForRole(models.RoleStudent)
	conv, err := student.GetOrCreateTeacherConversation(ctx, "student-1", "teacher-1")
	require.NoError(t, err)

	var sent []*models.MessageView
	for i := 0; i < 3; i++ {
		msg, err := student.SendMessage(ctx, SendMessageInput{ConversationID: conv.ID, SenderID: "student-1", Content: fmt.Sprintf("hello %d", i)})
		require.NoError(t, err)
		sent = append(sent, msg)
	}
	require.NoError(t, student.DeleteMessage(ctx, sent[1].ID, "student-1"))
	_, err = f.svc.Moderate(ctx, sent[2].ID)
	require.NoError(t, err)

	messages, err := student.GetMessages(ctx, conv.ID, "student-1", models.PageRequest{})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, sent[0].ID, messages[0].ID)
	for _, msg := range messages {
		assert.False(t, msg.IsDeleted)
	}
	assert.Equal(t,
		[]string{realtime.EventInsert, realtime.EventInsert, realtime.EventInsert, realtime.EventDelete, realtime.EventDelete},
		f.publisher.types(realtime.MessagesChannel(conv.ID)))
}

func TestSendMessageNotifiesOthersAndBumpsConversation(t *testing.T) {
	f := newMessagingFixture()
	ctx := context.Background()
	student := f.svc.ForRole(models.RoleStudent)
	conv, err := student.GetOrCreateTeacherConversation(ctx, "student-1", "teacher-1")
	require.NoError(t, err)

	view, err := student.SendMessage(ctx, SendMessageInput{ConversationID: conv.ID, SenderID: "student-1", Content: "  Can we meet Tuesday?  "})
	require.NoError(t, err)
	assert.Equal(t, "Can we meet Tuesday?", view.Content)
	assert.Equal(t, "Sam Student", view.SenderName)

	notes := f.notifier.ofType(models.NotificationNewMessage)
	require.Len(t, notes, 1)
	assert.Equal(t, "teacher-1", notes[0].UserID)
	assert.Empty(t, f.queue.jobs)

	teacher := f.svc.ForRole(models.RoleTeacher)
	summaries, err := teacher.GetConversations(ctx, "teacher-1")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 1, summaries[0].UnreadCount)
	assert.Equal(t, "Sam Student", summaries[0].OtherParticipant.FullName)
	require.NotNil(t, summaries[0].LastMessage)
	assert.Equal(t, view.ID, summaries[0].LastMessage.ID)

	marked, err := teacher.MarkAsRead(ctx, conv.ID, "teacher-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, marked)
	marked, err = teacher.MarkAsRead(ctx, conv.ID, "teacher-1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, marked)
}

func TestSendMessageRejectsOutsiders(t *testing.T) {
	f := newMessagingFixture()
	ctx := context.Background()
	conv, err := f.svc.ForRole(models.RoleStudent).GetOrCreateTeacherConversation(ctx, "student-1", "teacher-1")
	require.NoError(t, err)

	_, err = f.svc.ForRole(models.RoleParent).SendMessage(ctx, SendMessageInput{ConversationID: conv.ID, SenderID: "parent-1", Content: "hi"})
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, err = f.svc.ForRole(models.RoleStudent).SendMessage(ctx, SendMessageInput{ConversationID: conv.ID, SenderID: "student-1", Content: "   "})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = f.svc.ForRole(models.RoleStudent).GetMessages(ctx, "missing", "student-1", models.PageRequest{})
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestEditMessageOnlyBySender(t *testing.T) {
	f := newMessagingFixture()
	ctx := context.Background()
	student := f.svc.ForRole(models.RoleStudent)
	conv, err := student.GetOrCreateTeacherConversation(ctx, "student-1", "teacher-1")
	require.NoError(t, err)
	msg, err := student.SendMessage(ctx, SendMessageInput{ConversationID: conv.ID, SenderID: "student-1", Content: "typo"})
	require.NoError(t, err)

	_, err = f.svc.ForRole(models.RoleTeacher).EditMessage(ctx, msg.ID, "teacher-1", "hijack")
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	edited, err := student.EditMessage(ctx, msg.ID, "student-1", "fixed")
	require.NoError(t, err)
	assert.True(t, edited.IsEdited)
	assert.Equal(t, "fixed", edited.Content)
}

func TestEditMessageCountsCharactersNotBytes(t *testing.T) {
	f := newMessagingFixture()
	ctx := context.Background()
	student := f.svc.ForRole(models.RoleStudent)
	conv, err := student.GetOrCreateTeacherConversation(ctx, "student-1", "teacher-1")
	require.NoError(t, err)

	long := strings.Repeat("é", maxMessageLength)
	msg, err := student.SendMessage(ctx, SendMessageInput{ConversationID: conv.ID, SenderID: "student-1", Content: long})
	require.NoError(t, err)

	edited, err := student.EditMessage(ctx, msg.ID, "student-1", strings.Repeat("ü", maxMessageLength))
	require.NoError(t, err)
	assert.True(t, edited.IsEdited)

	_, err = student.EditMessage(ctx, msg.ID, "student-1", strings.Repeat("ü", maxMessageLength+1))
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestAssistantConversationFlow(t *testing.T) {
	f := newMessagingFixture()
	ctx := context.Background()
	student := f.svc.ForRole(models.RoleStudent)

	conv, err := student.GetOrCreateAIConversation(ctx, "student-1")
	require.NoError(t, err)
	require.NoError(t, student.ArchiveConversation(ctx, conv.ID, "student-1"))
	again, err := student.GetOrCreateAIConversation(ctx, "student-1")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)
	assert.False(t, again.IsArchived)

	_, err = student.SendMessage(ctx, SendMessageInput{ConversationID: conv.ID, SenderID: "student-1", Content: "What is a derivative?"})
	require.NoError(t, err)
	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, JobTypeAssistantReply, f.queue.jobs[0].Type)
	assert.Empty(t, f.notifier.ofType(models.NotificationNewMessage))

	require.NoError(t, f.svc.HandleAssistantJob(ctx, f.queue.jobs[0]))
	require.Len(t, f.responder.history, 1)

	messages, err := student.GetMessages(ctx, conv.ID, "student-1", models.PageRequest{})
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, models.AIAssistantID, messages[1].SenderID)

	notes := f.notifier.ofType(models.NotificationNewMessage)
	require.Len(t, notes, 1)
	assert.Equal(t, "student-1", notes[0].UserID)
	assert.Equal(t, "New message from AI Assistant", notes[0].Title)

	// a reply already in place is not answered twice
	require.NoError(t, f.svc.HandleAssistantJob(ctx, f.queue.jobs[0]))
	assert.Len(t, f.store.messages, 2)

	summaries, err := student.GetConversations(ctx, "student-1")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, assistantDisplayName, summaries[0].OtherParticipant.FullName)
}

func TestAssistantJobSurfacesResponderErrors(t *testing.T) {
	f := newMessagingFixture()
	ctx := context.Background()
	f.responder.err = errors.New("quota exceeded")
	conv, err := f.svc.ForRole(models.RoleStudent).GetOrCreateAIConversation(ctx, "student-1")
	require.NoError(t, err)
	_, err = f.svc.ForRole(models.RoleStudent).SendMessage(ctx, SendMessageInput{ConversationID: conv.ID, SenderID: "student-1", Content: "help"})
	require.NoError(t, err)

	err = f.svc.HandleAssistantJob(ctx, f.queue.jobs[0])
	assert.EqualError(t, err, "quota exceeded")

	err = f.svc.HandleAssistantJob(ctx, jobs.Job{ID: "bad", Payload: "nope"})
	assert.Error(t, err)
}

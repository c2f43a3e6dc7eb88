package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

type echoDispatcher struct {
	mu           sync.Mutex
	connected    []string
	disconnected []string
	connectErr   error
}

func (d *echoDispatcher) OnConnect(_ context.Context, c *Client) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = append(d.connected, c.UserID())
	return d.connectErr
}

func (d *echoDispatcher) HandleCommand(_ context.Context, c *Client, cmd Command) {
	c.Reply("echo", cmd.RequestID, map[string]string{"type": cmd.Type, "content": cmd.Content})
}

func (d *echoDispatcher) OnDisconnect(c *Client) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disconnected = append(d.disconnected, c.UserID())
}

func (d *echoDispatcher) disconnects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.disconnected)
}

func startServer(t *testing.T, hub *Hub, broker Broker, dispatcher Dispatcher) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn, broker, dispatcher, r.URL.Query().Get("user"), models.RoleStudent, ClientConfig{}, nil)
		_ = client.Start(context.Background())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + user
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestClientCommandRoundTrip(t *testing.T) {
	hub := NewHub(10, nil)
	dispatcher := &echoDispatcher{}
	srv := startServer(t, hub, NewMemoryBroker(nil), dispatcher)
	conn := dial(t, srv, "u1")

	require.NoError(t, conn.WriteJSON(Command{Type: CommandSendMessage, RequestID: "r1", Content: "hello"}))
	ev := readEvent(t, conn)
	assert.Equal(t, "echo", ev.Type)
	assert.Equal(t, "r1", ev.RequestID)

	var payload map[string]string
	require.NoError(t, ev.Decode(&payload))
	assert.Equal(t, "hello", payload["content"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	ev = readEvent(t, conn)
	assert.Equal(t, EventError, ev.Type)
}

func TestClientReceivesSubscribedEvents(t *testing.T) {
	hub := NewHub(10, nil)
	broker := NewMemoryBroker(nil)
	ready := make(chan *Client, 1)
	dispatcher := &subscribingDispatcher{ready: ready}
	srv := startServer(t, hub, broker, dispatcher)
	conn := dial(t, srv, "u1")

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("client never connected")
	}

	ev, err := NewEvent(EventInsert, "", map[string]string{"id": "n1"})
	require.NoError(t, err)
	require.NoError(t, broker.Publish(context.Background(), NotificationsChannel("u1"), ev))

	got := readEvent(t, conn)
	assert.Equal(t, EventInsert, got.Type)
	assert.Equal(t, NotificationsChannel("u1"), got.Channel)
}

type subscribingDispatcher struct {
	ready chan *Client
}

func (d *subscribingDispatcher) OnConnect(ctx context.Context, c *Client) error {
	if err := c.Session().Subscribe(ctx, "notifications", NotificationsChannel(c.UserID())); err != nil {
		return err
	}
	d.ready <- c
	return nil
}

func (d *subscribingDispatcher) HandleCommand(context.Context, *Client, Command) {}

func (d *subscribingDispatcher) OnDisconnect(*Client) {}

func TestClientDisconnectUser(t *testing.T) {
	hub := NewHub(10, nil)
	broker := NewMemoryBroker(nil)
	dispatcher := &echoDispatcher{}
	srv := startServer(t, hub, broker, dispatcher)

	conn := dial(t, srv, "u1")
	dial(t, srv, "u1")
	dial(t, srv, "u2")
	require.Eventually(t, func() bool { return hub.Total() == 3 }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 2, hub.DisconnectUser("u1"))
	assert.Equal(t, 0, hub.Count("u1"))
	assert.Equal(t, 1, hub.Count("u2"))
	require.Eventually(t, func() bool { return dispatcher.disconnects() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHubRejectsOverCapacity(t *testing.T) {
	hub := NewHub(1, nil)
	var totals []int
	hub.OnChange(func(total int) { totals = append(totals, total) })

	first := NewClient(hub, &nopConn{}, NewMemoryBroker(nil), nil, "u1", models.RoleStudent, ClientConfig{}, nil)
	require.NoError(t, hub.Register(first))

	second := NewClient(hub, &nopConn{}, NewMemoryBroker(nil), nil, "u2", models.RoleTeacher, ClientConfig{}, nil)
	assert.ErrorIs(t, second.Start(context.Background()), ErrHubFull)

	hub.Unregister(first)
	hub.Unregister(first)
	assert.Equal(t, 0, hub.Total())
	assert.Equal(t, []int{1, 0}, totals)
}

type nopConn struct{}

func (nopConn) ReadMessage() (int, []byte, error) { return 0, nil, websocket.ErrCloseSent }
func (nopConn) WriteMessage(int, []byte) error { return nil }
func (nopConn) SetReadLimit(int64) {}
func (nopConn) SetReadDeadline(time.Time) error { return nil }
func (nopConn) SetWriteDeadline(time.Time) error { return nil }
func (nopConn) SetPongHandler(func(appData string) error) {}
func (nopConn) Close() error { return nil }

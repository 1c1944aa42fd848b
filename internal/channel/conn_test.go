package channel

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

	"github.com/ajoshi-dev/huddle/internal/chat"
)

// fakeBroker is a minimal STOMP-over-WebSocket endpoint. It answers CONNECT
// with CONNECTED, records every frame it receives, and can inject MESSAGE
// frames toward the client.
type fakeBroker struct {
	upgrader websocket.Upgrader
	srv      *httptest.Server

	mu            sync.Mutex
	frames        []frame
	conn          *websocket.Conn
	gone          chan struct{}
	holdConnected chan struct{}
	connectSeen   chan struct{}
}

// holdNextConnect makes the broker stall the CONNECTED reply until the
// returned release channel is closed. connectSeen closes once the CONNECT
// frame arrives.
func (b *fakeBroker) holdNextConnect() (connectSeen <-chan struct{}, release chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.holdConnected = make(chan struct{})
	b.connectSeen = make(chan struct{})
	return b.connectSeen, b.holdConnected
}

func newFakeBroker(t *testing.T) *fakeBroker {
	t.Helper()
	b := &fakeBroker{gone: make(chan struct{})}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := b.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.mu.Lock()
		b.conn = ws
		b.mu.Unlock()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				close(b.gone)
				return
			}
			f, err := parseFrame(data)
			if err != nil {
				continue
			}
			b.mu.Lock()
			b.frames = append(b.frames, f)
			b.mu.Unlock()
			if f.Command == cmdConnect {
				b.mu.Lock()
				seen, hold := b.connectSeen, b.holdConnected
				b.connectSeen = nil
				b.mu.Unlock()
				if seen != nil {
					close(seen)
				}
				if hold != nil {
					<-hold
				}
				reply := newFrame(cmdConnected, map[string]string{"version": "1.2"}, nil)
				_ = ws.WriteMessage(websocket.TextMessage, reply.Marshal())
			}
		}
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBroker) url() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http")
}

func (b *fakeBroker) inject(t *testing.T, body string) {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotNil(t, b.conn, "no client connected")
	f := newFrame(cmdMessage, map[string]string{
		"destination": topicDestination("standup"),
		"message-id":  "m-1",
	}, []byte(body))
	require.NoError(t, b.conn.WriteMessage(websocket.TextMessage, f.Marshal()))
}

func (b *fakeBroker) injectRaw(t *testing.T, raw string) {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotNil(t, b.conn)
	require.NoError(t, b.conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}

func (b *fakeBroker) subscriptionDest() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, f := range b.frames {
		if f.Command == cmdSubscribe {
			return f.Headers["destination"]
		}
	}
	return ""
}

func (b *fakeBroker) sentCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, f := range b.frames {
		if f.Command == cmdSend {
			n++
		}
	}
	return n
}

func (b *fakeBroker) commands() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.frames))
	for i, f := range b.frames {
		out[i] = f.Command
	}
	return out
}

func (b *fakeBroker) sentEvents(t *testing.T) []chat.Event {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	var events []chat.Event
	for _, f := range b.frames {
		if f.Command != cmdSend {
			continue
		}
		ev, err := chat.Decode(f.Body)
		require.NoError(t, err)
		events = append(events, ev)
	}
	return events
}

func openConn(t *testing.T, b *fakeBroker, onEvent func(chat.Event)) *Conn {
	t.Helper()
	if onEvent == nil {
		onEvent = func(chat.Event) {}
	}
	c := New(b.url(), nil, nil)
	require.NoError(t, c.Open(context.Background(), "standup", onEvent))
	return c
}

func TestOpenSubscribesAndDelivers(t *testing.T) {
	broker := newFakeBroker(t)

	got := make(chan chat.Event, 1)
	c := openConn(t, broker, func(ev chat.Event) { got <- ev })
	defer c.Close("standup", "alice")

	assert.Equal(t, Connected, c.State())

	// The subscription must target the group topic.
	require.Eventually(t, func() bool {
		return broker.subscriptionDest() == "/topic/group/standup"
	}, time.Second, 10*time.Millisecond)

	broker.inject(t, `{"id":9,"sender":"bob","content":"hi","type":"CHAT"}`)

	select {
	case ev := <-got:
		assert.Equal(t, chat.KindChat, ev.Kind)
		assert.Equal(t, "bob", ev.Sender)
		require.NotNil(t, ev.ID)
		assert.EqualValues(t, 9, *ev.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for delivered event")
	}
}

func TestBadPayloadSwallowed(t *testing.T) {
	broker := newFakeBroker(t)

	got := make(chan chat.Event, 2)
	c := openConn(t, broker, func(ev chat.Event) { got <- ev })
	defer c.Close("standup", "alice")

	broker.inject(t, `this is not json`)
	broker.injectRaw(t, "not even a frame\x00garbage")
	broker.inject(t, `{"sender":"bob","content":"still here","type":"CHAT"}`)

	select {
	case ev := <-got:
		assert.Equal(t, "still here", ev.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("valid event after garbage was not delivered")
	}
	assert.Empty(t, got, "garbage payloads must not reach the handler")
}

func TestLeaveBeforeDisconnect(t *testing.T) {
	broker := newFakeBroker(t)
	c := openConn(t, broker, nil)

	c.Close("standup", "alice")

	// The broker must observe the LEAVE publish before the transport goes away.
	select {
	case <-broker.gone:
	case <-time.After(2 * time.Second):
		t.Fatal("broker never saw the connection close")
	}

	events := broker.sentEvents(t)
	require.Len(t, events, 1, "exactly one publish expected before teardown")
	assert.Equal(t, chat.KindLeave, events[0].Kind)
	assert.Equal(t, "alice left the group", events[0].Content)

	cmds := broker.commands()
	leaveIdx, disconnectIdx := -1, -1
	for i, cmd := range cmds {
		switch cmd {
		case cmdSend:
			leaveIdx = i
		case cmdDisconnect:
			disconnectIdx = i
		}
	}
	require.GreaterOrEqual(t, leaveIdx, 0)
	require.GreaterOrEqual(t, disconnectIdx, 0)
	assert.Less(t, leaveIdx, disconnectIdx, "LEAVE must be sent before DISCONNECT")

	assert.Equal(t, Disconnected, c.State())
}

func TestCloseNeverConnected(t *testing.T) {
	c := New("ws://127.0.0.1:1/ws", nil, nil)

	c.Close("standup", "alice")
	c.Close("standup", "alice")

	assert.Equal(t, Disconnected, c.State())
}

func TestCloseIsIdempotent(t *testing.T) {
	broker := newFakeBroker(t)
	c := openConn(t, broker, nil)

	c.Close("standup", "alice")
	c.Close("standup", "alice")

	select {
	case <-broker.gone:
	case <-time.After(2 * time.Second):
		t.Fatal("broker never saw the connection close")
	}

	events := broker.sentEvents(t)
	require.Len(t, events, 1, "double close must not double-send LEAVE")
}

func TestPublishWhileDisconnectedIsDropped(t *testing.T) {
	c := New("ws://127.0.0.1:1/ws", nil, nil)
	c.Publish("standup", chat.NewChat("alice", "dropped", nil))
	assert.Equal(t, Disconnected, c.State())
}

func TestOpenDialFailure(t *testing.T) {
	c := New("ws://127.0.0.1:1/ws", nil, nil)
	err := c.Open(context.Background(), "standup", func(chat.Event) {})
	require.Error(t, err)
	assert.Equal(t, Failed, c.State())
}

func TestOpenHandshakeRefused(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_, _, _ = ws.ReadMessage() // swallow CONNECT
		reply := newFrame(cmdError, map[string]string{"message": "forbidden"}, nil)
		_ = ws.WriteMessage(websocket.TextMessage, reply.Marshal())
	}))
	defer srv.Close()

	c := New("ws"+strings.TrimPrefix(srv.URL, "http"), nil, nil)
	err := c.Open(context.Background(), "standup", func(chat.Event) {})
	require.Error(t, err)
	assert.Equal(t, Failed, c.State())
}

func TestPublishSendsToGroupDestination(t *testing.T) {
	broker := newFakeBroker(t)
	c := openConn(t, broker, nil)
	defer c.Close("standup", "alice")

	c.Publish("standup", chat.NewChat("alice", "hello", nil))

	require.Eventually(t, func() bool {
		return broker.sentCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	broker.mu.Lock()
	defer broker.mu.Unlock()
	for _, f := range broker.frames {
		if f.Command == cmdSend {
			assert.Equal(t, "/app/chat/standup/send", f.Headers["destination"])
		}
	}
}

func TestCloseDuringHandshakeAbortsOpen(t *testing.T) {
	broker := newFakeBroker(t)
	connectSeen, release := broker.holdNextConnect()

	c := New(broker.url(), nil, nil)
	openDone := make(chan error, 1)
	go func() {
		openDone <- c.Open(context.Background(), "standup", func(chat.Event) {})
	}()

	select {
	case <-connectSeen:
	case <-time.After(2 * time.Second):
		t.Fatal("broker never saw CONNECT")
	}

	// Close races the in-flight handshake; Open must not commit afterwards.
	c.Close("standup", "alice")
	close(release)

	select {
	case err := <-openDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Open never returned")
	}
	assert.Equal(t, Disconnected, c.State())
	assert.Equal(t, 0, broker.sentCount(), "a connection that never committed must not publish")

	// The abandoned socket must actually be torn down.
	select {
	case <-broker.gone:
	case <-time.After(2 * time.Second):
		t.Fatal("aborted socket was never closed")
	}

	c.Publish("standup", chat.NewChat("alice", "dropped", nil))
	assert.Equal(t, Disconnected, c.State())
}

// Package channel manages the lifecycle of one subscription to a group's
// event stream: connect, subscribe, publish, disconnect. There is no
// automatic retry; reconnection is driven by the session controller
// restarting the sequence.
package channel

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ajoshi-dev/huddle/internal/bus"
	"github.com/ajoshi-dev/huddle/internal/chat"
	"github.com/ajoshi-dev/huddle/internal/metrics"
)

// State of the underlying transport.
type State string

const (
	Disconnected State = "DISCONNECTED"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
	Failed       State = "FAILED"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 3 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = 20 * time.Second

	// Time allowed to read the next message from the peer.
	pongWait = 25 * time.Second

	// websocket max message size to read.
	readLimit = 4096
)

func topicDestination(group string) string {
	return "/topic/group/" + group
}

func sendDestination(group string) string {
	return "/app/chat/" + group + "/send"
}

// Conn is one STOMP-over-WebSocket connection scoped to a single group topic.
type Conn struct {
	url    string
	b      *bus.Bus
	logger *zap.Logger

	mu      sync.Mutex // guards ws writes, state, closing
	ws      *websocket.Conn
	state   State
	closing bool
}

// New creates a disconnected channel connection for the given ws:// URL.
func New(url string, b *bus.Bus, logger *zap.Logger) *Conn {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Conn{
		url:    url,
		b:      b,
		logger: logger,
		state:  Disconnected,
	}
}

// State returns the current transport state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Open establishes the transport socket and subscribes to the group's topic.
// onEvent is invoked from the read loop for every event delivered on the
// topic, in delivery order; payloads that fail to parse are logged and
// swallowed. A connect error leaves the connection in the Failed state.
func (c *Conn) Open(ctx context.Context, group string, onEvent func(chat.Event)) error {
	c.mu.Lock()
	if c.state == Connecting || c.state == Connected {
		c.mu.Unlock()
		return fmt.Errorf("open channel: connection is %s", c.state)
	}
	c.state = Connecting
	c.closing = false
	c.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, c.url, http.Header{})
	if err != nil {
		return c.failOpen(fmt.Errorf("dial %s: %w", c.url, err))
	}
	ws.SetReadLimit(readLimit)

	if err := c.handshake(ws); err != nil {
		_ = ws.Close()
		return c.failOpen(err)
	}

	sub := newFrame(cmdSubscribe, map[string]string{
		"id":          "sub-" + uuid.NewString(),
		"destination": topicDestination(group),
	}, nil)
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteMessage(websocket.TextMessage, sub.Marshal()); err != nil {
		_ = ws.Close()
		return c.failOpen(fmt.Errorf("subscribe %s: %w", group, err))
	}

	c.mu.Lock()
	if c.closing {
		// Close ran while the handshake was in flight; it already moved the
		// state to Disconnected. Commit nothing and drop the fresh socket.
		c.mu.Unlock()
		_ = ws.Close()
		c.logger.Info("connect aborted, channel closed during open", zap.String("group", group))
		return nil
	}
	c.ws = ws
	c.state = Connected
	c.mu.Unlock()

	c.logger.Info("channel connected", zap.String("group", group))
	if c.b != nil {
		c.b.Emit(bus.KindChannelConnected, group)
	}

	go c.readLoop(ws, onEvent)
	go c.pingLoop(ws)
	return nil
}

func (c *Conn) handshake(ws *websocket.Conn) error {
	connect := newFrame(cmdConnect, map[string]string{
		"accept-version": "1.2",
		"heart-beat":     "0,0",
	}, nil)
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteMessage(websocket.TextMessage, connect.Marshal()); err != nil {
		return fmt.Errorf("send CONNECT: %w", err)
	}

	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	_, data, err := ws.ReadMessage()
	if err != nil {
		return fmt.Errorf("read CONNECTED: %w", err)
	}
	f, err := parseFrame(data)
	if err != nil {
		return fmt.Errorf("parse CONNECTED: %w", err)
	}
	if f.Command != cmdConnected {
		return fmt.Errorf("handshake refused: got %s frame", f.Command)
	}
	return nil
}

func (c *Conn) failOpen(err error) error {
	metrics.ConnectFailures.Inc()
	c.mu.Lock()
	c.state = Failed
	c.mu.Unlock()
	c.logger.Error("channel connect failed", zap.Error(err))
	if c.b != nil {
		c.b.Emit(bus.KindChannelFailed, err.Error())
	}
	return err
}

// Publish sends an event to the group's publish destination. When the
// connection is not in the Connected state the event is silently dropped;
// callers gate user-facing affordances on State().
func (c *Conn) Publish(group string, ev chat.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Connected {
		c.logger.Debug("publish dropped, not connected",
			zap.String("group", group), zap.String("kind", string(ev.Kind)))
		return
	}
	c.writeEvent(group, ev)
}

// writeEvent writes a SEND frame. Callers must hold c.mu.
func (c *Conn) writeEvent(group string, ev chat.Event) {
	body, err := chat.Encode(ev)
	if err != nil {
		c.logger.Error("encode outbound event", zap.Error(err))
		return
	}
	f := newFrame(cmdSend, map[string]string{
		"destination":  sendDestination(group),
		"content-type": "application/json",
	}, body)
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, f.Marshal()); err != nil {
		c.logger.Error("write event", zap.Error(err), zap.String("kind", string(ev.Kind)))
		return
	}
	metrics.Publishes.Inc()
}

// Close tears the connection down. If connected it first publishes a LEAVE
// notice for localUser — the notice must go out before the transport
// terminates or it is lost — then sends DISCONNECT and closes the socket.
// Closing a never-connected or already-closed connection publishes nothing.
// Idempotent.
func (c *Conn) Close(group, localUser string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return
	}
	c.closing = true

	if c.state == Connected && c.ws != nil {
		c.writeEvent(group, chat.LeaveNotice(localUser))

		disconnect := newFrame(cmdDisconnect, map[string]string{
			"receipt": "rcpt-" + uuid.NewString(),
		}, nil)
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.ws.WriteMessage(websocket.TextMessage, disconnect.Marshal())
		_ = c.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}
	if c.ws != nil {
		_ = c.ws.Close()
		c.ws = nil
	}

	c.state = Disconnected
	c.logger.Info("channel closed", zap.String("group", group))
	if c.b != nil {
		c.b.Emit(bus.KindChannelDisconnected, group)
	}
}

func (c *Conn) readLoop(ws *websocket.Conn, onEvent func(chat.Event)) {
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closing := c.closing
			if !closing {
				c.state = Failed
			}
			c.mu.Unlock()
			if !closing {
				c.logger.Warn("channel read failed", zap.Error(err))
				if c.b != nil {
					c.b.Emit(bus.KindChannelFailed, err.Error())
				}
			}
			return
		}

		f, err := parseFrame(data)
		if err != nil {
			metrics.ParseFailures.Inc()
			c.logger.Warn("bad inbound frame", zap.Error(err))
			continue
		}

		switch f.Command {
		case "": // heartbeat
		case cmdMessage:
			ev, err := chat.Decode(f.Body)
			if err != nil {
				metrics.ParseFailures.Inc()
				c.logger.Warn("bad inbound event", zap.Error(err))
				continue
			}
			onEvent(ev)
		case cmdReceipt:
		case cmdError:
			c.logger.Warn("broker error frame", zap.ByteString("body", f.Body))
		default:
			c.logger.Debug("ignoring frame", zap.String("command", f.Command))
		}
	}
}

func (c *Conn) pingLoop(ws *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		if c.closing || c.ws != ws {
			c.mu.Unlock()
			return
		}
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		err := ws.WriteMessage(websocket.PingMessage, nil)
		c.mu.Unlock()
		if err != nil {
			c.logger.Warn("ping failed", zap.Error(err))
			return
		}
	}
}

// Package session owns the lifecycle of one group chat session: it seeds the
// message store from persisted history, opens the channel, routes inbound
// events into the store, and translates user intents into channel publishes
// and group-service requests.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajoshi-dev/huddle/internal/bus"
	"github.com/ajoshi-dev/huddle/internal/channel"
	"github.com/ajoshi-dev/huddle/internal/chat"
	"github.com/ajoshi-dev/huddle/internal/expiry"
	"github.com/ajoshi-dev/huddle/internal/metrics"
)

// MetadataNotFound is the sentinel group name shown when the metadata fetch
// fails; the session still runs in a degraded display state.
const MetadataNotFound = "Group not found!"

var (
	// ErrNotJoined means the session has no resolved identity or group key
	// and must never start; callers redirect elsewhere.
	ErrNotJoined = errors.New("session requires a group and a logged-in user")

	// ErrNotConnected means an action needs a Connected channel.
	ErrNotConnected = errors.New("channel is not connected")
)

// Requests is the slice of the group service the controller consumes.
// Implemented by *groupapi.Client.
type Requests interface {
	Metadata(ctx context.Context, group string) (chat.Group, error)
	History(ctx context.Context, group string) []chat.Event
	DeleteMessage(ctx context.Context, id int64, group, user string) error
}

// Channel is the group event channel the controller consumes.
// Implemented by *channel.Conn.
type Channel interface {
	Open(ctx context.Context, group string, onEvent func(chat.Event)) error
	Publish(group string, ev chat.Event)
	Close(group, localUser string)
	State() channel.State
}

// Sink receives merged events for local archiving. Implemented by
// *archive.DB. The sink is best-effort; archive errors never disturb the
// live session.
type Sink interface {
	Save(group string, ev chat.Event) error
	Remove(group string, id int64) error
}

// Params identifies the (group, user) pairing for one session. JustJoined is
// set by the join/create flow so the JOIN notice goes out exactly once per
// physical join, not once per reconnect.
type Params struct {
	Group      string
	LocalUser  string
	JustJoined bool
}

// Controller orchestrates one session.
type Controller struct {
	group     string
	localUser string

	requests Requests
	channel  Channel
	store    *Store
	clock    *expiry.Clock
	machine  *Machine
	b        *bus.Bus
	logger   *zap.Logger
	sink     Sink // may be nil

	mu           sync.Mutex
	justJoined   bool
	pendingReply *chat.Event
	meta         chat.Group
	metaOK       bool
	stopped      bool

	inbound chan chat.Event
	cancel  context.CancelFunc
}

// New creates a session controller. Returns ErrNotJoined unless both the
// group identifier and the local user resolve to non-empty values.
func New(p Params, reqs Requests, ch Channel, clock *expiry.Clock, b *bus.Bus, sink Sink, logger *zap.Logger) (*Controller, error) {
	if p.Group == "" || p.LocalUser == "" {
		return nil, ErrNotJoined
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		group:      p.Group,
		localUser:  p.LocalUser,
		justJoined: p.JustJoined,
		requests:   reqs,
		channel:    ch,
		store:      NewStore(),
		clock:      clock,
		machine:    NewMachine(b),
		b:          b,
		logger:     logger,
		sink:       sink,
		inbound:    make(chan chat.Event, 256),
	}, nil
}

// Start loads history and group metadata concurrently, seeds the store, and
// opens the channel. History is always applied before the subscription so
// events arriving at subscribe time merge against the seeded base. A
// metadata failure degrades the display but blocks nothing; a history
// failure seeds empty. A connect error leaves the session Failed and is
// returned for display; there is no automatic retry.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.machine.Transition(Loading); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	var (
		wg      sync.WaitGroup
		history []chat.Event
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		history = c.requests.History(ctx, c.group)
	}()
	go func() {
		defer wg.Done()
		c.refreshMetadata(ctx)
	}()
	wg.Wait()

	if c.isStopped() {
		cancel()
		return nil
	}

	c.store.Seed(history)
	c.archiveSeed(history)
	c.logger.Info("history seeded", zap.String("group", c.group), zap.Int("events", len(history)))

	if err := c.machine.Transition(Subscribing); err != nil {
		return err
	}

	go c.pump(ctx)

	if err := c.channel.Open(ctx, c.group, c.enqueue); err != nil {
		_ = c.machine.Transition(Failed)
		cancel()
		return err
	}
	if c.isStopped() {
		cancel()
		return nil
	}
	if err := c.machine.Transition(Active); err != nil {
		return err
	}

	if c.clock != nil {
		c.clock.Start(ctx)
	}

	c.mu.Lock()
	announce := c.justJoined
	c.justJoined = false
	c.mu.Unlock()
	if announce {
		c.channel.Publish(c.group, chat.JoinNotice(c.localUser))
	}

	c.logger.Info("session active", zap.String("group", c.group), zap.String("user", c.localUser))
	return nil
}

// refreshMetadata re-fetches the group read model and resyncs the expiry
// clock. Called during Start and again after settings updates.
func (c *Controller) refreshMetadata(ctx context.Context) {
	meta, err := c.requests.Metadata(ctx, c.group)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.meta = chat.Group{GroupName: MetadataNotFound}
		c.metaOK = false
		c.logger.Warn("metadata fetch failed, degraded display", zap.String("group", c.group), zap.Error(err))
		if c.b != nil {
			c.b.Emit(bus.KindSessionDegraded, err.Error())
		}
		return
	}
	c.meta = meta
	c.metaOK = true
	if c.clock != nil {
		c.clock.Resync(meta.ExpiresInMinutes(time.Now()))
	}
	if c.b != nil {
		c.b.Emit(bus.KindGroupMetadata, meta)
	}
}

// RefreshMetadata re-reads group metadata on demand (e.g. after a settings
// update relayed through the admin surface).
func (c *Controller) RefreshMetadata(ctx context.Context) {
	c.refreshMetadata(ctx)
}

// enqueue hands an inbound channel event to the single event-processing
// flow. Delivery order is preserved; no two merges interleave.
func (c *Controller) enqueue(ev chat.Event) {
	select {
	case c.inbound <- ev:
	default:
		// Backpressure beyond the buffer drops the event; the channel
		// transport read loop must never block on a stuck consumer.
		c.logger.Warn("inbound buffer full, event dropped", zap.String("kind", string(ev.Kind)))
	}
}

func (c *Controller) pump(ctx context.Context) {
	for {
		select {
		case ev := <-c.inbound:
			c.apply(ev)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Controller) apply(ev chat.Event) {
	switch c.store.Merge(ev) {
	case Appended:
		metrics.EventsMerged.Inc()
		if c.sink != nil {
			if err := c.sink.Save(c.group, ev); err != nil {
				c.logger.Warn("archive save failed", zap.Error(err))
			}
		}
		if c.b != nil {
			c.b.Emit(bus.KindMessageMerged, ev)
		}
	case Removed:
		if c.sink != nil && ev.ID != nil {
			if err := c.sink.Remove(c.group, *ev.ID); err != nil {
				c.logger.Warn("archive remove failed", zap.Error(err))
			}
		}
		if c.b != nil {
			c.b.Emit(bus.KindMessageRemoved, ev.ID)
		}
	case Deduplicated:
		metrics.EventsDeduped.Inc()
	case Ignored:
	}
}

func (c *Controller) archiveSeed(history []chat.Event) {
	if c.sink == nil {
		return
	}
	for _, ev := range history {
		if err := c.sink.Save(c.group, ev); err != nil {
			c.logger.Warn("archive seed failed", zap.Error(err))
			return
		}
	}
}

// SendChat publishes a CHAT event carrying content. Content that is empty
// after trimming surrounding whitespace and blank lines is rejected without
// publishing. Requires a Connected channel. A staged reply target is
// captured as an immutable snapshot and cleared on send.
func (c *Controller) SendChat(content string) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil
	}
	if c.channel.State() != channel.Connected {
		return ErrNotConnected
	}

	c.mu.Lock()
	var reply *chat.ReplyRef
	if c.pendingReply != nil {
		reply = c.pendingReply.ReplySnapshot()
		c.pendingReply = nil
	}
	c.mu.Unlock()

	// No optimistic local append: the canonical copy arrives via the
	// channel's echo and dedup keeps the sequence single-entry.
	c.channel.Publish(c.group, chat.NewChat(c.localUser, trimmed, reply))
	return nil
}

// RequestDelete asks the server to delete the persisted message. On success
// the broadcast DELETE event removes it through the normal merge path. On
// failure the entry is removed locally so the acting user's view matches
// their intent; peers may not converge until a later successful broadcast.
func (c *Controller) RequestDelete(ctx context.Context, id int64) error {
	err := c.requests.DeleteMessage(ctx, id, c.group, c.localUser)
	if err == nil {
		return nil
	}

	c.logger.Warn("delete request failed, removing locally",
		zap.Int64("id", id), zap.Error(err))
	if c.store.RemoveLocally(id) {
		if c.sink != nil {
			_ = c.sink.Remove(c.group, id)
		}
		if c.b != nil {
			c.b.Emit(bus.KindMessageRemoved, &id)
		}
	}
	return err
}

// SetReplyTarget stages ev as the reply target for the next SendChat.
// Never mutates the event sequence.
func (c *Controller) SetReplyTarget(ev chat.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := ev
	c.pendingReply = &copied
}

// ClearReplyTarget discards the staged reply target.
func (c *Controller) ClearReplyTarget() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingReply = nil
}

// PendingReply returns a copy of the staged reply target, or nil.
func (c *Controller) PendingReply() *chat.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingReply == nil {
		return nil
	}
	copied := *c.pendingReply
	return &copied
}

// Stop tears the session down: the channel close publishes the LEAVE notice
// before the transport terminates, the expiry clock halts, and the event
// pump exits. Idempotent; a session stopped before it ever connected
// publishes nothing. Safe to call at any point after New, including while
// Start is still loading.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	cancel := c.cancel
	c.mu.Unlock()

	_ = c.machine.Transition(Closing)
	c.channel.Close(c.group, c.localUser)
	if c.clock != nil {
		c.clock.Stop()
	}
	if cancel != nil {
		cancel()
	}
	_ = c.machine.Transition(Closed)
	c.logger.Info("session closed", zap.String("group", c.group))
}

func (c *Controller) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// Events returns a read-only snapshot of the current event sequence.
func (c *Controller) Events() []chat.Event {
	return c.store.Snapshot()
}

// Status returns the session lifecycle state.
func (c *Controller) Status() Status {
	return c.machine.Current()
}

// ConnectionState returns the transport state.
func (c *Controller) ConnectionState() channel.State {
	return c.channel.State()
}

// Metadata returns the last fetched group read model and whether the fetch
// succeeded. On failure the group name holds the MetadataNotFound sentinel.
func (c *Controller) Metadata() (chat.Group, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.meta, c.metaOK
}

// Remaining returns the expiry countdown in minutes, or zero without a clock.
func (c *Controller) Remaining() float64 {
	if c.clock == nil {
		return 0
	}
	return c.clock.Remaining()
}

package expiry

import (
	"context"
	"sync"
	"time"

	"github.com/ajoshi-dev/huddle/internal/bus"
)

// tickStep is how much the countdown advances per second, in minutes.
const tickStep = 1.0 / 60.0

// Clock derives a local countdown to group expiration from the server's
// authoritative minutes-remaining value. It advances once per second without
// polling, and is resynchronized whenever group metadata is re-fetched.
// Reaching zero stops the countdown but does not tear the session down; the
// server is the authority on expiry.
type Clock struct {
	mu        sync.Mutex
	remaining float64 // minutes
	announced bool    // group.expired already published for this cycle

	bus    *bus.Bus
	cancel context.CancelFunc
}

// New creates a stopped clock with no remaining time. b may be nil.
func New(b *bus.Bus) *Clock {
	return &Clock{bus: b}
}

// Resync sets the authoritative remaining time, in minutes.
func (c *Clock) Resync(minutes float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if minutes < 0 {
		minutes = 0
	}
	c.remaining = minutes
	c.announced = minutes == 0
}

// Remaining returns the current countdown value, in minutes.
func (c *Clock) Remaining() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Start begins the once-per-second local countdown. Starting again stops
// the previous loop first; only one ever runs.
func (c *Clock) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	prev := c.cancel
	c.cancel = cancel
	c.mu.Unlock()
	if prev != nil {
		prev()
	}
	go c.loop(ctx)
}

// Stop halts the countdown. Safe to call without a prior Start, and safe
// to call concurrently with Start.
func (c *Clock) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Clock) loop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.tick()
		case <-ctx.Done():
			return
		}
	}
}

func (c *Clock) tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.remaining <= 0 {
		return
	}
	c.remaining -= tickStep
	if c.remaining <= 0 {
		c.remaining = 0
		if !c.announced {
			c.announced = true
			if c.bus != nil {
				c.bus.Emit(bus.KindGroupExpired, nil)
			}
		}
	}
}

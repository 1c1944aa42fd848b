package session

import (
	"fmt"
	"slices"
	"sync"

	"github.com/ajoshi-dev/huddle/internal/bus"
)

// Status represents a session lifecycle state.
type Status string

const (
	Idle        Status = "IDLE"
	Loading     Status = "LOADING"
	Subscribing Status = "SUBSCRIBING"
	Active      Status = "ACTIVE"
	Closing     Status = "CLOSING"
	Closed      Status = "CLOSED"
	Failed      Status = "FAILED"
)

// validTransitions defines allowed session state transitions. There is no
// path out of Failed except Closing: recovery means tearing the session down
// and starting a new one.
var validTransitions = map[Status][]Status{
	Idle:        {Loading, Closing},
	Loading:     {Subscribing, Failed, Closing},
	Subscribing: {Active, Failed, Closing},
	Active:      {Failed, Closing},
	Failed:      {Closing},
	Closing:     {Closed},
	Closed:      {},
}

// Machine tracks and enforces session lifecycle transitions.
type Machine struct {
	mu      sync.RWMutex
	current Status
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Idle.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Idle,
		bus:     b,
	}
}

// Current returns the current status.
func (m *Machine) Current() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new status. Returns error if the
// transition is invalid.
func (m *Machine) Transition(to Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Emit(bus.KindSessionStatusChanged, StatusChange{From: from, To: to})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From Status
	To   Status
}

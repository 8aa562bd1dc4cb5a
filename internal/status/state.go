package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/raptchat/rapt/internal/bus"
)

// State represents the daemon's session state.
type State string

const (
	Booting      State = "BOOTING"
	AuthRequired State = "AUTH_REQUIRED"
	Ready        State = "READY"
	Syncing      State = "SYNCING"
	Degraded     State = "DEGRADED"
	Error        State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:      {AuthRequired, Ready, Error},
	AuthRequired: {Ready, Error},
	Ready:        {Syncing, AuthRequired, Error},
	Syncing:      {Ready, Degraded, AuthRequired, Error},
	Degraded:     {Syncing, Ready, AuthRequired, Error},
	Error:        {Booting},
}

// Machine owns the session state. Every accepted transition is announced
// on the bus as a StatusChange.
type Machine struct {
	mu      sync.RWMutex
	current State
	since   time.Time
	bus     *bus.Bus
}

// NewMachine returns a machine in Booting.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{current: Booting, since: time.Now(), bus: b}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Since returns the current state and when it was entered.
func (m *Machine) Since() (State, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, m.since
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(to)
}

// TransitionIf moves to `to` only when the machine is currently in one of
// `from`. Reports whether the transition happened.
func (m *Machine) TransitionIf(to State, from ...State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(from, m.current) {
		return false
	}
	return m.transitionLocked(to) == nil
}

func (m *Machine) transitionLocked(to State) error {
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current, m.since = to, time.Now()
	m.bus.Publish(bus.Event{
		Kind:      bus.KindStatusChanged,
		Timestamp: m.since,
		Payload:   StatusChange{From: from, To: to},
	})
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State `json:"from"`
	To   State `json:"to"`
}

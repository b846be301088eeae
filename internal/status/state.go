package status

import (
	"fmt"
	"slices"
	"sync"
)

// State represents a daemon runtime state.
type State string

const (
	Booting   State = "BOOTING"
	Migrating State = "MIGRATING"
	Ready     State = "READY"
	Degraded  State = "DEGRADED"
	Stopping  State = "STOPPING"
	Error     State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:   {Migrating, Error},
	Migrating: {Ready, Error},
	Ready:     {Degraded, Stopping, Error},
	Degraded:  {Ready, Stopping, Error},
	Stopping:  {},
	Error:     {Booting, Stopping},
}

// Serving reports whether the daemon answers requests in this state.
func (s State) Serving() bool {
	return s == Ready || s == Degraded
}

// StatusChange is passed to the observer on every successful transition.
type StatusChange struct {
	From State
	To   State
}

// Machine tracks and enforces daemon runtime state transitions.
type Machine struct {
	mu       sync.RWMutex
	current  State
	onChange func(StatusChange)
}

// NewMachine creates a new state machine starting in Booting state. onChange may be nil;
// it runs after the lock is released.
func NewMachine(onChange func(StatusChange)) *Machine {
	return &Machine{
		current:  Booting,
		onChange: onChange,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		from := m.current
		m.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	from := m.current
	m.current = to
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange(StatusChange{From: from, To: to})
	}
	return nil
}

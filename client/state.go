package client

import (
	"fmt"
	"slices"
	"sync"
)

// State is the connection status surfaced to the application.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateReconnecting State = "RECONNECTING"
)

// validTransitions defines allowed state transitions. A manual disconnect
// and exhausted retries both land on DISCONNECTED, which only Connect
// leaves.
var validTransitions = map[State][]State{
	StateDisconnected: {StateConnecting},
	StateConnecting:   {StateConnected, StateReconnecting, StateDisconnected},
	StateConnected:    {StateReconnecting, StateDisconnected},
	StateReconnecting: {StateConnecting, StateDisconnected},
}

// machine tracks and enforces connection-state transitions.
type machine struct {
	mu       sync.RWMutex
	current  State
	onChange func(from, to State)
}

// newMachine creates a machine starting disconnected. onChange runs on
// every successful transition; it may be nil.
func newMachine(onChange func(from, to State)) *machine {
	return &machine{current: StateDisconnected, onChange: onChange}
}

// Current returns the current state.
func (m *machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns an error if the
// transition is invalid.
func (m *machine) Transition(to State) error {
	m.mu.Lock()
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		current := m.current
		m.mu.Unlock()
		return fmt.Errorf("invalid transition from %s to %s", current, to)
	}
	from := m.current
	m.current = to
	onChange := m.onChange
	m.mu.Unlock()

	if onChange != nil && from != to {
		onChange(from, to)
	}
	return nil
}

package client

import "testing"

func TestTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
		ok   bool
	}{
		{StateDisconnected, StateConnecting, true},
		{StateConnecting, StateConnected, true},
		{StateConnecting, StateReconnecting, true},
		{StateConnecting, StateDisconnected, true},
		{StateConnected, StateReconnecting, true},
		{StateConnected, StateDisconnected, true},
		{StateReconnecting, StateConnecting, true},
		{StateReconnecting, StateDisconnected, true},

		{StateDisconnected, StateConnected, false},
		{StateDisconnected, StateReconnecting, false},
		{StateConnected, StateConnecting, false},
		{StateReconnecting, StateConnected, false},
	}

	for _, tt := range tests {
		m := newMachine(nil)
		m.current = tt.from
		err := m.Transition(tt.to)
		if tt.ok && err != nil {
			t.Errorf("%s -> %s: unexpected error %v", tt.from, tt.to, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("%s -> %s: expected error", tt.from, tt.to)
		}
	}
}

func TestTransitionCallback(t *testing.T) {
	var gotFrom, gotTo State
	m := newMachine(func(from, to State) {
		gotFrom, gotTo = from, to
	})

	if err := m.Transition(StateConnecting); err != nil {
		t.Fatal(err)
	}
	if gotFrom != StateDisconnected || gotTo != StateConnecting {
		t.Errorf("callback got %s -> %s", gotFrom, gotTo)
	}
	if m.Current() != StateConnecting {
		t.Errorf("current = %s", m.Current())
	}

	// A rejected transition leaves the state and skips the callback.
	gotFrom, gotTo = "", ""
	if err := m.Transition(StateConnecting); err == nil {
		t.Fatal("self transition should be rejected")
	}
	if gotFrom != "" || gotTo != "" {
		t.Error("callback ran for a rejected transition")
	}
	if m.Current() != StateConnecting {
		t.Errorf("state moved to %s", m.Current())
	}
}

package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/crewdesk/relay/protocol"
)

// unreachable is a dial target that refuses immediately.
const unreachable = "ws://127.0.0.1:1/ws"

func fastBackoff(attempts int) Backoff {
	return Backoff{
		Base:        time.Millisecond,
		Max:         2 * time.Millisecond,
		MaxAttempts: attempts,
		ServerClose: time.Millisecond,
	}
}

func TestClientGivesUpAfterMaxAttempts(t *testing.T) {
	var mu sync.Mutex
	var states []State
	terminal := make(chan error, 1)

	c := New(Options{
		URL:         unreachable,
		Token:       "tok",
		DialTimeout: 100 * time.Millisecond,
		Backoff:     fastBackoff(3),
		OnStateChange: func(_, to State) {
			mu.Lock()
			states = append(states, to)
			mu.Unlock()
		},
		OnTerminal: func(err error) { terminal <- err },
	})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-terminal:
		if !errors.Is(err, ErrRetriesExhausted) {
			t.Errorf("terminal err = %v, want ErrRetriesExhausted", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("client never gave up")
	}
	if c.State() != StateDisconnected {
		t.Errorf("state = %s, want disconnected", c.State())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(states) == 0 || states[0] != StateConnecting {
		t.Fatalf("states = %v, want to start with connecting", states)
	}
	sawReconnecting := false
	for _, s := range states {
		if s == StateReconnecting {
			sawReconnecting = true
		}
	}
	if !sawReconnecting {
		t.Errorf("states = %v, want a reconnecting phase", states)
	}
	if states[len(states)-1] != StateDisconnected {
		t.Errorf("states = %v, want to end disconnected", states)
	}
}

func TestClientQueuesWhileOffline(t *testing.T) {
	c := New(Options{URL: unreachable, Token: "tok", QueueCap: 2})

	for i := 0; i < 2; i++ {
		if dropped, err := c.SendMessage(protocol.MessageSend{Content: "m"}); err != nil || dropped != 0 {
			t.Fatalf("queue send: dropped=%d err=%v", dropped, err)
		}
	}
	// Past capacity: the oldest entry is displaced, never the newest.
	dropped, err := c.SendMessage(protocol.MessageSend{Content: "newest"})
	if err != nil {
		t.Fatal(err)
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if c.Queued() != 2 {
		t.Errorf("queued = %d, want 2", c.Queued())
	}
}

func TestEmitsRequireConnection(t *testing.T) {
	c := New(Options{URL: unreachable, Token: "tok"})

	emits := []struct {
		desc string
		call func() error
	}{
		{"join", func() error { return c.JoinConversation("c1") }},
		{"open", func() error { return c.OpenConversation("bob") }},
		{"read", func() error { return c.MarkRead("m1", "c1") }},
		{"react", func() error { return c.React("m1", "👍", "add") }},
		{"typing", func() error { return c.StartTyping("c1") }},
	}
	for _, e := range emits {
		if err := e.call(); !errors.Is(err, ErrNotConnected) {
			t.Errorf("%s err = %v, want ErrNotConnected", e.desc, err)
		}
	}
}

func TestConnectTwiceFails(t *testing.T) {
	c := New(Options{
		URL:     unreachable,
		Token:   "tok",
		Backoff: fastBackoff(0), // retry forever
	})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Disconnect()

	if err := c.Connect(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Connect err = %v, want ErrAlreadyStarted", err)
	}
}

func TestDisconnectStopsRetrying(t *testing.T) {
	c := New(Options{
		URL:     unreachable,
		Token:   "tok",
		Backoff: Backoff{Base: time.Hour, Max: time.Hour, ServerClose: time.Hour},
	})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	// The first dial fails fast, leaving the loop in its hour-long backoff
	// sleep; Disconnect must cut it short.
	done := make(chan struct{})
	go func() {
		c.Disconnect()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Disconnect did not stop the retry loop")
	}
	if c.State() != StateDisconnected {
		t.Errorf("state = %s, want disconnected", c.State())
	}

	// A fresh Connect is allowed after a manual disconnect.
	if err := c.Connect(context.Background()); err != nil {
		t.Errorf("reconnect after Disconnect: %v", err)
	}
	c.Disconnect()
}

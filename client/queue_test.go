package client

import (
	"fmt"
	"testing"

	"github.com/crewdesk/relay/protocol"
)

func TestQueueDrainsInOrder(t *testing.T) {
	q := newSendQueue(10)
	for i := 0; i < 3; i++ {
		if dropped := q.push(protocol.MessageSend{Content: fmt.Sprintf("m%d", i)}); dropped != 0 {
			t.Fatalf("dropped %d below capacity", dropped)
		}
	}
	if q.len() != 3 {
		t.Fatalf("len = %d, want 3", q.len())
	}

	out := q.drain()
	for i, msg := range out {
		if want := fmt.Sprintf("m%d", i); msg.Content != want {
			t.Errorf("out[%d] = %q, want %q", i, msg.Content, want)
		}
	}
	if q.len() != 0 {
		t.Errorf("len after drain = %d, want 0", q.len())
	}
}

func TestQueueDropsOldestAtCapacity(t *testing.T) {
	q := newSendQueue(2)
	q.push(protocol.MessageSend{Content: "m0"})
	q.push(protocol.MessageSend{Content: "m1"})

	if dropped := q.push(protocol.MessageSend{Content: "m2"}); dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}

	out := q.drain()
	if len(out) != 2 || out[0].Content != "m1" || out[1].Content != "m2" {
		t.Errorf("out = %v, want [m1 m2]", contents(out))
	}
}

func contents(msgs []protocol.MessageSend) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

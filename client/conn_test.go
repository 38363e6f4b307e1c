package client

import (
	"testing"

	"github.com/crewdesk/relay/protocol"
)

func TestDispatchRoutesToTypedHandlers(t *testing.T) {
	var gotNew *protocol.MessageNew
	var gotTyping *protocol.Typing
	h := Handlers{
		MessageNew:  func(p protocol.MessageNew) { gotNew = &p },
		TypingStart: func(p protocol.Typing) { gotTyping = &p },
	}
	c := &conn{}

	c.dispatch(h, protocol.MustEncode(protocol.KindMessageNew, protocol.MessageNew{
		ConversationID: "c1",
		Message:        &protocol.Message{ID: "m1", Content: "hi"},
	}))
	if gotNew == nil || gotNew.Message.ID != "m1" {
		t.Fatalf("MessageNew handler got %+v", gotNew)
	}

	c.dispatch(h, protocol.MustEncode(protocol.KindTypingStart, protocol.Typing{
		ConversationID: "c1", UserID: "bob",
	}))
	if gotTyping == nil || gotTyping.UserID != "bob" {
		t.Fatalf("TypingStart handler got %+v", gotTyping)
	}
}

func TestDispatchIgnoresUnsetAndUnknown(t *testing.T) {
	c := &conn{}
	// No handlers set, unknown kind, garbage payload: none may panic.
	c.dispatch(Handlers{}, protocol.MustEncode(protocol.KindMessageNew, protocol.MessageNew{}))
	c.dispatch(Handlers{}, []byte(`{"event":"future:thing","data":{}}`))
	c.dispatch(Handlers{
		MessageNew: func(protocol.MessageNew) { t.Fatal("handler ran on bad payload") },
	}, []byte(`{"event":"message:new","data":[1,2]}`))
}

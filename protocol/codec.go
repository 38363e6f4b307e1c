package protocol

import (
	"encoding/json"
	"fmt"
)

// Envelope is the frame format on the wire: an event name plus its payload.
type Envelope struct {
	Event Kind            `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode marshals an event into a wire frame.
func Encode(kind Kind, payload any) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", kind, err)
		}
		data = raw
	}
	return json.Marshal(Envelope{Event: kind, Data: data})
}

// MustEncode is Encode for payloads that cannot fail to marshal.
func MustEncode(kind Kind, payload any) []byte {
	raw, err := Encode(kind, payload)
	if err != nil {
		panic(err)
	}
	return raw
}

// ParseClientEvent decodes a raw frame from a client into one of the typed
// payload structs. The returned value is always a pointer to one of the
// client event types; unknown kinds are an error so the dispatch switch in
// the router stays exhaustive.
func ParseClientEvent(raw []byte) (Kind, any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, fmt.Errorf("decode frame: %w", err)
	}

	var payload any
	switch env.Event {
	case KindConversationJoin:
		payload = &ConversationJoin{}
	case KindConversationLeave:
		payload = &ConversationLeave{}
	case KindConversationOpen:
		payload = &ConversationOpen{}
	case KindMessageSend:
		payload = &MessageSend{}
	case KindMessageRead:
		payload = &MessageRead{}
	case KindMessageReact:
		payload = &MessageReact{}
	case KindMessageDelete:
		payload = &MessageDelete{}
	case KindTypingStart, KindTypingStop:
		payload = &Typing{}
	default:
		return env.Event, nil, fmt.Errorf("unknown client event %q", env.Event)
	}

	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, payload); err != nil {
			return env.Event, nil, fmt.Errorf("decode %s payload: %w", env.Event, err)
		}
	}
	return env.Event, payload, nil
}

package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/fasthttp/websocket"

	"github.com/crewdesk/relay/protocol"
)

// Handlers are the typed application callbacks for server events. Nil
// entries ignore that event.
type Handlers struct {
	MessageNew         func(protocol.MessageNew)
	MessageRead        func(protocol.ReadNotice)
	MessageReaction    func(protocol.ReactionNotice)
	MessageDeleted     func(protocol.DeletedNotice)
	TypingStart        func(protocol.Typing)
	TypingStop         func(protocol.Typing)
	UserOnline         func(protocol.Presence)
	UserOffline        func(protocol.Presence)
	ConversationJoined func(protocol.ConversationJoined)
	UploadProgress     func(protocol.UploadProgress)
	UploadComplete     func(protocol.UploadComplete)
	UploadError        func(protocol.UploadError)
	Error              func(protocol.ErrorEvent)
}

// conn is one live websocket connection with serialized writes.
type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

// dialConn opens a websocket to the server with the bearer credential in
// the query string (and mirrored in the Authorization header).
func dialConn(rawURL, token string, timeout time.Duration) (*conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	ws, _, err := dialer.Dial(u.String(), header)
	if err != nil {
		return nil, err
	}
	return &conn{ws: ws}, nil
}

// writeEvent marshals and writes one frame. Safe for concurrent callers.
func (c *conn) writeEvent(kind protocol.Kind, payload any) error {
	frame, err := protocol.Encode(kind, payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

// ping sends a liveness probe.
func (c *conn) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
}

func (c *conn) close() {
	_ = c.ws.Close()
}

// readLoop dispatches inbound frames to the handlers until the transport
// fails or closes. The returned error classifies the disconnect.
func (c *conn) readLoop(h Handlers, pongWait time.Duration) error {
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		c.dispatch(h, raw)
	}
}

// dispatch decodes one server frame and invokes the matching handler.
// Unknown kinds are ignored so old clients survive protocol additions.
func (c *conn) dispatch(h Handlers, raw []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return
	}

	switch env.Event {
	case protocol.KindMessageNew:
		call(h.MessageNew, env.Data)
	case protocol.KindMessageRead:
		call(h.MessageRead, env.Data)
	case protocol.KindMessageReaction:
		call(h.MessageReaction, env.Data)
	case protocol.KindMessageDeleted:
		call(h.MessageDeleted, env.Data)
	case protocol.KindTypingStart:
		call(h.TypingStart, env.Data)
	case protocol.KindTypingStop:
		call(h.TypingStop, env.Data)
	case protocol.KindUserOnline:
		call(h.UserOnline, env.Data)
	case protocol.KindUserOffline:
		call(h.UserOffline, env.Data)
	case protocol.KindConversationJoined:
		call(h.ConversationJoined, env.Data)
	case protocol.KindUploadProgress:
		call(h.UploadProgress, env.Data)
	case protocol.KindUploadComplete:
		call(h.UploadComplete, env.Data)
	case protocol.KindUploadError:
		call(h.UploadError, env.Data)
	case protocol.KindError:
		call(h.Error, env.Data)
	}
}

// call unmarshals the payload and invokes a typed handler when set.
func call[T any](handler func(T), data json.RawMessage) {
	if handler == nil {
		return
	}
	var payload T
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			return
		}
	}
	handler(payload)
}

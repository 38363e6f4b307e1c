package hub

import (
	"sync"
	"time"

	"github.com/crewdesk/relay/internal/identity"
)

// Conn is the transport surface a session writes to. The websocket handler
// provides the real connection; tests substitute a recording fake.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// TextMessage matches the websocket text opcode without importing the
// transport package here.
const TextMessage = 1

// Session is one live authenticated connection. It exists from successful
// handshake to disconnect and is never persisted.
type Session struct {
	Principal identity.Principal

	conn Conn
	send chan []byte

	mu        sync.Mutex
	closed    bool
	heartbeat time.Time
}

// NewSession wraps an accepted connection. sendBuf bounds the per-session
// outbound queue; a slow consumer misses frames rather than stalling the
// fan-out.
func NewSession(p identity.Principal, conn Conn, sendBuf int) *Session {
	return &Session{
		Principal: p,
		conn:      conn,
		send:      make(chan []byte, sendBuf),
		heartbeat: time.Now(),
	}
}

// UserID returns the principal identity this session is keyed by.
func (s *Session) UserID() string { return s.Principal.ID }

// Send queues a frame for delivery. Non-blocking: returns false when the
// session is closed or its buffer is full.
func (s *Session) Send(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// WritePump drains queued frames into the connection. Runs until Close.
func (s *Session) WritePump() {
	for frame := range s.send {
		if err := s.conn.WriteMessage(TextMessage, frame); err != nil {
			return
		}
	}
}

// Close shuts the outbound queue and the underlying connection. Safe to
// call more than once; eviction and normal disconnect can race.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.send)
	s.mu.Unlock()
	_ = s.conn.Close()
}

// Touch records transport liveness.
func (s *Session) Touch() {
	s.mu.Lock()
	s.heartbeat = time.Now()
	s.mu.Unlock()
}

// LastSeen returns the last recorded liveness time.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heartbeat
}

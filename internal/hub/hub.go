// Package hub is the server-side session registry and room fan-out: one
// live session per principal, a membership table per named room, and
// broadcast operations the router delivers events through. The daemon owns
// one Hub instance and injects it where needed; nothing holds a package
// global.
package hub

import (
	"sync"
)

// Room name builders. One personal room per user, one room per
// conversation.
func UserRoom(userID string) string { return "user:" + userID }

func ConversationRoom(conversationID string) string { return "conversation:" + conversationID }

// Hub tracks live sessions and room membership under one mutex.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session            // user id -> live session
	rooms    map[string]map[string]*Session // room -> user id -> session
	joined   map[string]map[string]bool     // user id -> room set
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{
		sessions: make(map[string]*Session),
		rooms:    make(map[string]map[string]*Session),
		joined:   make(map[string]map[string]bool),
	}
}

// Register installs a session as the one live connection for its
// principal. A previous session for the same identity is removed from all
// rooms and returned so the caller can close it: last connect wins.
func (h *Hub) Register(s *Session) (evicted *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := s.UserID()
	if old, ok := h.sessions[id]; ok && old != s {
		h.removeLocked(old)
		evicted = old
	}
	h.sessions[id] = s
	h.joined[id] = make(map[string]bool)
	return evicted
}

// Unregister removes a session and all its room membership. A session that
// was already evicted by a newer connection for the same identity is left
// alone; the return value reports whether this call removed the live
// session (callers broadcast presence-offline only in that case).
func (h *Hub) Unregister(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[s.UserID()] == s {
		h.removeLocked(s)
		return true
	}
	return false
}

// removeLocked drops a session from the registry and every room.
// Caller holds h.mu.
func (h *Hub) removeLocked(s *Session) {
	id := s.UserID()
	for room := range h.joined[id] {
		if members, ok := h.rooms[room]; ok {
			delete(members, id)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	delete(h.joined, id)
	delete(h.sessions, id)
}

// Join adds the principal's live session to a room. No-op when the
// principal has no live session.
func (h *Hub) Join(userID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[userID]
	if !ok {
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*Session)
	}
	h.rooms[room][userID] = s
	h.joined[userID][room] = true
}

// Leave removes the principal from a room.
func (h *Hub) Leave(userID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[room]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if rooms, ok := h.joined[userID]; ok {
		delete(rooms, room)
	}
}

// InRoom reports whether the principal's live session has joined the room.
func (h *Hub) InRoom(userID, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.joined[userID] != nil && h.joined[userID][room]
}

// Session returns the live session for a principal, or nil.
func (h *Hub) Session(userID string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[userID]
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// BroadcastRoom delivers a frame to every room member except the excluded
// identities. Delivery per session is non-blocking.
func (h *Hub) BroadcastRoom(room string, frame []byte, exclude ...string) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.rooms[room]))
	for id, s := range h.rooms[room] {
		if !contains(exclude, id) {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.Send(frame)
	}
}

// SendUser delivers a frame to one principal's live session. Returns false
// when the principal is offline or the session buffer is full.
func (h *Hub) SendUser(userID string, frame []byte) bool {
	h.mu.RLock()
	s := h.sessions[userID]
	h.mu.RUnlock()
	if s == nil {
		return false
	}
	return s.Send(frame)
}

// BroadcastAll delivers a frame to every live session except the excluded
// identities. Used for presence, which is global rather than room-scoped.
func (h *Hub) BroadcastAll(frame []byte, exclude ...string) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for id, s := range h.sessions {
		if !contains(exclude, id) {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.Send(frame)
	}
}

// OnlineInRoom returns the identities with a live session in the room.
func (h *Hub) OnlineInRoom(room string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.rooms[room]))
	for id := range h.rooms[room] {
		ids = append(ids, id)
	}
	return ids
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

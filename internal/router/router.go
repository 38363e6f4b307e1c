// Package router dispatches inbound client events: it validates
// participation, mutates the chat store, and fans the results out through
// the hub. It is the single writer per conversation — a keyed mutex is held
// across each mutation and its broadcast so room members observe events in
// commit order.
package router

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/crewdesk/relay/internal/bus"
	"github.com/crewdesk/relay/internal/chat"
	"github.com/crewdesk/relay/internal/hub"
	"github.com/crewdesk/relay/internal/metrics"
	"github.com/crewdesk/relay/protocol"
)

// Options tunes per-session inbound rate limiting.
type Options struct {
	EventRate  rate.Limit
	EventBurst int
}

// DefaultOptions allows a comfortable interactive rate.
func DefaultOptions() Options {
	return Options{EventRate: 25, EventBurst: 50}
}

// Router routes client events between sessions, the chat service and the
// hub.
type Router struct {
	hub    *hub.Hub
	svc    *chat.Service
	bus    *bus.Bus
	logger *zap.Logger
	opts   Options

	convLocks sync.Map // conversation id -> *sync.Mutex

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	stopUpload func()
}

// New creates a router.
func New(h *hub.Hub, svc *chat.Service, b *bus.Bus, opts Options, logger *zap.Logger) *Router {
	return &Router{
		hub:      h,
		svc:      svc,
		bus:      b,
		logger:   logger,
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
	}
}

// lockConversation serializes mutation and fan-out for one conversation.
func (r *Router) lockConversation(id string) func() {
	v, _ := r.convLocks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Connect registers an authenticated session: evicts any previous session
// for the principal, joins the personal room and the rooms of all active
// conversations, and broadcasts presence-online to everyone else.
func (r *Router) Connect(s *hub.Session) error {
	if evicted := r.hub.Register(s); evicted != nil {
		r.logger.Info("evicting previous session", zap.String("user", s.UserID()))
		evicted.Close()
	}
	metrics.SessionsOnline.Set(float64(r.hub.Count()))

	userID := s.UserID()
	r.hub.Join(userID, hub.UserRoom(userID))

	convIDs, err := r.svc.ActiveConversationIDs(userID)
	if err != nil {
		// A failed setup must not leave a dead session registered. No
		// presence-online went out yet, so none is retracted.
		r.hub.Unregister(s)
		metrics.SessionsOnline.Set(float64(r.hub.Count()))
		return err
	}
	for _, id := range convIDs {
		r.hub.Join(userID, hub.ConversationRoom(id))
	}

	r.hub.BroadcastAll(protocol.MustEncode(protocol.KindUserOnline, protocol.Presence{UserID: userID}), userID)
	r.logger.Info("session connected",
		zap.String("user", userID), zap.Int("conversations", len(convIDs)))
	return nil
}

// Disconnect removes a session. Presence-offline is broadcast only when
// this session was still the principal's live one (not displaced by a
// newer connection).
func (r *Router) Disconnect(s *hub.Session) {
	userID := s.UserID()
	wasLive := r.hub.Unregister(s)
	s.Close()

	r.mu.Lock()
	delete(r.limiters, userID)
	r.mu.Unlock()

	metrics.SessionsOnline.Set(float64(r.hub.Count()))
	if wasLive {
		r.hub.BroadcastAll(protocol.MustEncode(protocol.KindUserOffline, protocol.Presence{UserID: userID}), userID)
		r.logger.Info("session disconnected", zap.String("user", userID))
	}
}

func (r *Router) limiter(userID string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[userID]
	if !ok {
		l = rate.NewLimiter(r.opts.EventRate, r.opts.EventBurst)
		r.limiters[userID] = l
	}
	return l
}

// HandleFrame processes one inbound frame to completion. The caller (the
// per-connection read loop) invokes it serially, so each event's mutation
// and broadcast finish before the next event from the same connection.
func (r *Router) HandleFrame(s *hub.Session, raw []byte) {
	if !r.limiter(s.UserID()).Allow() {
		metrics.RateLimited.Inc()
		r.sendError(s, protocol.ReasonRateLimited, "too many events")
		return
	}

	kind, payload, err := protocol.ParseClientEvent(raw)
	if err != nil {
		r.sendError(s, protocol.ReasonBadRequest, "malformed event")
		return
	}
	metrics.EventsIn.WithLabelValues(string(kind)).Inc()

	switch p := payload.(type) {
	case *protocol.ConversationJoin:
		r.handleJoin(s, p)
	case *protocol.ConversationLeave:
		r.hub.Leave(s.UserID(), hub.ConversationRoom(p.ConversationID))
	case *protocol.ConversationOpen:
		r.handleOpen(s, p)
	case *protocol.MessageSend:
		r.handleSend(s, p)
	case *protocol.MessageRead:
		r.handleRead(s, p)
	case *protocol.MessageReact:
		r.handleReact(s, p)
	case *protocol.MessageDelete:
		r.handleDelete(s, p)
	case *protocol.Typing:
		r.handleTyping(s, kind, p)
	}
}

func (r *Router) handleJoin(s *hub.Session, p *protocol.ConversationJoin) {
	ids, err := r.svc.ParticipantIDs(p.ConversationID)
	if err != nil {
		r.storeError(s, "join", err)
		return
	}
	member := false
	for _, id := range ids {
		if id == s.UserID() {
			member = true
			break
		}
	}
	if !member {
		r.sendError(s, protocol.ReasonNotParticipant, "not a participant")
		return
	}
	r.hub.Join(s.UserID(), hub.ConversationRoom(p.ConversationID))
	s.Send(protocol.MustEncode(protocol.KindConversationJoined,
		protocol.ConversationJoined{ConversationID: p.ConversationID}))
}

func (r *Router) handleOpen(s *hub.Session, p *protocol.ConversationOpen) {
	conv, created, err := r.svc.EnsureDirect(s.UserID(), p.PeerID)
	if err != nil {
		r.eventError(s, err)
		return
	}
	room := hub.ConversationRoom(conv.ID)
	r.hub.Join(s.UserID(), room)
	// The peer's live session, if any, joins too so it receives the first
	// message without a reconnect.
	if r.hub.Session(p.PeerID) != nil {
		r.hub.Join(p.PeerID, room)
	}
	frame := protocol.MustEncode(protocol.KindConversationJoined,
		protocol.ConversationJoined{ConversationID: conv.ID})
	s.Send(frame)
	if created {
		r.hub.SendUser(p.PeerID, frame)
	}
}

func (r *Router) handleSend(s *hub.Session, p *protocol.MessageSend) {
	unlock := r.lockConversation(p.ConversationID)
	defer unlock()

	msg, err := r.svc.Send(chat.SendInput{
		ConversationID: p.ConversationID,
		SenderID:       s.UserID(),
		Content:        p.Content,
		Kind:           p.Type,
		Attachments:    p.Attachments,
		ReplyTo:        p.ReplyTo,
		Mentions:       p.Mentions,
	})
	if err != nil {
		r.eventError(s, err)
		return
	}
	metrics.MessagesSent.WithLabelValues(msg.Kind).Inc()

	frame := protocol.MustEncode(protocol.KindMessageNew, protocol.MessageNew{
		ConversationID: msg.ConversationID,
		Message:        msg,
	})
	room := hub.ConversationRoom(msg.ConversationID)
	r.hub.BroadcastRoom(room, frame)
	metrics.FramesOut.Inc()

	// Personal rooms cover participants that have not yet joined the
	// conversation room after a fresh connection.
	participants, err := r.svc.ParticipantIDs(msg.ConversationID)
	if err != nil {
		r.logger.Warn("participant fan-out skipped", zap.Error(err))
		return
	}
	delivered := false
	for _, id := range participants {
		if !r.hub.InRoom(id, room) {
			r.hub.SendUser(id, frame)
		}
		if id != msg.SenderID && r.hub.Session(id) != nil {
			delivered = true
		}
	}
	if delivered {
		if err := r.svc.MarkDelivered(msg.ID); err != nil {
			r.logger.Warn("mark delivered failed", zap.String("message", msg.ID), zap.Error(err))
		}
	}
}

func (r *Router) handleRead(s *hub.Session, p *protocol.MessageRead) {
	// The lock key comes from the stored message, not the payload, so a
	// mismatched conversation id cannot bypass the single-writer ordering.
	prev, err := r.svc.Message(p.MessageID)
	if err != nil {
		r.eventError(s, err)
		return
	}

	unlock := r.lockConversation(prev.ConversationID)
	defer unlock()

	msg, _, err := r.svc.MarkRead(p.MessageID, s.UserID())
	if err != nil {
		r.eventError(s, err)
		return
	}
	r.hub.BroadcastRoom(hub.ConversationRoom(msg.ConversationID),
		protocol.MustEncode(protocol.KindMessageRead, protocol.ReadNotice{
			MessageID:      msg.ID,
			ConversationID: msg.ConversationID,
			UserID:         s.UserID(),
			Status:         msg.Status,
		}))
}

func (r *Router) handleReact(s *hub.Session, p *protocol.MessageReact) {
	msg, err := r.svc.Message(p.MessageID)
	if err != nil {
		r.eventError(s, err)
		return
	}

	unlock := r.lockConversation(msg.ConversationID)
	defer unlock()

	reactions, err := r.svc.React(p.MessageID, s.UserID(), p.Emoji, p.Action)
	if err != nil {
		r.eventError(s, err)
		return
	}
	r.hub.BroadcastRoom(hub.ConversationRoom(msg.ConversationID),
		protocol.MustEncode(protocol.KindMessageReaction, protocol.ReactionNotice{
			MessageID: p.MessageID,
			Emoji:     p.Emoji,
			Action:    p.Action,
			UserID:    s.UserID(),
			Reactions: reactions,
		}))
}

func (r *Router) handleDelete(s *hub.Session, p *protocol.MessageDelete) {
	prev, err := r.svc.Message(p.MessageID)
	if err != nil {
		r.eventError(s, err)
		return
	}

	unlock := r.lockConversation(prev.ConversationID)
	defer unlock()

	msg, err := r.svc.Delete(p.MessageID, s.UserID())
	if err != nil {
		r.eventError(s, err)
		return
	}
	r.hub.BroadcastRoom(hub.ConversationRoom(msg.ConversationID),
		protocol.MustEncode(protocol.KindMessageDeleted, protocol.DeletedNotice{
			MessageID:      msg.ID,
			ConversationID: msg.ConversationID,
		}))
}

// handleTyping relays typing state to the conversation room, excluding the
// sender. Nothing is persisted and lost events are acceptable.
func (r *Router) handleTyping(s *hub.Session, kind protocol.Kind, p *protocol.Typing) {
	room := hub.ConversationRoom(p.ConversationID)
	if !r.hub.InRoom(s.UserID(), room) {
		return
	}
	r.hub.BroadcastRoom(room, protocol.MustEncode(kind, protocol.Typing{
		ConversationID: p.ConversationID,
		UserID:         s.UserID(),
	}), s.UserID())
}

// StartUploadRelay begins relaying upload pipeline events from the bus to
// conversation rooms. The events are advisory; the authoritative attachment
// state is the message's descriptor list.
func (r *Router) StartUploadRelay(ctx context.Context) {
	ch, unsub := r.bus.Subscribe("upload.", 64)
	ctx, cancel := context.WithCancel(ctx)
	r.stopUpload = cancel

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				r.relayUpload(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// StopUploadRelay stops the relay goroutine.
func (r *Router) StopUploadRelay() {
	if r.stopUpload != nil {
		r.stopUpload()
	}
}

func (r *Router) relayUpload(evt bus.Event) {
	switch p := evt.Payload.(type) {
	case protocol.UploadProgress:
		r.hub.BroadcastRoom(hub.ConversationRoom(p.ConversationID),
			protocol.MustEncode(protocol.KindUploadProgress, p))
	case protocol.UploadComplete:
		r.hub.BroadcastRoom(hub.ConversationRoom(p.ConversationID),
			protocol.MustEncode(protocol.KindUploadComplete, p))
	case protocol.UploadError:
		r.hub.BroadcastRoom(hub.ConversationRoom(p.ConversationID),
			protocol.MustEncode(protocol.KindUploadError, p))
	}
}

// eventError maps a chat service failure to a per-event error response.
// Authorization failures disclose nothing about the conversation.
func (r *Router) eventError(s *hub.Session, err error) {
	switch {
	case errors.Is(err, chat.ErrNotParticipant), errors.Is(err, chat.ErrNotSender):
		r.sendError(s, protocol.ReasonNotParticipant, "not a participant")
	case errors.Is(err, chat.ErrEmptyMessage):
		r.sendError(s, protocol.ReasonEmptyMessage, "message is empty")
	case errors.Is(err, chat.ErrTooLong), errors.Is(err, chat.ErrAttachmentSize),
		errors.Is(err, chat.ErrNotFound):
		r.sendError(s, protocol.ReasonBadRequest, err.Error())
	default:
		r.storeError(s, "mutation", err)
	}
}

// storeError logs a persistence failure and acknowledges it to the sender
// only. The mutate-then-broadcast order means nothing was partially fanned
// out; the client must re-issue.
func (r *Router) storeError(s *hub.Session, op string, err error) {
	r.logger.Error("store operation failed",
		zap.String("op", op), zap.String("user", s.UserID()), zap.Error(err))
	r.sendError(s, protocol.ReasonStoreFailure, "operation failed, please retry")
}

func (r *Router) sendError(s *hub.Session, reason protocol.Reason, msg string) {
	metrics.EventErrors.WithLabelValues(string(reason)).Inc()
	s.Send(protocol.MustEncode(protocol.KindError, protocol.ErrorEvent{Reason: reason, Message: msg}))
}

// Package chat implements the conversation and message operations the room
// router calls into: conversation creation with direct-pair uniqueness,
// message sends with validation and kind derivation, idempotent read
// receipts and reactions, and soft deletion.
package chat

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/crewdesk/relay/protocol"
	"github.com/crewdesk/relay/internal/store"
)

// Mutation failures the router maps to per-event error responses.
var (
	ErrNotParticipant = errors.New("not a participant of this conversation")
	ErrEmptyMessage   = errors.New("message has no content and no attachments")
	ErrNotFound       = errors.New("not found")
	ErrNotSender      = errors.New("only the sender may delete a message")
	ErrTooLong        = errors.New("content exceeds the maximum length")
	ErrAttachmentSize = errors.New("attachment exceeds the maximum size")
)

// Limits bounds message content and attachments.
type Limits struct {
	MaxContentLen     int
	MaxAttachmentSize int64
}

// DefaultLimits matches the documented bounds.
func DefaultLimits() Limits {
	return Limits{MaxContentLen: 4000, MaxAttachmentSize: 50 << 20}
}

// Service exposes the conversation/message mutations. All calls that write
// message state for one conversation are serialized by the router.
type Service struct {
	db     *store.DB
	limits Limits
	logger *zap.Logger

	entropy *ulid.LockedMonotonicReader
	now     func() time.Time
}

// NewService creates the chat service.
func NewService(db *store.DB, limits Limits, logger *zap.Logger) *Service {
	// Sends into different conversations run concurrently, so the entropy
	// source must be locked.
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return &Service{
		db:      db,
		limits:  limits,
		logger:  logger,
		entropy: &ulid.LockedMonotonicReader{MonotonicReader: entropy},
		now:     time.Now,
	}
}

// newMessageID returns a ULID. ULIDs sort lexicographically by creation
// time, which gives per-conversation keyset pagination its order.
func (s *Service) newMessageID() string {
	return ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
}

// EnsureDirect returns the active direct conversation between two
// identities, creating it when none exists. Requesting an existing pair
// returns the existing conversation, never a duplicate.
func (s *Service) EnsureDirect(userID, peerID string) (*store.Conversation, bool, error) {
	if userID == "" || peerID == "" || userID == peerID {
		return nil, false, fmt.Errorf("%w: invalid direct pair", ErrNotFound)
	}
	if existing, err := s.db.FindActiveDirect(userID, peerID); err != nil {
		return nil, false, err
	} else if existing != nil {
		return existing, false, nil
	}

	conv := &store.Conversation{ID: uuid.NewString(), Kind: "direct"}
	err := s.db.CreateConversation(conv, []string{userID, peerID})
	if err != nil {
		// A concurrent open for the same pair can lose the insert race on
		// the pair_key index; the winner's row is the conversation.
		if existing, ferr := s.db.FindActiveDirect(userID, peerID); ferr == nil && existing != nil {
			return existing, false, nil
		}
		return nil, false, err
	}
	return conv, true, nil
}

// CreateGroup creates a group conversation. Groups with more than two
// members need a display name; an absent one is generated from the member
// names.
func (s *Service) CreateGroup(name string, memberIDs []string) (*store.Conversation, error) {
	if len(memberIDs) < 2 {
		return nil, fmt.Errorf("%w: a group needs at least two members", ErrNotFound)
	}
	if name == "" && len(memberIDs) > 2 {
		var names []string
		for _, id := range memberIDs {
			u, err := s.db.GetUser(id)
			if err != nil {
				return nil, err
			}
			if u != nil && u.Name != "" {
				names = append(names, u.Name)
			} else {
				names = append(names, id)
			}
		}
		name = store.AutoGroupName(names)
	}
	conv := &store.Conversation{ID: uuid.NewString(), Kind: "group", Name: name}
	if err := s.db.CreateConversation(conv, memberIDs); err != nil {
		return nil, err
	}
	return conv, nil
}

// SendInput is a validated message:send request.
type SendInput struct {
	ConversationID string
	SenderID       string
	Content        string
	Kind           string
	Attachments    []protocol.Attachment
	ReplyTo        string
	Mentions       []string
}

// Send validates and persists a message, updates the conversation's
// last-message pointer and activity timestamp, and returns the committed
// aggregate. The caller broadcasts only after this returns.
func (s *Service) Send(in SendInput) (*store.Message, error) {
	conv, err := s.db.GetConversation(in.ConversationID, false)
	if err != nil {
		return nil, err
	}
	if conv == nil || !conv.Active {
		return nil, ErrNotFound
	}
	if !IsParticipant(conv.Participants, in.SenderID) {
		return nil, ErrNotParticipant
	}

	content := strings.TrimSpace(in.Content)
	if content == "" && len(in.Attachments) == 0 {
		return nil, ErrEmptyMessage
	}
	if len(content) > s.limits.MaxContentLen {
		return nil, ErrTooLong
	}
	for _, a := range in.Attachments {
		if a.Size > s.limits.MaxAttachmentSize {
			return nil, ErrAttachmentSize
		}
	}

	kind := in.Kind
	if kind == "" {
		kind = deriveKind(in.Attachments)
	}

	msg := &store.Message{
		ID:             s.newMessageID(),
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Content:        content,
		Kind:           kind,
		Attachments:    in.Attachments,
		ReplyTo:        in.ReplyTo,
		Mentions:       in.Mentions,
		Status:         store.StatusSent,
	}
	if err := s.db.InsertMessage(msg); err != nil {
		return nil, err
	}
	if err := s.db.TouchConversation(in.ConversationID, msg.ID, msg.CreatedAt); err != nil {
		// The message is committed; a stale pointer only degrades previews.
		s.logger.Warn("touch conversation failed",
			zap.String("conversation", in.ConversationID), zap.Error(err))
	}
	return msg, nil
}

// deriveKind maps the first attachment's MIME type to a message kind.
func deriveKind(attachments []protocol.Attachment) string {
	if len(attachments) == 0 {
		return "text"
	}
	mime := attachments[0].MimeType
	switch {
	case strings.HasPrefix(mime, "image/"):
		return "image"
	case strings.HasPrefix(mime, "video/"):
		return "video"
	case strings.HasPrefix(mime, "audio/"):
		return "audio"
	default:
		return "document"
	}
}

// MarkRead records a read receipt and advances the message status. Both
// halves are idempotent; re-marking keeps the first timestamp and never
// regresses the status.
func (s *Service) MarkRead(messageID, readerID string) (*store.Message, bool, error) {
	msg, err := s.db.GetMessage(messageID)
	if err != nil {
		return nil, false, err
	}
	if msg == nil {
		return nil, false, ErrNotFound
	}
	conv, err := s.db.GetConversation(msg.ConversationID, false)
	if err != nil {
		return nil, false, err
	}
	if conv == nil || !IsParticipant(conv.Participants, readerID) {
		return nil, false, ErrNotParticipant
	}

	inserted, err := s.db.MarkRead(messageID, readerID, s.now().UnixMilli())
	if err != nil {
		return nil, false, err
	}
	if inserted {
		if _, err := s.db.AdvanceStatus(messageID, store.StatusRead); err != nil {
			return nil, false, err
		}
	}
	msg, err = s.db.GetMessage(messageID)
	return msg, inserted, err
}

// React adds or removes an emoji reaction and returns the updated reaction
// map. Adds are idempotent; removing an absent reaction is a no-op.
func (s *Service) React(messageID, userID, emoji, action string) (map[string][]string, error) {
	msg, err := s.db.GetMessage(messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrNotFound
	}
	conv, err := s.db.GetConversation(msg.ConversationID, false)
	if err != nil {
		return nil, err
	}
	if conv == nil || !IsParticipant(conv.Participants, userID) {
		return nil, ErrNotParticipant
	}

	switch action {
	case "add":
		err = s.db.AddReaction(messageID, userID, emoji)
	case "remove":
		err = s.db.RemoveReaction(messageID, userID, emoji)
	default:
		err = fmt.Errorf("%w: unknown reaction action %q", ErrNotFound, action)
	}
	if err != nil {
		return nil, err
	}
	return s.db.Reactions(messageID)
}

// Delete soft-deletes a message. Only the original sender may delete.
func (s *Service) Delete(messageID, requesterID string) (*store.Message, error) {
	msg, err := s.db.GetMessage(messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrNotFound
	}
	if msg.SenderID != requesterID {
		return nil, ErrNotSender
	}
	if err := s.db.SoftDeleteMessage(messageID); err != nil {
		return nil, err
	}
	return s.db.GetMessage(messageID)
}

// MarkDelivered advances a message to delivered unless it is already past.
func (s *Service) MarkDelivered(messageID string) error {
	_, err := s.db.AdvanceStatus(messageID, store.StatusDelivered)
	return err
}

// History returns non-deleted messages before the given id (exclusive),
// newest first.
func (s *Service) History(conversationID, requesterID, beforeID string, limit int) ([]store.Message, error) {
	conv, err := s.db.GetConversation(conversationID, false)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrNotFound
	}
	if !IsParticipant(conv.Participants, requesterID) {
		return nil, ErrNotParticipant
	}
	return s.db.ListMessages(conversationID, beforeID, limit)
}

// Message returns the full message aggregate.
func (s *Service) Message(id string) (*store.Message, error) {
	msg, err := s.db.GetMessage(id)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrNotFound
	}
	return msg, nil
}

// Conversation returns a conversation with expanded participant records.
func (s *Service) Conversation(id string) (*store.Conversation, error) {
	return s.db.GetConversation(id, true)
}

// ActiveConversationIDs lists the active conversations of a principal, for
// room joining at handshake time.
func (s *Service) ActiveConversationIDs(userID string) ([]string, error) {
	return s.db.ActiveConversationIDs(userID)
}

// ParticipantIDs returns the canonical participant ids of a conversation.
func (s *Service) ParticipantIDs(conversationID string) ([]string, error) {
	return s.db.ParticipantIDs(conversationID)
}

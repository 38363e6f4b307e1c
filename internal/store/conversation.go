package store

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ParticipantRecord is the expanded form of a conversation participant,
// produced when a conversation is fetched with participant records joined
// against the users table. The wire shape keeps the legacy "_id" key.
type ParticipantRecord struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

// PairKey returns the canonical key for an unordered pair of identities.
// Used to enforce direct-conversation uniqueness.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// CreateConversation inserts a conversation and its participant set in one
// transaction. For direct conversations the caller must set PairKey-derived
// uniqueness via kind; participants must be canonical id strings.
func (db *DB) CreateConversation(c *Conversation, participantIDs []string) error {
	now := time.Now().UnixMilli()
	if c.LastActivityAt == 0 {
		c.LastActivityAt = now
	}
	c.CreatedAt = now
	c.Active = true

	var pairKey any
	if c.Kind == "direct" {
		if len(participantIDs) != 2 || participantIDs[0] == participantIDs[1] {
			return fmt.Errorf("direct conversation needs two distinct participants")
		}
		pairKey = PairKey(participantIDs[0], participantIDs[1])
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO conversations (id, kind, name, pair_key, last_activity_at, active, created_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)`,
		c.ID, c.Kind, c.Name, pairKey, c.LastActivityAt, c.CreatedAt)
	if err != nil {
		return err
	}
	for _, id := range participantIDs {
		if _, err := tx.Exec(`
			INSERT INTO conversation_participants (conversation_id, user_id, joined_at)
			VALUES (?, ?, ?)`, c.ID, id, now); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	for _, id := range participantIDs {
		c.Participants = append(c.Participants, id)
	}
	return nil
}

// FindActiveDirect returns the active direct conversation for an unordered
// pair, or nil when none exists.
func (db *DB) FindActiveDirect(a, b string) (*Conversation, error) {
	var id string
	err := db.QueryRow(`
		SELECT id FROM conversations
		WHERE pair_key = ? AND active = 1`, PairKey(a, b)).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return db.GetConversation(id, false)
}

// GetConversation returns a conversation with its participant set, or nil
// when unknown. With expand set, participants are returned as records
// joined against the users table instead of raw id strings.
func (db *DB) GetConversation(id string, expand bool) (*Conversation, error) {
	var c Conversation
	var lastMsg sql.NullString
	err := db.QueryRow(`
		SELECT id, kind, name, last_message_id, last_activity_at, active, created_at
		FROM conversations WHERE id = ?`, id).
		Scan(&c.ID, &c.Kind, &c.Name, &lastMsg, &c.LastActivityAt, &c.Active, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.LastMessageID = lastMsg.String

	if expand {
		rows, err := db.Query(`
			SELECT p.user_id, COALESCE(u.name, '')
			FROM conversation_participants p
			LEFT JOIN users u ON u.id = p.user_id
			WHERE p.conversation_id = ?
			ORDER BY p.user_id`, id)
		if err != nil {
			return nil, err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var rec ParticipantRecord
			if err := rows.Scan(&rec.ID, &rec.Name); err != nil {
				return nil, err
			}
			c.Participants = append(c.Participants, rec)
		}
		return &c, rows.Err()
	}

	ids, err := db.ParticipantIDs(id)
	if err != nil {
		return nil, err
	}
	for _, pid := range ids {
		c.Participants = append(c.Participants, pid)
	}
	return &c, nil
}

// ParticipantIDs returns the raw participant identity strings of a
// conversation, sorted for stable comparison.
func (db *DB) ParticipantIDs(conversationID string) ([]string, error) {
	rows, err := db.Query(`
		SELECT user_id FROM conversation_participants
		WHERE conversation_id = ?`, conversationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, rows.Err()
}

// ActiveConversationIDs returns the ids of active conversations the user
// participates in, most recently active first.
func (db *DB) ActiveConversationIDs(userID string) ([]string, error) {
	rows, err := db.Query(`
		SELECT c.id FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE p.user_id = ? AND c.active = 1
		ORDER BY c.last_activity_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TouchConversation updates the last-message pointer and activity timestamp.
func (db *DB) TouchConversation(conversationID, lastMessageID string, at int64) error {
	_, err := db.Exec(`
		UPDATE conversations SET last_message_id = ?, last_activity_at = ?
		WHERE id = ?`, lastMessageID, at, conversationID)
	return err
}

// DeactivateConversation soft-removes a conversation. Rows are never
// hard-deleted; deactivation also releases the direct-pair uniqueness slot.
func (db *DB) DeactivateConversation(conversationID string) error {
	_, err := db.Exec(`UPDATE conversations SET active = 0 WHERE id = ?`, conversationID)
	return err
}

// AutoGroupName builds a display name for an unnamed group from its
// participant names, truncated to keep it presentable.
func AutoGroupName(names []string) string {
	joined := strings.Join(names, ", ")
	if len(joined) > 60 {
		joined = joined[:57] + "..."
	}
	return joined
}

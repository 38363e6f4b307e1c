package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/crewdesk/relay/protocol"
)

var statusRank = map[string]int{
	StatusSending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// InsertMessage persists a message and its attachments in one transaction.
func (db *DB) InsertMessage(m *Message) error {
	now := time.Now().UnixMilli()
	if m.CreatedAt == 0 {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	if m.Status == "" {
		m.Status = StatusSent
	}

	mentions, err := json.Marshal(m.Mentions)
	if err != nil {
		return fmt.Errorf("marshal mentions: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var replyTo any
	if m.ReplyTo != "" {
		replyTo = m.ReplyTo
	}
	_, err = tx.Exec(`
		INSERT INTO messages (id, conversation_id, sender_id, content, kind, reply_to, mentions, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.SenderID, m.Content, m.Kind, replyTo, string(mentions), m.Status, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return err
	}
	for i, a := range m.Attachments {
		if _, err := tx.Exec(`
			INSERT INTO message_attachments (message_id, position, stored_name, original_name, mime_type, size, url, thumbnail_url)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, i, a.StoredName, a.OriginalName, a.MimeType, a.Size, a.URL, a.ThumbnailURL); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetMessage returns the full message aggregate (attachments, reactions,
// read map), or nil when unknown. Soft-deleted messages are still returned
// here; standard reads go through ListMessages which hides them.
func (db *DB) GetMessage(id string) (*Message, error) {
	var m Message
	var replyTo sql.NullString
	var deletedAt sql.NullInt64
	var mentions string
	err := db.QueryRow(`
		SELECT id, conversation_id, sender_id, content, kind, reply_to, mentions, status, deleted, deleted_at, created_at, updated_at
		FROM messages WHERE id = ?`, id).
		Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.Kind, &replyTo, &mentions,
			&m.Status, &m.Deleted, &deletedAt, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.ReplyTo = replyTo.String
	m.DeletedAt = deletedAt.Int64
	if err := json.Unmarshal([]byte(mentions), &m.Mentions); err != nil {
		return nil, fmt.Errorf("unmarshal mentions: %w", err)
	}

	rows, err := db.Query(`
		SELECT stored_name, original_name, mime_type, size, url, thumbnail_url
		FROM message_attachments WHERE message_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var a protocol.Attachment
		if err := rows.Scan(&a.StoredName, &a.OriginalName, &a.MimeType, &a.Size, &a.URL, &a.ThumbnailURL); err != nil {
			return nil, err
		}
		m.Attachments = append(m.Attachments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if m.Reactions, err = db.Reactions(id); err != nil {
		return nil, err
	}
	if m.ReadBy, err = db.readMap(id); err != nil {
		return nil, err
	}
	return &m, nil
}

// AdvanceStatus moves a message's delivery status forward. Regressions are
// silently ignored so the status is monotonic regardless of event ordering.
// Returns whether the row changed.
func (db *DB) AdvanceStatus(messageID, to string) (bool, error) {
	rank, ok := statusRank[to]
	if !ok {
		return false, fmt.Errorf("unknown status %q", to)
	}
	// Collect the statuses strictly below the target.
	var below []any
	in := ""
	for s, r := range statusRank {
		if r < rank {
			if in != "" {
				in += ","
			}
			in += "?"
			below = append(below, s)
		}
	}
	now := time.Now().UnixMilli()
	args := append([]any{to, now}, below...)
	args = append(args, messageID)
	res, err := db.Exec(
		`UPDATE messages SET status = ?, updated_at = ? WHERE status IN (`+in+`) AND id = ?`, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkFailed records a message that could not be committed downstream.
func (db *DB) MarkFailed(messageID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE messages SET status = ?, updated_at = ? WHERE id = ?`,
		StatusFailed, now, messageID)
	return err
}

// MarkRead records a read timestamp for a reader. Idempotent: re-marking
// keeps the original timestamp and reports inserted=false.
func (db *DB) MarkRead(messageID, userID string, at int64) (inserted bool, err error) {
	res, err := db.Exec(`
		INSERT OR IGNORE INTO message_reads (message_id, user_id, read_at)
		VALUES (?, ?, ?)`, messageID, userID, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (db *DB) readMap(messageID string) (map[string]int64, error) {
	rows, err := db.Query(`SELECT user_id, read_at FROM message_reads WHERE message_id = ?`, messageID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	reads := make(map[string]int64)
	for rows.Next() {
		var user string
		var at int64
		if err := rows.Scan(&user, &at); err != nil {
			return nil, err
		}
		reads[user] = at
	}
	if len(reads) == 0 {
		return nil, rows.Err()
	}
	return reads, rows.Err()
}

// AddReaction records an emoji reaction. Duplicate adds are a no-op.
func (db *DB) AddReaction(messageID, userID, emoji string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT OR IGNORE INTO message_reactions (message_id, user_id, emoji, created_at)
		VALUES (?, ?, ?, ?)`, messageID, userID, emoji, now)
	return err
}

// RemoveReaction removes an emoji reaction. Removing an absent reaction is
// a no-op.
func (db *DB) RemoveReaction(messageID, userID, emoji string) error {
	_, err := db.Exec(`
		DELETE FROM message_reactions WHERE message_id = ? AND user_id = ? AND emoji = ?`,
		messageID, userID, emoji)
	return err
}

// Reactions returns the per-emoji reactor sets of a message.
func (db *DB) Reactions(messageID string) (map[string][]string, error) {
	rows, err := db.Query(`
		SELECT emoji, user_id FROM message_reactions
		WHERE message_id = ? ORDER BY created_at, user_id`, messageID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	reactions := make(map[string][]string)
	for rows.Next() {
		var emoji, user string
		if err := rows.Scan(&emoji, &user); err != nil {
			return nil, err
		}
		reactions[emoji] = append(reactions[emoji], user)
	}
	if len(reactions) == 0 {
		return nil, rows.Err()
	}
	return reactions, rows.Err()
}

// SoftDeleteMessage hides a message from standard reads. Content is
// retained; the messaging core never hard-deletes.
func (db *DB) SoftDeleteMessage(messageID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE messages SET deleted = 1, deleted_at = ?, updated_at = ? WHERE id = ?`,
		now, now, messageID)
	return err
}

// ListMessages returns non-deleted messages of a conversation using keyset
// pagination on the message id (ULIDs sort by commit order). An empty
// beforeID starts from the newest.
func (db *DB) ListMessages(conversationID, beforeID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeID == "" {
		beforeID = "￿" // past any ULID
	}
	rows, err := db.Query(`
		SELECT id FROM messages
		WHERE conversation_id = ? AND id < ? AND deleted = 0
		ORDER BY id DESC
		LIMIT ?`, conversationID, beforeID, limit)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	msgs := make([]Message, 0, len(ids))
	for _, id := range ids {
		m, err := db.GetMessage(id)
		if err != nil {
			return nil, err
		}
		if m != nil {
			msgs = append(msgs, *m)
		}
	}
	return msgs, nil
}

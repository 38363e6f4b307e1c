package store

import (
	"database/sql"
	"time"
)

// UpsertUser inserts or updates a principal record.
func (db *DB) UpsertUser(u *User) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO users (id, name, role, active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			active = excluded.active`,
		u.ID, u.Name, u.Role, u.Active, now)
	return err
}

// GetUser returns a principal by id, or nil if unknown.
func (db *DB) GetUser(id string) (*User, error) {
	var u User
	err := db.QueryRow(`SELECT id, name, role, active FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.Role, &u.Active)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// InsertToken records a bearer token for a user with an expiry.
func (db *DB) InsertToken(token, userID string, expiresAt int64) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO tokens (token, user_id, expires_at, created_at)
		VALUES (?, ?, ?, ?)`,
		token, userID, expiresAt, now)
	return err
}

// LookupToken returns the user id and expiry for a token. Unknown tokens
// return ("", 0, nil).
func (db *DB) LookupToken(token string) (userID string, expiresAt int64, err error) {
	err = db.QueryRow(`SELECT user_id, expires_at FROM tokens WHERE token = ?`, token).
		Scan(&userID, &expiresAt)
	if err == sql.ErrNoRows {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, err
	}
	return userID, expiresAt, nil
}

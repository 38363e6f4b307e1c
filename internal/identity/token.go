package identity

import (
	"context"
	"strings"
	"time"

	"github.com/crewdesk/relay/internal/store"
)

// TokenVerifier validates opaque bearer tokens against the tokens and
// users tables.
type TokenVerifier struct {
	db  *store.DB
	now func() time.Time
}

// NewTokenVerifier creates a verifier over the given store. The clock is
// injectable for expiry tests.
func NewTokenVerifier(db *store.DB, now func() time.Time) *TokenVerifier {
	if now == nil {
		now = time.Now
	}
	return &TokenVerifier{db: db, now: now}
}

// Verify resolves a credential to a principal, failing with one of the
// typed handshake errors. The "Bearer " prefix is accepted and stripped.
func (v *TokenVerifier) Verify(_ context.Context, credential string) (Principal, error) {
	credential = strings.TrimSpace(strings.TrimPrefix(credential, "Bearer "))
	if credential == "" {
		return Principal{}, ErrNoCredential
	}

	userID, expiresAt, err := v.db.LookupToken(credential)
	if err != nil {
		return Principal{}, err
	}
	if userID == "" {
		return Principal{}, ErrCredentialInvalid
	}
	if expiresAt <= v.now().UnixMilli() {
		return Principal{}, ErrCredentialExpired
	}

	u, err := v.db.GetUser(userID)
	if err != nil {
		return Principal{}, err
	}
	if u == nil {
		return Principal{}, ErrCredentialInvalid
	}
	if !u.Active {
		return Principal{}, ErrPrincipalInactive
	}
	return Principal{ID: u.ID, Name: u.Name, Role: u.Role, Active: true}, nil
}

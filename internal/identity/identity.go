// Package identity validates the bearer credential presented during the
// websocket handshake and resolves it to a principal. Credential issuance
// lives elsewhere; this package only answers "who is this token, and may
// they connect".
package identity

import (
	"context"
	"errors"
)

// Principal is the validated identity attached to a connection.
type Principal struct {
	ID     string
	Name   string
	Role   string
	Active bool
}

// Typed handshake failures. Each maps to a distinct rejection reason sent
// to the client before the connection is closed.
var (
	ErrNoCredential      = errors.New("no credential presented")
	ErrCredentialInvalid = errors.New("credential not recognized")
	ErrCredentialExpired = errors.New("credential expired")
	ErrPrincipalInactive = errors.New("principal is inactive")
)

// Verifier resolves a bearer credential to a principal. Implementations are
// external collaborators; the store-backed TokenVerifier in this package is
// the default.
type Verifier interface {
	Verify(ctx context.Context, credential string) (Principal, error)
}

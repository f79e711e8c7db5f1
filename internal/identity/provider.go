// Package identity abstracts the external identity-provider collaborator
// behind a small interface. The session store talks to a Provider and
// never synthesizes credentials itself; the deterministic MockProvider
// exists for development and tests only and must be opted into.
package identity

import (
	"context"
	"errors"
)

// Identity represents a signed-in user as returned by the provider.
type Identity struct {
	Token  string `json:"token"`
	UserID string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

// Errors surfaced by providers. Transport-level failures are wrapped
// around ErrUnavailable so callers can distinguish "wrong password" from
// "collaborator down".
var (
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	ErrAccountInactive    = errors.New("identity: account is inactive")
	ErrEmailTaken         = errors.New("identity: email address already exists")
	ErrUnavailable        = errors.New("identity: provider unavailable")
)

// Provider authenticates users against an external collaborator.
type Provider interface {
	// Login exchanges credentials for an Identity.
	Login(ctx context.Context, email, password string) (Identity, error)

	// Register creates an account and signs it in.
	Register(ctx context.Context, email, password, name string) (Identity, error)
}

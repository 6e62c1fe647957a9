// Package auth is the identity collaborator: sign-in, token lookup, sign-out,
// and the admin flag taken from a user's profile document.
package auth

import (
	"context"

	"github.com/p-n-ai/praxis/internal/platform/apperr"
)

// ReasonInvalidCredentials is returned for any failed sign-in.
const ReasonInvalidCredentials = "invalid email or password"

// Identity is a signed-in user.
type Identity struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
}

// Credentials are an email/password pair.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Provider signs users in and resolves tokens.
type Provider interface {
	SignIn(ctx context.Context, c Credentials) (token string, id Identity, err error)
	// Identify resolves a token. ok is false for unknown or expired tokens.
	Identify(ctx context.Context, token string) (id Identity, ok bool, err error)
	SignOut(ctx context.Context, token string) error
}

// Roles answers whether a user is an admin.
type Roles interface {
	IsAdmin(ctx context.Context, uid string) (bool, error)
}

func errInvalidCredentials() error {
	return &apperr.Error{Kind: apperr.KindUnauthorized, Reason: ReasonInvalidCredentials}
}

// Package identity signs users up and in and yields the opaque user id every collection is keyed by.
package identity

import (
	"context"
	"errors"
)

var (
	ErrEmailRequired      = errors.New("email is required")
	ErrPasswordRequired   = errors.New("password is required")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailExists        = errors.New("email already registered")
)

// User is the result of every successful sign-in.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	Anonymous bool   `json:"anonymous"`
	// IDToken is set by providers that issue their own token.
	IDToken string `json:"-"`
}

// Provider is an identity backend.
type Provider interface {
	SignUp(ctx context.Context, email, password string) (User, error)
	Login(ctx context.Context, email, password string) (User, error)
	Anonymous(ctx context.Context) (User, error)
}

package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the user record returned by the backend alongside a token.
type Identity struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Verified bool     `json:"verified"`
	Created  DateTime `json:"created"`
	Updated  DateTime `json:"updated"`
}

// Session pairs a token with the identity it was issued for.
// The zero value is the empty session.
type Session struct {
	Token     string    // Opaque backend credential, empty when logged out
	Identity  *Identity // User the token belongs to, nil when logged out
	ExpiresAt time.Time // Decoded from the token's exp claim
}

// EmptySession returns the logged out session.
func EmptySession() Session {
	return Session{}
}

// NewSession builds a session from a token and identity, decoding the
// expiry from the token. Both halves are required.
func NewSession(token string, identity *Identity) (Session, error) {
	if token == "" || identity == nil {
		return Session{}, NewTransformationError("session requires both a token and an identity")
	}

	exp, err := TokenExpiry(token)
	if err != nil {
		return Session{}, err
	}

	id := *identity
	return Session{
		Token:     token,
		Identity:  &id,
		ExpiresAt: exp,
	}, nil
}

// IsEmpty reports whether the session holds no credentials.
func (s Session) IsEmpty() bool {
	return s.Token == "" && s.Identity == nil
}

// Remaining returns the time left until the token expires.
// It is zero for an empty session.
func (s Session) Remaining(now time.Time) time.Duration {
	if s.IsEmpty() {
		return 0
	}
	return s.ExpiresAt.Sub(now)
}

// Expired reports whether the token is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.IsEmpty() && !now.Before(s.ExpiresAt)
}

// Clone returns a deep copy so callers can't mutate a stored identity.
func (s Session) Clone() Session {
	if s.Identity != nil {
		id := *s.Identity
		s.Identity = &id
	}
	return s
}

// TokenExpiry decodes the exp claim of a JWT without verifying its signature.
// The client never holds the signing key; the backend is the verifier.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, NewTransformationError(fmt.Sprintf("could not decode token: %v", err))
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, NewTransformationError("token has no exp claim")
	}
	return claims.ExpiresAt.Time, nil
}

// ErrNoSession is returned when an operation needs an authenticated session.
var ErrNoSession = errors.New("no active session")

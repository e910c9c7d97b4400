package devserver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenType = "auth"

// TokenPayload is the claim set of an auth token.
type TokenPayload struct {
	Type         string `json:"type"`
	CollectionID string `json:"collectionId"`
	jwt.RegisteredClaims
}

// issueToken signs a fresh token for u.
func (s *Server) issueToken(u *user) (string, error) {
	now := s.clock.Now()
	payload := TokenPayload{
		Type:         tokenType,
		CollectionID: s.collection,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			Subject:   u.ID,
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)
	return token.SignedString(s.secret)
}

// parseToken verifies the signature and expiry of an Authorization header
// value. A "Bearer " prefix is accepted but not required.
func (s *Server) parseToken(header string) (*TokenPayload, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if raw == "" {
		return nil, errors.New("missing token")
	}

	payload := &TokenPayload{}
	_, err := jwt.ParseWithClaims(raw, payload,
		func(t *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("could not parse token: %w", err)
	}
	if payload.Type != tokenType || payload.CollectionID != s.collection {
		return nil, errors.New("token was not issued for this collection")
	}
	return payload, nil
}

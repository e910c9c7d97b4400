// Package passwd hashes and checks account passwords for the dev server.
package passwd

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultCost    = 12
	MaxPasswordLen = 72 // bcrypt input limit
)

var ErrTooLong = errors.New("password exceeds 72 bytes and will be truncated by bcrypt")

// Hasher hashes with a fixed bcrypt cost. Tests use bcrypt.MinCost.
type Hasher struct {
	Cost int
}

// Default hashes at DefaultCost.
var Default = Hasher{Cost: DefaultCost}

// Hash rejects passwords bcrypt would silently truncate.
func (h Hasher) Hash(password string) (string, error) {
	if len(password) > MaxPasswordLen {
		return "", ErrTooLong
	}

	cost := h.Cost
	if cost == 0 {
		cost = DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Check reports whether password matches hash. A malformed hash never matches.
func (h Hasher) Check(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

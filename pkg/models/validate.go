package models

import (
	"fmt"
	"strings"
)

// MinPasswordLen matches the backend's users collection password rule.
const MinPasswordLen = 8

// ValidateLogin runs the checks the login form performs before anything is
// sent to the backend.
func ValidateLogin(email, password string) error {
	if strings.TrimSpace(email) == "" {
		return invalidInput("Please enter your email address.")
	}
	if password == "" {
		return invalidInput("Please enter your password.")
	}
	return nil
}

// ValidateRegistration runs the register form checks: presence, a rough
// email shape, password length and confirmation.
func ValidateRegistration(email, password, confirm string) error {
	if strings.TrimSpace(email) == "" {
		return invalidInput("Please enter your email address.")
	}

	// deliberately loose, the backend does the real check
	if !strings.Contains(email, "@") || !strings.Contains(email, ".") {
		return invalidInput("Please enter a valid email address.")
	}

	if password == "" {
		return invalidInput("Please enter a password.")
	}

	if len(password) < MinPasswordLen {
		return invalidInput(fmt.Sprintf("Password must be at least %d characters long.", MinPasswordLen))
	}

	if password != confirm {
		return invalidInput("Passwords do not match.")
	}

	return nil
}

func invalidInput(msg string) error {
	return NewAuthError(KindInvalidInput, msg, nil)
}

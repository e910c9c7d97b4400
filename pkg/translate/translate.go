// Package translate maps backend error text onto the stable models.ErrorKind
// taxonomy and the user facing copy shown for each kind.
package translate

import (
	"errors"
	"strings"

	"github.com/scottscharl/scottystack/pkg/models"
)

// Rule is one row of the translation table.
type Rule struct {
	Name    string
	Match   func(text string) bool
	Kind    models.ErrorKind
	Message string
}

// fallbackMessage is used when the backend gave us nothing to show.
const fallbackMessage = "An unexpected error occurred. Please try again."

// Rules is evaluated top to bottom, the first match wins. Markers are case
// sensitive except for the unauthorized check, which lower-cases the text first.
var Rules = []Rule{
	{
		Name:    "failed_auth",
		Match:   containsAny("Failed to authenticate"),
		Kind:    models.KindInvalidCredentials,
		Message: "Invalid email or password. Please try again.",
	},
	{
		Name:    "invalid_email",
		Match:   containsAny("validation_invalid_email", "validation_is_email"),
		Kind:    models.KindInvalidInput,
		Message: "Please enter a valid email address.",
	},
	{
		Name:    "not_unique",
		Match:   containsAny("validation_not_unique"),
		Kind:    models.KindDuplicateAccount,
		Message: "This email is already registered. Try logging in instead.",
	},
	{
		Name:    "password_length",
		Match:   containsAny("validation_length_out_of_range"),
		Kind:    models.KindInvalidInput,
		Message: "Password must be at least 8 characters long.",
	},
	{
		Name:    "network",
		Match:   containsAny("Failed to fetch", "NetworkError", "connection refused", "no such host"),
		Kind:    models.KindTransport,
		Message: "Unable to connect to the server. Please check your internet connection.",
	},
	{
		Name:    "timeout",
		Match:   containsAny("timeout"),
		Kind:    models.KindTransport,
		Message: "The request timed out. Please try again.",
	},
	{
		Name: "unauthorized",
		Match: func(text string) bool {
			return strings.Contains(strings.ToLower(text), "unauthorized")
		},
		Kind:    models.KindUnauthorized,
		Message: "Your session has expired. Please log in again.",
	},
}

// Translate classifies raw error text. Unmatched text comes back as
// KindUnknown with the cleaned text as the message.
func Translate(text string) (models.ErrorKind, string) {
	for _, r := range Rules {
		if r.Match(text) {
			return r.Kind, r.Message
		}
	}

	if cleaned := clean(text); cleaned != "" {
		return models.KindUnknown, cleaned
	}
	return models.KindUnknown, fallbackMessage
}

// Error wraps err in a *models.AuthError. An error that already carries an
// AuthError is returned as that AuthError.
func Error(err error) *models.AuthError {
	if err == nil {
		return nil
	}

	var ae *models.AuthError
	if errors.As(err, &ae) {
		return ae
	}

	kind, msg := Translate(err.Error())
	return models.NewAuthError(kind, msg, err)
}

// ForKind builds an AuthError of kind using the first rule message for that
// kind, for failures detected locally rather than reported by the backend.
func ForKind(kind models.ErrorKind, err error) *models.AuthError {
	for _, r := range Rules {
		if r.Kind == kind {
			return models.NewAuthError(kind, r.Message, err)
		}
	}
	return models.NewAuthError(kind, fallbackMessage, err)
}

func containsAny(markers ...string) func(string) bool {
	return func(text string) bool {
		for _, m := range markers {
			if strings.Contains(text, m) {
				return true
			}
		}
		return false
	}
}

// clean trims and collapses whitespace runs so multi-line backend text
// renders on one line.
func clean(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

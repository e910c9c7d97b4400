package models

import "fmt"

// ErrorKind is the stable classification of an auth failure. UI behaviour
// keys off the kind, never off backend wording.
type ErrorKind string

const (
	KindInvalidInput       ErrorKind = "invalid_input"
	KindInvalidCredentials ErrorKind = "invalid_credentials"
	KindDuplicateAccount   ErrorKind = "duplicate_account"
	KindTransport          ErrorKind = "transport"
	KindUnauthorized       ErrorKind = "unauthorized"
	KindUnknown            ErrorKind = "unknown"
)

// AuthError – for every failure surfaced by the auth gateway.
// Supports errors.As, errors.Is (by kind) and errors.Unwrap.
//
// AuthError carries the classified kind, a user presentable message and
// the underlying cause.
type AuthError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Err != nil {
		// unmatched backend text becomes the message itself
		if cause := e.Err.Error(); cause != e.Message {
			return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, cause)
		}
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches any AuthError with the same kind, so the Err* sentinels below
// work with errors.Is.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Kind == e.Kind
}

// Retryable reports whether the user can retry the same action as is.
func (e *AuthError) Retryable() bool {
	return e.Kind == KindTransport
}

// ForcesLogout reports whether the error means the session is gone.
func (e *AuthError) ForcesLogout() bool {
	return e.Kind == KindUnauthorized
}

// NewAuthError creates a new AuthError.
func NewAuthError(kind ErrorKind, msg string, err error) *AuthError {
	return &AuthError{Kind: kind, Message: msg, Err: err}
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidInput       = &AuthError{Kind: KindInvalidInput}
	ErrInvalidCredentials = &AuthError{Kind: KindInvalidCredentials}
	ErrDuplicateAccount   = &AuthError{Kind: KindDuplicateAccount}
	ErrTransport          = &AuthError{Kind: KindTransport}
	ErrUnauthorized       = &AuthError{Kind: KindUnauthorized}
	ErrUnknown            = &AuthError{Kind: KindUnknown}
)

// TransformationError – for issues converting stored or received data into models.
// Supports errors.As.
//
// TransformationError wraps errors that occur while decoding tokens or
// persisted sessions.
type TransformationError struct {
	msg string
}

// Error implements the error interface.
func (e *TransformationError) Error() string {
	return e.msg
}

// NewTransformationError creates a new TransformationError.
func NewTransformationError(msg string) error {
	return &TransformationError{
		msg: msg,
	}
}

// DatabaseError – for failures interacting with a session store backend.
// Supports errors.As and errors.Unwrap.
//
// DatabaseError wraps errors related to sqlite, redis or file access.
// Will only be provided as a response from internal stores.
type DatabaseError struct {
	err error
}

// Error implements the error interface.
func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database error: %v", e.err)
}

func (e *DatabaseError) Unwrap() error {
	return e.err
}

// NewDatabaseError creates a new DatabaseError.
func NewDatabaseError(err error) error {
	return &DatabaseError{
		err: err,
	}
}

package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
)

// FieldError is one entry of the data map in a backend error body.
type FieldError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseError is a non-2xx answer from the backend. Its text keeps the
// backend's message and validation codes so the translator can classify it.
type ResponseError struct {
	Status    int                   `json:"-"`
	Code      int                   `json:"code"`
	Message   string                `json:"message"`
	Data      map[string]FieldError `json:"data"`
	RequestID string                `json:"-"`
}

func (e *ResponseError) Error() string {
	var b strings.Builder
	msg := e.Message
	if msg == "" {
		msg = "request failed"
	}
	fmt.Fprintf(&b, "%s (%d %s)", msg, e.Status, http.StatusText(e.Status))

	fields := make([]string, 0, len(e.Data))
	for name := range e.Data {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	for i, name := range fields {
		sep := "; "
		if i == 0 {
			sep = " "
		}
		fmt.Fprintf(&b, "%s%s: %s", sep, name, e.Data[name].Code)
	}
	return b.String()
}

// TransportError means the request never produced a response.
type TransportError struct {
	Timeout   bool
	RequestID string
	Err       error
}

func (e *TransportError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("request timeout: %v", e.Err)
	}
	return fmt.Sprintf("NetworkError: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func newTransportError(err error, requestID string) *TransportError {
	var ne net.Error
	timeout := errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout())
	return &TransportError{Timeout: timeout, RequestID: requestID, Err: err}
}

// IsTransport reports whether err came from a failed round trip rather than
// a backend answer.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsTemporary reports whether err says nothing about the token itself: a
// failed round trip, a rate limit or a server side failure.
func IsTemporary(err error) bool {
	if IsTransport(err) {
		return true
	}
	var re *ResponseError
	if errors.As(err, &re) {
		return re.Status == http.StatusTooManyRequests || re.Status >= http.StatusInternalServerError
	}
	return false
}

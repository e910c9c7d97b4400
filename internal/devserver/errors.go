package devserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorKey names one of the standard error bodies the server can return.
type ErrorKey string

const (
	ErrInvalidJSON       ErrorKey = "invalid_json"
	ErrAuthFailed        ErrorKey = "auth_failed"
	ErrCreateFailed      ErrorKey = "create_failed"
	ErrAuthRequired      ErrorKey = "auth_required"
	ErrMissingCollection ErrorKey = "missing_collection"
	ErrNotFound          ErrorKey = "not_found"
	ErrInternal          ErrorKey = "internal_error"
)

// errorMessages holds the message text of each key, worded the way the
// real backend words it so client side error translation applies unchanged.
var errorMessages = map[ErrorKey]string{
	ErrInvalidJSON:       "Failed to load the submitted data due to invalid formatting.",
	ErrAuthFailed:        "Failed to authenticate.",
	ErrCreateFailed:      "Failed to create record.",
	ErrAuthRequired:      "The request requires valid record authorization token to be set.",
	ErrMissingCollection: "Missing collection context.",
	ErrNotFound:          "The requested resource wasn't found.",
	ErrInternal:          "Something went wrong while processing your request.",
}

// Validation codes used in FieldError.Code.
const (
	CodeRequired       = "validation_required"
	CodeIsEmail        = "validation_is_email"
	CodeNotUnique      = "validation_not_unique"
	CodeLengthOutRange = "validation_length_out_of_range"
	CodeValuesMismatch = "validation_values_mismatch"
)

type FieldError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the JSON body of every non-2xx answer.
type ErrorResponse struct {
	Code    int                   `json:"code"`
	Message string                `json:"message"`
	Data    map[string]FieldError `json:"data"`
}

// NewError builds the body for status and key. Unknown keys fall back to
// the internal error text.
func NewError(status int, key ErrorKey, fields map[string]FieldError) (int, ErrorResponse) {
	msg, ok := errorMessages[key]
	if !ok {
		msg = errorMessages[ErrInternal]
	}
	if fields == nil {
		fields = map[string]FieldError{}
	}
	return status, ErrorResponse{Code: status, Message: msg, Data: fields}
}

func BadRequestInvalidJSON() (int, ErrorResponse) {
	return NewError(http.StatusBadRequest, ErrInvalidJSON, nil)
}

// BadRequestAuth is returned for unknown identities and wrong passwords
// alike.
func BadRequestAuth() (int, ErrorResponse) {
	return NewError(http.StatusBadRequest, ErrAuthFailed, nil)
}

func BadRequestCreate(fields map[string]FieldError) (int, ErrorResponse) {
	return NewError(http.StatusBadRequest, ErrCreateFailed, fields)
}

func UnauthorizedToken() (int, ErrorResponse) {
	return NewError(http.StatusUnauthorized, ErrAuthRequired, nil)
}

func NotFoundCollection() (int, ErrorResponse) {
	return NewError(http.StatusNotFound, ErrMissingCollection, nil)
}

func NotFound() (int, ErrorResponse) {
	return NewError(http.StatusNotFound, ErrNotFound, nil)
}

func InternalServerError() (int, ErrorResponse) {
	return NewError(http.StatusInternalServerError, ErrInternal, nil)
}

// ReturnError calls errorFunc and writes its result.
func ReturnError(w http.ResponseWriter, logger *slog.Logger, errorFunc func() (int, ErrorResponse)) {
	status, errResp := errorFunc()
	RespondJSONAndLog(w, logger, status, errResp)
}

// RespondJSONAndLog is RespondJSON with encoding failures logged at debug.
func RespondJSONAndLog(w http.ResponseWriter, logger *slog.Logger, status int, payload any) {
	if err := RespondJSON(w, status, payload); err != nil {
		logger.Debug("failed to respond with JSON", "err", err)
	}
}

// RespondJSON writes payload with the given status. It only fails when
// encoding does, usually because the client went away.
func RespondJSON(w http.ResponseWriter, status int, payload any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}

// Package apperr carries the hub's client-facing error codes.
package apperr

import (
	"errors"
	"net/http"
)

// Client-facing error codes of the query and ingestion surfaces.
const (
	CodeIncorrectInput         = 0x835 // 2101
	CodeIncorrectDBRecord      = 0x836 // 2102
	CodeDeserializationFailure = 0x837 // 2103
)

type AppError struct {
	Code    int    // hub error code (2101..2103)
	Status  int    // HTTP status used when rendered over REST
	Message string // User-facing message
	err     error  // Internal-facing error for logging purposes
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.err
}

// NewIncorrectInput reports an unknown route or an unusable path parameter.
func NewIncorrectInput(message string) *AppError {
	return &AppError{
		Code:    CodeIncorrectInput,
		Status:  http.StatusBadRequest,
		Message: message,
	}
}

// NewIncorrectDBRecord reports a device the hub has no state for.
func NewIncorrectDBRecord(message string, originalError ...error) *AppError {
	e := &AppError{
		Code:    CodeIncorrectDBRecord,
		Status:  http.StatusBadRequest,
		Message: message,
	}
	if len(originalError) > 0 {
		e.err = originalError[0]
	}
	return e
}

// NewDeserializationFailure reports a payload that does not match the schema.
func NewDeserializationFailure(message string, originalError error) *AppError {
	return &AppError{
		Code:    CodeDeserializationFailure,
		Status:  http.StatusBadRequest,
		Message: message,
		err:     originalError,
	}
}

// CodeOf extracts the hub code from err, or 0 if err carries none.
func CodeOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return 0
}

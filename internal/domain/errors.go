package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no client matches the requested id
	ErrNotFound = errors.New("client not found")
	// ErrInvalidInput marks caller errors that never reach the backend
	ErrInvalidInput = errors.New("invalid input")
)

// Backend error codes that are not Postgres SQLSTATEs
const (
	CodeNotFound           = "NOT_FOUND"
	CodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	CodeUnexpected         = "UNEXPECTED"

	// CodeUndefinedTable is the SQLSTATE for a missing relation
	CodeUndefinedTable = "42P01"
)

// DataError is the normalized form of every backend failure
type DataError struct {
	Op        string
	Message   string
	Code      string
	Details   string
	Retryable bool
	Err       error
}

func (e *DataError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code %s)", e.Op, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a DataError classified as transient
func IsRetryable(err error) bool {
	var de *DataError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return false
}

// ErrorCode returns the backend code carried by err, if any
func ErrorCode(err error) string {
	var de *DataError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// NotFoundError builds the terminal error for a missing row
func NotFoundError(op, id string) *DataError {
	return &DataError{
		Op:      op,
		Message: fmt.Sprintf("client %s not found", id),
		Code:    CodeNotFound,
		Err:     ErrNotFound,
	}
}

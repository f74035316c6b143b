package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// ValidationError rejects bad input synchronously. It is never enqueued to
// the outbox and never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field string, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StorageError wraps a local persistence failure (quota, corruption, locked
// file). Surfaced immediately to the caller; this layer does not retry it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func WrapStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// NetworkError is a transport-level failure (timeout, connection refused).
// The sync engine retries these with backoff.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network error: %v", e.Err) }

func (e *NetworkError) Unwrap() error { return e.Err }

// ConflictError carries the server's current snapshot from a 409 response.
// Terminal for the entry's automatic retry; requires explicit resolution.
type ConflictError struct {
	ServerSnapshot []byte
}

func (e *ConflictError) Error() string { return "conflict: server state diverged" }

// RemoteStatusError is any other non-2xx response. Retryable.
type RemoteStatusError struct {
	StatusCode int
	Body       string
}

func (e *RemoteStatusError) Error() string {
	return fmt.Sprintf("remote api error %d: %s", e.StatusCode, e.Body)
}

// ExhaustedRetriesError marks an outbox entry that ran out of its retry
// budget. The entry stays queryable as FAILED until force-synced or cleared.
type ExhaustedRetriesError struct {
	OperationId string
	Attempts    int
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("operation %s failed permanently after %d attempts", e.OperationId, e.Attempts)
}

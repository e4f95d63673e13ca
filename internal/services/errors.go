package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// InvalidInputError is a malformed request. Nothing has been persisted when it
// is returned. Reason is the caller-facing message.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string { return e.Reason }

// MalformedDocumentError means the uploaded bytes could not be parsed as a
// paginated document. It is reported to callers as invalid input.
type MalformedDocumentError struct {
	Err error
}

func (e *MalformedDocumentError) Error() string {
	return fmt.Sprintf("malformed document: %v", e.Err)
}

func (e *MalformedDocumentError) Unwrap() error { return e.Err }

// DuplicateContentHashError is returned by SaveChild when a child with the same
// page hash already exists. It is recoverable and never ends a run.
type DuplicateContentHashError struct {
	Hash string
}

func (e *DuplicateContentHashError) Error() string {
	return fmt.Sprintf("duplicate content hash %s", e.Hash)
}

// PersistenceError wraps any repository failure other than a duplicate hash.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// StorageError wraps a failed document store upload or download.
type StorageError struct {
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// UnprocessableInputError is an extractor rejecting one page. The page is
// skipped and the run continues.
type UnprocessableInputError struct {
	Err error
}

func (e *UnprocessableInputError) Error() string {
	return fmt.Sprintf("unprocessable input: %v", e.Err)
}

func (e *UnprocessableInputError) Unwrap() error { return e.Err }

// ExtractorServiceError is any extractor failure that is not page specific:
// unavailability, auth, quota or timeout.
type ExtractorServiceError struct {
	Err error
}

func (e *ExtractorServiceError) Error() string {
	return fmt.Sprintf("extractor service: %v", e.Err)
}

func (e *ExtractorServiceError) Unwrap() error { return e.Err }

// IsInvalidInput reports whether err should be surfaced as a client error.
func IsInvalidInput(err error) bool {
	var inv *InvalidInputError
	var mal *MalformedDocumentError
	return errors.As(err, &inv) || errors.As(err, &mal)
}

// StatusCode maps a pipeline error onto the HTTP status returned to callers.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsInvalidInput(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// persistenceErr wraps err unless it already carries a classification.
func persistenceErr(op string, err error) error {
	var pe *PersistenceError
	if errors.As(err, &pe) || errors.Is(err, context.Canceled) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

func storageErr(key string, err error) error {
	var se *StorageError
	if errors.As(err, &se) || errors.Is(err, context.Canceled) {
		return err
	}
	return &StorageError{Key: key, Err: err}
}

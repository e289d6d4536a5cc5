// Package apperr defines the sentinel error kinds the core distinguishes,
// and the codes the external HTTP surface maps them to.
package apperr

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Wrap these with fmt.Errorf("%w: ...") and recover them with
// errors.Is at the transport boundary — never branch on string content.
var (
	ErrNotFound    = errors.New("not found")
	ErrValidation  = errors.New("validation error")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)

// NotFoundError wraps msg with ErrNotFound so errors.Is(err, ErrNotFound) holds.
func NotFoundError(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrNotFound)
}

// ValidationError wraps msg with ErrValidation.
func ValidationError(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrValidation)
}

// ConflictError wraps msg with ErrConflict.
func ConflictError(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrConflict)
}

// UnavailableError wraps msg with ErrUnavailable.
func UnavailableError(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrUnavailable)
}

// Code is the external error code surfaced in {error:{code,message}} payloads.
type Code string

const (
	CodeValidation Code = "VALIDATION_ERROR"
	CodeNotFound   Code = "NOT_FOUND"
	CodeConflict   Code = "CONFLICT"
	CodeDatabase   Code = "DATABASE_ERROR"
	CodeInternal   Code = "INTERNAL_ERROR"
)

// CodeFor classifies err into one of the external error codes. Unrecognized
// errors — including raw store errors — map to CodeInternal unless the
// caller already knows it came from the persistence layer (use CodeDatabase
// directly in that case; see store.IsStoreError).
func CodeFor(err error) Code {
	switch {
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrConflict):
		return CodeConflict
	default:
		return CodeInternal
	}
}

package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a malformed incoming record; the record is skipped.
	ErrValidation = errors.New("validation error")
	// ErrConflict marks an append that collided with an existing (EntityID, VersionNumber).
	ErrConflict = errors.New("version conflict")
	// ErrNotFound marks a missing entity or version.
	ErrNotFound = errors.New("not found")
	// ErrNoOp marks a rollback whose target is already the latest version.
	ErrNoOp = errors.New("no-op")
	// ErrStoreUnavailable marks connectivity or timeout failures of the store.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// ValidationError describes why an incoming record was rejected.
type ValidationError struct {
	Row    int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
	}
	return fmt.Sprintf("row %d: field %s: %s", e.Row, e.Field, e.Reason)
}

// Unwrap lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Unwrap() error { return ErrValidation }

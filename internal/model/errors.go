package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for the merge error taxonomy.
// Use errors.Is(err, model.ErrValidation) to classify.
var (
	// ErrValidation marks malformed incoming data. Always raised before any
	// mutation of the affected subtree.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an incoming external identifier that could not be
	// resolved when resolution was required.
	ErrNotFound = errors.New("not found")
	// ErrConsistency marks an internal invariant violation. Fatal, never retried.
	ErrConsistency = errors.New("consistency violated")
)

// Error wraps a sentinel with the entity it concerns and a human-readable
// reason.
type Error struct {
	Kind       Kind
	ExternalID string
	Reason     string
	Err        error // sentinel, for errors.Is()
}

// Error formats the sentinel, entity and reason.
func (e *Error) Error() string {
	switch {
	case e.Kind != "" && e.ExternalID != "":
		return fmt.Sprintf("%v: %s %q: %s", e.Err, e.Kind, e.ExternalID, e.Reason)
	case e.Kind != "":
		return fmt.Sprintf("%v: %s: %s", e.Err, e.Kind, e.Reason)
	case e.ExternalID != "":
		return fmt.Sprintf("%v: %q: %s", e.Err, e.ExternalID, e.Reason)
	default:
		return fmt.Sprintf("%v: %s", e.Err, e.Reason)
	}
}

// Unwrap returns the sentinel so errors.Is matches on it.
func (e *Error) Unwrap() error {
	return e.Err
}

// Validationf returns a validation error for the given entity.
func Validationf(kind Kind, externalID, format string, args ...any) error {
	return &Error{Kind: kind, ExternalID: externalID, Reason: fmt.Sprintf(format, args...), Err: ErrValidation}
}

// NotFound returns a not-found error for an unresolved external identifier.
func NotFound(kind Kind, externalID string) error {
	return &Error{Kind: kind, ExternalID: externalID, Reason: "no such entity", Err: ErrNotFound}
}

// Consistencyf returns a consistency error for the given entity.
func Consistencyf(kind Kind, externalID, format string, args ...any) error {
	return &Error{Kind: kind, ExternalID: externalID, Reason: fmt.Sprintf(format, args...), Err: ErrConsistency}
}

package es

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates a snapshot or record lookup returned nothing
// where the caller required one.
var ErrNotFound = errors.New("es: not found")

// ConflictReason classifies why an append exhausted its retry budget.
type ConflictReason string

const (
	// ConflictIDCollisionDistinctPayload never actually surfaces on its
	// own: an id collision is treated as an idempotent no-op (see
	// EventProvider.Insert), but the reason is kept named for callers
	// building their own providers that choose to report it explicitly.
	ConflictIDCollisionDistinctPayload ConflictReason = "id-collision-distinct-payload"

	// ConflictStreamTimestampExhausted indicates the (stream, created)
	// bump-and-retry loop in the append protocol exceeded its bound.
	ConflictStreamTimestampExhausted ConflictReason = "stream-timestamp-exhausted"
)

// Conflict is returned when the append protocol cannot resolve a
// (stream, created) or id collision within its retry budget.
type Conflict struct {
	Reason ConflictReason
}

func (e *Conflict) Error() string {
	return fmt.Sprintf("es: conflict: %s", e.Reason)
}

// UnknownEvent indicates an event type outside the closed set declared
// at store construction.
type UnknownEvent struct {
	Type string
}

func (e *UnknownEvent) Error() string {
	return fmt.Sprintf("es: unknown event type %q", e.Type)
}

// ValidationError indicates a record's data or meta failed its schema.
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("es: validation error: %s", e.Message)
	}
	return fmt.Sprintf("es: validation error at %s: %s", e.Path, e.Message)
}

// HandlerError wraps a panic-free error returned by a projector
// handler. It never fails an append; it is routed to the
// store's hooks, since the record is already durable by the time
// handlers run.
type HandlerError struct {
	Record Record
	Cause  error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("es: handler error for event %s (%s): %v", e.Record.ID, e.Record.Type, e.Cause)
}

func (e *HandlerError) Unwrap() error { return e.Cause }

// StorageError wraps a provider-layer failure (connection, transaction
// abort, driver error) that is not a recognized conflict.
type StorageError struct {
	Cause error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("es: storage error: %v", e.Cause)
}

func (e *StorageError) Unwrap() error { return e.Cause }

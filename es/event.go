// Package es provides the core types and interfaces of the event store:
// immutable event records, the stream ordering key, and the errors the
// write and read paths report.
package es

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// timestampLayout formats a Timestamp so that lexicographic string order
// and chronological order agree, at microsecond resolution.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// timestampResolution is the smallest representable delta between two
// distinct Timestamp values, used by the conflict-retry bump in the
// append protocol.
const timestampResolution = time.Microsecond

// Timestamp is a UTC instant truncated to microsecond resolution. It is
// the ordering key of a stream (via Record.Created) and the global
// replay cursor (via Cursor.Created).
type Timestamp struct {
	t time.Time
}

// NewTimestamp truncates t to microsecond resolution and normalizes it
// to UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t: t.UTC().Truncate(timestampResolution)}
}

// Time returns the underlying time.Time value.
func (ts Timestamp) Time() time.Time { return ts.t }

// IsZero reports whether ts is the zero Timestamp.
func (ts Timestamp) IsZero() bool { return ts.t.IsZero() }

// Before reports whether ts is strictly earlier than other.
func (ts Timestamp) Before(other Timestamp) bool { return ts.t.Before(other.t) }

// After reports whether ts is strictly later than other.
func (ts Timestamp) After(other Timestamp) bool { return ts.t.After(other.t) }

// Equal reports whether ts and other denote the same instant.
func (ts Timestamp) Equal(other Timestamp) bool { return ts.t.Equal(other.t) }

// Bump returns the smallest Timestamp strictly greater than ts. Used by
// the append protocol's (stream, created) conflict-retry rule.
func (ts Timestamp) Bump() Timestamp {
	return Timestamp{t: ts.t.Add(timestampResolution)}
}

// String renders ts in a form that sorts identically as bytes and as
// instants (ISO-8601 UTC, microsecond precision).
func (ts Timestamp) String() string {
	return ts.t.Format(timestampLayout)
}

// ParseTimestamp parses a string produced by Timestamp.String, or any
// RFC3339-compatible timestamp, as adapters may receive either.
func ParseTimestamp(s string) (Timestamp, error) {
	for _, layout := range []string{timestampLayout, time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return NewTimestamp(t), nil
		}
	}
	return Timestamp{}, fmt.Errorf("es: unable to parse timestamp %q", s)
}

// Cursor identifies a position within a stream's total order by its
// (created, id) pair. A nil *Cursor means "from the beginning"
// (ascending) or "from the end" (descending).
type Cursor struct {
	Created Timestamp
	ID      uuid.UUID
}

// Record is an immutable, validated entry in the event log.
//
// Records are value objects without identity until Insert assigns them
// a place in the store; ID is populated by the factory ahead of time
// so that idempotent re-insertion is possible (see EventProvider.Insert).
type Record struct {
	// ID globally, uniquely identifies this record. Re-insertion of a
	// record with the same ID is an idempotent no-op.
	ID uuid.UUID

	// Stream is the opaque name of the aggregate this event belongs to.
	Stream string

	// Type is one value from the closed set of event kinds declared at
	// store construction.
	Type string

	// Data is the event's payload, validated against the data schema
	// registered for Type. May be empty.
	Data []byte

	// Meta is additional event metadata, validated against the meta
	// schema registered for Type. May be empty.
	Meta []byte

	// Created is the per-stream ordering key and global replay cursor.
	// Within a stream, (Created, ID) is a total order.
	Created Timestamp

	// Recorded is when the store accepted the record. Set by the
	// factory at construction and overwritten by the store on insert
	// if it differs (i.e. the caller never controls Recorded).
	Recorded Timestamp
}

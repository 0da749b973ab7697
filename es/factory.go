package es

import "github.com/google/uuid"

// RecordInput is the caller-supplied shape for NewRecord.
type RecordInput struct {
	// Type is required: one value from the closed set of declared events.
	Type string

	// Stream is optional; when empty a fresh unique stream id is minted,
	// starting a new aggregate.
	Stream string

	// Data is the event payload. May be nil.
	Data []byte

	// Meta is event metadata. May be nil.
	Meta []byte
}

// NewRecord builds a canonical Record from caller input: it assigns a
// fresh time-ordered ID, a monotonic Created timestamp, and defaults
// Recorded to Created. It performs no I/O and no validation (see
// Registry.Validate for that).
func NewRecord(input RecordInput) Record {
	return newRecordAt(input, defaultClock.Now())
}

func newRecordAt(input RecordInput, created Timestamp) Record {
	stream := input.Stream
	if stream == "" {
		stream = uuid.NewString()
	}

	return Record{
		ID:       uuid.Must(uuid.NewV7()),
		Stream:   stream,
		Type:     input.Type,
		Data:     input.Data,
		Meta:     input.Meta,
		Created:  created,
		Recorded: created,
	}
}

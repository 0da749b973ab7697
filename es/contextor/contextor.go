// Package contextor derives stream-to-context index operations from
// accepted records and applies them to a ContextProvider, downstream
// of the event's own commit.
package contextor

import (
	"context"

	"github.com/nimbusdb/evently/es"
	"github.com/nimbusdb/evently/es/store"
)

// Result is one context operation a Reducer derives from a record.
type Result struct {
	Op     store.ContextOp
	Key    string
	Stream string
}

// Reducer maps a record to zero or more context operations.
type Reducer func(rec es.Record) []Result

// Builder collects reducers keyed by event type into an immutable
// dispatch table.
type Builder struct {
	reducers map[string][]Reducer
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{reducers: make(map[string][]Reducer)}
}

// Register adds a reducer for eventType. Multiple reducers may be
// registered for the same type; all run, in registration order.
func (b *Builder) Register(eventType string, r Reducer) *Builder {
	b.reducers[eventType] = append(b.reducers[eventType], r)
	return b
}

// Build freezes the registrations into a Contextor.
func (b *Builder) Build() *Contextor {
	reducers := make(map[string][]Reducer, len(b.reducers))
	for t, rs := range b.reducers {
		reducers[t] = append([]Reducer(nil), rs...)
	}
	return &Contextor{reducers: reducers}
}

// Contextor is an immutable dispatch table from event type to context
// reducers, built once via Builder.
type Contextor struct {
	reducers map[string][]Reducer
}

// Push runs every reducer registered for rec.Type and applies the
// resulting operations to provider in the order produced. Operations
// are not transactional with the record's own insert: a failure here
// is reported to onError and never rolls back the event.
func (c *Contextor) Push(ctx context.Context, tx es.DBTX, provider store.ContextProvider, rec es.Record, onError func(error)) {
	for _, reduce := range c.reducers[rec.Type] {
		for _, result := range reduce(rec) {
			entry := store.ContextEntry{Key: result.Key, Op: result.Op, Stream: result.Stream}
			if err := provider.Handle(ctx, tx, entry); err != nil {
				if onError != nil {
					onError(err)
				}
			}
		}
	}
}

// Package projector implements typed event-to-handler dispatch: the
// in-process fan-out that turns an accepted record into read-model
// updates, keyed by event type and run in registration order.
package projector

import (
	"context"
	"fmt"

	"github.com/nimbusdb/evently/es"
)

// Mode controls when a handler fires relative to hydration and replay.
type Mode int

const (
	// On is the exclusive registration mode: at most one On handler
	// per event type. It fires on every dispatch, including replay,
	// and on outdated records only if registered WithOutdated.
	On Mode = iota

	// Once fires only for genuinely new events (hydrated=false) and is
	// always skipped for outdated records and during replay.
	Once
)

// Meta carries the hydration and outdatedness flags a handler needs to
// tell a live append from a replay, and a fresh event from a late one.
type Meta struct {
	Hydrated bool
	Outdated bool
}

// Handler processes one record within tx. In es/eventstore that is a
// fresh transaction opened for fan-out after the record's own insert
// has committed, both for live appends and during replay.
type Handler func(ctx context.Context, tx es.DBTX, rec es.Record, meta Meta) error

type entryOption struct {
	dispatchOutdated bool
}

// OnOption configures an On registration.
type OnOption func(*entryOption)

// WithOutdated opts an On handler into dispatch on outdated records.
// Without it, an On handler is skipped whenever meta.Outdated is true.
func WithOutdated() OnOption {
	return func(o *entryOption) { o.dispatchOutdated = true }
}

type entry struct {
	mode             Mode
	handler          Handler
	dispatchOutdated bool
}

// Builder collects (type, mode, handler) registrations into an
// immutable dispatch table. Registration happens once at startup;
// Build freezes it.
type Builder struct {
	entries map[string][]entry
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{entries: make(map[string][]entry)}
}

// On registers an exclusive handler for eventType. Registering a
// second On handler for the same type panics.
func (b *Builder) On(eventType string, handler Handler, opts ...OnOption) *Builder {
	for _, e := range b.entries[eventType] {
		if e.mode == On {
			panic(fmt.Sprintf("projector: On handler already registered for event type %q", eventType))
		}
	}
	cfg := entryOption{}
	for _, opt := range opts {
		opt(&cfg)
	}
	b.entries[eventType] = append(b.entries[eventType], entry{mode: On, handler: handler, dispatchOutdated: cfg.dispatchOutdated})
	return b
}

// Once registers a handler for eventType that fires only on genuinely
// new events. Registering a second Once handler for the same type
// panics.
func (b *Builder) Once(eventType string, handler Handler) *Builder {
	for _, e := range b.entries[eventType] {
		if e.mode == Once {
			panic(fmt.Sprintf("projector: Once handler already registered for event type %q", eventType))
		}
	}
	b.entries[eventType] = append(b.entries[eventType], entry{mode: Once, handler: handler})
	return b
}

// Build freezes the registrations into a Projector.
func (b *Builder) Build() *Projector {
	dispatch := make(map[string][]entry, len(b.entries))
	for t, entries := range b.entries {
		dispatch[t] = append([]entry(nil), entries...)
	}
	return &Projector{dispatch: dispatch}
}

// Projector is an immutable dispatch table from event type to
// handlers, built once via Builder.
type Projector struct {
	dispatch map[string][]entry
}

// Project runs every handler registered for rec.Type, in registration
// order, sequentially awaiting each one. A handler's error does not
// stop the others for the same record; it is reported to onError,
// wrapped as *es.HandlerError, so the append protocol can route it to
// the ProjectorError hook without failing the durable insert.
func (p *Projector) Project(ctx context.Context, tx es.DBTX, rec es.Record, meta Meta, onError func(error)) {
	for _, e := range p.dispatch[rec.Type] {
		if meta.Outdated {
			if e.mode == Once || !e.dispatchOutdated {
				continue
			}
		}
		if e.mode == Once && meta.Hydrated {
			continue
		}
		if err := e.handler(ctx, tx, rec, meta); err != nil {
			if onError != nil {
				onError(&es.HandlerError{Record: rec, Cause: err})
			}
		}
	}
}

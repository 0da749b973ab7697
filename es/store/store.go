// Package store defines the storage provider contracts for the events,
// contexts and snapshots tables: EventProvider, ContextProvider, and
// SnapshotProvider back the three persisted tables, specified
// abstractly enough that any embedded or server SQL engine can
// implement them. See es/adapters for concrete backends.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/nimbusdb/evently/es"
)

var (
	// ErrNoRecords indicates an attempt to insert zero records via
	// InsertMany.
	ErrNoRecords = errors.New("store: no records to insert")
)

// Direction controls the order Get/GetByStream/GetByStreams return
// records in.
type Direction int

const (
	// Ascending orders by (created, id) ascending. The default.
	Ascending Direction = iota
	// Descending orders by (created, id) descending.
	Descending
)

// Filter narrows a query to a subset of declared event types. An empty
// Types means "no filter".
type Filter struct {
	Types []string
}

// QueryOptions controls pagination and ordering of an event read.
type QueryOptions struct {
	Filter Filter

	// Cursor bounds the query strictly: results have (created, id)
	// greater than Cursor when Direction is Ascending, or less than
	// Cursor when Direction is Descending. Nil means unbounded.
	Cursor *es.Cursor

	Direction Direction

	// Limit caps the number of records returned. Zero means unbounded.
	Limit int
}

// EventProvider persists and queries the events table.
type EventProvider interface {
	// Insert appends one record. It fails with a unique-violation error
	// (checked via IsUniqueViolation) on an (stream, created) or id
	// duplicate; the caller (see es/eventstore) is responsible for
	// disambiguating and retrying with a bumped timestamp.
	Insert(ctx context.Context, tx es.DBTX, rec es.Record) error

	// InsertMany appends every record through tx, stopping at the first
	// error, and returns ErrNoRecords for an empty slice. It opens no
	// transaction of its own: the set is all-or-nothing only when tx is
	// a transaction that the caller rolls back on error. batchSize is a
	// hint with no externally observable effect; the adapters in
	// es/adapters ignore it and insert each record individually.
	InsertMany(ctx context.Context, tx es.DBTX, recs []es.Record, batchSize int) error

	// GetByID returns the record with the given id, or ok=false if none
	// exists.
	GetByID(ctx context.Context, tx es.DBTX, id uuid.UUID) (rec es.Record, ok bool, err error)

	// Get returns records across all streams matching opts, ordered by
	// (created, id) per opts.Direction.
	Get(ctx context.Context, tx es.DBTX, opts QueryOptions) ([]es.Record, error)

	// GetByStream returns records for a single stream, ordered by
	// (created, id) per opts.Direction.
	GetByStream(ctx context.Context, tx es.DBTX, stream string, opts QueryOptions) ([]es.Record, error)

	// GetByStreams returns records across the union of the given
	// streams, ordered by (created, id) per opts.Direction.
	GetByStreams(ctx context.Context, tx es.DBTX, streams []string, opts QueryOptions) ([]es.Record, error)

	// CheckOutdated reports whether any record exists with the same
	// stream and type and a strictly greater created timestamp than
	// the given one.
	CheckOutdated(ctx context.Context, tx es.DBTX, stream, eventType string, created es.Timestamp) (bool, error)
}

// ContextOp is the operation a ContextEntry applies.
type ContextOp int

const (
	// ContextInsert associates a stream with a context key.
	ContextInsert ContextOp = iota
	// ContextRemove disassociates a stream from a context key. Removing
	// an entry that was never inserted is a permitted no-op.
	ContextRemove
)

// ContextEntry is one operation against the contexts table.
type ContextEntry struct {
	Key    string
	Op     ContextOp
	Stream string
}

// ContextProvider persists and queries the contexts table: a
// stream-to-context secondary index whose logical state is the
// sequential replay of every ContextEntry ever applied.
type ContextProvider interface {
	// Handle applies a single context entry. Entries are append-only;
	// the logical set of (key -> {stream}) is derived by replay.
	Handle(ctx context.Context, tx es.DBTX, entry ContextEntry) error

	// GetByKey returns the distinct streams currently associated with
	// key, i.e. those with a net-insert state after replaying every
	// entry for that key in order.
	GetByKey(ctx context.Context, tx es.DBTX, key string) ([]string, error)
}

// SnapshotRecord is a cached reducer result: the reducer's opaque
// state as of Cursor, keyed by (Name, Key). Cursor names the last
// folded event's full (created, id) position, not just its
// timestamp, so a resumed reduce can exclude that event by strict
// (created, id) comparison instead of re-folding it.
type SnapshotRecord struct {
	Name   string
	Key    string
	Cursor es.Cursor
	State  []byte
}

// SnapshotProvider persists and queries the snapshots table. At most
// one row exists per (Name, Key); InsertSnapshot replaces any existing
// row.
//
// Its methods carry a Snapshot-prefixed name rather than the shorter
// Insert/GetByKey/Remove used elsewhere in this file: Provider bundles
// this interface alongside EventProvider and ContextProvider into a
// single implementing type, and Go methods cannot be overloaded by
// signature.
type SnapshotProvider interface {
	// InsertSnapshot upserts a snapshot, replacing any existing row for
	// the same (Name, Key).
	InsertSnapshot(ctx context.Context, tx es.DBTX, snap SnapshotRecord) error

	// GetSnapshotByKey returns the snapshot for (name, key), or
	// ok=false if none exists.
	GetSnapshotByKey(ctx context.Context, tx es.DBTX, name, key string) (snap SnapshotRecord, ok bool, err error)

	// RemoveSnapshot deletes the snapshot for (name, key)
	// unconditionally. It is not an error if none exists.
	RemoveSnapshot(ctx context.Context, tx es.DBTX, name, key string) error
}

// Provider bundles the three storage contracts a single backend
// implements, for convenience when wiring an es/eventstore.Store.
type Provider interface {
	EventProvider
	ContextProvider
	SnapshotProvider
}

// UniqueViolationChecker classifies an error returned by
// EventProvider.Insert as a unique-index collision (on either the
// primary key or the (stream, created) index) versus a hard storage
// failure. Every adapter in es/adapters implements this; the
// es/eventstore façade type-asserts for it since the driver-specific
// error shape cannot otherwise be inspected generically.
type UniqueViolationChecker interface {
	IsUniqueViolation(err error) bool
}

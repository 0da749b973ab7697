// Package reducer implements left-fold state derivation over stream
// or context event sequences, with optional snapshot-based resumption.
package reducer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nimbusdb/evently/es"
	"github.com/nimbusdb/evently/es/store"
)

// Kind selects whether a Reducer folds a single stream or the union
// of streams behind a context key.
type Kind int

const (
	// StreamKind folds the events of a single stream.
	StreamKind Kind = iota
	// ContextKind folds the events of every stream associated with a
	// context key.
	ContextKind
)

// SnapshotMode controls whether Reduce persists its result.
type SnapshotMode int

const (
	// ManualSnapshot never writes a snapshot from Reduce; callers use
	// CreateSnapshot explicitly.
	ManualSnapshot SnapshotMode = iota
	// AutoSnapshot upserts a snapshot after every Reduce call that
	// folds at least one new event.
	AutoSnapshot
)

// Reducer is an immutable descriptor of a named left-fold over a
// filtered event sequence. S is the caller's state type; it must
// round-trip through encoding/json since snapshots persist it as JSON.
type Reducer[S any] struct {
	Name    string
	Kind    Kind
	Filter  store.Filter
	Initial S
	Fold    func(state S, rec es.Record) S
}

// Engine holds the storage providers a Reduce call needs: the event
// log, the context index, and the snapshot cache.
type Engine struct {
	Events    store.EventProvider
	Contexts  store.ContextProvider
	Snapshots store.SnapshotProvider
	Mode      SnapshotMode
}

// NewEngine builds an Engine from a bundled store.Provider.
func NewEngine(provider store.Provider, mode SnapshotMode) *Engine {
	return &Engine{Events: provider, Contexts: provider, Snapshots: provider, Mode: mode}
}

func fetchEvents(ctx context.Context, tx es.DBTX, eng *Engine, key string, kind Kind, opts store.QueryOptions) ([]es.Record, error) {
	if kind == StreamKind {
		return eng.Events.GetByStream(ctx, tx, key, opts)
	}
	streams, err := eng.Contexts.GetByKey(ctx, tx, key)
	if err != nil {
		return nil, err
	}
	if len(streams) == 0 {
		return nil, nil
	}
	return eng.Events.GetByStreams(ctx, tx, streams, opts)
}

// Reduce folds the events of key (a stream name or context key,
// depending on r.Kind) into state, resuming from any existing snapshot
// at (r.Name, key). If neither a snapshot nor any matching event
// exists, it returns the zero value of S and es.ErrNotFound.
func Reduce[S any](ctx context.Context, tx es.DBTX, eng *Engine, key string, r Reducer[S]) (S, error) {
	var zero S

	snap, hasSnapshot, err := eng.Snapshots.GetSnapshotByKey(ctx, tx, r.Name, key)
	if err != nil {
		return zero, &es.StorageError{Cause: err}
	}

	state := r.Initial
	var cursor *es.Cursor
	if hasSnapshot {
		if err := json.Unmarshal(snap.State, &state); err != nil {
			return zero, fmt.Errorf("reducer: %s: unmarshal snapshot state: %w", r.Name, err)
		}
		cursor = &snap.Cursor
	}

	opts := store.QueryOptions{Filter: r.Filter, Cursor: cursor, Direction: store.Ascending}
	records, err := fetchEvents(ctx, tx, eng, key, r.Kind, opts)
	if err != nil {
		return zero, &es.StorageError{Cause: err}
	}

	if len(records) == 0 {
		if !hasSnapshot {
			return zero, es.ErrNotFound
		}
		return state, nil
	}

	for _, rec := range records {
		state = r.Fold(state, rec)
	}

	if eng.Mode == AutoSnapshot {
		last := records[len(records)-1]
		if err := upsertSnapshot(ctx, tx, eng, r.Name, key, es.Cursor{Created: last.Created, ID: last.ID}, state); err != nil {
			return state, err
		}
	}

	return state, nil
}

// CreateSnapshot force-computes state from scratch over every matching
// event, ignoring any existing snapshot, and unconditionally replaces
// it, regardless of the engine's SnapshotMode.
func CreateSnapshot[S any](ctx context.Context, tx es.DBTX, eng *Engine, key string, r Reducer[S]) (S, error) {
	opts := store.QueryOptions{Filter: r.Filter, Direction: store.Ascending}
	records, err := fetchEvents(ctx, tx, eng, key, r.Kind, opts)
	if err != nil {
		return r.Initial, &es.StorageError{Cause: err}
	}

	state := r.Initial
	for _, rec := range records {
		state = r.Fold(state, rec)
	}

	var cursor es.Cursor
	if len(records) > 0 {
		last := records[len(records)-1]
		cursor = es.Cursor{Created: last.Created, ID: last.ID}
	}

	if err := upsertSnapshot(ctx, tx, eng, r.Name, key, cursor, state); err != nil {
		return state, err
	}
	return state, nil
}

// DeleteSnapshot removes the snapshot at (name, key) unconditionally.
// It is not an error if none exists.
func DeleteSnapshot(ctx context.Context, tx es.DBTX, eng *Engine, name, key string) error {
	if err := eng.Snapshots.RemoveSnapshot(ctx, tx, name, key); err != nil {
		return &es.StorageError{Cause: err}
	}
	return nil
}

func upsertSnapshot[S any](ctx context.Context, tx es.DBTX, eng *Engine, name, key string, cursor es.Cursor, state S) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("reducer: %s: marshal snapshot state: %w", name, err)
	}
	if err := eng.Snapshots.InsertSnapshot(ctx, tx, store.SnapshotRecord{Name: name, Key: key, Cursor: cursor, State: data}); err != nil {
		return &es.StorageError{Cause: err}
	}
	return nil
}

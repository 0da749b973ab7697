// Package es provides the core types and interfaces of the event store.
//
// # Overview
//
// This package defines the fundamental building blocks:
//   - Record: an immutable, validated entry in the event log
//   - DBTX: database transaction abstraction
//   - Registry: the per-type validator table checked before insert
//   - Hooks: optional lifecycle callbacks for the append protocol
//
// The append protocol, the projector, the contextor, and the reducer
// engine live in their own packages (es/eventstore, es/projector,
// es/contextor, es/reducer) built on top of these types and on the
// storage contracts in es/store.
//
// # Design Philosophy
//
// Clean architecture: these core types are database-agnostic.
// Infrastructure concerns are isolated in es/adapters.
//
// Transaction control: the storage providers in es/store take a DBTX
// instead of managing transactions themselves. A caller that uses a
// provider directly controls the transaction boundaries and can combine
// an insert with other database work atomically, at the cost of every
// provider method taking an explicit es.DBTX rather than owning a
// connection. The eventstore.Store façade holds a *sql.DB and opens its
// own transactions; it does not take part in a caller's transaction.
//
// Immutability: records are value objects. A Record's ID is assigned
// by the factory before it ever reaches storage, which is what makes
// re-insertion of the same ID an idempotent no-op rather than an error.
//
// # Quick Start
//
// 1. Generate database migrations:
//
//	go run github.com/nimbusdb/evently/cmd/migrate-gen -output migrations
//
// 2. Apply migrations to your database.
//
// 3. Register validators and build a store:
//
//	registry := es.NewRegistry()
//	registry.Register("OrderPlaced", orderPlacedSchema, nil)
//
//	proj := projector.NewBuilder().
//	    On("OrderPlaced", handleOrderPlaced).
//	    Build()
//
//	store := eventstore.New(db, eventstore.Config{
//	    Events:    registry.Types(),
//	    Validator: registry,
//	    Provider:  postgres.NewStore(),
//	    Projector: proj,
//	})
//
// 4. Append events:
//
//	id, err := store.AddEvent(ctx, es.RecordInput{
//	    Stream: orderID,
//	    Type:   "OrderPlaced",
//	    Data:   payload,
//	})
//
// 5. Fold a stream's history with a reducer:
//
//	total, err := eventstore.Reduce(ctx, store, orderID, orderTotalReducer)
//
// # Append Protocol
//
// PushEvent runs a fixed sequence: an idempotent existence check by
// ID, validation against the registry, an outdatedness probe against
// the stream's most recent event of the same type, and an insert that
// automatically retries on a (stream, created) collision by bumping
// Created to the next representable microsecond, bounded at a fixed
// number of attempts. Only that bump-and-retry is automatic; no
// network or storage error is retried by the library.
//
// Once a record is durably inserted, PushEvent fans out concurrently
// to the projector and the contextor. Handler failures there are
// reported through Hooks and never unwind the append: by the time
// fan-out runs, the record is already committed.
//
// # Database Schema
//
// Three tables back the store:
//   - events: id (unique), stream, type, data, meta, created, recorded;
//     unique on (stream, created); the per-stream ordering key is
//     (created, id).
//   - contexts: an append-only log of (key, op, stream) associations;
//     the live set of streams for a key is derived by replaying every
//     row for that key in insertion order.
//   - snapshots: at most one row per (reducer name, key), holding the
//     reducer's folded state as of a (created, id) cursor.
//
// # Design Decisions
//
// JSON for data/meta: keeps the wire format legible and lets adapters
// use their database's native JSON column type where available.
//
// DBTX interface: works with *sql.DB and *sql.Tx. The providers manage
// no transactions; transaction management is confined to the
// eventstore.Store façade.
//
// Push-based fan-out: the projector and contextor run synchronously
// as part of a record becoming durable, rather than polling a
// checkpoint. This trades horizontal scaling of read-model catch-up
// for simplicity and immediate consistency of in-process projections.
package es

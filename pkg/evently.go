// Package evently provides event sourcing capabilities for Go applications.
//
// This package serves as the main entry point for the evently library.
// For the core event sourcing functionality, see the es package and its
// subpackages:
//
//	es               - Core types and interfaces
//	es/store         - Storage provider contracts
//	es/eventstore    - The append/replay/reduce façade
//	es/projector     - Typed event-to-handler dispatch
//	es/contextor     - Stream-to-context index fan-out
//	es/reducer       - Left-fold state derivation with snapshots
//	es/schema        - JSON Schema-backed validators
//	es/adapters/*    - PostgreSQL, MySQL, and SQLite implementations
//	es/migrations    - Migration generation
//
// Quick Start:
//
//  1. Generate migrations:
//     go run github.com/nimbusdb/evently/cmd/migrate-gen -output migrations
//
//  2. Create a store and append events:
//     store := eventstore.New(db, eventstore.Config{...})
//     id, err := store.AddEvent(ctx, es.RecordInput{Stream: streamID, Type: "OrderPlaced", Data: payload})
//
//  3. Fold a stream into application state:
//     state, err := eventstore.Reduce(ctx, store, streamID, orderReducer)
//
// See the es package documentation for a longer walkthrough.
package evently

// Version returns the current version of the library.
func Version() string {
	return "0.1.0-dev"
}

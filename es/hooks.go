package es

import "context"

// InsertOutcome describes how PushEvent's insert step resolved.
type InsertOutcome struct {
	// Existing is true when the record's id was already present, so the
	// insert was an idempotent no-op.
	Existing bool

	// Hydrated is true when the record arrived via replication or
	// replay rather than being freshly authored.
	Hydrated bool

	// Outdated is true when a freshly authored record's Created
	// preceded an existing record of the same stream and type.
	Outdated bool
}

// Hooks is a struct of optional callbacks the façade invokes as it
// processes events. A nil field is simply not called; Hooks models a
// single observer, not a dynamic subscriber list.
type Hooks struct {
	// EventInserted fires once a record is durable, whether newly
	// inserted or found to already exist.
	EventInserted func(ctx context.Context, rec Record, outcome InsertOutcome)

	// EventError fires when a record fails validation before insert.
	EventError func(ctx context.Context, rec Record, err error)

	// ProjectorError fires when a projector handler returns an error.
	// The append itself is not affected.
	ProjectorError func(ctx context.Context, rec Record, err error)

	// ContextError fires when a provider call made by the contextor
	// fails. The append itself is not affected.
	ContextError func(ctx context.Context, rec Record, err error)

	// PostCommitAbandon fires when the caller's context was canceled
	// between a record's commit and its fan-out. Fan-out still runs to
	// completion; this hook is purely informational.
	PostCommitAbandon func(ctx context.Context, rec Record)
}

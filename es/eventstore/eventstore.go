// Package eventstore is the event-store façade: it composes the
// storage providers, the validator registry, the projector, and the
// contextor into the append and replay protocols, and exposes the
// reduce operations built on top of them.
package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nimbusdb/evently/es"
	"github.com/nimbusdb/evently/es/contextor"
	"github.com/nimbusdb/evently/es/projector"
	"github.com/nimbusdb/evently/es/reducer"
	"github.com/nimbusdb/evently/es/store"
)

// defaultRetryLimit bounds the (stream, created) bump-and-retry loop
// of the append protocol.
const defaultRetryLimit = 16

// Config configures a Store. Events, Validator and Provider are
// required; the other fields are optional.
type Config struct {
	// Events is the closed set of event types this store accepts.
	// Every type here must have a registered validator in Validator;
	// New panics otherwise, since a declared-but-unvalidated type is a
	// configuration fault, not a runtime error.
	Events []string

	// Validator holds the data/meta schema validators checked before
	// insert.
	Validator *es.Registry

	// Provider is the backend implementing the three storage
	// contracts.
	Provider store.Provider

	// Projector dispatches accepted records to typed handlers. May be
	// nil, meaning no handlers are registered.
	Projector *projector.Projector

	// Contextor derives context index operations from records. May be
	// nil, meaning no context entries are ever produced.
	Contextor *contextor.Contextor

	// Hooks receives lifecycle callbacks. Zero value disables all of
	// them.
	Hooks es.Hooks

	// Snapshot controls whether Reduce persists its result
	// automatically. Defaults to reducer.ManualSnapshot.
	Snapshot reducer.SnapshotMode

	// RetryLimit bounds the (stream, created) bump-and-retry loop.
	// Zero uses defaultRetryLimit.
	RetryLimit int
}

// Store is the event-store façade.
type Store struct {
	db         *sql.DB
	events     map[string]struct{}
	validator  *es.Registry
	provider   store.Provider
	proj       *projector.Projector
	ctxr       *contextor.Contextor
	hooks      es.Hooks
	retryLimit int
	engine     *reducer.Engine
}

// New builds a Store. It panics if config.Events names a type with no
// registered validator, since that combination can never accept an
// event of that type and is almost certainly a wiring mistake rather
// than something a caller should discover at request time.
func New(db *sql.DB, config Config) *Store {
	for _, t := range config.Events {
		if !config.Validator.Has(t) {
			panic(fmt.Sprintf("eventstore: declared event type %q has no registered validator", t))
		}
	}

	events := make(map[string]struct{}, len(config.Events))
	for _, t := range config.Events {
		events[t] = struct{}{}
	}

	retryLimit := config.RetryLimit
	if retryLimit <= 0 {
		retryLimit = defaultRetryLimit
	}

	return &Store{
		db:         db,
		events:     events,
		validator:  config.Validator,
		provider:   config.Provider,
		proj:       config.Projector,
		ctxr:       config.Contextor,
		hooks:      config.Hooks,
		retryLimit: retryLimit,
		engine:     reducer.NewEngine(config.Provider, config.Snapshot),
	}
}

// HasEvent reports whether eventType is in the declared closed set.
func (s *Store) HasEvent(eventType string) bool {
	_, ok := s.events[eventType]
	return ok
}

// GetValidator returns the data validator registered for eventType, if
// any.
func (s *Store) GetValidator(eventType string) (es.Validator, bool) {
	return s.validator.DataValidator(eventType)
}

// PushEvent runs the append protocol for a single record: existence
// check, validation, outdatedness probe, insert with conflict retry,
// then post-commit fan-out to the projector and contextor. hydrated
// should be false for locally authored events and true for events
// arriving via replication.
func (s *Store) PushEvent(ctx context.Context, rec es.Record, hydrated bool) (uuid.UUID, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, &es.StorageError{Cause: err}
	}

	persisted, outcome, err := s.insert(ctx, tx, rec, hydrated)
	if err != nil {
		_ = tx.Rollback()
		s.reportInsertError(ctx, rec, err)
		return uuid.Nil, err
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, &es.StorageError{Cause: err}
	}

	s.settle(ctx, persisted, outcome)
	return persisted.ID, nil
}

// PushEventSequence runs validation and insert for every record inside
// a single transaction: if any record fails validation the whole
// transaction aborts and nothing is inserted. Fan-out runs only for
// successfully inserted records, after commit, in the original order.
func (s *Store) PushEventSequence(ctx context.Context, records []es.Record, hydrated bool) ([]uuid.UUID, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &es.StorageError{Cause: err}
	}

	outcomes := make([]es.InsertOutcome, len(records))
	for i, rec := range records {
		persisted, outcome, err := s.insert(ctx, tx, rec, hydrated)
		if err != nil {
			_ = tx.Rollback()
			s.reportInsertError(ctx, rec, err)
			return nil, err
		}
		records[i] = persisted
		outcomes[i] = outcome
	}

	if err := tx.Commit(); err != nil {
		return nil, &es.StorageError{Cause: err}
	}

	ids := make([]uuid.UUID, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
		s.settle(ctx, rec, outcomes[i])
	}
	return ids, nil
}

// AddEvent builds a record from input via the factory and pushes it as
// a locally authored event.
func (s *Store) AddEvent(ctx context.Context, input es.RecordInput) (uuid.UUID, error) {
	return s.PushEvent(ctx, es.NewRecord(input), false)
}

// AddEventSequence builds records from inputs via the factory and
// pushes them as a locally authored sequence.
func (s *Store) AddEventSequence(ctx context.Context, inputs []es.RecordInput) ([]uuid.UUID, error) {
	records := make([]es.Record, len(inputs))
	for i, input := range inputs {
		records[i] = es.NewRecord(input)
	}
	return s.PushEventSequence(ctx, records, false)
}

// Replay runs fan-out for an already-persisted set of records without
// re-inserting them. Handlers see hydrated=true, outdated=false for
// every record, in the order given. Replay is additive: it does not
// reset any state that handlers have already built.
func (s *Store) Replay(ctx context.Context, records []es.Record) {
	for _, rec := range records {
		s.fanOut(ctx, rec, projector.Meta{Hydrated: true, Outdated: false})
	}
}

// ReplayStream fetches a stream's full history and replays it.
func (s *Store) ReplayStream(ctx context.Context, stream string) error {
	records, err := s.provider.GetByStream(ctx, s.db, stream, store.QueryOptions{Direction: store.Ascending})
	if err != nil {
		return &es.StorageError{Cause: err}
	}
	s.Replay(ctx, records)
	return nil
}

// GetByContext returns the events of every stream currently associated
// with a context key, in (created, id) order.
func (s *Store) GetByContext(ctx context.Context, key string, opts store.QueryOptions) ([]es.Record, error) {
	streams, err := s.provider.GetByKey(ctx, s.db, key)
	if err != nil {
		return nil, &es.StorageError{Cause: err}
	}
	if len(streams) == 0 {
		return nil, nil
	}
	return s.provider.GetByStreams(ctx, s.db, streams, opts)
}

// insert runs steps 1-4 of the append protocol against tx: existence
// check, validation, outdatedness probe, and insert with (stream,
// created) conflict retry. It never fans out and never commits. The
// returned Record reflects whatever Created ended up persisted, which
// may differ from the input if a collision was resolved by bumping.
func (s *Store) insert(ctx context.Context, tx es.DBTX, rec es.Record, hydrated bool) (es.Record, es.InsertOutcome, error) {
	if _, ok, err := s.provider.GetByID(ctx, tx, rec.ID); err != nil {
		return rec, es.InsertOutcome{}, &es.StorageError{Cause: err}
	} else if ok {
		return rec, es.InsertOutcome{Existing: true}, nil
	}

	if !s.HasEvent(rec.Type) {
		return rec, es.InsertOutcome{}, &es.UnknownEvent{Type: rec.Type}
	}
	if err := s.validator.Validate(rec); err != nil {
		return rec, es.InsertOutcome{}, err
	}

	var outdated bool
	if !hydrated {
		var err error
		outdated, err = s.provider.CheckOutdated(ctx, tx, rec.Stream, rec.Type, rec.Created)
		if err != nil {
			return rec, es.InsertOutcome{}, &es.StorageError{Cause: err}
		}
	}

	checker, _ := s.provider.(store.UniqueViolationChecker)

	current := rec
	current.Recorded = es.NewTimestamp(time.Now())
	for attempt := 0; attempt < s.retryLimit; attempt++ {
		err := s.provider.Insert(ctx, tx, current)
		if err == nil {
			return current, es.InsertOutcome{Hydrated: hydrated, Outdated: outdated}, nil
		}
		if checker == nil || !checker.IsUniqueViolation(err) {
			return rec, es.InsertOutcome{}, &es.StorageError{Cause: err}
		}

		_, found, gerr := s.provider.GetByID(ctx, tx, current.ID)
		if gerr != nil {
			return rec, es.InsertOutcome{}, &es.StorageError{Cause: gerr}
		}
		if found {
			return rec, es.InsertOutcome{Existing: true}, nil
		}
		current.Created = current.Created.Bump()
	}

	return rec, es.InsertOutcome{}, &es.Conflict{Reason: es.ConflictStreamTimestampExhausted}
}

func (s *Store) reportInsertError(ctx context.Context, rec es.Record, err error) {
	switch err.(type) {
	case *es.ValidationError, *es.UnknownEvent:
		if s.hooks.EventError != nil {
			s.hooks.EventError(ctx, rec, err)
		}
	}
}

func (s *Store) reportInserted(ctx context.Context, rec es.Record, outcome es.InsertOutcome) {
	if s.hooks.EventInserted != nil {
		s.hooks.EventInserted(ctx, rec, outcome)
	}
}

func (s *Store) reportProjectorError(ctx context.Context, rec es.Record, err error) {
	if s.hooks.ProjectorError != nil {
		s.hooks.ProjectorError(ctx, rec, err)
	}
}

func (s *Store) reportContextError(ctx context.Context, rec es.Record, err error) {
	if s.hooks.ContextError != nil {
		s.hooks.ContextError(ctx, rec, err)
	}
}

// settle handles everything that happens once a record's fate is
// durable: post-commit-abandon detection, fan-out for freshly inserted
// records, and the terminal EventInserted hook.
func (s *Store) settle(ctx context.Context, rec es.Record, outcome es.InsertOutcome) {
	if outcome.Existing {
		s.reportInserted(ctx, rec, outcome)
		return
	}

	fanOutCtx := context.WithoutCancel(ctx)
	if ctx.Err() != nil && s.hooks.PostCommitAbandon != nil {
		s.hooks.PostCommitAbandon(ctx, rec)
	}

	s.fanOut(fanOutCtx, rec, projector.Meta{Hydrated: outcome.Hydrated, Outdated: outcome.Outdated})
	s.reportInserted(ctx, rec, outcome)
}

// fanOut concurrently invokes the projector and the contextor for rec,
// inside a fresh transaction it commits itself. Handler and provider
// errors are routed to hooks; they never propagate to the caller,
// since the record is already durable by the time fan-out runs.
func (s *Store) fanOut(ctx context.Context, rec es.Record, meta projector.Meta) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.reportProjectorError(ctx, rec, &es.StorageError{Cause: err})
		return
	}

	var g errgroup.Group
	g.Go(func() error {
		if s.proj != nil {
			s.proj.Project(ctx, tx, rec, meta, func(err error) { s.reportProjectorError(ctx, rec, err) })
		}
		return nil
	})
	g.Go(func() error {
		if s.ctxr != nil {
			s.ctxr.Push(ctx, tx, s.provider, rec, func(err error) { s.reportContextError(ctx, rec, err) })
		}
		return nil
	})
	_ = g.Wait()

	if err := tx.Commit(); err != nil {
		s.reportProjectorError(ctx, rec, &es.StorageError{Cause: err})
	}
}

// Reduce folds the events of key (a stream or context key, per
// r.Kind) into state via the store's reducer engine. It is a
// package-level function, not a method, because Go methods cannot be
// generic.
func Reduce[S any](ctx context.Context, s *Store, key string, r reducer.Reducer[S]) (S, error) {
	return reducer.Reduce[S](ctx, s.db, s.engine, key, r)
}

// CreateSnapshot force-computes and unconditionally persists a
// reducer's state over its full matching event set.
func CreateSnapshot[S any](ctx context.Context, s *Store, key string, r reducer.Reducer[S]) (S, error) {
	return reducer.CreateSnapshot[S](ctx, s.db, s.engine, key, r)
}

// DeleteSnapshot removes a reducer's snapshot at (name, key)
// unconditionally.
func (s *Store) DeleteSnapshot(ctx context.Context, name, key string) error {
	return reducer.DeleteSnapshot(ctx, s.db, s.engine, name, key)
}

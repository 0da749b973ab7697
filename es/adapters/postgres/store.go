// Package postgres provides a PostgreSQL backend for the event,
// context, and snapshot storage provider contracts declared by
// es/store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/nimbusdb/evently/es"
	"github.com/nimbusdb/evently/es/store"
)

// StoreConfig configures a Store. Configuration is immutable after
// construction.
type StoreConfig struct {
	// Logger is an optional logger for observability. A nil Logger
	// disables logging entirely.
	Logger es.Logger

	// EventsTable, ContextsTable, and SnapshotsTable name the three
	// tables this provider reads and writes.
	EventsTable    string
	ContextsTable  string
	SnapshotsTable string
}

// DefaultStoreConfig returns the default table names.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		EventsTable:    "events",
		ContextsTable:  "contexts",
		SnapshotsTable: "snapshots",
	}
}

// StoreOption configures a Store built via NewStore.
type StoreOption func(*StoreConfig)

// WithLogger sets the store's logger.
func WithLogger(logger es.Logger) StoreOption {
	return func(c *StoreConfig) { c.Logger = logger }
}

// WithTables overrides the default table names.
func WithTables(events, contexts, snapshots string) StoreOption {
	return func(c *StoreConfig) {
		c.EventsTable, c.ContextsTable, c.SnapshotsTable = events, contexts, snapshots
	}
}

// Store is a PostgreSQL-backed implementation of store.Provider.
type Store struct {
	config StoreConfig
}

// NewStore builds a Store from DefaultStoreConfig with opts applied.
func NewStore(opts ...StoreOption) *Store {
	config := DefaultStoreConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return &Store{config: config}
}

var _ store.Provider = (*Store)(nil)

func (s *Store) logger() es.Logger {
	if s.config.Logger == nil {
		return es.NoOpLogger{}
	}
	return s.config.Logger
}

// Insert implements store.EventProvider.
func (s *Store) Insert(ctx context.Context, tx es.DBTX, rec es.Record) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, stream, type, data, meta, created, recorded)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`, s.config.EventsTable)

	_, err := tx.ExecContext(ctx, query,
		rec.ID, rec.Stream, rec.Type, rec.Data, rec.Meta,
		rec.Created.Time(), rec.Recorded.Time())
	if err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return &es.StorageError{Cause: fmt.Errorf("insert event: %w", err)}
	}
	s.logger().Debug(ctx, "event inserted", "id", rec.ID, "stream", rec.Stream, "type", rec.Type)
	return nil
}

// InsertMany implements store.EventProvider. batchSize is accepted for
// symmetry with backends that batch statements explicitly; Postgres
// executes each insert within the caller's transaction, so batching
// offers no additional benefit here.
func (s *Store) InsertMany(ctx context.Context, tx es.DBTX, recs []es.Record, _ int) error {
	if len(recs) == 0 {
		return store.ErrNoRecords
	}
	for i := range recs {
		if err := s.Insert(ctx, tx, recs[i]); err != nil {
			return err
		}
	}
	return nil
}

// GetByID implements store.EventProvider.
func (s *Store) GetByID(ctx context.Context, tx es.DBTX, id uuid.UUID) (es.Record, bool, error) {
	query := fmt.Sprintf(`
		SELECT id, stream, type, data, meta, created, recorded
		FROM %s WHERE id = $1`, s.config.EventsTable)

	rec, err := scanOne(tx.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return es.Record{}, false, nil
	}
	if err != nil {
		return es.Record{}, false, &es.StorageError{Cause: fmt.Errorf("get event by id: %w", err)}
	}
	return rec, true, nil
}

// Get implements store.EventProvider.
func (s *Store) Get(ctx context.Context, tx es.DBTX, opts store.QueryOptions) ([]es.Record, error) {
	return s.query(ctx, tx, nil, opts)
}

// GetByStream implements store.EventProvider.
func (s *Store) GetByStream(ctx context.Context, tx es.DBTX, stream string, opts store.QueryOptions) ([]es.Record, error) {
	return s.query(ctx, tx, []string{stream}, opts)
}

// GetByStreams implements store.EventProvider.
func (s *Store) GetByStreams(ctx context.Context, tx es.DBTX, streams []string, opts store.QueryOptions) ([]es.Record, error) {
	if len(streams) == 0 {
		return nil, nil
	}
	return s.query(ctx, tx, streams, opts)
}

func (s *Store) query(ctx context.Context, tx es.DBTX, streams []string, opts store.QueryOptions) ([]es.Record, error) {
	var clauses []string
	var args []interface{}

	if len(streams) > 0 {
		args = append(args, pq.Array(streams))
		clauses = append(clauses, fmt.Sprintf("stream = ANY($%d)", len(args)))
	}
	if len(opts.Filter.Types) > 0 {
		args = append(args, pq.Array(opts.Filter.Types))
		clauses = append(clauses, fmt.Sprintf("type = ANY($%d)", len(args)))
	}

	order, cmp := "ASC", ">"
	if opts.Direction == store.Descending {
		order, cmp = "DESC", "<"
	}

	if opts.Cursor != nil {
		args = append(args, opts.Cursor.Created.Time(), opts.Cursor.ID)
		clauses = append(clauses, fmt.Sprintf("(created, id) %s ($%d, $%d)", cmp, len(args)-1, len(args)))
	}

	query := fmt.Sprintf(`SELECT id, stream, type, data, meta, created, recorded FROM %s`, s.config.EventsTable)
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created %s, id %s", order, order)

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &es.StorageError{Cause: fmt.Errorf("query events: %w", err)}
	}
	defer rows.Close()

	var records []es.Record
	for rows.Next() {
		rec, err := scanOne(rows)
		if err != nil {
			return nil, &es.StorageError{Cause: fmt.Errorf("scan event: %w", err)}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &es.StorageError{Cause: fmt.Errorf("rows: %w", err)}
	}
	return records, nil
}

// CheckOutdated implements store.EventProvider.
func (s *Store) CheckOutdated(ctx context.Context, tx es.DBTX, streamName, eventType string, created es.Timestamp) (bool, error) {
	query := fmt.Sprintf(`
		SELECT EXISTS(SELECT 1 FROM %s WHERE stream = $1 AND type = $2 AND created > $3)`,
		s.config.EventsTable)

	var outdated bool
	if err := tx.QueryRowContext(ctx, query, streamName, eventType, created.Time()).Scan(&outdated); err != nil {
		return false, &es.StorageError{Cause: fmt.Errorf("check outdated: %w", err)}
	}
	return outdated, nil
}

// Handle implements store.ContextProvider.
func (s *Store) Handle(ctx context.Context, tx es.DBTX, entry store.ContextEntry) error {
	query := fmt.Sprintf(`INSERT INTO %s (key, op, stream) VALUES ($1, $2, $3)`, s.config.ContextsTable)
	if _, err := tx.ExecContext(ctx, query, entry.Key, int(entry.Op), entry.Stream); err != nil {
		return &es.StorageError{Cause: fmt.Errorf("handle context entry: %w", err)}
	}
	return nil
}

// GetByKey implements store.ContextProvider by replaying every entry
// for key in insertion order and returning streams with a net-insert
// state.
func (s *Store) GetByKey(ctx context.Context, tx es.DBTX, key string) ([]string, error) {
	query := fmt.Sprintf(`
		SELECT stream, op FROM %s WHERE key = $1 ORDER BY id ASC`, s.config.ContextsTable)

	rows, err := tx.QueryContext(ctx, query, key)
	if err != nil {
		return nil, &es.StorageError{Cause: fmt.Errorf("get context by key: %w", err)}
	}
	defer rows.Close()

	present := make(map[string]bool)
	var order []string
	for rows.Next() {
		var stream string
		var op int
		if err := rows.Scan(&stream, &op); err != nil {
			return nil, &es.StorageError{Cause: fmt.Errorf("scan context entry: %w", err)}
		}
		if _, seen := present[stream]; !seen {
			order = append(order, stream)
		}
		present[stream] = store.ContextOp(op) == store.ContextInsert
	}
	if err := rows.Err(); err != nil {
		return nil, &es.StorageError{Cause: fmt.Errorf("rows: %w", err)}
	}

	var streams []string
	for _, stream := range order {
		if present[stream] {
			streams = append(streams, stream)
		}
	}
	return streams, nil
}

// InsertSnapshot implements store.SnapshotProvider.
func (s *Store) InsertSnapshot(ctx context.Context, tx es.DBTX, snap store.SnapshotRecord) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (name, key, cursor, cursor_id, state)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name, key) DO UPDATE SET cursor = EXCLUDED.cursor, cursor_id = EXCLUDED.cursor_id, state = EXCLUDED.state`,
		s.config.SnapshotsTable)

	if _, err := tx.ExecContext(ctx, query, snap.Name, snap.Key, snap.Cursor.Created.Time(), snap.Cursor.ID, snap.State); err != nil {
		return &es.StorageError{Cause: fmt.Errorf("upsert snapshot: %w", err)}
	}
	return nil
}

// GetSnapshotByKey implements store.SnapshotProvider.
func (s *Store) GetSnapshotByKey(ctx context.Context, tx es.DBTX, name, key string) (store.SnapshotRecord, bool, error) {
	query := fmt.Sprintf(`SELECT name, key, cursor, cursor_id, state FROM %s WHERE name = $1 AND key = $2`, s.config.SnapshotsTable)

	var snap store.SnapshotRecord
	var cursor sql.NullTime
	var cursorID uuid.UUID
	err := tx.QueryRowContext(ctx, query, name, key).Scan(&snap.Name, &snap.Key, &cursor, &cursorID, &snap.State)
	if errors.Is(err, sql.ErrNoRows) {
		return store.SnapshotRecord{}, false, nil
	}
	if err != nil {
		return store.SnapshotRecord{}, false, &es.StorageError{Cause: fmt.Errorf("get snapshot: %w", err)}
	}
	snap.Cursor = es.Cursor{Created: es.NewTimestamp(cursor.Time), ID: cursorID}
	return snap, true, nil
}

// RemoveSnapshot implements store.SnapshotProvider.
func (s *Store) RemoveSnapshot(ctx context.Context, tx es.DBTX, name, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE name = $1 AND key = $2`, s.config.SnapshotsTable)
	if _, err := tx.ExecContext(ctx, query, name, key); err != nil {
		return &es.StorageError{Cause: fmt.Errorf("remove snapshot: %w", err)}
	}
	return nil
}

// IsUniqueViolation reports whether err is a PostgreSQL unique
// constraint violation, either the events primary key (an id
// collision) or its (stream, created) unique index.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// IsUniqueViolation implements store.UniqueViolationChecker.
func (s *Store) IsUniqueViolation(err error) bool { return IsUniqueViolation(err) }

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOne(row rowScanner) (es.Record, error) {
	var rec es.Record
	var created, recorded sql.NullTime
	if err := row.Scan(&rec.ID, &rec.Stream, &rec.Type, &rec.Data, &rec.Meta, &created, &recorded); err != nil {
		return es.Record{}, err
	}
	rec.Created = es.NewTimestamp(created.Time)
	rec.Recorded = es.NewTimestamp(recorded.Time)
	return rec, nil
}

// Package sqlite provides a SQLite backend for the event, context, and
// snapshot storage provider contracts declared by es/store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nimbusdb/evently/es"
	"github.com/nimbusdb/evently/es/store"
)

// sqliteDateTimeFormat is the format used for timestamp storage in
// SQLite, at microsecond resolution to match es.Timestamp.
const sqliteDateTimeFormat = "2006-01-02 15:04:05.999999"

// StoreConfig contains configuration for the SQLite store.
// Configuration is immutable after construction.
type StoreConfig struct {
	// Logger is an optional logger for observability.
	// If nil, logging is disabled (zero overhead).
	Logger es.Logger

	// EventsTable, ContextsTable, and SnapshotsTable name the three
	// tables this provider reads and writes.
	EventsTable    string
	ContextsTable  string
	SnapshotsTable string
}

// DefaultStoreConfig returns the default configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		EventsTable:    "events",
		ContextsTable:  "contexts",
		SnapshotsTable: "snapshots",
		Logger:         nil, // No logging by default
	}
}

// StoreOption is a functional option for configuring a Store.
type StoreOption func(*StoreConfig)

// WithLogger sets a logger for the store.
func WithLogger(logger es.Logger) StoreOption {
	return func(c *StoreConfig) { c.Logger = logger }
}

// WithEventsTable sets a custom events table name.
func WithEventsTable(tableName string) StoreOption {
	return func(c *StoreConfig) { c.EventsTable = tableName }
}

// WithContextsTable sets a custom contexts table name.
func WithContextsTable(tableName string) StoreOption {
	return func(c *StoreConfig) { c.ContextsTable = tableName }
}

// WithSnapshotsTable sets a custom snapshots table name.
func WithSnapshotsTable(tableName string) StoreOption {
	return func(c *StoreConfig) { c.SnapshotsTable = tableName }
}

// NewStoreConfig creates a new store configuration with functional
// options. It starts with the default configuration and applies the
// given options.
//
// Example:
//
//	config := sqlite.NewStoreConfig(
//	    sqlite.WithLogger(myLogger),
//	    sqlite.WithEventsTable("custom_events"),
//	)
func NewStoreConfig(opts ...StoreOption) StoreConfig {
	config := DefaultStoreConfig()
	for _, opt := range opts {
		opt(&config)
	}
	return config
}

// Store is a SQLite-backed implementation of store.Provider.
type Store struct {
	config StoreConfig
}

// NewStore creates a new SQLite store with the given configuration.
func NewStore(config StoreConfig) *Store {
	return &Store{config: config}
}

var _ store.Provider = (*Store)(nil)

// Insert implements store.EventProvider.
func (s *Store) Insert(ctx context.Context, tx es.DBTX, rec es.Record) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, stream, type, data, meta, created, recorded)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.config.EventsTable)

	_, err := tx.ExecContext(ctx, query,
		rec.ID.String(), rec.Stream, rec.Type, rec.Data, rec.Meta,
		rec.Created.Time().Format(sqliteDateTimeFormat),
		rec.Recorded.Time().Format(sqliteDateTimeFormat))
	if err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return &es.StorageError{Cause: fmt.Errorf("insert event: %w", err)}
	}

	if s.config.Logger != nil {
		s.config.Logger.Debug(ctx, "event inserted", "id", rec.ID, "stream", rec.Stream, "type", rec.Type)
	}
	return nil
}

// InsertMany implements store.EventProvider. batchSize is accepted for
// interface symmetry; each record is inserted individually within the
// caller's transaction.
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
		FROM %s WHERE id = ?
	`, s.config.EventsTable)

	rec, err := scanOne(tx.QueryRowContext(ctx, query, id.String()))
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
		placeholders := make([]string, len(streams))
		for i, stream := range streams {
			placeholders[i] = "?"
			args = append(args, stream)
		}
		clauses = append(clauses, "stream IN ("+strings.Join(placeholders, ", ")+")")
	}

	if len(opts.Filter.Types) > 0 {
		placeholders := make([]string, len(opts.Filter.Types))
		for i, t := range opts.Filter.Types {
			placeholders[i] = "?"
			args = append(args, t)
		}
		clauses = append(clauses, "type IN ("+strings.Join(placeholders, ", ")+")")
	}

	order, cmp := "ASC", ">"
	if opts.Direction == store.Descending {
		order, cmp = "DESC", "<"
	}

	if opts.Cursor != nil {
		clauses = append(clauses, fmt.Sprintf("(created, id) %s (?, ?)", cmp))
		args = append(args, opts.Cursor.Created.Time().Format(sqliteDateTimeFormat), opts.Cursor.ID.String())
	}

	query := fmt.Sprintf(`SELECT id, stream, type, data, meta, created, recorded FROM %s`, s.config.EventsTable)
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created %s, id %s", order, order)

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += " LIMIT ?"
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
		SELECT EXISTS(SELECT 1 FROM %s WHERE stream = ? AND type = ? AND created > ?)
	`, s.config.EventsTable)

	var outdated bool
	if err := tx.QueryRowContext(ctx, query, streamName, eventType, created.Time().Format(sqliteDateTimeFormat)).Scan(&outdated); err != nil {
		return false, &es.StorageError{Cause: fmt.Errorf("check outdated: %w", err)}
	}
	return outdated, nil
}

// Handle implements store.ContextProvider.
func (s *Store) Handle(ctx context.Context, tx es.DBTX, entry store.ContextEntry) error {
	query := fmt.Sprintf(`INSERT INTO %s (key, op, stream) VALUES (?, ?, ?)`, s.config.ContextsTable)
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
		SELECT stream, op FROM %s WHERE key = ? ORDER BY rowid ASC
	`, s.config.ContextsTable)

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
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name, key) DO UPDATE SET cursor = excluded.cursor, cursor_id = excluded.cursor_id, state = excluded.state
	`, s.config.SnapshotsTable)

	if _, err := tx.ExecContext(ctx, query, snap.Name, snap.Key, snap.Cursor.Created.Time().Format(sqliteDateTimeFormat), snap.Cursor.ID.String(), snap.State); err != nil {
		return &es.StorageError{Cause: fmt.Errorf("upsert snapshot: %w", err)}
	}
	return nil
}

// GetSnapshotByKey implements store.SnapshotProvider.
func (s *Store) GetSnapshotByKey(ctx context.Context, tx es.DBTX, name, key string) (store.SnapshotRecord, bool, error) {
	query := fmt.Sprintf(`SELECT name, key, cursor, cursor_id, state FROM %s WHERE name = ? AND key = ?`, s.config.SnapshotsTable)

	var snap store.SnapshotRecord
	var cursor, cursorID string
	err := tx.QueryRowContext(ctx, query, name, key).Scan(&snap.Name, &snap.Key, &cursor, &cursorID, &snap.State)
	if errors.Is(err, sql.ErrNoRows) {
		return store.SnapshotRecord{}, false, nil
	}
	if err != nil {
		return store.SnapshotRecord{}, false, &es.StorageError{Cause: fmt.Errorf("get snapshot: %w", err)}
	}

	t, err := parseTimestamp(cursor)
	if err != nil {
		return store.SnapshotRecord{}, false, fmt.Errorf("parse snapshot cursor: %w", err)
	}
	id, err := uuid.Parse(cursorID)
	if err != nil {
		return store.SnapshotRecord{}, false, fmt.Errorf("parse snapshot cursor id: %w", err)
	}
	snap.Cursor = es.Cursor{Created: es.NewTimestamp(t), ID: id}
	return snap, true, nil
}

// RemoveSnapshot implements store.SnapshotProvider.
func (s *Store) RemoveSnapshot(ctx context.Context, tx es.DBTX, name, key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE name = ? AND key = ?`, s.config.SnapshotsTable)
	if _, err := tx.ExecContext(ctx, query, name, key); err != nil {
		return &es.StorageError{Cause: fmt.Errorf("remove snapshot: %w", err)}
	}
	return nil
}

// IsUniqueViolation reports whether err is a SQLite unique constraint
// violation, covering both the events primary key (an id collision)
// and its (stream, created) unique index. modernc.org/sqlite reports
// these as plain string messages rather than a typed error code.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}

// IsUniqueViolation implements store.UniqueViolationChecker.
func (s *Store) IsUniqueViolation(err error) bool { return IsUniqueViolation(err) }

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOne(row rowScanner) (es.Record, error) {
	var rec es.Record
	var idStr, created, recorded string

	if err := row.Scan(&idStr, &rec.Stream, &rec.Type, &rec.Data, &rec.Meta, &created, &recorded); err != nil {
		return es.Record{}, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return es.Record{}, fmt.Errorf("parse event id: %w", err)
	}
	rec.ID = id

	createdAt, err := parseTimestamp(created)
	if err != nil {
		return es.Record{}, fmt.Errorf("parse created: %w", err)
	}
	rec.Created = es.NewTimestamp(createdAt)

	recordedAt, err := parseTimestamp(recorded)
	if err != nil {
		return es.Record{}, fmt.Errorf("parse recorded: %w", err)
	}
	rec.Recorded = es.NewTimestamp(recordedAt)

	return rec, nil
}

// sqliteDateTimeFormats lists datetime formats parseTimestamp accepts,
// in order of preference.
var sqliteDateTimeFormats = []string{
	sqliteDateTimeFormat,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999Z07:00",
	time.RFC3339Nano,
	time.RFC3339,
}

// parseTimestamp parses SQLite datetime strings into time.Time.
func parseTimestamp(s string) (time.Time, error) {
	for _, format := range sqliteDateTimeFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse timestamp: %s", s)
}

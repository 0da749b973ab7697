// Package migrations provides SQL migration generation for event sourcing infrastructure.
package migrations

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config configures migration generation.
type Config struct {
	// OutputFolder is the directory where the migration file will be written
	OutputFolder string

	// OutputFilename is the name of the migration file
	OutputFilename string

	// EventsTable is the name of the events table
	EventsTable string

	// ContextsTable is the name of the context index table
	ContextsTable string

	// SnapshotsTable is the name of the reducer snapshots table
	SnapshotsTable string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	timestamp := time.Now().Format("20060102150405")
	return Config{
		OutputFolder:   "migrations",
		OutputFilename: fmt.Sprintf("%s_init_event_store.sql", timestamp),
		EventsTable:    "events",
		ContextsTable:  "contexts",
		SnapshotsTable: "snapshots",
	}
}

// GeneratePostgres generates a PostgreSQL migration file.
func GeneratePostgres(config *Config) error {
	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	sql := generatePostgresSQL(config)

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(sql), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	return nil
}

func generatePostgresSQL(config *Config) string {
	return fmt.Sprintf(`-- Event Store Infrastructure Migration
-- Generated: %s

-- Events table stores every accepted record in append-only fashion.
-- id is globally unique; (stream, created) is unique so the append
-- protocol can distinguish an id collision (idempotent re-insert) from
-- a timestamp collision (conflict, resolved by bumping created).
CREATE TABLE IF NOT EXISTS %s (
    id UUID PRIMARY KEY,
    stream TEXT NOT NULL,
    type TEXT NOT NULL,
    data JSONB NOT NULL DEFAULT '{}',
    meta JSONB NOT NULL DEFAULT '{}',
    created TIMESTAMPTZ NOT NULL,
    recorded TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    UNIQUE (stream, created)
);

-- Per-stream ordered reads and cursor pagination.
CREATE INDEX IF NOT EXISTS idx_%s_stream
    ON %s (stream, created, id);

-- Filtered per-stream reads and CheckOutdated's outdatedness probe.
CREATE INDEX IF NOT EXISTS idx_%s_stream_type
    ON %s (stream, type, created);

-- Contexts table is an append-only log of stream-to-key associations.
-- The logical state at a key is derived by replaying every row for
-- that key in id order; a numeric surrogate key gives that order
-- since created alone is not guaranteed distinct across rows.
CREATE TABLE IF NOT EXISTS %s (
    id BIGSERIAL PRIMARY KEY,
    key TEXT NOT NULL,
    op SMALLINT NOT NULL,
    stream TEXT NOT NULL,
    created TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_%s_key
    ON %s (key, id);

-- Snapshots table caches reducer state. At most one row per (name,
-- key); createSnapshot and the reduce "auto" mode both replace the
-- row outright rather than appending.
CREATE TABLE IF NOT EXISTS %s (
    name TEXT NOT NULL,
    key TEXT NOT NULL,
    cursor TIMESTAMPTZ NOT NULL,
    cursor_id UUID NOT NULL,
    state JSONB NOT NULL,

    PRIMARY KEY (name, key)
);
`,
		time.Now().Format(time.RFC3339),
		config.EventsTable,
		config.EventsTable, config.EventsTable,
		config.EventsTable, config.EventsTable,
		config.ContextsTable,
		config.ContextsTable, config.ContextsTable,
		config.SnapshotsTable,
	)
}

// GenerateSQLite generates a SQLite migration file.
func GenerateSQLite(config *Config) error {
	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	sql := generateSQLiteSQL(config)

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(sql), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	return nil
}

func generateSQLiteSQL(config *Config) string {
	return fmt.Sprintf(`-- Event Store Infrastructure Migration for SQLite
-- Generated: %s

-- created/recorded are stored as TEXT ('YYYY-MM-DD HH:MM:SS.ffffff',
-- trailing fractional zeros trimmed): SQLite has no native timestamp
-- type and this format sorts correctly both lexicographically and
-- chronologically.
CREATE TABLE IF NOT EXISTS %s (
    id TEXT PRIMARY KEY,
    stream TEXT NOT NULL,
    type TEXT NOT NULL,
    data TEXT NOT NULL DEFAULT '{}',
    meta TEXT NOT NULL DEFAULT '{}',
    created TEXT NOT NULL,
    recorded TEXT NOT NULL DEFAULT (strftime('%%Y-%%m-%%d %%H:%%M:%%f', 'now')),

    UNIQUE (stream, created)
);

CREATE INDEX IF NOT EXISTS idx_%s_stream
    ON %s (stream, created, id);

CREATE INDEX IF NOT EXISTS idx_%s_stream_type
    ON %s (stream, type, created);

-- Contexts table replays as an append-only log; rowid gives the
-- replay order GetByKey depends on. SQLite appends rowid to every
-- index entry, so the index on key is ordered by rowid within a key.
CREATE TABLE IF NOT EXISTS %s (
    key TEXT NOT NULL,
    op INTEGER NOT NULL,
    stream TEXT NOT NULL,
    created TEXT NOT NULL DEFAULT (strftime('%%Y-%%m-%%d %%H:%%M:%%f', 'now'))
);

CREATE INDEX IF NOT EXISTS idx_%s_key
    ON %s (key);

CREATE TABLE IF NOT EXISTS %s (
    name TEXT NOT NULL,
    key TEXT NOT NULL,
    cursor TEXT NOT NULL,
    cursor_id TEXT NOT NULL,
    state TEXT NOT NULL,

    PRIMARY KEY (name, key)
);
`,
		time.Now().Format(time.RFC3339),
		config.EventsTable,
		config.EventsTable, config.EventsTable,
		config.EventsTable, config.EventsTable,
		config.ContextsTable,
		config.ContextsTable, config.ContextsTable,
		config.SnapshotsTable,
	)
}

// GenerateMySQL generates a MySQL/MariaDB migration file.
func GenerateMySQL(config *Config) error {
	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	sql := generateMySQLSQL(config)

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(sql), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	return nil
}

func generateMySQLSQL(config *Config) string {
	return fmt.Sprintf(`-- Event Store Infrastructure Migration for MySQL/MariaDB
-- Generated: %s

-- id is stored as BINARY(16) (raw UUID bytes); key_name replaces the
-- reserved word "key" used elsewhere in this schema.
CREATE TABLE IF NOT EXISTS %s (
    id BINARY(16) PRIMARY KEY,
    stream VARCHAR(255) NOT NULL,
    type VARCHAR(255) NOT NULL,
    data JSON NOT NULL,
    meta JSON NOT NULL,
    created TIMESTAMP(6) NOT NULL,
    recorded TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),

    UNIQUE KEY unique_stream_created (stream, created)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;

CREATE INDEX idx_%s_stream
    ON %s (stream, created, id);

CREATE INDEX idx_%s_stream_type
    ON %s (stream, type, created);

CREATE TABLE IF NOT EXISTS %s (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    key_name VARCHAR(255) NOT NULL,
    op TINYINT NOT NULL,
    stream VARCHAR(255) NOT NULL,
    created TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;

CREATE INDEX idx_%s_key
    ON %s (key_name, id);

CREATE TABLE IF NOT EXISTS %s (
    name VARCHAR(255) NOT NULL,
    key_name VARCHAR(255) NOT NULL,
    cursor TIMESTAMP(6) NOT NULL,
    cursor_id BINARY(16) NOT NULL,
    state JSON NOT NULL,

    PRIMARY KEY (name, key_name)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;
`,
		time.Now().Format(time.RFC3339),
		config.EventsTable,
		config.EventsTable, config.EventsTable,
		config.EventsTable, config.EventsTable,
		config.ContextsTable,
		config.ContextsTable, config.ContextsTable,
		config.SnapshotsTable,
	)
}

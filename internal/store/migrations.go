package store

import "fmt"

// migration is one monotonically versioned schema change, applied inside
// its own transaction with the watermark update.
type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{version: 1, sql: schemaV1},
	{version: 2, sql: schemaV2Indexes},
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS libraries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	path TEXT NOT NULL UNIQUE,
	enabled INTEGER NOT NULL DEFAULT 1,
	watch_enabled INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS exclusions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	library_id INTEGER REFERENCES libraries(id) ON DELETE CASCADE,
	pattern TEXT NOT NULL,
	type TEXT NOT NULL,
	reason TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	library_id INTEGER NOT NULL REFERENCES libraries(id) ON DELETE CASCADE,
	file_path TEXT NOT NULL UNIQUE,
	file_name TEXT NOT NULL,
	original_codec TEXT,
	original_bitrate INTEGER,
	original_size INTEGER,
	original_width INTEGER,
	original_height INTEGER,
	is_hdr INTEGER NOT NULL DEFAULT 0,
	new_size INTEGER,
	status TEXT NOT NULL,
	skip_reason TEXT,
	error_message TEXT,
	started_at DATETIME,
	completed_at DATETIME,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS stats_daily (
	date TEXT PRIMARY KEY,
	total_files_processed INTEGER NOT NULL DEFAULT 0,
	total_space_saved INTEGER NOT NULL DEFAULT 0,
	files_finished INTEGER NOT NULL DEFAULT 0,
	files_skipped INTEGER NOT NULL DEFAULT 0,
	files_rejected INTEGER NOT NULL DEFAULT 0,
	files_errored INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS stats_hourly (
	hour_utc DATETIME PRIMARY KEY,
	total_files_processed INTEGER NOT NULL DEFAULT 0,
	total_space_saved INTEGER NOT NULL DEFAULT 0,
	files_finished INTEGER NOT NULL DEFAULT 0,
	files_skipped INTEGER NOT NULL DEFAULT 0,
	files_rejected INTEGER NOT NULL DEFAULT 0,
	files_errored INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS encoding_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	event TEXT NOT NULL,
	details TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

const schemaV2Indexes = `
CREATE INDEX IF NOT EXISTS idx_files_status ON files(status);
CREATE INDEX IF NOT EXISTS idx_files_library_id ON files(library_id);
CREATE INDEX IF NOT EXISTS idx_exclusions_library_id ON exclusions(library_id);
CREATE INDEX IF NOT EXISTS idx_encoding_log_file_id ON encoding_log(file_id);
CREATE INDEX IF NOT EXISTS idx_stats_hourly_hour_utc ON stats_hourly(hour_utc);
`

// migrate brings the schema up to the latest version, recording each
// applied version in schema_migrations so reopening a database is a no-op.
func (db *DB) migrate() error {
	if _, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}

	return nil
}

package store

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/reelwright/hevcsup/internal/storeerr"
)

// CreateLibrary inserts a new library. A duplicate path surfaces as
// storeerr.ErrConflict.
func (db *DB) CreateLibrary(name, path string, enabled, watchEnabled bool) (*Library, error) {
	now := time.Now()
	result, err := db.conn.Exec(`
		INSERT INTO libraries (name, path, enabled, watch_enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		name, path, enabled, watchEnabled, now, now,
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return nil, storeerr.Wrapf(storeerr.ErrConflict, "library path %q already exists", path)
		}
		return nil, storeerr.Wrapf(storeerr.ErrStorage, "create library: %v", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, storeerr.Wrapf(storeerr.ErrStorage, "create library: %v", err)
	}
	return db.GetLibrary(id)
}

// GetLibrary retrieves a library by id.
func (db *DB) GetLibrary(id int64) (*Library, error) {
	row := db.conn.QueryRow(`
		SELECT id, name, path, enabled, watch_enabled, created_at, updated_at
		FROM libraries WHERE id = ?`, id)
	lib, err := scanLibrary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeerr.Wrapf(storeerr.ErrNotFound, "library %d not found", id)
	}
	if err != nil {
		return nil, storeerr.Wrapf(storeerr.ErrStorage, "get library: %v", err)
	}
	return lib, nil
}

// ListLibraries returns every library ordered by name.
func (db *DB) ListLibraries() ([]*Library, error) {
	rows, err := db.conn.Query(`
		SELECT id, name, path, enabled, watch_enabled, created_at, updated_at
		FROM libraries ORDER BY name`)
	if err != nil {
		return nil, storeerr.Wrapf(storeerr.ErrStorage, "list libraries: %v", err)
	}
	defer rows.Close()

	var libs []*Library
	for rows.Next() {
		lib, err := scanLibraryRow(rows)
		if err != nil {
			return nil, storeerr.Wrapf(storeerr.ErrStorage, "list libraries: %v", err)
		}
		libs = append(libs, lib)
	}
	return libs, rows.Err()
}

// ListEnabledLibraries returns enabled libraries ordered by name.
func (db *DB) ListEnabledLibraries() ([]*Library, error) {
	rows, err := db.conn.Query(`
		SELECT id, name, path, enabled, watch_enabled, created_at, updated_at
		FROM libraries WHERE enabled = 1 ORDER BY name`)
	if err != nil {
		return nil, storeerr.Wrapf(storeerr.ErrStorage, "list enabled libraries: %v", err)
	}
	defer rows.Close()

	var libs []*Library
	for rows.Next() {
		lib, err := scanLibraryRow(rows)
		if err != nil {
			return nil, storeerr.Wrapf(storeerr.ErrStorage, "list enabled libraries: %v", err)
		}
		libs = append(libs, lib)
	}
	return libs, rows.Err()
}

// UpdateLibrary updates name/path/enabled/watch_enabled for an existing
// library. Disabling a library (enabled=false) additionally drops its
// queued files per the Library lifecycle contract.
func (db *DB) UpdateLibrary(lib *Library) error {
	wasEnabled, err := db.libraryEnabled(lib.ID)
	if err != nil {
		return err
	}

	_, err = db.conn.Exec(`
		UPDATE libraries SET name = ?, path = ?, enabled = ?, watch_enabled = ?, updated_at = ?
		WHERE id = ?`,
		lib.Name, lib.Path, lib.Enabled, lib.WatchEnabled, time.Now(), lib.ID,
	)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return storeerr.Wrapf(storeerr.ErrConflict, "library path %q already exists", lib.Path)
		}
		return storeerr.Wrapf(storeerr.ErrStorage, "update library: %v", err)
	}

	if wasEnabled && !lib.Enabled {
		if err := db.dropQueuedFilesForLibrary(lib.ID); err != nil {
			return err
		}
	}
	return nil
}

// DeleteLibrary removes a library; files and exclusions cascade.
func (db *DB) DeleteLibrary(id int64) error {
	result, err := db.conn.Exec("DELETE FROM libraries WHERE id = ?", id)
	if err != nil {
		return storeerr.Wrapf(storeerr.ErrStorage, "delete library: %v", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return storeerr.Wrapf(storeerr.ErrStorage, "delete library: %v", err)
	}
	if n == 0 {
		return storeerr.Wrapf(storeerr.ErrNotFound, "library %d not found", id)
	}
	return nil
}

func (db *DB) libraryEnabled(id int64) (bool, error) {
	var enabled bool
	err := db.conn.QueryRow("SELECT enabled FROM libraries WHERE id = ?", id).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return false, storeerr.Wrapf(storeerr.ErrNotFound, "library %d not found", id)
	}
	if err != nil {
		return false, storeerr.Wrapf(storeerr.ErrStorage, "update library: %v", err)
	}
	return enabled, nil
}

// dropQueuedFilesForLibrary implements the Library lifecycle contract:
// disabling a library drops all queued files of that library but retains
// historical rows (it deletes, not transitions, since a dropped row has no
// further life in the status state machine).
func (db *DB) dropQueuedFilesForLibrary(libraryID int64) error {
	_, err := db.conn.Exec(`DELETE FROM files WHERE library_id = ? AND status = ?`, libraryID, FileStatusQueued)
	if err != nil {
		return storeerr.Wrapf(storeerr.ErrStorage, "drop queued files for library %d: %v", libraryID, err)
	}
	return nil
}

func scanLibrary(row *sql.Row) (*Library, error) {
	var l Library
	if err := row.Scan(&l.ID, &l.Name, &l.Path, &l.Enabled, &l.WatchEnabled, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

func scanLibraryRow(rows *sql.Rows) (*Library, error) {
	var l Library
	if err := rows.Scan(&l.ID, &l.Name, &l.Path, &l.Enabled, &l.WatchEnabled, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "constraint failed")
}

package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/reelwright/hevcsup/internal/storeerr"
)

// CreateExclusion inserts a new exclusion rule. libraryID nil means global.
func (db *DB) CreateExclusion(libraryID *int64, pattern string, typ ExclusionType, reason *string) (*Exclusion, error) {
	if typ != ExclusionTypeFolder && typ != ExclusionTypePattern {
		return nil, storeerr.Wrapf(storeerr.ErrValidation, "exclusion type must be %q or %q", ExclusionTypeFolder, ExclusionTypePattern)
	}
	if pattern == "" {
		return nil, storeerr.Wrap(storeerr.ErrValidation, "exclusion pattern must not be empty")
	}

	result, err := db.conn.Exec(`
		INSERT INTO exclusions (library_id, pattern, type, reason, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		libraryID, pattern, typ, reason, time.Now(),
	)
	if err != nil {
		return nil, storeerr.Wrapf(storeerr.ErrStorage, "create exclusion: %v", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, storeerr.Wrapf(storeerr.ErrStorage, "create exclusion: %v", err)
	}
	return db.GetExclusion(id)
}

// GetExclusion retrieves an exclusion by id.
func (db *DB) GetExclusion(id int64) (*Exclusion, error) {
	row := db.conn.QueryRow(`
		SELECT id, library_id, pattern, type, reason, created_at
		FROM exclusions WHERE id = ?`, id)
	ex, err := scanExclusion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeerr.Wrapf(storeerr.ErrNotFound, "exclusion %d not found", id)
	}
	if err != nil {
		return nil, storeerr.Wrapf(storeerr.ErrStorage, "get exclusion: %v", err)
	}
	return ex, nil
}

// ListExclusions returns every exclusion in the deterministic evaluation
// order required by the evaluator: (library_id NULLS FIRST, pattern).
func (db *DB) ListExclusions() ([]*Exclusion, error) {
	rows, err := db.conn.Query(`
		SELECT id, library_id, pattern, type, reason, created_at
		FROM exclusions
		ORDER BY library_id IS NOT NULL, library_id, pattern`)
	if err != nil {
		return nil, storeerr.Wrapf(storeerr.ErrStorage, "list exclusions: %v", err)
	}
	defer rows.Close()

	var exs []*Exclusion
	for rows.Next() {
		ex, err := scanExclusionRow(rows)
		if err != nil {
			return nil, storeerr.Wrapf(storeerr.ErrStorage, "list exclusions: %v", err)
		}
		exs = append(exs, ex)
	}
	return exs, rows.Err()
}

// DeleteExclusion removes an exclusion by id.
func (db *DB) DeleteExclusion(id int64) error {
	result, err := db.conn.Exec("DELETE FROM exclusions WHERE id = ?", id)
	if err != nil {
		return storeerr.Wrapf(storeerr.ErrStorage, "delete exclusion: %v", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return storeerr.Wrapf(storeerr.ErrStorage, "delete exclusion: %v", err)
	}
	if n == 0 {
		return storeerr.Wrapf(storeerr.ErrNotFound, "exclusion %d not found", id)
	}
	return nil
}

// QueuedFilesForReclassification returns every file currently in
// status=queued or status=excluded, for the exclusion evaluator to
// re-evaluate in bulk after a rule is created or deleted.
func (db *DB) QueuedFilesForReclassification() ([]*File, error) {
	rows, err := db.conn.Query(`
		SELECT id, library_id, file_path, file_name, original_codec, original_bitrate,
			original_size, original_width, original_height, is_hdr, new_size, status,
			skip_reason, error_message, started_at, completed_at, created_at, updated_at
		FROM files WHERE status IN (?, ?)`, FileStatusQueued, FileStatusExcluded)
	if err != nil {
		return nil, storeerr.Wrapf(storeerr.ErrStorage, "list queued/excluded files: %v", err)
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		f, err := scanFileRow(rows)
		if err != nil {
			return nil, storeerr.Wrapf(storeerr.ErrStorage, "list queued/excluded files: %v", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// ExcludeFiles bulk-transitions the given file ids from queued to excluded,
// recording reason. Non-queued rows are left untouched (encoding-state rows
// are unaffected per the ordering guarantee in §5).
func (db *DB) ExcludeFiles(ids []int64, reason string) error {
	if len(ids) == 0 {
		return nil
	}
	return db.withTx(func(tx *sql.Tx) error {
		for _, id := range ids {
			_, err := tx.Exec(`
				UPDATE files SET status = ?, skip_reason = ?, updated_at = ?
				WHERE id = ? AND status = ?`,
				FileStatusExcluded, reason, time.Now(), id, FileStatusQueued,
			)
			if err != nil {
				return storeerr.Wrapf(storeerr.ErrStorage, "exclude file %d: %v", id, err)
			}
		}
		return nil
	})
}

// UnexcludeFiles bulk-transitions the given file ids from excluded back to
// queued, clearing skip_reason. Used when a rule is deleted and the file no
// longer matches any remaining rule.
func (db *DB) UnexcludeFiles(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return db.withTx(func(tx *sql.Tx) error {
		for _, id := range ids {
			_, err := tx.Exec(`
				UPDATE files SET status = ?, skip_reason = NULL, updated_at = ?
				WHERE id = ? AND status = ?`,
				FileStatusQueued, time.Now(), id, FileStatusExcluded,
			)
			if err != nil {
				return storeerr.Wrapf(storeerr.ErrStorage, "unexclude file %d: %v", id, err)
			}
		}
		return nil
	})
}

func scanExclusion(row *sql.Row) (*Exclusion, error) {
	var e Exclusion
	var libraryID sql.NullInt64
	var reason sql.NullString
	if err := row.Scan(&e.ID, &libraryID, &e.Pattern, &e.Type, &reason, &e.CreatedAt); err != nil {
		return nil, err
	}
	if libraryID.Valid {
		e.LibraryID = &libraryID.Int64
	}
	if reason.Valid {
		e.Reason = &reason.String
	}
	return &e, nil
}

func scanExclusionRow(rows *sql.Rows) (*Exclusion, error) {
	var e Exclusion
	var libraryID sql.NullInt64
	var reason sql.NullString
	if err := rows.Scan(&e.ID, &libraryID, &e.Pattern, &e.Type, &reason, &e.CreatedAt); err != nil {
		return nil, err
	}
	if libraryID.Valid {
		e.LibraryID = &libraryID.Int64
	}
	if reason.Valid {
		e.Reason = &reason.String
	}
	return &e, nil
}

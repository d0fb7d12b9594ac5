package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/reelwright/hevcsup/internal/storeerr"
)

// FileSort is the file-ordering control for the encoder's queue pick.
type FileSort string

const (
	FileSortBitrateDesc FileSort = "bitrate_desc"
	FileSortBitrateAsc  FileSort = "bitrate_asc"
	FileSortAlphabetical FileSort = "alphabetical"
	FileSortRandom      FileSort = "random"
)

// LibraryPriority is the library-ordering control for the encoder's queue
// pick.
type LibraryPriority string

const (
	LibraryPriorityAlphaAsc  LibraryPriority = "alphabetical_asc"
	LibraryPriorityAlphaDesc LibraryPriority = "alphabetical_desc"
	LibraryPriorityRoundRobin LibraryPriority = "round_robin"
)

// UpsertFile creates or updates a file row keyed by file_path, per the
// Store contract: id, created_at, and status are preserved unless the
// caller explicitly supplies f.Status.
func (db *DB) UpsertFile(f *File) (*File, error) {
	existing, err := db.GetFileByPath(f.FilePath)
	if err != nil && !errors.Is(err, storeerr.ErrNotFound) {
		return nil, err
	}

	now := time.Now()

	if existing == nil {
		status := f.Status
		if status == "" {
			status = FileStatusQueued
		}
		result, err := db.conn.Exec(`
			INSERT INTO files (
				library_id, file_path, file_name, original_codec, original_bitrate,
				original_size, original_width, original_height, is_hdr, new_size,
				status, skip_reason, error_message, started_at, completed_at,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.LibraryID, f.FilePath, f.FileName, f.OriginalCodec, f.OriginalBitrate,
			f.OriginalSize, f.OriginalWidth, f.OriginalHeight, f.IsHDR, f.NewSize,
			status, f.SkipReason, f.ErrorMessage, f.StartedAt, f.CompletedAt,
			now, now,
		)
		if err != nil {
			if isUniqueConstraintErr(err) {
				return nil, storeerr.Wrapf(storeerr.ErrConflict, "file path %q already exists", f.FilePath)
			}
			return nil, storeerr.Wrapf(storeerr.ErrStorage, "create file: %v", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return nil, storeerr.Wrapf(storeerr.ErrStorage, "create file: %v", err)
		}
		return db.GetFile(id)
	}

	status := existing.Status
	if f.Status != "" {
		status = f.Status
	}

	_, err = db.conn.Exec(`
		UPDATE files SET
			library_id = ?, file_name = ?, original_codec = ?, original_bitrate = ?,
			original_size = ?, original_width = ?, original_height = ?, is_hdr = ?,
			new_size = ?, status = ?, skip_reason = ?, error_message = ?,
			started_at = ?, completed_at = ?, updated_at = ?
		WHERE file_path = ?`,
		f.LibraryID, f.FileName, f.OriginalCodec, f.OriginalBitrate,
		f.OriginalSize, f.OriginalWidth, f.OriginalHeight, f.IsHDR,
		f.NewSize, status, f.SkipReason, f.ErrorMessage,
		f.StartedAt, f.CompletedAt, now, f.FilePath,
	)
	if err != nil {
		return nil, storeerr.Wrapf(storeerr.ErrStorage, "update file: %v", err)
	}
	return db.GetFile(existing.ID)
}

// GetFile retrieves a file by id.
func (db *DB) GetFile(id int64) (*File, error) {
	row := db.conn.QueryRow(fileSelectColumns+" FROM files WHERE id = ?", id)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeerr.Wrapf(storeerr.ErrNotFound, "file %d not found", id)
	}
	if err != nil {
		return nil, storeerr.Wrapf(storeerr.ErrStorage, "get file: %v", err)
	}
	return f, nil
}

// GetFileByPath retrieves a file by its unique file_path.
func (db *DB) GetFileByPath(path string) (*File, error) {
	row := db.conn.QueryRow(fileSelectColumns+" FROM files WHERE file_path = ?", path)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeerr.Wrapf(storeerr.ErrNotFound, "file %q not found", path)
	}
	if err != nil {
		return nil, storeerr.Wrapf(storeerr.ErrStorage, "get file by path: %v", err)
	}
	return f, nil
}

// FileQuery paginates and filters the file list for the consumer-facing
// list operation.
type FileQuery struct {
	LibraryID *int64
	Status    *FileStatus
	Limit     int
	Offset    int
}

// ListFiles returns files matching q, most recently updated first.
func (db *DB) ListFiles(q FileQuery) ([]*File, error) {
	query := fileSelectColumns + " FROM files WHERE 1=1"
	var args []any

	if q.LibraryID != nil {
		query += " AND library_id = ?"
		args = append(args, *q.LibraryID)
	}
	if q.Status != nil {
		query += " AND status = ?"
		args = append(args, *q.Status)
	}
	query += " ORDER BY updated_at DESC"

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, q.Offset)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, storeerr.Wrapf(storeerr.ErrStorage, "list files: %v", err)
	}
	defer rows.Close()

	var files []*File
	for rows.Next() {
		f, err := scanFileRow(rows)
		if err != nil {
			return nil, storeerr.Wrapf(storeerr.ErrStorage, "list files: %v", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// PickQueued returns the next file to encode per the queue ordering policy
// (§4.6), or (nil, nil) if the queue is empty.
func (db *DB) PickQueued(fileSort FileSort, libraryPriority LibraryPriority) (*File, error) {
	if libraryPriority == LibraryPriorityRoundRobin {
		return db.pickQueuedRoundRobin(fileSort)
	}

	libOrder := "l.name ASC"
	if libraryPriority == LibraryPriorityAlphaDesc {
		libOrder = "l.name DESC"
	}

	query := fmt.Sprintf(`
		SELECT %s FROM files f JOIN libraries l ON l.id = f.library_id
		WHERE f.status = ?
		ORDER BY %s, %s
		LIMIT 1`,
		prefixedFileColumns("f"), libOrder, fileSortClause("f", fileSort))

	row := db.conn.QueryRow(query, FileStatusQueued)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeerr.Wrapf(storeerr.ErrStorage, "pick queued file: %v", err)
	}
	return f, nil
}

// pickQueuedRoundRobin implements §4.6's round-robin library fairness: the
// next pick comes from the library that is the successor (by name) of
// last_library_id among libraries with at least one queued file.
func (db *DB) pickQueuedRoundRobin(fileSort FileSort) (*File, error) {
	rows, err := db.conn.Query(`
		SELECT DISTINCT l.id, l.name
		FROM libraries l JOIN files f ON f.library_id = l.id
		WHERE f.status = ?
		ORDER BY l.name ASC`, FileStatusQueued)
	if err != nil {
		return nil, storeerr.Wrapf(storeerr.ErrStorage, "round robin candidates: %v", err)
	}
	type libRow struct {
		id   int64
		name string
	}
	var libs []libRow
	for rows.Next() {
		var l libRow
		if err := rows.Scan(&l.id, &l.name); err != nil {
			rows.Close()
			return nil, storeerr.Wrapf(storeerr.ErrStorage, "round robin candidates: %v", err)
		}
		libs = append(libs, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, storeerr.Wrapf(storeerr.ErrStorage, "round robin candidates: %v", err)
	}
	if len(libs) == 0 {
		return nil, nil
	}

	lastLibraryID, err := db.getLastLibraryID()
	if err != nil {
		return nil, err
	}

	startIdx := 0
	if lastLibraryID != nil {
		for i, l := range libs {
			if l.id == *lastLibraryID {
				startIdx = (i + 1) % len(libs)
				break
			}
		}
	}

	target := libs[startIdx]

	query := fmt.Sprintf(`
		SELECT %s FROM files f
		WHERE f.status = ? AND f.library_id = ?
		ORDER BY %s
		LIMIT 1`, prefixedFileColumns("f"), fileSortClause("f", fileSort))

	row := db.conn.QueryRow(query, FileStatusQueued, target.id)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeerr.Wrapf(storeerr.ErrStorage, "pick round robin file: %v", err)
	}
	return f, nil
}

// RecordLastLibraryServed advances the round-robin cursor once the worker
// finishes a file.
func (db *DB) RecordLastLibraryServed(libraryID int64) error {
	return db.SetSetting("last_library_id", fmt.Sprintf("%d", libraryID))
}

func (db *DB) getLastLibraryID() (*int64, error) {
	v, err := db.GetSetting("last_library_id")
	if err != nil {
		if errors.Is(err, storeerr.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var id int64
	if _, err := fmt.Sscanf(v, "%d", &id); err != nil {
		return nil, nil
	}
	return &id, nil
}

// StartEncoding transitions a file queued→encoding.
func (db *DB) StartEncoding(id int64) error {
	now := time.Now()
	result, err := db.conn.Exec(`
		UPDATE files SET status = ?, started_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		FileStatusEncoding, now, now, id, FileStatusQueued,
	)
	if err != nil {
		return storeerr.Wrapf(storeerr.ErrStorage, "start encoding %d: %v", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return storeerr.Wrapf(storeerr.ErrStorage, "start encoding %d: %v", id, err)
	}
	if n == 0 {
		return storeerr.Wrapf(storeerr.ErrConflict, "file %d is not queued", id)
	}
	return nil
}

// CompleteEncoding transitions an encoding file to a terminal status,
// recording newSize and errorMessage as applicable.
func (db *DB) CompleteEncoding(id int64, status FileStatus, newSize *int64, errorMessage *string) error {
	switch status {
	case FileStatusFinished, FileStatusRejected, FileStatusErrored, FileStatusCancelled:
	default:
		return storeerr.Wrapf(storeerr.ErrValidation, "invalid terminal status %q", status)
	}

	now := time.Now()
	_, err := db.conn.Exec(`
		UPDATE files SET status = ?, new_size = ?, error_message = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`,
		status, newSize, errorMessage, now, now, id,
	)
	if err != nil {
		return storeerr.Wrapf(storeerr.ErrStorage, "complete encoding %d: %v", id, err)
	}
	return nil
}

// ResetEncoding is the crash-recovery contract: any row stuck in encoding
// transitions back to queued, clearing started_at.
func (db *DB) ResetEncoding() (int64, error) {
	result, err := db.conn.Exec(`
		UPDATE files SET status = ?, started_at = NULL, updated_at = ?
		WHERE status = ?`,
		FileStatusQueued, time.Now(), FileStatusEncoding,
	)
	if err != nil {
		return 0, storeerr.Wrapf(storeerr.ErrStorage, "reset encoding: %v", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, storeerr.Wrapf(storeerr.ErrStorage, "reset encoding: %v", err)
	}
	return n, nil
}

// RetryFile transitions errored|rejected back to queued, clearing error
// fields, started_at, and completed_at. Manual retry only; no automatic
// retry per §1.
func (db *DB) RetryFile(id int64) error {
	result, err := db.conn.Exec(`
		UPDATE files SET status = ?, error_message = NULL, skip_reason = NULL,
			started_at = NULL, completed_at = NULL, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		FileStatusQueued, time.Now(), id, FileStatusErrored, FileStatusRejected,
	)
	if err != nil {
		return storeerr.Wrapf(storeerr.ErrStorage, "retry file %d: %v", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return storeerr.Wrapf(storeerr.ErrStorage, "retry file %d: %v", id, err)
	}
	if n == 0 {
		return storeerr.Wrapf(storeerr.ErrConflict, "file %d is not errored or rejected", id)
	}
	return nil
}

// SkipFile transitions queued→skipped via manual external control.
func (db *DB) SkipFile(id int64, reason string) error {
	result, err := db.conn.Exec(`
		UPDATE files SET status = ?, skip_reason = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		FileStatusSkipped, reason, time.Now(), id, FileStatusQueued,
	)
	if err != nil {
		return storeerr.Wrapf(storeerr.ErrStorage, "skip file %d: %v", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return storeerr.Wrapf(storeerr.ErrStorage, "skip file %d: %v", id, err)
	}
	if n == 0 {
		return storeerr.Wrapf(storeerr.ErrConflict, "file %d is not queued", id)
	}
	return nil
}

const fileSelectColumns = `SELECT
	id, library_id, file_path, file_name, original_codec, original_bitrate,
	original_size, original_width, original_height, is_hdr, new_size, status,
	skip_reason, error_message, started_at, completed_at, created_at, updated_at`

func prefixedFileColumns(alias string) string {
	return fmt.Sprintf(`%s.id, %s.library_id, %s.file_path, %s.file_name, %s.original_codec,
		%s.original_bitrate, %s.original_size, %s.original_width, %s.original_height,
		%s.is_hdr, %s.new_size, %s.status, %s.skip_reason, %s.error_message,
		%s.started_at, %s.completed_at, %s.created_at, %s.updated_at`,
		alias, alias, alias, alias, alias, alias, alias, alias, alias,
		alias, alias, alias, alias, alias, alias, alias, alias, alias)
}

// fileSortClause whitelists the file-sort setting into an ORDER BY
// fragment; it never interpolates caller-controlled strings directly.
func fileSortClause(alias string, fileSort FileSort) string {
	switch fileSort {
	case FileSortBitrateDesc:
		return fmt.Sprintf("%s.original_bitrate IS NULL, %s.original_bitrate DESC, %s.file_path ASC", alias, alias, alias)
	case FileSortAlphabetical:
		return fmt.Sprintf("%s.file_path ASC", alias)
	case FileSortRandom:
		return "RANDOM()"
	case FileSortBitrateAsc:
		fallthrough
	default:
		return fmt.Sprintf("%s.original_bitrate IS NULL, %s.original_bitrate ASC, %s.file_path ASC", alias, alias, alias)
	}
}

func scanFile(row *sql.Row) (*File, error) {
	var f File
	var codec, skipReason, errMsg sql.NullString
	var bitrate, size sql.NullInt64
	var width, height sql.NullInt64
	var newSize sql.NullInt64
	var startedAt, completedAt sql.NullTime

	err := row.Scan(
		&f.ID, &f.LibraryID, &f.FilePath, &f.FileName, &codec, &bitrate,
		&size, &width, &height, &f.IsHDR, &newSize, &f.Status,
		&skipReason, &errMsg, &startedAt, &completedAt, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	hydrateFileNullables(&f, codec, bitrate, size, width, height, newSize, skipReason, errMsg, startedAt, completedAt)
	return &f, nil
}

func scanFileRow(rows *sql.Rows) (*File, error) {
	var f File
	var codec, skipReason, errMsg sql.NullString
	var bitrate, size sql.NullInt64
	var width, height sql.NullInt64
	var newSize sql.NullInt64
	var startedAt, completedAt sql.NullTime

	err := rows.Scan(
		&f.ID, &f.LibraryID, &f.FilePath, &f.FileName, &codec, &bitrate,
		&size, &width, &height, &f.IsHDR, &newSize, &f.Status,
		&skipReason, &errMsg, &startedAt, &completedAt, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	hydrateFileNullables(&f, codec, bitrate, size, width, height, newSize, skipReason, errMsg, startedAt, completedAt)
	return &f, nil
}

func hydrateFileNullables(
	f *File,
	codec sql.NullString,
	bitrate, size, width, height, newSize sql.NullInt64,
	skipReason, errMsg sql.NullString,
	startedAt, completedAt sql.NullTime,
) {
	if codec.Valid {
		f.OriginalCodec = &codec.String
	}
	if bitrate.Valid {
		f.OriginalBitrate = &bitrate.Int64
	}
	if size.Valid {
		f.OriginalSize = &size.Int64
	}
	if width.Valid {
		w := int(width.Int64)
		f.OriginalWidth = &w
	}
	if height.Valid {
		h := int(height.Int64)
		f.OriginalHeight = &h
	}
	if newSize.Valid {
		f.NewSize = &newSize.Int64
	}
	if skipReason.Valid {
		f.SkipReason = &skipReason.String
	}
	if errMsg.Valid {
		f.ErrorMessage = &errMsg.String
	}
	if startedAt.Valid {
		f.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		f.CompletedAt = &completedAt.Time
	}
}

package store

import (
	"time"

	"github.com/reelwright/hevcsup/internal/storeerr"
)

// AppendEncodingLog writes a single append-only audit event for a file.
func (db *DB) AppendEncodingLog(fileID int64, event, details string) error {
	_, err := db.conn.Exec(`
		INSERT INTO encoding_log (file_id, event, details, created_at)
		VALUES (?, ?, ?, ?)`,
		fileID, event, details, time.Now(),
	)
	if err != nil {
		return storeerr.Wrapf(storeerr.ErrStorage, "append encoding log for file %d: %v", fileID, err)
	}
	return nil
}

// ListEncodingLog returns the audit trail for a single file, oldest first.
func (db *DB) ListEncodingLog(fileID int64) ([]*EncodingLogEntry, error) {
	rows, err := db.conn.Query(`
		SELECT id, file_id, event, details, created_at
		FROM encoding_log WHERE file_id = ? ORDER BY created_at ASC, id ASC`, fileID)
	if err != nil {
		return nil, storeerr.Wrapf(storeerr.ErrStorage, "list encoding log for file %d: %v", fileID, err)
	}
	defer rows.Close()

	var out []*EncodingLogEntry
	for rows.Next() {
		var e EncodingLogEntry
		if err := rows.Scan(&e.ID, &e.FileID, &e.Event, &e.Details, &e.CreatedAt); err != nil {
			return nil, storeerr.Wrapf(storeerr.ErrStorage, "list encoding log for file %d: %v", fileID, err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

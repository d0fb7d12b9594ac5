package store

import (
	"database/sql"
	"time"

	"github.com/reelwright/hevcsup/internal/storeerr"
)

// StatsDelta is the additive increment applied to both the daily and
// hourly aggregate for a single terminal outcome.
type StatsDelta struct {
	FilesFinished int64
	FilesSkipped  int64
	FilesRejected int64
	FilesErrored  int64
	SpaceSaved    int64
}

// processed reports how many of the four outcome counters this delta set,
// since total_files_processed is their sum (§8 Stats additivity).
func (d StatsDelta) processed() int64 {
	return d.FilesFinished + d.FilesSkipped + d.FilesRejected + d.FilesErrored
}

// RecordOutcome applies delta to both stats_daily (keyed by at's UTC date)
// and stats_hourly (keyed by at truncated to the UTC hour), creating the
// row if absent. Callers never compute absolute totals; both columns are
// `col = col + delta`.
func (db *DB) RecordOutcome(at time.Time, delta StatsDelta) error {
	at = at.UTC()
	date := at.Format("2006-01-02")
	hour := at.Truncate(time.Hour)

	return db.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			INSERT INTO stats_daily (date, total_files_processed, total_space_saved,
				files_finished, files_skipped, files_rejected, files_errored)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(date) DO UPDATE SET
				total_files_processed = total_files_processed + excluded.total_files_processed,
				total_space_saved = total_space_saved + excluded.total_space_saved,
				files_finished = files_finished + excluded.files_finished,
				files_skipped = files_skipped + excluded.files_skipped,
				files_rejected = files_rejected + excluded.files_rejected,
				files_errored = files_errored + excluded.files_errored`,
			date, delta.processed(), delta.SpaceSaved,
			delta.FilesFinished, delta.FilesSkipped, delta.FilesRejected, delta.FilesErrored,
		); err != nil {
			return storeerr.Wrapf(storeerr.ErrStorage, "record daily stats: %v", err)
		}

		if _, err := tx.Exec(`
			INSERT INTO stats_hourly (hour_utc, total_files_processed, total_space_saved,
				files_finished, files_skipped, files_rejected, files_errored)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(hour_utc) DO UPDATE SET
				total_files_processed = total_files_processed + excluded.total_files_processed,
				total_space_saved = total_space_saved + excluded.total_space_saved,
				files_finished = files_finished + excluded.files_finished,
				files_skipped = files_skipped + excluded.files_skipped,
				files_rejected = files_rejected + excluded.files_rejected,
				files_errored = files_errored + excluded.files_errored`,
			hour, delta.processed(), delta.SpaceSaved,
			delta.FilesFinished, delta.FilesSkipped, delta.FilesRejected, delta.FilesErrored,
		); err != nil {
			return storeerr.Wrapf(storeerr.ErrStorage, "record hourly stats: %v", err)
		}

		return nil
	})
}

// GetStatsDaily returns the aggregate for a single UTC date (YYYY-MM-DD),
// or a zero-valued row if none exists yet.
func (db *DB) GetStatsDaily(date string) (*StatsDaily, error) {
	row := db.conn.QueryRow(`
		SELECT date, total_files_processed, total_space_saved,
			files_finished, files_skipped, files_rejected, files_errored
		FROM stats_daily WHERE date = ?`, date)

	var s StatsDaily
	err := row.Scan(&s.Date, &s.TotalFilesProcessed, &s.TotalSpaceSaved,
		&s.FilesFinished, &s.FilesSkipped, &s.FilesRejected, &s.FilesErrored)
	if err == sql.ErrNoRows {
		return &StatsDaily{Date: date}, nil
	}
	if err != nil {
		return nil, storeerr.Wrapf(storeerr.ErrStorage, "get daily stats: %v", err)
	}
	return &s, nil
}

// ListStatsDaily returns the most recent n days of aggregates, newest
// first.
func (db *DB) ListStatsDaily(n int) ([]*StatsDaily, error) {
	rows, err := db.conn.Query(`
		SELECT date, total_files_processed, total_space_saved,
			files_finished, files_skipped, files_rejected, files_errored
		FROM stats_daily ORDER BY date DESC LIMIT ?`, n)
	if err != nil {
		return nil, storeerr.Wrapf(storeerr.ErrStorage, "list daily stats: %v", err)
	}
	defer rows.Close()

	var out []*StatsDaily
	for rows.Next() {
		var s StatsDaily
		if err := rows.Scan(&s.Date, &s.TotalFilesProcessed, &s.TotalSpaceSaved,
			&s.FilesFinished, &s.FilesSkipped, &s.FilesRejected, &s.FilesErrored); err != nil {
			return nil, storeerr.Wrapf(storeerr.ErrStorage, "list daily stats: %v", err)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// ListStatsHourly returns the most recent n hours of aggregates, newest
// first.
func (db *DB) ListStatsHourly(n int) ([]*StatsHourly, error) {
	rows, err := db.conn.Query(`
		SELECT hour_utc, total_files_processed, total_space_saved,
			files_finished, files_skipped, files_rejected, files_errored
		FROM stats_hourly ORDER BY hour_utc DESC LIMIT ?`, n)
	if err != nil {
		return nil, storeerr.Wrapf(storeerr.ErrStorage, "list hourly stats: %v", err)
	}
	defer rows.Close()

	var out []*StatsHourly
	for rows.Next() {
		var s StatsHourly
		if err := rows.Scan(&s.HourUTC, &s.TotalFilesProcessed, &s.TotalSpaceSaved,
			&s.FilesFinished, &s.FilesSkipped, &s.FilesRejected, &s.FilesErrored); err != nil {
			return nil, storeerr.Wrapf(storeerr.ErrStorage, "list hourly stats: %v", err)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

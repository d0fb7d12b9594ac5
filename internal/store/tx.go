package store

import "database/sql"

// withTx runs fn inside a transaction, committing on success and rolling
// back on any error (including a panic unwind).
func (db *DB) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

package dbopen

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// retries bounds RunTx. Backoff doubles from retryBase between attempts.
const (
	retries   = 3
	retryBase = 25 * time.Millisecond
)

// IsBusy reports whether err carries an SQLite BUSY or LOCKED result code,
// extended codes included.
func IsBusy(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	switch serr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// RunTx runs fn in a write transaction and commits it. When SQLite reports
// the database busy, the whole transaction is retried with backoff; any other
// error rolls back and returns immediately.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	backoff := retry.WithMaxRetries(retries, retry.NewExponential(retryBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := runOnce(ctx, db, fn)
		if IsBusy(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func runOnce(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dbopen: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dbopen: commit: %w", err)
	}
	return nil
}

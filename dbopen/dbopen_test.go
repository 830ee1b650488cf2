package dbopen_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazyhaar/pdf2emb/dbopen"
)

func pragma(t *testing.T, db *sql.DB, name string) string {
	t.Helper()
	var v string
	if err := db.QueryRow("PRAGMA " + name).Scan(&v); err != nil {
		t.Fatalf("PRAGMA %s: %v", name, err)
	}
	return v
}

func TestOpen_PragmasOnEveryConnection(t *testing.T) {
	// WHAT: Pragmas set through the DSN hold on each pooled connection.
	// WHY: A pragma executed once only reaches the connection that ran it.
	db, err := dbopen.Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()
	c1, err := db.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer c1.Close()
	c2, err := db.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()

	for i, c := range []*sql.Conn{c1, c2} {
		var mode string
		var fk, busy int
		c.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode)
		c.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk)
		c.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busy)
		if mode != "wal" || fk != 1 || busy != 10_000 {
			t.Errorf("conn %d: journal_mode=%q foreign_keys=%d busy_timeout=%d", i, mode, fk, busy)
		}
	}
}

func TestOpen_Options(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithBusyTimeout(2*time.Second), dbopen.WithSynchronous("FULL"))
	if got := pragma(t, db, "busy_timeout"); got != "2000" {
		t.Errorf("busy_timeout = %s", got)
	}
	if got := pragma(t, db, "synchronous"); got != "2" {
		t.Errorf("synchronous = %s, want 2 (FULL)", got)
	}
}

func TestOpenMemory_SharesOneDatabase(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE IF NOT EXISTS t (id TEXT PRIMARY KEY)`))
	if _, err := db.Exec(`INSERT INTO t (id) VALUES ('run_1')`); err != nil {
		t.Fatalf("insert into schema table: %v", err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM t`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("count = %d, err = %v", n, err)
	}
}

func TestOpen_BadSchema(t *testing.T) {
	if _, err := dbopen.Open(":memory:", dbopen.WithSchema("CREATE NONSENSE")); err == nil {
		t.Fatal("invalid schema must fail Open")
	}
}

func TestOpen_MkdirAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "var", "lib", "pdf2emb.db")
	db, err := dbopen.Open(path, dbopen.WithMkdirAll())
	if err != nil {
		t.Fatal(err)
	}
	db.Close()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database file: %v", err)
	}
}

func TestRunTx_CommitAndRollback(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE IF NOT EXISTS runs (id TEXT PRIMARY KEY)`))
	ctx := context.Background()

	if err := dbopen.RunTx(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO runs (id) VALUES ('a')`)
		return err
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	boom := errors.New("boom")
	err := dbopen.RunTx(ctx, db, func(tx *sql.Tx) error {
		tx.Exec(`INSERT INTO runs (id) VALUES ('b')`)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	var n int
	db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&n)
	if n != 1 {
		t.Fatalf("rows = %d, want 1 after rollback", n)
	}
}

func TestRunTx_RetriesWhileLocked(t *testing.T) {
	// WHAT: A writer blocked by another connection's transaction sees BUSY,
	// and RunTx succeeds once the lock is released.
	path := filepath.Join(t.TempDir(), "lock.db")
	schema := dbopen.WithSchema(`CREATE TABLE IF NOT EXISTS runs (id TEXT PRIMARY KEY)`)
	holder, err := dbopen.Open(path, schema, dbopen.WithBusyTimeout(0))
	if err != nil {
		t.Fatal(err)
	}
	defer holder.Close()
	waiter, err := dbopen.Open(path, dbopen.WithBusyTimeout(0))
	if err != nil {
		t.Fatal(err)
	}
	defer waiter.Close()

	ctx := context.Background()
	tx, err := holder.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tx.Exec(`INSERT INTO runs (id) VALUES ('held')`); err != nil {
		t.Fatal(err)
	}

	_, err = waiter.BeginTx(ctx, nil)
	if !dbopen.IsBusy(err) {
		t.Fatalf("BeginTx under lock: %v, want busy", err)
	}
	if dbopen.IsBusy(errors.New("database is locked")) {
		t.Error("plain errors are not SQLite results")
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		tx.Commit()
	}()
	if err := dbopen.RunTx(ctx, waiter, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO runs (id) VALUES ('after')`)
		return err
	}); err != nil {
		t.Fatalf("RunTx after release: %v", err)
	}
}

func TestRunTx_CancelledContext(t *testing.T) {
	db := dbopen.OpenMemory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := dbopen.RunTx(ctx, db, func(*sql.Tx) error { return nil }); err == nil {
		t.Fatal("cancelled context must fail")
	}
}

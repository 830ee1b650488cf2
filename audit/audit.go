// Package audit records every endpoint call (scrape, runs, run) in an
// audit_log SQLite table. Entries are written in batches by a background
// goroutine; Close flushes what is still buffered.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/pdf2emb/dbopen"
	"github.com/hazyhaar/pdf2emb/idgen"
	"github.com/hazyhaar/pdf2emb/kit"
)

// Schema creates the audit_log table.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	entry_id      TEXT PRIMARY KEY,
	timestamp     INTEGER NOT NULL,
	transport     TEXT NOT NULL,
	action        TEXT NOT NULL,
	parameters    TEXT,
	status        TEXT NOT NULL,
	error_message TEXT,
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	request_id    TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_log_timestamp ON audit_log(timestamp);
`

const (
	batchSize     = 32
	bufferSize    = 1024
	flushInterval = time.Second
)

// Entry is one audited call.
type Entry struct {
	EntryID    string `json:"entry_id"`
	Timestamp  int64  `json:"timestamp"` // unix ms
	Transport  string `json:"transport"`
	Action     string `json:"action"`
	Parameters string `json:"parameters,omitempty"`
	Status     string `json:"status"` // success | error
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	RequestID  string `json:"request_id,omitempty"`
}

// Logger is what the endpoints need from an audit trail.
type Logger interface {
	Log(ctx context.Context, e *Entry) error
	LogAsync(e *Entry)
	Close() error
}

// Option configures a SQLiteLogger.
type Option func(*SQLiteLogger)

// WithIDGenerator replaces the entry ID generator.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(l *SQLiteLogger) { l.newID = gen }
}

// WithLogger sets the logger used for write failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *SQLiteLogger) { l.logger = logger }
}

// SQLiteLogger writes entries to audit_log.
type SQLiteLogger struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	ch     chan *Entry
	done   chan struct{}
}

// NewSQLiteLogger starts the background writer. Call Init before logging
// unless the schema already exists.
func NewSQLiteLogger(db *sql.DB, opts ...Option) *SQLiteLogger {
	l := &SQLiteLogger{
		db:     db,
		newID:  idgen.Prefixed("aud_", idgen.UUIDv7()),
		logger: slog.Default(),
		ch:     make(chan *Entry, bufferSize),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	go l.run()
	return l
}

// Init creates the audit_log table.
func (l *SQLiteLogger) Init() error {
	if _, err := l.db.Exec(Schema); err != nil {
		return fmt.Errorf("audit: init schema: %w", err)
	}
	return nil
}

// Log writes e synchronously.
func (l *SQLiteLogger) Log(ctx context.Context, e *Entry) error {
	l.fillDefaults(e)
	return dbopen.RunTx(ctx, l.db, func(tx *sql.Tx) error {
		return insert(ctx, tx, e)
	})
}

// LogAsync queues e for the background writer. Entries are dropped, with a
// warning, when the buffer is full or the logger is closed.
func (l *SQLiteLogger) LogAsync(e *Entry) {
	l.fillDefaults(e)
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.ch <- e:
	default:
		l.logger.Warn("audit: buffer full, entry dropped", "action", e.Action)
	}
}

// Close stops the writer after flushing buffered entries. It is safe to call
// more than once.
func (l *SQLiteLogger) Close() error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.ch)
	}
	l.mu.Unlock()
	<-l.done
	return nil
}

// List returns the most recent entries, newest first.
func (l *SQLiteLogger) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT entry_id, timestamp, transport, action, COALESCE(parameters, ''),
		       status, COALESCE(error_message, ''), duration_ms, COALESCE(request_id, '')
		FROM audit_log ORDER BY timestamp DESC, entry_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.EntryID, &e.Timestamp, &e.Transport, &e.Action, &e.Parameters,
			&e.Status, &e.Error, &e.DurationMs, &e.RequestID); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (l *SQLiteLogger) fillDefaults(e *Entry) {
	if e.EntryID == "" {
		e.EntryID = l.newID()
	}
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}
	if e.Transport == "" {
		e.Transport = kit.DefaultTransport
	}
	if e.Status == "" {
		e.Status = "success"
		if e.Error != "" {
			e.Status = "error"
		}
	}
}

func (l *SQLiteLogger) run() {
	defer close(l.done)
	tick := time.NewTicker(flushInterval)
	defer tick.Stop()

	batch := make([]*Entry, 0, batchSize)
	for {
		select {
		case e, ok := <-l.ch:
			if !ok {
				l.flush(batch)
				return
			}
			batch = append(batch, e)
			if len(batch) >= batchSize {
				l.flush(batch)
				batch = batch[:0]
			}
		case <-tick.C:
			if len(batch) > 0 {
				l.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (l *SQLiteLogger) flush(batch []*Entry) {
	if len(batch) == 0 {
		return
	}
	ctx := context.Background()
	err := dbopen.RunTx(ctx, l.db, func(tx *sql.Tx) error {
		for _, e := range batch {
			if err := insert(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		l.logger.Error("audit: flush failed", "entries", len(batch), "error", err)
	}
}

func insert(ctx context.Context, tx *sql.Tx, e *Entry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_log (entry_id, timestamp, transport, action, parameters,
		                       status, error_message, duration_ms, request_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.EntryID, e.Timestamp, e.Transport, e.Action, nullable(e.Parameters),
		e.Status, nullable(e.Error), e.DurationMs, nullable(e.RequestID))
	if err != nil {
		return fmt.Errorf("audit: insert %s: %w", e.EntryID, err)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Decorator audits each endpoint under its registered name.
func Decorator(l Logger) kit.Decorator {
	return func(name string) kit.Middleware { return Middleware(l, name) }
}

// Middleware audits every call of the wrapped endpoint under action.
func Middleware(l Logger, action string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			e := &Entry{
				Action:     action,
				Transport:  kit.GetTransport(ctx),
				RequestID:  kit.GetRequestID(ctx),
				DurationMs: time.Since(start).Milliseconds(),
			}
			if params, merr := json.Marshal(req); merr == nil {
				e.Parameters = string(params)
			}
			if err != nil {
				e.Error = err.Error()
			}
			l.LogAsync(e)
			return resp, err
		}
	}
}

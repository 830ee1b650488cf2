package main

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/pdf2emb/audit"
	"github.com/hazyhaar/pdf2emb/dbopen"
	"github.com/hazyhaar/pdf2emb/kit"
	"github.com/hazyhaar/pdf2emb/tablestore"
)

// stores shares one SQLite database between the run store and the audit log.
type stores struct {
	db    *sql.DB
	runs  *tablestore.Store
	audit *audit.SQLiteLogger // nil when auditing is off
}

func openStores(cfg *Config, logger *slog.Logger) (*stores, error) {
	db, err := dbopen.Open(cfg.DBPath, dbopen.WithMkdirAll())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DBPath, err)
	}
	st, err := newStores(db, cfg.Audit, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return st, nil
}

func newStores(db *sql.DB, withAudit bool, logger *slog.Logger) (*stores, error) {
	runs, err := tablestore.New(db)
	if err != nil {
		return nil, err
	}
	st := &stores{db: db, runs: runs}
	if withAudit {
		st.audit = audit.NewSQLiteLogger(db, audit.WithLogger(logger))
		if err := st.audit.Init(); err != nil {
			st.audit.Close()
			return nil, err
		}
	}
	return st, nil
}

// decorator audits MCP tool calls when auditing is on.
func (s *stores) decorator() kit.Decorator {
	if s.audit == nil {
		return nil
	}
	return audit.Decorator(s.audit)
}

// Close flushes the audit log, then closes the database.
func (s *stores) Close() error {
	if s.audit != nil {
		s.audit.Close()
	}
	return s.db.Close()
}

// Package tablestore persists scraped tables in SQLite, one run per table.
//
// A run keeps the column names in order and every cell, with the null
// padding marker stored as SQL NULL, so a loaded table is identical to the
// saved one.
package tablestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/pdf2emb/dbopen"
	"github.com/hazyhaar/pdf2emb/docpipe"
	"github.com/hazyhaar/pdf2emb/idgen"
)

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("tablestore: run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	n_columns   INTEGER NOT NULL,
	n_rows      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS run_columns (
	run_id  TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	col_idx INTEGER NOT NULL,
	name    TEXT NOT NULL,
	PRIMARY KEY (run_id, col_idx)
);

CREATE TABLE IF NOT EXISTS cells (
	run_id  TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	col_idx INTEGER NOT NULL,
	row_idx INTEGER NOT NULL,
	content TEXT,
	PRIMARY KEY (run_id, col_idx, row_idx)
);
`

// Run describes a stored table.
type Run struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
	Columns   int       `json:"columns"`
	Rows      int       `json:"rows"`
}

// Store is a run database.
type Store struct {
	db    *sql.DB
	newID idgen.Generator
	now   func() time.Time
}

// Open opens or creates the run database at path.
func Open(path string) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("tablestore: %w", err)
	}
	return &Store{db: db, newID: idgen.Run, now: time.Now}, nil
}

// New wraps an open database and applies the schema.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("tablestore: schema: %w", err)
	}
	return &Store{db: db, newID: idgen.Run, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Save stores t under a new run ID and returns the ID. source records what
// was scraped (a file or directory path).
func (s *Store) Save(ctx context.Context, source string, t *docpipe.Table) (string, error) {
	id := s.newID()
	cols := t.Columns()
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO runs (id, source, created_at, n_columns, n_rows) VALUES (?, ?, ?, ?, ?)`,
			id, source, s.now().UnixMilli(), len(cols), t.Rows()); err != nil {
			return err
		}

		colStmt, err := tx.PrepareContext(ctx, `INSERT INTO run_columns (run_id, col_idx, name) VALUES (?, ?, ?)`)
		if err != nil {
			return err
		}
		defer colStmt.Close()
		cellStmt, err := tx.PrepareContext(ctx, `INSERT INTO cells (run_id, col_idx, row_idx, content) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer cellStmt.Close()

		for c, name := range cols {
			if _, err := colStmt.ExecContext(ctx, id, c, name); err != nil {
				return err
			}
			for r := 0; r < t.Rows(); r++ {
				cell := t.Cell(r, c)
				text := sql.NullString{String: cell.Text, Valid: cell.Valid}
				if _, err := cellStmt.ExecContext(ctx, id, c, r, text); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("tablestore: save: %w", err)
	}
	return id, nil
}

// Get returns the metadata of one run.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	var (
		r       Run
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source, created_at, n_columns, n_rows FROM runs WHERE id = ?`, id).
		Scan(&r.ID, &r.Source, &created, &r.Columns, &r.Rows)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("tablestore: get: %w", err)
	}
	r.CreatedAt = time.UnixMilli(created).UTC()
	return &r, nil
}

// Load rebuilds the table saved under id.
func (s *Store) Load(ctx context.Context, id string) (*docpipe.Table, error) {
	run, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT c.col_idx, c.name, x.row_idx, x.content
		   FROM run_columns c
		   LEFT JOIN cells x ON x.run_id = c.run_id AND x.col_idx = c.col_idx
		  WHERE c.run_id = ?
		  ORDER BY c.col_idx, x.row_idx`, id)
	if err != nil {
		return nil, fmt.Errorf("tablestore: load: %w", err)
	}
	defer rows.Close()

	type col struct {
		name  string
		cells []docpipe.Cell
	}
	var cols []*col
	for rows.Next() {
		var (
			idx  int
			name string
			row  sql.NullInt64
			text sql.NullString
		)
		if err := rows.Scan(&idx, &name, &row, &text); err != nil {
			return nil, fmt.Errorf("tablestore: load: %w", err)
		}
		if len(cols) == 0 || len(cols)-1 != idx {
			cols = append(cols, &col{name: name, cells: make([]docpipe.Cell, 0, run.Rows)})
		}
		if row.Valid {
			c := cols[len(cols)-1]
			c.cells = append(c.cells, docpipe.Cell{Text: text.String, Valid: text.Valid})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tablestore: load: %w", err)
	}

	t := docpipe.NewTable()
	for _, c := range cols {
		if err := t.AddCells(c.name, c.cells); err != nil {
			return nil, fmt.Errorf("tablestore: load: %w", err)
		}
	}
	return t, nil
}

// List returns the most recent runs first. A non-positive limit means 50.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, created_at, n_columns, n_rows FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("tablestore: list: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r       Run
			created int64
		)
		if err := rows.Scan(&r.ID, &r.Source, &created, &r.Columns, &r.Rows); err != nil {
			return nil, fmt.Errorf("tablestore: list: %w", err)
		}
		r.CreatedAt = time.UnixMilli(created).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Delete removes a run and its cells.
func (s *Store) Delete(ctx context.Context, id string) error {
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		// Foreign keys are only enforced on connections that ran the pragma.
		for _, q := range []string{
			`DELETE FROM cells WHERE run_id = ?`,
			`DELETE FROM run_columns WHERE run_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrRunNotFound) {
		return fmt.Errorf("tablestore: delete: %w", err)
	}
	return err
}

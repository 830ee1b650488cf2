package docpipe

import (
	"encoding/json"
	"fmt"
)

// Cell is one table cell: page text, or the null marker when Valid is false.
type Cell struct {
	Text  string
	Valid bool
}

// Text returns a non-null cell.
func Text(s string) Cell { return Cell{Text: s, Valid: true} }

// Null is the padding marker for rows past a document's last page.
var Null = Cell{}

// MarshalJSON encodes the null marker as JSON null.
func (c Cell) MarshalJSON() ([]byte, error) {
	if !c.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON accepts a string or null.
func (c *Cell) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == nil {
		*c = Null
		return nil
	}
	*c = Text(*s)
	return nil
}

type column struct {
	name  string
	cells []Cell
}

// Table is a set of named columns of equal length. Columns keep insertion
// order. A column shorter than the table is padded with Null; adding a longer
// column pads every existing one. Nothing is ever truncated.
type Table struct {
	cols  []column
	index map[string]int
	rows  int
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{index: map[string]int{}}
}

// AddColumn appends a column whose cells are all texts.
func (t *Table) AddColumn(name string, texts []string) error {
	cells := make([]Cell, len(texts))
	for i, s := range texts {
		cells[i] = Text(s)
	}
	return t.AddCells(name, cells)
}

// AddCells appends a column. It fails with ErrDuplicateColumn when name is
// already present.
func (t *Table) AddCells(name string, cells []Cell) error {
	if t.index == nil {
		t.index = map[string]int{}
	}
	if _, ok := t.index[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateColumn, name)
	}

	col := column{name: name, cells: append([]Cell(nil), cells...)}
	switch {
	case len(col.cells) < t.rows:
		col.cells = pad(col.cells, t.rows)
	case len(col.cells) > t.rows:
		t.rows = len(col.cells)
		for i := range t.cols {
			t.cols[i].cells = pad(t.cols[i].cells, t.rows)
		}
	}
	t.index[name] = len(t.cols)
	t.cols = append(t.cols, col)
	return nil
}

// Merge appends every column of other, in order. On a duplicate name t is
// left unchanged.
func (t *Table) Merge(other *Table) error {
	for _, c := range other.cols {
		if _, ok := t.index[c.name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateColumn, c.name)
		}
	}
	for _, c := range other.cols {
		if err := t.AddCells(c.name, c.cells); err != nil {
			return err
		}
	}
	return nil
}

func pad(cells []Cell, n int) []Cell {
	for len(cells) < n {
		cells = append(cells, Null)
	}
	return cells
}

// Rows is the row count shared by every column.
func (t *Table) Rows() int { return t.rows }

// Width is the column count.
func (t *Table) Width() int { return len(t.cols) }

// Empty reports whether the table has no columns.
func (t *Table) Empty() bool { return len(t.cols) == 0 }

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.name
	}
	return names
}

// Column returns a copy of the named column's cells.
func (t *Table) Column(name string) ([]Cell, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return append([]Cell(nil), t.cols[i].cells...), true
}

// Cell returns the cell at row, col. Out-of-range positions return Null.
func (t *Table) Cell(row, col int) Cell {
	if col < 0 || col >= len(t.cols) || row < 0 || row >= t.rows {
		return Null
	}
	return t.cols[col].cells[row]
}

// Row returns the cells of one row across all columns.
func (t *Table) Row(row int) []Cell {
	out := make([]Cell, len(t.cols))
	for i := range t.cols {
		out[i] = t.Cell(row, i)
	}
	return out
}

type tableJSON struct {
	Columns []string `json:"columns"`
	Rows    [][]Cell `json:"rows"`
}

// MarshalJSON encodes the table row-major: {"columns": [...], "rows": [[...]]}.
func (t *Table) MarshalJSON() ([]byte, error) {
	out := tableJSON{Columns: t.Columns(), Rows: make([][]Cell, t.rows)}
	for r := range out.Rows {
		out.Rows[r] = t.Row(r)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the MarshalJSON form.
func (t *Table) UnmarshalJSON(data []byte) error {
	var in tableJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	nt := NewTable()
	for c, name := range in.Columns {
		cells := make([]Cell, len(in.Rows))
		for r, row := range in.Rows {
			if c < len(row) {
				cells[r] = row[c]
			}
		}
		if err := nt.AddCells(name, cells); err != nil {
			return err
		}
	}
	*t = *nt
	return nil
}

// Assemble builds a table with one column per document, in argument order.
// Documents without pages contribute no column.
func Assemble(docs ...*Document) (*Table, error) {
	t := NewTable()
	for _, d := range docs {
		if d == nil || len(d.Pages) == 0 {
			continue
		}
		if err := t.AddColumn(d.Key, d.Pages); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Package tableio writes scraped tables in interchange formats.
//
// CSV has one header row of column names; null padding cells are empty
// fields, so CSV cannot tell padding from an empty page. JSON keeps the
// distinction with null.
package tableio

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hazyhaar/pdf2emb/docpipe"
)

// Format names an output encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat accepts "csv" or "json", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("tableio: unknown format %q (want csv or json)", s)
	}
}

// ContentType is the HTTP media type of f.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}

// Write encodes t to w in format f.
func Write(w io.Writer, t *docpipe.Table, f Format) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, t)
	case FormatJSON:
		return WriteJSON(w, t)
	default:
		return fmt.Errorf("tableio: unknown format %q", f)
	}
}

// WriteCSV writes a header of column names then one record per row.
func WriteCSV(w io.Writer, t *docpipe.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns()); err != nil {
		return fmt.Errorf("tableio: csv header: %w", err)
	}
	record := make([]string, t.Width())
	for r := 0; r < t.Rows(); r++ {
		for c, cell := range t.Row(r) {
			record[c] = cell.Text
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("tableio: csv row %d: %w", r+1, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("tableio: csv: %w", err)
	}
	return nil
}

// WriteJSON writes {"columns": [...], "rows": [[...]]} with null for padding.
func WriteJSON(w io.Writer, t *docpipe.Table) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t); err != nil {
		return fmt.Errorf("tableio: json: %w", err)
	}
	return nil
}

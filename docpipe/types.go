package docpipe

import (
	"errors"

	"github.com/hazyhaar/pdf2emb/pdftext"
	"github.com/hazyhaar/pdf2emb/replace"
	"github.com/hazyhaar/pdf2emb/storage"
)

// Errors surfaced by the pipeline. The first five are the underlying
// package sentinels, re-exported so callers need only import docpipe.
var (
	ErrConfigFormat     = replace.ErrConfigFormat
	ErrConfigParse      = replace.ErrConfigParse
	ErrResourceNotFound = storage.ErrNotFound
	ErrResourceAccess   = storage.ErrAccess
	ErrDocumentParse    = pdftext.ErrDocumentParse

	// ErrDuplicateColumn is returned when two documents map to the same column key.
	ErrDuplicateColumn = errors.New("docpipe: duplicate column")

	// ErrInvalidRequest is returned by Scrape for unusable requests.
	ErrInvalidRequest = errors.New("docpipe: invalid request")
)

// Document is the cleaned text of one PDF.
type Document struct {
	Path string `json:"path"`
	Key  string `json:"key"` // column name, see ColumnKey

	// Pages holds one cleaned text per page, in page order.
	Pages []string `json:"pages"`

	// PageCount is the count reported by the parser.
	PageCount int `json:"page_count"`

	Backend string             `json:"backend"`
	Quality *ExtractionQuality `json:"quality,omitempty"`
}

// Status tells why a ScrapeToTable result is or is not empty.
type Status string

const (
	StatusOK      Status = "ok"
	StatusMissing Status = "missing" // nothing at the path
	StatusEmpty   Status = "empty"   // the document has no pages
)

// Result is the outcome of ScrapeToTable.
type Result struct {
	Status   Status    `json:"status"`
	Table    *Table    `json:"table"`
	Document *Document `json:"-"`
}

// Failure records a document skipped by ScrapeDir under OnErrorSkip.
type Failure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
	Err   error  `json:"-"`
}

// Package docpipe turns PDF documents into tables of cleaned page text, one
// column per document and one row per page.
//
// A Pipeline owns the cleaning mapping, the storage source and the PDF
// backend. It is read-only after New and safe for concurrent use; every call
// opens, reads and closes its own document handle.
//
// Usage:
//
//	pipe, err := docpipe.New(docpipe.Config{ReplacementsPath: "replacements.json"})
//	res, err := pipe.ScrapeToTable(ctx, "reports/2024.pdf")
//	if res.Status == docpipe.StatusOK {
//	    fmt.Println(res.Table.Columns(), res.Table.Rows())
//	}
package docpipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/unicode/norm"

	"github.com/hazyhaar/pdf2emb/pdftext"
	"github.com/hazyhaar/pdf2emb/replace"
	"github.com/hazyhaar/pdf2emb/storage"
)

// Pipeline is the extraction engine.
type Pipeline struct {
	cfg     Config
	mapping replace.Mapping
	logger  *slog.Logger
}

// New creates a Pipeline. The replacement file, if any, is loaded here, so
// its errors (ErrConfigFormat, ErrConfigParse, file errors) surface at
// construction.
func New(cfg Config) (*Pipeline, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Parser == nil {
		parser, err := pdftext.ByName(pdftext.DefaultBackend)
		if err != nil {
			return nil, err
		}
		cfg.Parser = parser
	}

	var mapping replace.Mapping
	if cfg.Replacements != nil {
		mapping = *cfg.Replacements
	} else {
		m, err := replace.Load(cfg.ReplacementsPath, cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("docpipe: %w", err)
		}
		mapping = m
	}

	return &Pipeline{cfg: cfg, mapping: mapping, logger: cfg.Logger}, nil
}

// Mapping returns the cleaning mapping in use.
func (p *Pipeline) Mapping() replace.Mapping { return p.mapping }

// Backend names the PDF backend in use.
func (p *Pipeline) Backend() string { return p.cfg.Parser.Name() }

// Clean applies the pipeline's text cleaning to one raw page.
func (p *Pipeline) Clean(raw string) string {
	if p.cfg.NormalizeUnicode {
		raw = norm.NFC.String(raw)
	}
	return p.mapping.Clean(raw)
}

// ExtractPages reads the document at path and returns its cleaned pages.
//
// It fails with ErrResourceNotFound when nothing is at path, with
// ErrResourceAccess when the resource cannot be read or exceeds MaxFileSize,
// and with ErrDocumentParse when the backend rejects the bytes. There are no
// partial results: an error mid-document discards the pages read so far.
// The document handle is closed on every path out.
func (p *Pipeline) ExtractPages(ctx context.Context, path string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	obj, err := p.cfg.Source.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("docpipe: open: %w", err)
	}
	defer func() {
		if cerr := obj.Close(); cerr != nil {
			p.logger.Debug("docpipe: close document", "path", path, "error", cerr)
		}
	}()

	size := obj.Size()
	if size > p.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: %s is %s (max %s)", ErrResourceAccess, path,
			humanize.IBytes(uint64(size)), humanize.IBytes(uint64(p.cfg.MaxFileSize)))
	}
	if err := pdftext.Sniff(obj, size); err != nil {
		return nil, fmt.Errorf("docpipe: %s: %w", path, err)
	}

	pages, err := p.cfg.Parser.Open(obj, size)
	if err != nil {
		return nil, fmt.Errorf("docpipe: %s: %w", path, err)
	}

	texts := make([]string, 0, pages.Count())
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := pages.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("docpipe: %s: %w", path, err)
		}
		text := p.Clean(raw)
		texts = append(texts, text)
		p.logger.Debug("docpipe: page extracted", "path", path, "page", len(texts), "chars", len(text))
	}

	doc := &Document{
		Path:      path,
		Key:       ColumnKey(path),
		Pages:     texts,
		PageCount: pages.Count(),
		Backend:   p.cfg.Parser.Name(),
		Quality:   measureQuality(texts),
	}
	if doc.PageCount != len(texts) {
		p.logger.Warn("docpipe: backend yielded fewer pages than reported",
			"path", path, "reported", doc.PageCount, "yielded", len(texts))
	}
	p.reportQuality(doc)
	return doc, nil
}

func (p *Pipeline) reportQuality(doc *Document) {
	q := doc.Quality
	switch {
	case q.NeedsOCR():
		p.logger.Warn("docpipe: little readable text, document may need OCR",
			"path", doc.Path, "chars_per_page", q.CharsPerPage, "printable_ratio", q.PrintableRatio)
	case q.Garbled():
		p.logger.Warn("docpipe: extracted text looks garbled",
			"path", doc.Path, "wordlike_ratio", q.WordlikeRatio, "backend", doc.Backend)
	}
}

// ScrapeToTable extracts one document into a single-column table keyed by
// ColumnKey(path).
//
// A path with nothing behind it is not an error: a warning is logged and the
// result has StatusMissing and an empty table. A document without pages gives
// StatusEmpty and an empty table. Every other failure of ExtractPages is
// returned.
func (p *Pipeline) ScrapeToTable(ctx context.Context, path string) (Result, error) {
	ok, err := storage.Exists(ctx, p.cfg.Source, path)
	if err != nil {
		return Result{}, fmt.Errorf("docpipe: stat: %w", err)
	}
	if !ok {
		p.logger.Warn("docpipe: document not found", "path", path)
		return Result{Status: StatusMissing, Table: NewTable()}, nil
	}

	doc, err := p.ExtractPages(ctx, path)
	if err != nil {
		return Result{}, err
	}
	if len(doc.Pages) == 0 {
		return Result{Status: StatusEmpty, Table: NewTable(), Document: doc}, nil
	}

	t := NewTable()
	if err := t.AddColumn(doc.Key, doc.Pages); err != nil {
		return Result{}, err
	}
	p.logger.Info("docpipe: document scraped", "path", path, "column", doc.Key, "pages", len(doc.Pages))
	return Result{Status: StatusOK, Table: t, Document: doc}, nil
}

// ScrapeDir extracts every PDF directly inside dir, in name order, and
// assembles them into one table once all documents are read. Entries without
// a .pdf extension are skipped with a log line.
//
// A missing dir gives an empty table, as ScrapeToTable does for a missing
// file. Per-document failures follow Config.OnError: abort returns the first
// error, skip records it in the returned failures and continues.
func (p *Pipeline) ScrapeDir(ctx context.Context, dir string) (*Table, []Failure, error) {
	info, err := p.cfg.Source.Stat(ctx, dir)
	if errors.Is(err, ErrResourceNotFound) {
		p.logger.Warn("docpipe: directory not found", "dir", dir)
		return NewTable(), nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("docpipe: stat: %w", err)
	}
	if !info.Dir {
		return nil, nil, fmt.Errorf("%w: %s is not a directory", ErrResourceAccess, dir)
	}

	paths, err := p.cfg.Source.List(ctx, dir)
	if err != nil {
		return nil, nil, fmt.Errorf("docpipe: list: %w", err)
	}

	var (
		docs     []*Document
		failures []Failure
	)
	for _, path := range paths {
		if !IsPDF(path) {
			p.logger.Info("docpipe: skipping non-PDF entry", "path", path)
			continue
		}
		doc, err := p.ExtractPages(ctx, path)
		if err != nil {
			if p.cfg.OnError != OnErrorSkip || ctx.Err() != nil {
				return nil, failures, err
			}
			p.logger.Warn("docpipe: document skipped", "path", path, "error", err)
			failures = append(failures, Failure{Path: path, Error: err.Error(), Err: err})
			continue
		}
		if len(doc.Pages) == 0 {
			p.logger.Warn("docpipe: document has no pages", "path", path)
		}
		docs = append(docs, doc)
	}

	t, err := Assemble(docs...)
	if err != nil {
		return nil, failures, err
	}
	p.logger.Info("docpipe: directory scraped",
		"dir", dir, "columns", t.Width(), "rows", t.Rows(), "failures", len(failures))
	return t, failures, nil
}

// ColumnKey derives a column name from a document path: the base name with
// every ".pdf" removed. "s3://b/dir/report.pdf" gives "report".
func ColumnKey(path string) string {
	return strings.ReplaceAll(storage.Base(path), ".pdf", "")
}

// IsPDF reports whether path has a .pdf extension, in any case.
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(storage.Base(path)), ".pdf")
}

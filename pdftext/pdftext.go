// Package pdftext exposes PDF documents as a forward-only sequence of page
// texts behind a narrow interface, so the extraction pipeline does not depend
// on a particular parsing library.
//
// Two backends are provided:
//
//   - ledongthuc: github.com/ledongthuc/pdf, font-aware plain text (default)
//   - pdfcpu: github.com/pdfcpu/pdfcpu, content stream text operators
//
// Usage:
//
//	parser, _ := pdftext.ByName("ledongthuc")
//	pages, err := parser.Open(file, size)
//	for {
//	    text, err := pages.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
package pdftext

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/gabriel-vasile/mimetype"
)

// ErrDocumentParse is returned when a backend cannot parse the bytes it was given.
var ErrDocumentParse = errors.New("pdftext: cannot parse document")

// Pages iterates over the pages of an opened document.
// Iteration is forward-only and cannot be restarted.
type Pages interface {
	// Count is the page count reported by the document.
	Count() int
	// Next returns the raw text of the next page, or io.EOF after the last one.
	Next() (string, error)
}

// Parser opens a document from random-access bytes.
type Parser interface {
	Name() string
	Open(r io.ReaderAt, size int64) (Pages, error)
}

// DefaultBackend is the backend used when none is configured.
const DefaultBackend = "ledongthuc"

var backends = map[string]func() Parser{
	"ledongthuc": func() Parser { return Ledongthuc{} },
	"pdfcpu":     func() Parser { return PDFCPU{} },
}

// ByName returns the backend registered under name. An empty name selects
// DefaultBackend.
func ByName(name string) (Parser, error) {
	if name == "" {
		name = DefaultBackend
	}
	mk, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("pdftext: unknown backend %q (known: %v)", name, Names())
	}
	return mk(), nil
}

// Names lists the registered backends.
func Names() []string {
	names := make([]string, 0, len(backends))
	for n := range backends {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// sniffLen matches the read limit mimetype uses by default.
const sniffLen = 3072

// Sniff checks the leading bytes of r and fails with ErrDocumentParse when
// they do not look like a PDF.
func Sniff(r io.ReaderAt, size int64) error {
	n := int64(sniffLen)
	if size < n {
		n = size
	}
	head := make([]byte, n)
	if _, err := r.ReadAt(head, 0); err != nil && err != io.EOF {
		return fmt.Errorf("%w: read header: %w", ErrDocumentParse, err)
	}
	mt := mimetype.Detect(head)
	if !mt.Is("application/pdf") {
		return fmt.Errorf("%w: content is %s", ErrDocumentParse, mt.String())
	}
	return nil
}

// recoverParse turns a backend panic into ErrDocumentParse. Both libraries
// panic on some malformed inputs.
func recoverParse(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v", ErrDocumentParse, r)
	}
}

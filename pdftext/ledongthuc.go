package pdftext

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// Ledongthuc extracts page text with github.com/ledongthuc/pdf, which decodes
// glyphs through the page fonts.
//
// The library only accepts a first line of exactly "%PDF-1.0" to "%PDF-1.7"
// ended by CR or LF. Documents with any other header, PDF 2.0 included, are
// read by the pdfcpu backend instead.
type Ledongthuc struct{}

// Name implements Parser.
func (Ledongthuc) Name() string { return "ledongthuc" }

// Open implements Parser.
func (Ledongthuc) Open(r io.ReaderAt, size int64) (pages Pages, err error) {
	defer recoverParse(&err)

	if !ledongthucHeader(r) {
		return PDFCPU{}.Open(r, size)
	}
	rd, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDocumentParse, err)
	}
	return &ledongthucPages{r: rd, total: rd.NumPage()}, nil
}

// ledongthucHeader reports whether r starts with a header pdf.NewReader
// accepts.
func ledongthucHeader(r io.ReaderAt) bool {
	buf := make([]byte, 9)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return false
	}
	return bytes.HasPrefix(buf, []byte("%PDF-1.")) &&
		buf[7] >= '0' && buf[7] <= '7' &&
		(buf[8] == '\r' || buf[8] == '\n')
}

type ledongthucPages struct {
	r     *pdf.Reader
	total int
	next  int // 1-based number of the last page returned
}

func (p *ledongthucPages) Count() int { return p.total }

func (p *ledongthucPages) Next() (text string, err error) {
	if p.next >= p.total {
		return "", io.EOF
	}
	p.next++
	defer recoverParse(&err)

	page := p.r.Page(p.next)
	if page.V.IsNull() {
		return "", nil
	}
	text, err = page.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("%w: page %d: %w", ErrDocumentParse, p.next, err)
	}
	return text, nil
}

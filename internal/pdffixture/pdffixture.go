// Package pdffixture assembles small, valid PDF files for tests.
//
// Each page carries one line of text drawn with a Helvetica Tj operator,
// and the cross-reference table is computed from real byte offsets so strict
// parsers accept the output.
package pdffixture

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Text builds a PDF 1.4 file with one page per element of pages.
// An empty string produces a page without a content stream.
func Text(pages ...string) []byte {
	return WithHeader("%PDF-1.4", pages...)
}

// WithHeader builds the same document as Text under a custom first line,
// such as "%PDF-2.0". Offsets account for the header length.
func WithHeader(header string, pages ...string) []byte {
	// Object layout: 1 catalog, 2 pages tree, 3 font, then a page object and
	// a content stream per page.
	n := len(pages)
	total := 3 + 2*n
	offsets := make([]int, total+1)

	var b strings.Builder
	b.WriteString(header + "\n")

	offsets[1] = b.Len()
	b.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	kids := make([]string, n)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	offsets[2] = b.Len()
	fmt.Fprintf(&b, "2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n", strings.Join(kids, " "), n)

	offsets[3] = b.Len()
	b.WriteString("3 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")

	for i, text := range pages {
		pageObj := 4 + 2*i
		contentObj := pageObj + 1

		offsets[pageObj] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R /Resources << /Font << /F1 3 0 R >> >> >>\nendobj\n", pageObj, contentObj)

		stream := ""
		if text != "" {
			stream = "BT\n/F1 12 Tf\n72 720 Td\n(" + escape(text) + ") Tj\nET"
		}
		offsets[contentObj] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", contentObj, len(stream), stream)
	}

	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", total+1)
	b.WriteString("0000000000 65535 f \n")
	for i := 1; i <= total; i++ {
		fmt.Fprintf(&b, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", total+1, xref)
	return []byte(b.String())
}

// Corrupt returns bytes that carry a PDF header but no parsable body.
func Corrupt() []byte {
	return []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog /Pages 2 0 R\nthis is not a pdf body\n")
}

// Write stores a text PDF under dir and returns its path.
func Write(t testing.TB, dir, name string, pages ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, Text(pages...), 0o644); err != nil {
		t.Fatalf("pdffixture: write %s: %v", path, err)
	}
	return path
}

func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "(", `\(`)
	return strings.ReplaceAll(s, ")", `\)`)
}

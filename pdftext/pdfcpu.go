package pdftext

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFCPU reads the document with github.com/pdfcpu/pdfcpu and rebuilds page
// text from the text-showing operators of each content stream. Glyphs are
// taken as PDFDocEncoding bytes; fonts with custom encodings come out garbled,
// which the pipeline quality metrics report.
type PDFCPU struct{}

// Name implements Parser.
func (PDFCPU) Name() string { return "pdfcpu" }

// Open implements Parser.
func (PDFCPU) Open(r io.ReaderAt, size int64) (pages Pages, err error) {
	defer recoverParse(&err)

	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(io.NewSectionReader(r, 0, size), conf)
	if err != nil {
		return nil, fmt.Errorf("%w: pdfcpu read: %w", ErrDocumentParse, err)
	}
	return &pdfcpuPages{ctx: ctx}, nil
}

type pdfcpuPages struct {
	ctx  *model.Context
	next int
}

func (p *pdfcpuPages) Count() int { return p.ctx.PageCount }

func (p *pdfcpuPages) Next() (text string, err error) {
	if p.next >= p.ctx.PageCount {
		return "", io.EOF
	}
	p.next++
	defer recoverParse(&err)

	rd, err := pdfcpu.ExtractPageContent(p.ctx, p.next)
	if err != nil {
		return "", fmt.Errorf("%w: page %d content: %w", ErrDocumentParse, p.next, err)
	}
	if rd == nil {
		return "", nil
	}
	data, err := io.ReadAll(rd)
	if err != nil {
		return "", fmt.Errorf("%w: page %d content: %w", ErrDocumentParse, p.next, err)
	}
	return streamText(data), nil
}

// streamText scans a content stream and returns the text shown by Tj, TJ, '
// and ". Positioning operators become spaces, line operators newlines.
func streamText(data []byte) string {
	var out strings.Builder
	var operands []string
	inArray := false

	emit := func(sep string) {
		if sep != "" && out.Len() > 0 {
			out.WriteString(sep)
		}
		for _, s := range operands {
			out.WriteString(s)
		}
	}

	for i := 0; i < len(data); {
		c := data[i]
		switch {
		case c == '%':
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}
		case c == '(':
			s, n := readLiteral(data[i:])
			operands = append(operands, s)
			i += n
		case c == '<' && i+1 < len(data) && data[i+1] == '<':
			i += 2
		case c == '>' && i+1 < len(data) && data[i+1] == '>':
			i += 2
		case c == '<':
			s, n := readHex(data[i:])
			operands = append(operands, s)
			i += n
		case c == '[':
			inArray = true
			i++
		case c == ']':
			inArray = false
			i++
		case isSpace(c) || c == '{' || c == '}' || c == '>' || c == ')':
			i++
		case c == '/':
			_, n := readToken(data[i+1:])
			i += 1 + n
		default:
			tok, n := readToken(data[i:])
			if n == 0 {
				i++
				continue
			}
			i += n
			if f, err := strconv.ParseFloat(tok, 64); err == nil {
				// Wide negative kerning inside TJ stands in for a word gap.
				if inArray && f <= -250 {
					operands = append(operands, " ")
				}
				continue
			}
			switch tok {
			case "Tj", "TJ":
				emit("")
			case "'", "\"":
				emit("\n")
			case "T*":
				out.WriteByte('\n')
			case "Td", "TD", "Tm":
				if out.Len() > 0 {
					out.WriteByte(' ')
				}
			case "ET":
				if out.Len() > 0 {
					out.WriteByte('\n')
				}
			case "ID":
				i = skipInlineImage(data, i)
			}
			operands = operands[:0]
		}
	}
	return out.String()
}

// readLiteral decodes a (string) starting at data[0] and returns the text and
// the number of bytes consumed.
func readLiteral(data []byte) (string, int) {
	var raw []byte
	depth := 0
	i := 0
	for ; i < len(data); i++ {
		c := data[i]
		switch c {
		case '(':
			depth++
			if depth == 1 {
				continue
			}
		case ')':
			depth--
			if depth == 0 {
				return latin1(raw), i + 1
			}
		case '\\':
			if i+1 >= len(data) {
				continue
			}
			i++
			switch e := data[i]; e {
			case 'n':
				raw = append(raw, '\n')
			case 'r':
				raw = append(raw, '\r')
			case 't':
				raw = append(raw, '\t')
			case 'b':
				raw = append(raw, '\b')
			case 'f':
				raw = append(raw, '\f')
			case '\r':
				if i+1 < len(data) && data[i+1] == '\n' {
					i++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					val := int(e - '0')
					for k := 0; k < 2 && i+1 < len(data) && data[i+1] >= '0' && data[i+1] <= '7'; k++ {
						i++
						val = val*8 + int(data[i]-'0')
					}
					raw = append(raw, byte(val))
				} else {
					raw = append(raw, e)
				}
			}
			continue
		}
		raw = append(raw, c)
	}
	return latin1(raw), i
}

// readHex decodes a <hex string> starting at data[0].
func readHex(data []byte) (string, int) {
	var raw []byte
	var hi byte
	half := false
	i := 1
	for ; i < len(data) && data[i] != '>'; i++ {
		v, ok := hexVal(data[i])
		if !ok {
			continue
		}
		if !half {
			hi = v
			half = true
			continue
		}
		raw = append(raw, hi<<4|v)
		half = false
	}
	if half {
		raw = append(raw, hi<<4)
	}
	if i < len(data) {
		i++
	}
	return latin1(raw), i
}

func readToken(data []byte) (string, int) {
	i := 0
	for i < len(data) && !isSpace(data[i]) && !isDelim(data[i]) {
		i++
	}
	return string(data[:i]), i
}

// skipInlineImage moves past binary inline image data up to its EI marker.
func skipInlineImage(data []byte, i int) int {
	for j := i; j+2 < len(data); j++ {
		if isSpace(data[j]) && data[j+1] == 'E' && data[j+2] == 'I' &&
			(j+3 == len(data) || isSpace(data[j+3])) {
			return j + 3
		}
	}
	return len(data)
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

// latin1 maps raw glyph bytes to runes one to one.
func latin1(b []byte) string {
	rs := make([]rune, len(b))
	for i, c := range b {
		rs[i] = rune(c)
	}
	return string(rs)
}

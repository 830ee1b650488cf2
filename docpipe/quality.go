package docpipe

import (
	"regexp"
	"strings"
	"unicode"
)

// ExtractionQuality describes how readable the extracted text of a document
// is. Garbled fonts and scanned pages show up as low ratios or few characters.
type ExtractionQuality struct {
	PageCount      int     `json:"page_count"`
	EmptyPages     int     `json:"empty_pages"`
	CharsPerPage   float64 `json:"chars_per_page"`
	PrintableRatio float64 `json:"printable_ratio"`
	WordlikeRatio  float64 `json:"wordlike_ratio"`
	VisualRefCount int     `json:"visual_ref_count"`
}

// NeedsOCR reports whether the text layer is too thin or too garbled to use.
func (q *ExtractionQuality) NeedsOCR() bool {
	if q.PageCount == 0 {
		return false
	}
	return q.CharsPerPage < 50 || q.PrintableRatio < 0.85
}

// Garbled reports character-by-character or encoding-broken output.
func (q *ExtractionQuality) Garbled() bool {
	return q.PageCount > 0 && q.CharsPerPage >= 50 && q.WordlikeRatio < 0.4
}

func measureQuality(pages []string) *ExtractionQuality {
	q := &ExtractionQuality{PageCount: len(pages)}
	if len(pages) == 0 {
		q.PrintableRatio = 1.0
		return q
	}
	chars := 0
	for _, p := range pages {
		n := len([]rune(p))
		if n == 0 {
			q.EmptyPages++
		}
		chars += n
	}
	all := strings.Join(pages, "\n")
	q.CharsPerPage = float64(chars) / float64(len(pages))
	q.PrintableRatio = computePrintableRatio(all)
	q.WordlikeRatio = computeWordlikeRatio(all)
	q.VisualRefCount = countVisualRefs(all)
	return q
}

// computePrintableRatio returns the share of printable runes in text.
// Private use code points, U+FFFD and control characters other than
// \n \r \t count as garbage.
func computePrintableRatio(text string) float64 {
	total, printable := 0, 0
	for _, r := range text {
		total++
		if isGarbageRune(r) {
			continue
		}
		if unicode.IsPrint(r) || r == '\n' || r == '\r' || r == '\t' {
			printable++
		}
	}
	if total == 0 {
		return 1.0
	}
	return float64(printable) / float64(total)
}

func isGarbageRune(r rune) bool {
	switch {
	case r >= 0xE000 && r <= 0xF8FF:
		return true
	case r == 0xFFFD:
		return true
	case r < 0x0020 && r != '\n' && r != '\r' && r != '\t':
		return true
	}
	return false
}

// computeWordlikeRatio returns the share of tokens 2 to 15 runes long.
func computeWordlikeRatio(text string) float64 {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0
	}
	wordlike := 0
	for _, f := range fields {
		if n := len([]rune(f)); n >= 2 && n <= 15 {
			wordlike++
		}
	}
	return float64(wordlike) / float64(len(fields))
}

var visualRefPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(voir|cf\.?|see|refer\s+to)\s+(la\s+)?(figure|fig\.?|tableau|table|sch[eé]ma|schema|image|illustration|graphique|graph|diagramme|diagram)\s*\d`),
	regexp.MustCompile(`(?i)(figure|fig\.?|tableau|table)\s+\d+`),
}

// countVisualRefs counts mentions of figures and tables, whose content a
// text-only extraction does not carry.
func countVisualRefs(text string) int {
	count := 0
	for _, pat := range visualRefPatterns {
		count += len(pat.FindAllString(text, -1))
	}
	return count
}

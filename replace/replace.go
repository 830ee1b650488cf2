// Package replace loads the find/replace pairs used to clean extracted page
// text and applies them.
//
// A replacement file is a single flat JSON object:
//
//	{"Dr.": "Dr", "e.g.": "eg"}
//
// Pairs are applied in the order they appear in the file, as literal
// substring replacements. Order matters when find strings overlap.
//
// Usage:
//
//	m, err := replace.Load("replacements.json", logger)
//	clean := m.Clean(pageText)
package replace

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrConfigFormat is returned when the file name does not designate a JSON file.
	ErrConfigFormat = errors.New("replace: replacement file is not a .json file")

	// ErrConfigParse is returned when the content is not a flat JSON object of strings.
	ErrConfigParse = errors.New("replace: replacement file is not a JSON object of strings")
)

// Pair is one literal find/replace rule.
type Pair struct {
	Find    string `json:"find"`
	Replace string `json:"replace"`
}

// Mapping is an ordered, immutable set of replacement pairs.
// The zero value is an empty mapping: Clean only trims.
type Mapping struct {
	pairs []Pair
}

// New builds a mapping from pairs in the given order. Pairs with an empty
// Find are dropped; a repeated Find keeps its first position and last value.
func New(pairs ...Pair) Mapping {
	var m Mapping
	index := make(map[string]int, len(pairs))
	for _, p := range pairs {
		if p.Find == "" {
			continue
		}
		if i, ok := index[p.Find]; ok {
			m.pairs[i].Replace = p.Replace
			continue
		}
		index[p.Find] = len(m.pairs)
		m.pairs = append(m.pairs, p)
	}
	return m
}

// Load reads the replacement file at path.
//
// An empty path is not an error: a warning is logged and an empty mapping is
// returned, so cleaning reduces to whitespace trimming.
func Load(path string, logger *slog.Logger) (Mapping, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		logger.Warn("no replacement file provided, ad-hoc text cleaning disabled")
		return Mapping{}, nil
	}
	if !IsJSONName(path) {
		return Mapping{}, fmt.Errorf("%w: %s", ErrConfigFormat, path)
	}

	logger.Info("reading replacement file", "path", path)
	f, err := os.Open(path)
	if err != nil {
		return Mapping{}, fmt.Errorf("replace: open %s: %w", path, err)
	}
	defer f.Close()

	m, err := LoadReader(path, f)
	if err != nil {
		return Mapping{}, err
	}
	logger.Debug("replacement file loaded", "path", path, "pairs", m.Len())
	return m, nil
}

// LoadReader decodes a replacement object from r. name is only used for the
// format check and error messages.
func LoadReader(name string, r io.Reader) (Mapping, error) {
	if !IsJSONName(name) {
		return Mapping{}, fmt.Errorf("%w: %s", ErrConfigFormat, name)
	}
	pairs, err := decodeObject(r)
	if err != nil {
		return Mapping{}, fmt.Errorf("%w: %s: %v", ErrConfigParse, name, err)
	}
	return New(pairs...), nil
}

// IsJSONName reports whether name designates a JSON resource.
func IsJSONName(name string) bool {
	return strings.Contains(strings.ToLower(name), ".json")
}

// decodeObject reads a flat object of strings. gjson iterates members in
// document order, so key order survives decoding.
func decodeObject(r io.Reader) ([]Pair, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid JSON")
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, fmt.Errorf("top-level value is %s, want object", doc.Type)
	}

	var (
		pairs []Pair
		bad   error
	)
	doc.ForEach(func(key, val gjson.Result) bool {
		if val.Type != gjson.String {
			bad = fmt.Errorf("value for %q is %s, want string", key.String(), val.Type)
			return false
		}
		pairs = append(pairs, Pair{Find: key.String(), Replace: val.Str})
		return true
	})
	if bad != nil {
		return nil, bad
	}
	return pairs, nil
}

// Len returns the number of pairs.
func (m Mapping) Len() int { return len(m.pairs) }

// Pairs returns a copy of the pairs in application order.
func (m Mapping) Pairs() []Pair {
	out := make([]Pair, len(m.pairs))
	copy(out, m.pairs)
	return out
}

// Apply runs every replacement over text in mapping order.
func (m Mapping) Apply(text string) string {
	for _, p := range m.pairs {
		text = strings.ReplaceAll(text, p.Find, p.Replace)
	}
	return text
}

// Clean applies the replacements then trims surrounding whitespace.
func (m Mapping) Clean(text string) string {
	return strings.TrimSpace(m.Apply(text))
}

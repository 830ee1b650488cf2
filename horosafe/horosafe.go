// Package horosafe guards the inputs that reach pdf2emb from outside: paths
// sent over HTTP or MCP, and remote objects read into memory.
package horosafe

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ErrPathTraversal is returned when a user-supplied path escapes its base.
var ErrPathTraversal = errors.New("horosafe: path traversal detected")

// ErrTooLarge is returned by LimitedReadAll when the input exceeds its cap.
var ErrTooLarge = errors.New("horosafe: input too large")

// SafePath joins userInput under base and fails with ErrPathTraversal when the
// result would leave base. Absolute inputs are re-rooted under base.
func SafePath(base, userInput string) (string, error) {
	for _, part := range strings.FieldsFunc(userInput, isSep) {
		if part == ".." {
			return "", ErrPathTraversal
		}
	}
	root := filepath.Clean(base)
	cleaned := filepath.Join(root, filepath.Clean("/"+filepath.ToSlash(userInput)))
	if cleaned != root && !strings.HasPrefix(cleaned, root+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return cleaned, nil
}

// LimitedReadAll reads at most maxBytes from r. A non-positive maxBytes
// disables the cap.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}

func isSep(r rune) bool { return r == '/' || r == '\\' }


// Package idgen generates the identifiers of stored scrape runs.
//
// Run IDs are "run_" followed by a UUIDv7, so they sort by creation time both
// as strings and as SQLite TEXT keys.
package idgen

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RunPrefix marks scrape run identifiers.
const RunPrefix = "run_"

// ErrInvalidRun is returned by ParseRun for malformed run IDs.
var ErrInvalidRun = errors.New("idgen: invalid run id")

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Run is the generator used for run IDs.
var Run Generator = Prefixed(RunPrefix, UUIDv7())

// NewRun produces a run ID.
func NewRun() string {
	return Run()
}

// ParseRun validates a run ID and returns it in canonical form.
func ParseRun(s string) (string, error) {
	raw, ok := strings.CutPrefix(s, RunPrefix)
	if !ok {
		return "", fmt.Errorf("%w: %q lacks the %s prefix", ErrInvalidRun, s, RunPrefix)
	}
	u, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidRun, s, err)
	}
	return RunPrefix + u.String(), nil
}

// RunTime returns the creation time embedded in a UUIDv7 run ID.
func RunTime(id string) (time.Time, error) {
	canon, err := ParseRun(id)
	if err != nil {
		return time.Time{}, err
	}
	u := uuid.MustParse(strings.TrimPrefix(canon, RunPrefix))
	if u.Version() != 7 {
		return time.Time{}, fmt.Errorf("idgen: run id %q is not time-ordered", id)
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec).UTC(), nil
}

// Package storage maps a string path to a byte-readable resource.
//
// Two sources are provided: Local over an afero.Fs (the OS filesystem in
// production, an in-memory filesystem in tests) and S3 over an Amazon S3
// client. The pipeline only sees the Source interface.
package storage

import (
	"context"
	"errors"
	"io"
	"strings"
)

var (
	// ErrNotFound is returned when nothing exists at the path.
	ErrNotFound = errors.New("storage: resource not found")

	// ErrAccess is returned when the resource exists but cannot be read.
	ErrAccess = errors.New("storage: resource not accessible")
)

// Info describes a resource.
type Info struct {
	Path string
	Size int64
	Dir  bool
}

// Object is an opened resource. Callers must Close it.
type Object interface {
	io.ReaderAt
	io.Closer
	Size() int64
}

// Source resolves paths to resources.
type Source interface {
	Stat(ctx context.Context, path string) (Info, error)
	Open(ctx context.Context, path string) (Object, error)
	// List returns the paths of the non-directory entries directly under dir,
	// sorted by name.
	List(ctx context.Context, dir string) ([]string, error)
}

// Exists reports whether path resolves to a resource.
func Exists(ctx context.Context, src Source, path string) (bool, error) {
	_, err := src.Stat(ctx, path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Base returns the last element of a local path or an s3:// URI.
func Base(path string) string {
	path = strings.TrimPrefix(path, S3Scheme)
	path = strings.TrimRight(path, "/\\")
	if i := strings.LastIndexAny(path, "/\\"); i >= 0 {
		return path[i+1:]
	}
	return path
}

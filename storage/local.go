package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
)

// Local serves resources from an afero filesystem.
type Local struct {
	fs afero.Fs
}

// NewLocal wraps fsys. A nil fsys selects the OS filesystem.
func NewLocal(fsys afero.Fs) *Local {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Local{fs: fsys}
}

// Stat implements Source.
func (l *Local) Stat(_ context.Context, path string) (Info, error) {
	fi, err := l.fs.Stat(path)
	if err != nil {
		return Info{}, classifyFS(path, err)
	}
	return Info{Path: path, Size: fi.Size(), Dir: fi.IsDir()}, nil
}

// Open implements Source.
func (l *Local) Open(_ context.Context, path string) (Object, error) {
	f, err := l.fs.Open(path)
	if err != nil {
		return nil, classifyFS(path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, classifyFS(path, err)
	}
	if fi.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %s is a directory", ErrAccess, path)
	}
	return &localObject{File: f, size: fi.Size()}, nil
}

// List implements Source.
func (l *Local) List(_ context.Context, dir string) ([]string, error) {
	entries, err := afero.ReadDir(l.fs, dir)
	if err != nil {
		return nil, classifyFS(dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	return paths, nil
}

type localObject struct {
	afero.File
	size int64
}

func (o *localObject) Size() int64 { return o.size }

func classifyFS(path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s: %w", ErrNotFound, path, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrAccess, path, err)
}

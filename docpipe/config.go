package docpipe

import (
	"fmt"
	"log/slog"

	"github.com/hazyhaar/pdf2emb/pdftext"
	"github.com/hazyhaar/pdf2emb/replace"
	"github.com/hazyhaar/pdf2emb/storage"
)

// OnError is the per-document failure policy of ScrapeDir.
type OnError string

const (
	// OnErrorAbort stops the batch at the first failing document.
	OnErrorAbort OnError = "abort"
	// OnErrorSkip logs the failure, records it and moves on.
	OnErrorSkip OnError = "skip"
)

// Config configures the document pipeline.
type Config struct {
	// Replacements is the cleaning mapping. When nil, it is loaded from
	// ReplacementsPath; an empty path means no replacements.
	Replacements     *replace.Mapping `json:"-" yaml:"-"`
	ReplacementsPath string           `json:"replacements" yaml:"replacements"`

	// Source resolves document paths (default: local filesystem).
	Source storage.Source `json:"-" yaml:"-"`

	// Parser turns document bytes into pages (default: pdftext.DefaultBackend).
	Parser pdftext.Parser `json:"-" yaml:"-"`

	// MaxFileSize is the maximum document size to process (default: 100 MB).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// NormalizeUnicode applies NFC to raw page text before cleaning.
	NormalizeUnicode bool `json:"normalize_unicode" yaml:"normalize_unicode"`

	// OnError is the ScrapeDir failure policy (default: abort).
	OnError OnError `json:"on_error" yaml:"on_error"`

	// Logger for debug/warn messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 100 * 1024 * 1024
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Source == nil {
		c.Source = storage.NewLocal(nil)
	}
	if c.OnError == "" {
		c.OnError = OnErrorAbort
	}
}

func (c *Config) validate() error {
	switch c.OnError {
	case OnErrorAbort, OnErrorSkip:
	default:
		return fmt.Errorf("docpipe: on_error must be %q or %q, got %q", OnErrorAbort, OnErrorSkip, c.OnError)
	}
	return nil
}

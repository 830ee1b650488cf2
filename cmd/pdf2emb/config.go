package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/pdf2emb/docpipe"
	"github.com/hazyhaar/pdf2emb/horosafe"
	"github.com/hazyhaar/pdf2emb/pdftext"
	"github.com/hazyhaar/pdf2emb/shield"
	"github.com/hazyhaar/pdf2emb/storage"
)

// Config holds the full pdf2emb configuration.
type Config struct {
	Replacements     string         `yaml:"replacements"`
	Backend          string         `yaml:"backend"`
	NormalizeUnicode bool           `yaml:"normalize_unicode"`
	MaxFileMB        int            `yaml:"max_file_mb"`
	OnError          string         `yaml:"on_error"`
	Storage          storage.Config `yaml:"storage"`
	DBPath           string         `yaml:"db_path"`
	Listen           string         `yaml:"listen"`
	HTTP             shield.Config  `yaml:"http"`
	Audit            bool           `yaml:"audit"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Backend:   pdftext.DefaultBackend,
		MaxFileMB: 100,
		OnError:   string(docpipe.OnErrorAbort),
		Storage: storage.Config{
			Root: ".",
		},
		DBPath: "pdf2emb.db",
		Listen: ":8086",
		HTTP: shield.Config{
			MaxBodyKB: 1024,
			RateLimit: shield.RateLimit{Requests: 60, WindowSeconds: 60},
		},
		Audit: true,
	}
}

// LoadConfig reads a YAML config file over DefaultConfig. An empty path
// returns the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if _, err := pdftext.ByName(c.Backend); err != nil {
		return err
	}
	if c.MaxFileMB <= 0 {
		return fmt.Errorf("max_file_mb must be > 0")
	}
	switch docpipe.OnError(c.OnError) {
	case docpipe.OnErrorAbort, docpipe.OnErrorSkip:
	default:
		return fmt.Errorf("unsupported on_error %q (use abort or skip)", c.OnError)
	}
	if c.HTTP.MaxBodyKB < 0 || c.HTTP.RateLimit.Requests < 0 || c.HTTP.RateLimit.WindowSeconds < 0 {
		return fmt.Errorf("http limits must be >= 0")
	}
	return nil
}

// MaxFileBytes returns max file size in bytes.
func (c *Config) MaxFileBytes() int64 { return int64(c.MaxFileMB) * 1024 * 1024 }

// Pipeline builds the document pipeline described by c.
func (c *Config) Pipeline(ctx context.Context, logger *slog.Logger) (*docpipe.Pipeline, error) {
	src, err := storage.New(ctx, c.storageConfig())
	if err != nil {
		return nil, err
	}
	parser, err := pdftext.ByName(c.Backend)
	if err != nil {
		return nil, err
	}
	return docpipe.New(docpipe.Config{
		ReplacementsPath: c.Replacements,
		Source:           src,
		Parser:           parser,
		MaxFileSize:      c.MaxFileBytes(),
		NormalizeUnicode: c.NormalizeUnicode,
		OnError:          docpipe.OnError(c.OnError),
		Logger:           logger,
	})
}

// storageConfig applies max_file_mb to S3 downloads, so one limit governs
// every source.
func (c *Config) storageConfig() storage.Config {
	sc := c.Storage
	sc.MaxObjectMB = c.MaxFileMB
	return sc
}

// resolver confines client paths for the HTTP and MCP surfaces. Local paths
// stay under storage.root; S3 paths are passed through.
func (c *Config) resolver() docpipe.PathResolver {
	if c.Storage.FromS3Bucket {
		return nil
	}
	root := c.Storage.Root
	return func(path string) (string, error) {
		return horosafe.SafePath(root, path)
	}
}

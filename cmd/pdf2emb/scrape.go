package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hazyhaar/pdf2emb/docpipe"
	"github.com/hazyhaar/pdf2emb/kit"
	"github.com/hazyhaar/pdf2emb/tableio"
	"github.com/hazyhaar/pdf2emb/tablestore"
)

// stdout is where tables go when no -out file is given.
var stdout io.Writer = os.Stdout

func scrapeCmd(fs *flag.FlagSet) runner {
	path := fs.String("path", "", "PDF file or directory to scrape")
	dir := fs.Bool("dir", false, "scrape every PDF in -path")
	replacements := fs.String("replacements", "", "JSON replacement file (overrides config)")
	backend := fs.String("backend", "", "PDF backend: ledongthuc or pdfcpu (overrides config)")
	fromS3 := fs.Bool("s3", false, "read -path from S3")
	format := fs.String("format", "csv", "output format: csv or json")
	out := fs.String("out", "", "output file (stdout when empty)")
	dbPath := fs.String("db", "", "also save the table to this SQLite database")
	onError := fs.String("on-error", "", "directory failure policy: abort or skip (overrides config)")

	return func(ctx context.Context, logger *slog.Logger, cfg *Config) error {
		if *path == "" {
			return fmt.Errorf("-path is required")
		}
		f, err := tableio.ParseFormat(*format)
		if err != nil {
			return err
		}
		if *replacements != "" {
			cfg.Replacements = *replacements
		}
		if *backend != "" {
			cfg.Backend = *backend
		}
		if *onError != "" {
			cfg.OnError = *onError
		}
		if *fromS3 {
			cfg.Storage.FromS3Bucket = true
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		pipe, err := cfg.Pipeline(ctx, logger)
		if err != nil {
			return err
		}

		var opts docpipe.ServiceOptions
		if *dbPath != "" {
			store, err := tablestore.Open(*dbPath)
			if err != nil {
				return err
			}
			defer store.Close()
			opts.Saver = store
		}

		ctx = kit.WithTransport(ctx, "cli")
		resp, err := pipe.Scrape(ctx, docpipe.ScrapeRequest{Path: *path, Dir: *dir}, opts)
		if err != nil {
			return err
		}
		for _, fail := range resp.Failures {
			logger.Warn("pdf2emb: document skipped", "path", fail.Path, "error", fail.Error)
		}
		logger.Info("pdf2emb: scraped",
			"path", *path,
			"status", resp.Status,
			"columns", resp.Columns,
			"rows", resp.Rows,
			"run_id", resp.RunID,
		)

		return writeTable(*out, resp.Table, f)
	}
}

// writeTable writes t to the file at path, or to stdout when path is empty.
func writeTable(path string, t *docpipe.Table, f tableio.Format) error {
	if path == "" {
		return tableio.Write(stdout, t, f)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := tableio.Write(file, t, f); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/pdf2emb/idgen"
	"github.com/hazyhaar/pdf2emb/tableio"
	"github.com/hazyhaar/pdf2emb/tablestore"
)

func showCmd(fs *flag.FlagSet) runner {
	runID := fs.String("run", "", "run ID to print")
	dbPath := fs.String("db", "", "SQLite database (overrides config)")
	format := fs.String("format", "csv", "output format: csv or json")

	return func(ctx context.Context, logger *slog.Logger, cfg *Config) error {
		if *runID == "" {
			return fmt.Errorf("-run is required")
		}
		id, err := idgen.ParseRun(*runID)
		if err != nil {
			return err
		}
		f, err := tableio.ParseFormat(*format)
		if err != nil {
			return err
		}
		if *dbPath != "" {
			cfg.DBPath = *dbPath
		}

		store, err := tablestore.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		run, err := store.Get(ctx, id)
		if err != nil {
			return err
		}
		t, err := store.Load(ctx, id)
		if err != nil {
			return err
		}
		logger.Debug("pdf2emb: show", "run_id", run.ID, "source", run.Source, "created_at", run.CreatedAt)
		return tableio.Write(stdout, t, f)
	}
}

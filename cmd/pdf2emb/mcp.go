package main

import (
	"context"
	"flag"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pdf2emb/docpipe"
)

const version = "0.1.0"

func mcpCmd(fs *flag.FlagSet) runner {
	dbPath := fs.String("db", "", "SQLite database (overrides config)")

	return func(ctx context.Context, logger *slog.Logger, cfg *Config) error {
		if *dbPath != "" {
			cfg.DBPath = *dbPath
		}
		pipe, err := cfg.Pipeline(ctx, logger)
		if err != nil {
			return err
		}
		st, err := openStores(cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		srv := newMCPServer(pipe, st, cfg, logger)
		logger.Info("pdf2emb: mcp serving on stdio", "db", cfg.DBPath, "backend", pipe.Backend())
		return srv.Run(ctx, &mcp.StdioTransport{})
	}
}

// newMCPServer registers the pipeline and run store tools on one server.
func newMCPServer(pipe *docpipe.Pipeline, st *stores, cfg *Config, logger *slog.Logger) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "pdf2emb", Version: version}, nil)
	pipe.RegisterMCP(srv, docpipe.ServiceOptions{
		Resolve:  cfg.resolver(),
		Saver:    st.runs,
		Decorate: st.decorator(),
	})
	st.runs.RegisterMCP(srv, logger, st.decorator())
	return srv
}

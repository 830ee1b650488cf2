// Command pdf2emb scrapes the page text of PDF documents into aligned tables.
//
// Usage:
//
//	pdf2emb scrape -path report.pdf [-format json] [-db pdf2emb.db]
//	pdf2emb scrape -path ./docs -dir -out table.csv
//	pdf2emb serve  -config pdf2emb.yaml
//	pdf2emb mcp    -config pdf2emb.yaml
//	pdf2emb show   -db pdf2emb.db -run run_0193...
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

// runner executes a command once its flags are parsed and the config loaded.
type runner func(ctx context.Context, logger *slog.Logger, cfg *Config) error

// commands maps a command name to the function registering its flags.
var commands = map[string]func(fs *flag.FlagSet) runner{
	"scrape": scrapeCmd,
	"serve":  serveCmd,
	"mcp":    mcpCmd,
	"show":   showCmd,
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	name := os.Args[1]
	if name == "help" || name == "-h" || name == "--help" {
		printUsage()
		return
	}
	register, ok := commands[name]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", name)
		printUsage()
		os.Exit(1)
	}

	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "", "path to pdf2emb.yaml (defaults apply when empty)")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	run := register(fs)
	fs.Parse(os.Args[2:])

	_ = godotenv.Load()

	// MCP stdio owns stdout, so logs always go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))
	slog.SetDefault(logger)

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		logger.Error("pdf2emb: config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("pdf2emb "+name+": fatal", "error", err)
		cancel()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `pdf2emb: scrape PDF page text into aligned tables

usage:
  pdf2emb scrape -path <file|dir> [-dir] [-replacements F] [-backend B] [-s3]
                 [-format csv|json] [-out F] [-db F]
  pdf2emb serve  [-listen :8086] [-db F]
  pdf2emb mcp    [-db F]
  pdf2emb show   -run <run_id> [-db F] [-format csv|json]

Every command accepts -config <pdf2emb.yaml> and -log-level <level>.
A .env file in the working directory is loaded first.
`)
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/pdf2emb/audit"
	"github.com/hazyhaar/pdf2emb/docpipe"
	"github.com/hazyhaar/pdf2emb/horosafe"
	"github.com/hazyhaar/pdf2emb/idgen"
	"github.com/hazyhaar/pdf2emb/kit"
	"github.com/hazyhaar/pdf2emb/shield"
	"github.com/hazyhaar/pdf2emb/tableio"
	"github.com/hazyhaar/pdf2emb/tablestore"
)

func serveCmd(fs *flag.FlagSet) runner {
	listen := fs.String("listen", "", "listen address (overrides config)")
	dbPath := fs.String("db", "", "SQLite database (overrides config)")

	return func(ctx context.Context, logger *slog.Logger, cfg *Config) error {
		if *listen != "" {
			cfg.Listen = *listen
		}
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

		srv := &http.Server{
			Addr:              cfg.Listen,
			Handler:           newRouter(pipe, st, cfg, logger),
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      5 * time.Minute,
			IdleTimeout:       60 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("pdf2emb: server starting", "listen", cfg.Listen, "db", cfg.DBPath, "backend", pipe.Backend())
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("listen %s: %w", cfg.Listen, err)
			}
		case <-ctx.Done():
		}
		logger.Info("pdf2emb: shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		logger.Info("pdf2emb: server stopped")
		return nil
	}
}

// newRouter mounts the HTTP API. Handlers share the kit endpoints used by
// the MCP tools.
func newRouter(pipe *docpipe.Pipeline, st *stores, cfg *Config, logger *slog.Logger) http.Handler {
	store := st.runs
	opts := docpipe.ServiceOptions{Resolve: cfg.resolver(), Saver: store}
	wrap := func(name string, e kit.Endpoint) kit.Endpoint {
		mws := []kit.Middleware{kit.Logging(logger, name)}
		if st.audit != nil {
			mws = append(mws, audit.Middleware(st.audit, name))
		}
		return kit.Chain(mws...)(e)
	}
	scrape := wrap("scrape", pipe.ScrapeEndpoint(opts))
	runs := wrap("runs", store.RunsEndpoint())
	run := wrap("run", store.RunEndpoint())

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	for _, mw := range shield.APIStack(cfg.HTTP, logger) {
		r.Use(mw)
	}
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := kit.WithTransport(r.Context(), "http")
			ctx = kit.WithRequestID(ctx, middleware.GetReqID(ctx))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "backend": pipe.Backend()})
	})

	r.Post("/api/scrape", func(w http.ResponseWriter, r *http.Request) {
		var req docpipe.ScrapeRequest
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		resp, err := scrape(r.Context(), &req)
		if err != nil {
			writeError(w, statusOf(err), err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})

	r.Route("/api/runs", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			resp, err := runs(r.Context(), &tablestore.RunsRequest{Limit: queryInt(r, "limit", 0)})
			if err != nil {
				writeError(w, statusOf(err), err)
				return
			}
			writeJSON(w, http.StatusOK, resp)
		})

		r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
			f, err := tableio.ParseFormat(queryString(r, "format", "json"))
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			resp, err := run(r.Context(), &tablestore.RunRequest{ID: chi.URLParam(r, "id")})
			if err != nil {
				writeError(w, statusOf(err), err)
				return
			}
			if f == tableio.FormatJSON {
				writeJSON(w, http.StatusOK, resp)
				return
			}
			w.Header().Set("Content-Type", f.ContentType())
			w.WriteHeader(http.StatusOK)
			tableio.Write(w, resp.(*tablestore.RunResponse).Table, f)
		})

		r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, err := idgen.ParseRun(chi.URLParam(r, "id"))
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			if err := store.Delete(r.Context(), id); err != nil {
				writeError(w, statusOf(err), err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})

	if st.audit != nil {
		r.Get("/api/audit", func(w http.ResponseWriter, r *http.Request) {
			entries, err := st.audit.List(r.Context(), queryInt(r, "limit", 100))
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			if entries == nil {
				entries = []audit.Entry{}
			}
			writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
		})
	}

	return r
}

// statusOf maps pipeline and store errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, docpipe.ErrInvalidRequest), errors.Is(err, idgen.ErrInvalidRun):
		return http.StatusBadRequest
	case errors.Is(err, horosafe.ErrPathTraversal), errors.Is(err, docpipe.ErrResourceAccess):
		return http.StatusForbidden
	case errors.Is(err, docpipe.ErrResourceNotFound), errors.Is(err, tablestore.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, docpipe.ErrDocumentParse), errors.Is(err, docpipe.ErrDuplicateColumn):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func queryString(r *http.Request, key, def string) string {
	if s := r.URL.Query().Get(key); s != "" {
		return s
	}
	return def
}

package tablestore

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pdf2emb/docpipe"
	"github.com/hazyhaar/pdf2emb/idgen"
	"github.com/hazyhaar/pdf2emb/kit"
)

// RunsRequest is the argument of the runs endpoint.
type RunsRequest struct {
	Limit int `json:"limit,omitempty"`
}

// RunRequest is the argument of the run endpoint.
type RunRequest struct {
	ID string `json:"id"`
}

// RunResponse is a stored run with its table.
type RunResponse struct {
	Run   *Run           `json:"run"`
	Table *docpipe.Table `json:"table"`
}

// RunsEndpoint lists stored runs. It takes *RunsRequest.
func (s *Store) RunsEndpoint() kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		r, _ := req.(*RunsRequest)
		limit := 0
		if r != nil {
			limit = r.Limit
		}
		runs, err := s.List(ctx, limit)
		if err != nil {
			return nil, err
		}
		if runs == nil {
			runs = []Run{}
		}
		return map[string]any{"runs": runs}, nil
	}
}

// RunEndpoint returns one run and its table. It takes *RunRequest.
func (s *Store) RunEndpoint() kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		r := req.(*RunRequest)
		id, err := idgen.ParseRun(r.ID)
		if err != nil {
			return nil, err
		}
		run, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		t, err := s.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		return &RunResponse{Run: run, Table: t}, nil
	}
}

// RegisterMCP registers the pdf2emb_runs and pdf2emb_run tools. decorate,
// when non-nil, wraps each endpoint after logging.
func (s *Store) RegisterMCP(srv *mcp.Server, logger *slog.Logger, decorate kit.Decorator) {
	if logger == nil {
		logger = slog.Default()
	}
	wrap := func(name string, e kit.Endpoint) kit.Endpoint {
		mws := []kit.Middleware{kit.Logging(logger, name)}
		if decorate != nil {
			mws = append(mws, decorate(name))
		}
		return kit.Chain(mws...)(e)
	}

	runs := &mcp.Tool{
		Name:        "pdf2emb_runs",
		Description: "List stored scrape runs, most recent first.",
		InputSchema: kit.InputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Maximum runs to return (default 50)"},
		}, nil),
	}
	kit.RegisterMCPTool(srv, runs, wrap(runs.Name, s.RunsEndpoint()), kit.DecodeJSON[RunsRequest]())

	run := &mcp.Tool{
		Name:        "pdf2emb_run",
		Description: "Return a stored scrape run and its table.",
		InputSchema: kit.InputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Run ID (run_<uuid>)"},
		}, []string{"id"}),
	}
	kit.RegisterMCPTool(srv, run, wrap(run.Name, s.RunEndpoint()), kit.DecodeJSON[RunRequest]())
}

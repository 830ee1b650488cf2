package docpipe

import (
	"context"
	"fmt"
	"strings"

	"github.com/hazyhaar/pdf2emb/kit"
)

// Saver persists a scraped table and returns its run ID.
// *tablestore.Store implements it.
type Saver interface {
	Save(ctx context.Context, source string, t *Table) (string, error)
}

// PathResolver maps a client-supplied path to a storage path, rejecting the
// ones the caller must not reach.
type PathResolver func(path string) (string, error)

// ServiceOptions configures the request-facing endpoints.
type ServiceOptions struct {
	Resolve  PathResolver  // nil: paths are used as given
	Saver    Saver         // nil: tables are not persisted
	Decorate kit.Decorator // nil: endpoints are only logged
}

// wrap applies logging, then opts.Decorate, to an endpoint registered as name.
func (p *Pipeline) wrap(name string, opts ServiceOptions, e kit.Endpoint) kit.Endpoint {
	mws := []kit.Middleware{kit.Logging(p.logger, name)}
	if opts.Decorate != nil {
		mws = append(mws, opts.Decorate(name))
	}
	return kit.Chain(mws...)(e)
}

// ScrapeRequest is the argument of the scrape endpoint.
type ScrapeRequest struct {
	Path string `json:"path"`
	Dir  bool   `json:"dir,omitempty"`
}

// ScrapeResponse is the result of the scrape endpoint.
type ScrapeResponse struct {
	Status   Status    `json:"status"`
	RunID    string    `json:"run_id,omitempty"`
	Columns  int       `json:"columns"`
	Rows     int       `json:"rows"`
	Table    *Table    `json:"table"`
	Failures []Failure `json:"failures,omitempty"`
}

// Scrape runs ScrapeToTable, or ScrapeDir when req.Dir is set, and saves
// non-empty tables through opts.Saver.
func (p *Pipeline) Scrape(ctx context.Context, req ScrapeRequest, opts ServiceOptions) (*ScrapeResponse, error) {
	if strings.TrimSpace(req.Path) == "" {
		return nil, fmt.Errorf("%w: path is required", ErrInvalidRequest)
	}
	path := req.Path
	if opts.Resolve != nil {
		resolved, err := opts.Resolve(path)
		if err != nil {
			return nil, err
		}
		path = resolved
	}

	resp := &ScrapeResponse{}
	if req.Dir {
		t, failures, err := p.ScrapeDir(ctx, path)
		if err != nil {
			return nil, err
		}
		resp.Table, resp.Failures = t, failures
		resp.Status = StatusOK
		if t.Empty() {
			resp.Status = StatusEmpty
		}
	} else {
		res, err := p.ScrapeToTable(ctx, path)
		if err != nil {
			return nil, err
		}
		resp.Table, resp.Status = res.Table, res.Status
	}
	resp.Columns, resp.Rows = resp.Table.Width(), resp.Table.Rows()

	if opts.Saver != nil && !resp.Table.Empty() {
		id, err := opts.Saver.Save(ctx, req.Path, resp.Table)
		if err != nil {
			return nil, fmt.Errorf("docpipe: save: %w", err)
		}
		resp.RunID = id
	}
	return resp, nil
}

// ScrapeEndpoint exposes Scrape as a kit.Endpoint taking *ScrapeRequest.
func (p *Pipeline) ScrapeEndpoint(opts ServiceOptions) kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		r, ok := req.(*ScrapeRequest)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected request type %T", ErrInvalidRequest, req)
		}
		return p.Scrape(ctx, *r, opts)
	}
}

package docpipe

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pdf2emb/kit"
)

// RegisterMCP registers the pdf2emb_scrape and pdf2emb_extract tools.
func (p *Pipeline) RegisterMCP(srv *mcp.Server, opts ServiceOptions) {
	p.registerScrapeTool(srv, opts)
	p.registerExtractTool(srv, opts)
}

func (p *Pipeline) registerScrapeTool(srv *mcp.Server, opts ServiceOptions) {
	tool := &mcp.Tool{
		Name:        "pdf2emb_scrape",
		Description: "Extract the page text of a PDF (or of every PDF in a directory when dir is true) into a table with one column per document and one row per page.",
		InputSchema: kit.InputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "PDF file or directory path"},
			"dir":  map[string]any{"type": "boolean", "description": "Treat path as a directory of PDFs"},
		}, []string{"path"}),
	}

	endpoint := p.wrap(tool.Name, opts, p.ScrapeEndpoint(opts))
	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeJSON[ScrapeRequest]())
}

type extractReq struct {
	Path string `json:"path"`
}

func (p *Pipeline) registerExtractTool(srv *mcp.Server, opts ServiceOptions) {
	tool := &mcp.Tool{
		Name:        "pdf2emb_extract",
		Description: "Return the cleaned text of each page of a PDF, with extraction quality metrics.",
		InputSchema: kit.InputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "PDF file path"},
		}, []string{"path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*extractReq)
		if r.Path == "" {
			return nil, fmt.Errorf("%w: path is required", ErrInvalidRequest)
		}
		path := r.Path
		if opts.Resolve != nil {
			resolved, err := opts.Resolve(path)
			if err != nil {
				return nil, err
			}
			path = resolved
		}
		return p.ExtractPages(ctx, path)
	}

	kit.RegisterMCPTool(srv, tool, p.wrap(tool.Name, opts, endpoint), kit.DecodeJSON[extractReq]())
}

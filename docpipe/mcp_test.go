package docpipe

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pdf2emb/kit"
)

var testMCPImpl = &mcp.Implementation{Name: "docpipe-test", Version: "0.1.0"}

type memSaver struct {
	saved map[string]*Table
}

func (s *memSaver) Save(_ context.Context, source string, t *Table) (string, error) {
	id := "run_" + source
	s.saved[id] = t
	return id, nil
}

func testPipe(t *testing.T) *Pipeline {
	t.Helper()
	return newPipe(t, memSource(t, map[string][]byte{
		"/root/in/a.pdf": fakePDF("  alpha  ", "beta"),
		"/root/in/b.pdf": fakePDF("gamma"),
	}))
}

func rootResolver(path string) (string, error) {
	if strings.Contains(path, "..") {
		return "", errors.New("path escapes root")
	}
	return "/root/" + strings.TrimPrefix(path, "/"), nil
}

func TestScrape_Service(t *testing.T) {
	pipe := testPipe(t)
	saver := &memSaver{saved: map[string]*Table{}}
	opts := ServiceOptions{Resolve: rootResolver, Saver: saver}
	ctx := context.Background()

	resp, err := pipe.Scrape(ctx, ScrapeRequest{Path: "in/a.pdf"}, opts)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != StatusOK || resp.Columns != 1 || resp.Rows != 2 || resp.RunID != "run_in/a.pdf" {
		t.Fatalf("resp = %+v", resp)
	}
	if saver.saved[resp.RunID] != resp.Table {
		t.Fatal("table not saved")
	}

	resp, err = pipe.Scrape(ctx, ScrapeRequest{Path: "in", Dir: true}, opts)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Columns != 2 || resp.Rows != 2 {
		t.Fatalf("dir resp = %+v", resp)
	}

	resp, err = pipe.Scrape(ctx, ScrapeRequest{Path: "in/none.pdf"}, opts)
	if err != nil || resp.Status != StatusMissing || resp.RunID != "" {
		t.Fatalf("missing: resp=%+v err=%v", resp, err)
	}

	if _, err := pipe.Scrape(ctx, ScrapeRequest{Path: "../etc"}, opts); err == nil {
		t.Fatal("expected resolver error")
	}
	if _, err := pipe.Scrape(ctx, ScrapeRequest{Path: "  "}, opts); !errors.Is(err, ErrInvalidRequest) {
		t.Fatal("expected error for empty path")
	}
}

func mcpSession(t *testing.T, pipe *Pipeline) *mcp.ClientSession {
	t.Helper()
	return mcpSessionWith(t, pipe, ServiceOptions{Resolve: rootResolver})
}

func mcpSessionWith(t *testing.T, pipe *Pipeline, opts ServiceOptions) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	pipe.RegisterMCP(srv, opts)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	session, err := mcp.NewClient(testMCPImpl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func mcpCallTool(t *testing.T, session *mcp.ClientSession, name string, args any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text, result.IsError
}

func TestMCP_Scrape(t *testing.T) {
	session := mcpSession(t, testPipe(t))

	text, isErr := mcpCallTool(t, session, "pdf2emb_scrape", map[string]any{"path": "in", "dir": true})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var resp struct {
		Status string `json:"status"`
		Table  struct {
			Columns []string    `json:"columns"`
			Rows    [][]*string `json:"rows"`
		} `json:"table"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "ok" || strings.Join(resp.Table.Columns, ",") != "a,b" {
		t.Fatalf("resp = %s", text)
	}
	if len(resp.Table.Rows) != 2 || resp.Table.Rows[1][1] != nil || *resp.Table.Rows[0][0] != "alpha" {
		t.Fatalf("rows = %s", text)
	}
}

func TestMCP_Extract(t *testing.T) {
	session := mcpSession(t, testPipe(t))

	text, isErr := mcpCallTool(t, session, "pdf2emb_extract", map[string]any{"path": "in/a.pdf"})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var doc Document
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Key != "a" || doc.PageCount != 2 || doc.Pages[0] != "alpha" {
		t.Fatalf("doc = %+v", doc)
	}

	text, isErr = mcpCallTool(t, session, "pdf2emb_extract", map[string]any{"path": "in/zzz.pdf"})
	if !isErr || !strings.Contains(text, "not found") {
		t.Fatalf("missing file: isErr=%v text=%s", isErr, text)
	}
}

func TestMCP_Decorate(t *testing.T) {
	// WHAT: ServiceOptions.Decorate wraps each tool under its own name.
	var calls []string
	decorate := func(name string) kit.Middleware {
		return func(next kit.Endpoint) kit.Endpoint {
			return func(ctx context.Context, req any) (any, error) {
				calls = append(calls, name+":"+kit.GetTransport(ctx))
				return next(ctx, req)
			}
		}
	}
	session := mcpSessionWith(t, testPipe(t), ServiceOptions{Resolve: rootResolver, Decorate: decorate})

	mcpCallTool(t, session, "pdf2emb_extract", map[string]any{"path": "in/a.pdf"})
	mcpCallTool(t, session, "pdf2emb_scrape", map[string]any{"path": "in/b.pdf"})
	if strings.Join(calls, ",") != "pdf2emb_extract:mcp,pdf2emb_scrape:mcp" {
		t.Fatalf("calls = %v", calls)
	}
}

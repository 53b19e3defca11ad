package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/quire/internal/build"
	"github.com/starford/quire/internal/layout"
	"github.com/starford/quire/internal/parser"
	"github.com/starford/quire/internal/permalink"
	"github.com/starford/quire/internal/testutil"
)

func testServer(t *testing.T, files map[string]string) *Server {
	t.Helper()
	_, store := testutil.TestContent(t, files)
	p := build.New(store,
		layout.NewRegistry(map[string]string{"post": ""}),
		permalink.New("", ""),
		build.WithLogger(testutil.Logger()),
		build.WithParserOptions(parser.Options{DefaultLayout: "post"}),
	)
	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return New(res, "test")
}

func defaultFiles() map[string]string {
	return map[string]string{
		"2014-01-01-raw-pointers.html":     testutil.Post("title: Raw pointers\ntag: cpp", "one"),
		"2015-01-01-raw-pointers.html":     testutil.Post("title: Raw pointers\ntag: cpp", "two"),
		"2016-01-01-index.html":            testutil.Post("title: Index\ntags: [meta]", "{% post_url 2015-01-01-raw-pointers %}"),
		"2016-02-01-exceptions.html":       testutil.Post("title: Exceptions", "{% post_url 2015-01-01-raw-pointers %}"),
		"2016-03-01-unreferenced-draft.md": testutil.Post("title: Draft\npublished: false", "# Draft"),
	}
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var (
		result *mcp.CallToolResult
		err    error
	)
	switch name {
	case "lookup_document":
		result, err = srv.lookupDocument(ctx, req)
	case "find_by_title":
		result, err = srv.findByTitle(ctx, req)
	case "find_by_tag":
		result, err = srv.findByTag(ctx, req)
	case "resolve_reference":
		result, err = srv.resolveReference(ctx, req)
	case "list_referrers":
		result, err = srv.listReferrers(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func decode[T any](t *testing.T, r *mcp.CallToolResult) T {
	t.Helper()
	var v T
	if r.IsError {
		t.Fatalf("tool error: %s", resultText(r))
	}
	if err := json.Unmarshal([]byte(resultText(r)), &v); err != nil {
		t.Fatalf("decode %q: %v", resultText(r), err)
	}
	return v
}

func TestLookupDocument(t *testing.T) {
	srv := testServer(t, defaultFiles())

	di := decode[DocumentInfo](t, callTool(t, srv, "lookup_document", map[string]any{
		"path":         "2016-01-01-index",
		"include_body": true,
	}))
	if di.Title != "Index" || di.PublicPath != "/2016/01/01/index.html" {
		t.Errorf("info = %+v", di)
	}
	if di.Body != "/2015/01/01/raw-pointers.html" {
		t.Errorf("body = %q, want resolved reference", di.Body)
	}

	di = decode[DocumentInfo](t, callTool(t, srv, "lookup_document", map[string]any{"path": "2016-03-01-unreferenced-draft"}))
	if di.Published || di.Body != "" {
		t.Errorf("draft = %+v", di)
	}
}

func TestLookupDocumentMissing(t *testing.T) {
	srv := testServer(t, defaultFiles())
	r := callTool(t, srv, "lookup_document", map[string]any{"path": "nope"})
	if !r.IsError {
		t.Error("expected error for missing document")
	}
	r = callTool(t, srv, "lookup_document", map[string]any{})
	if !r.IsError {
		t.Error("expected error for missing argument")
	}
}

func TestFindByTitle(t *testing.T) {
	srv := testServer(t, defaultFiles())

	docs := decode[[]DocumentInfo](t, callTool(t, srv, "find_by_title", map[string]any{"title": "Raw pointers"}))
	if len(docs) != 2 || docs[0].Path != "2014-01-01-raw-pointers" || docs[1].Path != "2015-01-01-raw-pointers" {
		t.Errorf("docs = %+v", docs)
	}

	docs = decode[[]DocumentInfo](t, callTool(t, srv, "find_by_title", map[string]any{"title": "Nothing"}))
	if len(docs) != 0 {
		t.Errorf("docs = %+v, want empty", docs)
	}
}

func TestFindByTag(t *testing.T) {
	srv := testServer(t, defaultFiles())
	docs := decode[[]DocumentInfo](t, callTool(t, srv, "find_by_tag", map[string]any{"tag": "cpp"}))
	if len(docs) != 2 {
		t.Errorf("docs = %+v", docs)
	}
}

func TestResolveReference(t *testing.T) {
	srv := testServer(t, defaultFiles())

	di := decode[DocumentInfo](t, callTool(t, srv, "resolve_reference", map[string]any{"fragment": "exceptions"}))
	if di.Path != "2016-02-01-exceptions" {
		t.Errorf("resolved = %+v", di)
	}

	r := callTool(t, srv, "resolve_reference", map[string]any{"fragment": "raw-pointers"})
	if !r.IsError {
		t.Fatal("expected ambiguity error")
	}
	if text := resultText(r); !strings.Contains(text, "2014-01-01-raw-pointers") || !strings.Contains(text, "2015-01-01-raw-pointers") {
		t.Errorf("ambiguity should list candidates: %q", text)
	}

	r = callTool(t, srv, "resolve_reference", map[string]any{"fragment": "missing"})
	if !r.IsError {
		t.Error("expected unresolved error")
	}
}

func TestListReferrers(t *testing.T) {
	srv := testServer(t, defaultFiles())

	refs := decode[[]string](t, callTool(t, srv, "list_referrers", map[string]any{"path": "2015-01-01-raw-pointers"}))
	if len(refs) != 2 || refs[0] != "2016-01-01-index" || refs[1] != "2016-02-01-exceptions" {
		t.Errorf("referrers = %v", refs)
	}

	refs = decode[[]string](t, callTool(t, srv, "list_referrers", map[string]any{"path": "2014-01-01-raw-pointers"}))
	if len(refs) != 0 {
		t.Errorf("referrers = %v, want empty", refs)
	}
}

func TestUpdateSwapsSnapshot(t *testing.T) {
	srv := testServer(t, defaultFiles())
	other := testServer(t, map[string]string{"solo.html": testutil.Post("title: Solo", "")})

	srv.Update(other.snap.Load().res)
	r := callTool(t, srv, "lookup_document", map[string]any{"path": "2016-01-01-index"})
	if !r.IsError {
		t.Error("old document still visible after update")
	}
	di := decode[DocumentInfo](t, callTool(t, srv, "lookup_document", map[string]any{"path": "solo"}))
	if di.Title != "Solo" {
		t.Errorf("info = %+v", di)
	}
}

func TestFormatResource(t *testing.T) {
	srv := testServer(t, defaultFiles())
	contents, err := srv.readFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || !strings.Contains(tc.Text, "post_url") {
		t.Errorf("contents = %+v", contents)
	}
}

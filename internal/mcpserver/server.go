// Package mcpserver provides an MCP (Model Context Protocol) server
// exposing the collection of the last successful build over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/build"
	"github.com/starford/quire/internal/models"
)

const formatURI = "quire://front-matter-format"

// Server wraps the MCP server with quire tools.
type Server struct {
	mcp  *server.MCPServer
	snap atomic.Pointer[snapshot]
}

// snapshot is an immutable view of one build result.
type snapshot struct {
	res       *build.Result
	pages     map[string]models.Page
	referrers map[string][]string
}

func newSnapshot(res *build.Result) *snapshot {
	s := &snapshot{
		res:       res,
		pages:     make(map[string]models.Page, len(res.Pages)),
		referrers: make(map[string][]string),
	}
	for _, p := range res.Pages {
		s.pages[p.Document.Path] = p
	}
	for _, r := range res.References {
		if !slices.Contains(s.referrers[r.Target], r.Source) {
			s.referrers[r.Target] = append(s.referrers[r.Target], r.Source)
		}
	}
	return s
}

// DocumentInfo is the tool view of one document.
type DocumentInfo struct {
	Path        string         `json:"path"`
	Layout      string         `json:"layout"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	PublicPath  string         `json:"public_path"`
	Published   bool           `json:"published"`
	Extra       map[string]any `json:"extra,omitempty"`
	Body        string         `json:"body,omitempty"`
}

// New creates a new MCP server answering from res.
func New(res *build.Result, version string) *Server {
	s := &Server{}
	s.Update(res)

	s.mcp = server.NewMCPServer(
		"quire",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("lookup_document",
		mcp.WithDescription("Return a document of the collection by its path (file name without extension)."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Document path, e.g. 2014-06-12-exceptions-vs-error-codes")),
		mcp.WithBoolean("include_body", mcp.Description("Include the resolved body")),
	), s.lookupDocument)

	s.mcp.AddTool(mcp.NewTool("find_by_title",
		mcp.WithDescription("List documents whose title matches exactly, in collection order."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Exact title")),
	), s.findByTitle)

	s.mcp.AddTool(mcp.NewTool("find_by_tag",
		mcp.WithDescription("List documents carrying a tag, in collection order."),
		mcp.WithString("tag", mcp.Required(), mcp.Description("Tag name")),
	), s.findByTag)

	s.mcp.AddTool(mcp.NewTool("resolve_reference",
		mcp.WithDescription("Resolve a post_url fragment the way the build does and return the target and its public path."),
		mcp.WithString("fragment", mcp.Required(), mcp.Description("post_url fragment, e.g. raw-pointers")),
	), s.resolveReference)

	s.mcp.AddTool(mcp.NewTool("list_referrers",
		mcp.WithDescription("List documents whose body references the given document."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Target document path")),
	), s.listReferrers)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Document format",
			mcp.WithResourceDescription("Front matter keys and post_url rules documents must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
	)

	return s
}

// Update swaps in a newer build result. Calls already running keep the
// snapshot they started with.
func (s *Server) Update(res *build.Result) {
	s.snap.Store(newSnapshot(res))
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (snap *snapshot) info(doc *models.Document, withBody bool) DocumentInfo {
	p := snap.pages[doc.Path]
	di := DocumentInfo{
		Path:        doc.Path,
		Layout:      doc.Layout,
		Title:       doc.Title,
		Description: doc.Description,
		Tags:        doc.Tags,
		PublicPath:  p.PublicPath,
		Published:   doc.Published,
		Extra:       doc.Extra,
	}
	if withBody {
		di.Body = p.Body
	}
	return di
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) lookupDocument(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	snap := s.snap.Load()
	doc, err := snap.res.Index.Lookup(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return jsonResult(snap.info(doc, req.GetBool("include_body", false))), nil
}

func (s *Server) findByTitle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	snap := s.snap.Load()
	out := []DocumentInfo{}
	for doc := range snap.res.Index.LookupByTitle(title) {
		out = append(out, snap.info(doc, false))
	}
	return jsonResult(out), nil
}

func (s *Server) findByTag(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tag, err := req.RequireString("tag")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	snap := s.snap.Load()
	out := []DocumentInfo{}
	for doc := range snap.res.Index.LookupByTag(tag) {
		out = append(out, snap.info(doc, false))
	}
	return jsonResult(out), nil
}

func (s *Server) resolveReference(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fragment, err := req.RequireString("fragment")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	snap := s.snap.Load()
	doc, err := snap.res.Resolver.Target(fragment)
	if err != nil {
		var de *apperr.DocumentError
		if errors.As(err, &de) && len(de.Candidates) > 0 {
			return mcp.NewToolResultError(fmt.Sprintf("%v; candidates: %v", err, de.Candidates)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(snap.info(doc, false)), nil
}

func (s *Server) listReferrers(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	snap := s.snap.Load()
	if _, err := snap.res.Index.Lookup(path); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	refs := snap.referrers[path]
	if refs == nil {
		refs = []string{}
	}
	return jsonResult(refs), nil
}

func (s *Server) readFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     FrontMatterFormat,
		},
	}, nil
}

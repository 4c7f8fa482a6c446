// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Perthro archive tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/perthro/internal/apperr"
	"github.com/starford/perthro/internal/docservice"
	"github.com/starford/perthro/internal/index"
	"github.com/starford/perthro/internal/versioning"
)

const formatURI = "perthro://archive-format"

// Server wraps the MCP server with Perthro tools.
type Server struct {
	mcp *server.MCPServer
	svc *docservice.Service
}

// New creates a new MCP server with all Perthro tools registered.
func New(svc *docservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Perthro",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Full-text search through document titles and abstracts."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchDocuments)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List archived documents, optionally only those whose history names a version."),
		mcp.WithString("version", mcp.Description("Optional version display name")),
		mcp.WithString("language", mcp.Description("Optional interface language (e.g. swift, occ)")),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("list_versions",
		mcp.WithDescription("List a document's versions, current first."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Documentation URL (e.g. documentation/fazz) or data/ path")),
	), s.listVersions)

	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Read a render node reconstructed at a version. "+
			"Omit version for the current one. Read the archive contract first via "+
			"the get_archive_contract tool or the "+formatURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Documentation URL (e.g. documentation/fazz) or data/ path")),
		mcp.WithString("version", mcp.Description("Version display name (default current)")),
		mcp.WithString("language", mcp.Description("Interface language for API change annotations")),
	), s.readDocument)

	s.mcp.AddTool(mcp.NewTool("get_api_changes",
		mcp.WithDescription("API changes a version made to the symbols a document references, keyed by reference identifier."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Documentation URL or data/ path")),
		mcp.WithString("version", mcp.Required(), mcp.Description("Version whose changes to report")),
		mcp.WithString("language", mcp.Description("Interface language (default the document's own)")),
	), s.getAPIChanges)

	s.mcp.AddTool(mcp.NewTool("diff_versions",
		mcp.WithDescription("Line diff between two reconstructions of a document."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Documentation URL or data/ path")),
		mcp.WithString("from", mcp.Description("Base version (default current)")),
		mcp.WithString("to", mcp.Description("Target version (default current)")),
	), s.diffVersions)

	s.mcp.AddTool(mcp.NewTool("get_archive_contract",
		mcp.WithDescription("Returns the render node archive contract. "+
			"Call this before reading documents to understand versions and patches."),
	), s.getArchiveContract)

	// Resource: archive format contract.
	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Archive Format Contract",
			mcp.WithResourceDescription("Layout of the archive and the version history of a render node."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readArchiveFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) searchDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(results)
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, _, err := s.svc.ListDocuments(ctx, index.ListQuery{
		Limit:    500,
		Version:  req.GetString("version", ""),
		Language: req.GetString("language", ""),
	})
	if err != nil {
		return toolError(err), nil
	}
	urls := make([]string, len(items))
	for i, it := range items {
		urls[i] = it.URL
	}
	return mcp.NewToolResultText(strings.Join(urls, "\n")), nil
}

func (s *Server) listVersions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	list, err := s.svc.ListVersions(ctx, path)
	if err != nil {
		return toolError(err), nil
	}
	if len(list.Versions) == 0 {
		return mcp.NewToolResultText("unversioned"), nil
	}
	return mcp.NewToolResultText(strings.Join(list.Versions, "\n")), nil
}

func (s *Server) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	view, err := s.svc.GetDocument(ctx, path, docservice.Query{
		Version:  req.GetString("version", ""),
		Language: req.GetString("language", ""),
	})
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(view)
}

func (s *Server) getAPIChanges(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	version, err := req.RequireString("version")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	got, err := s.svc.APIChanges(ctx, path, version, req.GetString("language", ""))
	if err != nil {
		return toolError(err), nil
	}
	if len(got) == 0 {
		return mcp.NewToolResultText("no api changes"), nil
	}
	return jsonResult(got)
}

func (s *Server) diffVersions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.Diff(ctx, path, req.GetString("from", ""), req.GetString("to", ""))
	if err != nil {
		return toolError(err), nil
	}
	if !d.Changed() {
		return mcp.NewToolResultText("no differences"), nil
	}
	return mcp.NewToolResultText(d.Patch), nil
}

func (s *Server) getArchiveContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ArchiveFormatContract), nil
}

func (s *Server) readArchiveFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     ArchiveFormatContract,
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// toolError turns a service error into a tool error result. Patch failures
// name the history entry that could not be replayed.
func toolError(err error) *mcp.CallToolResult {
	var pe *versioning.PatchError
	switch {
	case errors.As(err, &pe):
		return mcp.NewToolResultError(fmt.Sprintf("history of version %q cannot be replayed (entry %d, op %d %s %s)",
			pe.Version, pe.Index, pe.Op, pe.Kind, pe.Path))
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("not found")
	default:
		return mcp.NewToolResultError(err.Error())
	}
}

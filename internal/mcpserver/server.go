// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes notedex index tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/notedex/internal/apperr"
	"github.com/starford/notedex/internal/index"
	"github.com/starford/notedex/internal/noteservice"
)

const statusURI = "notedex://index-status"

// Server wraps the MCP server with notedex tools bound to one index.
type Server struct {
	mcp       *server.MCPServer
	svc       *noteservice.Service
	indexPath string
	vaultRoot string
}

// New creates a new MCP server with all notedex tools registered.
// vaultRoot may be empty, in which case the vault_tree tool reports an error.
func New(svc *noteservice.Service, indexPath, vaultRoot string) *Server {
	s := &Server{svc: svc, indexPath: indexPath, vaultRoot: vaultRoot}

	s.mcp = server.NewMCPServer(
		"notedex",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Ranked full-text search over note titles, content, tags and aliases. "+
			"Words match as prefixes; any word may match."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 50)")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List indexed notes, most recently updated first."),
		mcp.WithBoolean("starred", mcp.Description("Only starred (true) or unstarred (false) notes")),
		mcp.WithBoolean("template", mcp.Description("Only templates (true) or non-templates (false)")),
		mcp.WithString("tag", mcp.Description("Only notes carrying this tag")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("get_note",
		mcp.WithDescription("Read an indexed note with its outgoing links and backlinks."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault-relative path of the note (e.g. folder/note.md)")),
	), s.getNote)

	s.mcp.AddTool(mcp.NewTool("index_note",
		mcp.WithDescription("Parse Markdown content and add or replace the note at path in the index. "+
			"The note's created timestamp is kept when it is already indexed."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault-relative path of the note (must end with .md)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content with optional YAML frontmatter")),
	), s.indexNote)

	s.mcp.AddTool(mcp.NewTool("remove_from_index",
		mcp.WithDescription("Remove a note and its links from the index. Missing notes are ignored."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault-relative path of the note")),
	), s.removeFromIndex)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all notes that link to the specified note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the note to find backlinks for")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("vault_tree",
		mcp.WithDescription("Return the folder and note hierarchy of the vault."),
	), s.vaultTree)

	s.mcp.AddResource(
		mcp.NewResource(statusURI, "Index Status",
			mcp.WithResourceDescription("Row counts and full-text shadow alignment of the index."),
			mcp.WithMIMEType("application/json"),
		),
		s.readStatusResource,
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

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.SearchNotes(ctx, s.indexPath, query, req.GetInt("limit", 0))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(results)
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var f index.Filter
	args := req.GetArguments()
	if _, ok := args["starred"]; ok {
		f.Starred = index.Bool(req.GetBool("starred", false))
	}
	if _, ok := args["template"]; ok {
		f.Template = index.Bool(req.GetBool("template", false))
	}
	f.Tag = req.GetString("tag", "")

	notes, err := s.svc.ListNotes(ctx, s.indexPath, f)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(notes)
}

func (s *Server) getNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.GetNote(ctx, s.indexPath, path)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(note)
}

func (s *Server) indexNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.IndexFile(ctx, s.indexPath, path, []byte(content))
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("indexed: %s", doc.Path)), nil
}

func (s *Server) removeFromIndex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.RemoveFromIndex(ctx, s.indexPath, path); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("removed: %s", index.NormalizePath(path))), nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	links, err := s.svc.Backlinks(ctx, s.indexPath, path)
	if err != nil {
		return toolError(err), nil
	}
	if len(links) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return jsonResult(links)
}

func (s *Server) vaultTree(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.vaultRoot == "" {
		return mcp.NewToolResultError("no vault configured"), nil
	}
	tree, err := s.svc.Tree(s.vaultRoot)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(tree)
}

func (s *Server) readStatusResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	st, err := s.svc.Status(ctx, s.indexPath)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(struct {
		index.SchemaStatus
		Aligned bool `json:"aligned"`
	}{st, st.Aligned()})
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      statusURI,
			MIMEType: "application/json",
			Text:     string(out),
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(out)), nil
}

func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %v", err))
	}
	return mcp.NewToolResultError(err.Error())
}

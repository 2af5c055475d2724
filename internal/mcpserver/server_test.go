package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/notedex/internal/index"
	"github.com/starford/notedex/internal/noteservice"
	"github.com/starford/notedex/internal/testutil"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	vaultDir, _ := testutil.TestVault(t)
	testutil.WriteNote(t, vaultDir, "folder/in-vault.md", "# In Vault")

	svc := noteservice.NewService(testutil.TestRegistry(t), testutil.Logger())
	indexPath := testutil.TestIndexPath(t)
	if err := svc.InitIndex(context.Background(), indexPath); err != nil {
		t.Fatal(err)
	}
	return New(svc, indexPath, vaultDir)
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "search_notes":
		result, err = srv.searchNotes(ctx, req)
	case "list_notes":
		result, err = srv.listNotes(ctx, req)
	case "get_note":
		result, err = srv.getNote(ctx, req)
	case "index_note":
		result, err = srv.indexNote(ctx, req)
	case "remove_from_index":
		result, err = srv.removeFromIndex(ctx, req)
	case "get_backlinks":
		result, err = srv.getBacklinks(ctx, req)
	case "vault_tree":
		result, err = srv.vaultTree(ctx, req)
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

func indexNote(t *testing.T, srv *Server, path, content string) {
	t.Helper()
	r := callTool(t, srv, "index_note", map[string]interface{}{"path": path, "content": content})
	if r.IsError {
		t.Fatalf("index_note %s: %s", path, resultText(r))
	}
}

func TestIndexAndGetNote(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "index_note", map[string]interface{}{
		"path":    "test.md",
		"content": "---\ntags: [go]\n---\n# Test\nHello",
	})
	if text := resultText(r); text != "indexed: test.md" {
		t.Errorf("index result = %q", text)
	}

	r = callTool(t, srv, "get_note", map[string]interface{}{"path": "test.md"})
	if r.IsError {
		t.Fatalf("get_note: %s", resultText(r))
	}
	var note struct {
		Path    string   `json:"path"`
		Title   string   `json:"title"`
		Content string   `json:"content"`
		Tags    []string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &note); err != nil {
		t.Fatal(err)
	}
	if note.Title != "Test" || note.Content != "# Test\nHello" {
		t.Errorf("note = %+v", note)
	}
	if len(note.Tags) != 1 || note.Tags[0] != "go" {
		t.Errorf("tags = %v", note.Tags)
	}
}

func TestIndexNoteMissingArgs(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "index_note", map[string]interface{}{"path": "a.md"})
	if !r.IsError {
		t.Error("expected error without content")
	}
	r = callTool(t, srv, "index_note", map[string]interface{}{"path": "", "content": "x"})
	if !r.IsError {
		t.Error("expected error for empty path")
	}
}

func TestSearchNotes(t *testing.T) {
	srv := testServer(t)
	indexNote(t, srv, "k8s.md", "# Cluster\nkubernetes deployment notes")
	indexNote(t, srv, "other.md", "# Other\nnothing relevant")

	r := callTool(t, srv, "search_notes", map[string]interface{}{"query": "kube"})
	if r.IsError {
		t.Fatalf("search: %s", resultText(r))
	}
	var results []index.SearchResult
	if err := json.Unmarshal([]byte(resultText(r)), &results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Path != "k8s.md" {
		t.Fatalf("results = %+v", results)
	}
	if !strings.Contains(results[0].Snippet, "<mark>") {
		t.Errorf("snippet = %q", results[0].Snippet)
	}

	r = callTool(t, srv, "search_notes", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error without query")
	}
}

func TestSearchNotesLimit(t *testing.T) {
	srv := testServer(t)
	for _, p := range []string{"a.md", "b.md", "c.md"} {
		indexNote(t, srv, p, "shared word")
	}
	r := callTool(t, srv, "search_notes", map[string]interface{}{"query": "shared", "limit": float64(2)})
	var results []index.SearchResult
	if err := json.Unmarshal([]byte(resultText(r)), &results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("len(results) = %d, want 2", len(results))
	}
}

func TestListNotesFilters(t *testing.T) {
	srv := testServer(t)
	indexNote(t, srv, "plain.md", "# Plain")
	indexNote(t, srv, "star.md", "---\nstarred: true\ntags: [pick]\n---\n# Star")
	indexNote(t, srv, "templates/daily.md", "# Daily")

	list := func(args map[string]interface{}) []string {
		t.Helper()
		r := callTool(t, srv, "list_notes", args)
		if r.IsError {
			t.Fatalf("list_notes: %s", resultText(r))
		}
		var notes []index.Summary
		if err := json.Unmarshal([]byte(resultText(r)), &notes); err != nil {
			t.Fatal(err)
		}
		var paths []string
		for _, n := range notes {
			paths = append(paths, n.Path)
		}
		return paths
	}

	if got := list(map[string]interface{}{}); len(got) != 3 {
		t.Errorf("all = %v", got)
	}
	if got := list(map[string]interface{}{"starred": true}); len(got) != 1 || got[0] != "star.md" {
		t.Errorf("starred = %v", got)
	}
	if got := list(map[string]interface{}{"template": true}); len(got) != 1 || got[0] != "templates/daily.md" {
		t.Errorf("template = %v", got)
	}
	if got := list(map[string]interface{}{"template": false, "starred": false}); len(got) != 1 || got[0] != "plain.md" {
		t.Errorf("plain = %v", got)
	}
	if got := list(map[string]interface{}{"tag": "pick"}); len(got) != 1 || got[0] != "star.md" {
		t.Errorf("tag = %v", got)
	}
}

func TestGetNoteMissing(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "get_note", map[string]interface{}{"path": "nope.md"})
	if !r.IsError {
		t.Fatal("expected error for missing note")
	}
	if !strings.HasPrefix(resultText(r), "not found") {
		t.Errorf("error = %q", resultText(r))
	}
}

func TestRemoveFromIndex(t *testing.T) {
	srv := testServer(t)
	indexNote(t, srv, "gone.md", "# Gone\nephemeral")

	r := callTool(t, srv, "remove_from_index", map[string]interface{}{"path": "gone.md"})
	if text := resultText(r); text != "removed: gone.md" {
		t.Errorf("remove result = %q", text)
	}
	r = callTool(t, srv, "get_note", map[string]interface{}{"path": "gone.md"})
	if !r.IsError {
		t.Error("note still readable after removal")
	}
	r = callTool(t, srv, "remove_from_index", map[string]interface{}{"path": "gone.md"})
	if r.IsError {
		t.Errorf("removing a missing note: %s", resultText(r))
	}
}

func TestGetBacklinks(t *testing.T) {
	srv := testServer(t)
	indexNote(t, srv, "a.md", "links to [[b]]")

	r := callTool(t, srv, "get_backlinks", map[string]interface{}{"path": "b.md"})
	var links []index.Link
	if err := json.Unmarshal([]byte(resultText(r)), &links); err != nil {
		t.Fatalf("backlinks = %q: %v", resultText(r), err)
	}
	if len(links) != 1 || links[0].Source != "a.md" || links[0].Raw != "b" {
		t.Errorf("backlinks = %+v", links)
	}

	r = callTool(t, srv, "get_backlinks", map[string]interface{}{"path": "lonely.md"})
	if text := resultText(r); text != "no backlinks found" {
		t.Errorf("empty backlinks = %q", text)
	}
}

func TestVaultTree(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "vault_tree", map[string]interface{}{})
	if r.IsError {
		t.Fatalf("vault_tree: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "folder/in-vault.md") {
		t.Errorf("tree = %s", resultText(r))
	}

	srv.vaultRoot = ""
	r = callTool(t, srv, "vault_tree", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error without a vault")
	}
}

func TestStatusResource(t *testing.T) {
	srv := testServer(t)
	indexNote(t, srv, "a.md", "# A")

	contents, err := srv.readStatusResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("contents = %T", contents[0])
	}
	var st struct {
		Notes   int  `json:"notes"`
		Shadow  int  `json:"shadow"`
		Aligned bool `json:"aligned"`
	}
	if err := json.Unmarshal([]byte(tc.Text), &st); err != nil {
		t.Fatal(err)
	}
	if st.Notes != 1 || st.Shadow != 1 || !st.Aligned {
		t.Errorf("status = %+v", st)
	}
}

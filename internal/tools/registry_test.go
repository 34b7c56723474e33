package tools_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/luyiourwong/vibe-markdown/internal/tools"
	"github.com/luyiourwong/vibe-markdown/internal/tools/mdfiles"
)

func notesRegistry(t *testing.T) (*tools.Registry, string) {
	t.Helper()
	root := t.TempDir()
	r := tools.NewRegistry()
	t.Cleanup(r.Close)

	if err := r.RegisterServer(context.Background(), "md-files", mdfiles.New(root)); err != nil {
		t.Fatalf("RegisterServer: %v", err)
	}
	return r, root
}

func TestRegistryEmpty(t *testing.T) {
	r := tools.NewRegistry()
	defer r.Close()

	if r.HasTools() {
		t.Fatal("empty registry should not have tools")
	}
	if got := r.AllTools(); len(got) != 0 {
		t.Fatalf("AllTools() = %d, want 0", len(got))
	}

	_, err := r.CallTool(context.Background(), "nonexistent", nil)
	if err == nil {
		t.Fatal("CallTool on empty registry should return error")
	}
}

func TestRegistrySkipsDisabled(t *testing.T) {
	r := tools.NewRegistry()
	defer r.Close()

	err := r.Register(context.Background(), "disabled-server", tools.ToolServerConfig{
		Binary:  "/nonexistent/binary",
		Enabled: false,
	})
	if err != nil {
		t.Fatalf("Register disabled server should not error: %v", err)
	}
	if r.HasTools() {
		t.Fatal("disabled server should not register tools")
	}
}

func TestRegistryBadBinary(t *testing.T) {
	r := tools.NewRegistry()
	defer r.Close()

	err := r.Register(context.Background(), "bad", tools.ToolServerConfig{
		Binary:  "/nonexistent/binary",
		Enabled: true,
	})
	if err == nil {
		t.Fatal("Register with bad binary should return error")
	}
}

func TestRegistryDiscoversInProcessTools(t *testing.T) {
	r, _ := notesRegistry(t)

	var names []string
	for _, td := range r.AllTools() {
		names = append(names, td.Name)
		if td.Description == "" {
			t.Errorf("%s should have a description", td.Name)
		}
		if td.Parameters["type"] != "object" {
			t.Errorf("%s parameters type = %v", td.Name, td.Parameters["type"])
		}
	}
	want := "md_list,md_outline,md_read,md_write"
	if got := strings.Join(names, ","); got != want {
		t.Errorf("tools = %s, want %s", got, want)
	}
	if !r.Has("md_read") || r.Has("file_read") {
		t.Error("Has() reports wrong tools")
	}
}

func TestMDFilesRoundTrip(t *testing.T) {
	r, root := notesRegistry(t)
	ctx := context.Background()

	result, err := r.CallTool(ctx, "md_write", map[string]any{
		"path":    "notes/plan.md",
		"content": "# Plan\n\n## Week 1\n\n```\n# not a heading\n```\n\n### Day 1\n",
	})
	if err != nil {
		t.Fatalf("md_write: %v", err)
	}
	if !strings.Contains(result, "wrote") {
		t.Errorf("md_write result: %q", result)
	}
	if _, err := os.Stat(filepath.Join(root, "notes", "plan.md")); err != nil {
		t.Fatalf("file not written: %v", err)
	}

	result, err = r.CallTool(ctx, "md_list", map[string]any{})
	if err != nil {
		t.Fatalf("md_list: %v", err)
	}
	if result != "notes/plan.md" {
		t.Errorf("md_list = %q", result)
	}

	result, err = r.CallTool(ctx, "md_read", map[string]any{"path": "notes/plan.md"})
	if err != nil {
		t.Fatalf("md_read: %v", err)
	}
	if !strings.HasPrefix(result, "# Plan") {
		t.Errorf("md_read = %q", result)
	}

	result, err = r.CallTool(ctx, "md_outline", map[string]any{"path": "notes/plan.md"})
	if err != nil {
		t.Fatalf("md_outline: %v", err)
	}
	want := "- Plan\n  - Week 1\n    - Day 1"
	if result != want {
		t.Errorf("md_outline = %q, want %q", result, want)
	}
}

func TestMDFilesErrors(t *testing.T) {
	r, root := notesRegistry(t)
	ctx := context.Background()

	result, err := r.CallTool(ctx, "md_read", map[string]any{"path": "missing.md"})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !strings.HasPrefix(result, "error") {
		t.Errorf("expected error for missing file, got %q", result)
	}

	result, err = r.CallTool(ctx, "md_write", map[string]any{"path": "script.sh", "content": "rm -rf /"})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !strings.HasPrefix(result, "error") {
		t.Errorf("expected error for non-markdown write, got %q", result)
	}

	// Escaping paths are pinned under the root.
	if _, err := r.CallTool(ctx, "md_write", map[string]any{"path": "../../escape.md", "content": "x"}); err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "escape.md")); err != nil {
		t.Errorf("expected write pinned inside root: %v", err)
	}
}

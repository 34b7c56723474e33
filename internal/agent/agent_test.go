package agent

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/luyiourwong/vibe-markdown/internal/editor"
	"github.com/luyiourwong/vibe-markdown/internal/i18n"
	"github.com/luyiourwong/vibe-markdown/internal/llm"
	"github.com/luyiourwong/vibe-markdown/internal/tools"
)

func toolNames(defs []llm.ToolDef) []string {
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}

func TestRunEditsDocument(t *testing.T) {
	mock := &mockClient{
		responses: []llm.Response{
			{Message: llm.ToolCallMessage(
				llm.NewToolCall("call_1", ToolReplaceText, map[string]any{"search": "very ", "replace": ""}),
			)},
			{Message: llm.AssistantMessage("Removed a filler word.")},
		},
	}
	buf := editor.NewBuffer("This is very good.")
	a := New(mock, nil, 5, i18n.EN)
	a.SetDocument(buf)

	var highlights []editor.HighlightRange
	var calls []string
	a.OnHighlight = func(r editor.HighlightRange) { highlights = append(highlights, r) }
	a.OnToolCall = func(name string, args map[string]any) { calls = append(calls, name) }

	got, err := a.Run(context.Background(), "tighten it")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != "Removed a filler word." {
		t.Errorf("Run() = %q", got)
	}
	if buf.Text() != "This is good." {
		t.Errorf("buffer = %q", buf.Text())
	}
	if len(highlights) != 1 || highlights[0] != (editor.HighlightRange{Start: 8, End: 8}) {
		t.Errorf("highlights = %v", highlights)
	}
	if len(calls) != 1 || calls[0] != ToolReplaceText {
		t.Errorf("tool calls = %v", calls)
	}

	offered := toolNames(mock.lastTools)
	if len(offered) != 5 || offered[0] != ToolReadDocument {
		t.Errorf("offered tools = %v", offered)
	}

	h := a.History()
	if err := llm.CheckToolResults(h); err != nil {
		t.Fatalf("history breaks tool correlation: %v", err)
	}
	result := h[3]
	if result.Role != llm.RoleTool || result.ToolCallID != "call_1" || result.Name != ToolReplaceText {
		t.Errorf("tool result message = %+v", result)
	}
	if !strings.HasPrefix(result.Text(), "ok:") {
		t.Errorf("tool result = %q", result.Text())
	}
}

func TestRunReportsToolErrorsToModel(t *testing.T) {
	mock := &mockClient{
		responses: []llm.Response{
			{Message: llm.ToolCallMessage(
				llm.NewToolCall("c1", ToolReplaceText, map[string]any{"search": "absent", "replace": "x"}),
				llm.NewToolCall("c2", ToolInsertText, map[string]any{"offset": 1.5, "text": "x"}),
				llm.NewToolCall("c3", "no_such_tool", nil),
			)},
			{Message: llm.AssistantMessage("Could not find it.")},
		},
	}
	buf := editor.NewBuffer("hello")
	a := New(mock, nil, 5, i18n.EN)
	a.SetDocument(buf)

	if _, err := a.Run(context.Background(), "edit"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, m := range a.History()[3:6] {
		if !strings.HasPrefix(m.Text(), "error:") {
			t.Errorf("%s result = %q, want error", m.Name, m.Text())
		}
	}
	if buf.Text() != "hello" {
		t.Errorf("buffer changed to %q", buf.Text())
	}
	if len(buf.Highlights()) != 0 {
		t.Error("failed edits should not highlight")
	}
}

func TestDocumentTools(t *testing.T) {
	buf := editor.NewBuffer("# Title\n")
	a := New(&mockClient{}, nil, 1, i18n.EN)
	a.SetDocument(buf)

	if got := a.executeTool(context.Background(), ToolReadDocument, nil); got != "# Title\n" {
		t.Errorf("read_document = %q", got)
	}
	a.executeTool(context.Background(), ToolAppendText, map[string]any{"text": "body\n"})
	a.executeTool(context.Background(), ToolInsertText, map[string]any{"offset": float64(2), "text": "My "})
	if buf.Text() != "# My Title\nbody\n" {
		t.Errorf("buffer = %q", buf.Text())
	}
	a.executeTool(context.Background(), ToolSetDocument, map[string]any{"content": ""})
	if got := a.executeTool(context.Background(), ToolReadDocument, nil); got != "(the document is empty)" {
		t.Errorf("read_document on empty = %q", got)
	}
	if got := a.executeTool(context.Background(), ToolAppendText, map[string]any{"text": 3}); !strings.HasPrefix(got, "error:") {
		t.Errorf("append with bad arg = %q", got)
	}
}

func TestRunWithoutDocumentOffersNoDocumentTools(t *testing.T) {
	mock := &mockClient{responses: []llm.Response{{Message: llm.AssistantMessage("hi")}}}
	a := New(mock, nil, 3, i18n.EN)
	if _, err := a.Run(context.Background(), "hello"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(mock.lastTools) != 0 {
		t.Errorf("offered tools = %v, want none", toolNames(mock.lastTools))
	}
}

func TestRunMaxIterations(t *testing.T) {
	loopCall := llm.Response{Message: llm.ToolCallMessage(llm.NewToolCall("c", ToolReadDocument, nil))}
	mock := &mockClient{responses: []llm.Response{loopCall, loopCall, loopCall}}
	a := New(mock, nil, 2, i18n.EN)
	a.SetDocument(editor.NewBuffer("x"))

	_, err := a.Run(context.Background(), "loop")
	if err == nil || !strings.Contains(err.Error(), "max iterations") {
		t.Fatalf("Run() error = %v, want max iterations", err)
	}
}

func TestRunStreaming(t *testing.T) {
	mock := &mockClient{responses: []llm.Response{{Message: llm.AssistantMessage("streamed")}}}
	a := New(mock, nil, 3, i18n.EN)
	var deltas strings.Builder
	a.OnTextDelta = func(d string) { deltas.WriteString(d) }

	got, err := a.RunStreaming(context.Background(), "hi")
	if err != nil {
		t.Fatalf("RunStreaming: %v", err)
	}
	if got != "streamed" || deltas.String() != "streamed" {
		t.Errorf("got %q, deltas %q", got, deltas.String())
	}
}

func TestSystemPromptFollowsLang(t *testing.T) {
	tests := []struct {
		lang i18n.Lang
		want i18n.Lang
	}{
		{i18n.EN, i18n.EN},
		{i18n.ZH, i18n.ZH},
		{"fr", i18n.EN},
	}
	for _, tt := range tests {
		a := New(&mockClient{}, nil, 1, tt.lang)
		if a.Lang() != tt.want {
			t.Errorf("New(%q).Lang() = %q", tt.lang, a.Lang())
		}
		if got := a.History()[0].Text(); got != i18n.T(tt.want, i18n.KeySystemPrompt) {
			t.Errorf("lang %q: system prompt = %q", tt.lang, got)
		}
	}
}

func TestApplyProfileFiltersTools(t *testing.T) {
	a := New(&mockClient{}, nil, 10, i18n.EN)
	a.SetDocument(editor.NewBuffer("text"))
	a.ApplyProfile(&Profile{
		SystemPrompt: "Only read.",
		Tools:        []string{ToolReadDocument},
		MaxIter:      3,
	})

	if names := toolNames(a.Tools()); len(names) != 1 || names[0] != ToolReadDocument {
		t.Errorf("tools = %v", names)
	}
	if a.maxIter != 3 {
		t.Errorf("maxIter = %d", a.maxIter)
	}
	if a.History()[0].Text() != "Only read." {
		t.Errorf("system prompt = %q", a.History()[0].Text())
	}
	got := a.executeTool(context.Background(), ToolSetDocument, map[string]any{"content": "gone"})
	if !strings.Contains(got, "not available") {
		t.Errorf("filtered tool result = %q", got)
	}
	if a.Document().Text() != "text" {
		t.Error("filtered tool should not run")
	}
}

func TestDocumentToolsShadowRegistry(t *testing.T) {
	srv := server.NewMCPServer("ext", "1.0.0", server.WithToolCapabilities(false))
	srv.AddTool(mcp.NewTool(ToolReadDocument, mcp.WithDescription("shadowed")),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("from registry"), nil
		})
	srv.AddTool(mcp.NewTool("word_count", mcp.WithDescription("count words")),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("42"), nil
		})

	reg := tools.NewRegistry()
	t.Cleanup(reg.Close)
	if err := reg.RegisterServer(context.Background(), "ext", srv); err != nil {
		t.Fatalf("RegisterServer: %v", err)
	}

	a := New(&mockClient{}, reg, 5, i18n.EN)
	a.SetDocument(editor.NewBuffer("mine"))

	count := 0
	for _, name := range toolNames(a.Tools()) {
		if name == ToolReadDocument {
			count++
		}
	}
	if count != 1 {
		t.Errorf("read_document offered %d times", count)
	}
	if got := a.executeTool(context.Background(), ToolReadDocument, nil); got != "mine" {
		t.Errorf("read_document = %q, want document text", got)
	}
	if got := a.executeTool(context.Background(), "word_count", nil); got != "42" {
		t.Errorf("word_count = %q", got)
	}
}

func TestSetHistoryKeepsSystemPrompt(t *testing.T) {
	a := New(&mockClient{}, nil, 1, i18n.ZH)
	a.SetHistory([]llm.Message{llm.UserMessage("hi"), llm.AssistantMessage("hello")})
	h := a.History()
	if len(h) != 3 || h[0].Role != llm.RoleSystem {
		t.Fatalf("history = %+v", h)
	}

	a.Reset()
	if len(a.History()) != 1 {
		t.Errorf("Reset left %d messages", len(a.History()))
	}
}

func TestTrimHistoryDropsOrphanToolResults(t *testing.T) {
	a := New(&mockClient{}, nil, 1, i18n.EN)
	a.SetHistory([]llm.Message{
		llm.SystemMessage("s"),
		llm.UserMessage("edit"),
		llm.ToolCallMessage(llm.NewToolCall("c1", ToolReadDocument, nil)),
		llm.ToolResultMessage("c1", ToolReadDocument, "text"),
		llm.AssistantMessage("done"),
	})
	a.trimHistory(2)
	if err := llm.CheckToolResults(a.History()); err != nil {
		t.Errorf("trimmed history: %v", err)
	}
	if len(a.History()) != 2 {
		t.Errorf("history length = %d, want 2", len(a.History()))
	}
}

func TestFormatToolCall(t *testing.T) {
	got := FormatToolCall("replace_text", map[string]any{"search": "a", "replace": strings.Repeat("b", 80)})
	want := "replace_text(replace=" + strings.Repeat("b", 57) + "..., search=a)"
	if got != want {
		t.Errorf("FormatToolCall() = %q, want %q", got, want)
	}
}

func TestLoadNamedProfile(t *testing.T) {
	dir := t.TempDir()
	yaml := "system_prompt: Be brief.\ntools: [read_document]\nmax_iterations: 4\nmodel: small\n"
	if err := os.WriteFile(filepath.Join(dir, "brief.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadNamedProfile(dir, "brief")
	if err != nil {
		t.Fatalf("LoadNamedProfile: %v", err)
	}
	if p.Name != "brief" || p.Model != "small" || p.MaxIter != 4 || len(p.Tools) != 1 {
		t.Errorf("profile = %+v", p)
	}

	if p, err := LoadNamedProfile(dir, ""); p != nil || err != nil {
		t.Errorf("empty name = %v, %v", p, err)
	}
	if _, err := LoadNamedProfile(dir, "../etc/passwd"); err == nil {
		t.Error("expected error for path traversal")
	}
	if _, err := LoadNamedProfile(dir, "missing"); err == nil {
		t.Error("expected error for missing profile")
	}
}

// Package mdfiles is an MCP tool server giving the assistant access to a
// directory of markdown files, so it can pull in notes beyond the open document.
package mdfiles

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const maxReadBytes = 64 << 10

var markdownExts = map[string]bool{".md": true, ".markdown": true, ".mdx": true}

// New returns an MCP server exposing md_list, md_read, md_outline and md_write
// over the files under root.
func New(root string) *server.MCPServer {
	h := &handler{root: root}
	s := server.NewMCPServer("vibemd-md-files", "0.1.0")

	s.AddTool(mcp.Tool{
		Name:        "md_list",
		Description: "List markdown files in the notes directory, relative to its root.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"dir": map[string]any{
					"type":        "string",
					"description": "Subdirectory to list (optional)",
				},
			},
		},
	}, h.list)

	s.AddTool(mcp.Tool{
		Name:        "md_read",
		Description: "Read a markdown file from the notes directory.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "File path relative to the notes root",
				},
			},
			Required: []string{"path"},
		},
	}, h.read)

	s.AddTool(mcp.Tool{
		Name:        "md_outline",
		Description: "Return the heading outline of a markdown file.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "File path relative to the notes root",
				},
			},
			Required: []string{"path"},
		},
	}, h.outline)

	s.AddTool(mcp.Tool{
		Name:        "md_write",
		Description: "Create or overwrite a markdown file in the notes directory.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"path": map[string]any{
					"type":        "string",
					"description": "File path relative to the notes root, ending in .md",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "Markdown content to write",
				},
			},
			Required: []string{"path", "content"},
		},
	}, h.write)

	return s
}

type handler struct {
	root string
}

// resolve maps a client path into root, refusing anything that escapes it.
func (h *handler) resolve(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("'path' is required")
	}
	clean := filepath.Clean("/" + filepath.ToSlash(p))
	full := filepath.Join(h.root, filepath.FromSlash(clean))
	rel, err := filepath.Rel(h.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the notes directory", p)
	}
	return full, nil
}

func getArgs(request mcp.CallToolRequest) map[string]any {
	args, _ := request.Params.Arguments.(map[string]any)
	return args
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
	}
}

func errResult(format string, a ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "error: " + fmt.Sprintf(format, a...)}},
		IsError: true,
	}
}

func (h *handler) list(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dir, _ := getArgs(request)["dir"].(string)
	base := h.root
	if dir != "" {
		var err error
		if base, err = h.resolve(dir); err != nil {
			return errResult("%v", err), nil
		}
	}

	var files []string
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !markdownExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		rel, err := filepath.Rel(h.root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return errResult("listing %s: %v", dir, err), nil
	}
	sort.Strings(files)
	if len(files) == 0 {
		return textResult("(no markdown files)"), nil
	}
	return textResult(strings.Join(files, "\n")), nil
}

func (h *handler) read(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, _ := getArgs(request)["path"].(string)
	full, err := h.resolve(p)
	if err != nil {
		return errResult("%v", err), nil
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return errResult("reading %s: %v", p, err), nil
	}
	if len(data) > maxReadBytes {
		return textResult(string(data[:maxReadBytes]) + "\n... (truncated)"), nil
	}
	return textResult(string(data)), nil
}

func (h *handler) outline(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p, _ := getArgs(request)["path"].(string)
	full, err := h.resolve(p)
	if err != nil {
		return errResult("%v", err), nil
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return errResult("reading %s: %v", p, err), nil
	}
	return textResult(Outline(string(data))), nil
}

func (h *handler) write(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)
	p, _ := args["path"].(string)
	content, _ := args["content"].(string)

	full, err := h.resolve(p)
	if err != nil {
		return errResult("%v", err), nil
	}
	if !markdownExts[strings.ToLower(filepath.Ext(full))] {
		return errResult("only markdown files can be written, got %q", p), nil
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errResult("creating directories: %v", err), nil
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return errResult("writing %s: %v", p, err), nil
	}
	return textResult(fmt.Sprintf("wrote %d bytes to %s", len(content), p)), nil
}

// Outline lists the ATX headings of a markdown document, indented by level.
// Headings inside fenced code blocks are skipped.
func Outline(content string) string {
	var lines []string
	inFence := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence || !strings.HasPrefix(trimmed, "#") {
			continue
		}
		level := len(trimmed) - len(strings.TrimLeft(trimmed, "#"))
		title := strings.TrimSpace(trimmed[level:])
		if level > 6 || title == "" || !strings.HasPrefix(trimmed[level:], " ") {
			continue
		}
		lines = append(lines, strings.Repeat("  ", level-1)+"- "+title)
	}
	if len(lines) == 0 {
		return "(no headings)"
	}
	return strings.Join(lines, "\n")
}

package agent

import (
	"fmt"
	"math"

	"github.com/luyiourwong/vibe-markdown/internal/editor"
	"github.com/luyiourwong/vibe-markdown/internal/llm"
)

// Document tool names.
const (
	ToolReadDocument = "read_document"
	ToolReplaceText  = "replace_text"
	ToolInsertText   = "insert_text"
	ToolAppendText   = "append_text"
	ToolSetDocument  = "set_document"
)

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// documentTools returns the definitions of the tools that operate on the bound buffer.
func documentTools() []llm.ToolDef {
	return []llm.ToolDef{
		{
			Name:        ToolReadDocument,
			Description: "Return the full markdown source of the document the user is editing.",
			Parameters:  objectSchema(map[string]any{}),
		},
		{
			Name:        ToolReplaceText,
			Description: "Replace the first occurrence of an exact piece of text in the document. Read the document first and copy the search text verbatim.",
			Parameters: objectSchema(map[string]any{
				"search":  stringProp("Exact text to find"),
				"replace": stringProp("Text to put in its place (may be empty to delete)"),
			}, "search", "replace"),
		},
		{
			Name:        ToolInsertText,
			Description: "Insert text at a character offset (UTF-16 code units from the start of the document).",
			Parameters: objectSchema(map[string]any{
				"offset": map[string]any{"type": "integer", "description": "Offset to insert at, 0 is the start"},
				"text":   stringProp("Text to insert"),
			}, "offset", "text"),
		},
		{
			Name:        ToolAppendText,
			Description: "Append text to the end of the document.",
			Parameters: objectSchema(map[string]any{
				"text": stringProp("Text to append"),
			}, "text"),
		},
		{
			Name:        ToolSetDocument,
			Description: "Replace the entire document. Only use this when rewriting everything.",
			Parameters: objectSchema(map[string]any{
				"content": stringProp("New markdown source"),
			}, "content"),
		},
	}
}

// documentTool runs a document tool against the bound buffer. ok is false
// when name is not a document tool.
func (a *Agent) documentTool(name string, args map[string]any) (result string, ok bool) {
	var (
		r   editor.HighlightRange
		err error
	)
	switch name {
	case ToolReadDocument:
		text := a.doc.Text()
		if text == "" {
			return "(the document is empty)", true
		}
		return text, true
	case ToolReplaceText:
		search, serr := stringArg(args, "search")
		if serr != nil {
			return "error: " + serr.Error(), true
		}
		replace, _ := args["replace"].(string)
		r, err = a.doc.Replace(search, replace)
	case ToolInsertText:
		offset, oerr := intArg(args, "offset")
		if oerr != nil {
			return "error: " + oerr.Error(), true
		}
		text, terr := stringArg(args, "text")
		if terr != nil {
			return "error: " + terr.Error(), true
		}
		r, err = a.doc.Insert(offset, text)
	case ToolAppendText:
		text, terr := stringArg(args, "text")
		if terr != nil {
			return "error: " + terr.Error(), true
		}
		r = a.doc.Append(text)
	case ToolSetDocument:
		content, cerr := stringArg(args, "content")
		if cerr != nil {
			return "error: " + cerr.Error(), true
		}
		r = a.doc.SetText(content)
	default:
		return "", false
	}
	if err != nil {
		return "error: " + err.Error(), true
	}

	if a.OnHighlight != nil {
		a.OnHighlight(r)
	}
	return fmt.Sprintf("ok: edited range [%d, %d), document is now %d characters", r.Start, r.End, editor.Len16(a.doc.Text())), true
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok {
		return "", fmt.Errorf("'%s' argument must be a string", key)
	}
	return v, nil
}

// intArg accepts JSON numbers and rejects fractional values.
func intArg(args map[string]any, key string) (int, error) {
	v, ok := args[key].(float64)
	if !ok || v != math.Trunc(v) {
		return 0, fmt.Errorf("'%s' argument must be an integer", key)
	}
	return int(v), nil
}

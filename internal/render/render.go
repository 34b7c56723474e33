// Package render turns markdown into the preview HTML shown by the web UI and
// into styled text for the terminal.
package render

import (
	"bytes"
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"github.com/luyiourwong/vibe-markdown/internal/editor"
)

// Terminal styles accepted by Terminal.
const (
	StyleAuto  = "auto"
	StyleDark  = "dark"
	StyleLight = "light"
	StyleNoTTY = "notty"
)

var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

// HTML renders GitHub-flavored markdown to HTML. Raw HTML in the source is
// dropped.
func HTML(source string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return buf.String(), nil
}

// Terminal renders markdown for display in a terminal of the given width.
func Terminal(source string, width int, style string) (string, error) {
	if width <= 0 {
		width = 80
	}
	styleOpt := glamour.WithStandardStyle(style)
	if style == "" || style == StyleAuto {
		styleOpt = glamour.WithAutoStyle()
	}

	r, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width))
	if err != nil {
		return "", fmt.Errorf("creating terminal renderer: %w", err)
	}
	out, err := r.Render(source)
	if err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return out, nil
}

// View is what the editing surface shows for a document in a view mode.
type View struct {
	Mode   editor.ViewMode `json:"mode"`
	Source string          `json:"source,omitempty"`
	HTML   string          `json:"html,omitempty"`
}

// ForMode builds the view of doc for mode. An empty mode uses the document's own.
func ForMode(doc *editor.Document, mode editor.ViewMode) (*View, error) {
	if mode == "" {
		mode = doc.ViewMode
	}
	if mode == "" {
		mode = editor.ViewSplit
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", editor.ErrInvalidViewMode, mode)
	}

	v := &View{Mode: mode}
	if mode.ShowsSource() {
		v.Source = doc.Content
	}
	if mode.ShowsPreview() {
		html, err := HTML(doc.Content)
		if err != nil {
			return nil, err
		}
		v.HTML = html
	}
	return v, nil
}

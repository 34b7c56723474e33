package storage

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/luyiourwong/vibe-markdown/internal/i18n"
	"github.com/luyiourwong/vibe-markdown/internal/llm"
)

// ExportMarkdown renders a session and its messages as a markdown document,
// with headings in the session's language.
func ExportMarkdown(sess *Session, messages []llm.Message) string {
	lang := sess.Lang
	if !lang.Valid() {
		lang = i18n.Default
	}
	var b strings.Builder

	title := sess.Title
	if title == "" {
		title = i18n.T(lang, i18n.KeyUntitled)
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "- **%s:** %s\n", i18n.T(lang, i18n.KeySession), sess.ID)
	if sess.DocumentID != "" {
		fmt.Fprintf(&b, "- **%s:** %s\n", i18n.T(lang, i18n.KeyDocument), sess.DocumentID)
	}
	fmt.Fprintf(&b, "- **%s:** %s\n", i18n.T(lang, i18n.KeyModel), sess.Model)
	fmt.Fprintf(&b, "- **%s:** %s\n", i18n.T(lang, i18n.KeyCreated), sess.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "- **%s:** %s\n", i18n.T(lang, i18n.KeyStatus), sess.Status)
	b.WriteString("\n---\n\n")

	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			continue
		case llm.RoleUser:
			fmt.Fprintf(&b, "## %s\n\n%s\n\n", i18n.T(lang, i18n.KeyYou), m.Text())
		case llm.RoleAssistant:
			if m.Text() != "" {
				fmt.Fprintf(&b, "## %s\n\n%s\n\n", i18n.T(lang, i18n.KeyAssistant), m.Text())
			}
			for _, tc := range m.ToolCalls {
				fmt.Fprintf(&b, "**%s:** `%s`\n```json\n%s\n```\n\n", i18n.T(lang, i18n.KeyToolCall), tc.Name(), tc.Function.Arguments)
			}
		case llm.RoleTool:
			summary := i18n.T(lang, i18n.KeyToolResult)
			if m.Name != "" {
				summary += " (" + m.Name + ")"
			}
			fmt.Fprintf(&b, "<details>\n<summary>%s</summary>\n\n```\n%s\n```\n</details>\n\n", summary, m.Text())
		}
	}

	return b.String()
}

// ExportJSON renders a session and its messages as formatted JSON.
func ExportJSON(sess *Session, messages []llm.Message) ([]byte, error) {
	if messages == nil {
		messages = []llm.Message{}
	}
	export := struct {
		Session  *Session      `json:"session"`
		Messages []llm.Message `json:"messages"`
	}{
		Session:  sess,
		Messages: messages,
	}
	return json.MarshalIndent(export, "", "  ")
}

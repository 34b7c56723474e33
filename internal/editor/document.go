package editor

import (
	"strings"
	"time"
	"unicode/utf8"
)

const maxTitleLen = 80

// Document is a stored markdown document together with its UI state.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	ViewMode  ViewMode  `json:"viewMode"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TitleFromContent picks a title: the first heading, else the first non-empty line.
func TitleFromContent(content string) string {
	var first string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if t := strings.TrimSpace(strings.TrimLeft(line, "#")); t != "" {
				return truncateTitle(t)
			}
			continue
		}
		if first == "" {
			first = line
		}
	}
	return truncateTitle(first)
}

func truncateTitle(s string) string {
	if utf8.RuneCountInString(s) <= maxTitleLen {
		return s
	}
	return string([]rune(s)[:maxTitleLen]) + "..."
}

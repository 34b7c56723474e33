package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/luyiourwong/vibe-markdown/internal/i18n"
	"github.com/luyiourwong/vibe-markdown/internal/llm"
)

// maxSummaryChars caps the stored summary at roughly 1000 tokens.
const maxSummaryChars = 4000

// tokenCount approximates the tokens in s. ASCII text runs about four
// characters per token; CJK and other non-ASCII text about one.
func tokenCount(s string) int {
	ascii, other := 0, 0
	for _, r := range s {
		if r < utf8.RuneSelf {
			ascii++
		} else {
			other++
		}
	}
	return ascii/4 + other
}

// estimateTokens returns an approximate token count for a message,
// at least 1 for the role overhead.
func estimateTokens(m llm.Message) int {
	tokens := tokenCount(m.Text())
	for _, tc := range m.ToolCalls {
		tokens += tokenCount(tc.Function.Name) + tokenCount(tc.Function.Arguments)
	}
	return max(tokens, 1)
}

func estimateHistoryTokens(messages []llm.Message) int {
	total := 0
	for _, m := range messages {
		total += estimateTokens(m)
	}
	return total
}

// findSplitPoint returns the index where the recent part of the history
// begins, so that the recent part fits recentTokenBudget. The split always
// lands on a user message so tool calls stay with their results. It returns
// len(messages) when nothing should be compacted.
func findSplitPoint(messages []llm.Message, recentTokenBudget int) int {
	if len(messages) <= 2 {
		return len(messages)
	}

	tokens := 0
	splitIdx := -1
	for i := len(messages) - 1; i >= 1; i-- {
		tokens += estimateTokens(messages[i])
		if tokens > recentTokenBudget {
			splitIdx = i + 1
			break
		}
	}
	if splitIdx < 0 {
		return len(messages)
	}
	splitIdx = min(splitIdx, len(messages)-1)

	for splitIdx > 1 && messages[splitIdx].Role != llm.RoleUser {
		splitIdx--
	}
	if splitIdx <= 1 {
		return len(messages)
	}
	return splitIdx
}

// transcript renders messages for the summarizer. Full document dumps from
// read_document are left out since the document is reloaded each turn.
func transcript(messages []llm.Message) string {
	var b strings.Builder
	for _, m := range messages {
		switch {
		case m.Role == llm.RoleTool && m.Name == ToolReadDocument:
			fmt.Fprintf(&b, "[tool %s]: (document text omitted)\n", m.Name)
		case m.Role == llm.RoleTool:
			fmt.Fprintf(&b, "[tool %s]: %s\n", m.Name, m.Text())
		default:
			fmt.Fprintf(&b, "[%s]: %s\n", m.Role, m.Text())
		}
		for _, tc := range m.ToolCalls {
			if tc.Name() == ToolSetDocument {
				fmt.Fprintf(&b, "  -> %s(...)\n", tc.Name())
				continue
			}
			fmt.Fprintf(&b, "  -> %s(%s)\n", tc.Name(), tc.Function.Arguments)
		}
	}
	return b.String()
}

// summarizeMessages asks client for a summary of messages written in lang.
func summarizeMessages(ctx context.Context, client llm.Client, lang i18n.Lang, messages []llm.Message) (string, error) {
	prompt := []llm.Message{
		llm.SystemMessage(i18n.T(lang, i18n.KeySummaryPrompt)),
		llm.UserMessage(transcript(messages)),
	}

	resp, err := client.ChatCompletion(ctx, prompt, nil)
	if err != nil {
		return "", fmt.Errorf("summarizing history: %w", err)
	}

	summary := strings.TrimSpace(resp.Message.Text())
	if summary == "" {
		return "", errors.New("summarizing history: empty summary")
	}
	if len(summary) > maxSummaryChars {
		summary = strings.ToValidUTF8(summary[:maxSummaryChars], "") + "\n..."
	}
	return summary, nil
}

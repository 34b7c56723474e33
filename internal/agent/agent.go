package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/luyiourwong/vibe-markdown/internal/editor"
	"github.com/luyiourwong/vibe-markdown/internal/i18n"
	"github.com/luyiourwong/vibe-markdown/internal/llm"
	"github.com/luyiourwong/vibe-markdown/internal/tools"
)

// Agent manages a conversation about a markdown document and executes the
// tool-calling loop.
type Agent struct {
	llm        llm.Client
	utilityLLM llm.Client // optional, for summarization
	registry   *tools.Registry
	doc        *editor.Buffer
	lang       i18n.Lang
	history    []llm.Message
	allowed    map[string]bool // nil means every tool
	maxIter    int
	maxTokens  int

	OnToolCall   func(name string, args map[string]any)
	OnToolResult func(name string, result string)
	OnTextDelta  func(delta string)
	OnHighlight  func(r editor.HighlightRange)
}

const defaultMaxTokens = 6000

// New creates an Agent that answers in lang. registry may be nil.
func New(client llm.Client, registry *tools.Registry, maxIterations int, lang i18n.Lang) *Agent {
	if !lang.Valid() {
		lang = i18n.Default
	}
	return &Agent{
		llm:       client,
		registry:  registry,
		lang:      lang,
		maxIter:   maxIterations,
		maxTokens: defaultMaxTokens,
		history: []llm.Message{
			llm.SystemMessage(i18n.T(lang, i18n.KeySystemPrompt)),
		},
	}
}

// Lang returns the language the agent was created with.
func (a *Agent) Lang() i18n.Lang {
	return a.lang
}

// SetSystemPrompt overrides the default system prompt.
func (a *Agent) SetSystemPrompt(prompt string) {
	if prompt != "" {
		a.history[0] = llm.SystemMessage(prompt)
	}
}

// SetDocument binds the agent to a buffer, enabling the document tools.
// A nil buffer detaches it.
func (a *Agent) SetDocument(doc *editor.Buffer) {
	a.doc = doc
}

// Document returns the bound buffer, or nil.
func (a *Agent) Document() *editor.Buffer {
	return a.doc
}

// FilterTools restricts available tools to the given names.
func (a *Agent) FilterTools(names []string) {
	if len(names) == 0 {
		return
	}
	a.allowed = make(map[string]bool, len(names))
	for _, n := range names {
		a.allowed[n] = true
	}
}

// ApplyProfile applies a profile's prompt, tool allow-list and iteration limit.
// The profile model is resolved by the caller, which owns the client.
func (a *Agent) ApplyProfile(p *Profile) {
	if p == nil {
		return
	}
	a.SetSystemPrompt(p.SystemPrompt)
	a.FilterTools(p.Tools)
	if p.MaxIter > 0 {
		a.maxIter = p.MaxIter
	}
}

// SetMaxTokens sets the context window token budget for history compaction.
func (a *Agent) SetMaxTokens(maxTokens int) {
	if maxTokens > 0 {
		a.maxTokens = maxTokens
	}
}

// SetUtilityLLM sets an optional lightweight LLM client for summarization.
func (a *Agent) SetUtilityLLM(client llm.Client) {
	a.utilityLLM = client
}

// SetClient swaps the main conversation LLM client (for mid-session model switching).
func (a *Agent) SetClient(client llm.Client) {
	a.llm = client
}

// Tools returns the definitions offered to the LLM: document tools when a
// buffer is bound, then registry tools whose names the document tools do not
// already use. The allow-list applies to both.
func (a *Agent) Tools() []llm.ToolDef {
	var defs []llm.ToolDef
	seen := map[string]bool{}
	if a.doc != nil {
		for _, t := range documentTools() {
			seen[t.Name] = true
			defs = append(defs, t)
		}
	}
	if a.registry != nil {
		for _, t := range a.registry.AllTools() {
			if seen[t.Name] {
				log.Printf("tool %s shadowed by document tool", t.Name)
				continue
			}
			defs = append(defs, t)
		}
	}
	if a.allowed == nil {
		return defs
	}
	filtered := defs[:0]
	for _, t := range defs {
		if a.allowed[t.Name] {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// compactHistory summarizes older messages when history exceeds the token budget.
func (a *Agent) compactHistory(ctx context.Context) error {
	total := estimateHistoryTokens(a.history)
	if total <= a.maxTokens {
		return nil
	}

	// Keep recent messages within 60% of budget
	recentBudget := a.maxTokens * 60 / 100
	splitIdx := findSplitPoint(a.history, recentBudget)
	if splitIdx >= len(a.history) {
		return nil
	}

	// Old messages are indices 1 through splitIdx-1 (skip system prompt at 0)
	oldMessages := a.history[1:splitIdx]
	if len(oldMessages) == 0 {
		return nil
	}

	summarizer := a.llm
	if a.utilityLLM != nil {
		summarizer = a.utilityLLM
	}
	summary, err := summarizeMessages(ctx, summarizer, a.lang, oldMessages)
	if err != nil {
		log.Printf("summarizing history: %v; trimming instead", err)
		a.trimHistory(10)
		return nil
	}

	summaryMsg := llm.SystemMessage(i18n.T(a.lang, i18n.KeySummaryHeader) + "\n" + summary)
	newHistory := make([]llm.Message, 0, 2+len(a.history)-splitIdx)
	newHistory = append(newHistory, a.history[0])
	newHistory = append(newHistory, summaryMsg)
	newHistory = append(newHistory, a.history[splitIdx:]...)
	a.history = newHistory

	return nil
}

type completeFunc func(ctx context.Context, msgs []llm.Message, defs []llm.ToolDef) (*llm.Response, error)

// Run sends a user message and executes the full tool-calling loop.
// Returns the final assistant text response.
func (a *Agent) Run(ctx context.Context, userMessage string) (string, error) {
	return a.loop(ctx, userMessage, a.llm.ChatCompletion)
}

// RunStreaming is like Run but streams text output token-by-token via OnTextDelta.
func (a *Agent) RunStreaming(ctx context.Context, userMessage string) (string, error) {
	return a.loop(ctx, userMessage, func(ctx context.Context, msgs []llm.Message, defs []llm.ToolDef) (*llm.Response, error) {
		return a.llm.ChatCompletionStream(ctx, msgs, defs, a.OnTextDelta)
	})
}

func (a *Agent) loop(ctx context.Context, userMessage string, complete completeFunc) (string, error) {
	a.compactHistory(ctx)
	a.history = append(a.history, llm.UserMessage(userMessage))
	defs := a.Tools()

	for i := 0; i < a.maxIter; i++ {
		resp, err := complete(ctx, a.history, defs)
		if err != nil {
			return "", fmt.Errorf("llm call (iteration %d): %w", i+1, err)
		}

		a.history = append(a.history, resp.Message)

		if len(resp.Message.ToolCalls) == 0 {
			return resp.Message.Text(), nil
		}

		for _, tc := range resp.Message.ToolCalls {
			args := tc.Args()
			if a.OnToolCall != nil {
				a.OnToolCall(tc.Name(), args)
			}

			result := a.executeTool(ctx, tc.Name(), args)

			if a.OnToolResult != nil {
				a.OnToolResult(tc.Name(), result)
			}

			a.history = append(a.history, llm.ToolResultMessage(tc.ID, tc.Name(), result))
		}
	}

	return "", fmt.Errorf("agent reached max iterations (%d) without a final response", a.maxIter)
}

// executeTool dispatches a tool call to the document tools or the registry.
// Failures are reported to the LLM as the result text.
func (a *Agent) executeTool(ctx context.Context, name string, args map[string]any) string {
	if a.allowed != nil && !a.allowed[name] {
		return fmt.Sprintf("error: tool %q is not available", name)
	}
	if a.doc != nil {
		if result, ok := a.documentTool(name, args); ok {
			return result
		}
	}
	if a.registry != nil && a.registry.Has(name) {
		result, err := a.registry.CallTool(ctx, name, args)
		if err != nil {
			return fmt.Sprintf("error: %s", err)
		}
		return result
	}
	return fmt.Sprintf("error: unknown tool %q", name)
}

// History returns the current conversation history.
func (a *Agent) History() []llm.Message {
	return a.history
}

// HistoryJSON returns the conversation as formatted JSON (for debugging).
func (a *Agent) HistoryJSON() string {
	data, _ := json.MarshalIndent(a.history, "", "  ")
	return string(data)
}

// trimHistory keeps the system message and the last keepLast messages,
// dropping leading tool results whose calls were cut off.
func (a *Agent) trimHistory(keepLast int) {
	if len(a.history) <= keepLast+1 {
		return
	}
	system := a.history[0]
	recent := a.history[len(a.history)-keepLast:]
	for len(recent) > 0 && recent[0].Role == llm.RoleTool {
		recent = recent[1:]
	}
	a.history = append([]llm.Message{system}, recent...)
}

// SetHistory replaces the conversation history (used when resuming a session).
// A history without a leading system message gets the current one prepended.
func (a *Agent) SetHistory(messages []llm.Message) {
	if len(messages) == 0 || messages[0].Role != llm.RoleSystem {
		messages = append([]llm.Message{a.history[0]}, messages...)
	}
	a.history = messages
}

// Reset clears conversation history (keeps system prompt).
func (a *Agent) Reset() {
	a.history = a.history[:1]
}

// String returns a summary of the agent state.
func (a *Agent) String() string {
	return fmt.Sprintf("Agent(lang=%s, tools=%d, history=%d messages, maxIter=%d)",
		a.lang, len(a.Tools()), len(a.history), a.maxIter)
}

// FormatToolCall returns a human-readable string for a tool call.
func FormatToolCall(name string, args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := fmt.Sprintf("%v", args[k])
		if r := []rune(v); len(r) > 60 {
			v = string(r[:57]) + "..."
		}
		parts = append(parts, fmt.Sprintf("%s=%s", k, v))
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(parts, ", "))
}

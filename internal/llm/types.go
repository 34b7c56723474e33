package llm

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidRole is returned when a role is outside the supported set.
var ErrInvalidRole = errors.New("invalid message role")

// ErrUnmatchedToolResult is returned by CheckToolResults.
var ErrUnmatchedToolResult = errors.New("unmatched tool result")

// Role represents a chat message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Roles lists every supported role.
var Roles = []Role{RoleUser, RoleAssistant, RoleSystem, RoleTool}

// Valid reports whether r is one of the supported roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// ParseRole converts s to a Role, rejecting anything outside the supported set.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Message is a single message in a conversation.
// Content is nil for assistant turns that only carry tool calls.
type Message struct {
	Role       Role       `json:"role"`
	Content    *string    `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool result messages
	Name       string     `json:"name,omitempty"`         // Tool or sub-agent that produced the message
}

// Text returns the message content, or "" when content is absent.
func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// Validate checks the message role.
func (m Message) Validate() error {
	if !m.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, m.Role)
	}
	return nil
}

// ToolCall is a tool invocation requested by the LLM, in the OpenAI wire shape.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the function to call and carries its raw JSON arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// NewToolCall builds a function tool call, encoding args as JSON.
func NewToolCall(id, name string, args map[string]any) ToolCall {
	argsJSON, _ := json.Marshal(args)
	if args == nil {
		argsJSON = []byte("{}")
	}
	return ToolCall{
		ID:       id,
		Type:     "function",
		Function: FunctionCall{Name: name, Arguments: string(argsJSON)},
	}
}

// Name returns the called function name.
func (tc ToolCall) Name() string {
	return tc.Function.Name
}

// Args decodes the arguments. Undecodable arguments are returned under "_raw".
func (tc ToolCall) Args() map[string]any {
	if tc.Function.Arguments == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil || args == nil {
		return map[string]any{"_raw": tc.Function.Arguments}
	}
	return args
}

// CheckToolResults verifies that every tool message answers a tool call made
// by an earlier assistant message.
func CheckToolResults(messages []Message) error {
	seen := make(map[string]bool)
	for i, m := range messages {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		for _, tc := range m.ToolCalls {
			if tc.ID != "" {
				seen[tc.ID] = true
			}
		}
		if m.Role != RoleTool {
			continue
		}
		if m.ToolCallID == "" {
			return fmt.Errorf("message %d: %w: missing tool_call_id", i, ErrUnmatchedToolResult)
		}
		if !seen[m.ToolCallID] {
			return fmt.Errorf("message %d: %w: tool_call_id %q does not match any earlier tool call", i, ErrUnmatchedToolResult, m.ToolCallID)
		}
	}
	return nil
}

// ToolDef defines a tool that the LLM can call.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Response is the result of a chat completion call.
type Response struct {
	Message Message
}

// ModelInfo describes a model available on the endpoint.
type ModelInfo struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by,omitempty"`
	Created int64  `json:"created,omitempty"`
}

// Helper constructors

func text(s string) *string {
	return &s
}

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: text(content)}
}

func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: text(content)}
}

func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: text(content)}
}

// ToolCallMessage is an assistant turn that only invokes tools.
func ToolCallMessage(calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, ToolCalls: calls}
}

func ToolResultMessage(toolCallID, name, content string) Message {
	return Message{Role: RoleTool, Content: text(content), ToolCallID: toolCallID, Name: name}
}

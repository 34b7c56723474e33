package llm

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseRole(t *testing.T) {
	for _, r := range Roles {
		got, err := ParseRole(string(r))
		if err != nil {
			t.Errorf("ParseRole(%q) error = %v", r, err)
		}
		if got != r {
			t.Errorf("ParseRole(%q) = %q", r, got)
		}
	}

	for _, bad := range []string{"bot", "", "User", "function"} {
		if _, err := ParseRole(bad); !errors.Is(err, ErrInvalidRole) {
			t.Errorf("ParseRole(%q) error = %v, want ErrInvalidRole", bad, err)
		}
	}
}

func TestMessageUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		check   func(t *testing.T, m Message)
	}{
		{
			name:  "tool result",
			input: `{"role":"tool","content":"result text","tool_call_id":"call_123","name":"search"}`,
			check: func(t *testing.T, m Message) {
				if m.Role != RoleTool || m.Text() != "result text" {
					t.Errorf("got role=%q content=%q", m.Role, m.Text())
				}
				if m.ToolCallID != "call_123" || m.Name != "search" {
					t.Errorf("got tool_call_id=%q name=%q", m.ToolCallID, m.Name)
				}
			},
		},
		{
			name:  "assistant with only tool calls",
			input: `{"role":"assistant","content":null,"tool_calls":[{"id":"call_1","type":"function","function":{"name":"search","arguments":"{\"q\":\"go\"}"}}]}`,
			check: func(t *testing.T, m Message) {
				if m.Content != nil {
					t.Errorf("content = %q, want nil", *m.Content)
				}
				if len(m.ToolCalls) != 1 {
					t.Fatalf("got %d tool calls, want 1", len(m.ToolCalls))
				}
				if got := m.ToolCalls[0].Args()["q"]; got != "go" {
					t.Errorf("args[q] = %v, want go", got)
				}
			},
		},
		{
			name:  "missing content",
			input: `{"role":"user"}`,
			check: func(t *testing.T, m Message) {
				if m.Content != nil {
					t.Error("expected nil content")
				}
			},
		},
		{
			name:    "unknown role",
			input:   `{"role":"bot","content":"hi"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Message
			err := json.Unmarshal([]byte(tt.input), &m)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !errors.Is(err, ErrInvalidRole) {
					t.Errorf("error = %v, want ErrInvalidRole", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if err := m.Validate(); err != nil {
				t.Errorf("Validate: %v", err)
			}
			tt.check(t, m)
		})
	}
}

func TestMessageMarshalNullContent(t *testing.T) {
	m := ToolCallMessage(NewToolCall("call_1", "read_document", nil))
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"content":null`) {
		t.Errorf("expected null content in %s", s)
	}
	if !strings.Contains(s, `"arguments":"{}"`) {
		t.Errorf("expected empty arguments object in %s", s)
	}
	if strings.Contains(s, "tool_call_id") {
		t.Errorf("unexpected tool_call_id in %s", s)
	}
}

func TestMessageValidate(t *testing.T) {
	if err := (Message{Role: "bot"}).Validate(); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("Validate() = %v, want ErrInvalidRole", err)
	}
	if err := UserMessage("hi").Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestToolCallArgs(t *testing.T) {
	tc := ToolCall{Function: FunctionCall{Name: "x", Arguments: "not json"}}
	if got := tc.Args()["_raw"]; got != "not json" {
		t.Errorf("_raw = %v", got)
	}
	if got := (ToolCall{}).Args(); len(got) != 0 {
		t.Errorf("empty arguments = %v, want empty map", got)
	}
}

func TestCheckToolResults(t *testing.T) {
	call := NewToolCall("call_1", "search", map[string]any{"q": "go"})

	tests := []struct {
		name     string
		messages []Message
		wantErr  string
	}{
		{
			name: "matched",
			messages: []Message{
				UserMessage("find go"),
				ToolCallMessage(call),
				ToolResultMessage("call_1", "search", "found"),
				AssistantMessage("done"),
			},
		},
		{
			name: "unknown id",
			messages: []Message{
				ToolCallMessage(call),
				ToolResultMessage("call_2", "search", "found"),
			},
			wantErr: "does not match",
		},
		{
			name: "result before call",
			messages: []Message{
				ToolResultMessage("call_1", "search", "found"),
				ToolCallMessage(call),
			},
			wantErr: "does not match",
		},
		{
			name:     "missing id",
			messages: []Message{{Role: RoleTool, Content: text("x")}},
			wantErr:  "missing tool_call_id",
		},
		{
			name:     "bad role",
			messages: []Message{{Role: "bot"}},
			wantErr:  "invalid message role",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckToolResults(tt.messages)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("CheckToolResults() = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("CheckToolResults() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

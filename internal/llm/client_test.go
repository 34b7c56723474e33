package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const toolCallCompletion = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1,
  "model": "test-model",
  "choices": [{
    "index": 0,
    "finish_reason": "tool_calls",
    "message": {
      "role": "assistant",
      "content": null,
      "tool_calls": [{
        "id": "call_1",
        "type": "function",
        "function": {"name": "search", "arguments": "{\"q\":\"go\"}"}
      }]
    }
  }]
}`

func TestChatCompletionToolCalls(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, toolCallCompletion)
	}))
	defer srv.Close()

	c := NewClient(Settings{APIURL: srv.URL + "/v1", APIKey: "sk-test", Model: "test-model"})
	resp, err := c.ChatCompletion(context.Background(), []Message{
		SystemMessage("be brief"),
		{Role: RoleUser, Content: text("find go"), Name: "alice"},
	}, []ToolDef{{Name: "search", Description: "search", Parameters: map[string]any{"type": "object"}}})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}

	if body["model"] != "test-model" {
		t.Errorf("model = %v", body["model"])
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("sent %d messages, want 2", len(msgs))
	}
	if user, _ := msgs[1].(map[string]any); user["name"] != "alice" {
		t.Errorf("user name = %v, want alice", user["name"])
	}

	m := resp.Message
	if m.Role != RoleAssistant {
		t.Errorf("role = %q", m.Role)
	}
	if m.Content != nil {
		t.Errorf("content = %q, want nil", *m.Content)
	}
	if len(m.ToolCalls) != 1 || m.ToolCalls[0].ID != "call_1" || m.ToolCalls[0].Name() != "search" {
		t.Fatalf("tool calls = %+v", m.ToolCalls)
	}
}

func TestChatCompletionNoRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"message":"bad model","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	c := NewClient(Settings{APIURL: srv.URL, APIKey: "k", Model: "nope"})
	_, err := c.ChatCompletion(context.Background(), []Message{UserMessage("hi")}, nil)
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("ChatCompletion() error = %v, want ErrUpstream", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server called %d times, want 1", n)
	}
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models") {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"object":"list","data":[{"id":"m1","object":"model","created":1,"owned_by":"me"},{"id":"m2","object":"model","created":2,"owned_by":"me"}]}`)
	}))
	defer srv.Close()

	c := NewClient(Settings{APIURL: srv.URL + "/v1/", APIKey: "k", Model: "m1"})
	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(models) != 2 || models[0].ID != "m1" || models[1].OwnedBy != "me" {
		t.Errorf("models = %+v", models)
	}
}

func fastRetries(t *testing.T) {
	t.Helper()
	old := retryDelay
	retryDelay = time.Millisecond
	t.Cleanup(func() { retryDelay = old })
}

func TestRetryWait(t *testing.T) {
	if got := retryWait(0); got != 2*time.Second {
		t.Errorf("first wait = %s, want 2s", got)
	}
	if got := retryWait(1); got != 4*time.Second {
		t.Errorf("second wait = %s, want 4s", got)
	}
}

const textCompletion = `{"id":"chatcmpl-2","object":"chat.completion","created":1,"model":"test-model",
"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"hi"}}]}`

func TestChatCompletionRetriesRateLimit(t *testing.T) {
	fastRetries(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			io.WriteString(w, `{"error":{"message":"slow down","type":"rate_limit_error"}}`)
			return
		}
		io.WriteString(w, textCompletion)
	}))
	defer srv.Close()

	c := NewClient(Settings{APIURL: srv.URL, APIKey: "k", Model: "test-model"})
	resp, err := c.ChatCompletion(context.Background(), []Message{UserMessage("hello")}, nil)
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}
	if resp.Message.Text() != "hi" {
		t.Errorf("content = %q, want hi", resp.Message.Text())
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("server called %d times, want 2", n)
	}
}

func TestChatCompletionGivesUpOnRateLimit(t *testing.T) {
	fastRetries(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"message":"slow down","type":"rate_limit_error"}}`)
	}))
	defer srv.Close()

	c := NewClient(Settings{APIURL: srv.URL, APIKey: "k", Model: "test-model"})
	_, err := c.ChatCompletion(context.Background(), []Message{UserMessage("hello")}, nil)
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("error = %v, want ErrUpstream", err)
	}
	if n := calls.Load(); n != maxAttempts {
		t.Errorf("server called %d times, want %d", n, maxAttempts)
	}
}

func sseServer(t *testing.T, chunks ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		io.WriteString(w, "data: [DONE]\n\n")
	}))
}

func TestChatCompletionStreamText(t *testing.T) {
	srv := sseServer(t,
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"},"finish_reason":null}]}`,
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":null}]}`,
		`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
	)
	defer srv.Close()

	var deltas []string
	c := NewClient(Settings{APIURL: srv.URL, APIKey: "k", Model: "m"})
	resp, err := c.ChatCompletionStream(context.Background(), []Message{UserMessage("hi")}, nil, func(d string) {
		deltas = append(deltas, d)
	})
	if err != nil {
		t.Fatalf("ChatCompletionStream: %v", err)
	}
	if strings.Join(deltas, "|") != "Hel|lo" {
		t.Errorf("deltas = %q", deltas)
	}
	if resp.Message.Text() != "Hello" {
		t.Errorf("content = %q, want Hello", resp.Message.Text())
	}
}

func TestChatCompletionStreamToolCall(t *testing.T) {
	srv := sseServer(t,
		`{"id":"c2","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"role":"assistant","tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"read_document","arguments":""}}]},"finish_reason":null}]}`,
		`{"id":"c2","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{}"}}]},"finish_reason":null}]}`,
		`{"id":"c2","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
	)
	defer srv.Close()

	var deltas int
	c := NewClient(Settings{APIURL: srv.URL, APIKey: "k", Model: "m"})
	resp, err := c.ChatCompletionStream(context.Background(), []Message{UserMessage("read it")}, nil, func(string) {
		deltas++
	})
	if err != nil {
		t.Fatalf("ChatCompletionStream: %v", err)
	}
	if deltas != 0 {
		t.Errorf("got %d text deltas for a tool-call turn", deltas)
	}
	m := resp.Message
	if m.Content != nil {
		t.Errorf("content = %q, want nil", *m.Content)
	}
	if len(m.ToolCalls) != 1 {
		t.Fatalf("tool calls = %+v", m.ToolCalls)
	}
	tc := m.ToolCalls[0]
	if tc.ID != "call_1" || tc.Name() != "read_document" || tc.Function.Arguments != "{}" {
		t.Errorf("tool call = %+v", tc)
	}
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"
)

// Client is the interface for LLM interactions.
type Client interface {
	ChatCompletion(ctx context.Context, messages []Message, tools []ToolDef) (*Response, error)
	ChatCompletionStream(ctx context.Context, messages []Message, tools []ToolDef, handler StreamHandler) (*Response, error)
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// ErrUpstream marks failures reported by, or on the way to, the remote endpoint.
var ErrUpstream = errors.New("upstream error")

func upstream(err error) error {
	return fmt.Errorf("%w: %w", ErrUpstream, err)
}

// maxAttempts bounds retries on HTTP 429.
const maxAttempts = 3

// OpenAICompatClient works with any OpenAI-compatible chat completions API.
type OpenAICompatClient struct {
	client   *openai.Client
	settings Settings
}

// NewClient creates an LLM client for the given connection settings.
func NewClient(s Settings) *OpenAICompatClient {
	baseURL := s.APIURL
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(s.APIKey),
		option.WithMaxRetries(0),
	)
	return &OpenAICompatClient{
		client:   &client,
		settings: s,
	}
}

func (c *OpenAICompatClient) params(messages []Message, tools []ToolDef) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    c.settings.Model,
		Messages: convertMessages(messages),
	}
	if len(tools) > 0 {
		params.Tools = convertTools(tools)
	}
	return params
}

func (c *OpenAICompatClient) ChatCompletion(ctx context.Context, messages []Message, tools []ToolDef) (*Response, error) {
	params := c.params(messages, tools)

	var completion *openai.ChatCompletion
	var err error
	for attempt := range maxAttempts {
		completion, err = c.client.Chat.Completions.New(ctx, params)
		if err == nil {
			break
		}
		if !isRateLimited(err) || attempt == maxAttempts-1 {
			return nil, fmt.Errorf("chat completion: %w", upstream(err))
		}
		if err := backoff(ctx, attempt); err != nil {
			return nil, fmt.Errorf("chat completion: %w", err)
		}
	}

	if len(completion.Choices) == 0 {
		return nil, upstream(errors.New("no choices returned"))
	}
	return &Response{Message: fromCompletion(completion.Choices[0].Message)}, nil
}

// isRateLimited reports whether err is an API error with status 429.
func isRateLimited(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// retryDelay is the wait before the first retry; each later one doubles it.
var retryDelay = 2 * time.Second

func retryWait(attempt int) time.Duration {
	return retryDelay << attempt
}

// backoff waits 2s, 4s, ... before the next attempt.
func backoff(ctx context.Context, attempt int) error {
	wait := retryWait(attempt)
	log.Printf("llm: rate limited, retrying in %s", wait)
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func fromCompletion(msg openai.ChatCompletionMessage) Message {
	out := Message{Role: RoleAssistant}
	if msg.Content != "" || len(msg.ToolCalls) == 0 {
		out.Content = text(msg.Content)
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	return out
}

func convertMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			msg := openai.SystemMessage(m.Text())
			if m.Name != "" {
				msg.OfSystem.Name = param.NewOpt(m.Name)
			}
			out = append(out, msg)
		case RoleUser:
			msg := openai.UserMessage(m.Text())
			if m.Name != "" {
				msg.OfUser.Name = param.NewOpt(m.Name)
			}
			out = append(out, msg)
		case RoleAssistant:
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if m.Content != nil {
				assistant.Content.OfString = param.NewOpt(*m.Content)
			}
			if m.Name != "" {
				assistant.Name = param.NewOpt(m.Name)
			}
			for _, tc := range m.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &assistant,
			})
		case RoleTool:
			out = append(out, openai.ToolMessage(m.Text(), m.ToolCallID))
		}
	}
	return out
}

func convertTools(tools []ToolDef) []openai.ChatCompletionToolParam {
	var out []openai.ChatCompletionToolParam
	for _, t := range tools {
		out = append(out, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Name,
				Description: param.NewOpt(t.Description),
				Parameters:  shared.FunctionParameters(t.Parameters),
			},
		})
	}
	return out
}

// ListModels queries the endpoint's /models listing.
func (c *OpenAICompatClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	iter := c.client.Models.ListAutoPaging(ctx)
	var models []ModelInfo
	for iter.Next() {
		m := iter.Current()
		models = append(models, ModelInfo{
			ID:      m.ID,
			OwnedBy: m.OwnedBy,
			Created: m.Created,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("listing models: %w", upstream(err))
	}
	return models, nil
}

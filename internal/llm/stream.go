package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"
)

// StreamHandler receives text deltas during streaming.
type StreamHandler func(delta string)

// ChatCompletionStream sends a streaming chat completion request.
// The handler is called with each text delta as it arrives.
// Returns the full response once streaming is complete.
func (c *OpenAICompatClient) ChatCompletionStream(ctx context.Context, messages []Message, tools []ToolDef, handler StreamHandler) (*Response, error) {
	params := c.params(messages, tools)

	var stream *ssestream.Stream[openai.ChatCompletionChunk]
	for attempt := range maxAttempts {
		stream = c.client.Chat.Completions.NewStreaming(ctx, params)
		err := stream.Err()
		if err == nil {
			break
		}
		stream.Close()
		if !isRateLimited(err) || attempt == maxAttempts-1 {
			return nil, fmt.Errorf("chat completion stream: %w", upstream(err))
		}
		if err := backoff(ctx, attempt); err != nil {
			return nil, fmt.Errorf("chat completion stream: %w", err)
		}
	}
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if len(chunk.Choices) > 0 && handler != nil {
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				handler(delta)
			}
		}
	}

	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("streaming: %w", upstream(err))
	}

	if len(acc.Choices) == 0 {
		return nil, upstream(errors.New("no choices returned"))
	}
	return &Response{Message: fromCompletion(acc.Choices[0].Message)}, nil
}

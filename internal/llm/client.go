package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Completer produces one text completion per request. The orchestration
// layers depend on this interface so tests can substitute a fake without
// touching process-wide state.
type Completer interface {
	Complete(ctx context.Context, instructions, message string) (string, error)
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	api   openai.Client
	model string
}

// NewClient builds a Client for the given endpoint. baseURL may be empty to
// use the provider default; model is required.
func NewClient(baseURL, apiKey, model string) (*Client, error) {
	if model == "" {
		return nil, errors.New("llm: model is required")
	}

	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &Client{
		api:   openai.NewClient(opts...),
		model: model,
	}, nil
}

// Complete sends instructions as the system message and message as the user
// message, returning the first choice's text.
func (c *Client) Complete(ctx context.Context, instructions, message string) (string, error) {
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(instructions),
			openai.UserMessage(message),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

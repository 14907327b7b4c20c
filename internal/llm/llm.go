package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pavelanni/learnmate/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// Completer turns a prompt into the model's plain-text reply.
// Failures are reported as *model.TransportError.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Client wraps an OpenAI-compatible API client (LM Studio, Ollama /v1, OpenAI).
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Complete sends the prompt as a single user message and returns the first choice.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", transportError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &model.TransportError{Message: "LLM returned no choices"}
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "backend", "openai", "model", c.model, "raw", raw)
	return raw, nil
}

// Ping checks that the endpoint is reachable by listing its models.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", transportError(err))
	}
	return nil
}

func transportError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &model.TransportError{Status: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &model.TransportError{Status: reqErr.HTTPStatusCode, Message: reqErr.Error(), Err: err}
	}
	return &model.TransportError{Message: err.Error(), Err: err}
}

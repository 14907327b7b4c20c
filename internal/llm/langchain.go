package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pavelanni/learnmate/internal/model"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
)

// LangChain adapts any langchaingo model to Completer.
type LangChain struct {
	model llms.Model
	name  string
}

// NewLangChain wraps m; name is only used in logs.
func NewLangChain(name string, m llms.Model) *LangChain {
	return &LangChain{model: m, name: name}
}

// NewGemini creates a Completer backed by the hosted Gemini API.
func NewGemini(ctx context.Context, apiKey, modelName string) (*LangChain, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	g, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(modelName),
	)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return NewLangChain("gemini", g), nil
}

// NewOllama creates a Completer backed by a native Ollama server.
func NewOllama(serverURL, modelName string) (*LangChain, error) {
	o, err := ollama.New(
		ollama.WithServerURL(serverURL),
		ollama.WithModel(modelName),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	return NewLangChain("ollama", o), nil
}

// Complete sends the prompt as a single human message.
func (c *LangChain) Complete(ctx context.Context, prompt string) (string, error) {
	raw, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt)
	if err != nil {
		return "", &model.TransportError{Message: err.Error(), Err: err}
	}
	slog.Debug("LLM response", "backend", c.name, "raw", raw)
	return raw, nil
}

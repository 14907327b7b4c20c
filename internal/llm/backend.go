package llm

import (
	"context"
	"fmt"
	"strings"
)

// Backend names a completion provider.
type Backend string

const (
	// BackendOpenAI is any OpenAI-compatible chat completions endpoint (LM Studio by default).
	BackendOpenAI Backend = "openai"
	// BackendGemini is the hosted Gemini API.
	BackendGemini Backend = "gemini"
	// BackendOllama is a native Ollama server.
	BackendOllama Backend = "ollama"
)

// ParseBackend normalizes a backend name from configuration.
func ParseBackend(s string) (Backend, error) {
	b := Backend(strings.ToLower(strings.TrimSpace(s)))
	switch b {
	case BackendOpenAI, BackendGemini, BackendOllama:
		return b, nil
	}
	return "", fmt.Errorf("unknown LLM backend %q (want openai, gemini or ollama)", s)
}

// Config holds connection settings for every backend.
type Config struct {
	OpenAIURL   string
	OpenAIKey   string
	OpenAIModel string
	GeminiKey   string
	GeminiModel string
	OllamaURL   string
	OllamaModel string
}

// Open creates a Completer for backend b.
func Open(ctx context.Context, b Backend, cfg Config) (Completer, error) {
	switch b {
	case BackendOpenAI:
		return New(cfg.OpenAIURL, cfg.OpenAIKey, cfg.OpenAIModel), nil
	case BackendGemini:
		return NewGemini(ctx, cfg.GeminiKey, cfg.GeminiModel)
	case BackendOllama:
		return NewOllama(cfg.OllamaURL, cfg.OllamaModel)
	}
	return nil, fmt.Errorf("unknown LLM backend %q", b)
}

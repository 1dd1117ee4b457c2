package llm

import (
	"context"
	"fmt"
	"time"
)

// Provider is the interface for generative and embedding model calls.
type Provider interface {
	// Chat sends a chat completion request.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Embed generates embeddings for a batch of texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ChatRequest is a chat completion request.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	// ResponseFormat can be set to "json_object" for JSON mode.
	ResponseFormat string `json:"response_format,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the response from a chat completion.
type ChatResponse struct {
	Content          string `json:"content"`
	Model            string `json:"model"`
	FinishReason     string `json:"finish_reason"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// Config configures an LLM provider.
type Config struct {
	Provider string        `json:"provider"` // ollama, eino, openai, lmstudio, openrouter, groq, xai, gemini, custom
	Model    string        `json:"model"`
	BaseURL  string        `json:"base_url"`
	APIKey   string        `json:"api_key"`
	Timeout  time.Duration `json:"timeout"` // per HTTP request; 0 means 120s
}

// compatEndpoint is the default location of an OpenAI-compatible API.
type compatEndpoint struct {
	baseURL string
	prefix  string
}

var compatEndpoints = map[string]compatEndpoint{
	"openai":     {"https://api.openai.com", "/v1"},
	"lmstudio":   {"http://localhost:1234", "/v1"},
	"openrouter": {"https://openrouter.ai/api", "/v1"},
	"groq":       {"https://api.groq.com/openai", "/v1"},
	"xai":        {"https://api.x.ai", "/v1"},
	"gemini":     {"https://generativelanguage.googleapis.com/v1beta/openai", ""},
	"custom":     {"", "/v1"},
}

// NewProvider creates an LLM provider from configuration.
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllama(cfg), nil
	case "eino":
		return NewEino(ctx, cfg)
	case "":
		return nil, fmt.Errorf("llm provider not specified")
	}

	ep, ok := compatEndpoints[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = ep.baseURL
	}
	return &openAICompatProvider{base: newOpenAICompatClient(cfg, ep.prefix)}, nil
}

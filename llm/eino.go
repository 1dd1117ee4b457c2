package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	embedollama "github.com/cloudwego/eino-ext/components/embedding/ollama"
	chatollama "github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// einoProvider adapts eino chat and embedding components to Provider.
type einoProvider struct {
	chat     model.BaseChatModel
	embedder embedding.Embedder
}

// NewEino creates a provider backed by the eino Ollama components.
func NewEino(ctx context.Context, cfg Config) (Provider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	cm, err := chatollama.NewChatModel(ctx, &chatollama.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating eino chat model: %w", err)
	}

	emb, err := embedollama.NewEmbedder(ctx, &embedollama.EmbeddingConfig{
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating eino embedder: %w", err)
	}

	return NewEinoFromComponents(cm, emb), nil
}

// NewEinoFromComponents wraps already constructed eino components. Either
// may be nil when the provider is used only for chat or only for embedding.
func NewEinoFromComponents(cm model.BaseChatModel, emb embedding.Embedder) Provider {
	return &einoProvider{chat: cm, embedder: emb}
}

func (p *einoProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if p.chat == nil {
		return nil, unavailable("chat", errors.New("no eino chat model configured"))
	}

	opts := []model.Option{model.WithTemperature(float32(req.Temperature))}
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}
	if req.Model != "" {
		opts = append(opts, model.WithModel(req.Model))
	}

	msg, err := p.chat.Generate(ctx, toEinoMessages(req.Messages), opts...)
	if err != nil {
		return nil, classifyEinoError(ctx, "chat", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return nil, malformed("chat", errors.New("empty message from eino chat model"))
	}

	resp := &ChatResponse{Content: msg.Content, Model: req.Model}
	if meta := msg.ResponseMeta; meta != nil {
		resp.FinishReason = meta.FinishReason
		if u := meta.Usage; u != nil {
			resp.PromptTokens = u.PromptTokens
			resp.CompletionTokens = u.CompletionTokens
			resp.TotalTokens = u.TotalTokens
		}
	}
	return resp, nil
}

func (p *einoProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if p.embedder == nil {
		return nil, unavailable("embed", errors.New("no eino embedder configured"))
	}

	vecs, err := p.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, classifyEinoError(ctx, "embed", err)
	}
	if len(vecs) != len(texts) {
		return nil, malformed("embed", fmt.Errorf("eino returned %d embeddings for %d inputs", len(vecs), len(texts)))
	}

	out := make([][]float32, len(vecs))
	for i, v := range vecs {
		out[i] = float64sToFloat32s(v)
	}
	return out, nil
}

func toEinoMessages(msgs []Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, schema.SystemMessage(m.Content))
		case "assistant":
			out = append(out, schema.AssistantMessage(m.Content, nil))
		default:
			out = append(out, schema.UserMessage(m.Content))
		}
	}
	return out
}

// classifyEinoError maps an opaque component error onto a ModelError. The
// eino components do not expose HTTP status codes, so rate limiting is
// recognized from the error text.
func classifyEinoError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "429") || strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests") {
		return &ModelError{Kind: ErrRateLimited, Op: op, Err: err}
	}
	return unavailable(op, err)
}

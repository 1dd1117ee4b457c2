// Package reasoning synthesizes answers grounded in retrieved contracts.
package reasoning

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brunobiangulo/contractgraph/contract"
	"github.com/brunobiangulo/contractgraph/llm"
)

const (
	// NoMatchText is returned without a model call when no contract
	// supports the question.
	NoMatchText = "No matching contracts found."

	// UnavailableText is returned when the corpus could not be searched.
	UnavailableText = "Unable to retrieve contracts right now: the embedding service is unavailable. Please try again later."
)

// Config holds synthesizer configuration.
type Config struct {
	Model string
	// MaxRounds bounds model calls per question: 1 answers directly, 2
	// adds a refinement round when the first answer fails validation.
	MaxRounds int
	// MaxContextChars bounds the rendered contracts in the prompt.
	MaxContextChars int
}

// Answer is a synthesized answer with the identifiers of the contracts it
// cites. Citations only ever contain identifiers of supplied contracts.
type Answer struct {
	Text             string   `json:"text"`
	Citations        []string `json:"citations"`
	Unverified       []string `json:"unverified,omitempty"` // cited identifiers that were not supplied
	Confidence       float64  `json:"confidence"`
	Steps            []Step   `json:"steps,omitempty"`
	ModelUsed        string   `json:"model_used,omitempty"`
	Rounds           int      `json:"rounds"`
	PromptTokens     int      `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
	TotalTokens      int      `json:"total_tokens"`
}

// Step records one model round.
type Step struct {
	Round     int      `json:"round"`
	Action    string   `json:"action"`
	Prompt    string   `json:"prompt,omitempty"`
	Response  string   `json:"response,omitempty"`
	Tokens    int      `json:"tokens,omitempty"`
	ElapsedMs int64    `json:"elapsed_ms,omitempty"`
	Issues    []string `json:"issues,omitempty"`
}

// NoMatch returns the canned answer for an empty result set.
func NoMatch() *Answer {
	return &Answer{Text: NoMatchText, Citations: []string{}}
}

// Unavailable returns the canned answer for a failed retrieval.
func Unavailable() *Answer {
	return &Answer{Text: UnavailableText, Citations: []string{}}
}

// Synthesizer answers questions from supporting contracts.
type Synthesizer struct {
	chat llm.Provider
	cfg  Config
}

// New creates a Synthesizer.
func New(chat llm.Provider, cfg Config) *Synthesizer {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 2
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = 24000
	}
	return &Synthesizer{chat: chat, cfg: cfg}
}

// Answer builds a grounded answer to question from contracts, most
// relevant first. With no contracts it returns NoMatch without calling
// the model.
func (s *Synthesizer) Answer(ctx context.Context, question string, contracts []*contract.Contract) (*Answer, error) {
	if len(contracts) == 0 {
		return NoMatch(), nil
	}

	supplied := make([]string, len(contracts))
	for i, c := range contracts {
		supplied[i] = c.ID
	}
	contextStr := buildContext(contracts, s.cfg.MaxContextChars)
	prompt := buildAnswerPrompt(question, contextStr)

	ans := &Answer{}
	slog.Info("reasoning: answering", "question_len", len(question), "contracts", len(contracts))
	text, err := s.round(ctx, ans, 1, "initial_answer", prompt)
	if err != nil {
		return nil, fmt.Errorf("answer generation: %w", err)
	}

	v := validate(text, supplied)
	ans.Steps[len(ans.Steps)-1].Issues = v.issues

	if !v.ok() && s.cfg.MaxRounds >= 2 {
		slog.Info("reasoning: refining answer", "issues", len(v.issues))
		refined, err := s.round(ctx, ans, 2, "refinement", buildRefinementPrompt(question, text, contextStr, v))
		if err != nil {
			// Keep the first answer.
			slog.Warn("reasoning: refinement failed", "error", err)
		} else {
			text = refined
			v = validate(text, supplied)
			ans.Steps[len(ans.Steps)-1].Issues = v.issues
		}
	}

	ans.Text = text
	ans.Citations = v.cited
	ans.Unverified = v.unknown
	ans.Confidence = estimateConfidence(text, v, len(supplied))
	ans.Rounds = len(ans.Steps)
	return ans, nil
}

func (s *Synthesizer) round(ctx context.Context, ans *Answer, n int, action, prompt string) (string, error) {
	start := time.Now()
	resp, err := s.chat.Chat(ctx, llm.ChatRequest{
		Model: s.cfg.Model,
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}
	elapsed := time.Since(start)
	slog.Info("reasoning: round complete",
		"round", n, "tokens", resp.TotalTokens, "elapsed", elapsed.Round(time.Millisecond))

	ans.ModelUsed = resp.Model
	ans.PromptTokens += resp.PromptTokens
	ans.CompletionTokens += resp.CompletionTokens
	ans.TotalTokens += resp.TotalTokens
	ans.Steps = append(ans.Steps, Step{
		Round:     n,
		Action:    action,
		Prompt:    prompt,
		Response:  resp.Content,
		Tokens:    resp.TotalTokens,
		ElapsedMs: elapsed.Milliseconds(),
	})
	return resp.Content, nil
}

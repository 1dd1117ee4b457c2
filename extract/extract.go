// Package extract turns raw contract text into a validated contract record
// by prompting a generative model and repairing its output until it passes
// schema validation.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brunobiangulo/contractgraph/chunker"
	"github.com/brunobiangulo/contractgraph/contract"
	"github.com/brunobiangulo/contractgraph/llm"
)

// State is a step of the per-window extraction state machine.
type State int

const (
	StatePending    State = iota // waiting for a model response
	StateValidating              // parsing and validating a response
	StateRepairing               // preparing a corrective follow-up
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateValidating:
		return "validating"
	case StateRepairing:
		return "repairing"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config controls extraction.
type Config struct {
	// MaxRetries is the number of corrective follow-ups after the first
	// attempt. Zero means the default of 2; use a negative value for none.
	MaxRetries int

	// Window bounds the text sent in one prompt.
	Window chunker.Config

	// Model overrides the provider's default model when set.
	Model string
}

// Extractor derives contract records from raw text.
type Extractor struct {
	llm     llm.Provider
	cfg     Config
	chunker *chunker.Chunker
}

// New creates an Extractor that calls p.
func New(p llm.Provider, cfg Config) *Extractor {
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = 2
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}
	return &Extractor{
		llm:     p,
		cfg:     cfg,
		chunker: chunker.New(cfg.Window),
	}
}

// Extract returns a validated contract for rawText, or an *Error. When id
// is empty the identifier is derived from the text content.
func (e *Extractor) Extract(ctx context.Context, id, rawText string) (*contract.Contract, error) {
	if id == "" {
		id = contract.ContentID(rawText)
	}

	windows := e.chunker.Split(rawText)
	if len(windows) == 0 {
		return nil, &Error{Kind: Unrecoverable, DocumentID: id, Err: ErrEmptyDocument}
	}

	start := time.Now()
	parts := make([]*contract.Contract, 0, len(windows))
	for _, w := range windows {
		c, _, err := e.extractWindow(ctx, id, w, len(windows))
		if err != nil {
			return nil, err
		}
		parts = append(parts, c)
	}

	merged := Merge(parts)
	merged.Normalize()
	out, err := contract.Validate(merged)
	if err != nil {
		return nil, &Error{Kind: Unrecoverable, DocumentID: id, Window: -1, Err: err}
	}

	slog.Debug("extract: document done",
		"doc", id,
		"windows", len(windows),
		"clauses", len(out.Clauses),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return out, nil
}

// extractWindow runs the state machine for one window and returns the
// validated record plus the sequence of states visited.
func (e *Extractor) extractWindow(ctx context.Context, id string, w chunker.Window, total int) (*contract.Contract, []State, error) {
	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: buildPrompt(w.Text, w.Index, total)},
	}

	var (
		state    = StatePending
		trace    = []State{StatePending}
		attempts int
		raw      string
		lastErr  error
		result   *contract.Contract
	)
	next := func(s State) {
		slog.Debug("extract: transition", "doc", id, "window", w.Index, "from", state, "to", s)
		state = s
		trace = append(trace, s)
	}
	fail := func(kind Kind, err error) (*contract.Contract, []State, error) {
		return nil, trace, &Error{Kind: kind, DocumentID: id, Window: w.Index, Attempts: attempts, Err: err}
	}

	for {
		switch state {
		case StatePending:
			if err := ctx.Err(); err != nil {
				return fail(Transient, err)
			}
			attempts++
			resp, err := e.llm.Chat(ctx, llm.ChatRequest{
				Model:          e.cfg.Model,
				Messages:       messages,
				Temperature:    0,
				ResponseFormat: "json_object",
			})
			switch {
			case err == nil:
				raw = resp.Content
				next(StateValidating)
			case errors.Is(err, llm.ErrMalformed):
				raw = ""
				lastErr = err
				next(StateRepairing)
			default:
				return fail(Transient, err)
			}

		case StateValidating:
			cand, err := parseCandidate(raw, id)
			if err == nil {
				result, err = contract.Validate(cand)
			}
			if err != nil {
				lastErr = err
				next(StateRepairing)
				continue
			}
			next(StateSucceeded)

		case StateRepairing:
			if attempts > e.cfg.MaxRetries {
				next(StateFailed)
				continue
			}
			slog.Warn("extract: repairing response",
				"doc", id,
				"window", w.Index,
				"attempt", attempts,
				"error", lastErr,
			)
			if raw != "" {
				messages = append(messages, llm.Message{Role: "assistant", Content: raw})
			}
			messages = append(messages, llm.Message{Role: "user", Content: buildRepairPrompt(lastErr)})
			next(StatePending)

		case StateSucceeded:
			return result, trace, nil

		case StateFailed:
			return fail(Unrecoverable, lastErr)
		}
	}
}

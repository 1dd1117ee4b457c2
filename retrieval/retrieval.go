// Package retrieval ranks corpus contracts against a natural-language
// question using summary-vector similarity narrowed by structured
// constraints found in the question.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brunobiangulo/contractgraph/contract"
	"github.com/brunobiangulo/contractgraph/embed"
	"github.com/brunobiangulo/contractgraph/store"
)

// Config holds retrieval configuration.
type Config struct {
	TopK int // default result count when Retrieve is called with k <= 0
	// MinSimilarity drops unconstrained vector hits scoring below it.
	// Contracts matching a recognized constraint are kept regardless.
	MinSimilarity float64
}

// Embedder produces the query vector. *embed.Embedder satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) (embed.Vector, error)
}

// Result is a retrieved contract with its cosine similarity to the
// question. Score is zero for contracts found by constraint alone.
type Result struct {
	Contract *contract.Contract `json:"contract"`
	Score    float64            `json:"score"`
}

// Trace records how a retrieval was answered.
type Trace struct {
	Constraints Constraints `json:"constraints"`
	CorpusSize  int         `json:"corpus_size"`
	VectorHits  int         `json:"vector_hits"`
	FilterHits  int         `json:"filter_hits"`
	BelowCutoff int         `json:"below_cutoff"`
	Degraded    bool        `json:"degraded"` // query embedding failed; constraint-only results
	ElapsedMs   int64       `json:"elapsed_ms"`
}

// Retriever answers retrieve(question, k) over a corpus store.
type Retriever struct {
	store    *store.Memory
	embedder Embedder
	cfg      Config
}

// New creates a Retriever.
func New(s *store.Memory, e Embedder, cfg Config) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	return &Retriever{store: s, embedder: e, cfg: cfg}
}

// Retrieve returns up to k contracts, most relevant first. An empty corpus
// or a question nothing matches yields an empty slice and no error.
func (r *Retriever) Retrieve(ctx context.Context, question string, k int) ([]Result, error) {
	results, _, err := r.Search(ctx, question, k)
	return results, err
}

// Search is Retrieve plus a trace of the constraints and hit counts. When
// the query cannot be embedded, contracts matching recognized constraints
// are still returned; without constraints the embedding error is returned
// wrapping embed.ErrUnavailable.
func (r *Retriever) Search(ctx context.Context, question string, k int) ([]Result, *Trace, error) {
	start := time.Now()
	if k <= 0 {
		k = r.cfg.TopK
	}

	trace := &Trace{CorpusSize: r.store.Len()}
	defer func() { trace.ElapsedMs = time.Since(start).Milliseconds() }()

	question = strings.TrimSpace(question)
	if trace.CorpusSize == 0 || question == "" {
		return []Result{}, trace, nil
	}

	trace.Constraints = ParseConstraints(question)
	keep := trace.Constraints.Predicate()

	qv, err := r.embedder.Embed(ctx, question)
	if err != nil {
		if ctx.Err() != nil {
			return nil, trace, ctx.Err()
		}
		if keep == nil || !errors.Is(err, embed.ErrUnavailable) {
			return nil, trace, fmt.Errorf("embedding question: %w", err)
		}
		slog.Warn("retrieval: query embedding failed, using constraints only", "error", err)
		trace.Degraded = true
	}

	var scored []store.Scored
	if !trace.Degraded {
		scored = r.store.NearestK(qv.Values, qv.Version, k, keep)
		trace.VectorHits = len(scored)
	}

	if keep == nil {
		kept := scored[:0]
		for _, s := range scored {
			if s.Score < r.cfg.MinSimilarity {
				trace.BelowCutoff++
				continue
			}
			kept = append(kept, s)
		}
		scored = kept
	} else {
		// Constraint matches without a comparable vector still count.
		for _, c := range r.store.Filter(keep) {
			trace.FilterHits++
			comparable := !trace.Degraded && c.HasEmbedding() &&
				c.EmbeddingVersion == qv.Version && len(c.Embedding) == len(qv.Values)
			if !comparable {
				scored = append(scored, store.Scored{Contract: c})
			}
		}
		store.SortScored(scored)
	}

	if len(scored) > k {
		scored = scored[:k]
	}
	results := make([]Result, len(scored))
	for i, s := range scored {
		results[i] = Result{Contract: s.Contract, Score: s.Score}
	}

	slog.Debug("retrieval complete",
		"question", question,
		"constraints", !trace.Constraints.Empty(),
		"vector_hits", trace.VectorHits,
		"filter_hits", trace.FilterHits,
		"returned", len(results),
		"degraded", trace.Degraded)
	return results, trace, nil
}

// Package contractgraph extracts structured records from legal contracts
// and answers questions over the resulting corpus.
package contractgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/brunobiangulo/contractgraph/chunker"
	"github.com/brunobiangulo/contractgraph/contract"
	"github.com/brunobiangulo/contractgraph/embed"
	"github.com/brunobiangulo/contractgraph/extract"
	"github.com/brunobiangulo/contractgraph/graphsink"
	"github.com/brunobiangulo/contractgraph/llm"
	"github.com/brunobiangulo/contractgraph/parser"
	"github.com/brunobiangulo/contractgraph/reasoning"
	"github.com/brunobiangulo/contractgraph/retrieval"
	"github.com/brunobiangulo/contractgraph/store"
)

// Answer is the result of a question.
type Answer struct {
	Question   string   `json:"question"`
	Text       string   `json:"answer"`
	Citations  []string `json:"citations"`
	Unverified []string `json:"unverified,omitempty"`

	// Contracts and Scores list the retrieved contracts, most relevant
	// first.
	Contracts []string  `json:"contracts"`
	Scores    []float64 `json:"scores"`
	Sources   []Source  `json:"sources"`

	Confidence float64 `json:"confidence"`
	// Degraded is set when the corpus could not be searched.
	Degraded bool `json:"degraded,omitempty"`

	Trace            *retrieval.Trace `json:"retrieval_trace,omitempty"`
	Reasoning        []reasoning.Step `json:"reasoning,omitempty"`
	ModelUsed        string           `json:"model_used,omitempty"`
	Rounds           int              `json:"rounds"`
	PromptTokens     int              `json:"prompt_tokens"`
	CompletionTokens int              `json:"completion_tokens"`
	TotalTokens      int              `json:"total_tokens"`
	ElapsedMs        int64            `json:"elapsed_ms"`
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	chat      llm.Provider
	embedding llm.Provider
	parsers   *parser.Registry
	guard     *llm.GuardConfig
}

// WithChatProvider replaces the generative model built from Config.Chat.
func WithChatProvider(p llm.Provider) Option {
	return func(o *options) { o.chat = p }
}

// WithEmbeddingProvider replaces the embedding model built from
// Config.Embedding.
func WithEmbeddingProvider(p llm.Provider) Option {
	return func(o *options) { o.embedding = p }
}

// WithParsers replaces the default document parser registry.
func WithParsers(r *parser.Registry) Option {
	return func(o *options) { o.parsers = r }
}

// WithGuardConfig overrides the timeout and backoff policy for model calls.
func WithGuardConfig(g llm.GuardConfig) Option {
	return func(o *options) { o.guard = &g }
}

// Engine ingests contract documents into an in-process corpus and answers
// questions over it. It is safe for concurrent use.
type Engine struct {
	cfg       Config
	chat      llm.Provider
	extractor *extract.Extractor
	embedder  *embed.Embedder
	corpus    *store.Memory
	retriever *retrieval.Retriever
	synth     *reasoning.Synthesizer
	parsers   *parser.Registry
	snapshot  *store.SQLite
	sink      *graphsink.Neo4j

	mu     sync.RWMutex
	closed bool
}

// New creates an Engine. With StorePath set, the corpus is loaded from the
// snapshot; with a Neo4j URI set, connectivity is verified.
func New(ctx context.Context, cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	chat := o.chat
	if chat == nil {
		p, err := llm.NewProvider(ctx, llm.Config{
			Provider: cfg.Chat.Provider,
			Model:    cfg.Chat.Model,
			BaseURL:  cfg.Chat.BaseURL,
			APIKey:   cfg.Chat.APIKey,
			Timeout:  cfg.Chat.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: chat provider: %v", ErrInvalidConfig, err)
		}
		chat = p
	}
	embedLLM := o.embedding
	if embedLLM == nil {
		p, err := llm.NewProvider(ctx, llm.Config{
			Provider: cfg.Embedding.Provider,
			Model:    cfg.Embedding.Model,
			BaseURL:  cfg.Embedding.BaseURL,
			APIKey:   cfg.Embedding.APIKey,
			Timeout:  cfg.Embedding.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: embedding provider: %v", ErrInvalidConfig, err)
		}
		embedLLM = p
	}

	// One limiter for both models so concurrent workers share the budget.
	limiter := llm.NewLimiter(cfg.RequestsPerSecond, cfg.Burst)
	guardCfg := llm.DefaultGuardConfig()
	guardCfg.Timeout = cfg.ModelTimeout
	guardCfg.MaxRetries = cfg.MaxRetries
	if o.guard != nil {
		guardCfg = *o.guard
	}
	chat = llm.NewGuard(chat, limiter, guardCfg)
	embedLLM = llm.NewGuard(embedLLM, limiter, guardCfg)

	extractRetries := cfg.ExtractRetries
	if extractRetries == 0 {
		extractRetries = -1
	}
	embedder := embed.New(embedLLM,
		embed.VersionTag(cfg.Embedding.Provider, cfg.Embedding.Model, cfg.EmbeddingDim),
		embed.WithDimension(cfg.EmbeddingDim),
	)
	corpus := store.NewMemory()

	parsers := o.parsers
	if parsers == nil {
		parsers = parser.NewRegistry()
	}

	e := &Engine{
		cfg:  cfg,
		chat: chat,
		extractor: extract.New(chat, extract.Config{
			MaxRetries: extractRetries,
			Window:     chunker.Config{MaxTokens: cfg.WindowTokens, Overlap: cfg.WindowOverlap},
			Model:      cfg.Chat.Model,
		}),
		embedder: embedder,
		corpus:   corpus,
		retriever: retrieval.New(corpus, embedder, retrieval.Config{
			TopK:          cfg.TopK,
			MinSimilarity: cfg.MinSimilarity,
		}),
		synth: reasoning.New(chat, reasoning.Config{
			Model:     cfg.Chat.Model,
			MaxRounds: cfg.MaxRounds,
		}),
		parsers: parsers,
	}

	if cfg.StorePath != "" {
		if err := e.openSnapshot(ctx); err != nil {
			return nil, err
		}
	}
	if cfg.neo4jEnabled() {
		sink, err := graphsink.NewNeo4j(ctx, *cfg.Neo4j)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("%w: %v", ErrSinkUnreachable, err)
		}
		e.sink = sink
	}

	slog.Info("engine: ready",
		"chat", cfg.Chat.Provider+"/"+cfg.Chat.Model,
		"embedding", embedder.Version(),
		"contracts", corpus.Len(),
		"snapshot", cfg.StorePath != "",
		"neo4j", e.sink != nil,
	)
	return e, nil
}

func (e *Engine) openSnapshot(ctx context.Context) error {
	snap, err := store.OpenSQLite(e.cfg.StorePath, e.cfg.EmbeddingDim)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSinkUnreachable, err)
	}
	loaded, err := snap.Load(ctx)
	if err != nil {
		snap.Close()
		return fmt.Errorf("%w: loading snapshot: %v", ErrSinkUnreachable, err)
	}
	for _, c := range loaded {
		e.corpus.Add(c)
	}
	e.snapshot = snap
	slog.Info("engine: snapshot loaded", "path", e.cfg.StorePath, "contracts", len(loaded))
	return nil
}

// Ask answers a question from the corpus. An empty corpus or an empty
// retrieval yields the canned no-match answer without a model call; a
// failed retrieval yields a degraded "unable to retrieve" answer rather
// than an error.
func (e *Engine) Ask(ctx context.Context, question string) (*Answer, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	start := time.Now()

	if e.corpus.Len() == 0 {
		slog.Info("ask: corpus is empty")
		return e.answer(question, reasoning.NoMatch(), nil, nil, start), nil
	}

	results, trace, err := e.retriever.Search(ctx, question, e.cfg.TopK)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("ask: retrieval failed", "error", err)
		ans := e.answer(question, reasoning.Unavailable(), nil, trace, start)
		ans.Degraded = true
		return ans, nil
	}

	contracts := make([]*contract.Contract, len(results))
	for i, r := range results {
		contracts[i] = r.Contract
	}
	ra, err := e.synth.Answer(ctx, question, contracts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrModelUnreachable, err)
	}

	ans := e.answer(question, ra, results, trace, start)
	if trace != nil && trace.Degraded {
		ans.Degraded = true
	}
	slog.Info("ask: answered",
		"contracts", len(results),
		"citations", len(ans.Citations),
		"confidence", ans.Confidence,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return ans, nil
}

func (e *Engine) answer(question string, ra *reasoning.Answer, results []retrieval.Result, trace *retrieval.Trace, start time.Time) *Answer {
	ans := &Answer{
		Question:         question,
		Text:             ra.Text,
		Citations:        ra.Citations,
		Unverified:       ra.Unverified,
		Contracts:        make([]string, 0, len(results)),
		Scores:           make([]float64, 0, len(results)),
		Sources:          make([]Source, 0, len(results)),
		Confidence:       ra.Confidence,
		Trace:            trace,
		Reasoning:        ra.Steps,
		ModelUsed:        ra.ModelUsed,
		Rounds:           ra.Rounds,
		PromptTokens:     ra.PromptTokens,
		CompletionTokens: ra.CompletionTokens,
		TotalTokens:      ra.TotalTokens,
	}
	if ans.Citations == nil {
		ans.Citations = []string{}
	}
	words := significantWords(ra.Text)
	for _, r := range results {
		ans.Contracts = append(ans.Contracts, r.Contract.ID)
		ans.Scores = append(ans.Scores, r.Score)
		src := newSource(r.Contract, r.Score, words)
		src.Cited = slices.Contains(ans.Citations, r.Contract.ID)
		ans.Sources = append(ans.Sources, src)
	}
	ans.ElapsedMs = time.Since(start).Milliseconds()
	return ans
}

// Contracts returns every contract in the corpus, ordered by identifier.
func (e *Engine) Contracts() []*contract.Contract {
	return e.corpus.All()
}

// Contract returns one contract by identifier.
func (e *Engine) Contract(id string) (*contract.Contract, bool) {
	return e.corpus.Get(id)
}

// EmbeddingVersion returns the version tag of vectors produced by this
// engine.
func (e *Engine) EmbeddingVersion() string {
	return e.embedder.Version()
}

// Close releases the snapshot and graph sink. It is safe to call more
// than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	if e.sink != nil {
		errs = append(errs, e.sink.Close(context.Background()))
	}
	if e.snapshot != nil {
		errs = append(errs, e.snapshot.Close())
	}
	return errors.Join(errs...)
}

func (e *Engine) checkOpen() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrEngineClosed
	}
	return nil
}

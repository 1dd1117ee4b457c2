package contractgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/brunobiangulo/contractgraph/contract"
	"github.com/brunobiangulo/contractgraph/embed"
	"github.com/brunobiangulo/contractgraph/extract"
	"github.com/brunobiangulo/contractgraph/graphsink"
	"github.com/brunobiangulo/contractgraph/parser"
)

// Outcome is the result of ingesting one document.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomePartial   Outcome = "partial" // extracted, but no embedding yet
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped" // batch cancelled before the document started
)

// DocumentResult reports one document of a batch.
type DocumentResult struct {
	ID        string  `json:"id"`
	Path      string  `json:"path,omitempty"`
	Outcome   Outcome `json:"outcome"`
	ErrorKind string  `json:"error_kind,omitempty"` // load, transient, unrecoverable, embedding
	Error     string  `json:"error,omitempty"`
	Parties   int     `json:"parties"`
	Clauses   int     `json:"clauses"`
	ElapsedMs int64   `json:"elapsed_ms"`
}

// BatchSummary reports a whole ingest run.
type BatchSummary struct {
	RunID      string           `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Total      int              `json:"total"`
	Succeeded  int              `json:"succeeded"`
	Partial    int              `json:"partial"`
	Failed     int              `json:"failed"`
	Skipped    int              `json:"skipped"`
	Cancelled  bool             `json:"cancelled"`
	Documents  []DocumentResult `json:"documents"`
}

// ExitCode maps the summary to the CLI convention: 0 when every document
// produced a contract, 1 when any failed or was skipped.
func (s *BatchSummary) ExitCode() int {
	if s.Failed > 0 || s.Skipped > 0 {
		return 1
	}
	return 0
}

func (s *BatchSummary) count() {
	s.Total = len(s.Documents)
	s.Succeeded, s.Partial, s.Failed, s.Skipped = 0, 0, 0, 0
	for _, d := range s.Documents {
		switch d.Outcome {
		case OutcomeSucceeded:
			s.Succeeded++
		case OutcomePartial:
			s.Partial++
		case OutcomeFailed:
			s.Failed++
		case OutcomeSkipped:
			s.Skipped++
		}
	}
}

// IngestDir loads every supported document under dir and ingests it.
// Documents that cannot be loaded are reported as failed.
func (e *Engine) IngestDir(ctx context.Context, dir string) (*BatchSummary, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	docs, failed, err := e.parsers.LoadDir(ctx, dir)
	if err != nil {
		return nil, err
	}
	return e.ingest(ctx, docs, failed)
}

// Ingest extracts, embeds and stores docs on a bounded worker pool.
// Failures are isolated per document and reported in the summary. When
// ctx is cancelled, documents already started run to completion and the
// rest are skipped.
func (e *Engine) Ingest(ctx context.Context, docs []parser.Document) (*BatchSummary, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	return e.ingest(ctx, docs, nil)
}

func (e *Engine) ingest(ctx context.Context, docs []parser.Document, loadFailures []parser.Failure) (*BatchSummary, error) {
	if len(docs)+len(loadFailures) == 0 {
		return nil, ErrNoDocuments
	}

	sum := &BatchSummary{RunID: uuid.NewString(), StartedAt: time.Now().UTC()}
	results := make([]DocumentResult, len(docs))
	for i, d := range docs {
		results[i] = DocumentResult{ID: d.ID, Path: d.Path, Outcome: OutcomeSkipped}
	}
	slog.Info("ingest: batch started",
		"run", sum.RunID, "documents", len(docs), "workers", e.cfg.Workers)

	// In-flight documents finish even if ctx is cancelled.
	work := context.WithoutCancel(ctx)

	var (
		g     errgroup.Group
		mu    sync.Mutex
		batch []*contract.Contract
	)
	g.SetLimit(e.cfg.Workers)
	for i, d := range docs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			res, c := e.ingestOne(work, d)
			results[i] = res
			if c != nil {
				mu.Lock()
				batch = append(batch, c)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	for _, f := range loadFailures {
		results = append(results, DocumentResult{
			ID:        contract.FileID(f.Path),
			Path:      f.Path,
			Outcome:   OutcomeFailed,
			ErrorKind: "load",
			Error:     f.Err.Error(),
		})
	}
	sum.Documents = results
	sum.Cancelled = ctx.Err() != nil
	sum.count()

	persistErr := e.persist(work, batch)
	sum.FinishedAt = time.Now().UTC()

	slog.Info("ingest: batch complete",
		"run", sum.RunID,
		"succeeded", sum.Succeeded,
		"partial", sum.Partial,
		"failed", sum.Failed,
		"skipped", sum.Skipped,
		"elapsed", sum.FinishedAt.Sub(sum.StartedAt).Round(time.Millisecond),
	)

	switch {
	case sum.Cancelled:
		return sum, ctx.Err()
	case persistErr != nil:
		return sum, persistErr
	case modelUnreachable(results, len(docs)):
		return sum, ErrModelUnreachable
	}
	return sum, nil
}

func (e *Engine) ingestOne(ctx context.Context, d parser.Document) (DocumentResult, *contract.Contract) {
	start := time.Now()
	res := DocumentResult{ID: d.ID, Path: d.Path}

	c, err := e.extractor.Extract(ctx, d.ID, d.Text)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.ErrorKind = errorKind(err)
		res.Error = err.Error()
		res.ElapsedMs = time.Since(start).Milliseconds()
		slog.Warn("ingest: extraction failed", "doc", d.ID, "kind", res.ErrorKind, "error", err)
		return res, nil
	}
	res.Parties, res.Clauses = len(c.Parties), len(c.Clauses)

	// Extraction must finish before the summary can be embedded.
	if v, err := e.embedder.Embed(ctx, c.Summary); err != nil {
		res.Outcome = OutcomePartial
		res.ErrorKind = "embedding"
		res.Error = err.Error()
		slog.Warn("ingest: embedding failed, contract kept without vector", "doc", d.ID, "error", err)
	} else {
		c.Embedding, c.EmbeddingVersion = v.Values, v.Version
		res.Outcome = OutcomeSucceeded
	}

	e.corpus.Add(c)
	res.ElapsedMs = time.Since(start).Milliseconds()
	slog.Info("ingest: document done",
		"doc", d.ID, "outcome", res.Outcome, "clauses", res.Clauses,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return res, c
}

// persist writes contracts to the snapshot and graph sink when configured.
func (e *Engine) persist(ctx context.Context, contracts []*contract.Contract) error {
	if len(contracts) == 0 {
		return nil
	}
	if e.snapshot != nil {
		if err := e.snapshot.Save(ctx, contracts); err != nil {
			return fmt.Errorf("saving snapshot: %w", err)
		}
	}
	if e.sink != nil {
		if err := e.sink.Write(ctx, graphsink.FromContracts(contracts)); err != nil {
			return fmt.Errorf("writing graph: %w", err)
		}
	}
	return nil
}

// RetryEmbeddings embeds every contract whose vector is missing or was
// produced by a different embedding version. It returns how many
// contracts were updated; contracts that still fail stay without a vector.
func (e *Engine) RetryEmbeddings(ctx context.Context) (int, error) {
	if err := e.checkOpen(); err != nil {
		return 0, err
	}
	version := e.embedder.Version()
	pending := e.corpus.Filter(func(c *contract.Contract) bool {
		return !c.HasEmbedding() || c.EmbeddingVersion != version
	})
	if len(pending) == 0 {
		return 0, nil
	}
	slog.Info("embed: retry pass started", "pending", len(pending))

	var (
		g       errgroup.Group
		mu      sync.Mutex
		updated []*contract.Contract
		failed  int
	)
	g.SetLimit(e.cfg.Workers)
	for _, c := range pending {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			v, err := e.embedder.Embed(ctx, c.Summary)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				slog.Warn("embed: retry failed", "doc", c.ID, "error", err)
				return nil
			}
			c.Embedding, c.EmbeddingVersion = v.Values, v.Version
			updated = append(updated, c)
			return nil
		})
	}
	g.Wait()

	for _, c := range updated {
		e.corpus.Add(c)
	}
	if e.snapshot != nil && len(updated) > 0 {
		if err := e.snapshot.Save(context.WithoutCancel(ctx), updated); err != nil {
			return len(updated), fmt.Errorf("saving snapshot: %w", err)
		}
	}
	slog.Info("embed: retry pass complete", "updated", len(updated), "failed", failed)

	if err := ctx.Err(); err != nil {
		return len(updated), err
	}
	if failed > 0 {
		return len(updated), fmt.Errorf("%w: %d of %d contracts still without a vector",
			embed.ErrUnavailable, failed, len(pending))
	}
	return len(updated), nil
}

func errorKind(err error) string {
	var xe *extract.Error
	if errors.As(err, &xe) {
		return xe.Kind.String()
	}
	return "error"
}

// modelUnreachable reports whether every attempted document failed with a
// transient model error.
func modelUnreachable(results []DocumentResult, attempted int) bool {
	if attempted == 0 {
		return false
	}
	transient := 0
	for _, r := range results[:attempted] {
		if r.Outcome == OutcomeFailed && r.ErrorKind == extract.Transient.String() {
			transient++
		}
	}
	return transient == attempted
}

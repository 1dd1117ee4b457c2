package eval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/brunobiangulo/contractgraph"
	"github.com/brunobiangulo/contractgraph/reasoning"
)

// Asker answers questions. *contractgraph.Engine satisfies it.
type Asker interface {
	Ask(ctx context.Context, question string) (*contractgraph.Answer, error)
}

// Evaluator runs datasets against an Asker.
type Evaluator struct {
	engine Asker
	// MinFactCoverage is the share of expected facts an answer needs to
	// pass. Defaults to 0.5.
	MinFactCoverage float64
}

func NewEvaluator(a Asker) *Evaluator {
	return &Evaluator{engine: a, MinFactCoverage: 0.5}
}

// Report is the outcome of one dataset run.
type Report struct {
	Dataset    string             `json:"dataset"`
	Total      int                `json:"total"`
	Passed     int                `json:"passed"`
	Failed     int                `json:"failed"`
	Metrics    Metrics            `json:"metrics"`
	ByCategory map[string]Metrics `json:"by_category,omitempty"`
	TokenUsage TokenUsage         `json:"token_usage"`
	Results    []Result           `json:"results"`
	RunTime    time.Duration      `json:"run_time"`
}

// Metrics are averages over a set of results.
type Metrics struct {
	Count             int     `json:"count"`
	Precision         float64 `json:"precision"`
	Recall            float64 `json:"recall"`
	CitationPrecision float64 `json:"citation_precision"`
	FactCoverage      float64 `json:"fact_coverage"`
	Confidence        float64 `json:"confidence"`
}

type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result scores one question.
type Result struct {
	Question          string   `json:"question"`
	Category          string   `json:"category,omitempty"`
	Answer            string   `json:"answer"`
	Retrieved         []string `json:"retrieved"`
	Citations         []string `json:"citations"`
	Precision         float64  `json:"precision"`
	Recall            float64  `json:"recall"`
	CitationPrecision float64  `json:"citation_precision"`
	FactCoverage      float64  `json:"fact_coverage"`
	Confidence        float64  `json:"confidence"`
	Degraded          bool     `json:"degraded,omitempty"`
	Passed            bool     `json:"passed"`
	Error             string   `json:"error,omitempty"`
	ElapsedMs         int64    `json:"elapsed_ms"`
}

// Run asks every question in ds. A failing question is recorded in its
// result; only a cancelled context stops the run.
func (e *Evaluator) Run(ctx context.Context, ds Dataset) (*Report, error) {
	start := time.Now()
	rep := &Report{Dataset: ds.Name, ByCategory: make(map[string]Metrics)}

	for i, c := range ds.Cases {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		slog.Info("eval: asking", "case", i+1, "of", len(ds.Cases), "category", c.Category)
		res, usage := e.runCase(ctx, c)
		rep.Results = append(rep.Results, res)
		rep.TokenUsage.PromptTokens += usage.PromptTokens
		rep.TokenUsage.CompletionTokens += usage.CompletionTokens
		rep.TokenUsage.TotalTokens += usage.TotalTokens
		if res.Passed {
			rep.Passed++
		} else {
			rep.Failed++
		}
	}
	rep.Total = len(rep.Results)
	rep.Metrics = aggregate(rep.Results)

	byCat := make(map[string][]Result)
	for _, r := range rep.Results {
		if r.Category != "" {
			byCat[r.Category] = append(byCat[r.Category], r)
		}
	}
	for cat, rs := range byCat {
		rep.ByCategory[cat] = aggregate(rs)
	}
	rep.RunTime = time.Since(start)
	return rep, nil
}

func (e *Evaluator) runCase(ctx context.Context, c Case) (Result, TokenUsage) {
	start := time.Now()
	res := Result{Question: c.Question, Category: c.Category}

	ans, err := e.engine.Ask(ctx, c.Question)
	res.ElapsedMs = time.Since(start).Milliseconds()
	if err != nil {
		res.Error = err.Error()
		return res, TokenUsage{}
	}

	res.Answer = ans.Text
	res.Retrieved = ans.Contracts
	res.Citations = ans.Citations
	res.Confidence = ans.Confidence
	res.Degraded = ans.Degraded
	res.Precision, res.Recall = precisionRecall(ans.Contracts, c.ExpectedContracts)
	res.CitationPrecision = citationPrecision(ans.Citations, c.ExpectedContracts)
	res.FactCoverage = factCoverage(ans.Text, c.ExpectedFacts)

	if c.ExpectNoMatch {
		res.Passed = ans.Text == reasoning.NoMatchText || len(ans.Citations) == 0
	} else {
		res.Passed = !ans.Degraded && res.Recall == 1 &&
			res.CitationPrecision > 0 && res.FactCoverage >= e.MinFactCoverage
	}
	return res, TokenUsage{
		PromptTokens:     ans.PromptTokens,
		CompletionTokens: ans.CompletionTokens,
		TotalTokens:      ans.TotalTokens,
	}
}

func aggregate(rs []Result) Metrics {
	var m Metrics
	for _, r := range rs {
		if r.Error != "" {
			continue
		}
		m.Count++
		m.Precision += r.Precision
		m.Recall += r.Recall
		m.CitationPrecision += r.CitationPrecision
		m.FactCoverage += r.FactCoverage
		m.Confidence += r.Confidence
	}
	if m.Count > 0 {
		n := float64(m.Count)
		m.Precision /= n
		m.Recall /= n
		m.CitationPrecision /= n
		m.FactCoverage /= n
		m.Confidence /= n
	}
	return m
}

// FormatReport renders a human-readable report.
func FormatReport(r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Evaluation Report: %s ===\n", r.Dataset)
	fmt.Fprintf(&b, "Total: %d | Passed: %d (%.1f%%) | Failed: %d\n",
		r.Total, r.Passed, passRate(r.Passed, r.Total), r.Failed)
	fmt.Fprintf(&b, "Run time: %s\n\n", r.RunTime.Round(time.Millisecond))

	fmt.Fprintf(&b, "Aggregate Metrics:\n")
	fmt.Fprintf(&b, "  Precision:            %.2f\n", r.Metrics.Precision)
	fmt.Fprintf(&b, "  Recall:               %.2f\n", r.Metrics.Recall)
	fmt.Fprintf(&b, "  Citation Precision:   %.2f\n", r.Metrics.CitationPrecision)
	fmt.Fprintf(&b, "  Fact Coverage:        %.2f\n", r.Metrics.FactCoverage)
	fmt.Fprintf(&b, "  Confidence:           %.2f\n\n", r.Metrics.Confidence)

	fmt.Fprintf(&b, "Token Usage:\n")
	fmt.Fprintf(&b, "  Prompt:     %d\n", r.TokenUsage.PromptTokens)
	fmt.Fprintf(&b, "  Completion: %d\n", r.TokenUsage.CompletionTokens)
	fmt.Fprintf(&b, "  Total:      %d\n\n", r.TokenUsage.TotalTokens)

	if len(r.ByCategory) > 0 {
		cats := make([]string, 0, len(r.ByCategory))
		for cat := range r.ByCategory {
			cats = append(cats, cat)
		}
		sort.Strings(cats)
		fmt.Fprintf(&b, "Per-Category Metrics:\n")
		for _, cat := range cats {
			m := r.ByCategory[cat]
			fmt.Fprintf(&b, "  [%s] n=%d P=%.2f R=%.2f Cite=%.2f Facts=%.2f\n",
				cat, m.Count, m.Precision, m.Recall, m.CitationPrecision, m.FactCoverage)
		}
		fmt.Fprintln(&b)
	}

	for i, res := range r.Results {
		status := "PASS"
		if !res.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %d. %s\n", status, i+1, truncate(res.Question, 100))
		if res.Error != "" {
			fmt.Fprintf(&b, "  Error: %s\n", res.Error)
			continue
		}
		fmt.Fprintf(&b, "  P=%.2f R=%.2f Cite=%.2f Facts=%.2f Conf=%.2f  (%dms)\n",
			res.Precision, res.Recall, res.CitationPrecision, res.FactCoverage, res.Confidence, res.ElapsedMs)
	}
	return b.String()
}

func passRate(passed, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(passed) / float64(total) * 100
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// Package embed derives version-tagged summary vectors for contracts.
package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/brunobiangulo/contractgraph/llm"
)

const (
	defaultMaxChars  = 24000
	defaultCacheSize = 4096
	batchSize        = 32
)

var (
	// ErrUnavailable is returned when no vector could be produced. Callers
	// keep the contract and retry embedding later.
	ErrUnavailable = errors.New("embed: embedding unavailable")

	// ErrEmptyText is returned for blank input.
	ErrEmptyText = errors.New("embed: empty text")
)

// Vector is an embedding tagged with the model version that produced it.
// Vectors with different versions are not comparable.
type Vector struct {
	Values  []float32
	Version string
}

// VersionTag builds the identifier stored alongside every vector.
func VersionTag(provider, model string, dim int) string {
	return fmt.Sprintf("%s/%s@%d", provider, model, dim)
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithDimension rejects vectors whose length differs from dim.
func WithDimension(dim int) Option {
	return func(e *Embedder) { e.dim = dim }
}

// WithCacheSize bounds the number of memoized vectors. The least recently
// used entries are evicted first.
func WithCacheSize(n int) Option {
	return func(e *Embedder) { e.cacheSize = n }
}

// WithMaxChars truncates input longer than n bytes at a word boundary.
func WithMaxChars(n int) Option {
	return func(e *Embedder) { e.maxChars = n }
}

// Embedder maps text to vectors. Results are memoized per version and
// text in a bounded LRU, so identical input yields an identical vector while
// it stays cached even when the model itself is not deterministic.
type Embedder struct {
	llm       llm.Provider
	version   string
	dim       int
	maxChars  int
	cacheSize int

	cache *lru.Cache[string, []float32]
}

// New creates an Embedder over p whose vectors carry version.
func New(p llm.Provider, version string, opts ...Option) *Embedder {
	e := &Embedder{
		llm:       p,
		version:   version,
		maxChars:  defaultMaxChars,
		cacheSize: defaultCacheSize,
	}
	for _, o := range opts {
		o(e)
	}
	if e.cacheSize <= 0 {
		e.cacheSize = defaultCacheSize
	}
	e.cache, _ = lru.New[string, []float32](e.cacheSize)
	return e
}

// Version returns the tag attached to every vector from this Embedder.
func (e *Embedder) Version() string { return e.version }

// Embed returns the vector for text.
func (e *Embedder) Embed(ctx context.Context, text string) (Vector, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return Vector{}, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds several texts. Cached texts are not sent again. If a
// batch call fails, each text is retried on its own so one bad input does
// not lose the batch; the first failure is returned.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	out := make([]Vector, len(texts))
	prepared := make([]string, len(texts))
	var pending []int
	for i, t := range texts {
		t = e.prepare(t)
		if t == "" {
			return nil, ErrEmptyText
		}
		prepared[i] = t
		if v, ok := e.lookup(t); ok {
			out[i] = Vector{Values: v, Version: e.version}
			continue
		}
		pending = append(pending, i)
	}

	for start := 0; start < len(pending); start += batchSize {
		end := min(start+batchSize, len(pending))
		idx := pending[start:end]

		batch := make([]string, len(idx))
		for j, i := range idx {
			batch[j] = prepared[i]
		}

		vecs, err := e.call(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if len(batch) == 1 {
				return nil, err
			}
			slog.Warn("embed: batch failed, falling back to individual",
				"size", len(batch), "error", err)
			for _, i := range idx {
				single, serr := e.call(ctx, []string{prepared[i]})
				if serr != nil {
					return nil, serr
				}
				out[i] = e.store(prepared[i], single[0])
			}
			continue
		}

		for j, i := range idx {
			out[i] = e.store(prepared[i], vecs[j])
		}
	}
	return out, nil
}

func (e *Embedder) call(ctx context.Context, batch []string) ([][]float32, error) {
	vecs, err := e.llm.Embed(ctx, batch)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if len(vecs) != len(batch) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrUnavailable, len(vecs), len(batch))
	}
	for _, v := range vecs {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: empty vector", ErrUnavailable)
		}
		if e.dim > 0 && len(v) != e.dim {
			return nil, fmt.Errorf("%w: vector has %d dimensions, want %d", ErrUnavailable, len(v), e.dim)
		}
		scrub(v)
	}
	return vecs, nil
}

func (e *Embedder) lookup(text string) ([]float32, bool) {
	v, ok := e.cache.Get(e.key(text))
	if !ok {
		return nil, false
	}
	return append([]float32(nil), v...), true
}

// store memoizes v unless another caller stored text first, in which case
// the earlier vector wins.
func (e *Embedder) store(text string, v []float32) Vector {
	if prev, ok, _ := e.cache.PeekOrAdd(e.key(text), v); ok {
		v = prev
	}
	return Vector{Values: append([]float32(nil), v...), Version: e.version}
}

func (e *Embedder) key(text string) string {
	h := sha256.Sum256([]byte(e.version + "\x00" + text))
	return hex.EncodeToString(h[:])
}

// prepare trims text and cuts it at the last space before maxChars.
func (e *Embedder) prepare(text string) string {
	text = strings.TrimSpace(text)
	if e.maxChars <= 0 || len(text) <= e.maxChars {
		return text
	}
	cut := strings.LastIndex(text[:e.maxChars], " ")
	if cut <= 0 {
		cut = e.maxChars
	}
	return strings.ToValidUTF8(text[:cut], "")
}

// scrub replaces NaN and Inf components, which some models emit for
// degenerate input, with zero.
func scrub(v []float32) {
	cleaned := 0
	for i, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			v[i] = 0
			cleaned++
		}
	}
	if cleaned > 0 {
		slog.Warn("embed: replaced non-finite components", "count", cleaned)
	}
}

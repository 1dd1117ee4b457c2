package embed

import (
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/brunobiangulo/contractgraph/llm"
)

// noisyProvider returns a different vector on every call to mimic a
// non-deterministic model.
type noisyProvider struct {
	mu       sync.Mutex
	calls    int
	batches  [][]string
	failSize int // fail batches of at least this size when > 0
	err      error
	vec      func(call int, text string) []float32
}

func (p *noisyProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, errors.New("not supported")
}

func (p *noisyProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.batches = append(p.batches, append([]string(nil), texts...))
	if p.err != nil {
		return nil, p.err
	}
	if p.failSize > 0 && len(texts) >= p.failSize {
		return nil, &llm.ModelError{Kind: llm.ErrMalformed, Op: "embed"}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if p.vec != nil {
			out[i] = p.vec(p.calls, t)
			continue
		}
		out[i] = []float32{float32(p.calls), float32(len(t)), 1}
	}
	return out, nil
}

func TestEmbedDeterministic(t *testing.T) {
	p := &noisyProvider{}
	e := New(p, VersionTag("ollama", "nomic-embed-text", 3))

	a, err := e.Embed(context.Background(), "Acme pays Beta.")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, err := e.Embed(context.Background(), "  Acme pays Beta.  ")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("same text gave different vectors: %v vs %v", a, b)
	}
	if a.Version != "ollama/nomic-embed-text@3" {
		t.Errorf("version = %q", a.Version)
	}
	if p.calls != 1 {
		t.Errorf("calls = %d, want 1", p.calls)
	}

	a.Values[0] = 99
	c, _ := e.Embed(context.Background(), "Acme pays Beta.")
	if c.Values[0] == 99 {
		t.Error("callers can mutate the cached vector")
	}
}

func TestEmbedCacheBounded(t *testing.T) {
	p := &noisyProvider{}
	e := New(p, "v", WithCacheSize(2))
	ctx := context.Background()

	for _, q := range []string{"first question", "second question", "third question"} {
		if _, err := e.Embed(ctx, q); err != nil {
			t.Fatalf("Embed(%q): %v", q, err)
		}
	}
	if n := e.cache.Len(); n != 2 {
		t.Errorf("cache holds %d entries, want 2", n)
	}

	if _, err := e.Embed(ctx, "third question"); err != nil {
		t.Fatal(err)
	}
	if p.calls != 3 {
		t.Errorf("calls = %d, want 3: recent text should be cached", p.calls)
	}
	if _, err := e.Embed(ctx, "first question"); err != nil {
		t.Fatal(err)
	}
	if p.calls != 4 {
		t.Errorf("calls = %d, want 4: least recently used text should be evicted", p.calls)
	}
}

func TestEmbedVersionSeparatesCache(t *testing.T) {
	p := &noisyProvider{}
	v1 := New(p, "m@1")
	v2 := New(p, "m@2")
	v1.Embed(context.Background(), "text")
	v2.Embed(context.Background(), "text")
	if p.calls != 2 {
		t.Errorf("calls = %d, want a model call per version", p.calls)
	}
}

func TestEmbedUnavailable(t *testing.T) {
	p := &noisyProvider{err: &llm.ModelError{Kind: llm.ErrUnavailable, Op: "embed"}}
	_, err := New(p, "v").Embed(context.Background(), "text")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if !errors.Is(err, llm.ErrUnavailable) {
		t.Errorf("model cause lost: %v", err)
	}
}

func TestEmbedDimensionMismatch(t *testing.T) {
	p := &noisyProvider{}
	_, err := New(p, "v", WithDimension(768)).Embed(context.Background(), "text")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestEmbedEmptyText(t *testing.T) {
	p := &noisyProvider{}
	if _, err := New(p, "v").Embed(context.Background(), "   "); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
	if p.calls != 0 {
		t.Errorf("calls = %d, want 0", p.calls)
	}
}

func TestEmbedScrubsNonFinite(t *testing.T) {
	p := &noisyProvider{vec: func(int, string) []float32 {
		return []float32{float32(math.NaN()), float32(math.Inf(1)), 0.5}
	}}
	v, err := New(p, "v").Embed(context.Background(), "text")
	if err != nil {
		t.Fatal(err)
	}
	if v.Values[0] != 0 || v.Values[1] != 0 || v.Values[2] != 0.5 {
		t.Errorf("values = %v", v.Values)
	}
}

func TestEmbedBatchFallback(t *testing.T) {
	p := &noisyProvider{failSize: 2}
	e := New(p, "v")
	texts := []string{"a", "bb", "ccc"}

	vecs, err := e.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors", len(vecs))
	}
	for i, v := range vecs {
		if int(v.Values[1]) != len(texts[i]) {
			t.Errorf("vector %d belongs to the wrong text: %v", i, v.Values)
		}
	}
	if p.calls != 4 {
		t.Errorf("calls = %d, want 1 batch + 3 singles", p.calls)
	}
}

func TestEmbedBatchSkipsCached(t *testing.T) {
	p := &noisyProvider{}
	e := New(p, "v")
	e.Embed(context.Background(), "a")
	if _, err := e.EmbedBatch(context.Background(), []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	last := p.batches[len(p.batches)-1]
	if !reflect.DeepEqual(last, []string{"b"}) {
		t.Errorf("second call sent %v, want only the uncached text", last)
	}
}

func TestEmbedTruncates(t *testing.T) {
	p := &noisyProvider{}
	e := New(p, "v", WithMaxChars(20))
	if _, err := e.Embed(context.Background(), strings.Repeat("word ", 20)); err != nil {
		t.Fatal(err)
	}
	sent := p.batches[0][0]
	if len(sent) > 20 || strings.HasSuffix(sent, " ") {
		t.Errorf("sent %q, want <= 20 bytes cut at a word boundary", sent)
	}
}

func TestEmbedCancelled(t *testing.T) {
	p := &noisyProvider{err: context.Canceled}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(p, "v").Embed(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

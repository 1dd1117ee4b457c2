package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// scriptedProvider returns the queued errors in order, then succeeds.
type scriptedProvider struct {
	mu    sync.Mutex
	errs  []error
	calls int
	block bool
}

func (p *scriptedProvider) next(ctx context.Context) error {
	p.mu.Lock()
	p.calls++
	var err error
	if len(p.errs) > 0 {
		err, p.errs = p.errs[0], p.errs[1:]
	}
	block := p.block
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (p *scriptedProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := p.next(ctx); err != nil {
		return nil, err
	}
	return &ChatResponse{Content: "ok"}, nil
}

func (p *scriptedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := p.next(ctx); err != nil {
		return nil, err
	}
	return [][]float32{{1}}, nil
}

func newTestGuard(p Provider, cfg GuardConfig) (*Guard, *[]time.Duration) {
	g := NewGuard(p, nil, cfg)
	var delays []time.Duration
	g.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return g, &delays
}

func TestGuardRetriesTransient(t *testing.T) {
	p := &scriptedProvider{errs: []error{
		unavailable("chat", errors.New("conn refused")),
		&ModelError{Kind: ErrRateLimited, Op: "chat", RetryAfter: 30 * time.Second},
	}}
	g, delays := newTestGuard(p, GuardConfig{MaxRetries: 3, BaseDelay: time.Second, MinRateLimitDelay: 5 * time.Second})

	resp, err := g.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "ok" || p.calls != 3 {
		t.Errorf("content=%q calls=%d", resp.Content, p.calls)
	}
	want := []time.Duration{time.Second, 30 * time.Second}
	if len(*delays) != len(want) {
		t.Fatalf("delays = %v, want %v", *delays, want)
	}
	for i := range want {
		if (*delays)[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, (*delays)[i], want[i])
		}
	}
}

func TestGuardStopsOnMalformed(t *testing.T) {
	p := &scriptedProvider{errs: []error{malformed("chat", errors.New("garbage"))}}
	g, _ := newTestGuard(p, GuardConfig{MaxRetries: 3})

	_, err := g.Chat(context.Background(), ChatRequest{})
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
	if p.calls != 1 {
		t.Errorf("calls = %d, want 1", p.calls)
	}
}

func TestGuardExhaustsRetries(t *testing.T) {
	var errs []error
	for i := 0; i < 5; i++ {
		errs = append(errs, unavailable("embed", errors.New("down")))
	}
	p := &scriptedProvider{errs: errs}
	g, delays := newTestGuard(p, GuardConfig{MaxRetries: 2, BaseDelay: time.Second})

	_, err := g.Embed(context.Background(), []string{"x"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if p.calls != 3 {
		t.Errorf("calls = %d, want 3", p.calls)
	}
	if (*delays)[0] != time.Second || (*delays)[1] != 2*time.Second {
		t.Errorf("delays = %v, want exponential", *delays)
	}
}

func TestGuardTimeoutIsUnavailable(t *testing.T) {
	p := &scriptedProvider{block: true}
	g, _ := newTestGuard(p, GuardConfig{Timeout: 10 * time.Millisecond})

	_, err := g.Chat(context.Background(), ChatRequest{})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestGuardParentCancel(t *testing.T) {
	p := &scriptedProvider{block: true}
	g, _ := newTestGuard(p, GuardConfig{MaxRetries: 3})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Chat(ctx, ChatRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestNewLimiter(t *testing.T) {
	l := NewLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if !l.Allow() {
			t.Fatal("unlimited limiter refused a call")
		}
	}
	l = NewLimiter(1, 2)
	if !l.Allow() || !l.Allow() {
		t.Fatal("burst of 2 not honoured")
	}
	if l.Allow() {
		t.Fatal("third immediate call should be limited")
	}
}

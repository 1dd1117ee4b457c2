package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// GuardConfig bounds how a Provider is called.
type GuardConfig struct {
	// Timeout applies to each individual call. Zero disables it.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt for
	// unavailable or rate-limited calls.
	MaxRetries int

	// BaseDelay is the first backoff delay; it doubles on each retry.
	BaseDelay time.Duration

	// MinRateLimitDelay is the smallest delay after a rate-limit response.
	MinRateLimitDelay time.Duration
}

// DefaultGuardConfig returns the retry policy used when none is given.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Timeout:           90 * time.Second,
		MaxRetries:        4,
		BaseDelay:         2 * time.Second,
		MinRateLimitDelay: 5 * time.Second,
	}
}

// NewLimiter creates a limiter shared by every guarded provider so that
// concurrent workers do not exceed rps calls per second in total.
// rps <= 0 disables limiting.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Guard wraps a Provider with a shared rate limiter, a per-call timeout and
// exponential backoff on retryable failures.
type Guard struct {
	inner   Provider
	limiter *rate.Limiter
	cfg     GuardConfig
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewGuard wraps p. A nil limiter disables rate limiting.
func NewGuard(p Provider, limiter *rate.Limiter, cfg GuardConfig) *Guard {
	if limiter == nil {
		limiter = NewLimiter(0, 0)
	}
	return &Guard{inner: p, limiter: limiter, cfg: cfg, sleep: sleepCtx}
}

func (g *Guard) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var resp *ChatResponse
	err := g.do(ctx, "chat", func(ctx context.Context) error {
		var err error
		resp, err = g.inner.Chat(ctx, req)
		return err
	})
	return resp, err
}

func (g *Guard) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	err := g.do(ctx, "embed", func(ctx context.Context) error {
		var err error
		vecs, err = g.inner.Embed(ctx, texts)
		return err
	})
	return vecs, err
}

func (g *Guard) do(ctx context.Context, op string, call func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := g.backoff(attempt, lastErr)
			slog.Warn("llm: retrying request",
				"op", op,
				"attempt", attempt,
				"delay", delay,
				"error", lastErr,
			)
			if err := g.sleep(ctx, delay); err != nil {
				return err
			}
		}

		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}

		err := g.attempt(ctx, call)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !Retryable(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// attempt runs one call under the per-call timeout. A timeout of the call
// itself is reported as ErrUnavailable, not as a cancelled parent context.
func (g *Guard) attempt(ctx context.Context, call func(context.Context) error) error {
	callCtx := ctx
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}
	err := call(callCtx)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return unavailable("call", err)
	}
	return err
}

func (g *Guard) backoff(attempt int, lastErr error) time.Duration {
	delay := g.cfg.BaseDelay * time.Duration(1<<(attempt-1))

	var merr *ModelError
	if errors.As(lastErr, &merr) && errors.Is(merr.Kind, ErrRateLimited) {
		rl := g.cfg.MinRateLimitDelay * time.Duration(1<<(attempt-1))
		if merr.RetryAfter > rl {
			rl = merr.RetryAfter
		}
		if rl > delay {
			delay = rl
		}
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

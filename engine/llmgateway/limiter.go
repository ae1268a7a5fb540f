package llmgateway

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// limiter throttles concurrent and per-second LLM calls, a trimmed version
// of the teacher's providerRateLimiter: one limiter per gateway rather than
// a per-provider registry, since a single orchestrator process talks to one
// configured provider.
type limiter struct {
	sem  *semaphore.Weighted
	rate *rate.Limiter
}

func newLimiter(maxConcurrency int) *limiter {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &limiter{
		sem:  semaphore.NewWeighted(int64(maxConcurrency)),
		rate: rate.NewLimiter(rate.Limit(maxConcurrency), maxConcurrency),
	}
}

// acquire blocks until a concurrency slot and a rate-limit token are both
// available, or ctx is canceled.
func (l *limiter) acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquiring llm concurrency slot: %w", err)
	}
	if err := l.rate.Wait(ctx); err != nil {
		l.sem.Release(1)
		return fmt.Errorf("waiting for llm rate limit: %w", err)
	}
	return nil
}

func (l *limiter) release() {
	l.sem.Release(1)
}

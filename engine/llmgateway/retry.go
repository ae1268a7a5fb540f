package llmgateway

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// isTransient reports whether err is worth retrying: timeouts, connection
// resets, and HTTP 429/5xx surfaced by the provider SDK as plain text, the
// same class the teacher's retry wrapper in engine/llm/orchestrator treats
// as transient.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "500", "502", "503", "504", "connection reset", "timeout"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// withRetry calls fn and, on a transient error, retries it with exponential
// backoff and jitter up to attempts more times (attempts+1 calls in all;
// attempts == 0 disables retry). This gateway-level retry covers transient
// transport failures and is distinct from the orchestrator's plan-level
// retry budget.
func withRetry(ctx context.Context, attempts uint64, base time.Duration, fn func(ctx context.Context) error) error {
	if attempts == 0 {
		return fn(ctx)
	}
	backoff := retry.NewExponential(base)
	backoff = retry.WithJitterPercent(10, backoff)
	backoff = retry.WithMaxRetries(attempts, backoff)
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if isTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

package fetch

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	transientAttempts = 3
	defaultAttempts   = 2
	backoffBase       = time.Second
	backoffCap        = 30 * time.Second
)

// attemptsFor returns the total attempt budget for a failure kind.
// Rate-limit failures surface immediately.
func attemptsFor(k Kind) int {
	switch k {
	case KindRateLimit:
		return 1
	case KindNetwork, KindTimeout:
		return transientAttempts
	default:
		return defaultAttempts
	}
}

// backoffFor returns the exponential delay before the given retry (1-based).
func backoffFor(retry int) time.Duration {
	d := backoffBase << (retry - 1)
	if d > backoffCap {
		d = backoffCap
	}
	return d
}

// withRetry runs fn, retrying according to the failure kind of each error.
// Errors without a kind are treated as non-transient.
func withRetry(ctx context.Context, logger *zap.Logger, capability string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		kind, ok := KindOf(lastErr)
		if !ok {
			kind = KindMalformed
		}
		if attempt >= attemptsFor(kind) {
			return lastErr
		}
		delay := backoffFor(attempt)
		logger.Debug("retrying fetch",
			zap.String("capability", capability),
			zap.String("kind", kind.String()),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(lastErr))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return lastErr
		}
	}
}

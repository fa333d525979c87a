package generator

import (
	"context"
	"log/slog"
	"time"
)

// retryWithFallback runs attempt up to maxAttempts times with a fixed
// pause between tries, then degrades to fallback with the last error.
// The pause is constant, not exponential: attempts are few and the
// completion service rate-limits upstream.
func retryWithFallback[T any](ctx context.Context, maxAttempts int, pause time.Duration, attempt func() (T, error), fallback func(error) T) T {
	var lastErr error
	for n := 1; n <= maxAttempts; n++ {
		if n > 1 && !sleepCtx(ctx, pause) {
			break
		}
		v, err := attempt()
		if err == nil {
			return v
		}
		lastErr = err
		slog.Warn("attempt failed", "attempt", n, "max_attempts", maxAttempts, "error", err)
		if ctx.Err() != nil {
			break
		}
	}
	return fallback(lastErr)
}

// sleepCtx pauses for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

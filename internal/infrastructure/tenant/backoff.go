package tenant

import (
	"context"
	"math/rand/v2"
	"time"
)

const maxBackoffShift = 16

// Backoff returns base*2^attempt plus up to jitter of random delay.
func Backoff(base, jitter time.Duration, attempt int) time.Duration {
	if attempt > maxBackoffShift {
		attempt = maxBackoffShift
	}
	d := base << attempt
	if jitter > 0 {
		d += rand.N(jitter + 1)
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

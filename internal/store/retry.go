package store

import (
	"context"
	"errors"
	"time"
)

// Backoff is the retry schedule for Transient store errors: 50ms, 200ms,
// 800ms, per spec.md §7.
var Backoff = []time.Duration{50 * time.Millisecond, 200 * time.Millisecond, 800 * time.Millisecond}

// Retry runs fn, retrying on a Transient error per Backoff. Any other
// error (including a Fatal or NotFound) returns immediately. A caller
// whose retries are exhausted gets the last Transient error back, and
// per spec.md §7 should log a warning and drop the write rather than
// block the pipeline.
func Retry(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = fn(ctx)
		var transient *Transient
		if lastErr == nil || !errors.As(lastErr, &transient) {
			return lastErr
		}
		if attempt >= len(Backoff) {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(Backoff[attempt]):
		}
	}
}

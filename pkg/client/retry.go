package client

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// backoffDelay computes the wait before retry number attempt (zero-based):
// base * 2^attempt plus a small additive jitter. The jitter is bounded by
// half the base so consecutive delays are strictly increasing, which keeps
// the retry cadence observable in tests and logs.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	delay := base << uint(attempt)
	if max > 0 && delay > max {
		delay = max
	}
	jitter := time.Duration(0)
	if base > 1 {
		jitter = time.Duration(rand.Int63n(int64(base / 2)))
	}
	return delay + jitter
}

// withRetry runs fn until it succeeds, returns a permanent error, or the
// attempt budget is spent. Transient failures wait a jittered exponential
// backoff between attempts; the wait respects context cancellation.
func (c *Client) withRetry(ctx context.Context, url string, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 0 {
				c.logger.Info().
					Str("url", url).
					Int("attempt", attempt+1).
					Msg("request succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !IsTransient(err) {
			c.logger.Warn().
				Str("url", url).
				Err(err).
				Msg("permanent failure, not retrying")
			return err
		}

		if attempt == c.cfg.MaxAttempts-1 {
			break
		}

		delay := backoffDelay(c.cfg.InitialBackoff, c.cfg.MaxBackoff, attempt)
		retriesTotal.Inc()
		retryBackoffSeconds.Observe(delay.Seconds())

		c.logger.Warn().
			Str("url", url).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Err(err).
			Msg("transient failure, retrying after backoff")

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry wait: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	retryExhaustedTotal.Inc()
	c.logger.Error().
		Str("url", url).
		Int("max_attempts", c.cfg.MaxAttempts).
		Err(lastErr).
		Msg("retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, c.cfg.MaxAttempts, lastErr)
}

package transport

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/discohead/mixpanel-data/src/pkg/types"
)

// RetryConfig governs Transport's retry/backoff discipline. Retry state
// (the backoff.BackOff instance) is local to each call to do(), never
// shared across requests or fetcher slices, so a 429 on one slice can never
// poison another slice's budget.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig matches §4.1: up to 5 attempts, exponential backoff
// starting at 1s, capped at 60s, with jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     5,
		InitialInterval: time.Second,
		MaxInterval:     60 * time.Second,
	}
}

func (t *Transport) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.retry.InitialInterval
	b.MaxInterval = t.retry.MaxInterval
	b.MaxElapsedTime = 0 // the attempt-count cap governs termination, not elapsed time
	return b
}

// sleepBackoff blocks for the next backoff interval (or retryAfterSeconds,
// when the Provider advertised one via a 429's Retry-After header) before
// the next attempt, honoring ctx cancellation.
func (t *Transport) sleepBackoff(ctx context.Context, attempt int, retryAfterSeconds int) error {
	var wait time.Duration
	if retryAfterSeconds > 0 {
		wait = time.Duration(retryAfterSeconds) * time.Second
	} else {
		b := t.newBackOff()
		for i := 0; i < attempt; i++ {
			wait = b.NextBackOff()
		}
		if wait == backoff.Stop {
			wait = t.retry.MaxInterval
		}
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return types.NewError(types.TransportError, "", ctx.Err(), "cancelled during backoff")
	case <-timer.C:
		return nil
	}
}

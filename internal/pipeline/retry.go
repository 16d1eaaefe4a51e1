package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"pattern-sentinel/internal/feed"
)

// RetryPolicy owns the retry budget shared by every pipeline step. Only
// transient failures (feed.ErrUnavailable) are retried; anything else
// fails the step immediately.
type RetryPolicy struct {
	MaxAttempts     int           `json:"max_attempts"`
	InitialInterval time.Duration `json:"initial_interval"`
	MaxInterval     time.Duration `json:"max_interval"`
}

// DefaultRetryPolicy returns the standard step retry budget
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 2 * time.Second,
		MaxInterval:     30 * time.Second,
	}
}

// Do runs fn, retrying transient errors with exponential backoff until
// the attempt budget or the context is exhausted. The returned error
// keeps the original in its chain so callers can still classify it.
func (p RetryPolicy) Do(ctx context.Context, step string, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	policy := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		policy.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		policy.MaxInterval = p.MaxInterval
	}
	policy.MaxElapsedTime = 0

	attempt := 0
	operation := func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, feed.ErrUnavailable) {
			return backoff.Permanent(err)
		}
		log.Warn().Err(err).Str("step", step).Int("attempt", attempt).Msg("Transient failure, backing off")
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx))
	if err != nil {
		return fmt.Errorf("%s failed after %d attempt(s): %w", step, attempt, err)
	}
	return nil
}

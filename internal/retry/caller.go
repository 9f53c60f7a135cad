// Package retry executes a single remote call with bounded retry and
// exponential backoff. Every network call issued by a localization job goes
// through a Caller so that all stages share identical retry semantics.
//
// The delay before attempt k (k >= 2) is BaseDelay * 2^(k-2): one unit before
// the second attempt, two before the third, four before the fourth. Only
// TransientError failures are retried; a FatalError is returned unchanged on
// the first occurrence.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultMaxAttempts is the attempt cap when none is configured.
	DefaultMaxAttempts = 3

	// DefaultBaseDelay is the backoff time unit.
	DefaultBaseDelay = time.Second

	// DefaultTimeout bounds a single attempt.
	DefaultTimeout = 300 * time.Second
)

// Caller runs remote calls under a shared retry policy. A Caller holds no
// per-call state and is safe for concurrent use by many jobs.
type Caller struct {
	maxAttempts int
	baseDelay   time.Duration
	timeout     time.Duration
	sleeper     func(ctx context.Context, d time.Duration) error
}

// Option customizes a Caller.
type Option func(*Caller)

// WithMaxAttempts overrides the attempt cap (defaults to 3).
func WithMaxAttempts(attempts int) Option {
	return func(c *Caller) {
		c.maxAttempts = attempts
	}
}

// WithBaseDelay overrides the backoff time unit (defaults to 1s).
func WithBaseDelay(d time.Duration) Option {
	return func(c *Caller) {
		c.baseDelay = d
	}
}

// WithTimeout overrides the per-attempt timeout (defaults to 300s).
// A non-positive value disables the per-attempt deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Caller) {
		c.timeout = d
	}
}

// WithSleeper overrides how backoff delays are waited out (useful for tests).
func WithSleeper(sleeper func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Caller) {
		if sleeper != nil {
			c.sleeper = sleeper
		}
	}
}

// New constructs a Caller.
func New(opts ...Option) *Caller {
	c := &Caller{
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		timeout:     DefaultTimeout,
		sleeper:     sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = 1
	}
	if c.baseDelay < 0 {
		c.baseDelay = 0
	}
	return c
}

// MaxAttempts returns the configured attempt cap.
func (c *Caller) MaxAttempts() int {
	return c.maxAttempts
}

// Do runs fn until it succeeds, fails fatally, or the attempt cap is reached.
// Each attempt receives its own context, bounded by the per-attempt timeout
// and released before the next attempt starts. label names the call in
// errors and logs (e.g. "LOCALIZATION").
func (c *Caller) Do(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := c.Backoff(attempt)
			log.Debug().
				Str("call", label).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Backing off before retry")
			if err := c.sleeper(ctx, delay); err != nil {
				return &CancelledError{Label: label, Err: err}
			}
		}
		if err := ctx.Err(); err != nil {
			return &CancelledError{Label: label, Err: err}
		}

		err := c.attempt(ctx, fn)
		if err == nil {
			if attempt > 1 {
				log.Info().Str("call", label).Int("attempt", attempt).Msg("Call succeeded after retry")
			}
			return nil
		}

		// The parent context ending is a cancellation, not a transport failure,
		// even when the transport reports it as a deadline.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &CancelledError{Label: label, Err: ctxErr}
		}

		err = Classify(label, err)
		if !IsTransient(err) {
			log.Warn().Err(err).Str("call", label).Int("attempt", attempt).Msg("Call failed with non-retryable error")
			return err
		}

		lastErr = err
		log.Warn().
			Err(err).
			Str("call", label).
			Int("attempt", attempt).
			Int("max_attempts", c.maxAttempts).
			Msg("Call failed with transient error")
	}

	if lastErr == nil {
		lastErr = errors.New("unknown retry failure")
	}
	return &ExhaustedError{Label: label, Attempts: c.maxAttempts, Last: lastErr}
}

// attempt scopes one call: the attempt context is cancelled on every exit
// path so connections and timers are never carried into the next attempt.
func (c *Caller) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	attemptCtx := ctx
	cancel := func() {}
	if c.timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, c.timeout)
	}
	defer cancel()
	return fn(attemptCtx)
}

// Backoff returns the delay before the given 1-based attempt.
func (c *Caller) Backoff(attempt int) time.Duration {
	if attempt < 2 || c.baseDelay <= 0 {
		return 0
	}
	shift := attempt - 2
	if shift > 30 {
		shift = 30
	}
	return c.baseDelay * time.Duration(1<<shift)
}

// Call is Do for functions that return a value.
func Call[T any](ctx context.Context, c *Caller, label string, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := c.Do(ctx, label, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

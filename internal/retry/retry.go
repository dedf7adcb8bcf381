package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"conveyor/internal/failures"
	"conveyor/internal/logging"
)

const (
	defaultMaxAttempts  = 3
	defaultInitialDelay = 500 * time.Millisecond
	defaultMultiplier   = 2.0
)

// Policy controls retry behavior for a single stage invocation.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
}

// DefaultPolicy returns the repository default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  defaultMaxAttempts,
		InitialDelay: defaultInitialDelay,
		Multiplier:   defaultMultiplier,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = defaultInitialDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = defaultMultiplier
	}
	return p
}

// Run invokes fn with bounded retries and exponential backoff. Success
// returns immediately. A non-retryable error is returned after exactly one
// attempt with no delay. A retryable error sleeps the current delay, scales
// it by the multiplier, and tries again until attempts are exhausted, at
// which point the last error is returned annotated with the attempt count.
//
// The backoff sleep selects against ctx so cancellation interrupts the wait;
// a cancelled run surfaces failures.ErrCancelled rather than continuing to
// retry.
func Run(ctx context.Context, policy Policy, logger *slog.Logger, fn func(context.Context) error) error {
	policy = policy.normalized()
	if logger == nil {
		logger = logging.NewNop()
	}

	delay := policy.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return failures.Wrap(failures.ErrCancelled, "", "retry", "run cancelled before attempt", err)
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !failures.Retryable(err) {
			return err
		}
		if attempt == policy.MaxAttempts {
			break
		}

		logger.Warn("stage attempt failed; backing off",
			logging.Int(logging.FieldAttempt, attempt),
			logging.Duration("backoff", delay),
			logging.Error(err),
		)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
		delay = time.Duration(float64(delay) * policy.Multiplier)
	}

	return fmt.Errorf("retries exhausted after %d attempts: %w", policy.MaxAttempts, lastErr)
}

func sleep(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return failures.Wrap(failures.ErrCancelled, "", "retry", "backoff interrupted", ctx.Err())
	case <-timer.C:
		return nil
	}
}
